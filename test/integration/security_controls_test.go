package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/candorops/signoff/model"
)

// ==========================================================================
// Authentication Tests
// ==========================================================================

func TestSecurity_NoAuthHeader_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	endpoints := []string{
		"/v1/incidents",
		"/v1/incidents/inc-1",
		"/v1/incidents/inc-1/action",
		"/v1/actions",
	}

	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			resp := h.GET(ep, "")
			h.AssertStatus(t, resp, http.StatusUnauthorized)
		})
	}
}

func TestSecurity_ExpiredJWT_Returns401(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateExpiredToken(ReviewerClaims())

	resp := h.GET("/v1/incidents", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_InvalidSignature_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	// Generate a token signed with a different RSA key (not in JWKS).
	differentKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	claims := jwt.MapClaims{
		"iss":   "https://auth.test.signoff.dev",
		"aud":   "signoff-test",
		"sub":   "user-1",
		"email": "user@candor.example.com",
		"roles": []any{"reviewer"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key-1"
	signed, err := token.SignedString(differentKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	resp := h.GET("/v1/incidents", signed)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_NoneAlgorithm_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	// Craft a "none" algorithm token manually.
	// Header: {"alg":"none","typ":"JWT"}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"admin","iss":"https://auth.test.signoff.dev","aud":"signoff-test","roles":["approver"]}`))
	noneToken := header + "." + payload + "."

	resp := h.GET("/v1/incidents", noneToken)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_WrongAudience_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	// Valid signature, but minted for a different API.
	claims := ReviewerClaims()
	claims.Extra = map[string]any{"aud": "some-other-api"}
	token := h.GenerateToken(claims)

	resp := h.GET("/v1/incidents", token)
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestSecurity_ValidJWT_Returns200(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ReviewerClaims())

	resp := h.GET("/v1/incidents", token)
	h.AssertStatus(t, resp, http.StatusOK)
}

func TestSecurity_MalformedToken_Returns401(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/v1/incidents", "not.a.valid.jwt.token")
	h.AssertStatus(t, resp, http.StatusUnauthorized)
}

// ==========================================================================
// Actor Identity Tests
// ==========================================================================

func TestSecurity_ResumeActorFromJWT_NotRequestBody(t *testing.T) {
	h := NewTestHarness(t)
	agent := h.GenerateToken(AgentClaims())
	reviewer := h.GenerateToken(ReviewerClaims())

	h.POST("/v1/incidents/inc-sec-1/state", map[string]any{
		"kind": "triage", "step": "policy_evaluated",
	}, agent)
	h.POST("/v1/incidents/inc-sec-1/pause", map[string]any{
		"action_name": "gate-sec-1", "action_kind": "review_triage",
	}, agent)

	// The body claims to be someone else; the log must credit the token.
	var resumed model.WorkflowState
	resp := h.POST("/v1/incidents/inc-sec-1/resume", map[string]any{
		"action_name": "gate-sec-1",
		"approved":    true,
		"actor":       "root",
	}, reviewer)
	h.AssertJSON(t, resp, http.StatusOK, &resumed)

	last := resumed.Log[len(resumed.Log)-1]
	if last.Actor != "reviewer-ana" {
		t.Errorf("log actor = %q, want reviewer-ana (from the JWT)", last.Actor)
	}
	if last.Actor == "root" {
		t.Error("request body impersonated the actor; identity spoofing possible")
	}
}

func TestSecurity_EmitLogActorFromJWT(t *testing.T) {
	h := NewTestHarness(t)
	agent := h.GenerateToken(AgentClaims())

	var state model.WorkflowState
	resp := h.POST("/v1/incidents/inc-sec-2/state", map[string]any{
		"kind":    "triage",
		"step":    "initialized",
		"message": "intake started",
	}, agent)
	h.AssertJSON(t, resp, http.StatusOK, &state)

	if len(state.Log) != 1 {
		t.Fatalf("log length = %d", len(state.Log))
	}
	if state.Log[0].Actor != "agent-triage-1" {
		t.Errorf("log actor = %q, want agent-triage-1", state.Log[0].Actor)
	}
}

// ==========================================================================
// Information Leakage Tests
// ==========================================================================

func TestSecurity_ErrorResponseNoStackTrace(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ReviewerClaims())

	// A 404 and a 401 both get the standard envelope, nothing more.
	responses := []*http.Response{
		h.GET("/v1/incidents/does-not-exist", token),
		h.GET("/v1/incidents", ""),
	}

	sensitivePatterns := []string{
		"goroutine",
		".go:",
		"panic",
		"runtime.",
		"/home/",
		"/internal/",
	}

	for _, resp := range responses {
		body := string(h.ReadBody(resp))
		for _, pattern := range sensitivePatterns {
			if strings.Contains(body, pattern) {
				t.Errorf("error response contains sensitive pattern %q: %s", pattern, body)
			}
		}
	}
}

func TestSecurity_ErrorEnvelopeCarriesTraceID(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ReviewerClaims())

	var envelope struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	resp := h.GET("/v1/incidents/does-not-exist", token)
	h.AssertJSON(t, resp, http.StatusNotFound, &envelope)

	if envelope.Error.Code != model.ErrNotFound {
		t.Errorf("code = %q", envelope.Error.Code)
	}
	if envelope.Error.Message == "" {
		t.Error("error message should not be empty")
	}
}

// ==========================================================================
// Security Headers Tests
// ==========================================================================

func TestSecurity_HeadersOnAuthenticatedResponse(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ReviewerClaims())

	resp := h.GET("/v1/incidents", token)
	h.AssertStatus(t, resp, http.StatusOK)

	expectedHeaders := map[string]string{
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Cache-Control":             "no-store",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}

	for name, expected := range expectedHeaders {
		actual := resp.Header.Get(name)
		if actual != expected {
			t.Errorf("header %s = %q, want %q", name, actual, expected)
		}
	}
}

func TestSecurity_HeadersOnErrorResponse(t *testing.T) {
	h := NewTestHarness(t)

	// Even 401 responses should have security headers.
	resp := h.GET("/v1/incidents", "")
	h.AssertStatus(t, resp, http.StatusUnauthorized)

	requiredHeaders := []string{
		"Strict-Transport-Security",
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Cache-Control",
		"Referrer-Policy",
	}

	for _, name := range requiredHeaders {
		if resp.Header.Get(name) == "" {
			t.Errorf("security header %s missing on error response", name)
		}
	}
}

func TestSecurity_HeadersOnPublicEndpoint(t *testing.T) {
	h := NewTestHarness(t)

	// Health endpoint is public but should still have security headers.
	resp := h.GET("/healthz", "")
	h.AssertStatus(t, resp, http.StatusOK)

	if resp.Header.Get("Strict-Transport-Security") == "" {
		t.Error("HSTS header missing on public endpoint")
	}
	if resp.Header.Get("X-Content-Type-Options") == "" {
		t.Error("X-Content-Type-Options missing on public endpoint")
	}
}

func TestSecurity_CorrelationIDReturned(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ReviewerClaims())

	// Without custom correlation ID → generated one returned.
	resp1 := h.GET("/v1/incidents", token)
	correlationID := resp1.Header.Get("X-Correlation-Id")
	if correlationID == "" {
		t.Error("X-Correlation-Id not set in response")
	}

	// With custom correlation ID → echoed back.
	resp2 := h.GETWithHeaders("/v1/incidents", token, map[string]string{
		"X-Correlation-Id": "custom-trace-123",
	})
	if resp2.Header.Get("X-Correlation-Id") != "custom-trace-123" {
		t.Errorf("X-Correlation-Id = %q, want %q", resp2.Header.Get("X-Correlation-Id"), "custom-trace-123")
	}
}

// ==========================================================================
// CORS Tests
// ==========================================================================

func TestSecurity_CORSAllowedOrigin(t *testing.T) {
	h := NewTestHarness(t)

	// Allowed origin (configured in harness: http://localhost:3000).
	resp := h.GETWithHeaders("/healthz", "", map[string]string{
		"Origin": "http://localhost:3000",
	})

	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("CORS not set for allowed origin")
	}
}

func TestSecurity_CORSDisallowedOrigin(t *testing.T) {
	h := NewTestHarness(t)

	// Disallowed origin.
	resp := h.GETWithHeaders("/healthz", "", map[string]string{
		"Origin": "https://evil.example.com",
	})

	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Error("CORS headers should not be set for disallowed origin")
	}
}
