// Package integration provides a reusable test harness for end-to-end
// testing of the signoff coordination server. It starts a full HTTP server
// with in-memory backends and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/candorops/signoff/internal/bus"
	"github.com/candorops/signoff/internal/config"
	"github.com/candorops/signoff/internal/store"
	"github.com/candorops/signoff/internal/transport"
)

// TestHarness encapsulates a fully wired coordination server instance for
// integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Bus    *bus.Coordinator
	Ledger bus.ResumeLedger
	Store  store.StateStore

	// Monitor is constructed but not started; tests drive sweeps
	// explicitly through Monitor.Sweep for deterministic timing.
	Monitor *bus.Monitor

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	handlerTimeout   time.Duration
	escalationWindow time.Duration
	stateStore       store.StateStore
	ledger           bus.ResumeLedger
	liveBuffer       int
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithEscalationWindow sets how long an escalated approval waits before the
// incident is failed.
func WithEscalationWindow(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.escalationWindow = d
	}
}

// WithStateStore replaces the default in-memory state store.
func WithStateStore(s store.StateStore) HarnessOption {
	return func(c *harnessConfig) {
		c.stateStore = s
	}
}

// WithResumeLedger replaces the default in-memory resume ledger.
func WithResumeLedger(l bus.ResumeLedger) HarnessOption {
	return func(c *harnessConfig) {
		c.ledger = l
	}
}

// WithLiveBuffer sets the per-connection live stream buffer.
func WithLiveBuffer(n int) HarnessOption {
	return func(c *harnessConfig) {
		c.liveBuffer = n
	}
}

// NewTestHarness creates and starts a full coordination server instance. The
// server is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout:   10 * time.Second,
		escalationWindow: time.Hour,
		liveBuffer:       64,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	// Step 1: Create the JWT issuer.
	h.issuer = newTokenIssuer(t)

	// Step 2: Build backends.
	h.Store = hc.stateStore
	if h.Store == nil {
		h.Store = store.NewMemoryStateStore()
	}
	h.Ledger = hc.ledger
	if h.Ledger == nil {
		h.Ledger = bus.NewMemoryResumeLedger(time.Hour)
	}

	// Step 3: Build the coordination bus, recover persisted state the way
	// the real entry point does, and construct the monitor.
	h.Bus = bus.New(
		bus.WithStore(h.Store),
		bus.WithLedger(h.Ledger),
		bus.WithEscalationWindow(hc.escalationWindow),
	)
	if _, _, err := h.Bus.Restore(context.Background()); err != nil {
		t.Fatalf("restore persisted state: %v", err)
	}
	h.Monitor = bus.NewMonitor(h.Bus, time.Hour, zap.NewNop())

	// Step 4: Build config.
	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Server.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	h.cfg.Identity = config.IdentityConfig{
		Issuer:     h.issuer.Issuer(),
		Audience:   h.issuer.Audience(),
		JWKSURL:    h.issuer.JWKSURL(),
		Algorithms: []string{"RS256"},
		ClaimPaths: map[string]string{
			"subject_id": "sub",
			"email":      "email",
			"roles":      "roles",
		},
	}
	h.cfg.Live.Buffer = hc.liveBuffer

	// Step 5: Build router with full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), 1*time.Hour, zap.NewNop())

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Logger:       zap.NewNop(),
		Bus:          h.Bus,
		Authenticate: transport.Authenticator(h.cfg.Identity, jwks),
	})

	// Step 6: Start test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(func() {
		h.server.Close()
	})

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// DialLive opens an authenticated WebSocket to an incident's live stream.
// The connection is closed when the test completes.
func (h *TestHarness) DialLive(incidentID, token string) *websocket.Conn {
	h.t.Helper()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/incidents/" + incidentID + "/live"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		h.t.Fatalf("dial live stream for %q: %v", incidentID, err)
	}
	h.t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return conn
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Default test claims ---

// AgentClaims returns TestClaims for an automated agent identity.
func AgentClaims() TestClaims {
	return TestClaims{
		SubjectID: "agent-triage-1",
		Email:     "agents@candor.example.com",
		Roles:     []string{"agent"},
	}
}

// ReviewerClaims returns TestClaims for a human reviewer.
func ReviewerClaims() TestClaims {
	return TestClaims{
		SubjectID: "reviewer-ana",
		Email:     "ana@candor.example.com",
		Roles:     []string{"reviewer"},
	}
}

// ApproverClaims returns TestClaims for a policy approver.
func ApproverClaims() TestClaims {
	return TestClaims{
		SubjectID: "approver-sam",
		Email:     "sam@candor.example.com",
		Roles:     []string{"approver"},
	}
}
