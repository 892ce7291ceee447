package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLedgerRetention is how long a resumed action name is remembered for
// idempotent replay when no retention is configured.
const DefaultLedgerRetention = 24 * time.Hour

// ResumeLedger remembers which action names have already been resumed so a
// retried resume can be answered idempotently instead of failing NotFound.
// Entries are retention-bounded; the ledger is best-effort history, not the
// source of truth.
type ResumeLedger interface {
	// MarkResumed records that the named action completed a resume.
	MarkResumed(ctx context.Context, actionName string) error

	// WasResumed reports whether the named action was resumed within the
	// retention window.
	WasResumed(ctx context.Context, actionName string) (bool, error)

	// Forget drops the named action from the ledger. The recovery bootstrap
	// calls this for every pending action it reloads, since an action that
	// is pending again has plainly not been resumed yet.
	Forget(ctx context.Context, actionName string) error
}

// --- MemoryResumeLedger ---

// MemoryResumeLedger is an in-memory ResumeLedger with lazy expiry. Suitable
// for tests and single-instance deployments.
type MemoryResumeLedger struct {
	mu        sync.RWMutex
	retention time.Duration
	entries   map[string]time.Time // action name -> expiry
}

// NewMemoryResumeLedger creates a new in-memory ledger. A non-positive
// retention falls back to DefaultLedgerRetention.
func NewMemoryResumeLedger(retention time.Duration) *MemoryResumeLedger {
	if retention <= 0 {
		retention = DefaultLedgerRetention
	}
	return &MemoryResumeLedger{
		retention: retention,
		entries:   make(map[string]time.Time),
	}
}

// MarkResumed records the action name with the configured retention.
func (l *MemoryResumeLedger) MarkResumed(_ context.Context, actionName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[actionName] = time.Now().Add(l.retention)
	return nil
}

// WasResumed reports whether the name is recorded and unexpired.
func (l *MemoryResumeLedger) WasResumed(_ context.Context, actionName string) (bool, error) {
	l.mu.RLock()
	expiry, exists := l.entries[actionName]
	l.mu.RUnlock()

	if !exists {
		return false, nil
	}
	if time.Now().After(expiry) {
		l.mu.Lock()
		delete(l.entries, actionName)
		l.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Forget drops the name.
func (l *MemoryResumeLedger) Forget(_ context.Context, actionName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, actionName)
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (l *MemoryResumeLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// --- RedisResumeLedger ---

// ledgerKeyPrefix namespaces ledger keys in a shared Redis.
const ledgerKeyPrefix = "signoff:resumed:"

// RedisResumeLedger is a Redis-backed ResumeLedger so idempotency history
// survives process restarts independently of the state store.
type RedisResumeLedger struct {
	client    redis.Cmdable
	retention time.Duration
}

// NewRedisResumeLedger creates a new Redis-backed ledger. A non-positive
// retention falls back to DefaultLedgerRetention.
func NewRedisResumeLedger(client redis.Cmdable, retention time.Duration) *RedisResumeLedger {
	if retention <= 0 {
		retention = DefaultLedgerRetention
	}
	return &RedisResumeLedger{client: client, retention: retention}
}

// MarkResumed records the action name with the configured retention.
func (l *RedisResumeLedger) MarkResumed(ctx context.Context, actionName string) error {
	key := ledgerKeyPrefix + actionName
	if err := l.client.Set(ctx, key, "1", l.retention).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// WasResumed reports whether the name is recorded and unexpired.
func (l *RedisResumeLedger) WasResumed(ctx context.Context, actionName string) (bool, error) {
	key := ledgerKeyPrefix + actionName
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Forget drops the name.
func (l *RedisResumeLedger) Forget(ctx context.Context, actionName string) error {
	key := ledgerKeyPrefix + actionName
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings the Redis backend.
func (l *RedisResumeLedger) HealthCheck(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ ResumeLedger = (*MemoryResumeLedger)(nil)
	_ ResumeLedger = (*RedisResumeLedger)(nil)
)
