package limiter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipExtractor(value string) Extractor {
	return func(ctx context.Context, limitType string) string {
		if limitType == LimitByIP {
			return value
		}
		return ""
	}
}

// countingRecorder counts decision outcomes for assertions.
type countingRecorder struct {
	allowed            atomic.Int32
	denied             atomic.Int32
	conflictRetries    atomic.Int32
	conflictsExhausted atomic.Int32
	backendErrors      atomic.Int32
}

func (r *countingRecorder) Allowed(string)           { r.allowed.Add(1) }
func (r *countingRecorder) Denied(string)            { r.denied.Add(1) }
func (r *countingRecorder) ConflictRetry(string)     { r.conflictRetries.Add(1) }
func (r *countingRecorder) ConflictExhausted(string) { r.conflictsExhausted.Add(1) }
func (r *countingRecorder) BackendError(string)      { r.backendErrors.Add(1) }

// conflictingStore injects a number of CAS conflicts before delegating.
type conflictingStore struct {
	Store
	remaining atomic.Int32
}

func (s *conflictingStore) CompareAndSwap(ctx context.Context, key, expectedToken string, value []byte) error {
	if s.remaining.Add(-1) >= 0 {
		return ErrBackendConflict
	}
	return s.Store.CompareAndSwap(ctx, key, expectedToken, value)
}

// failingStore reports a backend failure on every call.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, string, error) {
	return nil, "", backendError(errors.New("store down"))
}

func (failingStore) CompareAndSwap(context.Context, string, string, []byte) error {
	return backendError(errors.New("store down"))
}

func tokenBucketConfig(t *testing.T, capacity float64) *Config {
	t.Helper()
	cfg := &Config{
		StorageType: StorageMemory,
		Rules: []Rule{{
			Path:      "/api/resolve",
			Algorithm: AlgorithmTokenBucket,
			Capacity:  capacity,
			Rate:      1,
			LimitBy:   []string{LimitByIP},
		}},
	}
	require.NoError(t, cfg.ValidateAndPrepare())
	return cfg
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	cfg := tokenBucketConfig(t, 3)
	rl := NewRateLimiter(cfg, NewMemoryStore())
	rl.SetExtractor(ipExtractor("203.0.113.7"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.False(t, rl.Limit(ctx, "/api/resolve"), "request %d", i)
	}
	assert.True(t, rl.Limit(ctx, "/api/resolve"))

	// other paths are untouched by the rule
	assert.False(t, rl.Limit(ctx, "/health"))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	cfg := tokenBucketConfig(t, 1)
	rl := NewRateLimiter(cfg, NewMemoryStore())
	rl.SetExtractor(func(ctx context.Context, limitType string) string {
		return ctx.Value(ctxIP{}).(string)
	})

	first := context.WithValue(context.Background(), ctxIP{}, "10.0.0.1")
	second := context.WithValue(context.Background(), ctxIP{}, "10.0.0.2")

	assert.False(t, rl.Limit(first, "/api/resolve"))
	assert.True(t, rl.Limit(first, "/api/resolve"))
	// a different subject still has its full budget
	assert.False(t, rl.Limit(second, "/api/resolve"))
}

type ctxIP struct{}

func TestRateLimiterMatchesRegexRules(t *testing.T) {
	cfg := &Config{
		StorageType: StorageMemory,
		Rules: []Rule{{
			Path:      "^/api/v1/.*",
			IsRegex:   true,
			Algorithm: AlgorithmFixedWindow,
			Limit:     1,
			Window:    60,
			LimitBy:   []string{LimitByIP},
		}},
	}
	require.NoError(t, cfg.ValidateAndPrepare())
	rl := NewRateLimiter(cfg, NewMemoryStore())
	rl.SetExtractor(ipExtractor("198.51.100.2"))
	ctx := context.Background()

	assert.False(t, rl.Limit(ctx, "/api/v1/links"))
	assert.True(t, rl.Limit(ctx, "/api/v1/links"))
	assert.False(t, rl.Limit(ctx, "/api/v2/links"))
}

func TestRateLimiterRetriesOnConflict(t *testing.T) {
	cfg := tokenBucketConfig(t, 3)
	store := &conflictingStore{Store: NewMemoryStore()}
	store.remaining.Store(2)
	recorder := &countingRecorder{}
	rl := NewRateLimiter(cfg, store,
		WithRecorder(recorder),
		WithMaxRetries(3),
		WithRetryDelay(time.Millisecond),
	)
	rl.SetExtractor(ipExtractor("203.0.113.7"))

	assert.False(t, rl.Limit(context.Background(), "/api/resolve"))
	assert.Equal(t, int32(2), recorder.conflictRetries.Load())
	assert.Equal(t, int32(1), recorder.allowed.Load())
}

func TestRateLimiterGivesUpAfterMaxRetries(t *testing.T) {
	cfg := tokenBucketConfig(t, 3)
	store := &conflictingStore{Store: NewMemoryStore()}
	store.remaining.Store(1000)
	recorder := &countingRecorder{}
	rl := NewRateLimiter(cfg, store,
		WithRecorder(recorder),
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond),
	)
	rl.SetExtractor(ipExtractor("203.0.113.7"))

	// exhausted retries surface as a failed check, which fails open
	assert.False(t, rl.Limit(context.Background(), "/api/resolve"))
	assert.Equal(t, int32(2), recorder.conflictRetries.Load())
	// contention is not a store failure; it gets its own counter
	assert.Equal(t, int32(1), recorder.conflictsExhausted.Load())
	assert.Equal(t, int32(0), recorder.backendErrors.Load())
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	cfg := tokenBucketConfig(t, 3)
	recorder := &countingRecorder{}
	rl := NewRateLimiter(cfg, failingStore{}, WithRecorder(recorder))
	rl.SetExtractor(ipExtractor("203.0.113.7"))

	assert.False(t, rl.Limit(context.Background(), "/api/resolve"))
	assert.Equal(t, int32(1), recorder.backendErrors.Load())
}

func TestRateLimiterWithoutExtractorAllows(t *testing.T) {
	cfg := tokenBucketConfig(t, 1)
	rl := NewRateLimiter(cfg, NewMemoryStore())

	assert.False(t, rl.Limit(context.Background(), "/api/resolve"))
	assert.False(t, rl.Limit(context.Background(), "/api/resolve"))
}

func TestRateLimiterSkipsMissingIdentifiers(t *testing.T) {
	cfg := tokenBucketConfig(t, 1)
	rl := NewRateLimiter(cfg, NewMemoryStore())
	rl.SetExtractor(ipExtractor("")) // identifier never present
	ctx := context.Background()

	assert.False(t, rl.Limit(ctx, "/api/resolve"))
	assert.False(t, rl.Limit(ctx, "/api/resolve"))
}

func TestRateLimiterCountsRequestOncePerRule(t *testing.T) {
	cfg := &Config{
		StorageType: StorageMemory,
		Rules: []Rule{{
			Path:      "/api/resolve",
			Algorithm: AlgorithmTokenBucket,
			Capacity:  10,
			Rate:      1,
			LimitBy:   []string{LimitByIP, LimitByUserID},
		}},
	}
	require.NoError(t, cfg.ValidateAndPrepare())
	recorder := &countingRecorder{}
	rl := NewRateLimiter(cfg, NewMemoryStore(), WithRecorder(recorder))
	rl.SetExtractor(func(ctx context.Context, limitType string) string {
		switch limitType {
		case LimitByIP:
			return "203.0.113.7"
		case LimitByUserID:
			return "u-42"
		}
		return ""
	})

	// one admitted request checks both identifier types but counts once
	assert.False(t, rl.Limit(context.Background(), "/api/resolve"))
	assert.Equal(t, int32(1), recorder.allowed.Load())
}

func TestRateLimiterRecordsDenials(t *testing.T) {
	cfg := tokenBucketConfig(t, 1)
	recorder := &countingRecorder{}
	rl := NewRateLimiter(cfg, NewMemoryStore(), WithRecorder(recorder))
	rl.SetExtractor(ipExtractor("203.0.113.7"))
	ctx := context.Background()

	assert.False(t, rl.Limit(ctx, "/api/resolve"))
	assert.True(t, rl.Limit(ctx, "/api/resolve"))
	assert.Equal(t, int32(1), recorder.allowed.Load())
	assert.Equal(t, int32(1), recorder.denied.Load())
}
