package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultMaxRetries bounds how often a decide cycle is repeated after
	// a conflicting concurrent write before giving up on the request.
	defaultMaxRetries = 3
	// defaultRetryDelay is the wait between conflict retries.
	defaultRetryDelay = 5 * time.Millisecond
)

// Extractor returns the identifier value for a limit_by type, or ""
// when the identifier is not present on this request.
type Extractor func(ctx context.Context, limitType string) string

// RateLimiter matches requests against the configured rules and runs
// the read-decide-write cycle against the store. The decision functions
// themselves never touch the store and never retry; conflict retries
// live here, in the calling layer, where they are bounded and
// context-aware.
type RateLimiter struct {
	config       *Config
	store        Store
	extractValue Extractor // function to extract identifier value from context
	recorder     Recorder
	maxRetries   int
	retryDelay   time.Duration
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithRecorder injects a metrics backend. Default is a no-op.
func WithRecorder(recorder Recorder) Option {
	return func(rl *RateLimiter) {
		if recorder != nil {
			rl.recorder = recorder
		}
	}
}

// WithMaxRetries sets how many times the decide cycle is repeated after
// a conflicting concurrent write. Retrying is always safe: the decision
// functions are pure, so a retry has no side effects beyond the
// persisted counters. Default is 3.
func WithMaxRetries(retries int) Option {
	return func(rl *RateLimiter) {
		if retries >= 0 {
			rl.maxRetries = retries
		}
	}
}

// WithRetryDelay sets the wait between conflict retries. Default is 5ms.
func WithRetryDelay(delay time.Duration) Option {
	return func(rl *RateLimiter) {
		if delay > 0 {
			rl.retryDelay = delay
		}
	}
}

// NewRateLimiter creates a new RateLimiter instance.
// cfg must have been prepared with ValidateAndPrepare (LoadConfig does
// this).
func NewRateLimiter(cfg *Config, store Store, options ...Option) *RateLimiter {
	rl := &RateLimiter{
		config:     cfg,
		store:      store,
		recorder:   NoopRecorder{},
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range options {
		opt(rl)
	}
	return rl
}

// SetExtractor sets the function to extract identifier values from the context.
func (rl *RateLimiter) SetExtractor(extractor Extractor) {
	rl.extractValue = extractor
}

// Limit checks if the request is allowed based on the rate limiting rules.
// It returns true when the request must be throttled.
func (rl *RateLimiter) Limit(ctx context.Context, path string) bool {
	if rl.extractValue == nil {
		log.Error().Msg("extractor function not set, cannot limit requests")
		return false // stop processing, request is allowed
	}

	for i := range rl.config.Rules {
		rule := &rl.config.Rules[i]
		if !rl.pathMatches(path, rule) {
			continue
		}
		log.Debug().Str("path", path).Str("rule_path", rule.Path).Msg("matched rule")

		limited, err := rl.applyRuleLimits(ctx, rule)
		if err != nil {
			// fail open: a broken store must not take the service down with it
			log.Error().Err(err).Str("path", path).Str("rule_path", rule.Path).Msg("rate limit check failed")
			if errors.Is(err, ErrBackendConflict) {
				// retries exhausted under write contention; the store itself is healthy
				rl.recorder.ConflictExhausted(rule.Path)
			} else {
				rl.recorder.BackendError(rule.Path)
			}
			return false
		}

		if limited {
			log.Warn().Str("path", path).Str("rule_path", rule.Path).Msg("rate limit triggered for rule")
			return true // stop processing, request is denied
		}
	}

	return false
}

// pathMatches checks if the request path matches the rule's path (exact or regex).
func (rl *RateLimiter) pathMatches(requestPath string, rule *Rule) bool {
	if rule.IsRegex {
		return rule.compiledRegex != nil && rule.compiledRegex.MatchString(requestPath)
	}
	return rule.Path == requestPath
}

// applyRuleLimits checks limits for all LimitBy types specified in the rule.
// Returns true if rate limited, false otherwise. Error if the store fails.
func (rl *RateLimiter) applyRuleLimits(ctx context.Context, rule *Rule) (bool, error) {
	for _, limitType := range rule.LimitBy {
		value := rl.extractValue(ctx, limitType)
		if value == "" {
			// identifier missing (e.g. header not present): skip limiting by this type
			log.Debug().Str("rule_path", rule.Path).Str("limit_by", limitType).Msg("identifier value missing, skipping this limit type")
			continue
		}

		key := generateStoreKey(rule, limitType, value)

		allowed, err := rl.allowKey(ctx, key, rule.Path, rule.limiter)
		if err != nil {
			return false, fmt.Errorf("store error for key %s: %w", key, err)
		}

		if !allowed {
			log.Warn().Str("key", key).Str("limit_type", limitType).Str("rule_path", rule.Path).Msg("rate limit exceeded for identifier")
			rl.recorder.Denied(rule.Path)
			return true, nil // limited
		}
	}
	// passed all limit checks for this rule; one request counts once,
	// however many identifier types the rule keys on
	rl.recorder.Allowed(rule.Path)
	return false, nil
}

// allowKey runs one read-decide-write cycle for a subject key, repeating
// it when a concurrent writer invalidates the concurrency token.
func (rl *RateLimiter) allowKey(ctx context.Context, key, rulePath string, lt LimiterType) (bool, error) {
	for attempt := 0; ; attempt++ {
		value, token, err := rl.store.Get(ctx, key)
		if err != nil {
			return false, err
		}

		newValue, err := lt.IsRateLimited(value)
		if errors.Is(err, ErrRateExceeded) {
			// Persist the refreshed state (rolled-over window, advanced
			// refill timestamp) best effort. A conflict here just means
			// another caller already wrote fresher state.
			if casErr := rl.store.CompareAndSwap(ctx, key, token, newValue); casErr != nil && !errors.Is(casErr, ErrBackendConflict) {
				log.Debug().Err(casErr).Str("key", key).Msg("failed to persist state refresh on denial")
			}
			return false, nil
		}
		if err != nil {
			return false, err
		}

		err = rl.store.CompareAndSwap(ctx, key, token, newValue)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, ErrBackendConflict) {
			return false, err
		}
		if attempt >= rl.maxRetries {
			return false, err // give up, surface the conflict
		}
		rl.recorder.ConflictRetry(rulePath)
		log.Debug().Str("key", key).Int("attempt", attempt+1).Msg("concurrent write detected, retrying decide cycle")

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(rl.retryDelay):
		}
	}
}

// generateStoreKey creates a unique string key for the store.
// Format: rule:<Rule.Path>|by:<LimitType>|val:<Value>
func generateStoreKey(rule *Rule, limitType string, value string) string {
	// Using rule.Path provides uniqueness between rules.
	return fmt.Sprintf("rule:%s|by:%s|val:%s", rule.Path, limitType, value)
}
