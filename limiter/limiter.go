package limiter

import (
	"fmt"
	"time"
)

// LimiterType is the capability set shared by the four rate limiting
// algorithms. Implementations are value types holding policy parameters
// only; all per-subject state lives in the encoded value, so a single
// LimiterType can serve any number of subject keys and is safe for
// concurrent use.
type LimiterType interface {
	// IsRateLimited decides a unit-cost request against the persisted
	// state in value and returns the new encoded state on admission.
	// A nil value means no state exists yet and is treated as the
	// initial state. On denial the returned error is ErrRateExceeded and
	// the returned bytes carry the refreshed state (rolled-over window,
	// advanced refill timestamp); callers may persist or discard them.
	// Undecodable state fails with ErrMalformedValue.
	IsRateLimited(value []byte) ([]byte, error)

	// WindowInstance decodes value into the algorithm's concrete state
	// without making an admission decision, for callers that want to
	// inspect or modify state directly.
	WindowInstance(value []byte) (Instance, error)
}

var (
	_ LimiterType = FixedWindow{}
	_ LimiterType = SlidingWindow{}
	_ LimiterType = TokenBucket{}
	_ LimiterType = LeakyBucket{}
)

// Instance is a closed union over the four concrete state types.
// Generic code holds an Instance; algorithm-specific code recovers the
// precise type through the As* accessors, which fail with
// ErrMalformedValue instead of reinterpreting a different variant.
type Instance struct {
	state any
}

// Algorithm returns the algorithm name of the held state, or "" for a
// zero Instance.
func (i Instance) Algorithm() string {
	switch i.state.(type) {
	case FixedWindowInstance:
		return AlgorithmFixedWindow
	case SlidingWindowInstance:
		return AlgorithmSlidingWindow
	case TokenBucketInstance:
		return AlgorithmTokenBucket
	case LeakyBucketInstance:
		return AlgorithmLeakyBucket
	}
	return ""
}

// AsFixedWindow extracts the fixed window state from the union.
func (i Instance) AsFixedWindow() (FixedWindowInstance, error) {
	inst, ok := i.state.(FixedWindowInstance)
	if !ok {
		return FixedWindowInstance{}, wrongVariant(i, AlgorithmFixedWindow)
	}
	return inst, nil
}

// AsSlidingWindow extracts the sliding window state from the union.
func (i Instance) AsSlidingWindow() (SlidingWindowInstance, error) {
	inst, ok := i.state.(SlidingWindowInstance)
	if !ok {
		return SlidingWindowInstance{}, wrongVariant(i, AlgorithmSlidingWindow)
	}
	return inst, nil
}

// AsTokenBucket extracts the token bucket state from the union.
func (i Instance) AsTokenBucket() (TokenBucketInstance, error) {
	inst, ok := i.state.(TokenBucketInstance)
	if !ok {
		return TokenBucketInstance{}, wrongVariant(i, AlgorithmTokenBucket)
	}
	return inst, nil
}

// AsLeakyBucket extracts the leaky bucket state from the union.
func (i Instance) AsLeakyBucket() (LeakyBucketInstance, error) {
	inst, ok := i.state.(LeakyBucketInstance)
	if !ok {
		return LeakyBucketInstance{}, wrongVariant(i, AlgorithmLeakyBucket)
	}
	return inst, nil
}

func wrongVariant(i Instance, want string) error {
	held := i.Algorithm()
	if held == "" {
		held = "nothing"
	}
	return malformedValue(fmt.Errorf("instance holds %s, not %s", held, want))
}

// nowMillis resolves the injected clock (nil means time.Now) to a unix
// millisecond timestamp, the unit all persisted state uses.
func nowMillis(now func() time.Time) uint64 {
	if now == nil {
		now = time.Now
	}
	return uint64(now().UnixMilli())
}

// elapsedSeconds converts the gap between two unix millisecond
// timestamps to float seconds, clamped to zero to tolerate clock skew.
func elapsedSeconds(last, now uint64) float64 {
	if now <= last {
		return 0
	}
	return float64(now-last) / 1000
}
