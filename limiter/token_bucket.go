package limiter

import (
	"math"
	"time"
)

// TokenBucket admits a request when enough tokens are available,
// refilling at RefillRate tokens per second up to Capacity. Tokens are
// real-valued and fractional balances persist across calls, so slow
// steady traffic is not penalized by truncation.
//
// The zero-value instance refills to a full bucket on first use, so an
// absent key starts with Capacity tokens.
type TokenBucket struct {
	Capacity   float64
	RefillRate float64 // tokens per second
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// TokenBucketInstance is the persisted state for TokenBucket.
type TokenBucketInstance struct {
	Tokens     float64
	LastRefill uint64 // unix ms
}

// IsRateLimited implements LimiterType with a cost of 1.
func (tb TokenBucket) IsRateLimited(value []byte) ([]byte, error) {
	return tb.IsRateLimitedN(value, 1)
}

// IsRateLimitedN is IsRateLimited with an explicit cost. Fractional
// costs are allowed.
func (tb TokenBucket) IsRateLimitedN(value []byte, cost float64) ([]byte, error) {
	var inst TokenBucketInstance
	if value != nil {
		var err error
		inst, err = decodeTokenBucket(value)
		if err != nil {
			return nil, err
		}
	}
	err := tb.take(&inst, nowMillis(tb.Now), cost)
	return encodeTokenBucket(inst), err
}

// WindowInstance implements LimiterType.
func (tb TokenBucket) WindowInstance(value []byte) (Instance, error) {
	inst, err := decodeTokenBucket(value)
	if err != nil {
		return Instance{}, err
	}
	return Instance{state: inst}, nil
}

// take applies one request to inst at nowMs. The refill is applied and
// LastRefill advanced even when the request is denied.
func (tb TokenBucket) take(inst *TokenBucketInstance, nowMs uint64, cost float64) error {
	elapsed := elapsedSeconds(inst.LastRefill, nowMs)
	inst.Tokens = math.Min(tb.Capacity, inst.Tokens+elapsed*tb.RefillRate)
	inst.LastRefill = nowMs
	if inst.Tokens >= cost {
		inst.Tokens -= cost
		return nil
	}
	return ErrRateExceeded
}
