package limiter

import (
	"math"
	"time"
)

// LeakyBucket admits a request when it fits in the bucket, which drains
// at LeakRate cost units per second. It bounds burst size by Capacity
// rather than by a time window and smooths admitted work. Levels are
// real-valued; fractional drain persists across calls.
type LeakyBucket struct {
	Capacity float64
	LeakRate float64 // cost units drained per second
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// LeakyBucketInstance is the persisted state for LeakyBucket.
type LeakyBucketInstance struct {
	Level    float64
	LastLeak uint64 // unix ms
}

// IsRateLimited implements LimiterType with a cost of 1.
func (lb LeakyBucket) IsRateLimited(value []byte) ([]byte, error) {
	return lb.IsRateLimitedN(value, 1)
}

// IsRateLimitedN is IsRateLimited with an explicit cost. Fractional
// costs are allowed.
func (lb LeakyBucket) IsRateLimitedN(value []byte, cost float64) ([]byte, error) {
	var inst LeakyBucketInstance
	if value != nil {
		var err error
		inst, err = decodeLeakyBucket(value)
		if err != nil {
			return nil, err
		}
	}
	err := lb.take(&inst, nowMillis(lb.Now), cost)
	return encodeLeakyBucket(inst), err
}

// WindowInstance implements LimiterType.
func (lb LeakyBucket) WindowInstance(value []byte) (Instance, error) {
	inst, err := decodeLeakyBucket(value)
	if err != nil {
		return Instance{}, err
	}
	return Instance{state: inst}, nil
}

// take applies one request to inst at nowMs. The leak step is applied
// and LastLeak advanced even when the request is denied.
func (lb LeakyBucket) take(inst *LeakyBucketInstance, nowMs uint64, cost float64) error {
	elapsed := elapsedSeconds(inst.LastLeak, nowMs)
	inst.Level = math.Max(0, inst.Level-elapsed*lb.LeakRate)
	inst.LastLeak = nowMs
	if inst.Level+cost <= lb.Capacity {
		inst.Level += cost
		return nil
	}
	return ErrRateExceeded
}
