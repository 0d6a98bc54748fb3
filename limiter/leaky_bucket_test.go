package limiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeakyBucketDrainAdmits(t *testing.T) {
	lb := LeakyBucket{Capacity: 5, LeakRate: 1}

	// full bucket: one more unit does not fit
	state := encodeLeakyBucket(LeakyBucketInstance{Level: 5, LastLeak: 10_000})
	lb.Now = fixedClock(10_000)
	refreshed, err := lb.IsRateLimited(state)
	require.ErrorIs(t, err, ErrRateExceeded)
	require.NotNil(t, refreshed)

	// after one second the level has decayed to 4 and the unit fits
	lb.Now = fixedClock(11_000)
	value, err := lb.IsRateLimited(state)
	require.NoError(t, err)

	inst, err := lb.WindowInstance(value)
	require.NoError(t, err)
	b, err := inst.AsLeakyBucket()
	require.NoError(t, err)
	assert.InDelta(t, 5, b.Level, 1e-9)
	assert.Equal(t, uint64(11_000), b.LastLeak)
}

func TestLeakyBucketLevelNeverGoesNegative(t *testing.T) {
	lb := LeakyBucket{Capacity: 5, LeakRate: 1, Now: fixedClock(1_000_000)}
	state := encodeLeakyBucket(LeakyBucketInstance{Level: 2, LastLeak: 0})

	value, err := lb.IsRateLimited(state)
	require.NoError(t, err)

	inst, err := lb.WindowInstance(value)
	require.NoError(t, err)
	b, err := inst.AsLeakyBucket()
	require.NoError(t, err)
	assert.InDelta(t, 1, b.Level, 1e-9)
}

func TestLeakyBucketDenialKeepsLeakStep(t *testing.T) {
	lb := LeakyBucket{Capacity: 5, LeakRate: 1, Now: fixedClock(10_500)}
	state := encodeLeakyBucket(LeakyBucketInstance{Level: 5, LastLeak: 10_000})

	// 0.5s drains half a unit; a full unit still does not fit
	refreshed, err := lb.IsRateLimited(state)
	require.ErrorIs(t, err, ErrRateExceeded)

	inst, err := lb.WindowInstance(refreshed)
	require.NoError(t, err)
	b, err := inst.AsLeakyBucket()
	require.NoError(t, err)
	assert.InDelta(t, 4.5, b.Level, 1e-9)
	assert.Equal(t, uint64(10_500), b.LastLeak)
}

func TestLeakyBucketFractionalCost(t *testing.T) {
	lb := LeakyBucket{Capacity: 1, LeakRate: 0.25, Now: fixedClock(0)}

	value, err := lb.IsRateLimitedN(nil, 0.75)
	require.NoError(t, err)

	// 0.75 + 0.5 > 1
	_, err = lb.IsRateLimitedN(value, 0.5)
	require.ErrorIs(t, err, ErrRateExceeded)

	// 0.75 + 0.25 == 1, the boundary is inclusive
	value, err = lb.IsRateLimitedN(value, 0.25)
	require.NoError(t, err)

	inst, err := lb.WindowInstance(value)
	require.NoError(t, err)
	b, err := inst.AsLeakyBucket()
	require.NoError(t, err)
	assert.InDelta(t, 1, b.Level, 1e-9)
}

func TestLeakyBucketEmptyStateAdmitsUpToCapacity(t *testing.T) {
	lb := LeakyBucket{Capacity: 3, LeakRate: 1, Now: fixedClock(50_000)}

	var value []byte
	var err error
	for i := 0; i < 3; i++ {
		value, err = lb.IsRateLimited(value)
		require.NoError(t, err, "request %d", i)
	}
	_, err = lb.IsRateLimited(value)
	require.ErrorIs(t, err, ErrRateExceeded)
}
