package limiter

import (
	"fmt"
	"time"
)

// FixedWindow admits up to Limit cost units per fixed window of length
// Window. Two bursts straddling a window boundary can together exceed
// Limit within a short real interval; that is an inherent property of
// fixed windows, not a defect.
type FixedWindow struct {
	Limit  uint32
	Window time.Duration // at least one millisecond, the timestamp granularity
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// FixedWindowInstance is the persisted counter state for FixedWindow.
type FixedWindowInstance struct {
	WindowStart uint64 // unix ms, aligned down to the window length
	Count       uint32
}

// IsRateLimited implements LimiterType with a cost of 1.
func (fw FixedWindow) IsRateLimited(value []byte) ([]byte, error) {
	return fw.IsRateLimitedN(value, 1)
}

// IsRateLimitedN is IsRateLimited with an explicit cost.
func (fw FixedWindow) IsRateLimitedN(value []byte, cost uint32) ([]byte, error) {
	if fw.Window < time.Millisecond {
		return nil, malformedValue(fmt.Errorf("window %s is shorter than the 1ms timestamp granularity", fw.Window))
	}
	var inst FixedWindowInstance
	if value != nil {
		var err error
		inst, err = decodeFixedWindow(value)
		if err != nil {
			return nil, err
		}
	}
	err := fw.take(&inst, nowMillis(fw.Now), cost)
	return encodeFixedWindow(inst), err
}

// WindowInstance implements LimiterType.
func (fw FixedWindow) WindowInstance(value []byte) (Instance, error) {
	inst, err := decodeFixedWindow(value)
	if err != nil {
		return Instance{}, err
	}
	return Instance{state: inst}, nil
}

// take applies one request to inst at nowMs. It mutates inst even on
// denial: an expired window is always rolled over.
func (fw FixedWindow) take(inst *FixedWindowInstance, nowMs uint64, cost uint32) error {
	window := uint64(fw.Window.Milliseconds())
	bucket := nowMs / window * window
	if bucket != inst.WindowStart {
		inst.WindowStart = bucket
		inst.Count = 0
	}
	if uint64(inst.Count)+uint64(cost) <= uint64(fw.Limit) {
		inst.Count += cost
		return nil
	}
	return ErrRateExceeded
}
