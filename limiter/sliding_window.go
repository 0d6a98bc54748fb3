package limiter

import (
	"fmt"
	"time"
)

// SlidingWindow admits up to Limit cost units per rolling window of
// length Window, estimated from two adjacent fixed slots: the previous
// slot's count is weighted by how much of it still overlaps the rolling
// window. The estimate assumes requests were spread uniformly across
// the previous slot, which keeps state at two counters instead of one
// entry per request.
type SlidingWindow struct {
	Limit  uint32
	Window time.Duration // at least one millisecond, the timestamp granularity
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// SlidingWindowInstance is the persisted counter state for SlidingWindow.
type SlidingWindowInstance struct {
	WindowStart   uint64 // unix ms, aligned down to the window length
	CurrentCount  uint32
	PreviousCount uint32
}

// IsRateLimited implements LimiterType with a cost of 1.
func (sw SlidingWindow) IsRateLimited(value []byte) ([]byte, error) {
	return sw.IsRateLimitedN(value, 1)
}

// IsRateLimitedN is IsRateLimited with an explicit cost.
func (sw SlidingWindow) IsRateLimitedN(value []byte, cost uint32) ([]byte, error) {
	if sw.Window < time.Millisecond {
		return nil, malformedValue(fmt.Errorf("window %s is shorter than the 1ms timestamp granularity", sw.Window))
	}
	var inst SlidingWindowInstance
	if value != nil {
		var err error
		inst, err = decodeSlidingWindow(value)
		if err != nil {
			return nil, err
		}
	}
	err := sw.take(&inst, nowMillis(sw.Now), cost)
	return encodeSlidingWindow(inst), err
}

// WindowInstance implements LimiterType.
func (sw SlidingWindow) WindowInstance(value []byte) (Instance, error) {
	inst, err := decodeSlidingWindow(value)
	if err != nil {
		return Instance{}, err
	}
	return Instance{state: inst}, nil
}

// take applies one request to inst at nowMs. The slot roll-forward is
// kept even on denial; the counts themselves only change on admission.
func (sw SlidingWindow) take(inst *SlidingWindowInstance, nowMs uint64, cost uint32) error {
	window := uint64(sw.Window.Milliseconds())
	bucket := nowMs / window * window
	switch {
	case bucket == inst.WindowStart:
		// same slot, counts stay as they are
	case bucket == inst.WindowStart+window:
		// adjacent slot: the current count becomes the previous one
		inst.PreviousCount = inst.CurrentCount
		inst.CurrentCount = 0
		inst.WindowStart = bucket
	default:
		// idle gap longer than one window, or state from the future
		inst.PreviousCount = 0
		inst.CurrentCount = 0
		inst.WindowStart = bucket
	}

	elapsed := float64(nowMs-bucket) / float64(window) // in [0,1)
	estimated := float64(inst.CurrentCount) + float64(inst.PreviousCount)*(1-elapsed)
	if estimated+float64(cost) <= float64(sw.Limit) {
		inst.CurrentCount += cost
		return nil
	}
	return ErrRateExceeded
}
