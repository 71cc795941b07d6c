// Package tick provides the timing and latching primitives shared by the
// control-loop components. Everything here is advanced exactly once per
// control cycle by the owning component and holds no locks; a Timer or Latch
// is only ever touched by the component that owns it.
package tick

// Timer is a saturating tick counter used for dwell and debounce timing.
// It clamps at its configured maximum and never wraps, so a threshold
// comparison stays true once reached until the timer is reset.
type Timer struct {
	count uint32
	max   uint32
}

// NewTimer returns a Timer that saturates at max.
func NewTimer(max uint32) Timer {
	return Timer{max: max}
}

// Tick increments the counter by one while active, clamping at the maximum.
func (t *Timer) Tick(active bool) {
	if !active {
		return
	}
	if t.count < t.max {
		t.count++
	}
}

// Reset zeroes the counter.
func (t *Timer) Reset() { t.count = 0 }

// Count returns the current tick count.
func (t *Timer) Count() uint32 { return t.count }

// Exceeds reports whether the counter is strictly greater than n.
func (t *Timer) Exceeds(n uint32) bool { return t.count > n }

// AtLeast reports whether the counter has reached n.
func (t *Timer) AtLeast(n uint32) bool { return t.count >= n }
