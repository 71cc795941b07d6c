package tick

// Latch is sticky boolean memory. It sets on a rising edge of its driving
// condition and stays set until explicitly cleared; the condition going false
// never clears it. Update returns true exactly once per latch cycle so the
// owning component can emit a diagnostic a single time no matter how long the
// condition persists.
type Latch struct {
	latched bool
}

// Update latches on cond and reports the rising edge.
func (l *Latch) Update(cond bool) (rising bool) {
	if cond && !l.latched {
		l.latched = true
		return true
	}
	return false
}

// Latched returns the sticky state.
func (l *Latch) Latched() bool { return l.latched }

// Clear forces the latch low. Intended to be called only from a reset
// sequence.
func (l *Latch) Clear() { l.latched = false }

// Edge detects rising and falling transitions of a sampled boolean.
type Edge struct {
	last bool
}

// Rising samples v and reports a false→true transition.
func (e *Edge) Rising(v bool) bool {
	rose := v && !e.last
	e.last = v
	return rose
}

// Falling samples v and reports a true→false transition.
func (e *Edge) Falling(v bool) bool {
	fell := !v && e.last
	e.last = v
	return fell
}
