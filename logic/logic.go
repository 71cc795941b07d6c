// Package logic holds the small glue components that wire signals together:
// wide AND gates, self-resetting pins, one-shot operator messages and the
// probe guard.
package logic

import (
	"errors"
	"time"

	"github.com/mastercactapus/ghal/tick"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTooFewInputs is returned for an AND gate narrower than 2.
	ErrTooFewInputs = errors.New("logic: and gate needs at least 2 inputs")

	// ErrTooManyInputs is returned for an AND gate wider than 128.
	ErrTooManyInputs = errors.New("logic: and gate limited to 128 inputs")

	// ErrBadLevel is returned for a message level outside Error..Debug.
	ErrBadLevel = errors.New("logic: message level out of range")
)

// And is a wide AND gate.
type And struct {
	In  []bool
	Out bool
}

// NewAnd allocates a gate with n inputs, all initialized to def.
func NewAnd(n int, def bool) (*And, error) {
	if n < 2 {
		return nil, ErrTooFewInputs
	}
	if n > 128 {
		return nil, ErrTooManyInputs
	}
	a := &And{In: make([]bool, n)}
	for i := range a.In {
		a.In[i] = def
	}
	return a, nil
}

// Update recomputes the output.
func (a *And) Update(period time.Duration) {
	for _, v := range a.In {
		if !v {
			a.Out = false
			return
		}
	}
	a.Out = true
}

// ResetPin echoes its input, forcing it back to Value once it has disagreed
// for longer than Delay. It turns a level signal into a self-clearing pulse.
type ResetPin struct {
	// Value is the resting state the input is forced back to.
	Value bool

	// Delay is how long the input may disagree with Value.
	Delay time.Duration

	elapsed time.Duration

	In  bool
	Out bool
}

// NewResetPin returns a pin resting at value.
func NewResetPin(value bool, delay time.Duration) *ResetPin {
	return &ResetPin{Value: value, Delay: delay, In: value}
}

// Update advances the pin one control cycle.
func (p *ResetPin) Update(period time.Duration) {
	if p.In == p.Value {
		p.elapsed = 0
	} else {
		p.elapsed += period
		if p.elapsed > p.Delay {
			p.In = p.Value
		}
	}
	p.Out = p.In
}

// Message logs a fixed operator message once per rising edge of its input.
type Message struct {
	log   *logrus.Entry
	level logrus.Level
	text  string
	edge  tick.Edge

	In bool
}

// NewMessage validates the level and returns a message trigger.
func NewMessage(log *logrus.Entry, level logrus.Level, text string) (*Message, error) {
	if level < logrus.ErrorLevel || level > logrus.DebugLevel {
		return nil, ErrBadLevel
	}
	return &Message{log: log, level: level, text: text}, nil
}

// Update logs on a low-to-high transition of the input.
func (m *Message) Update(period time.Duration) {
	if m.edge.Rising(m.In) {
		m.log.Log(m.level, m.text)
	}
}

// MotionTypeProbing is the motion controller's code for a probing move.
const MotionTypeProbing = 5

// ProbeGuard aborts motion when a probing move starts while the probe reports
// an error.
type ProbeGuard struct {
	log  *logrus.Entry
	edge tick.Edge

	In struct {
		MotionType int32
		ProbeError bool
		ProbeOn    bool
	}
	Out struct {
		Abort bool
	}
}

// NewProbeGuard returns a guard logging through log.
func NewProbeGuard(log *logrus.Entry) *ProbeGuard {
	return &ProbeGuard{log: log}
}

// Update advances the guard one control cycle.
func (g *ProbeGuard) Update(period time.Duration) {
	g.Out.Abort = g.In.ProbeOn && g.In.MotionType == MotionTypeProbing && g.In.ProbeError
	if g.edge.Rising(g.Out.Abort) {
		g.log.Error("Probe is in an error state. Ensure the probe is charged and has line of sight to a receiver.")
	}
}
