// Package torque converts the PWM feedback from ClearPath motors into torque
// percentages and derives the per-axis fault bit consumed by the safety
// interlock. The fault bit is transient: latching is the interlock's job.
package torque

import (
	"errors"
	"time"
	"unicode"

	"github.com/mastercactapus/ghal/tick"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoAxes is returned when the axis label set is empty.
	ErrNoAxes = errors.New("torque: no axes configured")

	// ErrTooManyAxes is returned when more axes are configured than labels
	// allow.
	ErrTooManyAxes = errors.New("torque: too many axes configured")
)

// Config holds the monitor options.
type Config struct {
	// Axes labels each axis with one character.
	Axes string

	// DutyMin and DutyMax bound the valid duty-cycle range. The drive
	// folds torque into [DutyMin,DutyMax] around the 50% center; a duty
	// cycle pinned outside the range means the drive is off or faulted.
	DutyMin float64
	DutyMax float64

	// NominalHz is the PWM carrier frequency of a healthy drive. A
	// measured carrier is used to correct the duty sample before the
	// torque fold, since the capture integrates on-time against the
	// nominal period.
	NominalHz float64

	// FaultHz is the carrier frequency below which the drive is
	// considered to have dropped into its fault signature.
	FaultHz float64

	// FaultTicks is how many consecutive bad samples are required before
	// the fault bit asserts.
	FaultTicks uint32

	// TimerMax caps the debounce timer.
	TimerMax uint32
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		Axes:       "x",
		DutyMin:    0.05,
		DutyMax:    0.95,
		NominalHz:  482,
		FaultHz:    100,
		FaultTicks: 10,
		TimerMax:   6000,
	}
}

// Inputs are the per-axis raw samples.
type Inputs struct {
	// DutyCycle is the measured PWM duty cycle, 0..1.
	DutyCycle float64

	// Frequency is the measured PWM carrier in Hz; 0 means no
	// measurement.
	Frequency float64

	// Ratio scales the torque output.
	Ratio float64
}

// Outputs are the per-axis derived values.
type Outputs struct {
	// Torque is the ratio-scaled torque fraction.
	Torque float64

	// Fault is the debounced fault bit.
	Fault bool
}

// Axis holds the monitor state for one axis.
type Axis struct {
	label byte
	bad   tick.Timer
	edge  tick.Edge

	In  Inputs
	Out Outputs
}

// Label returns the axis label character.
func (a *Axis) Label() string { return string(a.label) }

// Monitor derives torque and fault bits for every configured axis.
type Monitor struct {
	cfg  Config
	log  *logrus.Entry
	axes []*Axis
}

// New validates cfg and creates a monitor with one Axis per label.
func New(cfg Config, log *logrus.Entry) (*Monitor, error) {
	if cfg.Axes == "" {
		return nil, ErrNoAxes
	}
	if len(cfg.Axes) > 26 {
		return nil, ErrTooManyAxes
	}

	m := &Monitor{cfg: cfg, log: log}
	for i := 0; i < len(cfg.Axes); i++ {
		a := &Axis{
			label: cfg.Axes[i],
			bad:   tick.NewTimer(cfg.TimerMax),
		}
		a.In.Ratio = 1
		m.axes = append(m.axes, a)
	}
	return m, nil
}

// Axes returns the configured axes in label order.
func (m *Monitor) Axes() []*Axis { return m.axes }

// Axis returns the axis with the given label, or nil.
func (m *Monitor) Axis(label byte) *Axis {
	for _, a := range m.axes {
		if a.label == label {
			return a
		}
	}
	return nil
}

// Update samples every axis once.
func (m *Monitor) Update(period time.Duration) {
	for _, a := range m.axes {
		m.updateAxis(a)
	}
}

func (m *Monitor) updateAxis(a *Axis) {
	d := a.In.DutyCycle
	if a.In.Frequency > 0 && m.cfg.NominalHz > 0 {
		d *= m.cfg.NominalHz / a.In.Frequency
	}

	// torque folds toward both rails from the 50% center
	var t float64
	if d >= m.cfg.DutyMin && d <= m.cfg.DutyMax {
		if d < 0.5 {
			t = 1 - (d-m.cfg.DutyMin)/(0.5-m.cfg.DutyMin)
		} else {
			t = (d - 0.5) / (m.cfg.DutyMax - 0.5)
		}
	}
	a.Out.Torque = a.In.Ratio * t

	bad := d < m.cfg.DutyMin || d > m.cfg.DutyMax ||
		(a.In.Frequency > 0 && a.In.Frequency < m.cfg.FaultHz)
	if bad {
		a.bad.Tick(true)
	} else {
		a.bad.Reset()
	}
	a.Out.Fault = a.bad.AtLeast(m.cfg.FaultTicks)

	if a.edge.Rising(a.Out.Fault) {
		m.log.Warnf("motor %c PWM fault signature", unicode.ToUpper(rune(a.label)))
	}
}
