// Package homing drives the per-axis homing routine for ClearPath-style servo
// motors that home against a hard stop. Each axis is a small state machine
// advanced once per control cycle; the machine-on precondition is honored
// unconditionally, so losing machine power forces every axis back to
// UNPOWERED on the next cycle no matter what it was doing.
package homing

import (
	"errors"
	"fmt"
	"time"

	"github.com/mastercactapus/ghal/tick"
	"github.com/sirupsen/logrus"
)

// Type selects the homing routine for an axis.
type Type int

const (
	// HardStop jogs the axis into a mechanical stop and waits for the motor
	// feedback to read zero long enough to call it stationary.
	HardStop Type = iota

	// Angle homes to a switch and then to a specific angle. Not yet
	// supported; rejected at setup.
	Angle
)

func (t Type) String() string {
	switch t {
	case HardStop:
		return "hardstop"
	case Angle:
		return "angle"
	default:
		return "unknown"
	}
}

// State is the per-axis homing state.
type State int

const (
	Unpowered State = iota
	Powered
	CyclePowerOff
	CyclePowerOn
	BeginHoming
	Homing
	StopMoving
	Homed
	Ready
)

func (s State) String() string {
	switch s {
	case Unpowered:
		return "UNPOWERED"
	case Powered:
		return "POWERED"
	case CyclePowerOff:
		return "CYCLE_POWER_OFF"
	case CyclePowerOn:
		return "CYCLE_POWER_ON"
	case BeginHoming:
		return "BEGIN_HOMING"
	case Homing:
		return "HOMING"
	case StopMoving:
		return "STOP_MOVING"
	case Homed:
		return "HOMED"
	case Ready:
		return "READY"
	default:
		return "INVALID"
	}
}

var (
	// ErrNoAxes is returned when the axis label set is empty.
	ErrNoAxes = errors.New("homing: no axes configured")

	// ErrTooManyAxes is returned when more axes are configured than labels
	// allow.
	ErrTooManyAxes = errors.New("homing: too many axes configured")

	// ErrAngleUnsupported is returned at setup when an axis requests angle
	// homing, which is declared but not implemented.
	ErrAngleUnsupported = errors.New("homing: angle homing not yet supported")
)

// Config holds the sequencer options. All tick thresholds are counts of
// control cycles.
type Config struct {
	// Axes labels each axis with one character.
	Axes string

	// Types selects the homing routine per axis. Nil means hard-stop
	// homing for every axis.
	Types []Type

	// JogSpeed is the speed commanded while jogging into the hard stop.
	JogSpeed float64

	// CyclePowerTicks is the dwell in each of the power-cycle states,
	// giving the drive time to de-energize and re-energize.
	CyclePowerTicks uint32

	// StoppedTicks is how many consecutive zero-feedback samples are
	// required before the axis is considered stationary against the stop.
	StoppedTicks uint32

	// StopMovingTicks is the dwell after motion stops before the home
	// position is triggered.
	StopMovingTicks uint32

	// HomedTicks is the dwell in HOMED, letting the trigger-home pulse be
	// consumed by downstream motion logic before READY.
	HomedTicks uint32

	// TimerMax caps the dwell timers so they can never wrap.
	TimerMax uint32
}

// DefaultConfig returns the sequencer defaults.
func DefaultConfig() Config {
	return Config{
		Axes:            "x",
		JogSpeed:        5,
		CyclePowerTicks: 10,
		StoppedTicks:    1000,
		StopMovingTicks: 10,
		HomedTicks:      500,
		TimerMax:        6000,
	}
}

// Inputs are the per-axis input signals sampled each cycle.
type Inputs struct {
	// StartHoming triggers the homing routine. The sequencer clears it
	// once the routine begins.
	StartHoming bool

	// Feedback is the motor feedback value; exactly zero means stopped.
	Feedback float64

	// HomeSwitch is reserved for angle homing.
	HomeSwitch bool
}

// Outputs are the per-axis output signals published each cycle.
type Outputs struct {
	// TriggerHome pulses for one dwell to trigger the downstream homing
	// bookkeeping.
	TriggerHome bool

	// Homed is true once the axis has completed the routine.
	Homed bool

	// Homing is true for the duration of the routine.
	Homing bool

	// Moving is true while jogging into the stop.
	Moving bool

	// Speed is the commanded jog speed.
	Speed float64

	// Enable drives the motor enable for this axis.
	Enable bool
}

// Axis holds the state for one configured axis. It is created by the
// Sequencer at setup and mutated only by the sequencer's own Update.
type Axis struct {
	label byte
	typ   Type

	state   State
	cycles  tick.Timer // ticks spent in the current state
	stopped tick.Timer // consecutive zero-feedback samples while homing

	In  Inputs
	Out Outputs
}

// Label returns the axis label character.
func (a *Axis) Label() string { return string(a.label) }

// State returns the current homing state.
func (a *Axis) State() State { return a.state }

// Sequencer advances every configured axis once per control cycle.
type Sequencer struct {
	cfg Config
	log *logrus.Entry

	// MachineOn is the machine power precondition, published by the
	// safety interlock. While false every axis is forced to UNPOWERED.
	MachineOn bool

	axes []*Axis
}

// New validates cfg and creates a sequencer with one Axis per label.
func New(cfg Config, log *logrus.Entry) (*Sequencer, error) {
	if cfg.Axes == "" {
		return nil, ErrNoAxes
	}
	if len(cfg.Axes) > 26 {
		return nil, ErrTooManyAxes
	}
	if cfg.Types != nil && len(cfg.Types) != len(cfg.Axes) {
		return nil, fmt.Errorf("homing: %d axes but %d homing types", len(cfg.Axes), len(cfg.Types))
	}

	s := &Sequencer{cfg: cfg, log: log}
	for i := 0; i < len(cfg.Axes); i++ {
		typ := HardStop
		if cfg.Types != nil {
			typ = cfg.Types[i]
		}
		switch typ {
		case HardStop:
		case Angle:
			return nil, fmt.Errorf("%w (axis %c)", ErrAngleUnsupported, cfg.Axes[i])
		default:
			return nil, fmt.Errorf("homing: unknown homing type %d (axis %c)", typ, cfg.Axes[i])
		}
		s.axes = append(s.axes, &Axis{
			label:   cfg.Axes[i],
			typ:     typ,
			cycles:  tick.NewTimer(cfg.TimerMax),
			stopped: tick.NewTimer(cfg.TimerMax),
		})
	}
	return s, nil
}

// Axes returns the configured axes in label order.
func (s *Sequencer) Axes() []*Axis { return s.axes }

// Axis returns the axis with the given label, or nil.
func (s *Sequencer) Axis(label byte) *Axis {
	for _, a := range s.axes {
		if a.label == label {
			return a
		}
	}
	return nil
}

// Update advances every axis one cycle. The new state is computed first and
// outputs are written as a pure function of the new state.
func (s *Sequencer) Update(period time.Duration) {
	for _, a := range s.axes {
		s.updateAxis(a)
	}
}

func (s *Sequencer) updateAxis(a *Axis) {
	if a.typ != HardStop {
		// unreachable when constructed through New; report and leave
		// outputs untouched for this cycle
		s.log.Errorf("axis %c: unknown homing type %d", a.label, a.typ)
		return
	}

	state := a.state
	newState := state

	if !s.MachineOn {
		newState = Unpowered
	} else {
		// debounced stop detection: the sample counts before the
		// transition check so the Nth consecutive zero transitions on
		// the Nth cycle, and any motion resets the count
		if state == Homing {
			if a.In.Feedback == 0 {
				a.stopped.Tick(true)
			} else {
				a.stopped.Reset()
			}
		}

		switch state {
		case Unpowered:
			newState = Powered
		case Powered:
			if a.In.StartHoming {
				newState = CyclePowerOff
			}
		case CyclePowerOff:
			if a.cycles.AtLeast(s.cfg.CyclePowerTicks) {
				newState = CyclePowerOn
			}
		case CyclePowerOn:
			if a.cycles.AtLeast(s.cfg.CyclePowerTicks) {
				newState = BeginHoming
				a.stopped.Reset()
			}
		case BeginHoming:
			newState = Homing
		case Homing:
			if a.stopped.AtLeast(s.cfg.StoppedTicks) {
				newState = StopMoving
			}
		case StopMoving:
			if a.cycles.AtLeast(s.cfg.StopMovingTicks) {
				newState = Homed
			}
		case Homed:
			if a.cycles.AtLeast(s.cfg.HomedTicks) {
				newState = Ready
			}
		case Ready:
			if a.In.StartHoming {
				newState = CyclePowerOff
			}
		}
	}

	if newState != state {
		a.cycles.Reset()
		s.log.Debugf("axis %c: %s -> %s", a.label, state, newState)
	} else {
		a.cycles.Tick(true)
	}
	a.state = newState

	switch newState {
	case Unpowered:
		a.Out = Outputs{}
	case Powered:
		a.Out = Outputs{Enable: true}
	case CyclePowerOff:
		a.Out = Outputs{Homing: true}
		a.In.StartHoming = false
	case CyclePowerOn:
		a.Out = Outputs{Homing: true, Enable: true}
	case BeginHoming, Homing:
		a.Out = Outputs{Homing: true, Moving: true, Speed: s.cfg.JogSpeed, Enable: true}
	case StopMoving:
		a.Out = Outputs{Homing: true, Enable: true}
	case Homed:
		a.Out = Outputs{TriggerHome: true, Enable: true}
	case Ready:
		a.Out = Outputs{Homed: true, Enable: true}
	}
}
