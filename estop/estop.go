// Package estop implements the fault-latching safety interlock for the
// machine. It aggregates per-axis motor faults, following errors, spindle
// health and the physical E-Stop button into one global emergency-stop
// decision, and runs the time-gated reset sequence that is the only way to
// clear a latched fault.
//
// The controller is advanced once per control cycle. Faults are latched: a
// condition that appears for a single cycle keeps the machine in E-Stop until
// a full reset completes, never because the condition went away on its own.
package estop

import (
	"errors"
	"time"
	"unicode"

	"github.com/mastercactapus/ghal/tick"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoAxes is returned when the axis label set is empty.
	ErrNoAxes = errors.New("estop: no axes configured")

	// ErrTooManyAxes is returned when more axes are configured than labels
	// allow.
	ErrTooManyAxes = errors.New("estop: too many axes configured")
)

// Config holds the interlock thresholds. All are counts of control cycles.
type Config struct {
	// Axes labels each monitored axis with one character.
	Axes string

	// DisableMotorTicks is how long motor enables are held low at the
	// start of a reset, forcing a power cycle of the drives.
	DisableMotorTicks uint32

	// ResetTicks is how long after a reset request the latched faults are
	// actually cleared, giving the drives time to come back up.
	ResetTicks uint32

	// MachineOnTicks delays machine-on past the reset itself; toggling it
	// together with emc-enable does not reliably register downstream.
	MachineOnTicks uint32

	// StartupTicks is the settle window after startup or a button release
	// during which motor and spindle faults are not trusted, since
	// unpowered drives report faults.
	StartupTicks uint32

	// UnhomeTicks is how long the machine must have been in E-Stop before
	// axes are forced to lose their home status.
	UnhomeTicks uint32

	// TimerMax caps every timer so a dwell comparison can never wrap back
	// to false.
	TimerMax uint32
}

// DefaultConfig returns the interlock defaults.
func DefaultConfig() Config {
	return Config{
		Axes:              "xyzbc",
		DisableMotorTicks: 100,
		ResetTicks:        1000,
		MachineOnTicks:    1100,
		StartupTicks:      3000,
		UnhomeTicks:       100,
		TimerMax:          6000,
	}
}

// Inputs are the monitored signals, written by the host wiring before each
// Update.
type Inputs struct {
	// MotorFault reports the per-axis fault bit from the drive, as
	// produced by the torque monitor.
	MotorFault []bool

	// FollowingError reports the per-axis following-error flag. Unlike
	// motor faults these are trusted regardless of power state and are
	// never masked.
	FollowingError []bool

	// Button is the physical E-Stop button that cuts motor power via a
	// relay.
	Button bool

	// SpindleErrorCode is the error code reported by the spindle VFD;
	// nonzero is a fault.
	SpindleErrorCode int32

	// SpindleModbusOK reports whether the modbus link to the VFD is up.
	SpindleModbusOK bool

	// IgnoreComErrors suppresses motor and spindle communication faults
	// entirely, for running without drives attached.
	IgnoreComErrors bool

	// UserEnable mirrors the host's user-enable-out.
	UserEnable bool

	// UserRequestEnable is pulsed when the user asks to reset E-Stop.
	UserRequestEnable bool
}

// Outputs are the derived signals published after each Update.
type Outputs struct {
	// EmcEnable is false while in E-Stop.
	EmcEnable bool

	// UserRequestedEnable is the latched echo of a reset request; it
	// holds until the reset sequence completes.
	UserRequestedEnable bool

	// MachineOn turns the machine on, delayed past emc-enable.
	MachineOn bool

	// MotorEnable is the per-axis motor enable, cycled during a reset.
	MotorEnable []bool

	// Power can drive the same relay as the physical button. Reserved;
	// held high.
	Power bool

	// Unhome forces axes to lose home status after a dwell in E-Stop,
	// since the physical stop may have occurred mid-motion.
	Unhome bool
}

// Controller is the safety interlock. Allocate one per machine with New and
// call Update once per control cycle.
type Controller struct {
	cfg Config
	log *logrus.Entry

	In  Inputs
	Out Outputs

	motorFaulted []tick.Latch
	ferrored     []tick.Latch
	spindleErred tick.Latch
	spindleCode  int32
	modbusDown   tick.Latch
	buttonPushed tick.Latch
	buttonFreed  tick.Latch

	estop    bool
	estopped bool

	sinceEnable        tick.Timer
	sinceEStop         tick.Timer
	sinceStartup       tick.Timer
	sinceButtonRelease tick.Timer
}

// New validates cfg and allocates a controller.
func New(cfg Config, log *logrus.Entry) (*Controller, error) {
	if cfg.Axes == "" {
		return nil, ErrNoAxes
	}
	if len(cfg.Axes) > 26 {
		return nil, ErrTooManyAxes
	}

	n := len(cfg.Axes)
	c := &Controller{
		cfg: cfg,
		log: log,
		In: Inputs{
			MotorFault:      make([]bool, n),
			FollowingError:  make([]bool, n),
			SpindleModbusOK: true,
		},
		Out: Outputs{
			MotorEnable: make([]bool, n),
			Power:       true,
		},
		motorFaulted:       make([]tick.Latch, n),
		ferrored:           make([]tick.Latch, n),
		sinceEnable:        tick.NewTimer(cfg.TimerMax),
		sinceEStop:         tick.NewTimer(cfg.TimerMax),
		sinceStartup:       tick.NewTimer(cfg.TimerMax),
		sinceButtonRelease: tick.NewTimer(cfg.TimerMax),
	}
	for i := range c.Out.MotorEnable {
		c.Out.MotorEnable[i] = true
	}
	return c, nil
}

// Axes returns the configured axis labels.
func (c *Controller) Axes() string { return c.cfg.Axes }

// EStop reports the instantaneous emergency-stop decision.
func (c *Controller) EStop() bool { return c.estop }

// EStopped reports the latched emergency-stop state.
func (c *Controller) EStopped() bool { return c.estopped }

// Faulted reports whether any fault latch is set.
func (c *Controller) Faulted() bool { return c.faulted() }

func (c *Controller) faulted() bool {
	for i := range c.motorFaulted {
		if c.motorFaulted[i].Latched() || c.ferrored[i].Latched() {
			return true
		}
	}
	return c.spindleErred.Latched() || c.modbusDown.Latched() || c.buttonPushed.Latched()
}

func axisName(label byte) rune {
	return unicode.ToUpper(rune(label))
}

// Update advances the interlock one control cycle.
func (c *Controller) Update(period time.Duration) {
	// Timers first, so a threshold of N reads true on the Nth cycle after
	// the timer was zeroed.
	c.sinceEnable.Tick(true)
	c.sinceEStop.Tick(true)
	c.sinceStartup.Tick(true)
	c.sinceButtonRelease.Tick(true)

	ignore := c.In.IgnoreComErrors
	modbusOK := c.In.SpindleModbusOK || ignore
	spindleCode := c.In.SpindleErrorCode
	if ignore {
		spindleCode = 0
	}

	// Unpowered drives and the VFD report faults, so motor and spindle
	// faults are only trusted outside the button-press, startup and
	// recent-reset windows. Following errors and the button itself are
	// never masked.
	trustFaults := !c.In.Button && !c.buttonPushed.Latched() &&
		c.sinceStartup.Exceeds(c.cfg.StartupTicks) &&
		c.sinceEnable.Exceeds(c.cfg.ResetTicks) &&
		c.sinceButtonRelease.Exceeds(c.cfg.StartupTicks)

	fault := false
	for i := range c.In.MotorFault {
		cond := c.In.MotorFault[i] && !ignore && trustFaults
		fault = fault || cond
		if c.motorFaulted[i].Update(cond) {
			c.log.Errorf("E-Stop: Motor %c fault.", axisName(c.cfg.Axes[i]))
		}
	}
	for i := range c.In.FollowingError {
		cond := c.In.FollowingError[i]
		fault = fault || cond
		if c.ferrored[i].Update(cond) {
			c.log.Errorf("E-Stop: %c following error.", axisName(c.cfg.Axes[i]))
		}
	}

	spindleCond := spindleCode != 0 && trustFaults
	fault = fault || spindleCond
	if c.spindleErred.Update(spindleCond) {
		c.spindleCode = spindleCode
		c.log.Errorf("E-Stop: Spindle error: code %d", spindleCode)
	}

	modbusCond := !modbusOK && trustFaults
	fault = fault || modbusCond
	if c.modbusDown.Update(modbusCond) {
		c.log.Error("E-Stop: Spindle communication error.")
	}

	fault = fault || c.In.Button
	if c.buttonPushed.Update(c.In.Button) {
		c.log.Error("E-Stop button pressed.")
	}
	if c.buttonFreed.Update(c.buttonPushed.Latched() && !c.In.Button) {
		c.sinceButtonRelease.Reset()
	}

	faulted := c.faulted()

	// A reset is triggered by an explicit user request, or automatically
	// once the physical button has been released long enough for the
	// drives to report valid status again. Only one reset is in flight at
	// a time.
	if !c.Out.UserRequestedEnable &&
		(c.In.UserRequestEnable ||
			(c.buttonFreed.Latched() && c.sinceButtonRelease.Exceeds(c.cfg.StartupTicks))) {
		c.Out.UserRequestedEnable = true
		c.sinceEnable.Reset()
	}

	resetNow := false
	if c.Out.UserRequestedEnable {
		// Power-cycle the drives to clear any fault condition, then
		// wait out the reset dwell before unlatching.
		enable := c.sinceEnable.AtLeast(c.cfg.DisableMotorTicks)
		for i := range c.Out.MotorEnable {
			c.Out.MotorEnable[i] = enable
		}

		if c.sinceEnable.Exceeds(c.cfg.ResetTicks) {
			// The only place any latch is cleared. Faults relatch
			// immediately if the condition persists, so they are
			// reported again in response to the reset attempt.
			for i := range c.motorFaulted {
				c.motorFaulted[i].Clear()
				c.ferrored[i].Clear()
			}
			c.spindleErred.Clear()
			c.spindleCode = 0
			c.modbusDown.Clear()
			c.buttonPushed.Clear()
			c.buttonFreed.Clear()

			c.estopped = false
			c.Out.UserRequestedEnable = false
			resetNow = true
		}
	}

	c.estop = !(!fault && c.In.UserEnable && (!faulted || resetNow))
	if c.estop && !c.estopped {
		c.sinceEStop.Reset()
		c.estopped = true
	}

	c.Out.EmcEnable = !c.estop
	c.Out.Unhome = c.estopped && c.sinceEStop.Exceeds(c.cfg.UnhomeTicks)
	c.Out.MachineOn = c.Out.EmcEnable && c.sinceEnable.Exceeds(c.cfg.MachineOnTicks)
}
