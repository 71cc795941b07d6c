// Package flowmeter counts pulses from an Aqua Computer High Flow LT coolant
// sensor and averages them into a flow rate.
package flowmeter

import (
	"time"

	"github.com/mastercactapus/ghal/tick"
)

// Config holds the meter options.
type Config struct {
	// PulsesPerLiter is the sensor's pulse constant.
	PulsesPerLiter float64

	// Window is how much time is accumulated before the rate is
	// recomputed and the counters reset.
	Window time.Duration
}

// DefaultConfig returns the High Flow LT defaults.
func DefaultConfig() Config {
	return Config{
		PulsesPerLiter: 169,
		Window:         time.Second,
	}
}

// Inputs is the raw sensor signal.
type Inputs struct {
	Signal bool
}

// Outputs are the accumulated counters and the derived rate.
type Outputs struct {
	// FlowRate is in liters per minute, updated once per window.
	FlowRate float64

	// Pulses and Elapsed are the in-progress window counters.
	Pulses  uint32
	Elapsed float64
}

// Meter accumulates pulses over a time window. Call Update once per control
// cycle.
type Meter struct {
	cfg  Config
	edge tick.Edge

	In  Inputs
	Out Outputs
}

// New returns a meter with the given config.
func New(cfg Config) *Meter { return &Meter{cfg: cfg} }

// Update advances the meter one control cycle of the given period.
func (m *Meter) Update(period time.Duration) {
	m.Out.Elapsed += period.Seconds()

	if m.edge.Rising(m.In.Signal) {
		m.Out.Pulses++
	}

	if m.Out.Elapsed > m.cfg.Window.Seconds() {
		m.Out.FlowRate = float64(m.Out.Pulses) / m.Out.Elapsed / m.cfg.PulsesPerLiter * 60
		m.Out.Pulses = 0
		m.Out.Elapsed = 0
	}
}
