// Package feedrate computes the speed of the tool tip relative to the work
// piece from the commanded axis positions, including the contribution of the
// rotary axes.
package feedrate

import (
	"math"
	"time"
)

// Inputs are the axis positions sampled each cycle. A and B are in degrees.
type Inputs struct {
	X, Y, Z float64

	// ToolZ is the tool length offset, subtracted from Z.
	ToolZ float64

	A, B float64
}

// Outputs are the derived velocities. FeedRate is the magnitude of the tool
// tip velocity; AV and BV are in degrees per second.
type Outputs struct {
	FeedRate           float64
	XV, YV, ZV, AV, BV float64
}

// Calculator differentiates positions across cycles. Allocate with New and
// call Update once per control cycle.
type Calculator struct {
	last    [5]float64
	started bool

	In  Inputs
	Out Outputs
}

// New returns a zeroed calculator.
func New() *Calculator { return &Calculator{} }

// Update advances the calculator one control cycle of the given period.
func (c *Calculator) Update(period time.Duration) {
	dt := period.Seconds()
	if dt <= 0 {
		dt = 0.001
	}

	x := c.In.X
	y := c.In.Y
	z := c.In.Z - c.In.ToolZ
	a := c.In.A * math.Pi / 180
	b := c.In.B * math.Pi / 180

	if !c.started {
		// no previous sample; report zero velocity rather than a spike
		c.started = true
		c.last = [5]float64{x, y, z, a, b}
	}

	xv := (x - c.last[0]) / dt
	yv := (y - c.last[1]) / dt
	zv := (z - c.last[2]) / dt
	av := (a - c.last[3]) / dt
	bv := (b - c.last[4]) / dt

	// the B axis is tilted by the A rotation, so its angular velocity is
	// rotated into machine coordinates before taking r cross omega
	sa, ca := math.Sincos(-a)
	omegaX := av
	omegaY := -sa * bv
	omegaZ := ca * bv

	vx := xv + y*omegaZ - z*omegaY
	vy := yv + z*omegaX - x*omegaZ
	vz := zv + x*omegaY - y*omegaX

	c.Out.FeedRate = math.Sqrt(vx*vx + vy*vy + vz*vz)
	c.Out.XV = xv
	c.Out.YV = yv
	c.Out.ZV = zv
	c.Out.AV = av * 180 / math.Pi
	c.Out.BV = bv * 180 / math.Pi

	c.last = [5]float64{x, y, z, a, b}
}
