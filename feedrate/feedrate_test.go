package feedrate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const period = time.Millisecond

func TestFirstSampleNoSpike(t *testing.T) {
	c := New()
	c.In.X = 100
	c.In.Y = -50
	c.Update(period)
	assert.Zero(t, c.Out.FeedRate)
	assert.Zero(t, c.Out.XV)
}

func TestLinearFeed(t *testing.T) {
	c := New()
	c.Update(period)

	// 0.01 units per millisecond on X is 10 units per second
	for i := 1; i <= 5; i++ {
		c.In.X = float64(i) * 0.01
		c.Update(period)
	}
	assert.InDelta(t, 10, c.Out.XV, 1e-9)
	assert.InDelta(t, 10, c.Out.FeedRate, 1e-9)
	assert.Zero(t, c.Out.YV)
	assert.Zero(t, c.Out.ZV)
}

func TestToolOffset(t *testing.T) {
	c := New()
	c.Update(period)

	// Z and the tool offset moving together cancel out
	c.In.Z = 1
	c.In.ToolZ = 1
	c.Update(period)
	assert.InDelta(t, 0, c.Out.ZV, 1e-9)
	assert.InDelta(t, 0, c.Out.FeedRate, 1e-9)
}

func TestRotaryContribution(t *testing.T) {
	c := New()
	c.In.X = 10
	c.Update(period)

	// with A level, spinning B moves a point at X=10 through Y
	c.In.B = 0.0573 // ~0.001 rad over one cycle, ~1 rad/s
	c.Update(period)

	wantBV := 0.0573 / 0.001
	assert.InDelta(t, wantBV, c.Out.BV, 1e-6)

	omega := wantBV * math.Pi / 180
	assert.InDelta(t, 10*omega, c.Out.FeedRate, 1e-3)
}

func TestAxisVelocityUnits(t *testing.T) {
	c := New()
	c.Update(period)

	// degrees in, degrees per second out
	c.In.A = 0.09
	c.Update(period)
	assert.InDelta(t, 90, c.Out.AV, 1e-9)
}
