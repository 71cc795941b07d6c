package estop

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const period = time.Millisecond

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newController(t *testing.T) *Controller {
	t.Helper()
	c, err := New(DefaultConfig(), testLog())
	require.NoError(t, err)
	return c
}

func run(c *Controller, n int) {
	for i := 0; i < n; i++ {
		c.Update(period)
	}
}

// warmup advances past the startup settle window so motor and spindle faults
// are trusted.
func warmup(c *Controller) {
	run(c, 3001)
}

func motorsEnabled(c *Controller) bool {
	for _, e := range c.Out.MotorEnable {
		if !e {
			return false
		}
	}
	return true
}

func TestNew_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Axes = ""
	_, err := New(cfg, testLog())
	assert.Equal(t, ErrNoAxes, err)

	cfg.Axes = "abcdefghijklmnopqrstuvwxyz0"
	_, err = New(cfg, testLog())
	assert.Equal(t, ErrTooManyAxes, err)

	c := newController(t)
	assert.Equal(t, "xyzbc", c.Axes())
	assert.Len(t, c.Out.MotorEnable, 5)
	assert.True(t, c.Out.Power)
}

func TestLatching_SurvivesCondition(t *testing.T) {
	c := newController(t)
	c.In.UserEnable = true
	warmup(c)
	require.False(t, c.EStop())

	// one bad sample latches
	c.In.MotorFault[0] = true
	run(c, 1)
	c.In.MotorFault[0] = false

	assert.True(t, c.Faulted())
	assert.True(t, c.EStop())
	assert.True(t, c.EStopped())
	assert.False(t, c.Out.EmcEnable)

	// the condition is long gone; the latch holds
	run(c, 500)
	assert.True(t, c.Faulted())
	assert.True(t, c.EStop())
	assert.False(t, c.Out.EmcEnable)
}

func TestResetSchedule(t *testing.T) {
	c := newController(t)
	c.In.UserEnable = true
	warmup(c)

	c.In.MotorFault[1] = true
	run(c, 1)
	c.In.MotorFault[1] = false
	require.True(t, c.Faulted())
	require.True(t, motorsEnabled(c), "faults alone do not cycle motor power")

	// tick 0 of the reset sequence
	c.In.UserRequestEnable = true
	run(c, 1)
	c.In.UserRequestEnable = false
	assert.True(t, c.Out.UserRequestedEnable)
	assert.False(t, motorsEnabled(c))

	// motors held off for ticks [0,100)
	for k := 1; k < 100; k++ {
		run(c, 1)
		require.False(t, motorsEnabled(c), "tick %d", k)
	}

	// re-enabled from tick 100
	run(c, 1)
	assert.True(t, motorsEnabled(c))

	// latches hold through the reset dwell
	for k := 101; k <= 1000; k++ {
		run(c, 1)
	}
	assert.True(t, c.Faulted())
	assert.False(t, c.Out.EmcEnable)
	assert.True(t, c.Out.UserRequestedEnable)

	// the dwell elapses: everything unlatches at once
	run(c, 1) // tick 1001
	assert.False(t, c.Faulted())
	assert.False(t, c.EStop())
	assert.False(t, c.EStopped())
	assert.True(t, c.Out.EmcEnable)
	assert.False(t, c.Out.UserRequestedEnable)
	assert.False(t, c.Out.MachineOn)

	// machine-on lags emc-enable by the settle window
	for k := 1002; k <= 1100; k++ {
		run(c, 1)
		require.False(t, c.Out.MachineOn, "tick %d", k)
	}
	run(c, 1) // tick 1101
	assert.True(t, c.Out.MachineOn)
}

func TestUnhomeTiming(t *testing.T) {
	c := newController(t)
	c.In.UserEnable = true
	run(c, 10)
	require.False(t, c.EStopped())

	// following errors latch without any settle window
	c.In.FollowingError[2] = true
	run(c, 1)
	c.In.FollowingError[2] = false
	require.True(t, c.EStopped())

	for k := 1; k <= 100; k++ {
		run(c, 1)
		require.False(t, c.Out.Unhome, "tick %d", k)
	}
	run(c, 1) // 101 ticks after E-Stop entry
	assert.True(t, c.Out.Unhome)

	run(c, 200)
	assert.True(t, c.Out.Unhome, "unhome holds while estopped")

	// a completed reset clears estopped and with it unhome
	c.In.UserRequestEnable = true
	run(c, 1)
	c.In.UserRequestEnable = false
	run(c, 1001)
	assert.False(t, c.EStopped())
	assert.False(t, c.Out.Unhome)
}

func TestStartupMasking(t *testing.T) {
	c := newController(t)
	c.In.UserEnable = true

	// unpowered drives report faults at startup; they must not latch
	c.In.MotorFault[0] = true
	c.In.SpindleModbusOK = false
	run(c, 100)
	assert.False(t, c.Faulted())
	assert.False(t, c.EStop())

	// following errors are trusted regardless
	c.In.FollowingError[0] = true
	run(c, 1)
	assert.True(t, c.Faulted())
	assert.True(t, c.EStop())
}

func TestIgnoreComErrors(t *testing.T) {
	c := newController(t)
	c.In.UserEnable = true
	warmup(c)

	c.In.IgnoreComErrors = true
	c.In.MotorFault[3] = true
	c.In.SpindleModbusOK = false
	c.In.SpindleErrorCode = 7
	run(c, 10)
	assert.False(t, c.Faulted())
	assert.False(t, c.EStop())

	c.In.IgnoreComErrors = false
	run(c, 1)
	assert.True(t, c.Faulted())
	assert.True(t, c.EStop())
}

func TestButtonPressAndAutoReset(t *testing.T) {
	c := newController(t)
	c.In.UserEnable = true
	warmup(c)

	c.In.Button = true
	run(c, 1)
	assert.True(t, c.Faulted())
	assert.True(t, c.EStop())

	// motor faults while the button is latched are expected power-loss
	// side effects, not new faults
	c.In.MotorFault[0] = true
	run(c, 5)
	c.In.MotorFault[0] = false

	// releasing the button starts the settle clock; a reset triggers on
	// its own once the drives have had time to report valid status
	c.In.Button = false
	run(c, 1)
	for k := 1; k <= 3000; k++ {
		run(c, 1)
		require.False(t, c.Out.UserRequestedEnable, "tick %d", k)
	}
	run(c, 1)
	assert.True(t, c.Out.UserRequestedEnable)

	run(c, 1001)
	assert.False(t, c.Faulted())
	assert.True(t, c.Out.EmcEnable)
}

func TestSteadyStateIdempotent(t *testing.T) {
	c := newController(t)
	c.In.UserEnable = true
	warmup(c)

	// run a clean reset so machine-on settles high
	c.In.UserRequestEnable = true
	run(c, 1)
	c.In.UserRequestEnable = false
	run(c, 1102)
	require.True(t, c.Out.MachineOn)

	want := c.Out
	want.MotorEnable = append([]bool(nil), c.Out.MotorEnable...)
	for i := 0; i < 100; i++ {
		run(c, 1)
		assert.Equal(t, want, c.Out)
	}
}
