package logic

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

func TestAnd(t *testing.T) {
	_, err := NewAnd(1, false)
	assert.Equal(t, ErrTooFewInputs, err)
	_, err = NewAnd(129, false)
	assert.Equal(t, ErrTooManyInputs, err)

	a, err := NewAnd(3, true)
	require.NoError(t, err)

	a.Update(period)
	assert.True(t, a.Out)

	a.In[1] = false
	a.Update(period)
	assert.False(t, a.Out)

	a.In[1] = true
	a.Update(period)
	assert.True(t, a.Out)
}

func TestResetPin(t *testing.T) {
	p := NewResetPin(false, 10*time.Millisecond)

	p.In = true
	for i := 0; i < 10; i++ {
		p.Update(period)
		require.True(t, p.Out, "cycle %d", i)
	}

	// the delay elapses and the pin snaps back
	p.Update(period)
	assert.False(t, p.In)
	assert.False(t, p.Out)
}

func TestResetPin_AgreementResetsClock(t *testing.T) {
	p := NewResetPin(false, 10*time.Millisecond)

	p.In = true
	for i := 0; i < 8; i++ {
		p.Update(period)
	}
	p.In = false
	p.Update(period)

	// the clock restarted; another excursion gets the full delay again
	p.In = true
	for i := 0; i < 10; i++ {
		p.Update(period)
		require.True(t, p.Out)
	}
	p.Update(period)
	assert.False(t, p.Out)
}

func TestMessage(t *testing.T) {
	_, err := NewMessage(testLog(), logrus.PanicLevel, "nope")
	assert.Equal(t, ErrBadLevel, err)

	l := logrus.New()
	hook := &captureHook{}
	l.AddHook(hook)
	l.SetOutput(io.Discard)

	m, err := NewMessage(logrus.NewEntry(l), logrus.WarnLevel, "tool setter overtravel")
	require.NoError(t, err)

	m.In = true
	m.Update(period)
	m.Update(period)
	m.In = false
	m.Update(period)
	m.In = true
	m.Update(period)

	require.Len(t, hook.entries, 2, "one message per rising edge")
	assert.Equal(t, logrus.WarnLevel, hook.entries[0].Level)
	assert.Equal(t, "tool setter overtravel", hook.entries[0].Message)
}

type captureHook struct {
	entries []*logrus.Entry
}

func (h *captureHook) Levels() []logrus.Level { return logrus.AllLevels }
func (h *captureHook) Fire(e *logrus.Entry) error {
	h.entries = append(h.entries, e)
	return nil
}

func TestProbeGuard(t *testing.T) {
	g := NewProbeGuard(testLog())

	g.In.ProbeOn = true
	g.In.ProbeError = true
	g.In.MotionType = 1
	g.Update(period)
	assert.False(t, g.Out.Abort, "only probing moves are aborted")

	g.In.MotionType = MotionTypeProbing
	g.Update(period)
	assert.True(t, g.Out.Abort)

	g.In.ProbeError = false
	g.Update(period)
	assert.False(t, g.Out.Abort)
}
