// Package hal drives the control-loop components at a fixed period, in a
// fixed order, the way a realtime thread would.
package hal

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Func advances one component by one control cycle. The period is the
// measured time since the previous cycle.
type Func func(period time.Duration)

type entry struct {
	name string
	fn   Func
}

// Runner calls its registered functions once per tick, in registration order.
type Runner struct {
	period time.Duration
	log    *logrus.Entry

	funcs  []entry
	onTick []func()
}

// NewRunner returns a runner with the given nominal period.
func NewRunner(period time.Duration, log *logrus.Entry) *Runner {
	return &Runner{period: period, log: log}
}

// Period returns the nominal period.
func (r *Runner) Period() time.Duration { return r.period }

// Add registers fn to run each tick. Order of registration is order of
// execution, which is how upstream outputs become downstream inputs within
// one cycle.
func (r *Runner) Add(name string, fn Func) {
	r.funcs = append(r.funcs, entry{name: name, fn: fn})
}

// OnTick registers fn to run after all component functions each tick.
func (r *Runner) OnTick(fn func()) {
	r.onTick = append(r.onTick, fn)
}

// Names returns the registered function names in execution order.
func (r *Runner) Names() []string {
	names := make([]string, len(r.funcs))
	for i, e := range r.funcs {
		names[i] = e.name
	}
	return names
}

// Run ticks until ctx is canceled. Components receive the wall-clock time
// since the previous tick, so a late tick does not lose time.
func (r *Runner) Run(ctx context.Context) error {
	r.log.WithFields(logrus.Fields{
		"period": r.period,
		"funcs":  r.Names(),
	}).Info("control loop starting")

	t := time.NewTicker(r.period)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("control loop stopped")
			return ctx.Err()
		case now := <-t.C:
			period := now.Sub(last)
			last = now
			for _, e := range r.funcs {
				e.fn(period)
			}
			for _, fn := range r.onTick {
				fn()
			}
		}
	}
}

// NewLogger builds the process logger. An unparsable level falls back to
// info.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
