package sipstack

import (
	"time"

	"github.com/juju/clock"
)

// Timer is a single cancellable one-shot callback, the "Timer service"
// of spec.md §2 ("one-shot timers with cancellation; single-threaded
// cooperative execution"). It is a thin wrapper over clock.Clock so
// production code runs on clock.WallClock and tests drive
// github.com/juju/clock/testclock deterministically, which is what
// spec.md §8's "advancing a virtual clock" property tests require.
type Timer struct {
	clk    clock.Clock
	timer  clock.Timer
	fired  bool
	cancel bool
}

// Timers schedules one-shot callbacks against a shared clock. All
// methods are expected to be called while the owning Subscriber or
// Notifier holds its own mutex — Timers itself does no locking, per the
// single-threaded cooperative model of spec.md §5.
type Timers struct {
	clk clock.Clock
}

// NewTimers builds a Timers backed by the given clock. Pass
// clock.WallClock in production and a testclock.Clock in tests.
func NewTimers(clk clock.Clock) *Timers {
	return &Timers{clk: clk}
}

// After arms a one-shot timer that invokes fn after d elapses, unless
// cancelled first. The returned Timer's Stop is idempotent.
func (t *Timers) After(d time.Duration, fn func()) *Timer {
	tm := &Timer{clk: t.clk}
	tm.timer = t.clk.AfterFunc(d, func() {
		if tm.cancel {
			return
		}
		tm.fired = true
		fn()
	})
	return tm
}

// Now returns the current time on the underlying clock.
func (t *Timers) Now() time.Time {
	return t.clk.Now()
}

// Stop cancels the timer. Safe to call more than once, and safe to call
// after the timer has already fired (a no-op). Stop does not interrupt
// a callback that has already started; the owners' terminated guards
// are what make such a late fire a no-op (spec.md §5).
func (tm *Timer) Stop() {
	if tm == nil || tm.timer == nil {
		return
	}
	tm.cancel = true
	tm.timer.Stop()
}
