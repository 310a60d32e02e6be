package eventsub

import "github.com/rainliu/sipevent/sipstack"

// terminator is the shared idempotent termination funnel of spec.md
// §4.3 and §9: "Implement as a single method gated by a boolean; every
// internal path that could terminate must call it." Subscriber and
// Notifier each embed one rather than duplicating the guard, so the
// "at most once" invariant (spec.md invariant 1, §8) cannot drift
// between the two call sites.
type terminator struct {
	done   bool
	timers []*sipstack.Timer
}

// track registers a timer so cancelAll can stop it. Pass nil-safe; a nil
// Timer is ignored so call sites don't need to guard on "was this timer
// ever armed".
func (t *terminator) track(tm *sipstack.Timer) {
	if tm == nil {
		return
	}
	t.timers = append(t.timers, tm)
}

func (t *terminator) cancelAll() {
	for _, tm := range t.timers {
		tm.Stop()
	}
	t.timers = nil
}

// fire runs fn exactly once across the lifetime of the terminator. Every
// later call is a silent no-op, which is what makes "timers fired after
// terminated" and "a second unsubscribe/terminate" no-ops per spec.md §5.
func (t *terminator) fire(fn func()) bool {
	if t.done {
		return false
	}
	t.done = true
	t.cancelAll()
	fn()
	return true
}

func (t *terminator) isTerminated() bool {
	return t.done
}
