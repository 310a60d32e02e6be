package eventsub

import (
	"math/rand"
	"time"
)

// refreshWideFloor is the RFC 6665-motivated margin kept before
// expires elapses once the window is wide enough to randomise within:
// "the 70 s floor and 5 s tail preserve margin against network delay"
// (spec.md §4.1).
const (
	refreshWideThreshold = 140
	refreshWideFloor     = 70
	refreshNarrowTail    = 5
)

// refreshRand is a process-wide PRNG seeded once at package init, per
// spec.md §9 ("seed per-process; do not share sequence state across
// subscriptions" — each Subscriber draws from this shared source but
// the draws themselves are independent across subscriptions, matching
// math/rand.Rand's documented safe-for-concurrent-use *Rand when wrapped
// this way is NOT assumed; instead each subscriber gets its own Rand
// seeded from this source to avoid any shared mutable sequence state).
var refreshRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// newSubscriberRand returns an independent PRNG seeded from the
// process-wide source, so no two Subscribers share sequence state.
func newSubscriberRand() *rand.Rand {
	return rand.New(rand.NewSource(refreshRand.Int63()))
}

// refreshDelay computes the randomised refresh delay for an Expires
// value of e seconds, per spec.md §4.1: a uniformly random time in
// [E/2, E-70] when E >= 140, otherwise E-5. e must be > 0.
func refreshDelay(rng *rand.Rand, e int) time.Duration {
	if e < refreshWideThreshold {
		d := e - refreshNarrowTail
		if d < 0 {
			d = 0
		}
		return time.Duration(d) * time.Second
	}
	lo := e / 2
	hi := e - refreshWideFloor
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	span := hi - lo
	return time.Duration(lo+rng.Intn(span+1)) * time.Second
}
