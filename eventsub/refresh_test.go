package eventsub

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefreshDelayNarrowTail(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, 95*time.Second, refreshDelay(rng, 100))
	assert.Equal(t, time.Duration(0), refreshDelay(rng, 3))
}

func TestRefreshDelayWideWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, e := range []int{140, 300, 3600, 7200} {
		for i := 0; i < 200; i++ {
			d := refreshDelay(rng, e)
			lo := time.Duration(e/2) * time.Second
			hi := time.Duration(e-refreshWideFloor) * time.Second
			assert.GreaterOrEqual(t, d, lo, "e=%d", e)
			assert.LessOrEqual(t, d, hi, "e=%d", e)
		}
	}
}

func TestRefreshDelayIndependentAcrossSubscribers(t *testing.T) {
	a := newSubscriberRand()
	b := newSubscriberRand()
	// Two subscribers built back to back must not draw the same
	// sequence, or a bank of subscriptions with identical Expires would
	// all refresh in lockstep.
	same := true
	for i := 0; i < 10; i++ {
		if a.Int63() != b.Int63() {
			same = false
			break
		}
	}
	assert.False(t, same, "two subscriber PRNGs produced identical sequences")
}
