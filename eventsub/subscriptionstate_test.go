package eventsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rainliu/sipevent/sipstack"
)

func TestParseSubscriptionStatePending(t *testing.T) {
	ss, ok := ParseSubscriptionState("pending;expires=600")
	assert.True(t, ok)
	assert.Equal(t, SubStatePending, ss.State)
	assert.True(t, ss.HasExpires)
	assert.Equal(t, 600, ss.Expires)
}

func TestParseSubscriptionStateTerminatedWithReason(t *testing.T) {
	ss, ok := ParseSubscriptionState("terminated;reason=giveup;retry-after=30")
	assert.True(t, ok)
	assert.Equal(t, SubStateTerminated, ss.State)
	assert.Equal(t, ReasonGiveUp, ss.Reason.Code)
	assert.True(t, ss.Reason.HasRetry)
	assert.Equal(t, 30, ss.Reason.RetryAfter)
}

func TestParseSubscriptionStateUnknownToken(t *testing.T) {
	_, ok := ParseSubscriptionState("fnord")
	assert.False(t, ok)
}

func TestParseSubscriptionStateEmpty(t *testing.T) {
	_, ok := ParseSubscriptionState("")
	assert.False(t, ok)
}

func TestComposeActiveCarriesExpires(t *testing.T) {
	ss := SubscriptionState{State: SubStateActive, Expires: 300}
	assert.Equal(t, "active;expires=300", ss.Compose())
}

// Compose must never attach ;expires= to a terminated state, even when
// the SubscriptionState value still carries a stale Expires from before
// termination was decided.
func TestComposeTerminatedNeverCarriesExpires(t *testing.T) {
	ss := SubscriptionState{State: SubStateTerminated, Expires: 300, Reason: Reason{Code: ReasonTimeout}}
	assert.Equal(t, "terminated;reason=timeout", ss.Compose())
}

func TestComposeTerminatedNoReason(t *testing.T) {
	ss := SubscriptionState{State: SubStateTerminated}
	assert.Equal(t, "terminated", ss.Compose())
}

func TestEventIDMatches(t *testing.T) {
	a, ok := sipstack.ParseEventID("weather;id=abc")
	assert.True(t, ok)
	b, ok := sipstack.ParseEventID("weather;id=abc")
	assert.True(t, ok)
	assert.True(t, a.Matches(b))

	c, ok := sipstack.ParseEventID("weather;id=xyz")
	assert.True(t, ok)
	assert.False(t, a.Matches(c))

	d, ok := sipstack.ParseEventID("weather")
	assert.True(t, ok)
	assert.False(t, a.Matches(d), "id presence must match on both sides")
}
