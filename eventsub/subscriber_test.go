package eventsub

import (
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainliu/sipevent/sipstack"
)

func okResponse(toTag string, recordRoutes ...string) *fakeResponse {
	return &fakeResponse{
		status:       200,
		toTag:        toTag,
		recordRoutes: recordRoutes,
		headers:      []sipstack.Header{{Name: "Expires", Value: "900"}},
	}
}

func buildSubscriber(t *testing.T, tx *fakeTransactions, listeners SubscriberListeners) (*Subscriber, *fakeUA, *fakeDialogFactory, *testclock.Clock) {
	t.Helper()
	ua := &fakeUA{contact: "<sip:watcher@example.test>"}
	factory := &fakeDialogFactory{}
	clk := testclock.NewClock(time.Time{})
	timers := sipstack.NewTimers(clk)

	s, err := NewSubscriber(ua, tx, factory, timers, SubscriberParams{
		Target:       "sip:weatherstation@example.test",
		EventPackage: "weather",
		Accept:       []string{"application/weather+text"},
		Contact:      "<sip:watcher@example.test>",
		Expires:      900,
	}, listeners, nil)
	require.NoError(t, err)
	return s, ua, factory, clk
}

// subscribeAndBind drives a Subscriber through Subscribe and the 2xx
// that binds its dialog, the way sipadapter's async SendRequest would:
// Subscribe returns first, and only then does the response handler fire.
func subscribeAndBind(t *testing.T, s *Subscriber, tx *fakeTransactions, toTag string, recordRoutes ...string) {
	t.Helper()
	require.NoError(t, s.Subscribe(nil))
	tx.lastHandler().OnReceiveResponse(okResponse(toTag, recordRoutes...))
}

func TestNewSubscriberValidatesConfig(t *testing.T) {
	_, err := NewSubscriber(&fakeUA{}, &fakeTransactions{}, &fakeDialogFactory{}, sipstack.NewTimers(testclock.NewClock(time.Time{})),
		SubscriberParams{}, SubscriberListeners{}, nil)
	assert.Error(t, err)
}

func TestSubscribeBindsDialogOn2xx(t *testing.T) {
	tx := &fakeTransactions{}
	dialogCreated := false
	s, ua, factory, _ := buildSubscriber(t, tx, SubscriberListeners{
		OnDialogCreated: func() { dialogCreated = true },
	})

	subscribeAndBind(t, s, tx, "notifier-tag", "<sip:proxy@example.test>")

	assert.Equal(t, "notify_wait", s.State())
	assert.True(t, dialogCreated)
	require.Len(t, ua.registered, 1)
	assert.Same(t, factory.clientDialog, ua.registered[0])
	assert.Equal(t, []string{"<sip:proxy@example.test>"}, factory.clientDialog.routeSet)
}

func TestSubscribeRejectsBodyWithoutContentType(t *testing.T) {
	s, _, _, _ := buildSubscriber(t, &fakeTransactions{}, SubscriberListeners{})
	assert.Error(t, s.Subscribe([]byte("payload")))
}

func TestSubscribeFailedAuthenticationTerminates(t *testing.T) {
	tx := &fakeTransactions{}
	var term SubscriberTermination
	s, _, _, _ := buildSubscriber(t, tx, SubscriberListeners{
		OnTerminated: func(t SubscriberTermination) { term = t },
	})

	require.NoError(t, s.Subscribe(nil))
	tx.lastHandler().OnReceiveResponse(&fakeResponse{status: 401})

	assert.Equal(t, "terminated", s.State())
	assert.Equal(t, SubscribeFailedAuthentication, term.Code)
}

func TestSubscribeResponseTimeoutTerminates(t *testing.T) {
	tx := &fakeTransactions{}
	var term SubscriberTermination
	s, _, _, _ := buildSubscriber(t, tx, SubscriberListeners{
		OnTerminated: func(t SubscriberTermination) { term = t },
	})

	require.NoError(t, s.Subscribe(nil))
	tx.lastHandler().OnRequestTimeout()

	assert.Equal(t, "terminated", s.State())
	assert.Equal(t, SubscribeResponseTimeout, term.Code)
}

func TestReceiveNotifyPendingThenActive(t *testing.T) {
	tx := &fakeTransactions{}
	var active bool
	s, _, _, _ := buildSubscriber(t, tx, SubscriberListeners{
		OnActive: func() { active = true },
	})
	subscribeAndBind(t, s, tx, "notifier-tag")

	pending := &fakeRequest{
		method: "NOTIFY",
		headers: []sipstack.Header{
			{Name: "Event", Value: "weather"},
			{Name: "Subscription-State", Value: "pending;expires=900"},
		},
	}
	s.ReceiveRequest(pending)
	assert.Equal(t, "pending", s.State())
	require.Len(t, pending.replies, 1)
	assert.Equal(t, 200, pending.replies[0].Code)
	assert.False(t, active)

	activeNotify := &fakeRequest{
		method: "NOTIFY",
		body:   []byte("sunny, 21C"),
		headers: []sipstack.Header{
			{Name: "Event", Value: "weather"},
			{Name: "Subscription-State", Value: "active;expires=900"},
			{Name: "Content-Type", Value: "application/weather+text"},
		},
	}
	var gotBody []byte
	s.listeners.OnNotify = func(isFinal bool, _ sipstack.Request, body []byte, contentType string) {
		gotBody = body
		assert.False(t, isFinal)
		assert.Equal(t, "application/weather+text", contentType)
	}
	s.ReceiveRequest(activeNotify)
	assert.Equal(t, "active", s.State())
	assert.True(t, active)
	assert.Equal(t, []byte("sunny, 21C"), gotBody)
}

func TestReceiveBadEventTerminates(t *testing.T) {
	tx := &fakeTransactions{}
	var term SubscriberTermination
	s, _, _, _ := buildSubscriber(t, tx, SubscriberListeners{
		OnTerminated: func(t SubscriberTermination) { term = t },
	})
	subscribeAndBind(t, s, tx, "notifier-tag")

	bad := &fakeRequest{
		method: "NOTIFY",
		headers: []sipstack.Header{
			{Name: "Event", Value: "presence"},
			{Name: "Subscription-State", Value: "active;expires=900"},
		},
	}
	s.ReceiveRequest(bad)

	require.Len(t, bad.replies, 1)
	assert.Equal(t, 489, bad.replies[0].Code)
	assert.Equal(t, "terminated", s.State())
	assert.Equal(t, ReceiveBadNotify, term.Code)
}

func TestReceiveFinalNotifyTerminatesWithReason(t *testing.T) {
	tx := &fakeTransactions{}
	var term SubscriberTermination
	s, _, _, _ := buildSubscriber(t, tx, SubscriberListeners{
		OnTerminated: func(t SubscriberTermination) { term = t },
	})
	subscribeAndBind(t, s, tx, "notifier-tag")

	final := &fakeRequest{
		method: "NOTIFY",
		headers: []sipstack.Header{
			{Name: "Event", Value: "weather"},
			{Name: "Subscription-State", Value: "terminated;reason=noresource"},
		},
	}
	s.ReceiveRequest(final)

	assert.Equal(t, "terminated", s.State())
	assert.Equal(t, ReceiveFinalNotify, term.Code)
	assert.Equal(t, "noresource", term.Reason)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	tx := &fakeTransactions{}
	s, _, factory, _ := buildSubscriber(t, tx, SubscriberListeners{})
	subscribeAndBind(t, s, tx, "notifier-tag")

	require.NoError(t, s.Unsubscribe(nil))
	sentAfterFirst := len(factory.clientDialog.sent)
	require.NoError(t, s.Unsubscribe(nil))
	assert.Equal(t, sentAfterFirst, len(factory.clientDialog.sent), "a second Unsubscribe must not send again")
}

func TestUnsubscribeTimeoutTerminates(t *testing.T) {
	tx := &fakeTransactions{}
	var term SubscriberTermination
	s, _, _, clk := buildSubscriber(t, tx, SubscriberListeners{
		OnTerminated: func(t SubscriberTermination) { term = t },
	})
	subscribeAndBind(t, s, tx, "notifier-tag")

	require.NoError(t, s.Unsubscribe(nil))
	// The notifier never answers the unsubscribe SUBSCRIBE; only the
	// grace timer fires.
	clk.Advance(31 * time.Second)

	assert.Equal(t, "terminated", s.State())
	assert.Equal(t, UnsubscribeTimeout, term.Code)
}

func TestDialogDestroyedAfterGraceDelay(t *testing.T) {
	tx := &fakeTransactions{}
	s, ua, _, clk := buildSubscriber(t, tx, SubscriberListeners{})
	subscribeAndBind(t, s, tx, "notifier-tag")

	bad := &fakeRequest{
		method: "NOTIFY",
		headers: []sipstack.Header{
			{Name: "Event", Value: "presence"},
			{Name: "Subscription-State", Value: "active;expires=900"},
		},
	}
	s.ReceiveRequest(bad)
	assert.Equal(t, "terminated", s.State())
	assert.Empty(t, ua.destroyed, "dialog must survive the 32s grace delay")

	clk.Advance(33 * time.Second)
	require.Len(t, ua.destroyed, 1)
}

func TestMaybeRescheduleOnExpiresDrift(t *testing.T) {
	tx := &fakeTransactions{}
	s, _, _, _ := buildSubscriber(t, tx, SubscriberListeners{})
	subscribeAndBind(t, s, tx, "notifier-tag")

	before := s.expiresAt
	notify := &fakeRequest{
		method: "NOTIFY",
		headers: []sipstack.Header{
			{Name: "Event", Value: "weather"},
			{Name: "Subscription-State", Value: "active;expires=30"},
		},
	}
	s.ReceiveRequest(notify)

	assert.True(t, s.expiresAt.Before(before), "a much shorter Subscription-State expires must reschedule earlier")
	assert.Equal(t, 30, s.expires)
}
