package eventsub

import (
	"log/slog"

	"github.com/rainliu/sipevent/sipstack"
)

// FetchResult is what a fetch-subscribe delivers: either the one NOTIFY
// the notifier sends before tearing the zero-duration subscription back
// down, or a termination that arrived with no NOTIFY at all (an error
// response to the SUBSCRIBE itself).
type FetchResult struct {
	Body        []byte
	ContentType string
	Termination SubscriberTermination
	HasNotify   bool
}

// FetchSubscribe issues a one-shot SUBSCRIBE with Expires: 0, the
// fetch-subscribe idiom of RFC 6665 §4.4.3: the notifier answers with a
// single NOTIFY reflecting current state and an immediate
// Subscription-State: terminated, never holding a dialog open. It is
// sugar over Subscriber, not a new state machine: the result channel
// receives exactly one FetchResult, whether or not a NOTIFY ever
// arrived; it is never closed.
// FetchSubscribe returns the Subscriber alongside the result channel so
// the caller can bind it as a Router for the dialog it creates (the
// same wiring a held subscription needs, spec.md §5's dialog registry);
// the Subscriber tears itself down as soon as the fetch completes, so
// the binding is short-lived.
func FetchSubscribe(
	ua sipstack.UA,
	tx sipstack.Transactions,
	dialogs sipstack.DialogFactory,
	timers *sipstack.Timers,
	params SubscriberParams,
	log *slog.Logger,
) (*Subscriber, <-chan FetchResult, error) {
	params.Expires = 0

	done := make(chan FetchResult, 1)
	deliver := func(r FetchResult) {
		select {
		case done <- r:
		default:
		}
	}

	listeners := SubscriberListeners{
		OnNotify: func(isFinal bool, _ sipstack.Request, body []byte, contentType string) {
			deliver(FetchResult{Body: body, ContentType: contentType, HasNotify: true})
		},
		OnTerminated: func(t SubscriberTermination) {
			deliver(FetchResult{Termination: t})
		},
	}

	s, err := NewSubscriber(ua, tx, dialogs, timers, params, listeners, log)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Subscribe(nil); err != nil {
		return nil, nil, err
	}
	return s, done, nil
}
