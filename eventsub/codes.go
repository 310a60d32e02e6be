package eventsub

// SubscriberCode enumerates the termination causes a Subscriber can
// report, per spec.md §3. It is a distinct type from NotifierCode so the
// two enums can never be cross-matched by mistake (spec.md §9, "Termination
// code enum... keep them separate to avoid cross-matching bugs").
type SubscriberCode int

const (
	SubscribeResponseTimeout SubscriberCode = iota
	SubscribeTransportError
	SubscribeNonOKResponse
	SubscribeFailedAuthentication
	UnsubscribeTimeout
	ReceiveFinalNotify
	ReceiveBadNotify
)

func (c SubscriberCode) String() string {
	switch c {
	case SubscribeResponseTimeout:
		return "SUBSCRIBE_RESPONSE_TIMEOUT"
	case SubscribeTransportError:
		return "SUBSCRIBE_TRANSPORT_ERROR"
	case SubscribeNonOKResponse:
		return "SUBSCRIBE_NON_OK_RESPONSE"
	case SubscribeFailedAuthentication:
		return "SUBSCRIBE_FAILED_AUTHENTICATION"
	case UnsubscribeTimeout:
		return "UNSUBSCRIBE_TIMEOUT"
	case ReceiveFinalNotify:
		return "RECEIVE_FINAL_NOTIFY"
	case ReceiveBadNotify:
		return "RECEIVE_BAD_NOTIFY"
	default:
		return "UNKNOWN_SUBSCRIBER_CODE"
	}
}

// NotifierCode enumerates the termination causes a Notifier can report,
// per spec.md §3.
type NotifierCode int

const (
	NotifyResponseTimeout NotifierCode = iota
	NotifyTransportError
	NotifyNonOKResponse
	NotifyFailedAuthentication
	SendFinalNotify
	ReceiveUnsubscribe
	SubscriptionExpired
)

func (c NotifierCode) String() string {
	switch c {
	case NotifyResponseTimeout:
		return "NOTIFY_RESPONSE_TIMEOUT"
	case NotifyTransportError:
		return "NOTIFY_TRANSPORT_ERROR"
	case NotifyNonOKResponse:
		return "NOTIFY_NON_OK_RESPONSE"
	case NotifyFailedAuthentication:
		return "NOTIFY_FAILED_AUTHENTICATION"
	case SendFinalNotify:
		return "SEND_FINAL_NOTIFY"
	case ReceiveUnsubscribe:
		return "RECEIVE_UNSUBSCRIBE"
	case SubscriptionExpired:
		return "SUBSCRIPTION_EXPIRED"
	default:
		return "UNKNOWN_NOTIFIER_CODE"
	}
}

// sendsFinalNotify reports whether, on this termination cause, the
// notifier itself is still responsible for delivering a final NOTIFY.
// spec.md §4.2: true only for SUBSCRIPTION_EXPIRED.
func (c NotifierCode) sendsFinalNotify() bool {
	return c == SubscriptionExpired
}
