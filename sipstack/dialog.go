package sipstack

// DialogState mirrors the confirmed-dialog lifecycle a SIP dialog moves
// through once a to-tag has been established.
type DialogState int

const (
	DialogEarly DialogState = iota
	DialogConfirmed
	DialogTerminated
)

// DialogSendResult is delivered to a DialogEventHandlers callback after
// an in-dialog request completes, times out, or fails at the transport
// or dialog layer.
type DialogSendResult struct {
	Response Response
}

// DialogEventHandlers is the narrow callback set spec.md §6 requires for
// Dialog.SendRequest: "{body, extraHeaders,
// eventHandlers{onRequestTimeout,onTransportError,onErrorResponse,
// onDialogError}}". Exactly one of these fires per SendRequest call, or
// OnSuccess fires for a 2xx.
type DialogEventHandlers struct {
	OnSuccess        func(DialogSendResult)
	OnErrorResponse  func(DialogSendResult)
	OnRequestTimeout func()
	OnTransportError func()
	OnDialogError    func(error)
}

// DialogSendOptions configures an in-dialog request.
type DialogSendOptions struct {
	Body         []byte
	ContentType  string
	ExtraHeaders []Header
	Handlers     DialogEventHandlers
}

// Dialog is the stable identity, route-set and in-dialog send surface
// spec.md §2 and §6 require of the external Dialog object: "provides
// stable identity (Call-ID + tags), route-set, in-dialog request
// sending, and lifecycle (register/terminate with the User Agent)".
type Dialog interface {
	ID() string
	CallID() string
	LocalTag() string
	RemoteTag() string

	RouteSet() []string
	SetRouteSet(routeSet []string)

	IsServer() bool
	State() DialogState

	// SendRequest dispatches an in-dialog request (SUBSCRIBE refresh,
	// unsubscribe, or NOTIFY) with the given method and fires exactly
	// one of opts.Handlers.
	SendRequest(method string, opts DialogSendOptions) error

	// Terminate releases the dialog immediately. The core calls this
	// exactly once per dialog with an established id, per spec.md
	// invariant 3.
	Terminate()
}

// DialogFactory builds the external Dialog object from the messages
// that establish it. Dialog construction itself — extracting Call-ID/
// tags, validating a Contact is present — is out of scope for the core
// per spec.md §1; the core only calls this factory and reacts to the
// result.
type DialogFactory interface {
	// NewClientDialog builds a UAC-side dialog once the initial
	// SUBSCRIBE's first 2xx response has bound a to-tag.
	NewClientDialog(callID, fromTag, toTag string, routeSet []string) Dialog

	// NewServerDialog builds a UAS-side dialog from an inbound initial
	// SUBSCRIBE. It fails if the request lacks what the dialog needs
	// (spec.md §4.2: "e.g., missing Contact in SUBSCRIBE").
	NewServerDialog(initial Request, localTag string) (Dialog, error)
}
