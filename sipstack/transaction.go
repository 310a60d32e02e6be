package sipstack

// Credential is the opaque authentication material a Subscription may
// carry (spec.md §3: "optional credential"). A concrete stack turns it
// into an Authorization header on 401/407; the core only ever threads it
// through unchanged. Package eventsub's credential.go builds one of
// these from github.com/icholy/digest options.
type Credential interface {
	// Scheme reports the auth scheme this credential answers
	// challenges for, e.g. "Digest".
	Scheme() string
}

// TransactionHandler is the callback set spec.md §6 requires of
// sendRequest: "handler receives onAuthenticated, onRequestTimeout,
// onTransportError, onReceiveResponse(response)".
type TransactionHandler struct {
	// OnAuthenticated fires after the transaction layer has resent the
	// request with credentials in answer to a 401/407, just before the
	// retry's response is delivered; the core uses this to bump its
	// local CSeq.
	OnAuthenticated  func()
	OnRequestTimeout func()
	OnTransportError func()
	OnReceiveResponse func(Response)
}

// DialogParams seeds the dialog the first 2xx response to an initial
// SUBSCRIBE will confirm: the From tag and Call-ID the core generated
// for the outbound request.
type DialogParams struct {
	CallID   string
	FromTag  string
}

// Transactions is the out-of-dialog request sender spec.md §6 describes:
// "sendRequest(method, target, dialog_params, headers, body, handler,
// credential)". Used only for the very first SUBSCRIBE on the
// subscriber side, before a dialog exists; every later request goes
// through Dialog.SendRequest instead.
type Transactions interface {
	SendRequest(
		method string,
		target string,
		dialogParams DialogParams,
		headers []Header,
		body []byte,
		handler TransactionHandler,
		credential Credential,
	) error
}
