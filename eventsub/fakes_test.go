package eventsub

import (
	"github.com/rainliu/sipevent/sipstack"
)

// fakeRequest is a minimal sipstack.Request double. Reply calls are
// recorded so tests can assert on the response a core sent back.
type fakeRequest struct {
	method  string
	headers []sipstack.Header
	body    []byte
	callID  string
	fromTag string
	toTag   string
	cseq    int

	replies []fakeReply
}

type fakeReply struct {
	Code         int
	Reason       string
	ExtraHeaders []sipstack.Header
}

func (r *fakeRequest) Method() string   { return r.method }
func (r *fakeRequest) Body() []byte     { return r.body }
func (r *fakeRequest) From() string     { return "sip:subscriber@example.test" }
func (r *fakeRequest) To() string       { return "sip:notifier@example.test" }
func (r *fakeRequest) CallID() string   { return r.callID }
func (r *fakeRequest) CSeq() int        { return r.cseq }
func (r *fakeRequest) ToTag() string    { return r.toTag }
func (r *fakeRequest) FromTag() string  { return r.fromTag }

func (r *fakeRequest) GetHeader(name string) *sipstack.Header {
	for i := range r.headers {
		if r.headers[i].Name == name {
			return &r.headers[i]
		}
	}
	return nil
}

func (r *fakeRequest) GetHeaders(name string) []sipstack.Header {
	var out []sipstack.Header
	for _, h := range r.headers {
		if h.Name == name {
			out = append(out, h)
		}
	}
	return out
}

func (r *fakeRequest) HasHeader(name string) bool {
	return r.GetHeader(name) != nil
}

func (r *fakeRequest) ParseHeader(name string) (any, bool) {
	if name != "Event" {
		return nil, false
	}
	h := r.GetHeader("Event")
	if h == nil {
		return sipstack.NoEventID, false
	}
	return sipstack.ParseEventID(h.Value)
}

func (r *fakeRequest) Reply(code int, reason string, extraHeaders []sipstack.Header) error {
	r.replies = append(r.replies, fakeReply{Code: code, Reason: reason, ExtraHeaders: extraHeaders})
	return nil
}

// fakeResponse is a minimal sipstack.Response double.
type fakeResponse struct {
	status       int
	reason       string
	headers      []sipstack.Header
	body         []byte
	recordRoutes []string
	toTag        string
}

func (r *fakeResponse) StatusCode() int      { return r.status }
func (r *fakeResponse) ReasonPhrase() string { return r.reason }
func (r *fakeResponse) Body() []byte         { return r.body }

func (r *fakeResponse) GetHeader(name string) *sipstack.Header {
	for i := range r.headers {
		if r.headers[i].Name == name {
			return &r.headers[i]
		}
	}
	return nil
}

func (r *fakeResponse) GetHeaders(name string) []sipstack.Header {
	var out []sipstack.Header
	for _, h := range r.headers {
		if h.Name == name {
			out = append(out, h)
		}
	}
	return out
}

func (r *fakeResponse) HasHeader(name string) bool { return r.GetHeader(name) != nil }
func (r *fakeResponse) RecordRoutes() []string     { return r.recordRoutes }
func (r *fakeResponse) ToTag() string              { return r.toTag }

// fakeDialog is a sipstack.Dialog double. SendRequest only records the
// call: real Dialog.SendRequest implementations fire their handler on a
// goroutine of their own after returning (see sipadapter/dialog.go), so
// a test that needs a handler to fire invokes it explicitly, after the
// call that armed it has returned, exactly as production code requires.
type fakeDialog struct {
	id        string
	callID    string
	localTag  string
	remoteTag string
	routeSet  []string
	server    bool
	state     sipstack.DialogState

	sent []fakeSend

	terminated bool
}

type fakeSend struct {
	Method string
	Opts   sipstack.DialogSendOptions
}

func (d *fakeDialog) ID() string        { return d.id }
func (d *fakeDialog) CallID() string    { return d.callID }
func (d *fakeDialog) LocalTag() string  { return d.localTag }
func (d *fakeDialog) RemoteTag() string { return d.remoteTag }

func (d *fakeDialog) RouteSet() []string          { return d.routeSet }
func (d *fakeDialog) SetRouteSet(rs []string)     { d.routeSet = rs }
func (d *fakeDialog) IsServer() bool              { return d.server }
func (d *fakeDialog) State() sipstack.DialogState { return d.state }

func (d *fakeDialog) SendRequest(method string, opts sipstack.DialogSendOptions) error {
	d.sent = append(d.sent, fakeSend{Method: method, Opts: opts})
	return nil
}

func (d *fakeDialog) Terminate() { d.terminated = true }

// lastHandlers returns the DialogEventHandlers of the most recent
// SendRequest call, for a test to complete explicitly.
func (d *fakeDialog) lastHandlers() sipstack.DialogEventHandlers {
	return d.sent[len(d.sent)-1].Opts.Handlers
}

func (d *fakeDialog) lastSubscriptionState() string {
	if len(d.sent) == 0 {
		return ""
	}
	for _, h := range d.sent[len(d.sent)-1].Opts.ExtraHeaders {
		if h.Name == "Subscription-State" {
			return h.Value
		}
	}
	return ""
}

// fakeDialogFactory is a sipstack.DialogFactory double.
type fakeDialogFactory struct {
	clientDialog *fakeDialog
	serverDialog *fakeDialog
	serverErr    error
}

func (f *fakeDialogFactory) NewClientDialog(callID, fromTag, toTag string, routeSet []string) sipstack.Dialog {
	if f.clientDialog == nil {
		f.clientDialog = &fakeDialog{}
	}
	f.clientDialog.id = callID + "|" + fromTag + "|" + toTag
	f.clientDialog.callID = callID
	f.clientDialog.localTag = fromTag
	f.clientDialog.remoteTag = toTag
	f.clientDialog.routeSet = routeSet
	f.clientDialog.state = sipstack.DialogConfirmed
	return f.clientDialog
}

func (f *fakeDialogFactory) NewServerDialog(initial sipstack.Request, localTag string) (sipstack.Dialog, error) {
	if f.serverErr != nil {
		return nil, f.serverErr
	}
	if f.serverDialog == nil {
		f.serverDialog = &fakeDialog{}
	}
	f.serverDialog.id = initial.CallID() + "|" + localTag + "|" + initial.FromTag()
	f.serverDialog.callID = initial.CallID()
	f.serverDialog.localTag = localTag
	f.serverDialog.remoteTag = initial.FromTag()
	f.serverDialog.server = true
	f.serverDialog.state = sipstack.DialogConfirmed
	return f.serverDialog, nil
}

// fakeUA is a sipstack.UA double recording (de)registration calls.
type fakeUA struct {
	contact    string
	registered []sipstack.Dialog
	destroyed  []sipstack.Dialog
}

func (u *fakeUA) NewDialog(d sipstack.Dialog)     { u.registered = append(u.registered, d) }
func (u *fakeUA) DestroyDialog(d sipstack.Dialog) { u.destroyed = append(u.destroyed, d) }
func (u *fakeUA) Contact() string                 { return u.contact }

// fakeTransactions is a sipstack.Transactions double. Like fakeDialog,
// it only records the call; a test completes it by invoking the
// recorded handler after the call that issued it has returned.
type fakeTransactions struct {
	sent []fakeTxSend
}

type fakeTxSend struct {
	Method       string
	Target       string
	DialogParams sipstack.DialogParams
	Headers      []sipstack.Header
	Body         []byte
	Handler      sipstack.TransactionHandler
	Credential   sipstack.Credential
}

func (t *fakeTransactions) SendRequest(
	method string,
	target string,
	dialogParams sipstack.DialogParams,
	headers []sipstack.Header,
	body []byte,
	handler sipstack.TransactionHandler,
	credential sipstack.Credential,
) error {
	t.sent = append(t.sent, fakeTxSend{
		Method: method, Target: target, DialogParams: dialogParams,
		Headers: headers, Body: body, Handler: handler, Credential: credential,
	})
	return nil
}

func (t *fakeTransactions) lastHandler() sipstack.TransactionHandler {
	return t.sent[len(t.sent)-1].Handler
}
