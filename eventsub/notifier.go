package eventsub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/looplab/fsm"

	"github.com/rainliu/sipevent/sipstack"
)

// notifierDefaultExpires is used when an inbound SUBSCRIBE omits Expires,
// per spec.md §4.2: "if Expires header missing, default to 900".
const notifierDefaultExpires = 900

const (
	notifyEvActivate  = "activate"
	notifyEvTerminate = "terminate"
)

// NotifierParams configures a new Notifier. ContentType is the default
// used by Notify when the caller doesn't pass one; ExtraHeaders are
// appended to every outbound NOTIFY unchanged. Credential is stored
// only: Dialog.SendRequest takes no credential, so it is not sent with
// any NOTIFY.
type NotifierParams struct {
	ContentType  string
	Credential   sipstack.Credential
	ExtraHeaders []sipstack.Header
	MaxExpires   int
}

// NotifierTermination is the payload of the Notifier's terminated event.
// SendFinalNotify mirrors spec.md §6's terminated(code, send_final_notify)
// arity: true only for SUBSCRIPTION_EXPIRED, the one code on which the
// termination funnel itself sends the final NOTIFY; false for every
// other code, including SEND_FINAL_NOTIFY, whose final NOTIFY Terminate
// has already sent (spec.md §4.2, §8).
type NotifierTermination struct {
	Code            NotifierCode
	SendFinalNotify bool
	Reason          string
	HasReason       bool
	RetryAfter      int
	HasRetry        bool
}

// NotifierListeners is the typed observer set for a Notifier.
type NotifierListeners struct {
	// OnSubscribe fires for every inbound SUBSCRIBE on this dialog,
	// including the initial one (delivered once Start is called),
	// spec.md §4.2/§6: subscribe(is_unsubscribe, request, body,
	// content_type).
	OnSubscribe func(isUnsubscribe bool, req sipstack.Request, body []byte, contentType string)
	// OnUnsubscribed fires when the subscriber sends Expires:0. It runs
	// before the Notifier flips to "terminated" (spec.md §9 resolution
	// #1), so handlers can still read the notifier's state if needed.
	OnUnsubscribed func()
	OnRefreshed    func(expires int)
	OnTerminated   func(NotifierTermination)
}

// Notifier is the RFC 6665 notifier-side state machine of spec.md §4.2.
// It is constructed from an inbound initial SUBSCRIBE; the caller (the
// stack adapter) is responsible for routing subsequent in-dialog
// SUBSCRIBE requests on the same dialog to ReceiveRequest.
type Notifier struct {
	mu sync.Mutex
	terminator

	fsm *fsm.FSM
	log *slog.Logger

	ua      sipstack.UA
	timers  *sipstack.Timers
	dialog  sipstack.Dialog

	params  NotifierParams
	eventID sipstack.EventID

	callID    string
	localTag  string
	remoteTag string

	expires      int
	expiresAt    time.Time
	expiryTimer  *sipstack.Timer
	lastBody     []byte
	lastCType    string

	initial        sipstack.Request
	initialDrained bool

	listeners NotifierListeners
}

// NewNotifier accepts an inbound initial SUBSCRIBE: it validates the
// request, allocates a local (to-)tag, builds the server-side Dialog via
// dialogs.NewServerDialog, registers it with ua, and replies 200 with
// Expires and Contact. It does not send the first NOTIFY, and it does
// not yet fire OnSubscribe for the initial request — call Start for
// both.
func NewNotifier(
	ua sipstack.UA,
	dialogs sipstack.DialogFactory,
	timers *sipstack.Timers,
	initial sipstack.Request,
	params NotifierParams,
	listeners NotifierListeners,
	log *slog.Logger,
) (*Notifier, error) {
	if initial.Method() != "SUBSCRIBE" {
		return nil, errNotInitialSubscribe()
	}
	raw, ok := initial.ParseHeader("Event")
	evID, parsed := raw.(sipstack.EventID)
	if !ok || !parsed {
		return nil, errMissingEvent()
	}
	if log == nil {
		log = slog.Default()
	}

	expires := notifierDefaultExpires
	if h := initial.GetHeader("Expires"); h != nil {
		if n, ok := parseIntHeader(h.Value); ok {
			expires = n
		}
	}
	if params.MaxExpires > 0 && expires > params.MaxExpires {
		expires = params.MaxExpires
	}

	localTag := newTag()
	dialog, err := dialogs.NewServerDialog(initial, localTag)
	if err != nil {
		return nil, errMissingContact(err.Error())
	}
	ua.NewDialog(dialog)

	n := &Notifier{
		log:       log.With("component", "notifier", "event", evID.Name),
		ua:        ua,
		timers:    timers,
		dialog:    dialog,
		params:    params,
		eventID:   evID,
		callID:    initial.CallID(),
		localTag:  localTag,
		remoteTag: initial.FromTag(),
		expires:   expires,
		initial:   initial,
		listeners: listeners,
	}
	n.fsm = fsm.NewFSM(stPending, fsm.Events{
		{Name: notifyEvActivate, Src: []string{stPending}, Dst: stActive},
		{Name: notifyEvTerminate, Src: []string{stPending, stActive}, Dst: stTerminated},
	}, fsm.Callbacks{})

	if err := initial.Reply(200, "OK", []sipstack.Header{
		{Name: "Expires", Value: itoa(expires)},
		{Name: "Contact", Value: ua.Contact()},
	}); err != nil {
		ua.DestroyDialog(dialog)
		return nil, err
	}
	if expires > 0 {
		n.armExpiryLocked(expires)
	}

	return n, nil
}

// State returns "pending", "active", or "terminated".
func (n *Notifier) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fsm.Current()
}

// ID returns the dialog id this notifier owns.
func (n *Notifier) ID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dialog.ID()
}

// Start sends the first NOTIFY, reflecting whatever state the notifier
// is in at the time of the call (pending unless SetActiveState ran
// first).
func (n *Notifier) Start(body []byte, contentType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.initialDrained {
		n.initialDrained = true
		n.emitSubscribeLocked(n.initial, n.expires == 0)
	}
	return n.sendNotifyLocked(body, contentType)
}

// emitSubscribeLocked fires OnSubscribe for req, the subscribe(...) event
// of spec.md §4.2/§6 every inbound SUBSCRIBE generates, including the
// initial one that constructed this Notifier (delivered once, from
// Start).
func (n *Notifier) emitSubscribeLocked(req sipstack.Request, isUnsubscribe bool) {
	if n.listeners.OnSubscribe == nil {
		return
	}
	contentType := ""
	if h := req.GetHeader("Content-Type"); h != nil {
		contentType = h.Value
	}
	n.listeners.OnSubscribe(isUnsubscribe, req, req.Body(), contentType)
}

// SetActiveState transitions pending -> active. It does not itself send
// a NOTIFY; call Notify (or let the next refresh do it) to propagate the
// new state to the subscriber.
func (n *Notifier) SetActiveState() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fsm.Current() != stPending {
		return nil
	}
	return n.fsm.Event(context.Background(), notifyEvActivate)
}

// Notify sends a NOTIFY carrying body in the notifier's current state.
// It is a no-op once terminated, matching spec.md §4.2: "notify() after
// terminated is silently ignored".
func (n *Notifier) Notify(body []byte, contentType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.isTerminated() {
		return nil
	}
	return n.sendNotifyLocked(body, contentType)
}

// Terminate sends a final NOTIFY with Subscription-State: terminated and
// the given reason, then tears the subscription down with code
// SendFinalNotify.
func (n *Notifier) Terminate(reason Reason) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.isTerminated() {
		return nil
	}
	if reason.HasRetry && reason.Code != ReasonProbation && reason.Code != ReasonGiveUp {
		return errors.NotValidf("retry-after with reason %q", reason.token())
	}
	err := n.sendFinalNotifyLocked(reason)
	n.terminateLocked(SendFinalNotify, &reason)
	return err
}

func (n *Notifier) sendNotifyLocked(body []byte, contentType string) error {
	if len(body) > 0 {
		n.lastBody = body
		if contentType != "" {
			n.lastCType = contentType
		}
	}
	if contentType == "" {
		contentType = n.params.ContentType
	}
	ss := SubscriptionState{State: n.currentSubState(), Expires: n.remainingExpires()}
	return n.sendNotifyRequestLocked(ss, body, contentType)
}

func (n *Notifier) sendFinalNotifyLocked(reason Reason) error {
	ss := SubscriptionState{State: SubStateTerminated, Reason: reason}
	return n.sendNotifyRequestLocked(ss, n.lastBody, n.lastCType)
}

func (n *Notifier) sendNotifyRequestLocked(ss SubscriptionState, body []byte, contentType string) error {
	headers := append([]sipstack.Header{
		{Name: "Event", Value: eventHeaderValue(n.eventID.Name, n.eventID.ID, n.eventID.HasID)},
		{Name: "Subscription-State", Value: ss.Compose()},
	}, n.params.ExtraHeaders...)

	opts := sipstack.DialogSendOptions{
		Body:         body,
		ContentType:  contentType,
		ExtraHeaders: headers,
		Handlers: sipstack.DialogEventHandlers{
			OnSuccess: func(sipstack.DialogSendResult) {},
			OnErrorResponse: func(r sipstack.DialogSendResult) {
				n.mu.Lock()
				defer n.mu.Unlock()
				code := r.Response.StatusCode()
				if code == 401 || code == 407 {
					n.terminateLocked(NotifyFailedAuthentication, nil)
					return
				}
				n.terminateLocked(NotifyNonOKResponse, nil)
			},
			OnRequestTimeout: func() {
				n.mu.Lock()
				defer n.mu.Unlock()
				n.terminateLocked(NotifyResponseTimeout, nil)
			},
			OnTransportError: func() {
				n.mu.Lock()
				defer n.mu.Unlock()
				n.terminateLocked(NotifyTransportError, nil)
			},
			OnDialogError: func(error) {
				n.mu.Lock()
				defer n.mu.Unlock()
				n.terminateLocked(NotifyTransportError, nil)
			},
		},
	}
	return n.dialog.SendRequest("NOTIFY", opts)
}

func (n *Notifier) currentSubState() SubState {
	if n.fsm.Current() == stActive {
		return SubStateActive
	}
	return SubStatePending
}

func (n *Notifier) remainingExpires() int {
	remaining := int(n.expiresAt.Sub(n.timers.Now()) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (n *Notifier) armExpiryLocked(expires int) {
	n.expiryTimer.Stop()
	n.expiresAt = n.timers.Now().Add(time.Duration(expires) * time.Second)
	n.expiryTimer = n.timers.After(time.Duration(expires)*time.Second, n.onExpired)
	n.track(n.expiryTimer)
}

func (n *Notifier) onExpired() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.terminateLocked(SubscriptionExpired, nil)
}

// ReceiveRequest dispatches an in-dialog SUBSCRIBE: a refresh (Expires >
// 0) or an unsubscribe (Expires: 0). spec.md §4.2.
func (n *Notifier) ReceiveRequest(req sipstack.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Method() != "SUBSCRIBE" {
		_ = req.Reply(405, "Method Not Allowed", nil)
		return
	}
	raw, ok := req.ParseHeader("Event")
	evID, parsed := raw.(sipstack.EventID)
	if ok && parsed && !evID.Matches(n.eventID) {
		_ = req.Reply(489, "Bad Event", nil)
		return
	}

	expires := notifierDefaultExpires
	if h := req.GetHeader("Expires"); h != nil {
		if v, ok := parseIntHeader(h.Value); ok {
			expires = v
		}
	}
	if max := n.params.MaxExpires; max > 0 && expires > max {
		expires = max
	}

	if expires == 0 {
		_ = req.Reply(200, "OK", []sipstack.Header{
			{Name: "Expires", Value: "0"},
		})
		n.emitSubscribeLocked(req, true)
		_ = n.sendFinalNotifyLocked(Reason{})
		if n.listeners.OnUnsubscribed != nil {
			n.listeners.OnUnsubscribed()
		}
		n.terminateLocked(ReceiveUnsubscribe, nil)
		return
	}

	_ = req.Reply(200, "OK", []sipstack.Header{
		{Name: "Expires", Value: itoa(expires)},
	})
	n.expires = expires
	n.armExpiryLocked(expires)
	n.emitSubscribeLocked(req, false)
	_ = n.sendNotifyLocked(n.lastBody, n.lastCType)
	if n.listeners.OnRefreshed != nil {
		n.listeners.OnRefreshed(expires)
	}
}

func (n *Notifier) terminateLocked(code NotifierCode, reason *Reason) {
	n.fire(func() {
		if code.sendsFinalNotify() {
			r := Reason{Code: ReasonTimeout}
			if reason != nil {
				r = *reason
			}
			_ = n.sendFinalNotifyLocked(r)
		}
		_ = n.fsm.Event(context.Background(), notifyEvTerminate)

		var t NotifierTermination
		t.Code = code
		t.SendFinalNotify = code.sendsFinalNotify()
		if reason != nil {
			t.Reason = reason.token()
			t.HasReason = t.Reason != ""
			if reason.HasRetry {
				t.RetryAfter = reason.RetryAfter
				t.HasRetry = true
			}
		}
		n.dialog.Terminate()
		n.ua.DestroyDialog(n.dialog)
		if n.listeners.OnTerminated != nil {
			n.listeners.OnTerminated(t)
		}
	})
}
