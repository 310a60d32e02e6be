package eventsub

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/rainliu/sipevent/sipstack"
)

const (
	stInit       = "init"
	stNotifyWait = "notify_wait"
	stPending    = "pending"
	stActive     = "active"
	stTerminated = "terminated"

	evSubscribe     = "subscribe"
	evNotifyPending = "notify_pending"
	evNotifyActive  = "notify_active"
	evTerminate     = "terminate"
)

// defaultExpires is the RFC 6665 §3.1.1 workaround spec.md §4.1
// mandates: "Extract Expires; if missing, use default 900".
const defaultExpires = 900

// unsubscribeGrace is the timer armed by Unsubscribe, spec.md §4.1: "arms
// a 30 s timer that, on expiry, terminates with UNSUBSCRIBE_TIMEOUT".
const unsubscribeGrace = 30 * time.Second

// dialogDestroyGrace is the deferred-destroy delay of spec.md §4.3/§5:
// "32 s grace delay to absorb late final NOTIFY".
const dialogDestroyGrace = 32 * time.Second

// SubscriberParams configures a new Subscriber. Target, EventPackage and
// Accept are mandatory (spec.md §7 kind 1 configuration errors).
type SubscriberParams struct {
	Target       string
	EventPackage string
	EventID      string
	HasEventID   bool
	Accept       []string
	Contact      string
	ContentType  string
	Expires      int
	Credential   sipstack.Credential
	ExtraHeaders []sipstack.Header
}

// SubscriberTermination is the payload of the Subscriber's terminated
// event, spec.md §6: "terminated(code: int, reason?: string,
// retry_after?: int)".
type SubscriberTermination struct {
	Code       SubscriberCode
	Reason     string
	HasReason  bool
	RetryAfter int
	HasRetry   bool
}

// SubscriberListeners is the typed observer set spec.md §9 calls for
// ("avoid stringly-typed dispatch; enumerate events... as variants").
type SubscriberListeners struct {
	OnDialogCreated func()
	OnActive        func()
	OnNotify        func(isFinal bool, req sipstack.Request, body []byte, contentType string)
	OnTerminated    func(SubscriberTermination)
}

// Subscriber is the RFC 6665 subscriber-side state machine of spec.md
// §4.1.
type Subscriber struct {
	mu sync.Mutex
	terminator

	fsm *fsm.FSM
	log *slog.Logger
	rng *rand.Rand

	ua      sipstack.UA
	tx      sipstack.Transactions
	dialogs sipstack.DialogFactory
	timers  *sipstack.Timers

	params SubscriberParams

	callID  string
	fromTag string
	toTag   string

	dialog        sipstack.Dialog
	dialogBound   bool
	routeSet      []string
	cseq          int
	expires       int
	expiresAt     time.Time
	unsubscribed  bool
	refreshTimer  *sipstack.Timer
	grace         *sipstack.Timer

	listeners SubscriberListeners
}

// NewSubscriber builds a Subscriber in state "init". It does not send
// anything until Subscribe is called.
func NewSubscriber(
	ua sipstack.UA,
	tx sipstack.Transactions,
	dialogs sipstack.DialogFactory,
	timers *sipstack.Timers,
	params SubscriberParams,
	listeners SubscriberListeners,
	log *slog.Logger,
) (*Subscriber, error) {
	if params.Target == "" {
		return nil, errMissingTarget()
	}
	if params.EventPackage == "" {
		return nil, errMissingEventPackage()
	}
	if len(params.Accept) == 0 {
		return nil, errMissingAccept()
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Subscriber{
		log:       log.With("component", "subscriber", "event", params.EventPackage),
		rng:       newSubscriberRand(),
		ua:        ua,
		tx:        tx,
		dialogs:   dialogs,
		timers:    timers,
		params:    params,
		listeners: listeners,
	}
	s.fsm = fsm.NewFSM(stInit, fsm.Events{
		{Name: evSubscribe, Src: []string{stInit}, Dst: stNotifyWait},
		{Name: evNotifyPending, Src: []string{stNotifyWait, stPending, stActive}, Dst: stPending},
		{Name: evNotifyActive, Src: []string{stNotifyWait, stPending, stActive}, Dst: stActive},
		{Name: evTerminate, Src: []string{stInit, stNotifyWait, stPending, stActive}, Dst: stTerminated},
	}, fsm.Callbacks{
		"enter_" + stActive: func(_ context.Context, e *fsm.Event) {
			if e.Src != stActive && s.listeners.OnActive != nil {
				s.listeners.OnActive()
			}
		},
	})
	return s, nil
}

// State returns the current FSM state name ("init", "notify_wait",
// "pending", "active", or "terminated").
func (s *Subscriber) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.Current()
}

// ID returns the dialog id (Call-ID ++ from-tag ++ to-tag) once bound,
// or "" before the first 2xx response.
func (s *Subscriber) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialog == nil {
		return ""
	}
	return s.dialog.ID()
}

// Subscribe transitions init -> notify_wait on first call and sends the
// initial SUBSCRIBE. Per spec.md §4.1: "if body is present, Content-Type
// must be configured else fails with InvalidConfig".
func (s *Subscriber) Subscribe(body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(body) > 0 && s.params.ContentType == "" {
		return errBodyWithoutContentType()
	}
	if err := s.fsm.Event(context.Background(), evSubscribe); err != nil {
		return err
	}

	headers := s.buildSubscribeHeaders(s.params.Expires, body)
	s.callID = newCallID()
	s.fromTag = newTag()

	handler := sipstack.TransactionHandler{
		OnAuthenticated:   s.onSubscribeAuthenticated,
		OnRequestTimeout:  func() { s.lockAndTerminate(SubscribeResponseTimeout, nil) },
		OnTransportError:  func() { s.lockAndTerminate(SubscribeTransportError, nil) },
		OnReceiveResponse: s.onInitialSubscribeResponse,
	}
	return s.tx.SendRequest("SUBSCRIBE", s.params.Target,
		sipstack.DialogParams{CallID: s.callID, FromTag: s.fromTag},
		headers, body, handler, s.params.Credential)
}

// Unsubscribe replaces Expires with 0 and sends a SUBSCRIBE, idempotent
// per spec.md §4.1: "if already sent, fails silently with a warning".
func (s *Subscriber) Unsubscribe(body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribed {
		s.log.Warn("unsubscribe called more than once, ignoring")
		return nil
	}
	if s.isTerminated() {
		return nil
	}
	s.unsubscribed = true
	s.refreshTimer.Stop()

	opts := sipstack.DialogSendOptions{
		Body:         body,
		ContentType:  s.params.ContentType,
		ExtraHeaders: append(s.expiresHeader(0), s.params.ExtraHeaders...),
		Handlers: sipstack.DialogEventHandlers{
			OnSuccess:        func(sipstack.DialogSendResult) {},
			OnErrorResponse:  func(sipstack.DialogSendResult) { s.lockAndTerminate(SubscribeNonOKResponse, nil) },
			OnRequestTimeout: func() { s.lockAndTerminate(SubscribeResponseTimeout, nil) },
			OnTransportError: func() { s.lockAndTerminate(SubscribeTransportError, nil) },
		},
	}
	grace := s.timers.After(unsubscribeGrace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.terminateLocked(UnsubscribeTimeout, nil)
	})
	s.track(grace)
	s.grace = grace

	if s.dialog == nil {
		return nil
	}
	return s.dialog.SendRequest("SUBSCRIBE", opts)
}

func (s *Subscriber) onSubscribeAuthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cseq++
}

func (s *Subscriber) onInitialSubscribeResponse(resp sipstack.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := resp.StatusCode()
	switch {
	case code == 401 || code == 407:
		s.terminateLocked(SubscribeFailedAuthentication, nil)
		return
	case code >= 300:
		s.terminateLocked(SubscribeNonOKResponse, nil)
		return
	case code >= 200:
		s.bindDialogLocked(resp)
	}
}

func (s *Subscriber) bindDialogLocked(resp sipstack.Response) {
	if s.dialog != nil {
		return // already bound by an earlier 2xx (retransmission)
	}
	s.toTag = resp.ToTag()

	routes := resp.RecordRoutes()
	reversed := make([]string, len(routes))
	for i, r := range routes {
		reversed[len(routes)-1-i] = r
	}
	s.routeSet = reversed

	s.dialog = s.dialogs.NewClientDialog(s.callID, s.fromTag, s.toTag, reversed)
	s.ua.NewDialog(s.dialog)
	s.dialogBound = true

	if s.listeners.OnDialogCreated != nil {
		s.listeners.OnDialogCreated()
	}

	expires := defaultExpires
	if h := resp.GetHeader("Expires"); h != nil {
		if n, ok := parseIntHeader(h.Value); ok {
			expires = n
		} else {
			s.log.Debug("2xx to SUBSCRIBE carried an unparsable Expires, defaulting", "value", h.Value)
		}
	} else {
		s.log.Debug("2xx to SUBSCRIBE missing Expires, defaulting", "default", defaultExpires)
	}
	s.expires = expires
	s.expiresAt = s.timers.Now().Add(time.Duration(expires) * time.Second)

	if expires > 0 {
		s.armRefreshLocked(expires)
	}
}

func (s *Subscriber) armRefreshLocked(expires int) {
	s.refreshTimer.Stop()
	d := refreshDelay(s.rng, expires)
	s.refreshTimer = s.timers.After(d, s.sendRefresh)
	s.track(s.refreshTimer)
}

func (s *Subscriber) sendRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isTerminated() || s.unsubscribed {
		return
	}
	opts := sipstack.DialogSendOptions{
		ExtraHeaders: append(s.expiresHeader(s.params.Expires), s.params.ExtraHeaders...),
		Handlers: sipstack.DialogEventHandlers{
			OnSuccess: func(r sipstack.DialogSendResult) {
				s.mu.Lock()
				defer s.mu.Unlock()
				if s.isTerminated() || s.unsubscribed {
					return
				}
				expires := defaultExpires
				if h := r.Response.GetHeader("Expires"); h != nil {
					if n, ok := parseIntHeader(h.Value); ok {
						expires = n
					}
				}
				s.expires = expires
				s.expiresAt = s.timers.Now().Add(time.Duration(expires) * time.Second)
				if expires > 0 {
					s.armRefreshLocked(expires)
				}
			},
			OnErrorResponse:  func(sipstack.DialogSendResult) { s.lockAndTerminate(SubscribeNonOKResponse, nil) },
			OnRequestTimeout: func() { s.lockAndTerminate(SubscribeResponseTimeout, nil) },
			OnTransportError: func() { s.lockAndTerminate(SubscribeTransportError, nil) },
		},
	}
	_ = s.dialog.SendRequest("SUBSCRIBE", opts)
}

// ReceiveRequest is the inbound dispatch entry point spec.md §2
// describes: "inbound NOTIFY/SUBSCRIBE requests are dispatched by the
// dialog layer into receiveRequest". A Subscriber only ever receives
// NOTIFY.
func (s *Subscriber) ReceiveRequest(req sipstack.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Method() != "NOTIFY" {
		_ = req.Reply(405, "Method Not Allowed", nil)
		return
	}

	rawEvent, ok := req.ParseHeader("Event")
	evID, parsed := rawEvent.(sipstack.EventID)
	if !ok || !parsed {
		_ = req.Reply(489, "Bad Event", nil)
		s.terminateLocked(ReceiveBadNotify, nil)
		return
	}
	mine := sipstack.EventID{Name: s.params.EventPackage, ID: s.params.EventID, HasID: s.params.HasEventID}
	if !evID.Matches(mine) {
		_ = req.Reply(489, "Bad Event", nil)
		s.terminateLocked(ReceiveBadNotify, nil)
		return
	}

	ssHeader := req.GetHeader("Subscription-State")
	if ssHeader == nil {
		_ = req.Reply(400, "Bad Request", nil)
		s.terminateLocked(ReceiveBadNotify, nil)
		return
	}
	ss, ok := ParseSubscriptionState(ssHeader.Value)
	if !ok {
		_ = req.Reply(400, "Bad Request", nil)
		s.terminateLocked(ReceiveBadNotify, nil)
		return
	}

	_ = req.Reply(200, "OK", nil)

	if ss.State != SubStateTerminated {
		s.adoptStateLocked(ss.State)
		s.maybeRescheduleLocked(ss)
	}

	body := req.Body()
	if len(body) > 0 {
		isFinal := ss.State == SubStateTerminated
		if s.listeners.OnNotify != nil {
			contentType := ""
			if h := req.GetHeader("Content-Type"); h != nil {
				contentType = h.Value
			}
			s.listeners.OnNotify(isFinal, req, body, contentType)
		}
	}

	if ss.State == SubStateTerminated {
		var reason *Reason
		if ss.Reason.Code != ReasonNone {
			r := ss.Reason
			reason = &r
		}
		s.terminateLocked(ReceiveFinalNotify, reason)
	}
}

func (s *Subscriber) adoptStateLocked(state SubState) {
	ev := evNotifyActive
	if state == SubStatePending {
		ev = evNotifyPending
	}
	_ = s.fsm.Event(context.Background(), ev)
}

// maybeRescheduleLocked implements spec.md §4.1's expires-drift rule: "If
// a shorter Subscription-State expires is present and the difference
// from the current expires_timestamp exceeds 2 s, reschedule the refresh
// to the earlier deadline."
func (s *Subscriber) maybeRescheduleLocked(ss SubscriptionState) {
	if !ss.HasExpires || s.dialog == nil {
		return
	}
	newDeadline := s.timers.Now().Add(time.Duration(ss.Expires) * time.Second)
	if s.expiresAt.Sub(newDeadline) > 2*time.Second {
		s.expires = ss.Expires
		s.expiresAt = newDeadline
		if ss.Expires > 0 {
			s.armRefreshLocked(ss.Expires)
		}
	}
}

// lockAndTerminate is terminateLocked for handlers that fire on a
// goroutine of their own, after the call that armed them has already
// released s.mu (every Dialog/Transactions callback per spec.md §6).
func (s *Subscriber) lockAndTerminate(code SubscriberCode, reason *Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminateLocked(code, reason)
}

func (s *Subscriber) terminateLocked(code SubscriberCode, reason *Reason) {
	s.fire(func() {
		_ = s.fsm.Event(context.Background(), evTerminate)
		var t SubscriberTermination
		t.Code = code
		if reason != nil {
			t.Reason = reason.token()
			t.HasReason = t.Reason != ""
			if reason.HasRetry {
				t.RetryAfter = reason.RetryAfter
				t.HasRetry = true
			}
		}
		dialog := s.dialog
		if dialog != nil {
			s.grace = s.timers.After(dialogDestroyGrace, func() {
				dialog.Terminate()
				s.ua.DestroyDialog(dialog)
			})
		}
		if s.listeners.OnTerminated != nil {
			s.listeners.OnTerminated(t)
		}
	})
}

func (s *Subscriber) buildSubscribeHeaders(expires int, body []byte) []sipstack.Header {
	h := []sipstack.Header{
		{Name: "Event", Value: eventHeaderValue(s.params.EventPackage, s.params.EventID, s.params.HasEventID)},
		{Name: "Expires", Value: itoa(expires)},
		{Name: "Accept", Value: joinComma(s.params.Accept)},
		{Name: "Contact", Value: s.params.Contact},
	}
	if len(body) > 0 {
		h = append(h, sipstack.Header{Name: "Content-Type", Value: s.params.ContentType})
	}
	return append(h, s.params.ExtraHeaders...)
}

func (s *Subscriber) expiresHeader(expires int) []sipstack.Header {
	return []sipstack.Header{{Name: "Expires", Value: itoa(expires)}}
}
