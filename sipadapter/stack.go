package sipadapter

import (
	"context"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/rainliu/sipevent/sipstack"
)

// Router receives requests arriving on an established dialog.
// *eventsub.Subscriber and *eventsub.Notifier both satisfy it.
type Router interface {
	ReceiveRequest(req sipstack.Request)
}

// Stack is the concrete sipgo binding: a UA, a client, a server, the
// sipstack.Registry dialog table, and the dispatch tables that route an
// inbound NOTIFY/SUBSCRIBE to the Subscriber/Notifier that owns its
// dialog. Grounded on teams-sip-blf's Client and arzzra/soft_phone's
// UserAgent, which wire up the same three sipgo handles.
type Stack struct {
	cfg Config
	log *slog.Logger

	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	registry *sipstack.Registry

	mu       sync.Mutex
	routes   map[string]Router
	onInvite func(req sipstack.Request) (Router, error)
}

// NewStack builds the sipgo UA/client/server and registers the NOTIFY
// and SUBSCRIBE handlers. onIncomingSubscribe is called for an initial,
// out-of-dialog SUBSCRIBE (no existing route) and must construct and
// return an *eventsub.Notifier (wrapped behind Router); it is
// nil-able for a subscriber-only process.
func NewStack(cfg Config, log *slog.Logger, onIncomingSubscribe func(req sipstack.Request) (Router, error)) (*Stack, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(cfg.UserAgentName))
	if err != nil {
		return nil, err
	}
	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(cfg.ContactHost))
	if err != nil {
		ua.Close()
		return nil, err
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		client.Close()
		ua.Close()
		return nil, err
	}

	s := &Stack{
		cfg:      cfg,
		log:      log.With("component", "sipadapter"),
		ua:       ua,
		client:   client,
		server:   server,
		registry: sipstack.NewRegistry(cfg.contactURI()),
		routes:   make(map[string]Router),
		onInvite: onIncomingSubscribe,
	}
	server.OnNotify(s.handleNotify)
	server.OnSubscribe(s.handleSubscribe)
	return s, nil
}

// ListenAndServe blocks, serving on cfg.Network/cfg.ListenAddr.
func (s *Stack) ListenAndServe(ctx context.Context) error {
	return s.server.ListenAndServe(ctx, s.cfg.Network, s.cfg.ListenAddr)
}

func (s *Stack) Close() error {
	s.client.Close()
	return s.ua.Close()
}

// Registry exposes the dialog table, satisfying sipstack.UA.
func (s *Stack) Registry() *sipstack.Registry { return s.registry }

// Transactions returns the sipstack.Transactions used for the first,
// out-of-dialog SUBSCRIBE of a new subscription.
func (s *Stack) Transactions() sipstack.Transactions { return &transactions{stack: s} }

// DialogFactory returns the sipstack.DialogFactory collaborators use to
// build client- and server-side dialogs.
func (s *Stack) DialogFactory() sipstack.DialogFactory { return &dialogFactory{stack: s} }

// BindRoute registers router to receive future in-dialog requests
// arriving on dialogID (the same id sipstack.Dialog.ID returns).
func (s *Stack) BindRoute(dialogID string, router Router) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[dialogID] = router
}

// UnbindRoute removes dialogID's dispatch entry. The Stack never calls
// it itself; entries stay until their owner removes them.
func (s *Stack) UnbindRoute(dialogID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, dialogID)
}

func (s *Stack) lookupRoute(req *sip.Request) (Router, bool) {
	id, err := sip.MakeDialogIDFromRequest(req)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[id]
	return r, ok
}

func (s *Stack) handleNotify(req *sip.Request, tx sip.ServerTransaction) {
	router, ok := s.lookupRoute(req)
	if !ok {
		_ = tx.Respond(sip.NewResponseFromRequest(req, 481, "Call/Transaction Does Not Exist", nil))
		return
	}
	router.ReceiveRequest(&requestAdapter{req: req, tx: tx})
}

func (s *Stack) handleSubscribe(req *sip.Request, tx sip.ServerTransaction) {
	if router, ok := s.lookupRoute(req); ok {
		router.ReceiveRequest(&requestAdapter{req: req, tx: tx})
		return
	}
	if s.onInvite == nil {
		_ = tx.Respond(sip.NewResponseFromRequest(req, 489, "Bad Event", nil))
		return
	}
	router, err := s.onInvite(&requestAdapter{req: req, tx: tx})
	if err != nil {
		s.log.Warn("rejecting initial SUBSCRIBE", "error", err)
		_ = tx.Respond(sip.NewResponseFromRequest(req, 400, "Bad Request", nil))
		return
	}
	if id, derr := sip.MakeDialogIDFromRequest(req); derr == nil {
		s.BindRoute(id, router)
	}
}
