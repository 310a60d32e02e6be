package sipadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/rainliu/sipevent/sipstack"
)

// dialog is a confirmed SUBSCRIBE/NOTIFY dialog. sipgo's own
// DialogClientCache/DialogServerCache are built around INVITE's
// offer/answer lifecycle; a SUBSCRIBE dialog has no media and a much
// simpler state machine, so this tracks just what spec.md §2 asks of
// the external Dialog object: identity, route-set, and in-dialog send.
// The in-dialog Do-with-manual-headers pattern is grounded on
// arzzra/soft_phone's Dialog.raw.Do and emiago/diago's DialogSession.Do.
type dialog struct {
	mu sync.Mutex

	stack *Stack

	callID    string
	localTag  string
	remoteTag string
	target    sip.Uri
	routeSet  []string
	isServer  bool
	state     sipstack.DialogState
	cseq      uint32
}

var _ sipstack.Dialog = (*dialog)(nil)

func (d *dialog) ID() string        { return d.callID + "|" + d.localTag + "|" + d.remoteTag }
func (d *dialog) CallID() string    { return d.callID }
func (d *dialog) LocalTag() string  { return d.localTag }
func (d *dialog) RemoteTag() string { return d.remoteTag }
func (d *dialog) IsServer() bool    { return d.isServer }

func (d *dialog) RouteSet() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.routeSet...)
}

func (d *dialog) SetRouteSet(routeSet []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routeSet = routeSet
}

func (d *dialog) State() sipstack.DialogState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *dialog) Terminate() {
	d.mu.Lock()
	d.state = sipstack.DialogTerminated
	d.mu.Unlock()
}

// SendRequest builds and sends an in-dialog request (SUBSCRIBE refresh,
// unsubscribe, or NOTIFY), bumping CSeq and routing through the stored
// route-set, then dispatches exactly one handler.
func (d *dialog) SendRequest(method string, opts sipstack.DialogSendOptions) error {
	d.mu.Lock()
	d.cseq++
	cseq := d.cseq
	target := d.target
	routeSet := append([]string(nil), d.routeSet...)
	localTag, remoteTag, callID := d.localTag, d.remoteTag, d.callID
	d.mu.Unlock()

	req := sip.NewRequest(sip.RequestMethod(method), target)
	req.AppendHeader(sip.NewHeader("Call-ID", callID))
	req.AppendHeader(sip.NewHeader("CSeq", fmt.Sprintf("%d %s", cseq, method)))
	req.AppendHeader(sip.NewHeader("From", fmt.Sprintf("%s;tag=%s", d.stack.cfg.contactURI(), localTag)))
	req.AppendHeader(sip.NewHeader("To", fmt.Sprintf("<%s>;tag=%s", target.String(), remoteTag)))
	for _, r := range routeSet {
		req.AppendHeader(sip.NewHeader("Route", r))
	}
	for _, h := range opts.ExtraHeaders {
		req.AppendHeader(sip.NewHeader(h.Name, h.Value))
	}
	if len(opts.Body) > 0 {
		req.SetBody(opts.Body)
		if opts.ContentType != "" {
			req.AppendHeader(sip.NewHeader("Content-Type", opts.ContentType))
		}
	}

	// Like transactions.SendRequest, this runs off the caller's stack: the
	// core holds its own lock across this call and each handler re-
	// acquires it, which only works if the handler fires after SendRequest
	// has already returned and that lock has been released.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 32*time.Second)
		defer cancel()

		res, err := doTransaction(ctx, d.stack.client, req)
		if err != nil {
			if opts.Handlers.OnTransportError != nil {
				opts.Handlers.OnTransportError()
			} else if opts.Handlers.OnRequestTimeout != nil {
				opts.Handlers.OnRequestTimeout()
			}
			return
		}
		switch {
		case res.StatusCode >= 200 && res.StatusCode < 300:
			if opts.Handlers.OnSuccess != nil {
				opts.Handlers.OnSuccess(sipstack.DialogSendResult{Response: &responseAdapter{res: res}})
			}
		default:
			if opts.Handlers.OnErrorResponse != nil {
				opts.Handlers.OnErrorResponse(sipstack.DialogSendResult{Response: &responseAdapter{res: res}})
			}
		}
	}()
	return nil
}

// dialogFactory implements sipstack.DialogFactory against a Stack.
type dialogFactory struct {
	stack *Stack
}

var _ sipstack.DialogFactory = (*dialogFactory)(nil)

func (f *dialogFactory) NewClientDialog(callID, fromTag, toTag string, routeSet []string) sipstack.Dialog {
	return &dialog{
		stack:     f.stack,
		callID:    callID,
		localTag:  fromTag,
		remoteTag: toTag,
		routeSet:  routeSet,
		isServer:  false,
		state:     sipstack.DialogConfirmed,
	}
}

func (f *dialogFactory) NewServerDialog(initial sipstack.Request, localTag string) (sipstack.Dialog, error) {
	req, ok := initial.(*requestAdapter)
	if !ok {
		return nil, fmt.Errorf("sipadapter: NewServerDialog given a foreign Request implementation")
	}
	contact := req.req.Contact()
	if contact == nil {
		return nil, fmt.Errorf("missing Contact in initial SUBSCRIBE")
	}
	routes := req.req.GetHeaders("Record-Route")
	routeSet := make([]string, len(routes))
	for i, r := range routes {
		routeSet[len(routes)-1-i] = r.Value()
	}
	return &dialog{
		stack:     f.stack,
		callID:    req.CallID(),
		localTag:  localTag,
		remoteTag: req.FromTag(),
		target:    contact.Address,
		routeSet:  routeSet,
		isServer:  true,
		state:     sipstack.DialogConfirmed,
	}, nil
}
