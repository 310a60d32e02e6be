package sipadapter

import (
	"github.com/emiago/sipgo/sip"

	"github.com/rainliu/sipevent/sipstack"
)

// requestAdapter adapts a *sip.Request delivered through a server
// transaction to sipstack.Request. It is the only place in the module
// that reaches into sipgo's header grammar.
type requestAdapter struct {
	req *sip.Request
	tx  sip.ServerTransaction
}

var _ sipstack.Request = (*requestAdapter)(nil)

func (r *requestAdapter) Method() string { return r.req.Method.String() }
func (r *requestAdapter) Body() []byte   { return r.req.Body() }

func (r *requestAdapter) From() string {
	if h := r.req.From(); h != nil {
		return h.Address.String()
	}
	return ""
}

func (r *requestAdapter) To() string {
	if h := r.req.To(); h != nil {
		return h.Address.String()
	}
	return ""
}

func (r *requestAdapter) CallID() string {
	if h := r.req.CallID(); h != nil {
		return h.Value()
	}
	return ""
}

func (r *requestAdapter) CSeq() int {
	if h := r.req.CSeq(); h != nil {
		return int(h.SeqNo)
	}
	return 0
}

func (r *requestAdapter) ToTag() string {
	if h := r.req.To(); h != nil {
		tag, _ := h.Params.Get("tag")
		return tag
	}
	return ""
}

func (r *requestAdapter) FromTag() string {
	if h := r.req.From(); h != nil {
		tag, _ := h.Params.Get("tag")
		return tag
	}
	return ""
}

func (r *requestAdapter) GetHeader(name string) *sipstack.Header {
	h := r.req.GetHeader(name)
	if h == nil {
		return nil
	}
	return &sipstack.Header{Name: h.Name(), Value: h.Value()}
}

func (r *requestAdapter) GetHeaders(name string) []sipstack.Header {
	hs := r.req.GetHeaders(name)
	out := make([]sipstack.Header, len(hs))
	for i, h := range hs {
		out[i] = sipstack.Header{Name: h.Name(), Value: h.Value()}
	}
	return out
}

func (r *requestAdapter) HasHeader(name string) bool {
	return r.req.GetHeader(name) != nil
}

// ParseHeader parses Event into a sipstack.EventID using the stack's own
// grammar (sipstack.ParseEventID). No other header name is understood by
// the core, so every other name reports (nil, false).
func (r *requestAdapter) ParseHeader(name string) (any, bool) {
	if name != "Event" {
		return nil, false
	}
	h := r.req.GetHeader("Event")
	if h == nil {
		return sipstack.NoEventID, false
	}
	return sipstack.ParseEventID(h.Value())
}

func (r *requestAdapter) Reply(code int, reason string, extraHeaders []sipstack.Header) error {
	res := sip.NewResponseFromRequest(r.req, sip.StatusCode(code), reason, nil)
	for _, h := range extraHeaders {
		res.AppendHeader(sip.NewHeader(h.Name, h.Value))
	}
	return r.tx.Respond(res)
}

// responseAdapter adapts a *sip.Response to sipstack.Response.
type responseAdapter struct {
	res *sip.Response
}

var _ sipstack.Response = (*responseAdapter)(nil)

func (r *responseAdapter) StatusCode() int      { return int(r.res.StatusCode) }
func (r *responseAdapter) ReasonPhrase() string { return r.res.Reason }
func (r *responseAdapter) Body() []byte         { return r.res.Body() }

func (r *responseAdapter) GetHeader(name string) *sipstack.Header {
	h := r.res.GetHeader(name)
	if h == nil {
		return nil
	}
	return &sipstack.Header{Name: h.Name(), Value: h.Value()}
}

func (r *responseAdapter) GetHeaders(name string) []sipstack.Header {
	hs := r.res.GetHeaders(name)
	out := make([]sipstack.Header, len(hs))
	for i, h := range hs {
		out[i] = sipstack.Header{Name: h.Name(), Value: h.Value()}
	}
	return out
}

func (r *responseAdapter) HasHeader(name string) bool {
	return r.res.GetHeader(name) != nil
}

func (r *responseAdapter) RecordRoutes() []string {
	hs := r.res.GetHeaders("Record-Route")
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Value()
	}
	return out
}

func (r *responseAdapter) ToTag() string {
	if h := r.res.To(); h != nil {
		tag, _ := h.Params.Get("tag")
		return tag
	}
	return ""
}
