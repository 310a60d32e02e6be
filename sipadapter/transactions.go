package sipadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"

	"github.com/rainliu/sipevent/sipstack"
)

// transactions implements sipstack.Transactions for the very first
// SUBSCRIBE of a subscription, before any dialog exists. Digest retry on
// 401/407 is grounded on teams-sip-blf's Client.subscribeOne.
type transactions struct {
	stack *Stack
}

var _ sipstack.Transactions = (*transactions)(nil)

func (t *transactions) SendRequest(
	method string,
	target string,
	dialogParams sipstack.DialogParams,
	headers []sipstack.Header,
	body []byte,
	handler sipstack.TransactionHandler,
	credential sipstack.Credential,
) error {
	uri := sip.Uri{}
	if err := sip.ParseUri(target, &uri); err != nil {
		return fmt.Errorf("sipadapter: parse target %q: %w", target, err)
	}

	req := sip.NewRequest(sip.RequestMethod(method), uri)
	req.AppendHeader(sip.NewHeader("Call-ID", dialogParams.CallID))
	req.AppendHeader(sip.NewHeader("From", fmt.Sprintf("%s;tag=%s", t.stack.cfg.contactURI(), dialogParams.FromTag)))
	req.AppendHeader(sip.NewHeader("To", fmt.Sprintf("<%s>", target)))
	req.AppendHeader(sip.NewHeader("CSeq", "1 "+method))
	for _, h := range headers {
		req.AppendHeader(sip.NewHeader(h.Name, h.Value))
	}
	if len(body) > 0 {
		req.SetBody(body)
	}

	// The core calls SendRequest while holding its own lock and expects
	// its handlers to fire later (OnTransportError or OnReceiveResponse,
	// the latter preceded by OnAuthenticated after a digest retry), on a
	// goroutine that does not already hold it (spec.md §6's async
	// sendRequest contract) — so the network wait and handler dispatch
	// run off the caller's stack.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 32*time.Second)
		defer cancel()

		res, err := doTransaction(ctx, t.stack.client, req)
		if err != nil {
			if handler.OnTransportError != nil {
				handler.OnTransportError()
			}
			return
		}

		if (res.StatusCode == 401 || res.StatusCode == 407) && credential != nil {
			challenged, err := t.retryWithCredential(ctx, req, res, credential)
			if err != nil {
				if handler.OnTransportError != nil {
					handler.OnTransportError()
				}
				return
			}
			if handler.OnAuthenticated != nil {
				handler.OnAuthenticated()
			}
			res = challenged
		}

		if handler.OnReceiveResponse != nil {
			handler.OnReceiveResponse(&responseAdapter{res: res})
		}
	}()
	return nil
}

// retryWithCredential answers a digest challenge and resends req with an
// incremented CSeq, grounded on teams-sip-blf's Client.Register /
// subscribeOne retry branch.
func (t *transactions) retryWithCredential(ctx context.Context, req *sip.Request, challenge *sip.Response, credential sipstack.Credential) (*sip.Response, error) {
	dc, ok := credential.(interface {
		Answer(chal *digest.Challenge, method, uri string) (*digest.Credentials, error)
	})
	if !ok {
		return nil, fmt.Errorf("sipadapter: credential does not support %s", credential.Scheme())
	}
	authHeaderName := "WWW-Authenticate"
	if challenge.StatusCode == 407 {
		authHeaderName = "Proxy-Authenticate"
	}
	h := challenge.GetHeader(authHeaderName)
	if h == nil {
		return nil, fmt.Errorf("sipadapter: %d without %s", challenge.StatusCode, authHeaderName)
	}
	chal, err := digest.ParseChallenge(h.Value())
	if err != nil {
		return nil, err
	}
	cred, err := dc.Answer(chal, req.Method.String(), req.Recipient.String())
	if err != nil {
		return nil, err
	}

	retry := req.Clone()
	retry.RemoveHeader("Via")
	if cseq := retry.CSeq(); cseq != nil {
		cseq.SeqNo++
	}
	authHeaderOut := "Authorization"
	if challenge.StatusCode == 407 {
		authHeaderOut = "Proxy-Authorization"
	}
	retry.AppendHeader(sip.NewHeader(authHeaderOut, cred.String()))

	return doTransaction(ctx, t.stack.client, retry)
}
