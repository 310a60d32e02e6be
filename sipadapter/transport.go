package sipadapter

import (
	"context"
	"errors"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
)

// errTransactionDied mirrors teams-sip-blf's "transaction died" sentinel
// for a client transaction whose Done() fires before a response arrives.
var errTransactionDied = errors.New("sipadapter: transaction died without a response")

// doTransaction sends req and waits for either a response or context
// expiry, grounded on teams-sip-blf's Client.getResponse helper.
func doTransaction(ctx context.Context, client *sipgo.Client, req *sip.Request) (*sip.Response, error) {
	tx, err := client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer tx.Terminate()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tx.Done():
		return nil, errTransactionDied
	case res := <-tx.Responses():
		return res, nil
	}
}
