package eventsub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// ReasonCode is the closed vocabulary RFC 6665 §3.2.4 defines for the
// "reason" token of a terminated Subscription-State, widened with an
// Other escape hatch for event packages that mint their own reasons
// (SPEC_FULL.md §4.1).
type ReasonCode int

const (
	ReasonNone ReasonCode = iota
	ReasonDeactivated
	ReasonProbation
	ReasonRejected
	ReasonTimeout
	ReasonGiveUp
	ReasonNoResource
	ReasonInvariant
	ReasonOther
)

var reasonTokens = map[ReasonCode]string{
	ReasonDeactivated: "deactivated",
	ReasonProbation:   "probation",
	ReasonRejected:    "rejected",
	ReasonTimeout:     "timeout",
	ReasonGiveUp:      "giveup",
	ReasonNoResource:  "noresource",
	ReasonInvariant:   "invariant",
}

// Reason pairs a ReasonCode with its raw token (meaningful when Code is
// ReasonOther) and an optional retry-after seconds value.
type Reason struct {
	Code       ReasonCode
	Raw        string
	RetryAfter int
	HasRetry   bool
}

func (r Reason) token() string {
	if r.Code == ReasonOther {
		return r.Raw
	}
	if t, ok := reasonTokens[r.Code]; ok {
		return t
	}
	return ""
}

// NewReason builds a Reason from a token and optional retry-after,
// rejecting a retry-after paired with any reason other than probation/
// giveup per SPEC_FULL.md §4.1.
func NewReason(token string, retryAfter int, hasRetry bool) (Reason, error) {
	code := ReasonOther
	for c, t := range reasonTokens {
		if strings.EqualFold(t, token) {
			code = c
			break
		}
	}
	r := Reason{Code: code, Raw: token, RetryAfter: retryAfter, HasRetry: hasRetry}
	if hasRetry && code != ReasonProbation && code != ReasonGiveUp {
		return Reason{}, errors.NotValidf("retry-after with reason %q", token)
	}
	return r, nil
}

// parseReason parses the ";reason=R" and ";retry-after=N" parameters
// already split out of a Subscription-State header value.
func parseReason(params map[string]string) (Reason, bool) {
	token, ok := params["reason"]
	if !ok {
		return Reason{}, false
	}
	retryAfter, hasRetry := 0, false
	if v, ok := params["retry-after"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			retryAfter, hasRetry = n, true
		}
	}
	r, err := NewReason(token, retryAfter, hasRetry)
	if err != nil {
		// A malformed pairing (e.g. retry-after on "deactivated") is
		// still a reason — keep the token, drop the invalid retry.
		r = Reason{Code: ReasonOther, Raw: token}
		for c, t := range reasonTokens {
			if strings.EqualFold(t, token) {
				r.Code = c
			}
		}
	}
	return r, true
}

func (r Reason) String() string {
	if r.Code == ReasonNone {
		return ""
	}
	s := fmt.Sprintf(";reason=%s", r.token())
	if r.HasRetry {
		s += fmt.Sprintf(";retry-after=%d", r.RetryAfter)
	}
	return s
}
