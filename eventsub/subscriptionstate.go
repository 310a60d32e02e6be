package eventsub

import (
	"fmt"
	"strconv"
	"strings"
)

// SubState is the state token carried in a Subscription-State header.
type SubState int

const (
	SubStatePending SubState = iota
	SubStateActive
	SubStateTerminated
)

func (s SubState) String() string {
	switch s {
	case SubStatePending:
		return "pending"
	case SubStateActive:
		return "active"
	case SubStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SubscriptionState is the parsed form of a Subscription-State header:
// "<state>[;expires=N][;reason=R][;retry-after=N]" (spec.md §6).
type SubscriptionState struct {
	State      SubState
	Expires    int
	HasExpires bool
	Reason     Reason
}

// ParseSubscriptionState parses a raw Subscription-State header value.
// ok is false when the header is absent or the leading state token is
// unrecognised — spec.md §4.1 requires a 400 + RECEIVE_BAD_NOTIFY in
// that case.
func ParseSubscriptionState(raw string) (SubscriptionState, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SubscriptionState{}, false
	}
	parts := strings.Split(raw, ";")
	var state SubState
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "pending":
		state = SubStatePending
	case "active":
		state = SubStateActive
	case "terminated":
		state = SubStateTerminated
	default:
		return SubscriptionState{}, false
	}

	params := map[string]string{}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	ss := SubscriptionState{State: state}
	if v, ok := params["expires"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			ss.Expires, ss.HasExpires = n, true
		}
	}
	if reason, ok := parseReason(params); ok {
		ss.Reason = reason
	}
	return ss, true
}

// Compose renders a Subscription-State header value. Per spec.md §4.2 it
// is "<state>;expires=<remaining>" when not terminated, else
// "terminated[;reason=R][;retry-after=N]" — expires is never attached to
// a terminated state, matching the resolved legacy inconsistency in
// spec.md §9 (state is set to terminated before composing, so the
// remaining-expires branch is never taken for the final NOTIFY).
func (s SubscriptionState) Compose() string {
	if s.State == SubStateTerminated {
		return "terminated" + s.Reason.String()
	}
	return fmt.Sprintf("%s;expires=%d", s.State, s.Expires)
}
