// Package sipadapter binds the narrow sipstack interfaces onto a real SIP
// stack, github.com/emiago/sipgo. It owns everything package sipstack
// declares out of scope for the eventsub core: message parsing, dialog
// construction and route-set bookkeeping, transaction retransmission,
// digest authentication, and transport.
//
// Nothing in here understands RFC 6665 subscription semantics; it only
// moves bytes and dialogs around on behalf of package eventsub.
package sipadapter
