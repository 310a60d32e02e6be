// Package sipstack defines the narrow interfaces the RFC 6665 subscriber
// and notifier core consumes from the surrounding SIP stack: dialogs,
// transactions, timers, the user-agent dialog registry, and request/
// response message accessors.
//
// None of these types parse or serialize SIP wire format. Message
// parsing and serialization, transaction retransmission, and transport
// selection are provided by a real stack (see package sipadapter for a
// binding onto github.com/emiago/sipgo) — the core in package eventsub
// only ever talks to the interfaces declared here.
package sipstack
