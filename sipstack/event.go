package sipstack

import "strings"

// EventID is the (name, id?) pair parsed from an Event header. Two
// EventIDs are equal iff their Name matches case-insensitively and
// either both HasID is false, or both HasID is true and ID matches.
// An Event header that is missing or fails to parse yields NoEventID,
// the zero EventID, whose empty Name no well-formed EventID has.
type EventID struct {
	Name  string
	ID    string
	HasID bool
}

// NoEventID is the sentinel returned by Request.ParseHeader("Event")
// when the header is missing or fails to parse. It is distinguishable
// from any well-formed EventID because Name is empty, which is never a
// valid event package name.
var NoEventID = EventID{}

// Matches reports whether two EventIDs identify the same subscription,
// per spec.md §3 ("Two NOTIFYs match a SUBSCRIBE iff both name and id
// are equal; id absence on both sides is equal").
func (e EventID) Matches(o EventID) bool {
	if !strings.EqualFold(e.Name, o.Name) {
		return false
	}
	if e.HasID != o.HasID {
		return false
	}
	return !e.HasID || e.ID == o.ID
}

func (e EventID) String() string {
	if !e.HasID {
		return e.Name
	}
	return e.Name + ";id=" + e.ID
}

// ParseEventID parses a raw Event header value ("name" or
// "name;id=xxx") into an EventID. It is the reference grammar used by
// package sipadapter to implement Request.ParseHeader("Event"); the
// core never calls it directly — it only consumes the result through
// Request.ParseHeader, per spec.md §6 ("Event header parser yielding
// {event, params{id?}}").
func ParseEventID(raw string) (EventID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NoEventID, false
	}
	parts := strings.Split(raw, ";")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return NoEventID, false
	}
	id := EventID{Name: name}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(k), "id") {
			id.ID = strings.TrimSpace(v)
			id.HasID = true
		}
	}
	return id, true
}
