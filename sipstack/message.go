package sipstack

// Header is a single SIP header: a name and its raw, unparsed value.
type Header struct {
	Name  string
	Value string
}

// Request is the narrow view of an inbound or outbound SIP request the
// core needs. A concrete stack (see package sipadapter) adapts its own
// request type to this interface; the core never constructs one of its
// own — it only reads from and replies to what the stack hands it.
type Request interface {
	Method() string
	Body() []byte

	From() string
	To() string
	CallID() string
	CSeq() int
	ToTag() string
	FromTag() string

	// GetHeader returns the first header with the given name, or nil.
	GetHeader(name string) *Header
	// GetHeaders returns every header with the given name.
	GetHeaders(name string) []Header
	HasHeader(name string) bool

	// ParseHeader parses the named header into a structured value using
	// the stack's own grammar. The Event header is the only one the core
	// relies on; ParseHeader("Event") must return an EventID and true, or
	// the zero EventID and false when the header is absent or malformed.
	ParseHeader(name string) (any, bool)

	// Reply sends a response to this request through the transaction
	// that delivered it. extraHeaders is appended verbatim.
	Reply(code int, reason string, extraHeaders []Header) error
}

// Response is the narrow view of a SIP response delivered to a client
// transaction callback.
type Response interface {
	StatusCode() int
	ReasonPhrase() string
	Body() []byte

	GetHeader(name string) *Header
	GetHeaders(name string) []Header
	HasHeader(name string) bool

	// RecordRoutes returns the Record-Route header values in wire order
	// (top to bottom); the core reverses this list to form the route set.
	RecordRoutes() []string

	ToTag() string
}
