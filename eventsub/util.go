package eventsub

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// newCallID and newTag generate the identifiers spec.md §6 requires the
// core to mint for an outbound initial SUBSCRIBE: a Call-ID and a
// from-tag. Grounded on google/uuid, the generator juju/juju,
// alephcom/teams-sip-blf, emiago/diago and arzzra/soft_phone all use for
// SIP/dialog identifiers (SPEC_FULL.md §3).
func newCallID() string {
	return uuid.NewString()
}

func newTag() string {
	return uuid.NewString()[:8]
}

// InstanceID is the +sip.instance Contact parameter spec.md §6 requires:
// `+sip.instance="<urn:uuid:...>"`.
func InstanceID() string {
	return "<urn:uuid:" + uuid.NewString() + ">"
}

func eventHeaderValue(name, id string, hasID bool) string {
	if !hasID {
		return name
	}
	return name + ";id=" + id
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func joinComma(vs []string) string {
	return strings.Join(vs, ", ")
}

func parseIntHeader(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}
