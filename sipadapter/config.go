package sipadapter

import (
	"fmt"

	"github.com/juju/errors"
)

// Config configures a Stack. Grounded on teams-sip-blf's sip.Config:
// host/transport/identity settings plus the contact the UA advertises.
type Config struct {
	// ListenAddr is the local "host:port" the server transport binds to.
	ListenAddr string
	// Network is "udp", "tcp", or "tls".
	Network string

	// UserAgentName is sent in the User-Agent header.
	UserAgentName string
	// ContactHost/ContactPort build the Contact URI dialogs advertise.
	ContactHost string
	ContactPort int

	Username string
	Password string
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return errors.NotValidf("sipadapter Config.ListenAddr")
	}
	if c.Network == "" {
		return errors.NotValidf("sipadapter Config.Network")
	}
	if c.ContactHost == "" {
		return errors.NotValidf("sipadapter Config.ContactHost")
	}
	return nil
}

func (c Config) contactURI() string {
	if c.ContactPort > 0 {
		return fmt.Sprintf("<sip:%s@%s:%d>", c.Username, c.ContactHost, c.ContactPort)
	}
	return fmt.Sprintf("<sip:%s@%s>", c.Username, c.ContactHost)
}

// ContactURI returns the "<sip:user@host[:port]>" value this config's
// Stack advertises in its Contact header.
func (c Config) ContactURI() string {
	return c.contactURI()
}
