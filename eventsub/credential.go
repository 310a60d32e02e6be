package eventsub

import (
	"github.com/icholy/digest"

	"github.com/rainliu/sipevent/sipstack"
)

// DigestCredential adapts github.com/icholy/digest to the
// sipstack.Credential interface spec.md §3 calls the Subscription's
// "optional credential". The transaction layer (out of scope per
// spec.md §1) is the one that actually answers a 401/407 challenge with
// it; the core only stores and forwards it unchanged.
type DigestCredential struct {
	Username string
	Password string
}

var _ sipstack.Credential = DigestCredential{}

func (DigestCredential) Scheme() string { return "Digest" }

// Answer computes the Authorization header value for chal using this
// credential, delegating the actual digest arithmetic to
// github.com/icholy/digest so the core never reimplements RFC 7616 math.
func (c DigestCredential) Answer(chal *digest.Challenge, method, uri string) (*digest.Credentials, error) {
	return digest.Digest(chal, digest.Options{
		Method:   method,
		URI:      uri,
		Username: c.Username,
		Password: c.Password,
	})
}
