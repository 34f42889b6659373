// Package auth attaches credentials to a Bayeux conversation, either as an
// HTTP bearer token on every request or inside the handshake extension
// field.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yhtsnda/cometd"
)

// ErrNoToken is returned when a request needs a token and none is set
var ErrNoToken = errors.New("no token provided to bearer transport")

// BearerTransport adds an Authorization header to requests sent to Domain
// or one of its subdomains. Requests to other hosts pass through untouched.
// An empty Domain matches every host.
type BearerTransport struct {
	Token  string
	Domain string
	// Next performs the request. http.DefaultTransport is used when nil.
	Next http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface
func (t *BearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	if !t.matches(r.URL.Hostname()) {
		return next.RoundTrip(r)
	}
	if t.Token == "" {
		return nil, ErrNoToken
	}
	// RoundTrippers must not modify the request they are given
	authorized := r.Clone(r.Context())
	authorized.Header.Set("Authorization", "Bearer "+t.Token)
	return next.RoundTrip(authorized)
}

func (t *BearerTransport) matches(host string) bool {
	if t.Domain == "" {
		return true
	}
	return host == t.Domain || strings.HasSuffix(host, "."+t.Domain)
}

// HandshakeExtension puts Credentials under ext.authentication of every
// /meta/handshake request
type HandshakeExtension struct {
	Credentials map[string]interface{}
}

// Outgoing implements the cometd.MessageExtender interface
func (e *HandshakeExtension) Outgoing(m *cometd.Message) error {
	if m.Channel != cometd.MetaHandshake || len(e.Credentials) == 0 {
		return nil
	}
	credentials := make(map[string]interface{}, len(e.Credentials))
	for k, v := range e.Credentials {
		credentials[k] = v
	}
	m.GetExt(true)["authentication"] = credentials
	return nil
}

// Incoming implements the cometd.MessageExtender interface
func (e *HandshakeExtension) Incoming(*cometd.Message) error { return nil }

// Registered implements the cometd.MessageExtender interface
func (e *HandshakeExtension) Registered(*cometd.ClientSession) {}

// Unregistered implements the cometd.MessageExtender interface
func (e *HandshakeExtension) Unregistered() {}
