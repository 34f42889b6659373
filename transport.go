package cometd

import (
	"strconv"
	"strings"
)

// ClientTransport is the capability every client transport variant
// implements. The session selects one at handshake time from a
// TransportRegistry and swaps it in as a whole.
type ClientTransport interface {
	// Name is the connection type advertised during the handshake
	Name() string
	// Accept reports whether the transport can speak the given Bayeux
	// protocol version
	Accept(version string) bool
	// Init prepares the transport for use by session
	Init(session *ClientSession) error
	// Send transmits messages to endpoint. Replies are delivered to the
	// registered TransportListeners, never returned.
	Send(endpoint string, ms ...Message) error
	// NewMessage returns an empty mutable message
	NewMessage() *Message
	AddListener(TransportListener)
	RemoveListener(TransportListener)
	// Destroy releases the transport. Exchanges still in flight are
	// abandoned.
	Destroy()
}

// TransportListener receives what a ClientTransport reads from the server
type TransportListener interface {
	OnMessages(ms []Message)
	OnFailure(err error, ms []Message)
}

// TransportRegistry holds the client transports in preference order
type TransportRegistry struct {
	transports []ClientTransport
}

// NewTransportRegistry creates a registry; the order of transports is the
// client preference order used by Negotiate.
func NewTransportRegistry(transports ...ClientTransport) *TransportRegistry {
	return &TransportRegistry{transports: transports}
}

// Names returns the connection types of the registered transports, in
// preference order
func (r *TransportRegistry) Names() []string {
	names := make([]string, 0, len(r.transports))
	for _, t := range r.transports {
		names = append(names, t.Name())
	}
	return names
}

// Get returns the transport registered for a connection type
func (r *TransportRegistry) Get(name string) ClientTransport {
	for _, t := range r.transports {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Negotiate scans the client preference order and returns the first
// transport that the server also lists and that accepts version. It returns
// nil when there is none.
func (r *TransportRegistry) Negotiate(serverTypes []string, version string) ClientTransport {
	for _, t := range r.transports {
		if !t.Accept(version) {
			continue
		}
		for _, st := range serverTypes {
			if st == t.Name() {
				return t
			}
		}
	}
	return nil
}

// first returns the preferred transport accepting version
func (r *TransportRegistry) first(version string) ClientTransport {
	for _, t := range r.transports {
		if t.Accept(version) {
			return t
		}
	}
	return nil
}

func majorVersion(version string) (int, bool) {
	pieces := strings.SplitN(version, ".", 2)
	major, err := strconv.Atoi(pieces[0])
	if err != nil {
		return 0, false
	}
	return major, true
}
