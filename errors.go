package cometd

import (
	"fmt"
	"strings"
)

const (
	// ErrClientNotConnected is returned when the client has not completed a
	// handshake
	ErrClientNotConnected = sentinel("client not connected to server")

	// ErrNoSupportedConnectionTypes is returned when a handshake is built
	// without any connection type
	ErrNoSupportedConnectionTypes = sentinel("no supported connection types provided")

	// ErrNoVersion is returned when a version is not provided
	ErrNoVersion = sentinel("no version specified")

	// ErrMissingClientID is returned when the client id has not been set
	ErrMissingClientID = sentinel("missing clientID value")

	// ErrMissingConnectionType is returned when the connection type is unset
	ErrMissingConnectionType = sentinel("missing connectionType value")

	// ErrNoTransport is returned when a message has to be sent but no
	// transport is bound to the session
	ErrNoTransport = sentinel("no transport bound to session")

	// ErrNoServers is returned when a session is created without any server
	// address
	ErrNoServers = sentinel("no server addresses provided")

	// ErrVetoed is returned by an extension to drop a message. Extensions may
	// wrap it.
	ErrVetoed = sentinel("message vetoed by extension")

	// ErrRehandshakeRequired is reported to session listeners when the server
	// advised a new handshake
	ErrRehandshakeRequired = sentinel("server advised a new handshake")

	// ErrTransportDestroyed is returned when sending on a destroyed transport
	ErrTransportDestroyed = sentinel("transport destroyed")
)

type sentinel string

func (s sentinel) Error() string {
	return string(s)
}

// StateError is returned when an operation or a meta reply arrives while the
// session is in a state that does not allow it. A StateError raised while
// receiving is fatal to the session.
type StateError struct {
	Channel  Channel
	Current  State
	Expected []State
}

func (e StateError) Error() string {
	expected := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		expected[i] = s.String()
	}
	return fmt.Sprintf(
		"invalid session state for %s (current: %s, expected: %s)",
		e.Channel,
		e.Current,
		strings.Join(expected, "|"),
	)
}

// NegotiationError is returned when client and server share no transport
type NegotiationError struct {
	ClientTypes []string
	ServerTypes []string
	Version     string
}

func (e NegotiationError) Error() string {
	return fmt.Sprintf(
		"no mutually supported transport for version %s (client: %v, server: %v)",
		e.Version,
		e.ClientTypes,
		e.ServerTypes,
	)
}

// ExtensionError wraps an error returned, or a panic raised, by an
// extension. It is only logged: the message passes through unmodified.
type ExtensionError struct {
	Extension MessageExtender
	Outgoing  bool
	Err       error
}

func (e ExtensionError) Error() string {
	direction := "incoming"
	if e.Outgoing {
		direction = "outgoing"
	}
	return fmt.Sprintf("extension %T failed on %s message (%s)", e.Extension, direction, e.Err)
}

func (e ExtensionError) Unwrap() error {
	return e.Err
}

// AlreadyRegisteredError signifies that the given MessageExtender is already
// registered with the session
type AlreadyRegisteredError struct {
	MessageExtender
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("extension already registered: %T", e.MessageExtender)
}

// BadResponseError is returned when we get an unexpected HTTP response from the server
type BadResponseError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e BadResponseError) Error() string {
	return fmt.Sprintf(
		"expected 200 response from bayeux server, got %d with status '%s' and body '%s'",
		e.StatusCode,
		e.Status,
		e.Body,
	)
}

// BadConnectionTypeError is returned when we don't know how to handle the
// requested connection type
type BadConnectionTypeError struct {
	ConnectionType string
}

func (e BadConnectionTypeError) Error() string {
	return fmt.Sprintf("%q is not a valid connection type", e.ConnectionType)
}

// BadConnectionVersionError is returned when we can't support the requested
// version number
type BadConnectionVersionError struct {
	Version string
}

func (e BadConnectionVersionError) Error() string {
	return fmt.Sprintf("version %q is invalid for Bayeux protocol", e.Version)
}

// InvalidChannelError is the result of a failure to validate a channel name
type InvalidChannelError struct {
	Channel
}

func (e InvalidChannelError) Error() string {
	return fmt.Sprintf("channel %q appears to not be a valid channel", e.Channel)
}

// EmptySliceError is returned when an empty slice is unexpected
type EmptySliceError string

func (e EmptySliceError) Error() string {
	return fmt.Sprintf("no %s provided", string(e))
}

// ErrMessageUnparsable is returned when we fail to parse a message
type ErrMessageUnparsable string

func (e ErrMessageUnparsable) Error() string {
	return fmt.Sprintf("error message not parseable: %s", string(e))
}

// UnknownEventTypeError is returned when the next state is unknown
type UnknownEventTypeError struct {
	Event
}

func (e UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type (%q)", e.Event)
}

// ServerIndexError is returned when selecting a server address that does not
// exist
type ServerIndexError struct {
	Index   int
	Servers int
}

func (e ServerIndexError) Error() string {
	return fmt.Sprintf("server index %d out of range (%d servers)", e.Index, e.Servers)
}
