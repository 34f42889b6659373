package cometd

import (
	"encoding/json"
	"slices"
)

// HandshakeRequestBuilder assembles the first message a client sends,
// announcing its protocol version and the connection types it can use.
//
// See also: https://docs.cometd.org/current/reference/#_handshake_request
type HandshakeRequestBuilder struct {
	version        string
	minimumVersion string
	connTypes      []string
}

// NewHandshakeRequestBuilder returns an empty HandshakeRequestBuilder
func NewHandshakeRequestBuilder() *HandshakeRequestBuilder {
	return &HandshakeRequestBuilder{}
}

// AddSupportedConnectionType offers another connection type to the server.
// Connection types are the names of the registered client transports, so any
// non-empty name is accepted. Repeats keep their first position.
func (b *HandshakeRequestBuilder) AddSupportedConnectionType(connectionType string) error {
	if connectionType == "" {
		return BadConnectionTypeError{connectionType}
	}
	if !slices.Contains(b.connTypes, connectionType) {
		b.connTypes = append(b.connTypes, connectionType)
	}
	return nil
}

// AddVersion sets the protocol version the client speaks
func (b *HandshakeRequestBuilder) AddVersion(version string) error {
	if _, ok := majorVersion(version); !ok {
		return BadConnectionVersionError{version}
	}
	b.version = version
	return nil
}

// AddMinimumVersion sets the oldest protocol version the client accepts
func (b *HandshakeRequestBuilder) AddMinimumVersion(version string) error {
	if _, ok := majorVersion(version); !ok {
		return BadConnectionVersionError{version}
	}
	b.minimumVersion = version
	return nil
}

// Build returns the /meta/handshake message. A version and at least one
// connection type are required.
func (b *HandshakeRequestBuilder) Build() ([]Message, error) {
	switch {
	case len(b.connTypes) == 0:
		return nil, ErrNoSupportedConnectionTypes
	case b.version == "":
		return nil, ErrNoVersion
	}
	return []Message{{
		Channel:                  MetaHandshake,
		Version:                  b.version,
		MinimumVersion:           b.minimumVersion,
		SupportedConnectionTypes: slices.Clone(b.connTypes),
	}}, nil
}

// ConnectRequestBuilder assembles a /meta/connect message, the long poll a
// connected client keeps open.
//
// See also: https://docs.cometd.org/current/reference/#_connect_request
type ConnectRequestBuilder struct {
	clientID string
	connType string
}

// NewConnectRequestBuilder returns an empty ConnectRequestBuilder
func NewConnectRequestBuilder() *ConnectRequestBuilder {
	return &ConnectRequestBuilder{}
}

// AddClientID sets the id the server assigned during the handshake
func (b *ConnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddConnectionType sets the name of the transport negotiated during the
// handshake.
func (b *ConnectRequestBuilder) AddConnectionType(connectionType string) error {
	if connectionType == "" {
		return BadConnectionTypeError{connectionType}
	}
	b.connType = connectionType
	return nil
}

// Build returns the /meta/connect message
func (b *ConnectRequestBuilder) Build() ([]Message, error) {
	switch {
	case b.clientID == "":
		return nil, ErrMissingClientID
	case b.connType == "":
		return nil, ErrMissingConnectionType
	}
	return []Message{{Channel: MetaConnect, ClientID: b.clientID, ConnectionType: b.connType}}, nil
}

// channelRequestBuilder holds what /meta/subscribe and /meta/unsubscribe have
// in common: one message per distinct channel, all for the same client.
type channelRequestBuilder struct {
	meta     Channel
	clientID string
	channels []Channel
}

// AddClientID sets the id the server assigned during the handshake
func (b *channelRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddSubscription adds a channel to the request. Wildcards are allowed; meta
// channels are not. A channel added twice is sent once.
func (b *channelRequestBuilder) AddSubscription(c Channel) error {
	if !c.IsValid() || c.IsMeta() {
		return InvalidChannelError{c}
	}
	if !slices.Contains(b.channels, c) {
		b.channels = append(b.channels, c)
	}
	return nil
}

// Build returns one message per channel, in the order they were added
func (b *channelRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}
	if len(b.channels) == 0 {
		return nil, EmptySliceError("subscriptions")
	}
	ms := make([]Message, 0, len(b.channels))
	for _, c := range b.channels {
		ms = append(ms, Message{Channel: b.meta, ClientID: b.clientID, Subscription: c})
	}
	return ms, nil
}

// SubscribeRequestBuilder assembles /meta/subscribe messages.
//
// See also: https://docs.cometd.org/current/reference/#_subscribe_request
type SubscribeRequestBuilder struct {
	channelRequestBuilder
}

// NewSubscribeRequestBuilder returns an empty SubscribeRequestBuilder
func NewSubscribeRequestBuilder() *SubscribeRequestBuilder {
	return &SubscribeRequestBuilder{channelRequestBuilder{meta: MetaSubscribe}}
}

// UnsubscribeRequestBuilder assembles /meta/unsubscribe messages.
//
// See also: https://docs.cometd.org/current/reference/#_unsubscribe_request
type UnsubscribeRequestBuilder struct {
	channelRequestBuilder
}

// NewUnsubscribeRequestBuilder returns an empty UnsubscribeRequestBuilder
func NewUnsubscribeRequestBuilder() *UnsubscribeRequestBuilder {
	return &UnsubscribeRequestBuilder{channelRequestBuilder{meta: MetaUnsubscribe}}
}

// DisconnectRequestBuilder assembles the /meta/disconnect message that ends
// a session.
type DisconnectRequestBuilder struct {
	clientID string
}

// NewDisconnectRequestBuilder returns an empty DisconnectRequestBuilder
func NewDisconnectRequestBuilder() *DisconnectRequestBuilder {
	return &DisconnectRequestBuilder{}
}

// AddClientID sets the id of the session to end
func (b *DisconnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// Build returns the /meta/disconnect message
func (b *DisconnectRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}
	return []Message{{Channel: MetaDisconnect, ClientID: b.clientID}}, nil
}

// PublishRequestBuilder builds a message published on an application channel
//
// See also: https://docs.cometd.org/current/reference/#_publish_request
type PublishRequestBuilder struct {
	clientID string
	channel  Channel
	data     json.RawMessage
}

// NewPublishRequestBuilder initializes a PublishRequestBuilder
func NewPublishRequestBuilder() *PublishRequestBuilder {
	return &PublishRequestBuilder{}
}

// AddClientID sets the id of the publishing session
func (b *PublishRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddChannel sets the channel to publish on. Meta and wildcard channels are
// rejected.
func (b *PublishRequestBuilder) AddChannel(c Channel) error {
	if !c.IsValid() || c.IsMeta() || c.HasWildcard() {
		return InvalidChannelError{c}
	}
	b.channel = c
	return nil
}

// AddData marshals data as the message payload. A json.RawMessage is used
// as is.
func (b *PublishRequestBuilder) AddData(data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.data = raw
	return nil
}

// Build generates the final Message to be published
func (b *PublishRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}
	if b.channel == emptyChannel {
		return nil, InvalidChannelError{b.channel}
	}
	return []Message{{Channel: b.channel, ClientID: b.clientID, Data: b.data}}, nil
}
