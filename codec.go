package cometd

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec translates between messages and their wire text
type Codec interface {
	// Encode serializes a single message
	Encode(m *Message) ([]byte, error)
	// EncodeBatch serializes messages as one array
	EncodeBatch(ms []Message) ([]byte, error)
	// Decode parses a payload holding either one message or an array
	Decode(data []byte) ([]Message, error)
}

// JSONCodec is the Codec used on the wire by the long-polling transports
type JSONCodec struct{}

// Encode implements the Codec interface
func (JSONCodec) Encode(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// EncodeBatch implements the Codec interface
func (JSONCodec) EncodeBatch(ms []Message) ([]byte, error) {
	return json.Marshal(ms)
}

// Decode implements the Codec interface
func (JSONCodec) Decode(data []byte) ([]Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, EmptySliceError("messages")
	}
	if data[0] == '{' {
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding message (%w)", err)
		}
		return []Message{m}, nil
	}
	messages := make([]Message, 0)
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decoding messages (%w)", err)
	}
	return messages, nil
}
