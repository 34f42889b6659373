// Package cometdtest provides an in-process Bayeux server usable as an
// http.RoundTripper in client tests.
package cometdtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
	"github.com/yhtsnda/cometd"
)

// Logger is satisfied by *testing.T
type Logger interface {
	Log(args ...any)
	Logf(format string, args ...any)
}

// Server answers Bayeux requests without holding connects: a /meta/connect
// reply carries whatever was published to the session since the last one.
type Server struct {
	log Logger

	mu       sync.Mutex
	running  bool
	subs     map[string][]cometd.Channel
	queued   map[string][]cometd.Message
	requests []cometd.Message

	handshakeError  bool
	connectionTypes []string
	advice          *cometd.Advice
}

// NewServer creates a stopped Server
func NewServer(logger Logger, opts ...ServerOpts) *Server {
	server := &Server{
		log:             logger,
		subs:            make(map[string][]cometd.Channel),
		queued:          make(map[string][]cometd.Message),
		connectionTypes: []string{cometd.ConnectionTypeLongPolling},
		advice: &cometd.Advice{
			Reconnect: cometd.ReconnectRetry,
			Timeout:   int(30 * time.Second / time.Millisecond),
			Interval:  int(time.Second / time.Millisecond),
		},
	}
	for _, opt := range opts {
		opt.apply(server)
	}
	return server
}

// Start makes the server answer requests
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	return nil
}

// Stop makes every request fail
func (s *Server) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// Requests returns every message received so far
func (s *Server) Requests() []cometd.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cometd.Message(nil), s.requests...)
}

// Publish queues data for every client subscribed to channel
func (s *Server) Publish(channel cometd.Channel, data json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for clientID, channels := range s.subs {
		for _, ch := range channels {
			if ch.Match(channel) {
				s.queued[clientID] = append(s.queued[clientID], cometd.Message{
					Channel: channel,
					ID:      generateID(),
					Data:    data,
				})
				break
			}
		}
	}
}

// RoundTrip implements http.RoundTripper
func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, errors.New("server not running")
	}

	defer func() {
		if err := req.Body.Close(); err != nil {
			s.log.Logf("could not close test server request body: %+v", err)
		}
	}()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("issue reading body (%w)", err)
	}

	var msgs []cometd.Message
	if err := json.Unmarshal(body, &msgs); err != nil {
		return response(http.StatusUnprocessableEntity, nil), nil
	}
	s.requests = append(s.requests, msgs...)

	replies := []cometd.Message{}
	for _, msg := range msgs {
		switch msg.Channel {
		case cometd.MetaHandshake:
			if s.handshakeError {
				return response(http.StatusBadRequest, []byte(`{"error":"Invalid request"}`)), nil
			}
			replies = append(replies, cometd.Message{
				Channel:                  cometd.MetaHandshake,
				Version:                  msg.Version,
				SupportedConnectionTypes: s.connectionTypes,
				ClientID:                 generateID(),
				Successful:               true,
				Advice:                   s.advice,
				ID:                       msg.ID,
				Ext:                      msg.Ext,
			})
		case cometd.MetaConnect:
			replies = append(replies, s.queued[msg.ClientID]...)
			delete(s.queued, msg.ClientID)
			replies = append(replies, cometd.Message{
				Channel:    cometd.MetaConnect,
				Successful: true,
				ClientID:   msg.ClientID,
				Advice:     s.advice,
				ID:         msg.ID,
			})
		case cometd.MetaSubscribe:
			reply := cometd.Message{
				Channel:      cometd.MetaSubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			}
			for _, ch := range s.subs[msg.ClientID] {
				if ch == msg.Subscription {
					reply.Successful = false
					reply.Error = fmt.Sprintf("403:%s:already subscribed", msg.Subscription)
				}
			}
			if reply.Successful {
				s.subs[msg.ClientID] = append(s.subs[msg.ClientID], msg.Subscription)
			}
			replies = append(replies, reply)
		case cometd.MetaUnsubscribe:
			reply := cometd.Message{
				Channel:      cometd.MetaUnsubscribe,
				ID:           msg.ID,
				ClientID:     msg.ClientID,
				Successful:   true,
				Subscription: msg.Subscription,
			}
			found := false
			subs := []cometd.Channel{}
			for _, ch := range s.subs[msg.ClientID] {
				if ch == msg.Subscription {
					found = true
					continue
				}
				subs = append(subs, ch)
			}
			s.subs[msg.ClientID] = subs
			if !found {
				reply.Successful = false
				reply.Error = fmt.Sprintf("403:%s:not subscribed", msg.Subscription)
			}
			replies = append(replies, reply)
		case cometd.MetaDisconnect:
			delete(s.subs, msg.ClientID)
			delete(s.queued, msg.ClientID)
			replies = append(replies, cometd.Message{
				Channel:    cometd.MetaDisconnect,
				ID:         msg.ID,
				ClientID:   msg.ClientID,
				Successful: true,
			})
		default:
			replies = append(replies, cometd.Message{
				Channel:    msg.Channel,
				ID:         msg.ID,
				Successful: true,
			})
		}
	}

	reply, err := json.Marshal(replies)
	if err != nil {
		return nil, fmt.Errorf("issue marshaling body (%w)", err)
	}
	return response(http.StatusOK, reply), nil
}

func response(code int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

func generateID() string {
	return uuid.NewV4().String()
}
