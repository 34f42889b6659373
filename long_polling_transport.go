package cometd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const maxErrorBody = 4096

// LongPollingTransport is the HTTP long-polling ClientTransport. Each Send is
// one POST of a JSON array, performed on its own goroutine so a held
// /meta/connect never blocks publishes.
type LongPollingTransport struct {
	client    *http.Client
	codec     Codec
	logger    Logger
	listeners cowList[TransportListener]

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewLongPollingTransport creates the long-polling transport. A nil client
// gets a fresh http.Client with a cookie jar so the browser cookie set by
// the server is replayed on every request.
func NewLongPollingTransport(client *http.Client, logger Logger) (*LongPollingTransport, error) {
	if client == nil {
		var err error
		if client, err = newCookieClient(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = NewNullLogger()
	}
	return &LongPollingTransport{
		client: client,
		codec:  JSONCodec{},
		logger: logger.WithField("transport", ConnectionTypeLongPolling),
	}, nil
}

func newCookieClient() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar}, nil
}

// Name implements the ClientTransport interface
func (t *LongPollingTransport) Name() string {
	return ConnectionTypeLongPolling
}

// Accept implements the ClientTransport interface
func (t *LongPollingTransport) Accept(version string) bool {
	major, ok := majorVersion(version)
	return ok && major == 1
}

// Init implements the ClientTransport interface
func (t *LongPollingTransport) Init(session *ClientSession) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return nil
}

// NewMessage implements the ClientTransport interface
func (t *LongPollingTransport) NewMessage() *Message {
	return &Message{}
}

// AddListener implements the ClientTransport interface
func (t *LongPollingTransport) AddListener(l TransportListener) {
	t.listeners.addUnique(l)
}

// RemoveListener implements the ClientTransport interface
func (t *LongPollingTransport) RemoveListener(l TransportListener) {
	t.listeners.remove(l)
}

// Destroy implements the ClientTransport interface
func (t *LongPollingTransport) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.ctx, t.cancel = nil, nil
}

// Send implements the ClientTransport interface
func (t *LongPollingTransport) Send(endpoint string, ms ...Message) error {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return ErrTransportDestroyed
	}
	body, err := t.codec.EncodeBatch(ms)
	if err != nil {
		return err
	}
	go t.exchange(ctx, endpoint, body, ms)
	return nil
}

func (t *LongPollingTransport) exchange(ctx context.Context, endpoint string, body []byte, ms []Message) {
	logger := t.logger.WithField("at", "exchange")
	start := time.Now()
	logger.Debug("starting", "messages", len(ms))

	resp, err := t.request(ctx, endpoint, body)
	if err == nil {
		var replies []Message
		replies, err = t.parseResponse(resp)
		if err == nil {
			logger.Debug("finishing", "duration", time.Since(start), "replies", len(replies))
			for _, l := range t.listeners.snapshot() {
				l.OnMessages(replies)
			}
			return
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Debug("exchange abandoned by destroyed transport")
		return
	}
	logger.WithError(err).Debug("exchange failed")
	for _, l := range t.listeners.snapshot() {
		l.OnFailure(err, ms)
	}
}

func (t *LongPollingTransport) request(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	return t.client.Do(req)
}

func (t *LongPollingTransport) parseResponse(resp *http.Response) ([]Message, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, BadResponseError{resp.StatusCode, resp.Status, body}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return t.codec.Decode(body)
}
