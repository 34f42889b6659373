package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/yhtsnda/cometd"
)

type testServer struct {
	engine    *Engine
	transport *LongPollingTransport
	scheduler *fakeScheduler
}

func newTestServer(opts ...Option) *testServer {
	scheduler := &fakeScheduler{}
	engine := NewEngine(append([]Option{WithScheduler(scheduler)}, opts...)...)
	return &testServer{engine: engine, transport: NewLongPollingTransport(engine), scheduler: scheduler}
}

func (s *testServer) post(ctx context.Context, browser string, ms ...cometd.Message) *httptest.ResponseRecorder {
	body, _ := json.Marshal(ms)
	req := httptest.NewRequest(http.MethodPost, "/cometd", strings.NewReader(string(body))).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if browser != "" {
		req.AddCookie(&http.Cookie{Name: DefaultBrowserCookie, Value: browser})
	}
	rec := httptest.NewRecorder()
	s.transport.ServeHTTP(rec, req)
	return rec
}

// postAsync serves the request on its own goroutine, for connects that get
// suspended
func (s *testServer) postAsync(ctx context.Context, browser string, ms ...cometd.Message) <-chan *httptest.ResponseRecorder {
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- s.post(ctx, browser, ms...)
	}()
	return done
}

func (s *testServer) handshake(t *testing.T, browser string) string {
	t.Helper()
	rec := s.post(context.Background(), browser, cometd.Message{
		Channel:                  cometd.MetaHandshake,
		Version:                  cometd.BayeuxVersion,
		SupportedConnectionTypes: []string{cometd.ConnectionTypeLongPolling},
	})
	replies := decode(t, rec)
	if len(replies) != 1 || !replies[0].Successful {
		t.Fatalf("handshake failed: %s", rec.Body.String())
	}
	return replies[0].ClientID
}

func connect(clientID string) cometd.Message {
	return cometd.Message{Channel: cometd.MetaConnect, ClientID: clientID, ConnectionType: cometd.ConnectionTypeLongPolling}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) []cometd.Message {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	ms, err := cometd.JSONCodec{}.Decode(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("unparsable response %q: %q", rec.Body.String(), err)
	}
	return ms
}

func receive(t *testing.T, done <-chan *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	select {
	case rec := <-done:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("request was never answered")
		return nil
	}
}

func (s *testServer) waitSuspended(t *testing.T, clientID string) *LongPollScheduler {
	t.Helper()
	session, ok := s.engine.Session(clientID)
	if !ok {
		t.Fatalf("unknown session %s", clientID)
	}
	eventually(t, "connect to be suspended", func() bool { return session.pending.Load() != nil })
	return session.pending.Load()
}

func TestLongPollingTransport_BadRequests(t *testing.T) {
	s := newTestServer()
	testCases := []struct {
		name string
		req  *http.Request
	}{
		{"not json", httptest.NewRequest(http.MethodPost, "/cometd", strings.NewReader("nope"))},
		{"get without message", httptest.NewRequest(http.MethodGet, "/cometd", nil)},
		{"form with empty message", httptest.NewRequest(http.MethodGet, "/cometd?message=", nil)},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.transport.ServeHTTP(rec, tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestLongPollingTransport_FormHandshake(t *testing.T) {
	s := newTestServer()
	batch := `[{"channel":"/meta/handshake","version":"1.0","supportedConnectionTypes":["long-polling"]}]`
	req := httptest.NewRequest(http.MethodGet, "/cometd?"+url.Values{messageParam: {batch}}.Encode(), nil)
	rec := httptest.NewRecorder()
	s.transport.ServeHTTP(rec, req)

	replies := decode(t, rec)
	if len(replies) != 1 || !replies[0].Successful || replies[0].ClientID == "" {
		t.Fatalf("unexpected replies %+v", replies)
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 1 || cookies[0].Name != DefaultBrowserCookie {
		t.Fatalf("expected a browser cookie, got %v", cookies)
	}
}

func TestLongPollingTransport_ConnectResumedByMessage(t *testing.T) {
	s := newTestServer()
	clientID := s.handshake(t, "b1")
	replies := decode(t, s.post(context.Background(), "b1", cometd.Message{Channel: cometd.MetaSubscribe, ClientID: clientID, Subscription: "/chat/*"}))
	if len(replies) != 1 || !replies[0].Successful {
		t.Fatalf("subscribe failed: %+v", replies)
	}

	done := s.postAsync(context.Background(), "b1", connect(clientID))
	s.waitSuspended(t, clientID)
	if _, err := s.engine.Publish("/chat/room", json.RawMessage(`"hi"`)); err != nil {
		t.Fatalf("unexpected error: %q", err)
	}

	replies = decode(t, receive(t, done))
	if len(replies) != 2 {
		t.Fatalf("expected the message and the connect reply, got %+v", replies)
	}
	if replies[0].Channel != "/chat/room" || string(replies[0].Data) != `"hi"` {
		t.Errorf("unexpected message %+v", replies[0])
	}
	if replies[1].Channel != cometd.MetaConnect || !replies[1].Successful {
		t.Errorf("unexpected connect reply %+v", replies[1])
	}
	if n := s.transport.browsers.count("b1"); n != 0 {
		t.Errorf("expected the browser slot to be released, got %d", n)
	}
	if n := len(s.scheduler.pending(DefaultMaxInterval)); n != 1 {
		t.Errorf("expected the interval timer to restart, got %d", n)
	}
}

func TestLongPollingTransport_ConnectResumedByTimeout(t *testing.T) {
	s := newTestServer()
	clientID := s.handshake(t, "b1")
	done := s.postAsync(context.Background(), "b1", connect(clientID))
	s.waitSuspended(t, clientID)

	if n := s.scheduler.fire(DefaultTimeout); n != 1 {
		t.Fatalf("expected one timeout task, got %d", n)
	}
	replies := decode(t, receive(t, done))
	if len(replies) != 1 || replies[0].Channel != cometd.MetaConnect || !replies[0].Successful {
		t.Fatalf("unexpected replies %+v", replies)
	}
}

func TestLongPollingTransport_QueuedMessagesAnswerImmediately(t *testing.T) {
	s := newTestServer()
	clientID := s.handshake(t, "b1")
	session, _ := s.engine.Session(clientID)
	session.Deliver(cometd.Message{Channel: "/chat/room", Data: json.RawMessage(`1`)})

	replies := decode(t, s.post(context.Background(), "b1", connect(clientID)))
	if len(replies) != 2 || replies[0].Channel != "/chat/room" {
		t.Fatalf("unexpected replies %+v", replies)
	}
}

func TestLongPollingTransport_SecondConnectReplacesFirst(t *testing.T) {
	s := newTestServer(WithMaxSessionsPerBrowser(0))
	clientID := s.handshake(t, "b1")

	first := s.postAsync(context.Background(), "b1", connect(clientID))
	firstSC := s.waitSuspended(t, clientID)
	second := s.postAsync(context.Background(), "b2", connect(clientID))

	replies := decode(t, receive(t, first))
	if len(replies) != 1 || replies[0].Channel != cometd.MetaConnect {
		t.Fatalf("unexpected replies for the replaced connect %+v", replies)
	}
	session, _ := s.engine.Session(clientID)
	eventually(t, "second connect to be suspended", func() bool {
		sc := session.pending.Load()
		return sc != nil && sc != firstSC
	})

	session.Deliver(cometd.Message{Channel: "/chat/room", Data: json.RawMessage(`1`)})
	if replies := decode(t, receive(t, second)); len(replies) != 2 {
		t.Fatalf("expected the second connect to carry the message, got %+v", replies)
	}
}

func TestLongPollingTransport_BrowserLimit(t *testing.T) {
	s := newTestServer()
	first := s.handshake(t, "b1")
	second := s.handshake(t, "b1")

	held := s.postAsync(context.Background(), "b1", connect(first))
	s.waitSuspended(t, first)

	replies := decode(t, s.post(context.Background(), "b1", connect(second)))
	if len(replies) != 1 {
		t.Fatalf("unexpected replies %+v", replies)
	}
	advice := replies[0].Advice
	if advice == nil || !advice.MultipleClients || advice.Reconnect != cometd.ReconnectRetry {
		t.Fatalf("expected multiple clients advice, got %+v", advice)
	}
	if want := int(DefaultMultiSessionInterval / time.Millisecond); advice.Interval != want {
		t.Errorf("expected interval %d, got %d", want, advice.Interval)
	}

	s.scheduler.fire(DefaultTimeout)
	receive(t, held)
}

func TestLongPollingTransport_DisconnectReleasesConnect(t *testing.T) {
	s := newTestServer()
	clientID := s.handshake(t, "b1")
	held := s.postAsync(context.Background(), "b1", connect(clientID))
	s.waitSuspended(t, clientID)

	replies := decode(t, s.post(context.Background(), "b1", cometd.Message{Channel: cometd.MetaDisconnect, ClientID: clientID}))
	if len(replies) != 1 || !replies[0].Successful {
		t.Fatalf("unexpected disconnect replies %+v", replies)
	}
	replies = decode(t, receive(t, held))
	if len(replies) != 1 || replies[0].Advice == nil || replies[0].Advice.Reconnect != cometd.ReconnectNone {
		t.Fatalf("expected the held connect to advise none, got %+v", replies)
	}
}

func TestLongPollingTransport_CancelledRequest(t *testing.T) {
	s := newTestServer()
	clientID := s.handshake(t, "b1")
	ctx, cancel := context.WithCancel(context.Background())
	held := s.postAsync(ctx, "b1", connect(clientID))
	s.waitSuspended(t, clientID)
	cancel()

	rec := receive(t, held)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if n := s.transport.browsers.count("b1"); n != 0 {
		t.Errorf("expected the browser slot to be released, got %d", n)
	}
}

// channelFailingCodec fails to encode messages on one channel
type channelFailingCodec struct {
	cometd.JSONCodec
	channel cometd.Channel
}

func (c channelFailingCodec) Encode(m *cometd.Message) ([]byte, error) {
	if m.Channel == c.channel {
		return nil, errors.New("unencodable")
	}
	return c.JSONCodec.Encode(m)
}

func TestLongPollingTransport_LargeReplyFailsCleanly(t *testing.T) {
	s := newTestServer(WithCodec(channelFailingCodec{channel: cometd.MetaConnect}))
	large := json.RawMessage(`"` + strings.Repeat("x", 8000) + `"`)
	rec := httptest.NewRecorder()

	s.transport.write(rec, nil, false,
		[]cometd.Message{{Channel: "/chat", Data: large}},
		[]*cometd.Message{{Channel: cometd.MetaConnect, Successful: true}},
	)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if want := http.StatusText(http.StatusInternalServerError) + "\n"; rec.Body.String() != want {
		t.Fatalf("expected only the error body, got %d bytes starting %.40q", rec.Body.Len(), rec.Body.String())
	}
}

func TestLongPollingTransport_LargeReplyWritten(t *testing.T) {
	s := newTestServer()
	large := json.RawMessage(`"` + strings.Repeat("x", 8000) + `"`)
	rec := httptest.NewRecorder()

	s.transport.write(rec, nil, false,
		[]cometd.Message{{Channel: "/chat", Data: large}},
		[]*cometd.Message{{Channel: cometd.MetaConnect, Successful: true}},
	)

	replies := decode(t, rec)
	if len(replies) != 2 || string(replies[0].Data) != string(large) {
		t.Fatalf("unexpected replies (%d)", len(replies))
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected a JSON content type, got %q", ct)
	}
}
