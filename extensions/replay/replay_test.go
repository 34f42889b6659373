package replay

import (
	"encoding/json"
	"testing"

	"github.com/yhtsnda/cometd"
)

func TestNewInitializesOurState(t *testing.T) {
	e := New(nil)
	if e.Supported() {
		t.Error("extension should not start out supported")
	}
	if e.store == nil {
		t.Error("extension should default to a map storage")
	}
}

func TestOutgoingMetaHandshake(t *testing.T) {
	e := New(nil)
	m := cometd.Message{Channel: cometd.MetaHandshake}
	if err := e.Outgoing(&m); err != nil {
		t.Fatalf("unexpected error: %q", err)
	}
	value, ok := m.Ext[ExtensionName].(bool)
	if !ok {
		t.Fatal("replay extension was not included in the handshake")
	}
	if !value {
		t.Fatal("replay extension not set to true")
	}
}

func TestSupportedOutgoingMetaSubscribe(t *testing.T) {
	want := 1234
	e := New(&MapStorage{store: map[string]int{"/foo/bar": want}})
	e.supportedByServer.Store(true)
	m := cometd.Message{Channel: cometd.MetaSubscribe}
	if err := e.Outgoing(&m); err != nil {
		t.Fatalf("unexpected error: %q", err)
	}

	value, ok := m.Ext[ExtensionName].(map[string]int)
	if !ok {
		t.Fatal("replay extension value couldn't coerce to a map")
	}
	if len(value) != 1 {
		t.Fatalf("expected one value in replay extension map, got %d", len(value))
	}
	if got := value["/foo/bar"]; want != got {
		t.Fatalf("replay map mismatch expected %d, got %d", want, got)
	}
}

func TestUnsupportedOutgoingMetaSubscribe(t *testing.T) {
	e := New(&MapStorage{store: map[string]int{"/foo/bar": 1}})
	m := cometd.Message{Channel: cometd.MetaSubscribe}
	if err := e.Outgoing(&m); err != nil {
		t.Fatalf("unexpected error: %q", err)
	}
	if _, ok := m.Ext[ExtensionName]; ok {
		t.Fatal("replay extension added data when it was unsupported")
	}
}

func TestDetectsSupport(t *testing.T) {
	testCases := []struct {
		name       string
		successful bool
		ext        map[string]interface{}
		want       bool
	}{
		{"acknowledged", true, map[string]interface{}{ExtensionName: true}, true},
		{"declined", true, map[string]interface{}{ExtensionName: false}, false},
		{"no ext", true, nil, false},
		{"failed handshake", false, map[string]interface{}{ExtensionName: true}, false},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := New(nil)
			m := cometd.Message{Channel: cometd.MetaHandshake, Successful: tc.successful, Ext: tc.ext}
			if err := e.Incoming(&m); err != nil {
				t.Fatalf("unexpected error: %q", err)
			}
			if got := e.Supported(); got != tc.want {
				t.Fatalf("expected Supported() = %v, got %v", tc.want, got)
			}
		})
	}
}

func TestRegisteredResetsSupport(t *testing.T) {
	e := New(nil)
	e.supportedByServer.Store(true)
	e.Registered(nil)
	if e.Supported() {
		t.Fatal("expected Registered to reset server support")
	}
}

func TestIncomingMetaUnsubscribe(t *testing.T) {
	testCases := []struct {
		name       string
		successful bool
		wantKept   bool
	}{
		{"successful reply forgets the channel", true, false},
		{"failed reply keeps the channel", false, true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := New(&MapStorage{store: map[string]int{"/foo/bar": 1, "/": 3}})
			m := cometd.Message{
				Channel:      cometd.MetaUnsubscribe,
				Subscription: "/",
				Successful:   tc.successful,
			}
			if err := e.Incoming(&m); err != nil {
				t.Fatalf("unexpected error: %q", err)
			}
			if _, ok := e.store.Get("/"); ok != tc.wantKept {
				t.Fatalf("expected '/' kept = %v, got %v", tc.wantKept, ok)
			}
			if _, ok := e.store.Get("/foo/bar"); !ok {
				t.Fatal("expected '/foo/bar' to stay in the replay map")
			}
		})
	}
}

func TestIncomingEdges(t *testing.T) {
	testCases := []struct {
		name    string
		channel cometd.Channel
	}{
		{"connect", cometd.MetaConnect},
		{"subscribe", cometd.MetaSubscribe},
		{"service channel", "/service/foo"},
		{"broadcast without data", "/foo/bar"},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := New(nil)
			if err := e.Incoming(&cometd.Message{Channel: tc.channel}); err != nil {
				t.Fatalf("unexpected error: %q", err)
			}
			if n := len(e.store.AsMap()); n != 0 {
				t.Fatalf("expected an empty store, got %d entries", n)
			}
		})
	}
}

func TestIncomingUpdatesReplayIDStore(t *testing.T) {
	testCases := []struct {
		name string
		data string
		want int
	}{
		{
			name: "valid data updates the id in the store",
			data: `{"event": {"replayId": 2, "body": "data"}}`,
			want: 2,
		},
		{
			name: "missing event in data",
			data: `{"not_an_event": {"replayId": 2, "body": "data"}}`,
			want: 1,
		},
		{
			name: "non-object event",
			data: `{"event": [{"replayId": 2, "body": "data"}]}`,
			want: 1,
		},
		{
			name: "no replay key in event object",
			data: `{"event": {"body": "data"}}`,
			want: 1,
		},
		{
			name: "message data isn't an object",
			data: `"just some plain text"`,
			want: 1,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := New(&MapStorage{store: map[string]int{"/foo/bar": 1}})
			m := cometd.Message{
				Channel: "/foo/bar",
				Data:    json.RawMessage(tc.data),
			}
			if err := e.Incoming(&m); err != nil {
				t.Fatalf("unexpected error: %q", err)
			}
			got, ok := e.store.Get("/foo/bar")
			if !ok {
				t.Fatal("expected /foo/bar to be in the replay store but it wasn't")
			}
			if got != tc.want {
				t.Fatalf("expected the replay id for /foo/bar to be %d but got %d", tc.want, got)
			}
		})
	}
}

func TestExtensionInSessionPipeline(t *testing.T) {
	session, err := cometd.NewClientSession([]string{"http://localhost/cometd"})
	if err != nil {
		t.Fatalf("unexpected error: %q", err)
	}
	e := New(nil)
	if err := session.UseExtension(e); err != nil {
		t.Fatalf("unexpected error: %q", err)
	}
	if err := session.UseExtension(e); err == nil {
		t.Fatal("expected registering the extension twice to fail")
	}
	if !session.RemoveExtension(e) {
		t.Fatal("expected the extension to be removed")
	}
}

func TestMapStorageSet(t *testing.T) {
	s := NewMapStorage()
	want := 1
	s.Set("/foo/bar", want)
	got, ok := s.Get("/foo/bar")
	if !ok {
		t.Fatal("expected s.Set to store value but it didn't")
	}
	if want != got {
		t.Fatalf("expected replay id to be %d but got %d", want, got)
	}
}

func TestEmptyMapStorageGet(t *testing.T) {
	s := NewMapStorage()
	if _, ok := s.Get("/foo/bar"); ok {
		t.Fatal("expected s.Get(\"/foo/bar\") to not return ok")
	}
}

func TestMapStorageDelete(t *testing.T) {
	s := &MapStorage{store: map[string]int{"/foo/bar": 1}}
	s.Delete("/foo/bar")
	if _, ok := s.Get("/foo/bar"); ok {
		t.Fatal("expected s.Get(\"/foo/bar\") to not return ok")
	}
}

func TestMapStorageAsMapIsACopy(t *testing.T) {
	s := &MapStorage{store: map[string]int{"/foo/bar": 1234}}
	m := s.AsMap()
	if len(m) != 1 || m["/foo/bar"] != 1234 {
		t.Fatalf("unexpected map %v", m)
	}
	m["/foo/bar"] = 1
	if got, _ := s.Get("/foo/bar"); got != 1234 {
		t.Fatalf("mutating AsMap changed the store: %d", got)
	}
}
