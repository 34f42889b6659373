// Package replay implements the replay-id extension: the client remembers
// the last replay id seen on each channel and, when the server supports it,
// hands the ids back on subscribe so missed events are redelivered.
package replay

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/yhtsnda/cometd"
)

const (
	// ExtensionName is the ext key the extension reads and writes
	ExtensionName string = "replay"
	eventKey      string = "event"
	replayIDKey   string = "replayId"
)

// IDStorer stores the last replay id per channel
type IDStorer interface {
	Set(channel string, replayID int)
	Get(channel string) (int, bool)
	Delete(channel string)
	AsMap() map[string]int
}

// Extension is a cometd.MessageExtender. Register it with
// ClientSession.UseExtension before the handshake.
type Extension struct {
	supportedByServer atomic.Bool
	store             IDStorer
}

// New creates an extension keeping its ids in store, or in a fresh
// MapStorage when store is nil
func New(store IDStorer) *Extension {
	if store == nil {
		store = NewMapStorage()
	}
	return &Extension{store: store}
}

// Supported reports whether the server acknowledged the extension during
// the last handshake
func (e *Extension) Supported() bool {
	return e.supportedByServer.Load()
}

// Outgoing implements cometd.MessageExtender
func (e *Extension) Outgoing(m *cometd.Message) error {
	switch m.Channel {
	case cometd.MetaHandshake:
		m.GetExt(true)[ExtensionName] = true
	case cometd.MetaSubscribe:
		if e.Supported() {
			m.GetExt(true)[ExtensionName] = e.store.AsMap()
		}
	}
	return nil
}

// Incoming implements cometd.MessageExtender
func (e *Extension) Incoming(m *cometd.Message) error {
	switch m.Channel.Type() {
	case cometd.MetaChannel:
		switch m.Channel {
		case cometd.MetaHandshake:
			supported, _ := m.GetExt(false)[ExtensionName].(bool)
			e.supportedByServer.Store(m.Successful && supported)
		case cometd.MetaUnsubscribe:
			if m.Successful {
				e.store.Delete(string(m.Subscription))
			}
		}
	case cometd.BroadcastChannel:
		e.updateReplayID(m)
	}
	return nil
}

// Registered implements cometd.MessageExtender. Support is detected again
// on the next handshake.
func (e *Extension) Registered(*cometd.ClientSession) {
	e.supportedByServer.Store(false)
}

// Unregistered implements cometd.MessageExtender
func (e *Extension) Unregistered() {
	e.supportedByServer.Store(false)
}

func (e *Extension) updateReplayID(m *cometd.Message) {
	if len(m.Data) == 0 {
		return
	}
	var data struct {
		Event map[string]interface{} `json:"event"`
	}
	if err := json.Unmarshal(m.Data, &data); err != nil || data.Event == nil {
		return
	}
	replayID, ok := data.Event[replayIDKey].(float64)
	if !ok {
		return
	}
	e.store.Set(string(m.Channel), int(replayID))
}

// MapStorage implements the IDStorer interface over a regular map with a
// RWMutex protecting the access
type MapStorage struct {
	store map[string]int
	lock  sync.RWMutex
}

// NewMapStorage creates a new MapStorage instance
func NewMapStorage() *MapStorage {
	return &MapStorage{store: make(map[string]int)}
}

// Set implements the IDStorer interface
func (s *MapStorage) Set(channel string, replayID int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.store[channel] = replayID
}

// Get implements the IDStorer interface
func (s *MapStorage) Get(channel string) (replayID int, ok bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	replayID, ok = s.store[channel]
	return
}

// Delete implements the IDStorer interface
func (s *MapStorage) Delete(channel string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.store, channel)
}

// AsMap implements the IDStorer interface
func (s *MapStorage) AsMap() map[string]int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	replay := make(map[string]int, len(s.store))
	for k, v := range s.store {
		replay[k] = v
	}
	return replay
}
