package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	uuid "github.com/satori/go.uuid"
)

const maxBrowsers = 4096

// browserRegistry counts the connects each browser holds suspended. Entries
// expire so that a browser that went away does not pin its slot forever.
type browserRegistry struct {
	max int

	mu    sync.Mutex
	polls *expirable.LRU[string, int]
}

func newBrowserRegistry(max int, ttl time.Duration) *browserRegistry {
	return &browserRegistry{
		max:   max,
		polls: expirable.NewLRU[string, int](maxBrowsers, nil, ttl),
	}
}

// increment takes a slot for browserID. It reports false, taking nothing,
// when the browser is already at the limit.
func (b *browserRegistry) increment(browserID string) bool {
	if b.max <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := b.polls.Get(browserID)
	if n >= b.max {
		return false
	}
	b.polls.Add(browserID, n+1)
	return true
}

func (b *browserRegistry) decrement(browserID string) {
	if b.max <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.polls.Get(browserID)
	switch {
	case !ok:
	case n <= 1:
		b.polls.Remove(browserID)
	default:
		b.polls.Add(browserID, n-1)
	}
}

func (b *browserRegistry) count(browserID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := b.polls.Get(browserID)
	return n
}

// browserID reads the browser cookie, setting a fresh one when the request
// carries none
func browserID(w http.ResponseWriter, r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewV4().String()
	http.SetCookie(w, &http.Cookie{Name: name, Value: id, Path: "/", HttpOnly: true})
	return id
}
