package cometd

import (
	"sync"
	"sync/atomic"
)

// cowList is a copy-on-write list. Writers serialize on a mutex and publish
// a fresh slice; readers iterate over whatever snapshot they loaded, so
// delivery never holds a lock while calling out.
type cowList[T comparable] struct {
	mu    sync.Mutex
	items atomic.Pointer[[]T]
}

func (l *cowList[T]) snapshot() []T {
	if items := l.items.Load(); items != nil {
		return *items
	}
	return nil
}

// add appends item and returns the new length
func (l *cowList[T]) add(item T) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.snapshot()
	next := make([]T, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, item)
	l.items.Store(&next)
	return len(next)
}

// addUnique appends item unless it is already present
func (l *cowList[T]) addUnique(item T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.snapshot()
	for _, existing := range current {
		if existing == item {
			return false
		}
	}
	next := make([]T, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, item)
	l.items.Store(&next)
	return true
}

// remove drops the first occurrence of item and returns whether it was
// found along with the new length
func (l *cowList[T]) remove(item T) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.snapshot()
	for i, existing := range current {
		if existing == item {
			next := make([]T, 0, len(current)-1)
			next = append(next, current[:i]...)
			next = append(next, current[i+1:]...)
			l.items.Store(&next)
			return true, len(next)
		}
	}
	return false, len(current)
}

func (l *cowList[T]) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items.Store(nil)
}
