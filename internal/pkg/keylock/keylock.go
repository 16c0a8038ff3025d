// Package keylock provides mutual exclusion keyed by reminder id.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker serialises work per key while letting different keys proceed in parallel.
// Entries are dropped once no goroutine holds or waits for them.
// The zero value is ready to use.
type Locker struct {
	mu      sync.Mutex
	entries map[uint]*entry
}

// New returns an empty Locker.
func New() *Locker {
	return &Locker{entries: make(map[uint]*entry)}
}

// Lock blocks until the key is free and returns the function that releases it.
func (l *Locker) Lock(key uint) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[uint]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
