// Package routerlock provides the router-scoped configuration lock. Every
// operation that mutates agent/queue bindings or dispatches a task for a
// router must hold this lock for the duration of its transaction, so a single
// attempt is race-free within a router while different routers never block
// each other.
package routerlock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out one exclusive mutex per router ref. Entries are reclaimed
// once no goroutine holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock acquires the exclusive lock for the router ref, blocking until it is
// available. The returned function releases it.
func (l *Locker) Lock(routerRef string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[routerRef]
	if !ok {
		e = &entry{}
		l.locks[routerRef] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, routerRef)
		}
		l.mu.Unlock()
	}
}
