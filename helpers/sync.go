package helpers

// Random synchronisation util stash

import (
	"context"
	"sync"

	"github.com/temoto/alive/v2"
)

// AliveContext stops a when ctx is done. Returns when either happens.
func AliveContext(ctx context.Context, a *alive.Alive) {
	select {
	case <-ctx.Done():
		a.Stop()
	case <-a.StopChan():
	}
}

func WithLock(l sync.Locker, f func()) {
	l.Lock()
	defer l.Unlock()
	f()
}

type AtomicError struct {
	mu  sync.Mutex
	err error
	set bool
}

func (a *AtomicError) Load() (error, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err, a.set
}

// StoreOnce stores e only first time, returns same as Load() before modification.
func (a *AtomicError) StoreOnce(e error) (error, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	berr, bset := a.err, a.set
	if !bset {
		a.err, a.set = e, true
	}
	return berr, bset
}
