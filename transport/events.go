package transport

import "sync"

// authErrorRegistry fans the unauthorized signal out to every subscriber.
// The transport is shared across the application, so multiple independent
// listeners must be supported and unsubscription must be idempotent.
type authErrorRegistry struct {
	lock      sync.Mutex
	nextID    int
	listeners map[int]func()
}

func newAuthErrorRegistry() *authErrorRegistry {
	return &authErrorRegistry{
		listeners: make(map[int]func()),
	}
}

func (r *authErrorRegistry) subscribe(fn func()) (unsubscribe func()) {
	r.lock.Lock()
	defer r.lock.Unlock()

	id := r.nextID
	r.nextID++
	r.listeners[id] = fn

	return func() {
		r.lock.Lock()
		defer r.lock.Unlock()
		delete(r.listeners, id)
	}
}

// emit invokes every registered listener. Listeners run outside the lock so
// they may subscribe or unsubscribe without deadlocking.
func (r *authErrorRegistry) emit() {
	r.lock.Lock()
	fns := make([]func(), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.lock.Unlock()

	for _, fn := range fns {
		fn()
	}
}
