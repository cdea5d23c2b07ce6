package completion

import (
	"context"
	"sync"
)

// Future is resolved exactly once, either successfully or with an error.
type Future struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done returns a channel which is closed when the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the error the future was resolved with. It must be called only after Done
// is closed.
func (f *Future) Err() error {
	return f.err
}

// Wait blocks until either the future is resolved or the context is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Signaller notifies waiters about completion of asynchronous work, keyed by a request
// identifier. Expect must be called before the corresponding Signal or Fail, otherwise the
// latter are no-op.
type Signaller interface {
	Expect(id string) *Future
	Signal(id string)
	Fail(id string, err error)
}

// Registry is the default Signaller implementation.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Future
}

func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[string]*Future),
	}
}

// Expect registers a future for the id. Repeated calls with the same id return the same future
// until it is resolved.
func (r *Registry) Expect(id string) *Future {
	r.mu.Lock()
	defer r.mu.Unlock()

	if future, ok := r.pending[id]; ok {
		return future
	}

	future := newFuture()
	r.pending[id] = future

	return future
}

func (r *Registry) Signal(id string) {
	r.resolve(id, nil)
}

func (r *Registry) Fail(id string, err error) {
	r.resolve(id, err)
}

// Pending returns the number of registered, but not yet resolved futures.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}

func (r *Registry) resolve(id string, err error) {
	r.mu.Lock()
	future, ok := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	if ok {
		future.resolve(err)
	}
}
