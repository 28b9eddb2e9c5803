// Package cancel tracks in-flight requests by id so that they can be
// cancelled from outside the goroutine executing them.
package cancel

import "sync"

// Handle is the cancellation signal of one registered request. Any number
// of goroutines may wait on Done; Cancel closes it once.
type Handle struct {
	once sync.Once
	done chan struct{}
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Done is closed when the handle is cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel signals every observer. Repeated calls are no-ops.
func (h *Handle) Cancel() {
	h.once.Do(func() { close(h.done) })
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Registry maps request ids to handles. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register creates a fresh handle for id. An existing handle under the same
// id is replaced and will no longer be reachable through Cancel.
func (r *Registry) Register(id string) *Handle {
	h := newHandle()
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
	return h
}

// Cancel signals the handle registered under id. It reports whether one
// was found.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

// Remove forgets id only if it still maps to h, so a finished execution
// does not unregister a newer one that reused its id.
func (r *Registry) Remove(id string, h *Handle) {
	r.mu.Lock()
	if cur, ok := r.handles[id]; ok && (h == nil || cur == h) {
		delete(r.handles, id)
	}
	r.mu.Unlock()
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
