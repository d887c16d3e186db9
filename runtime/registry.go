// Package runtime holds the in-process state shared by live sessions.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"slices"
	"sync"
)

// ConnectionRegistry maps each online user to exactly one live handle.
// It is created at startup, injected into the relay server and rebuilt
// from zero on every boot.
type ConnectionRegistry struct {
	mu      sync.RWMutex
	handles map[domain.UserID]contract.Handle
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		handles: make(map[domain.UserID]contract.Handle),
	}
}

// Register installs the handle for the user and returns the handle it
// replaced, if any. The replaced handle is left open: closing it belongs
// to the session owning it.
func (r *ConnectionRegistry) Register(id domain.UserID, handle contract.Handle) contract.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.handles[id]
	r.handles[id] = handle
	return previous
}

// Unregister removes the user only while handle is still the registered one.
// A session tearing down after a newer login of the same user must not
// evict the newer handle.
func (r *ConnectionRegistry) Unregister(id domain.UserID, handle contract.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.handles[id]
	if !ok || current != handle {
		return false
	}
	delete(r.handles, id)
	return true
}

func (r *ConnectionRegistry) Lookup(id domain.UserID) (contract.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.handles[id]
	return handle, ok
}

func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Online returns a sorted snapshot of the connected users.
func (r *ConnectionRegistry) Online() []domain.UserID {
	r.mu.RLock()
	ids := make([]domain.UserID, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}
