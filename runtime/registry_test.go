package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type Handle struct {
	name string
}

func (h *Handle) Send(_ []byte) error {
	return nil
}

func (h *Handle) Close(_ int, _ string) error {
	return nil
}

func TestRegistry_Register_And_Lookup(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	userID := domain.UserID(1)
	handle := &Handle{name: "c1"}

	// Given nobody is connected
	_, ok := registry.Lookup(userID)
	req.False(ok)
	req.Zero(registry.Len())

	// When a user registers
	previous := registry.Register(userID, handle)

	// Then the handle is reachable
	req.Nil(previous)
	found, ok := registry.Lookup(userID)
	req.True(ok)
	req.Same(handle, found)
	req.Equal([]domain.UserID{userID}, registry.Online())
}

func TestRegistry_Register_Replaces_Previous_Handle(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	userID := domain.UserID(5)
	c1 := &Handle{name: "c1"}
	c2 := &Handle{name: "c2"}

	registry.Register(userID, c1)

	// When the same user logs in again
	previous := registry.Register(userID, c2)

	// Then the newest connection wins and the old one is handed back
	req.Same(c1, previous)
	found, ok := registry.Lookup(userID)
	req.True(ok)
	req.Same(c2, found)
	req.Equal(1, registry.Len())
}

func TestRegistry_Unregister_Stale_Handle_Keeps_Newer(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	userID := domain.UserID(5)
	oldHandle := &Handle{name: "old"}
	newHandle := &Handle{name: "new"}

	registry.Register(userID, oldHandle)
	registry.Register(userID, newHandle)

	// When the old session tears down after the new login
	removed := registry.Unregister(userID, oldHandle)

	// Then the newer registration survives
	req.False(removed)
	found, ok := registry.Lookup(userID)
	req.True(ok)
	req.Same(newHandle, found)

	// And only the owner can remove it
	req.True(registry.Unregister(userID, newHandle))
	_, ok = registry.Lookup(userID)
	req.False(ok)
	req.Empty(registry.Online())
}

func TestRegistry_Unregister_Unknown_User(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	req.False(registry.Unregister(domain.UserID(42), &Handle{}))
}

func TestRegistry_Online_Is_Sorted(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	for _, id := range []domain.UserID{9, 3, 7} {
		registry.Register(id, &Handle{})
	}
	req.Equal([]domain.UserID{3, 7, 9}, registry.Online())
}

type seqHandle struct {
	seq int
}

func (h *seqHandle) Send(_ []byte) error {
	return nil
}

func (h *seqHandle) Close(_ int, _ string) error {
	return nil
}

// Every session registers and tears down concurrently.
// Once all of them are gone, nobody may be left behind.
func TestRegistry_Concurrent_Churn(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	const users = 8
	const sessionsPerUser = 200

	var wg sync.WaitGroup
	for u := 1; u <= users; u++ {
		userID := domain.UserID(u)
		for s := 0; s < sessionsPerUser; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handle := &Handle{}
				registry.Register(userID, handle)
				registry.Lookup(userID)
				registry.Unregister(userID, handle)
			}()
		}
	}
	wg.Wait()

	req.Zero(registry.Len())
}

// Readers racing with successive logins of the same user never go back
// to a handle that has already been superseded.
func TestRegistry_Lookup_Never_Returns_Superseded_Handle(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	userID := domain.UserID(5)
	const logins = 2000
	const readers = 4

	done := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var regressions int

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1
			for {
				select {
				case <-done:
					return
				default:
				}
				found, ok := registry.Lookup(userID)
				if !ok {
					continue
				}
				seq := found.(*seqHandle).seq
				if seq < last {
					mu.Lock()
					regressions++
					mu.Unlock()
				}
				last = seq
			}
		}()
	}

	var previous *seqHandle
	for i := 0; i < logins; i++ {
		handle := &seqHandle{seq: i}
		registry.Register(userID, handle)
		if previous != nil {
			// The superseded session tears down late
			req.False(registry.Unregister(userID, previous))
		}
		previous = handle
	}
	close(done)
	wg.Wait()

	req.Zero(regressions)
	found, ok := registry.Lookup(userID)
	req.True(ok)
	req.Same(previous, found)
}

func TestRegistry_Last_Register_Wins_After_Race(t *testing.T) {
	req := require.New(t)
	registry := NewConnectionRegistry()
	userID := domain.UserID(5)

	for i := 0; i < 100; i++ {
		oldHandle := &Handle{name: "old"}
		newHandle := &Handle{name: "new"}
		registry.Register(userID, oldHandle)

		var wg sync.WaitGroup
		wg.Add(2)
		registered := make(chan struct{})
		go func() {
			defer wg.Done()
			registry.Register(userID, newHandle)
			close(registered)
		}()
		go func() {
			defer wg.Done()
			<-registered
			registry.Unregister(userID, oldHandle)
		}()
		wg.Wait()

		found, ok := registry.Lookup(userID)
		req.True(ok)
		req.Same(newHandle, found)
		registry.Unregister(userID, newHandle)
	}
}

var _ contract.IRegistry = (*ConnectionRegistry)(nil)
