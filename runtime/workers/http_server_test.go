package workers

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestHTTPServerWorker_Serves_Until_Canceled(t *testing.T) {
	req := require.New(t)
	addr := freeAddr(t)
	server := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}
	var hooked atomic.Bool
	worker := NewHTTPServerWorker(slog.Default(), server, time.Second, func(context.Context) error {
		hooked.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	req.Eventually(func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusTeapot
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("worker should stop once the context is canceled")
	}
	req.True(hooked.Load())
}

func TestHTTPServerWorker_Returns_Listen_Error(t *testing.T) {
	req := require.New(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer listener.Close()

	// The address is already taken
	worker := NewHTTPServerWorker(slog.Default(), &http.Server{Addr: listener.Addr().String()}, time.Second)
	req.Error(worker.Run(context.Background()))
}

func TestHealthMonitoringWorker_Samples(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := runtime.NewConnectionRegistry()
	for _, id := range []domain.UserID{5, 1, 2} {
		registry.Register(id, mocks.NewMockHandle(ctrl))
	}
	worker := NewHealthMonitoringWorker(slog.Default(), 10*time.Millisecond,
		registry.Online,
		func() int { return 4 },
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	req.Eventually(func() bool { return !worker.Last().At.IsZero() }, 2*time.Second, 10*time.Millisecond)
	cancel()
	req.NoError(<-done)

	health := worker.Last()
	req.Equal(3, health.Online)
	req.Equal([]domain.UserID{1, 2, 5}, health.Users)
	req.Equal(4, health.Sessions)
	req.Positive(health.Goroutines)
	req.NotZero(health.RSS)
}
