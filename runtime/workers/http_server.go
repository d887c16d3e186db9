package workers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ShutdownFunc releases a component before the HTTP server itself goes down.
type ShutdownFunc func(ctx context.Context) error

// HTTPServerWorker serves HTTP until the supervised context is canceled.
// A listen failure is returned so the supervisor restarts the worker.
type HTTPServerWorker struct {
	log             *slog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
	beforeShutdown  []ShutdownFunc
}

func NewHTTPServerWorker(log *slog.Logger, server *http.Server, shutdownTimeout time.Duration, beforeShutdown ...ShutdownFunc) *HTTPServerWorker {
	return &HTTPServerWorker{
		log:             log,
		server:          server,
		shutdownTimeout: shutdownTimeout,
		beforeShutdown:  beforeShutdown,
	}
}

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		w.log.Info("HTTP server listening", "addr", w.server.Addr)
		errCh <- w.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// The parent context is gone, shutdown gets its own deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are invisible to http.Server.Shutdown
	for _, shutdown := range w.beforeShutdown {
		if err := shutdown(shutdownCtx); err != nil {
			w.log.Warn("Shutdown hook failed", "error", err)
		}
	}
	if err := w.server.Shutdown(shutdownCtx); err != nil {
		w.log.Error("HTTP server shutdown error", "error", err)
		return nil
	}
	w.log.Info("HTTP server shutdown completed")
	return nil
}
