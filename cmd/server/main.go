package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/infrastructure/httpapi"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a termination signal.
// Returning instead of exiting lets the deferred closes run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (Badger + Bluge user index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("user index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing user index...")
		_ = writer.Close()
	}()

	store, err := repositories.NewStore(db, repositories.NewUserIndex(writer), log, config.LimitMessages)
	if err != nil {
		return exitRuntime, fmt.Errorf("store initialization failed: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The index lives outside Badger and may lag behind it after a crash
	indexed, err := store.ReindexUsers(ctx)
	if err != nil {
		return exitRuntime, fmt.Errorf("user index rebuild failed: %w", err)
	}
	log.Info("User index rebuilt", "users", indexed)

	// 3. Moderation
	censor, err := newCensor(config, log)
	if err != nil {
		return exitConfig, err
	}

	// 4. Services & transports
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	authenticator := auth.NewJWTAuthenticator(tokens)
	registry := runtime.NewConnectionRegistry()

	authService := services.NewAuthService(store, tokens, log)
	chatService := services.NewChatService(store, censor, log)

	relay := websocket.NewRelayServer(registry, authenticator, chatService, log, websocket.Config{
		MaxFrameSize:      config.MaxFrameSize,
		MaxContentLength:  config.MaxContentLength,
		WriteTimeout:      config.WriteTimeout,
		PongTimeout:       config.PongTimeout,
		AuthTimeout:       config.AuthTimeout,
		RateLimitBurst:    config.RateLimitBurst,
		RateLimitInterval: config.RateLimitInterval,
		AllowedOrigins:    config.Origins(),
	})
	api := httpapi.NewServer(authService, chatService, authenticator, registry, log)

	server := &http.Server{
		Addr:              config.Addr(),
		Handler:           api.Handler(config.Origins(), relay.Routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewHTTPServerWorker(log, server, config.ShutdownTimeout, relay.Shutdown),
		workers.NewHealthMonitoringWorker(log, config.MetricInterval, registry.Online, relay.Sessions),
	)

	log.Info("Starting chat relay", "address", config.Addr(), "at", time.Now().UTC())
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return exitOK, nil
}

// newCensor returns a nil Censor when moderation is off so content is stored verbatim.
func newCensor(config internal.Config, log *slog.Logger) (contract.Censor, error) {
	if !config.EnableModeration {
		return nil, nil
	}
	char, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	data, err := moderation.NewEmbeddedLoader().LoadAll(moderation.CensoredDir)
	if err != nil {
		return nil, fmt.Errorf("censored words loading failed: %w", err)
	}
	moderator, err := moderation.NewModerator(data.Words, char, log)
	if err != nil {
		return nil, fmt.Errorf("moderator initialization failed: %w", err)
	}
	log.Info("Moderation enabled", "languages", data.Languages, "words", len(data.Words))
	return moderator, nil
}
