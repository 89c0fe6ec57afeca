package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/collab-relay/internal/auth"
	"github.com/vovakirdan/collab-relay/internal/bridge"
	"github.com/vovakirdan/collab-relay/internal/config"
	"github.com/vovakirdan/collab-relay/internal/core"
	"github.com/vovakirdan/collab-relay/internal/service/messages"
	"github.com/vovakirdan/collab-relay/internal/service/notifications"
	"github.com/vovakirdan/collab-relay/internal/store"
	"github.com/vovakirdan/collab-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/collab-relay/internal/transport/http"
)

// ErrMissingSecret is returned when token verification is enabled without a secret.
var ErrMissingSecret = errors.New("jwt_secret is required when jwt_required is set")

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	bridge          *bridge.NATS
	store           store.Store
	log             *zerolog.Logger
}

// JWTConfig maps relay configuration onto token settings.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if cfg.JWTRequired && cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("jwt_secret is empty: REST API will reject every request")
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	policy, err := core.PolicyFromName(cfg.Relay.RoomPolicy, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithRoomPolicy(policy),
		core.WithTaskConcurrency(cfg.Relay.TaskConcurrency),
	}

	var nb *bridge.NATS
	if cfg.Bridge.NATSURL != "" {
		nb, err = bridge.Connect(cfg.Bridge.NATSURL, cfg.Bridge.SubjectPrefix, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("connect bridge: %w", err)
		}
		opts = append(opts, core.WithBridge(nb))
		logger.Info().Str("url", cfg.Bridge.NATSURL).Str("node", nb.Node()).Msg("bridge enabled")
	}

	hub := core.NewHub(st, opts...)
	authService := auth.NewService(JWTConfig(cfg), cfg.JWTRequired)
	if !authService.Verifying() {
		logger.Warn().Msg("websocket tokens are not verified: handshake trusts the claimed userId")
	}

	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:           hub,
		Auth:          authService,
		Notifications: notifications.New(st),
		Messages:      messages.New(st, hub, logger),
		Presence:      st,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		bridge:          nb,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the hub, the optional bridge and the HTTP server, and blocks until
// context cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	if a.bridge != nil {
		g.Go(func() error {
			return a.bridge.Run(gctx, a.hub.Deliver)
		})
	}

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes the bridge and database.
func (a *App) cleanup() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to drain bridge")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
