package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/collab-relay/internal/app"
	"github.com/vovakirdan/collab-relay/internal/auth"
	"github.com/vovakirdan/collab-relay/internal/config"
	"github.com/vovakirdan/collab-relay/internal/log"
	"github.com/vovakirdan/collab-relay/internal/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "collab-relay",
		Short:         "Real-time relay for workspace collaboration events",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newServeCmd(flags), newTokenCmd(flags), newMembersCmd(flags))
	return root
}

// load resolves configuration and applies command-line overrides.
func (f *rootFlags) load(overrides config.Config) (config.Config, *zerolog.Logger, error) {
	// Config loading logs to stderr so `token` output stays pipeable.
	bootstrap := log.NewWithWriter("info", zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	cfg, path, err := config.Load(bootstrap, f.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	overrides.LogLevel = f.logLevel
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			logger.Info().Str("addr", cfg.Addr).Str("room_policy", cfg.Relay.RoomPolicy).Msg("starting collab relay")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	cmd.Flags().StringVar(&overrides.Bridge.NATSURL, "nats-url", "", "NATS url for multi-instance fan-out")
	return cmd
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var userID, name string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT with the configured secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := flags.load(config.Config{})
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return app.ErrMissingSecret
			}

			token, err := auth.GenerateToken(app.JWTConfig(&cfg), userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed")
	cmd.Flags().StringVar(&name, "name", "", "display name to embed")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newMembersCmd(flags *rootFlags) *cobra.Command {
	var workspaceID, userID string

	run := func(add bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(config.Config{})
			if err != nil {
				return err
			}
			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			ctx := context.Background()
			if add {
				err = st.AddWorkspaceMember(ctx, workspaceID, userID)
			} else {
				err = st.RemoveWorkspaceMember(ctx, workspaceID, userID)
			}
			if err != nil {
				return err
			}
			logger.Info().Str("workspace_id", workspaceID).Str("user_id", userID).Bool("member", add).Msg("workspace membership updated")
			return nil
		}
	}

	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage workspace membership used by the strict room policy",
	}
	add := &cobra.Command{Use: "add", Short: "Add a user to a workspace", RunE: run(true)}
	remove := &cobra.Command{Use: "remove", Short: "Remove a user from a workspace", RunE: run(false)}
	for _, c := range []*cobra.Command{add, remove} {
		c.Flags().StringVar(&workspaceID, "workspace", "", "workspace id")
		c.Flags().StringVar(&userID, "user", "", "user id")
		_ = c.MarkFlagRequired("workspace")
		_ = c.MarkFlagRequired("user")
	}
	cmd.AddCommand(add, remove)
	return cmd
}
