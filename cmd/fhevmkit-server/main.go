package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/env"
	"github.com/pendergraft/fhevmkit/internal/observability/metrics"
	"github.com/pendergraft/fhevmkit/internal/server"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	rootCmd := &cobra.Command{
		Use:           "fhevmkit-server",
		Short:         "fhevmkit server - keeps an FHEVM instance bound to a chain endpoint",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Serving is the default when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "listen address, overrides HOST and PORT")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	rootCmd.AddCommand(serveCmd, newMigrateCmd())
	return rootCmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the key cache schema and exit",
		Long: `Create the key cache schema for the configured backend and exit.

Useful for provisioning a Postgres or SQLite key cache ahead of the first
server start.

EXAMPLES:
  KEY_CACHE_TYPE=sqlite SQLITE_PATH=./data/fhevmkit.db fhevmkit-server migrate
  DATABASE_URL=postgres://user:pass@db/fhevm fhevmkit-server migrate
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			caps, err := env.Select(cmd.Context(), cfg.Storage, newLogger(cfg, os.Stderr))
			if err != nil {
				return err
			}
			defer caps.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Key cache ready (%s)\n", cfg.Storage.Type)
			return nil
		},
	}
}

// runServe serves until ctx is cancelled, then drains in-flight requests.
func runServe(ctx context.Context, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr == "" {
		addr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}

	logger := newLogger(cfg, os.Stdout)
	logger.Info("starting fhevmkit-server", "version", version, "keyCache", cfg.Storage.Type)

	metrics.Init(cfg.Metrics.Enabled, "fhevmkit-server")

	caps, err := env.Select(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("selecting environment: %w", err)
	}
	defer caps.Close()

	srv, err := server.New(cfg, server.NewBuilder(cfg.Chain, caps, logger), logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer srv.Close()

	// WriteTimeout must stay above the ?wait= long poll cap
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down", "cause", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
// Unknown levels fall back to info.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
