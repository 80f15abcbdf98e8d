package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/h0rv/kanban/internal/config"
	"github.com/h0rv/kanban/internal/fanout"
	"github.com/h0rv/kanban/internal/persist"
	"github.com/h0rv/kanban/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the board server",
		Long: `Run the HTTP server. Migrations are applied on start.

With redis.url (or KANBAN_REDIS_URL) set, board events are relayed through
Redis so clients connected to any instance see every change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := serverSetup()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address. Defaults to the configured server.addr.")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := serverSetup()
			if err != nil {
				return err
			}
			db, err := persist.Open(cmd.Context(), cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := persist.Migrate(cmd.Context(), db, cfg.DB.Driver)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "count", len(applied), "versions", applied)
			return nil
		},
	}
}

// serverSetup loads configuration and builds the JSON logger the server logs with.
func serverSetup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return cfg, log, nil
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := persist.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := persist.Migrate(ctx, db, cfg.DB.Driver)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		log.Info("migrations applied", "versions", applied)
	}

	store, err := persist.New(db, cfg.DB.Driver)
	if err != nil {
		return err
	}

	hub := fanout.NewHub(log)
	var pub fanout.Publisher = hub
	if cfg.Redis.URL != "" {
		broker, err := fanout.NewRedisBroker(cfg.Redis.URL, hub, log)
		if err != nil {
			return err
		}
		defer broker.Close()
		if err := broker.Start(ctx); err != nil {
			return fmt.Errorf("start redis relay: %w", err)
		}
		pub = broker
		log.Info("relaying events through redis")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(store, hub, pub, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr, "driver", cfg.DB.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// Event streams never finish on their own; give requests a moment, then cut them.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	return nil
}
