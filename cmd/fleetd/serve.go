package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"fleet-monitor-backend/config"
	"fleet-monitor-backend/internal/api"
	"fleet-monitor-backend/internal/blacklist"
	"fleet-monitor-backend/internal/db"
	"fleet-monitor-backend/internal/monitor"
	"fleet-monitor-backend/internal/notification"
	"fleet-monitor-backend/internal/poller"
	"fleet-monitor-backend/internal/session"
	"fleet-monitor-backend/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a.cfg)
		},
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	appStore := store.NewGormStore(gormDB)
	sessions := session.NewManager(cfg.Session.Path)

	var webpushOptions *webpush.Options
	var dispatcher monitor.Dispatcher
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		dispatcher = pool
	} else {
		log.Warn().Msg("VAPID keys are not configured; push notifications are disabled")
	}

	responseCache := api.NewResponseCache(cfg.Server)
	mon := monitor.New(appStore, sessions, dispatcher)
	mon.SetInvalidator(responseCache)
	if err := mon.Recover(ctx); err != nil {
		return fmt.Errorf("failed to archive exceptions from previous run: %w", err)
	}

	ranges, err := blacklist.Load(cfg.Blacklist.Path)
	if err != nil {
		return fmt.Errorf("failed to load blacklist: %w", err)
	}

	fleet := poller.New(cfg.Poller, ranges, mon)
	mon.Bind(fleet)

	// A disabled poller never drains its queue, so nothing forwards
	// blacklist changes to it.
	var reloader api.BlacklistReloader
	if cfg.Poller.Enabled {
		fleet.Start(ctx)
		reloader = fleet
	} else {
		log.Warn().Msg("poller is disabled in config; serving stored data only")
	}

	if cfg.Blacklist.Watch && reloader != nil {
		watcher, err := blacklist.NewWatcher(cfg.Blacklist.Path, fleet.SetBlacklist)
		if err != nil {
			log.Warn().Err(err).Msg("blacklist watcher unavailable")
		} else {
			go watcher.Run(ctx)
		}
	}

	router := api.NewRouter(api.Deps{
		Store:         appStore,
		Snapshots:     fleet,
		Exceptions:    mon,
		Blacklist:     reloader,
		BlacklistPath: cfg.Blacklist.Path,
		Sessions:      sessions,
		Webpush:       webpushOptions,
		StaleAfter:    5 * cfg.Poller.Interval,
		Cache:         responseCache,
	}, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, stopping services")
	case err := <-serveErr:
		if err != nil {
			fleet.Stop()
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	fleet.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	log.Info().Msg("server gracefully stopped")
	return nil
}
