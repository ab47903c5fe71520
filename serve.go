package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"smartlists/api"
	"smartlists/config"
	"smartlists/handlers"
	"smartlists/services/coordinator"
	"smartlists/services/events"
	"smartlists/services/interest"
	"smartlists/services/lists"
	"smartlists/services/scheduler"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver, API and refresh coordinator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, logger, err := ctx.ensureSettings()
			if err != nil {
				return err
			}
			if port > 0 {
				settings.Server.Port = port
			}
			return serve(cmd.Context(), settings, logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Override the server port from settings")
	return cmd
}

func serve(parent context.Context, settings config.Settings, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 15*time.Second)
	if err := p.client.Ping(pingCtx); err != nil {
		logger.Warn("jellyfin not reachable yet, continuing", "url", settings.Jellyfin.URL, "error", err)
	}
	cancelPing()

	hub := events.NewHub(logger)
	index := interest.New(p.lists, logger)
	coord, err := coordinator.New(coordinator.Deps{
		Events:    hub,
		Lists:     p.lists,
		Index:     index,
		Refresher: p.runner,
		Logger:    logger,
	}, coordinator.Config{
		BatchDelay:            settings.Refresh.BatchDelay(),
		TickInterval:          settings.Refresh.TickInterval(),
		PlaybackStateCapacity: settings.Refresh.PlaybackStateCapacity,
		MaxConcurrent:         settings.Refresh.MaxConcurrentRefreshes,
	})
	if err != nil {
		return err
	}

	p.lists.AddListener(coord)
	p.lists.AddListener(lists.ListenerFuncs{
		Deleted: func(listID string) {
			if err := p.store.DeleteList(context.Background(), listID); err != nil {
				logger.Warn("failed to drop stored members for deleted list", "list", listID, "error", err)
			}
		},
	})

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}
	defer coord.Dispose()

	sched := scheduler.NewService(p.lists, coord, scheduler.Config{
		CheckInterval: settings.Refresh.ScheduleCheckInterval(),
	}, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	status := handlers.NewStatusHandler(coord, hub)
	status.Schedules = sched

	r := mux.NewRouter()
	api.Register(r, api.Handlers{
		Lists:   handlers.NewListsHandler(p.lists, coord, p.store),
		Rules:   handlers.NewRulesHandler(),
		Status:  status,
		Webhook: handlers.NewWebhookHandler(hub, p.client, settings.Server.WebhookToken, logger),
	})

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown error", "error", err)
	}
	coord.Dispose()
	logger.Info("shutdown complete")
	return nil
}
