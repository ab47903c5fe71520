package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"smartlists/config"
	"smartlists/internal/jellyfin"
	"smartlists/services/lists"
	"smartlists/services/refresh"
	"smartlists/services/snapshot"
	"smartlists/services/store"
)

// pipeline is the part of the service shared by serve and refresh: host
// client, list definitions, run store and the refresh runner.
type pipeline struct {
	client *jellyfin.Client
	store  *store.Store
	lists  *lists.Service
	runner *refresh.Runner
}

func newPipeline(ctx context.Context, settings config.Settings, logger *slog.Logger) (*pipeline, error) {
	if settings.Jellyfin.APIKey == "" {
		return nil, errors.New("jellyfin api key is not configured (set jellyfin.apiKey or SMARTLISTS_JELLYFIN_API_KEY)")
	}

	client := jellyfin.NewClient(settings.Jellyfin.URL, settings.Jellyfin.APIKey, jellyfin.Options{
		Timeout:    time.Duration(settings.Jellyfin.RequestTimeoutSeconds) * time.Second,
		MaxRetries: settings.Jellyfin.MaxRetries,
		Logger:     logger,
	})

	st, err := store.Open(ctx, settings.Storage.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	listSvc, err := lists.NewService(afero.NewOsFs(), settings.Storage.ListsFile, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load lists: %w", err)
	}

	builder := snapshot.NewBuilder(client, client, client, logger)
	runner := refresh.NewRunner(client, builder, st, st, refresh.Config{
		Timeout:             settings.Refresh.ListTimeout(),
		Workers:             settings.Refresh.BuildWorkers,
		SimilarityMinShared: settings.Refresh.SimilarityMinShared,
	}, logger)

	return &pipeline{client: client, store: st, lists: listSvc, runner: runner}, nil
}

func (p *pipeline) Close() error {
	return p.store.Close()
}
