// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowstudio/pkg/components/file"
	"github.com/dukex/flowstudio/pkg/registry"
	"github.com/gofiber/fiber/v3/client"
)

type RegistryConfig struct {
	// BlobBucketURL enables the file components, e.g. file:///var/flowstudio or s3://bucket.
	BlobBucketURL string
	PluginsPath   string
}

// NewRegistry registers the built-in components and any component plugins.
// The returned store is nil when no bucket is configured.
func NewRegistry(ctx context.Context, log *slog.Logger, cfg RegistryConfig) (*registry.Registry, *file.Store, error) {
	reg := registry.NewRegistry(log)

	var store *file.Store

	if cfg.BlobBucketURL != "" {
		opened, err := file.OpenStore(ctx, cfg.BlobBucketURL)
		if err != nil {
			return nil, nil, err
		}

		store = opened
	}

	reg.RegisterDefaultComponents(registry.Dependencies{
		Files:      store,
		HTTPClient: client.New(),
	})

	if cfg.PluginsPath != "" {
		plugins, err := reg.LoadComponentPlugins(cfg.PluginsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load component plugins: %w", err)
		}

		for _, plugin := range plugins {
			reg.Register(plugin)
		}
	}

	return reg, store, nil
}
