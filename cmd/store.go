package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/veldscape/landcover-cli/internal/legend"
	"github.com/veldscape/landcover-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "landcover.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadLegend resolves the configured class legend, falling back to the
// built-in table.
func loadLegend() (*legend.Legend, error) {
	if cfg.Legend.Path == "" {
		return legend.Default(), nil
	}
	return legend.Load(cfg.Legend.Path)
}
