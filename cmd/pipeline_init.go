package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/config"
	"github.com/veldscape/landcover-cli/internal/db"
	"github.com/veldscape/landcover-cli/internal/geoio"
	"github.com/veldscape/landcover-cli/internal/legend"
	"github.com/veldscape/landcover-cli/internal/pipeline"
	"github.com/veldscape/landcover-cli/internal/raster"
	"github.com/veldscape/landcover-cli/internal/store"
	"github.com/veldscape/landcover-cli/internal/vector"
	"github.com/veldscape/landcover-cli/pkg/coastline"
)

// runnerEnv holds the initialized store, legend, mask sources, and runner
// shared by the postprocess/watch/serve commands.
type runnerEnv struct {
	Store  store.Store
	Legend *legend.Legend
	Runner *pipeline.Runner

	pool    *pgxpool.Pool // mask pool, nil unless a mask is table-backed
	tempDir string        // reprojected mask files, removed on Close
}

// Close releases resources held by the runner environment.
func (re *runnerEnv) Close() {
	if re.pool != nil {
		re.pool.Close()
	}
	if re.Store != nil {
		_ = re.Store.Close()
	}
	if re.tempDir != "" {
		_ = os.RemoveAll(re.tempDir)
	}
}

// initRunner validates the config for the mode, sets up the store and the
// mask sources, and builds the Runner. Callers should defer env.Close().
func initRunner(ctx context.Context, mode string) (*runnerEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &runnerEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	leg, err := loadLegend()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Legend = leg

	if cfg.Masks.Rivers.Table != "" || cfg.Masks.Roads.Table != "" || cfg.Masks.Coast.Table != "" {
		env.pool, err = db.Connect(ctx, cfg.Store.DatabaseURL, 4)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "connect mask pool")
		}
	}

	rivers, err := env.maskSource(ctx, "rivers", cfg.Masks.Rivers, nil)
	if err != nil {
		env.Close()
		return nil, err
	}
	roads, err := env.maskSource(ctx, "roads", cfg.Masks.Roads, []string{cfg.Masks.RoadSurfaceKey})
	if err != nil {
		env.Close()
		return nil, err
	}
	coast, err := env.coastSource(ctx, st)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Runner = &pipeline.Runner{
		IO:     geoio.GDAL{},
		Store:  st,
		Legend: leg,
		Params: pipeline.Params{
			ModeRadius:       cfg.Pipeline.ModeRadius,
			HANDMax:          cfg.Pipeline.HANDMax,
			IndexMin:         cfg.Pipeline.IndexMin,
			BuiltSentinel:    uint8(cfg.Pipeline.BuiltSentinel),
			SettlementDilate: cfg.Pipeline.SettlementDilate,
		},
		TargetCRS:      cfg.Pipeline.TargetCRS,
		Rivers:         rivers,
		Roads:          roads,
		Coast:          coast,
		RoadSurfaceKey: cfg.Masks.RoadSurfaceKey,
		RoadSurfaces:   cfg.Masks.RoadSurfaces,
		RoadBufferM:    cfg.Masks.RoadBufferM,
		CoastBufferM:   cfg.Masks.CoastBufferM,
	}

	return env, nil
}

// maskSource opens one configured mask layer. File layers stored in a CRS
// other than the working one are reprojected into a temp directory first;
// table layers are read through the shared pool.
func (re *runnerEnv) maskSource(ctx context.Context, name string, m config.MaskConfig, attrCols []string) (vector.Source, error) {
	switch {
	case m.Path != "":
		target := cfg.Pipeline.TargetCRS
		if target != "" && m.CRS != "" && raster.NormalizeCRS(m.CRS) != raster.NormalizeCRS(target) {
			dst, err := re.reprojectMask(ctx, name, m.Path, target)
			if err != nil {
				return nil, err
			}
			return vector.OpenPath(dst, target)
		}
		return vector.OpenPath(m.Path, m.CRS)
	case m.Table != "":
		if re.pool == nil {
			return nil, eris.Errorf("mask %s uses table %s but no database is configured", name, m.Table)
		}
		return &vector.PostGISSource{
			Pool:     re.pool,
			Table:    m.Table,
			AttrCols: attrCols,
			CRS:      m.CRS,
		}, nil
	default:
		return nil, eris.Errorf("mask %s is not configured", name)
	}
}

func (re *runnerEnv) reprojectMask(ctx context.Context, name, src, targetCRS string) (string, error) {
	if re.tempDir == "" {
		dir, err := os.MkdirTemp("", "landcover-masks-")
		if err != nil {
			return "", eris.Wrap(err, "create mask temp dir")
		}
		re.tempDir = dir
	}
	dst := filepath.Join(re.tempDir, filepath.Base(src))
	zap.L().Info("reprojecting mask",
		zap.String("mask", name),
		zap.String("path", src),
		zap.String("crs", targetCRS),
	)
	if err := geoio.ReprojectVector(ctx, src, dst, targetCRS); err != nil {
		return "", eris.Wrapf(err, "reproject mask %s", name)
	}
	return dst, nil
}

// coastSource resolves the coastal-strip seed geometry: a configured mask
// layer when present, otherwise one fetch from the coastline service.
func (re *runnerEnv) coastSource(ctx context.Context, st store.Store) (vector.Source, error) {
	if cfg.Masks.Coast.Set() {
		return re.maskSource(ctx, "coast", cfg.Masks.Coast, nil)
	}
	if cfg.Coastline.BaseURL == "" {
		return nil, eris.New("no coast mask configured: set masks.coast or coastline.base_url")
	}

	opts := []coastline.Option{
		coastline.WithRateLimit(cfg.Coastline.RatePerSec),
		coastline.WithMaxRetries(cfg.Coastline.MaxRetries),
		coastline.WithCRS(cfg.Coastline.CRS),
	}
	if cfg.Coastline.CacheTTLHours > 0 {
		opts = append(opts, coastline.WithCache(st, time.Duration(cfg.Coastline.CacheTTLHours)*time.Hour))
	}
	client := coastline.NewClient(cfg.Coastline.BaseURL, opts...)

	layer, err := client.Coastline(ctx, coastline.Query{
		MinX: cfg.Coastline.MinX,
		MinY: cfg.Coastline.MinY,
		MaxX: cfg.Coastline.MaxX,
		MaxY: cfg.Coastline.MaxY,
		Year: cfg.Coastline.Year,
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetch coastline")
	}

	zap.L().Info("coastline fetched",
		zap.String("service", cfg.Coastline.BaseURL),
		zap.Int("features", layer.Len()),
	)
	return vector.Static{Layer: layer}, nil
}
