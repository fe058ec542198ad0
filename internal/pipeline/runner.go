package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/legend"
	"github.com/veldscape/landcover-cli/internal/model"
	"github.com/veldscape/landcover-cli/internal/raster"
	"github.com/veldscape/landcover-cli/internal/rasterize"
	"github.com/veldscape/landcover-cli/internal/store"
	"github.com/veldscape/landcover-cli/internal/vector"
)

// RasterIO abstracts raster file access so the runner can be driven by GDAL
// in production and by in-memory grids in tests.
type RasterIO interface {
	ReadClass(ctx context.Context, path, targetCRS string) (*raster.Grid[uint8], error)
	ReadContinuous(ctx context.Context, path, targetCRS string) (*raster.Grid[float64], error)
	WriteClass(ctx context.Context, path string, g *raster.Grid[uint8]) error
}

// Job names the rasters of one scene and where the corrected output goes.
type Job struct {
	Scene          model.Scene
	HANDPath       string
	BuildingsPath  string
	SettlementPath string
	IndexPath      string
	OutputPath     string
}

// Runner loads a job's layers, aligns everything to the scene frame, applies
// the rule sequence, and writes the corrected raster. A Store, when set,
// records run history and per-stage timings; stage bookkeeping is
// best-effort and never fails a run.
type Runner struct {
	IO     RasterIO
	Store  store.Store
	Legend *legend.Legend
	Params Params

	// TargetCRS is the working CRS every layer must land in.
	TargetCRS string

	Rivers vector.Source
	Roads  vector.Source
	Coast  vector.Source

	RoadSurfaceKey string   // road attribute holding the surface type, default "surface"
	RoadSurfaces   []string // allowed surface values; empty keeps every road
	RoadBufferM    float64  // road corridor half-width in CRS units
	CoastBufferM   float64  // coastal strip width in CRS units
}

// Process runs one scene end to end and returns the persisted-form result.
// On failure the run record, when a store is configured, is completed with
// the error before it is returned.
func (r *Runner) Process(ctx context.Context, job Job) (*model.RunResult, error) {
	if err := r.validateJob(job); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "runner"),
		zap.String("scene", job.Scene.Path),
	)

	var runID string
	if r.Store != nil {
		run, err := r.Store.CreateRun(ctx, job.Scene)
		if err != nil {
			return nil, eris.Wrap(err, "runner: create run")
		}
		runID = run.ID
		if err := r.Store.UpdateRunStatus(ctx, runID, model.RunStatusRunning); err != nil {
			return nil, eris.Wrap(err, "runner: mark run running")
		}
		log = log.With(zap.String("run_id", runID))
	}

	start := time.Now()
	res, err := r.execute(ctx, job, runID, log)

	result := &model.RunResult{
		OutputPath: job.OutputPath,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if res != nil {
		result.Cells = res.Output.Box.Cells()
		result.ChangedCells = res.TotalChanged()
		result.UnknownCells = res.Validation.Cells
		result.Rules = res.Rules
	}
	if err != nil {
		result.Error = err.Error()
	}

	if r.Store != nil {
		if uerr := r.Store.UpdateRunResult(ctx, runID, result); uerr != nil {
			if err == nil {
				return nil, eris.Wrap(uerr, "runner: persist run result")
			}
			log.Warn("failed to persist failed run", zap.Error(uerr))
		}
	}

	if err != nil {
		return nil, err
	}

	log.Info("scene processed",
		zap.Int("cells", result.Cells),
		zap.Int("changed", result.ChangedCells),
		zap.Int64("duration_ms", result.DurationMS),
	)
	return result, nil
}

func (r *Runner) execute(ctx context.Context, job Job, runID string, log *zap.Logger) (*Result, error) {
	var in Inputs
	if err := r.trackStage(ctx, runID, "load", log, func() (map[string]any, error) {
		loaded, err := r.loadRasters(ctx, job)
		if err != nil {
			return nil, err
		}
		in = loaded
		return map[string]any{"cells": in.Classified.Box.Cells()}, nil
	}); err != nil {
		return nil, err
	}

	if err := r.trackStage(ctx, runID, "masks", log, func() (map[string]any, error) {
		return r.buildMasks(ctx, &in, log)
	}); err != nil {
		return nil, err
	}

	var res *Result
	if err := r.trackStage(ctx, runID, "reclassify", log, func() (map[string]any, error) {
		leg := r.Legend
		cls, err := ResolveClasses(leg)
		if err != nil {
			return nil, err
		}
		res, err = Run(ctx, in, cls, r.Params, leg)
		if err != nil {
			return nil, err
		}
		return map[string]any{"changed": res.TotalChanged()}, nil
	}); err != nil {
		return nil, err
	}

	if err := r.trackStage(ctx, runID, "write", log, func() (map[string]any, error) {
		if err := r.IO.WriteClass(ctx, job.OutputPath, res.Output); err != nil {
			return nil, eris.Wrapf(err, "runner: write %s", job.OutputPath)
		}
		return nil, nil
	}); err != nil {
		return nil, err
	}

	return res, nil
}

// loadRasters reads the classification at its native frame and resamples
// every auxiliary raster onto it. Categorical layers use nearest-neighbour,
// measurements use area-weighted means.
func (r *Runner) loadRasters(ctx context.Context, job Job) (Inputs, error) {
	base, err := r.IO.ReadClass(ctx, job.Scene.Path, r.TargetCRS)
	if err != nil {
		return Inputs{}, eris.Wrapf(err, "runner: load classification %s", job.Scene.Path)
	}
	frame := base.Box

	hand, err := r.IO.ReadContinuous(ctx, job.HANDPath, r.TargetCRS)
	if err != nil {
		return Inputs{}, eris.Wrapf(err, "runner: load hand %s", job.HANDPath)
	}
	if hand, err = raster.ResampleAverage(hand, frame, "hand"); err != nil {
		return Inputs{}, err
	}

	buildings, err := r.IO.ReadClass(ctx, job.BuildingsPath, r.TargetCRS)
	if err != nil {
		return Inputs{}, eris.Wrapf(err, "runner: load buildings %s", job.BuildingsPath)
	}
	if buildings, err = raster.ResampleNearest(buildings, frame, "buildings"); err != nil {
		return Inputs{}, err
	}

	settlement, err := r.IO.ReadClass(ctx, job.SettlementPath, r.TargetCRS)
	if err != nil {
		return Inputs{}, eris.Wrapf(err, "runner: load settlement %s", job.SettlementPath)
	}
	if settlement, err = raster.ResampleNearest(settlement, frame, "settlement"); err != nil {
		return Inputs{}, err
	}

	index, err := r.IO.ReadContinuous(ctx, job.IndexPath, r.TargetCRS)
	if err != nil {
		return Inputs{}, eris.Wrapf(err, "runner: load water index %s", job.IndexPath)
	}
	if index, err = raster.ResampleAverage(index, frame, "water_index"); err != nil {
		return Inputs{}, err
	}

	return Inputs{
		Classified: base,
		HAND:       hand,
		Buildings:  buildings,
		Settlement: settlement,
		WaterIndex: index,
	}, nil
}

// buildMasks rasterizes the river, road, and coast vectors onto the scene
// frame. Roads are first narrowed to the configured surface allow-list.
func (r *Runner) buildMasks(ctx context.Context, in *Inputs, log *zap.Logger) (map[string]any, error) {
	frame := in.Classified.Box

	rivers, err := r.readLayer(ctx, r.Rivers, "rivers", frame)
	if err != nil {
		return nil, err
	}
	in.River = r.burn(rivers, "rivers", frame, 0, log)

	roads, err := r.readLayer(ctx, r.Roads, "roads", frame)
	if err != nil {
		return nil, err
	}
	if len(r.RoadSurfaces) > 0 {
		key := r.RoadSurfaceKey
		if key == "" {
			key = "surface"
		}
		roads = roads.FilterValue(key, r.RoadSurfaces...)
	}
	in.Roads = r.burn(roads, "roads", frame, r.RoadBufferM, log)

	coast, err := r.readLayer(ctx, r.Coast, "coastline", frame)
	if err != nil {
		return nil, err
	}
	in.Coast = r.burn(coast, "coastline", frame, r.CoastBufferM, log)

	return map[string]any{
		"rivers": rivers.Len(),
		"roads":  roads.Len(),
		"coast":  coast.Len(),
	}, nil
}

func (r *Runner) readLayer(ctx context.Context, src vector.Source, name string, frame raster.GeoBox) (*vector.Layer, error) {
	layer, err := src.Read(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "runner: read %s", name)
	}
	if layer.CRS != "" && raster.NormalizeCRS(layer.CRS) != frame.CRS {
		return nil, &raster.CRSMismatchError{Layer: name, Have: layer.CRS, Want: frame.CRS}
	}
	return layer, nil
}

// burn rasterizes a layer to a binary mask. An empty layer is legal and
// yields an all-zero mask; it is logged because it usually means an
// over-tight filter or a mismatched region.
func (r *Runner) burn(layer *vector.Layer, name string, frame raster.GeoBox, buffer float64, log *zap.Logger) *raster.Grid[uint8] {
	geoms := layer.Geoms()
	if len(geoms) == 0 {
		log.Warn("mask layer has no features; mask stays empty", zap.String("layer", name))
	}
	return rasterize.Burn(frame, geoms, buffer)
}

// trackStage runs fn under a named stage, recording timing and outcome in
// the store when one is configured. Stage bookkeeping failures are logged
// and swallowed; only fn's error propagates.
func (r *Runner) trackStage(ctx context.Context, runID, name string, log *zap.Logger, fn func() (map[string]any, error)) error {
	var stageID string
	if r.Store != nil && runID != "" {
		stage, err := r.Store.CreateStage(ctx, runID, name)
		if err != nil {
			log.Warn("failed to create stage", zap.String("stage", name), zap.Error(err))
		} else {
			stageID = stage.ID
		}
	}

	start := time.Now()
	meta, err := fn()
	elapsed := time.Since(start)

	if stageID != "" {
		result := &model.StageResult{
			Name:     name,
			Status:   model.StageStatusComplete,
			Duration: elapsed.Milliseconds(),
			Metadata: meta,
		}
		if err != nil {
			result.Status = model.StageStatusFailed
			result.Error = err.Error()
		}
		if cerr := r.Store.CompleteStage(ctx, stageID, result); cerr != nil {
			log.Warn("failed to complete stage", zap.String("stage", name), zap.Error(cerr))
		}
	}

	log.Debug("stage finished",
		zap.String("stage", name),
		zap.Duration("elapsed", elapsed),
		zap.Bool("ok", err == nil),
	)
	return err
}

func (r *Runner) validateJob(job Job) error {
	if r.IO == nil {
		return eris.New("runner: raster io is required")
	}
	if r.Legend == nil {
		return eris.New("runner: legend is required")
	}
	if r.Rivers == nil || r.Roads == nil || r.Coast == nil {
		return eris.New("runner: river, road, and coastline sources are required")
	}
	for _, p := range []struct {
		name, path string
	}{
		{"scene", job.Scene.Path},
		{"hand", job.HANDPath},
		{"buildings", job.BuildingsPath},
		{"settlement", job.SettlementPath},
		{"water index", job.IndexPath},
		{"output", job.OutputPath},
	} {
		if p.path == "" {
			return eris.Errorf("runner: %s path is required", p.name)
		}
	}
	return nil
}
