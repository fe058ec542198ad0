package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/config"
	"github.com/veldscape/landcover-cli/internal/model"
	"github.com/veldscape/landcover-cli/internal/monitoring"
	"github.com/veldscape/landcover-cli/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process scenes as they arrive in the ingest directory",
	Long:  "Watches the configured ingest directory and runs the correction sequence on every newly created raster matching the suffix filter. Failures are logged; the watcher keeps going.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRunner(ctx, "watch")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		return watchLoop(ctx, env.Runner, cfg.Watch)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func watchLoop(ctx context.Context, runner *pipeline.Runner, wc config.WatchConfig) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "create watcher")
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(wc.Dir); err != nil {
		return eris.Wrapf(err, "watch %s", wc.Dir)
	}

	settle := time.Duration(wc.SettleSecs) * time.Second
	log := zap.L().With(zap.String("dir", wc.Dir))
	log.Info("watching for scenes", zap.String("suffix", wc.Suffix))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !wantScene(event.Name, wc.Suffix) {
				continue
			}
			// Let the producer finish writing before we read.
			if !sleepCtx(ctx, settle) {
				return nil
			}
			processWatched(ctx, runner, event.Name, wc, log)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}

// wantScene filters watch events down to fresh scene rasters. Files carrying
// the _clean marker are our own outputs and are never reprocessed.
func wantScene(path, suffix string) bool {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, suffix) {
		return false
	}
	return !strings.Contains(base, "_clean.")
}

func processWatched(ctx context.Context, runner *pipeline.Runner, scene string, wc config.WatchConfig, log *zap.Logger) {
	outDir := wc.OutDir
	if outDir == "" {
		outDir = filepath.Dir(scene)
	}

	job := pipeline.Job{
		Scene:          model.Scene{Path: scene},
		HANDPath:       cfg.Layers.HAND,
		BuildingsPath:  cfg.Layers.Buildings,
		SettlementPath: cfg.Layers.Settlement,
		IndexPath:      cfg.Layers.Index,
		OutputPath:     cleanOutputPath(outDir, scene),
	}

	result, err := runner.Process(ctx, job)
	if err != nil {
		log.Error("scene failed", zap.String("scene", scene), zap.Error(err))
		return
	}
	log.Info("scene processed",
		zap.String("scene", scene),
		zap.String("out", job.OutputPath),
		zap.Int("changed_cells", result.ChangedCells),
	)
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
