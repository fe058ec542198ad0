package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/model"
	"github.com/veldscape/landcover-cli/internal/pipeline"
)

var (
	ppHAND       string
	ppBuildings  string
	ppSettlement string
	ppIndex      string
	ppOut        string
	ppOutDir     string
	ppRegion     string
)

var postprocessCmd = &cobra.Command{
	Use:   "postprocess <scene.tif> [scene.tif ...]",
	Short: "Apply the correction sequence to classified rasters",
	Long:  "Runs the ordered reclassification rules over one or more classified scenes. Multiple scenes are processed as isolated jobs; one failing scene does not stop the others.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initRunner(ctx, "postprocess")
		if err != nil {
			return err
		}
		defer env.Close()

		jobs, err := buildJobs(args)
		if err != nil {
			return err
		}

		if len(jobs) == 1 {
			result, err := env.Runner.Process(ctx, jobs[0])
			if err != nil {
				return eris.Wrap(err, "postprocess")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		results := env.Runner.ProcessBatch(ctx, jobs, cfg.Batch.MaxConcurrentScenes)
		formatJobResults(os.Stdout, results)

		if failed := pipeline.Failed(results); failed > 0 {
			return eris.Errorf("%d of %d scenes failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	postprocessCmd.Flags().StringVar(&ppHAND, "hand", "", "HAND raster (default from layers.hand)")
	postprocessCmd.Flags().StringVar(&ppBuildings, "buildings", "", "building footprint raster (default from layers.buildings)")
	postprocessCmd.Flags().StringVar(&ppSettlement, "settlement", "", "settlement footprint raster (default from layers.settlement)")
	postprocessCmd.Flags().StringVar(&ppIndex, "index", "", "water index raster (default from layers.index)")
	postprocessCmd.Flags().StringVar(&ppOut, "out", "", "output path (single scene only)")
	postprocessCmd.Flags().StringVar(&ppOutDir, "out-dir", "", "output directory; files are named <scene>_clean.<ext>")
	postprocessCmd.Flags().StringVar(&ppRegion, "region", "", "region tag recorded with each run")
	rootCmd.AddCommand(postprocessCmd)
}

// buildJobs resolves the aux layer paths and output location for each scene
// argument. Flags override the standing layers from config.
func buildJobs(scenes []string) ([]pipeline.Job, error) {
	hand := fallback(ppHAND, cfg.Layers.HAND)
	buildings := fallback(ppBuildings, cfg.Layers.Buildings)
	settlement := fallback(ppSettlement, cfg.Layers.Settlement)
	index := fallback(ppIndex, cfg.Layers.Index)

	if ppOut != "" && len(scenes) > 1 {
		return nil, eris.New("--out only applies to a single scene; use --out-dir")
	}
	if ppOut == "" && ppOutDir == "" {
		return nil, eris.New("either --out or --out-dir is required")
	}

	jobs := make([]pipeline.Job, 0, len(scenes))
	for _, scene := range scenes {
		out := ppOut
		if out == "" {
			out = cleanOutputPath(ppOutDir, scene)
		}
		jobs = append(jobs, pipeline.Job{
			Scene:          model.Scene{Path: scene, Region: ppRegion},
			HANDPath:       hand,
			BuildingsPath:  buildings,
			SettlementPath: settlement,
			IndexPath:      index,
			OutputPath:     out,
		})
	}
	return jobs, nil
}

func fallback(flag, configured string) string {
	if flag != "" {
		return flag
	}
	return configured
}

// cleanOutputPath derives the output file name for a scene inside outDir.
func cleanOutputPath(outDir, scene string) string {
	base := filepath.Base(scene)
	ext := filepath.Ext(base)
	return filepath.Join(outDir, strings.TrimSuffix(base, ext)+"_clean"+ext)
}

// formatJobResults writes a per-scene summary table to w.
func formatJobResults(out io.Writer, results []pipeline.JobResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCENE\tSTATUS\tCHANGED\tOUTPUT")
	_, _ = fmt.Fprintln(w, "-----\t------\t-------\t------")

	for _, jr := range results {
		status, changed, output := "ok", 0, jr.Job.OutputPath
		if jr.Err != nil {
			status, output = "failed", ""
			zap.L().Error("scene failed",
				zap.String("scene", jr.Job.Scene.Path),
				zap.Error(jr.Err),
			)
		} else if jr.Result != nil {
			changed = jr.Result.ChangedCells
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			filepath.Base(jr.Job.Scene.Path),
			status,
			changed,
			output,
		)
	}
	_ = w.Flush()
}
