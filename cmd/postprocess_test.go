//go:build !integration

package main

import (
	"bytes"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldscape/landcover-cli/internal/config"
	"github.com/veldscape/landcover-cli/internal/model"
	"github.com/veldscape/landcover-cli/internal/pipeline"
)

// setPostprocessFlags swaps the package-level flag state for a test and
// restores it afterwards.
func setPostprocessFlags(t *testing.T, hand, out, outDir, region string) {
	t.Helper()

	prevHAND, prevOut, prevOutDir, prevRegion := ppHAND, ppOut, ppOutDir, ppRegion
	prevCfg := cfg
	t.Cleanup(func() {
		ppHAND, ppOut, ppOutDir, ppRegion = prevHAND, prevOut, prevOutDir, prevRegion
		cfg = prevCfg
	})

	ppHAND, ppOut, ppOutDir, ppRegion = hand, out, outDir, region
	ppBuildings, ppSettlement, ppIndex = "", "", ""
	cfg = &config.Config{}
	cfg.Layers.HAND = "/layers/hand.tif"
	cfg.Layers.Buildings = "/layers/buildings.tif"
}

func TestBuildJobsSingleScene(t *testing.T) {
	setPostprocessFlags(t, "/override/hand.tif", "/out/scene_clean.tif", "", "kzn")

	jobs, err := buildJobs([]string{"/data/scene.tif"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, "/data/scene.tif", jobs[0].Scene.Path)
	assert.Equal(t, "kzn", jobs[0].Scene.Region)
	assert.Equal(t, "/override/hand.tif", jobs[0].HANDPath, "flag overrides config")
	assert.Equal(t, "/layers/buildings.tif", jobs[0].BuildingsPath, "config fills in missing flags")
	assert.Equal(t, "/out/scene_clean.tif", jobs[0].OutputPath)
}

func TestBuildJobsMultipleScenes(t *testing.T) {
	setPostprocessFlags(t, "", "", "/out", "")

	jobs, err := buildJobs([]string{"/data/a.tif", "/data/b.tif"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "/out/a_clean.tif", jobs[0].OutputPath)
	assert.Equal(t, "/out/b_clean.tif", jobs[1].OutputPath)
}

func TestBuildJobsRejectsOutWithMultipleScenes(t *testing.T) {
	setPostprocessFlags(t, "", "/out/clean.tif", "", "")

	_, err := buildJobs([]string{"/data/a.tif", "/data/b.tif"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--out-dir")
}

func TestBuildJobsRequiresOutput(t *testing.T) {
	setPostprocessFlags(t, "", "", "", "")

	_, err := buildJobs([]string{"/data/a.tif"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--out or --out-dir")
}

func TestCleanOutputPath(t *testing.T) {
	assert.Equal(t, "/out/scene_clean.tif", cleanOutputPath("/out", "/data/scene.tif"))
	assert.Equal(t, "/out/scene_clean", cleanOutputPath("/out", "/data/scene"))
}

func TestFormatJobResults(t *testing.T) {
	results := []pipeline.JobResult{
		{
			Job:    pipeline.Job{Scene: model.Scene{Path: "/data/a.tif"}, OutputPath: "/out/a_clean.tif"},
			Result: &model.RunResult{ChangedCells: 128},
		},
		{
			Job: pipeline.Job{Scene: model.Scene{Path: "/data/b.tif"}, OutputPath: "/out/b_clean.tif"},
			Err: eris.New("hand raster grid does not match scene"),
		},
	}

	var buf bytes.Buffer
	formatJobResults(&buf, results)

	output := buf.String()
	assert.Contains(t, output, "SCENE")
	assert.Contains(t, output, "a.tif")
	assert.Contains(t, output, "ok")
	assert.Contains(t, output, "128")
	assert.Contains(t, output, "/out/a_clean.tif")
	assert.Contains(t, output, "b.tif")
	assert.Contains(t, output, "failed")
	assert.NotContains(t, output, "/out/b_clean.tif", "failed scenes report no output")
}
