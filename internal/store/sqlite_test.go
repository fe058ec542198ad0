package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veldscape/landcover-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testScene(path string) model.Scene {
	return model.Scene{Path: path, Region: "limpopo", CRS: "EPSG:32736"}
}

// --- Runs ---

func TestSQLite_Runs_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testScene("scenes/limpopo_2024.tif"))
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "scenes/limpopo_2024.tif", got.Scene.Path)
	assert.Equal(t, "EPSG:32736", got.Scene.CRS)
	assert.Equal(t, model.RunStatusQueued, got.Status)
	assert.Nil(t, got.Result)
}

func TestSQLite_Runs_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "no-such-run")
	assert.Error(t, err)
}

func TestSQLite_Runs_UpdateStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testScene("a.tif"))
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
}

func TestSQLite_Runs_UpdateStatusMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateRunStatus(context.Background(), "no-such-run", model.RunStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_Runs_UpdateResultComplete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testScene("a.tif"))
	require.NoError(t, err)

	result := &model.RunResult{
		OutputPath:   "out/a_clean.tif",
		Cells:        250000,
		ChangedCells: 1234,
		Rules: []model.RuleResult{
			{Name: "smooth", Changed: 1000},
			{Name: "hydrology_water", Changed: 234},
		},
		DurationMS: 4200,
	}
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, result))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "out/a_clean.tif", got.Result.OutputPath)
	require.Len(t, got.Result.Rules, 2)
	assert.Equal(t, "hydrology_water", got.Result.Rules[1].Name)
	assert.Equal(t, 234, got.Result.Rules[1].Changed)
}

func TestSQLite_Runs_UpdateResultFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testScene("a.tif"))
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunResult(ctx, run.ID, &model.RunResult{Error: "hand layer does not cover scene"}))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	require.NotNil(t, got.Result)
	assert.Contains(t, got.Result.Error, "does not cover")
}

func TestSQLite_Runs_List(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateRun(ctx, testScene("a.tif"))
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, testScene("b.tif"))
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, testScene("a.tif"))
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunResult(ctx, a.ID, &model.RunResult{OutputPath: "a_clean.tif"}))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	byScene, err := st.ListRuns(ctx, RunFilter{Scene: "a.tif"})
	require.NoError(t, err)
	assert.Len(t, byScene, 2)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_Runs_ListCreatedAfter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	old, err := st.CreateRun(ctx, testScene("old.tif"))
	require.NoError(t, err)
	fresh, err := st.CreateRun(ctx, testScene("fresh.tif"))
	require.NoError(t, err)

	// Push the first run outside the window.
	_, err = st.db.ExecContext(ctx,
		`UPDATE runs SET created_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-48*time.Hour), old.ID,
	)
	require.NoError(t, err)

	recent, err := st.ListRuns(ctx, RunFilter{CreatedAfter: time.Now().UTC().Add(-24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, fresh.ID, recent[0].ID)
}

func TestSQLite_Runs_Latest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	missing, err := st.LatestRun(ctx, "a.tif")
	require.NoError(t, err)
	assert.Nil(t, missing)

	run, err := st.CreateRun(ctx, testScene("a.tif"))
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, testScene("a.tif"))
	require.NoError(t, err)

	// Only the completed run qualifies.
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, &model.RunResult{OutputPath: "a_clean.tif"}))

	latest, err := st.LatestRun(ctx, "a.tif")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, model.RunStatusComplete, latest.Status)
}

// --- Stages ---

func TestSQLite_Stages_CreateAndComplete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, testScene("a.tif"))
	require.NoError(t, err)

	stage, err := st.CreateStage(ctx, run.ID, "load")
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusRunning, stage.Status)
	assert.Equal(t, run.ID, stage.RunID)

	err = st.CompleteStage(ctx, stage.ID, &model.StageResult{
		Name:     "load",
		Status:   model.StageStatusComplete,
		Duration: 150,
		Metadata: map[string]any{"cells": 250000},
	})
	assert.NoError(t, err)
}

func TestSQLite_Stages_CompleteMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.CompleteStage(context.Background(), "no-such-stage", &model.StageResult{
		Name:   "load",
		Status: model.StageStatusComplete,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Fetch cache ---

func TestSQLite_FetchCache_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.SetCachedFetch(ctx, "https://example.com/coastline.geojson", []byte("feature-collection"), time.Hour)
	require.NoError(t, err)

	data, err := st.GetCachedFetch(ctx, "https://example.com/coastline.geojson")
	require.NoError(t, err)
	assert.Equal(t, "feature-collection", string(data))
}

func TestSQLite_FetchCache_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	data, err := st.GetCachedFetch(context.Background(), "https://example.com/nope")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSQLite_FetchCache_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Set with an already-expired TTL.
	err := st.SetCachedFetch(ctx, "https://example.com/old", []byte("stale"), -time.Hour)
	require.NoError(t, err)

	data, err := st.GetCachedFetch(ctx, "https://example.com/old")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSQLite_FetchCache_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedFetch(ctx, "https://example.com/x", []byte("original"), time.Hour))
	require.NoError(t, st.SetCachedFetch(ctx, "https://example.com/x", []byte("updated"), time.Hour))

	data, err := st.GetCachedFetch(ctx, "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "updated", string(data))
}

func TestSQLite_FetchCache_DeleteExpired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedFetch(ctx, "https://example.com/keep", []byte("fresh"), time.Hour))
	require.NoError(t, st.SetCachedFetch(ctx, "https://example.com/drop", []byte("stale"), -time.Hour))

	n, err := st.DeleteExpiredFetches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := st.GetCachedFetch(ctx, "https://example.com/keep")
	require.NoError(t, err)
	assert.NotNil(t, data)
}
