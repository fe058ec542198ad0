//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veldscape/landcover-cli/internal/model"
	"github.com/veldscape/landcover-cli/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Scene:     model.Scene{Path: "/data/scenes/kzn_2023.tif", Region: "kzn"},
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{ChangedCells: 4211, DurationMS: 93000},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Scene:     model.Scene{Path: "/data/scenes/ec_2023.tif"},
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "SCENE")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "kzn/kzn_2023.tif")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "4211")
	assert.Contains(t, output, "1m33s")
	assert.Contains(t, output, "ec_2023.tif")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2026-03-01 09:15")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.MetricsSnapshot{
		Total:        5,
		Complete:     3,
		Failed:       1,
		Queued:       1,
		FailRate:     0.25,
		ChangedCells: 999,
		AvgDurSecs:   12.5,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "999")
	assert.Contains(t, output, "25.0%")
	assert.Contains(t, output, "12.5s")
	assert.NotContains(t, output, "Window:")
	assert.NotContains(t, output, "Unknown cells:")
}

func TestFormatRunStatsWindowed(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, &monitoring.MetricsSnapshot{
		Total:         2,
		Complete:      2,
		UnknownRuns:   1,
		UnknownCells:  44,
		LookbackHours: 24,
	})

	output := buf.String()
	assert.Contains(t, output, "Window:")
	assert.Contains(t, output, "last 24h")
	assert.Contains(t, output, "44 across 1 runs")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcd1234", truncateID("abcd1234-5678"))
	assert.Equal(t, "short", truncateID("short"))
}
