// Package monitoring watches run history for trouble: a collector summarizes
// recent runs into a health snapshot, an alerter turns bad snapshots into
// webhook notifications, and a checker drives both on a timer while the
// watch daemon runs.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veldscape/landcover-cli/internal/model"
	"github.com/veldscape/landcover-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
	Running  int `json:"running"`
	Queued   int `json:"queued"`

	// FailRate is failed over finished (complete+failed) runs.
	FailRate float64 `json:"fail_rate"`

	ChangedCells int     `json:"changed_cells"`
	UnknownCells int     `json:"unknown_cells"`
	UnknownRuns  int     `json:"unknown_runs"`
	AvgDurSecs   float64 `json:"avg_duration_secs"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Finished returns the number of runs that reached a terminal status.
func (s *MetricsSnapshot) Finished() int {
	return s.Complete + s.Failed
}

// Collector gathers run metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector over a store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect summarizes the runs created within the lookback window.
// A lookback of zero or less summarizes the whole history.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	filter := store.RunFilter{Limit: 10000}
	if lookbackHours > 0 {
		filter.CreatedAfter = time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	}

	runs, err := c.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.Total = len(runs)
	var totalDurMS int64
	var durRuns int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusRunning:
			snap.Running++
		case model.RunStatusQueued:
			snap.Queued++
		}

		if r.Result == nil {
			continue
		}
		snap.ChangedCells += r.Result.ChangedCells
		if r.Result.UnknownCells > 0 {
			snap.UnknownRuns++
			snap.UnknownCells += r.Result.UnknownCells
		}
		if r.Result.DurationMS > 0 {
			totalDurMS += r.Result.DurationMS
			durRuns++
		}
	}

	if finished := snap.Finished(); finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if durRuns > 0 {
		snap.AvgDurSecs = float64(totalDurMS) / float64(durRuns) / 1000
	}

	return snap, nil
}
