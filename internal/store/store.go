package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/veldscape/landcover-cli/internal/model"
)

// ErrRunNotFound is returned by GetRun when no run has the given ID.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Scene        string          `json:"scene,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history and the download
// cache.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, scene model.Scene) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	LatestRun(ctx context.Context, scenePath string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Download cache
	GetCachedFetch(ctx context.Context, url string) ([]byte, error)
	SetCachedFetch(ctx context.Context, url string, data []byte, ttl time.Duration) error
	DeleteExpiredFetches(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
