package model

import "time"

// RunStatus represents the current state of a post-processing run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Scene identifies the classified raster a run processes.
type Scene struct {
	Path   string `json:"path"`
	Region string `json:"region,omitempty"`
	CRS    string `json:"crs,omitempty"`
}

// Run represents a single post-processing run over a scene.
type Run struct {
	ID        string     `json:"id"`
	Scene     Scene      `json:"scene"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RuleResult records how many cells one reclassification rule changed.
type RuleResult struct {
	Name    string `json:"name"`
	Changed int    `json:"changed"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	OutputPath   string       `json:"output_path"`
	Cells        int          `json:"cells"`
	ChangedCells int          `json:"changed_cells"`
	UnknownCells int          `json:"unknown_cells,omitempty"`
	Rules        []RuleResult `json:"rules"`
	DurationMS   int64        `json:"duration_ms"`
	Error        string       `json:"error,omitempty"`
}

// Failed reports whether the run ended in an error.
func (r *RunResult) Failed() bool {
	return r != nil && r.Error != ""
}

// RunStage represents one stage within a run (load, masks, reclassify, write).
type RunStage struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// StageStatus represents the current state of a run stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of a run stage.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
