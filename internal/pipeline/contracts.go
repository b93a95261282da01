package pipeline

import (
	"context"
	"time"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/entity"
)

// Stage names used in logs, ledger rows and metrics.
const (
	StageValidate = "validate"
	StageQueue    = "queue"
	StageStaging  = "staging"
	StageExtract  = "extract"
	StageAssemble = "assemble"
	StagePublish  = "publish"
	StageAttach   = "attach"
	StageCleanup  = "cleanup"
	StageDone     = "done"
)

// Submission is what the intake layer hands to Start. The pipeline takes
// ownership of every local file it names once Start returns nil.
type Submission struct {
	CardPath     string                 `json:"card_path,omitempty"`
	HearingPaths []string               `json:"hearing_paths,omitempty"`
	LeadDate     string                 `json:"lead_date,omitempty"`
	Context      entity.PipelineContext `json:"context"`
}

// Job is one accepted submission waiting for a worker.
type Job struct {
	ProcessID  entity.ProcessID
	Submission Submission
	QueuedAt   time.Time
}

// Outcome is the terminal state of one Run.
type Outcome struct {
	ProcessID  entity.ProcessID
	Status     constants.RunStatus
	Stage      string
	RecordID   string
	CardURL    string
	ImageCount int
	Attached   int
	Err        error
}

// RunRecorder keeps the run history. Errors are logged by the caller and
// never change a run's outcome.
type RunRecorder interface {
	RecordQueued(ctx context.Context, run entity.Run) error
	RecordStarted(ctx context.Context, id entity.ProcessID, at time.Time) error
	RecordFinished(ctx context.Context, out Outcome, at time.Time) error
}

// Observer receives per-stage timings and terminal outcomes, typically for metrics.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveRun(status constants.RunStatus)
}

type nopRecorder struct{}

func (nopRecorder) RecordQueued(context.Context, entity.Run) error { return nil }
func (nopRecorder) RecordStarted(context.Context, entity.ProcessID, time.Time) error { return nil }
func (nopRecorder) RecordFinished(context.Context, Outcome, time.Time) error { return nil }

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration) {}
func (nopObserver) ObserveRun(constants.RunStatus) {}
