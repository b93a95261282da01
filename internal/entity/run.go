package entity

import (
	"time"

	"github.com/joseph-ayodele/cardlead/constants"
)

// Run is one row of the run history ledger.
type Run struct {
	ProcessID    ProcessID           `json:"process_id"`
	Status       constants.RunStatus `json:"status"`
	InputMode    constants.InputMode `json:"input_mode"`
	Assignee     string              `json:"assignee"`
	Stage        string              `json:"stage,omitempty"`
	RecordID     *string             `json:"record_id,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CardURL      *string             `json:"card_url,omitempty"`
	ImageCount   int                 `json:"image_count"`
	QueuedAt     time.Time           `json:"queued_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}
