package models

import (
	"time"

	"github.com/julianstephens/bayslots/internal/constants"
)

// ReconcileRun is an append-only audit record of one reconciler invocation
type ReconcileRun struct {
	ID         string              `json:"id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Mode       constants.RunMode   `json:"mode"`
	StartFrom  string              `json:"start_from,omitempty"` // empty when the run aborted before computing the range
	TargetEnd  string              `json:"target_end,omitempty"`
	Inserted   int                 `json:"inserted"`
	Deleted    int                 `json:"deleted"`
	FailedDays int                 `json:"failed_days"`
	Status     constants.RunStatus `json:"status"`
	Error      string              `json:"error,omitempty"`
}

// SlotGap records a date whose batch write failed and still needs generating
type SlotGap struct {
	SlotDate   string    `json:"slot_date"`
	RunID      string    `json:"run_id"`
	Error      string    `json:"error"`
	RecordedAt time.Time `json:"recorded_at"`
}
