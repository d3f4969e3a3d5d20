package importer

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAuth marks feed authentication failure before any row was fetched. It is
// the only failure that aborts a whole run; everything after row fetch is
// isolated per row.
var ErrAuth = errors.New("feed authentication failed")

// TaskStatus is the lifecycle state of one reconciliation run.
type TaskStatus string

const (
	StatusRunning   TaskStatus = "Running"
	StatusCompleted TaskStatus = "Completed"
	StatusAuthError TaskStatus = "Auth Error"
)

// RowStatus records one failed row: what was being attempted and the error.
type RowStatus struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// TaskRecord is the audit entity for one reconciliation run. It is created at
// run start, updated at checkpoints, terminal at run end, and never mutated
// afterward. Row failures are visible only here: a run with failed rows still
// finishes Completed, so operators must inspect this record to detect a
// degraded run.
type TaskRecord struct {
	ID                     uuid.UUID
	Feed                   string
	Status                 TaskStatus
	ItemTotal              int
	ItemsProcessed         int
	IndividualRecordStatus []RowStatus
	StartedAt              time.Time
	FinishedAt             time.Time
}

// Row is one foreign feed row: column name to raw value. Columns absent from
// a row read as "", which keeps transforms total and round-tripping stable.
type Row map[string]string
