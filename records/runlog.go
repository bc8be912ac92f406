package records

import (
	"errors"
	"time"
)

// RunStatus is the lifecycle state of a scraping run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether s is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// ErrRunClosed is returned when finishing a run that already finished.
var ErrRunClosed = errors.New("records: run already finished")

// RunLog tracks one extraction run for one content type.
type RunLog struct {
	ID            string      `json:"id,omitempty"`
	JobID         string      `json:"job_id"`
	TargetType    ContentType `json:"target_type"`
	Status        RunStatus   `json:"status"`
	ItemsScraped  int         `json:"items_scraped"`
	ItemsRejected int         `json:"items_rejected"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// NewRunLog returns a log in the running state.
func NewRunLog(jobID string, target ContentType, now time.Time) *RunLog {
	return &RunLog{
		JobID:      jobID,
		TargetType: target,
		Status:     RunRunning,
		StartedAt:  now,
	}
}

// Finish moves a running log to completed, or to failed when runErr is set.
// accepted is the number of records accepted so far either way.
func (r *RunLog) Finish(accepted, rejected int, runErr error, now time.Time) error {
	if r.Status != RunRunning {
		return ErrRunClosed
	}
	r.ItemsScraped = accepted
	r.ItemsRejected = rejected
	r.Status = RunCompleted
	if runErr != nil {
		r.Status = RunFailed
		r.ErrorMessage = runErr.Error()
	}
	r.CompletedAt = &now
	return nil
}

func (r *RunLog) Validate() error {
	var terr, serr error
	if r.TargetType == "" || len(r.TargetType) > 50 {
		terr = &FieldError{Field: "target_type", Reason: "must be 1..50 characters"}
	}
	switch r.Status {
	case RunRunning, RunCompleted, RunFailed, RunCancelled:
	default:
		serr = &FieldError{Field: "status", Reason: "unknown run status"}
	}
	return firstErr(requiredMax("job_id", r.JobID, maxJobID), terr, serr)
}
