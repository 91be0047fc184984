package dispatch

import (
	"time"

	"github.com/SYA-Group/sya-sms-dispatch/pkg/codes"
)

// Snapshot is an immutable copy of a job's counters taken under one lock,
// so Sent+Failed+Pending always equals Total.
type Snapshot struct {
	JobID           string     `json:"job_id,omitempty"`
	AccountID       int64      `json:"account_id"`
	Status          string     `json:"status"`
	State           string     `json:"state"`
	Reason          string     `json:"reason,omitempty"`
	Error           string     `json:"error,omitempty"`
	UnitsPerMessage int        `json:"units_per_message"`
	Sent            int64      `json:"sent"`
	Failed          int64      `json:"failed"`
	UnitsUsed       int64      `json:"units_used"`
	Total           int64      `json:"total"`
	Pending         int64      `json:"pending"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Active reports whether the job was still running or draining when taken.
func (s Snapshot) Active() bool {
	return s.Status == codes.JobRunning || s.Status == codes.JobStopping
}

// IdleSnapshot is reported for an account that never started a job.
func IdleSnapshot(accountID int64) Snapshot {
	return Snapshot{AccountID: accountID, Status: codes.JobIdle, State: codes.ProgressIdle}
}

func legacyState(status string) string {
	if status == codes.JobRunning || status == codes.JobStopping {
		return codes.ProgressSending
	}
	return codes.ProgressIdle
}
