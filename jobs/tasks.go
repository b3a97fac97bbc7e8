package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditArchive moves aged audit entries into the archive table.
	TaskAuditArchive = "audit:archive"
	// TaskAuditIntegrity scans the audit trail for anomalies.
	TaskAuditIntegrity = "audit:integrity"
	// TaskSessionsPrune removes expired session rows.
	TaskSessionsPrune = "sessions:prune"
)

// AuditArchivePayload controls how old an entry must be before archival.
type AuditArchivePayload struct {
	RetainDays int `json:"retain_days"`
}

// NewAuditArchiveTask constructs an Asynq task for audit archival.
func NewAuditArchiveTask(retainDays int) (*asynq.Task, error) {
	body, err := json.Marshal(AuditArchivePayload{RetainDays: retainDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditArchive, body, asynq.Queue(QueueDefault)), nil
}

// AuditIntegrityPayload bounds the window the scan inspects.
type AuditIntegrityPayload struct {
	WindowHours int `json:"window_hours"`
}

// NewAuditIntegrityTask constructs an Asynq task for the integrity scan.
func NewAuditIntegrityTask(windowHours int) (*asynq.Task, error) {
	body, err := json.Marshal(AuditIntegrityPayload{WindowHours: windowHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// SessionsPrunePayload carries scheduling metadata.
type SessionsPrunePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSessionsPruneTask constructs an Asynq task for session pruning.
func NewSessionsPruneTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SessionsPrunePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPrune, body, asynq.Queue(QueueDefault)), nil
}
