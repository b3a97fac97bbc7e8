package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/clinovault/clinovault/internal/jobs"
)

// ArchiveStore is the slice of the audit repository the archive job needs.
type ArchiveStore interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditArchiveJob moves audit entries past the retention window into the
// archive table. Entries are copied before they are removed from the hot
// table; nothing is ever deleted unarchived.
type AuditArchiveJob struct {
	Store   ArchiveStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditArchiveJob initialises the archive handler.
func NewAuditArchiveJob(store ArchiveStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditArchiveJob {
	return &AuditArchiveJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one archival pass.
func (j *AuditArchiveJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit archive: handler not configured")
	}
	var payload AuditArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetainDays <= 0 {
		payload.RetainDays = 365
	}

	tracker := j.Metrics.Track(TaskAuditArchive)
	cutoff := j.now().AddDate(0, 0, -payload.RetainDays)
	moved, err := j.Store.ArchiveBefore(ctx, cutoff)
	if err != nil {
		j.log().Error("audit archive", slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("audit archive completed",
		slog.Time("cutoff", cutoff),
		slog.Int64("moved", moved))
	return tracker.End(nil)
}

func (j *AuditArchiveJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *AuditArchiveJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
