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

// IntegrityStore is the slice of the audit repository the scan needs.
type IntegrityStore interface {
	CountSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditIntegrityJob watches entry volume over a sliding window. A silent
// trail on a serving system means decisions are happening without entries, so
// an empty window is an anomaly, not a quiet day.
type AuditIntegrityJob struct {
	Store   IntegrityStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditIntegrityJob initialises the integrity scan handler.
func NewAuditIntegrityJob(store IntegrityStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditIntegrityJob {
	return &AuditIntegrityJob{
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one scan pass.
func (j *AuditIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit integrity: handler not configured")
	}
	var payload AuditIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowHours <= 0 {
		payload.WindowHours = 24
	}

	tracker := j.Metrics.Track(TaskAuditIntegrity)
	cutoff := j.now().Add(-time.Duration(payload.WindowHours) * time.Hour)
	count, err := j.Store.CountSince(ctx, cutoff)
	if err != nil {
		j.log().Error("audit integrity scan", slog.Any("error", err))
		return tracker.End(err)
	}
	if count == 0 {
		j.log().Warn("audit trail silent over window",
			slog.Time("cutoff", cutoff),
			slog.Int("window_hours", payload.WindowHours))
		j.Metrics.AddAnomalies("warning", 1)
	} else {
		j.log().Info("audit integrity scan completed",
			slog.Time("cutoff", cutoff),
			slog.Int64("entries", count))
	}
	return tracker.End(nil)
}

func (j *AuditIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *AuditIntegrityJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
