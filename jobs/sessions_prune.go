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

// SessionPruner deletes expired session rows.
type SessionPruner interface {
	PruneSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionsPruneJob removes postgres session rows whose expiry has passed.
// Redis entries expire on their own; the relational copy kept for auditing
// needs this sweep.
type SessionsPruneJob struct {
	Pruner  SessionPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionsPruneJob initialises the pruning handler.
func NewSessionsPruneJob(pruner SessionPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionsPruneJob {
	return &SessionsPruneJob{
		Pruner:  pruner,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one pruning pass.
func (j *SessionsPruneJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pruner == nil {
		return errors.New("sessions prune: handler not configured")
	}
	var payload SessionsPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskSessionsPrune)
	removed, err := j.Pruner.PruneSessions(ctx, j.now())
	if err != nil {
		j.log().Error("sessions prune", slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("sessions prune completed", slog.Int64("removed", removed))
	return tracker.End(nil)
}

func (j *SessionsPruneJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SessionsPruneJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
