package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dependable-calls/dce/internal/jobs"
	"github.com/dependable-calls/dce/internal/security"
)

// CSPCleanupJob deletes violation reports past the retention window.
type CSPCleanupJob struct {
	Repo      security.Repository
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewCSPCleanupJob initialises the cleanup handler.
func NewCSPCleanupJob(repo security.Repository, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *CSPCleanupJob {
	return &CSPCleanupJob{Repo: repo, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle removes expired reports.
func (j *CSPCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("csp cleanup: handler not configured")
	}
	var payload CSPCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := j.Retention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}

	tracker := j.metrics().Track(TaskCSPCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	deleted, err := j.Repo.DeleteOlderThan(ctx, retention)
	if err != nil {
		resultErr = err
		j.logger().Error("cleanup failed", slog.Any("error", err))
		return resultErr
	}

	j.logger().Info("csp reports pruned",
		slog.Int64("deleted", deleted),
		slog.Duration("retention", retention),
	)
	return resultErr
}

func (j *CSPCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCSPCleanup))
	}
	return slog.Default().With(slog.String("job", TaskCSPCleanup))
}

func (j *CSPCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
