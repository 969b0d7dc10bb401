package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dependable-calls/dce/internal/billing"
	jobmetrics "github.com/dependable-calls/dce/internal/jobs"
)

// PayoutReconcileJob fails payouts stuck in processing beyond a threshold.
type PayoutReconcileJob struct {
	Service *billing.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPayoutReconcileJob initialises the reconcile handler.
func NewPayoutReconcileJob(service *billing.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *PayoutReconcileJob {
	return &PayoutReconcileJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle marks stale payouts as failed.
func (j *PayoutReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("payout reconcile: handler not configured")
	}
	var payload PayoutReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.StuckAfterHours <= 0 {
		payload.StuckAfterHours = 24
	}
	threshold := time.Duration(payload.StuckAfterHours) * time.Hour

	tracker := j.metrics().Track(TaskPayoutReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	failed, err := j.Service.ReconcileStalePayouts(ctx, threshold)
	if err != nil {
		resultErr = err
		j.logger().Error("reconcile failed", slog.Any("error", err))
		return resultErr
	}

	j.logger().Info("payout reconcile complete",
		slog.Int("failed", failed),
		slog.Duration("threshold", threshold),
	)
	return resultErr
}

func (j *PayoutReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPayoutReconcile))
	}
	return slog.Default().With(slog.String("job", TaskPayoutReconcile))
}

func (j *PayoutReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
