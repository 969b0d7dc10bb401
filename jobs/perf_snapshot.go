package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/dependable-calls/dce/internal/jobs"
)

// PerfSnapshotJob samples round-trip latency of the backing services so the
// dashboards have a baseline independent of request traffic.
type PerfSnapshotJob struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPerfSnapshotJob initialises the snapshot handler.
func NewPerfSnapshotJob(pool *pgxpool.Pool, client *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *PerfSnapshotJob {
	return &PerfSnapshotJob{Pool: pool, Redis: client, Logger: logger, Metrics: metrics}
}

// Handle pings each dependency and records the observed latency.
func (j *PerfSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("perf snapshot: handler not configured")
	}

	tracker := j.metrics().Track(TaskPerfSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if j.Pool != nil {
		start := time.Now()
		if err := j.Pool.Ping(ctx); err != nil {
			j.logger().Warn("postgres ping failed", slog.Any("error", err))
		} else {
			latency := time.Since(start)
			j.metrics().ObserveDependencyLatency("postgres", latency)
			j.logger().Debug("postgres latency", slog.Duration("latency", latency))
		}
	}
	if j.Redis != nil {
		start := time.Now()
		if err := j.Redis.Ping(ctx).Err(); err != nil {
			j.logger().Warn("redis ping failed", slog.Any("error", err))
		} else {
			latency := time.Since(start)
			j.metrics().ObserveDependencyLatency("redis", latency)
			j.logger().Debug("redis latency", slog.Duration("latency", latency))
		}
	}
	return resultErr
}

func (j *PerfSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPerfSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskPerfSnapshot))
}

func (j *PerfSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
