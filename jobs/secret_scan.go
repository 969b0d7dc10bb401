package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dependable-calls/dce/internal/jobs"
	"github.com/dependable-calls/dce/internal/secops"
)

// SecretScanJob runs the secret scanner over the configured source root.
type SecretScanJob struct {
	Root    string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	scanner *secops.SecretScanner
	clock   func() time.Time
}

// NewSecretScanJob initialises the secret scan handler.
func NewSecretScanJob(root string, logger *slog.Logger, metrics *jobmetrics.Metrics) *SecretScanJob {
	return &SecretScanJob{
		Root:    root,
		Logger:  logger,
		Metrics: metrics,
		scanner: secops.NewSecretScanner(nil),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan and exports finding counts.
func (j *SecretScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("secret scan: handler not configured")
	}
	var payload SecretScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	root := payload.Root
	if root == "" {
		root = j.Root
	}
	if root == "" {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskSecretScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("root", root))
	logger.Info("starting secret scan")

	findings, err := j.scanner.Scan(root)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	bySeverity := map[string]int{}
	for _, f := range findings {
		bySeverity[f.Severity]++
		logger.Warn("secret finding",
			slog.String("rule", f.Rule),
			slog.String("severity", f.Severity),
			slog.String("file", f.File),
			slog.Int("line", f.Line),
			slog.String("redacted", f.Redacted),
		)
	}
	for severity, count := range bySeverity {
		j.metrics().AddFindings("secrets", severity, count)
	}

	logger.Info("completed secret scan",
		slog.Int("findings", len(findings)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *SecretScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSecretScan))
	}
	return slog.Default().With(slog.String("job", TaskSecretScan))
}

func (j *SecretScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *SecretScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
