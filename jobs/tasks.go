package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskSecretScan runs the secret scanner over the source root.
	TaskSecretScan = "security:secret_scan"
	// TaskCSPCleanup deletes CSP reports past the retention window.
	TaskCSPCleanup = "security:csp_cleanup"
	// TaskPayoutReconcile fails payouts stuck in processing.
	TaskPayoutReconcile = "billing:payout_reconcile"
	// TaskPerfSnapshot samples dependency latency into metrics.
	TaskPerfSnapshot = "ops:perf_snapshot"
)

// SecretScanPayload configures a secret scan run.
type SecretScanPayload struct {
	Root string `json:"root"`
}

// CSPCleanupPayload configures report retention.
type CSPCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// PayoutReconcilePayload configures the stuck-payout threshold.
type PayoutReconcilePayload struct {
	StuckAfterHours int `json:"stuck_after_hours"`
}

// NewSecretScanTask constructs a secret scan task.
func NewSecretScanTask(payload SecretScanPayload) (*asynq.Task, error) {
	return newTask(TaskSecretScan, payload)
}

// NewCSPCleanupTask constructs a CSP retention task.
func NewCSPCleanupTask(payload CSPCleanupPayload) (*asynq.Task, error) {
	return newTask(TaskCSPCleanup, payload)
}

// NewPayoutReconcileTask constructs a payout reconcile task.
func NewPayoutReconcileTask(payload PayoutReconcilePayload) (*asynq.Task, error) {
	return newTask(TaskPayoutReconcile, payload)
}

// NewPerfSnapshotTask constructs a perf snapshot task. It has no payload.
func NewPerfSnapshotTask() *asynq.Task {
	return asynq.NewTask(TaskPerfSnapshot, nil)
}

func newTask(taskType string, payload interface{}) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
