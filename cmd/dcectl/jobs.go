package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dependable-calls/dce/internal/app"
	"github.com/dependable-calls/dce/jobs"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and enqueue background jobs",
	}
	cmd.AddCommand(jobsStatusCmd())
	cmd.AddCommand(jobsEnqueueCmd())
	return cmd
}

func jobsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer inspector.Close()

			info, err := inspector.GetQueueInfo(jobs.QueueDefault)
			if err != nil {
				return fmt.Errorf("queue info: %w", err)
			}
			fmt.Printf("queue:     %s\n", info.Queue)
			fmt.Printf("pending:   %d\n", info.Pending)
			fmt.Printf("active:    %d\n", info.Active)
			fmt.Printf("retry:     %d\n", info.Retry)
			fmt.Printf("archived:  %d\n", info.Archived)
			return nil
		},
	}
}

func jobsEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "enqueue <task>",
		Short:     "Enqueue a job immediately, outside its cron schedule",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskSecretScan, jobs.TaskCSPCleanup, jobs.TaskPayoutReconcile, jobs.TaskPerfSnapshot},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}

			var task *asynq.Task
			switch args[0] {
			case jobs.TaskSecretScan:
				task, err = jobs.NewSecretScanTask(jobs.SecretScanPayload{Root: cfg.ScanRoot})
			case jobs.TaskCSPCleanup:
				task, err = jobs.NewCSPCleanupTask(jobs.CSPCleanupPayload{})
			case jobs.TaskPayoutReconcile:
				task, err = jobs.NewPayoutReconcileTask(jobs.PayoutReconcilePayload{})
			case jobs.TaskPerfSnapshot:
				task = jobs.NewPerfSnapshotTask()
			default:
				return fmt.Errorf("unknown task %q", args[0])
			}
			if err != nil {
				return err
			}

			client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.Enqueue(cmd.Context(), task)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			fmt.Printf("enqueued %s id=%s queue=%s\n", args[0], info.ID, info.Queue)
			return nil
		},
	}
}
