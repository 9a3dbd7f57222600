package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCreditReleaseSweep releases supplier credits whose maturation date
	// has passed. The task carries no payload; the sweep always runs against
	// the execution-time clock.
	TaskCreditReleaseSweep = "credit:release_sweep"
)

// NewCreditSweepTask constructs an Asynq task.
func NewCreditSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCreditReleaseSweep, nil)
}
