package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyDispatch delivers one in-app notification.
	TaskNotifyDispatch = "notify:dispatch"
	// TaskAuditCleanup prunes audit rows past the retention window.
	TaskAuditCleanup = "audit:cleanup"
	// TaskTrialSweep clears lapsed free trials.
	TaskTrialSweep = "billing:trial_sweep"
)

// NotifyDispatchPayload carries one notification to the worker.
type NotifyDispatchPayload struct {
	UserID int64  `json:"userId"`
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// NewNotifyDispatchTask constructs an Asynq task.
func NewNotifyDispatchTask(payload NotifyDispatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDispatch, data), nil
}

// AuditCleanupPayload bounds the retention window for one cleanup run.
type AuditCleanupPayload struct {
	RetainHours int `json:"retainHours"`
}

// NewAuditCleanupTask constructs an Asynq task.
func NewAuditCleanupTask(payload AuditCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditCleanup, data), nil
}

// NewTrialSweepTask constructs an Asynq task. The sweep carries no payload.
func NewTrialSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTrialSweep, nil)
}
