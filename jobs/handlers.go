package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/guildhall/guildhall/internal/jobs"
	"github.com/guildhall/guildhall/internal/notifications"
)

// AuditCleaner prunes audit rows older than the retention window.
type AuditCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// TrialSweeper clears lapsed free trials.
type TrialSweeper interface {
	ClearLapsedTrials(ctx context.Context, now time.Time) (int64, error)
}

// NotifyDispatchHandler processes TaskNotifyDispatch tasks.
func NotifyDispatchHandler(svc *notifications.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifyDispatchPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskNotifyDispatch)
		if err := svc.Deliver(ctx, payload.UserID, payload.Kind, payload.Title, payload.Body); err != nil {
			logger.Error("notify dispatch", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
			return tracker.End(err)
		}
		return tracker.End(nil)
	}
}

// AuditCleanupHandler processes TaskAuditCleanup tasks.
func AuditCleanupHandler(cleaner AuditCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RetainHours <= 0 {
			return asynq.SkipRetry
		}
		tracker := metrics.Track(TaskAuditCleanup)
		removed, err := cleaner.Cleanup(ctx, time.Duration(payload.RetainHours)*time.Hour)
		if err != nil {
			logger.Error("audit cleanup", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("audit cleanup done", slog.Int64("removed", removed))
		return tracker.End(nil)
	}
}

// TrialSweepHandler processes TaskTrialSweep tasks.
func TrialSweepHandler(sweeper TrialSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskTrialSweep)
		cleared, err := sweeper.ClearLapsedTrials(ctx, time.Now())
		if err != nil {
			logger.Error("trial sweep", slog.Any("error", err))
			return tracker.End(err)
		}
		if cleared > 0 {
			logger.Info("trial sweep done", slog.Int64("cleared", cleared))
		}
		return tracker.End(nil)
	}
}
