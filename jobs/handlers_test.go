package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/guildhall/guildhall/internal/jobs"
	"github.com/guildhall/guildhall/internal/notifications"
)

type memoryNotificationStore struct {
	inserted []notifications.Notification
}

func (s *memoryNotificationStore) Insert(ctx context.Context, n notifications.Notification) (notifications.Notification, error) {
	n.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, n)
	return n, nil
}

func (s *memoryNotificationStore) ListForUser(ctx context.Context, userID int64, unreadOnly bool) ([]notifications.Notification, error) {
	return nil, nil
}

func (s *memoryNotificationStore) MarkRead(ctx context.Context, userID, id int64) error {
	return nil
}

func (s *memoryNotificationStore) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return 0, nil
}

func TestNotifyDispatchDelivers(t *testing.T) {
	store := &memoryNotificationStore{}
	svc := notifications.NewService(store, nil, slog.Default())
	handler := NotifyDispatchHandler(svc, slog.Default(), nil)

	task, err := NewNotifyDispatchTask(NotifyDispatchPayload{
		UserID: 5,
		Kind:   "application.approved",
		Title:  "Application approved",
		Body:   "Welcome!",
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, store.inserted, 1)
	require.Equal(t, int64(5), store.inserted[0].UserID)
	require.Equal(t, "Application approved", store.inserted[0].Title)
}

func TestNotifyDispatchSkipsBadPayload(t *testing.T) {
	svc := notifications.NewService(&memoryNotificationStore{}, nil, slog.Default())
	handler := NotifyDispatchHandler(svc, slog.Default(), nil)

	err := handler(context.Background(), asynq.NewTask(TaskNotifyDispatch, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubCleaner struct {
	gotOlderThan time.Duration
	err          error
}

func (s *stubCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.gotOlderThan = olderThan
	return 3, s.err
}

func TestAuditCleanupPassesRetention(t *testing.T) {
	cleaner := &stubCleaner{}
	handler := AuditCleanupHandler(cleaner, slog.Default(), nil)

	task, err := NewAuditCleanupTask(AuditCleanupPayload{RetainHours: 2160})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 2160*time.Hour, cleaner.gotOlderThan)
}

func TestAuditCleanupSkipsZeroRetention(t *testing.T) {
	handler := AuditCleanupHandler(&stubCleaner{}, slog.Default(), nil)

	task, err := NewAuditCleanupTask(AuditCleanupPayload{})
	require.NoError(t, err)
	require.ErrorIs(t, handler(context.Background(), task), asynq.SkipRetry)
}

type stubSweeper struct {
	calls int
	err   error
}

func (s *stubSweeper) ClearLapsedTrials(ctx context.Context, now time.Time) (int64, error) {
	s.calls++
	return 1, s.err
}

func TestTrialSweepRuns(t *testing.T) {
	sweeper := &stubSweeper{}
	handler := TrialSweepHandler(sweeper, slog.Default(), nil)

	require.NoError(t, handler(context.Background(), NewTrialSweepTask()))
	require.Equal(t, 1, sweeper.calls)
}

func TestTrialSweepPropagatesFailure(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("db down")}
	handler := TrialSweepHandler(sweeper, slog.Default(), nil)

	require.Error(t, handler(context.Background(), NewTrialSweepTask()))
}

func TestTrialSweepRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	sweeper := &stubSweeper{}
	handler := TrialSweepHandler(sweeper, slog.Default(), metrics)

	require.NoError(t, handler(context.Background(), NewTrialSweepTask()))

	families, err := reg.Gather()
	require.NoError(t, err)

	var runs float64
	for _, family := range families {
		if family.GetName() != "guildhall_jobs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			runs += metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), runs)
}
