package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, n Notification) (Notification, error)
	ListForUser(ctx context.Context, userID int64, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// Enqueuer hands a notification to the background queue so delivery stays
// off the request path.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, userID int64, kind, title, body string) error
}

// Service orchestrates in-app notifications.
type Service struct {
	store    Store
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewService constructs a Service. enqueuer may be nil; notifications are
// then written synchronously, which the worker and tests rely on.
func NewService(store Store, enqueuer Enqueuer, logger *slog.Logger) *Service {
	return &Service{store: store, enqueuer: enqueuer, logger: logger}
}

// Notify queues a notification for delivery. Failures are logged and
// swallowed; notifying is never allowed to fail the calling operation.
func (s *Service) Notify(ctx context.Context, userID int64, kind, title, body string) {
	if userID == 0 || strings.TrimSpace(title) == "" {
		return
	}
	var err error
	if s.enqueuer != nil {
		err = s.enqueuer.EnqueueNotification(ctx, userID, kind, title, body)
	} else {
		_, err = s.store.Insert(ctx, Notification{UserID: userID, Kind: kind, Title: title, Body: body})
	}
	if err != nil && s.logger != nil {
		s.logger.Error("notify failed",
			slog.Int64("user_id", userID),
			slog.String("kind", kind),
			slog.Any("error", err))
	}
}

// Deliver writes a notification. The background worker calls this when it
// processes a queued dispatch.
func (s *Service) Deliver(ctx context.Context, userID int64, kind, title, body string) error {
	if userID == 0 {
		return fmt.Errorf("notifications: user id required")
	}
	_, err := s.store.Insert(ctx, Notification{UserID: userID, Kind: kind, Title: title, Body: body})
	return err
}

// ListOwn returns the user's notifications.
func (s *Service) ListOwn(ctx context.Context, userID int64, unreadOnly bool) ([]Notification, error) {
	return s.store.ListForUser(ctx, userID, unreadOnly)
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	return s.store.MarkRead(ctx, userID, id)
}

// MarkAllRead marks every unread notification for the user.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}
