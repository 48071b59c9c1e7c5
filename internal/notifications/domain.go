package notifications

import "time"

// Notification kinds used across the app.
const (
	KindApplicationApproved = "application.approved"
	KindApplicationRejected = "application.rejected"
	KindEventScheduled      = "event.scheduled"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        int64
	UserID    int64
	Kind      string
	Title     string
	Body      string
	ReadAt    time.Time
	CreatedAt time.Time
}

// Read reports whether the notification has been read.
func (n Notification) Read() bool {
	return !n.ReadAt.IsZero()
}
