package applications

import "time"

// Application statuses. Decisions move pending applications to approved or
// rejected; decided applications never change again.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Application is a user's request to join a guild.
type Application struct {
	ID        int64
	GuildID   int64
	UserID    int64
	Message   string
	Status    string
	DecidedBy int64
	DecidedAt time.Time
	CreatedAt time.Time
}
