package events

import "time"

// Event is a scheduled guild activity such as a raid night or meetup.
type Event struct {
	ID          int64
	GuildID     int64
	Title       string
	Description string
	StartsAt    time.Time
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RSVP statuses accepted from members.
const (
	RSVPGoing     = "going"
	RSVPTentative = "tentative"
	RSVPDeclined  = "declined"
)

// RSVP records one member's answer for an event. A member has at most one
// RSVP per event; answering again replaces the previous one.
type RSVP struct {
	EventID     int64
	UserID      int64
	Status      string
	RespondedAt time.Time
}

// ValidRSVPStatus reports whether status is one of the accepted answers.
func ValidRSVPStatus(status string) bool {
	switch status {
	case RSVPGoing, RSVPTentative, RSVPDeclined:
		return true
	}
	return false
}
