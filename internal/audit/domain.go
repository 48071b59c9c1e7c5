package audit

import "time"

// Entry is one audit record as produced by the domain modules.
type Entry struct {
	ActorID  int64
	GuildID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// TimelineRow is one rendered row of the audit timeline.
type TimelineRow struct {
	At       time.Time
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// TimelineFilters narrow the timeline query.
type TimelineFilters struct {
	GuildID  int64
	From     time.Time
	To       time.Time
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo describes the window returned by Timeline.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}
