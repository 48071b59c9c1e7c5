package achievements

import "time"

// Definition is a guild-scoped achievement members can earn.
type Definition struct {
	ID          int64
	GuildID     int64
	Name        string
	Description string
	Points      int
	CreatedAt   time.Time
}

// Award records a member earning an achievement. One award per member per
// achievement.
type Award struct {
	AchievementID int64
	UserID        int64
	AwardedBy     int64
	AwardedAt     time.Time
}
