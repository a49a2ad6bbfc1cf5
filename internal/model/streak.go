package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrStreakDoesNotExist = errors.New("streak does not exist")

// StreakDateLayout is the calendar-date form used for streak bookkeeping.
// Streaks count days, not instants, so only the date part is stored.
const StreakDateLayout = "2006-01-02"

type StreakEntry struct {
	Date   string `json:"date"`
	Action string `json:"action"`
}

// Streak tracks consecutive calendar days with at least one recorded
// activity. Mutated only through the record-activity operation, at most once
// per calendar day per user.
type Streak struct {
	UserID           uuid.UUID     `json:"user_id"`
	CurrentStreak    int           `json:"current_streak"`
	LongestStreak    int           `json:"longest_streak"`
	LastActivityDate string        `json:"last_activity_date"`
	History          []StreakEntry `json:"history,omitempty"`
	// AchievementUnlocks keeps the moment each badge was first earned, keyed
	// by achievement id, so re-evaluations never shift the unlock time.
	AchievementUnlocks map[string]time.Time `json:"achievement_unlocks,omitempty"`
}

type Achievement struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	RequiredStreak int       `json:"required_streak"`
	Icon           string    `json:"icon"`
	Unlocked       bool      `json:"unlocked"`
	UnlockedAt     time.Time `json:"unlocked_at,omitempty"`
}

// StreakAchievements is the fixed badge set, in ascending streak order.
var StreakAchievements = []Achievement{
	{ID: "3-day", Name: "Getting Started", Description: "Maintain a 3-day streak", RequiredStreak: 3, Icon: "🌱"},
	{ID: "7-day", Name: "Week Warrior", Description: "Maintain a 7-day streak", RequiredStreak: 7, Icon: "🔥"},
	{ID: "14-day", Name: "Fortnight Fighter", Description: "Maintain a 14-day streak", RequiredStreak: 14, Icon: "⚡"},
	{ID: "30-day", Name: "Monthly Master", Description: "Maintain a 30-day streak", RequiredStreak: 30, Icon: "👑"},
	{ID: "100-day", Name: "Century Champion", Description: "Maintain a 100-day streak", RequiredStreak: 100, Icon: "🏆"},
}
