// Package notifications turns badge achievements into user-facing messages
// and delivers them.
package notifications

import (
	"fmt"

	"noodlebadge/internal/models"
)

const achievementTitle = "New Badge Unlocked!"

// Message is the copy shown for one achievement
type Message struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Identifier string `json:"identifier"`
	// LevelMessage is the headline of the in-app celebration sheet
	LevelMessage string `json:"level_message"`
	Icon         string `json:"icon,omitempty"`
}

// NewAchievementMessage builds the copy for an achievement. badge may be
// nil when the catalog no longer carries the badge; the id is used instead.
func NewAchievementMessage(badge *models.BadgeDefinition, a models.Achievement) Message {
	name, icon := a.BadgeID, ""
	if badge != nil {
		name, icon = badge.Name, badge.Icon
	}

	return Message{
		Title:        achievementTitle,
		Body:         fmt.Sprintf("You've earned the %s %s badge!", a.Level.Title(), name),
		Identifier:   a.DedupKey(),
		LevelMessage: LevelMessage(a.Level),
		Icon:         icon,
	}
}

// LevelMessage returns the celebration headline for a level
func LevelMessage(level models.BadgeLevel) string {
	switch level {
	case models.LevelBronze:
		return "You've earned the Bronze level!"
	case models.LevelSilver:
		return "Amazing! You've reached Silver!"
	case models.LevelGold:
		return "Incredible! You've achieved Gold!"
	default:
		return fmt.Sprintf("You've reached %s!", level.Title())
	}
}
