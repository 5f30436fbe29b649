// file: internal/models/badge.go
package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strings"
	"time"
)

// ===============================
// BADGE LEVELS
// ===============================

// BadgeLevel is one of the ordered achievement tiers of a badge.
type BadgeLevel string

const (
	LevelBronze BadgeLevel = "bronze"
	LevelSilver BadgeLevel = "silver"
	LevelGold   BadgeLevel = "gold"
)

// AllLevels lists the levels in ascending rank
var AllLevels = []BadgeLevel{LevelBronze, LevelSilver, LevelGold}

// Rank returns the ordinal of the level (bronze=1), or 0 for an unknown level
func (l BadgeLevel) Rank() int {
	switch l {
	case LevelBronze:
		return 1
	case LevelSilver:
		return 2
	case LevelGold:
		return 3
	default:
		return 0
	}
}

// IsValid reports whether the level is one of the known levels
func (l BadgeLevel) IsValid() bool {
	return l.Rank() > 0
}

// Title returns the capitalised display form ("Bronze")
func (l BadgeLevel) Title() string {
	if l == "" {
		return ""
	}
	s := string(l)
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseBadgeLevel converts a string into a BadgeLevel
func ParseBadgeLevel(s string) (BadgeLevel, error) {
	level := BadgeLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", fmt.Errorf("unknown badge level: %q", s)
	}
	return level, nil
}

// Value implements driver.Valuer
func (l BadgeLevel) Value() (driver.Value, error) {
	return string(l), nil
}

// Scan implements sql.Scanner
func (l *BadgeLevel) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*l = BadgeLevel(v)
	case []byte:
		*l = BadgeLevel(v)
	case nil:
		*l = ""
	default:
		return fmt.Errorf("cannot scan %T into BadgeLevel", value)
	}
	return nil
}

// ===============================
// CATALOG ENTITIES
// ===============================

// BadgeTier is a (level, threshold) pair within one badge
type BadgeTier struct {
	Level     BadgeLevel `json:"level" yaml:"level" validate:"required,oneof=bronze silver gold"`
	Threshold int        `json:"threshold" yaml:"threshold" validate:"min=1"`
}

// BadgeDefinition describes a badge and its tiers. Definitions are built once
// at startup and never mutated afterwards.
type BadgeDefinition struct {
	ID          string      `json:"id" yaml:"id" validate:"required,max=64"`
	Name        string      `json:"name" yaml:"name" validate:"required,max=100"`
	Description string      `json:"description" yaml:"description" validate:"max=500"`
	Tiers       []BadgeTier `json:"tiers" yaml:"tiers" validate:"required,min=1,dive"`
	Icon        string      `json:"icon" yaml:"icon"`
}

// MaxThreshold returns the highest tier threshold, or 0 when the badge has no tiers
func (d *BadgeDefinition) MaxThreshold() int {
	max := 0
	for _, t := range d.Tiers {
		if t.Threshold > max {
			max = t.Threshold
		}
	}
	return max
}

// Tier returns the tier for the given level
func (d *BadgeDefinition) Tier(level BadgeLevel) (BadgeTier, bool) {
	for _, t := range d.Tiers {
		if t.Level == level {
			return t, true
		}
	}
	return BadgeTier{}, false
}

// ===============================
// USER STATE
// ===============================

// UserBadgeProgress holds a user's running count for one badge together with
// the highest level that count qualifies for.
type UserBadgeProgress struct {
	BadgeID       string      `json:"badge_id" db:"badge_id"`
	CurrentCount  int         `json:"current_count" db:"current_count"`
	AchievedLevel *BadgeLevel `json:"achieved_level,omitempty" db:"achieved_level"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// SameState reports whether two records carry the same count and level,
// ignoring timestamps.
func (p *UserBadgeProgress) SameState(other *UserBadgeProgress) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.BadgeID != other.BadgeID || p.CurrentCount != other.CurrentCount {
		return false
	}
	if p.AchievedLevel == nil || other.AchievedLevel == nil {
		return p.AchievedLevel == other.AchievedLevel
	}
	return *p.AchievedLevel == *other.AchievedLevel
}

// MaxCount is the largest counter value the progress store can hold
const MaxCount = math.MaxInt32

// CounterUpdate is a single item delivered by the counter feed
type CounterUpdate struct {
	UserID  string `json:"user_id" validate:"required"`
	BadgeID string `json:"badge_id" validate:"required"`
	Count   *int   `json:"count" validate:"required,min=0,max=2147483647"`

	ack func(processed bool)
}

// WithAck returns a copy of the update that reports its outcome to fn
func (u CounterUpdate) WithAck(fn func(processed bool)) CounterUpdate {
	u.ack = fn
	return u
}

// Settle reports the outcome to the feed that produced the update. Feeds that
// support redelivery requeue updates settled with processed=false. Updates
// without an ack ignore the call.
func (u CounterUpdate) Settle(processed bool) {
	if u.ack != nil {
		u.ack(processed)
	}
}

// Achievement records that a user newly reached a badge level
type Achievement struct {
	UserID     string     `json:"user_id"`
	BadgeID    string     `json:"badge_id"`
	Level      BadgeLevel `json:"level"`
	Count      int        `json:"count"`
	AchievedAt time.Time  `json:"achieved_at"`
}

// DedupKey identifies the achievement for presentation-side deduplication
func (a *Achievement) DedupKey() string {
	return fmt.Sprintf("badge_%s_%s", a.BadgeID, a.Level)
}

// BadgeProgressView is the read model rendered by clients for one badge
type BadgeProgressView struct {
	Badge         BadgeDefinition `json:"badge"`
	CurrentCount  int             `json:"current_count"`
	AchievedLevel *BadgeLevel     `json:"achieved_level,omitempty"`
	Label         string          `json:"label"`
	NextTier      *BadgeTier      `json:"next_tier,omitempty"`
	Fraction      float64         `json:"fraction"`
	Display       string          `json:"display"`
}
