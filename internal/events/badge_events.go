package events

import (
	"context"
	"time"

	"noodlebadge/internal/models"
)

// Event types
const (
	EventTypeBadgeAchieved = "badge.achieved"
)

// BadgeAchievedEvent is published when a user newly reaches a badge level
type BadgeAchievedEvent struct {
	BaseEvent
	Achievement models.Achievement `json:"achievement"`
	DedupKey    string             `json:"dedup_key"`
}

// NewBadgeAchievedEvent wraps an achievement in a bus event
func NewBadgeAchievedEvent(a models.Achievement) *BadgeAchievedEvent {
	return &BadgeAchievedEvent{
		BaseEvent: BaseEvent{
			EventID:   GenerateEventID(),
			EventType: EventTypeBadgeAchieved,
			Timestamp: time.Now(),
			UserID:    a.UserID,
			Metadata: map[string]interface{}{
				"badge_id": a.BadgeID,
				"level":    string(a.Level),
			},
		},
		Achievement: a,
		DedupKey:    a.DedupKey(),
	}
}

// BusSink publishes achievements onto an EventBus
type BusSink struct {
	bus   EventBus
	async bool
}

// NewBusSink creates a sink. Async sinks queue events for the bus workers;
// sync sinks run handlers before Emit returns.
func NewBusSink(bus EventBus, async bool) *BusSink {
	return &BusSink{bus: bus, async: async}
}

// Emit publishes a BadgeAchievedEvent
func (s *BusSink) Emit(ctx context.Context, a models.Achievement) error {
	event := NewBadgeAchievedEvent(a)
	if s.async {
		return s.bus.PublishAsync(ctx, event)
	}
	return s.bus.Publish(ctx, event)
}

// OnBadgeAchieved registers fn for badge achievements
func OnBadgeAchieved(bus EventBus, id string, fn func(ctx context.Context, event *BadgeAchievedEvent) error) error {
	return bus.Subscribe(EventTypeBadgeAchieved, NewTypedEventHandler(id, fn))
}
