package notifications

import (
	"context"

	"noodlebadge/internal/catalog"
	"noodlebadge/internal/events"
	"noodlebadge/internal/models"

	"go.uber.org/zap"
)

// LogNotifier writes achievement messages to the log. It stands in for push
// delivery when FCM is not configured.
type LogNotifier struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewLogNotifier creates a log notifier
func NewLogNotifier(cat *catalog.Catalog, logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{catalog: cat, logger: logger}
}

// HandleBadgeAchieved is an event bus handler
func (n *LogNotifier) HandleBadgeAchieved(ctx context.Context, event *events.BadgeAchievedEvent) error {
	var badge *models.BadgeDefinition
	if def, ok := n.catalog.Get(event.Achievement.BadgeID); ok {
		badge = &def
	}
	msg := NewAchievementMessage(badge, event.Achievement)

	n.logger.Info(msg.Title,
		zap.String("user_id", event.Achievement.UserID),
		zap.String("body", msg.Body),
		zap.String("identifier", msg.Identifier),
	)
	return nil
}
