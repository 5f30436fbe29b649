package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"noodlebadge/internal/catalog"
	"noodlebadge/internal/events"
	"noodlebadge/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Messenger sends a single push message
type Messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// SettingsProvider looks up a user's notification settings
type SettingsProvider interface {
	Get(ctx context.Context, userID string) (*models.NotificationSettings, error)
}

// FirebaseConfig holds FCM credentials
type FirebaseConfig struct {
	CredentialsPath string
	ProjectID       string
}

// NewFirebaseMessenger initializes the Firebase app and returns its messaging client
func NewFirebaseMessenger(ctx context.Context, cfg *FirebaseConfig) (Messenger, error) {
	opt := option.WithCredentialsFile(cfg.CredentialsPath)
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID: cfg.ProjectID,
	}, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return client, nil
}

// PushConfig holds push delivery settings
type PushConfig struct {
	SendTimeout   time.Duration
	RetryAttempts int
	RetryInterval time.Duration
	QueueSize     int
	Workers       int
}

// DefaultPushConfig returns default push configuration
func DefaultPushConfig() *PushConfig {
	return &PushConfig{
		SendTimeout:   10 * time.Second,
		RetryAttempts: 3,
		RetryInterval: 500 * time.Millisecond,
		QueueSize:     256,
		Workers:       2,
	}
}

// Queueing errors
var (
	ErrQueueFull = errors.New("push queue is full")
	ErrStopped   = errors.New("push notifier is stopped")
)

// PushNotifier delivers achievements as FCM push notifications. Bus events
// are queued and sent by background workers.
type PushNotifier struct {
	config    *PushConfig
	catalog   *catalog.Catalog
	settings  SettingsProvider
	messenger Messenger
	logger    *zap.Logger

	mu       sync.RWMutex
	stopped  bool
	queue    chan models.Achievement
	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewPushNotifier creates a push notifier
func NewPushNotifier(config *PushConfig, cat *catalog.Catalog, settings SettingsProvider, messenger Messenger, logger *zap.Logger) *PushNotifier {
	if config == nil {
		config = DefaultPushConfig()
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultPushConfig().SendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultPushConfig().QueueSize
	}
	return &PushNotifier{
		config:    config,
		catalog:   cat,
		settings:  settings,
		messenger: messenger,
		logger:    logger.With(zap.String("component", "push_notifier")),
		queue:     make(chan models.Achievement, config.QueueSize),
	}
}

// Start launches the send workers
func (n *PushNotifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)

	workers := n.config.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker(ctx)
	}
}

// Stop drains queued notifications and waits for the workers
func (n *PushNotifier) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.stopped = true
		close(n.queue)
		n.mu.Unlock()

		n.wg.Wait()
		if n.cancel != nil {
			n.cancel()
		}
	})
}

func (n *PushNotifier) worker(ctx context.Context) {
	defer n.wg.Done()
	for a := range n.queue {
		if err := n.Notify(ctx, a); err != nil {
			n.logger.Debug("Queued push failed", zap.String("user_id", a.UserID), zap.Error(err))
		}
	}
}

// Notify sends the achievement to the user's device. Users who turned badge
// notifications off or never registered a token are skipped.
func (n *PushNotifier) Notify(ctx context.Context, a models.Achievement) error {
	settings, err := n.settings.Get(ctx, a.UserID)
	if err != nil {
		return fmt.Errorf("load notification settings: %w", err)
	}
	if !settings.BadgeAchievements || settings.FCMToken == "" {
		n.logger.Debug("Push skipped",
			zap.String("user_id", a.UserID),
			zap.Bool("enabled", settings.BadgeAchievements),
			zap.Bool("has_token", settings.FCMToken != ""),
		)
		return nil
	}

	var badge *models.BadgeDefinition
	if def, ok := n.catalog.Get(a.BadgeID); ok {
		badge = &def
	}
	msg := NewAchievementMessage(badge, a)
	message := buildPushMessage(settings.FCMToken, a, msg)

	var messageID string
	operation := func() error {
		sendCtx, cancel := context.WithTimeout(ctx, n.config.SendTimeout)
		defer cancel()

		id, err := n.messenger.Send(sendCtx, message)
		if err != nil {
			if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		messageID = id
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	if n.config.RetryInterval > 0 {
		exp.InitialInterval = n.config.RetryInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(max(n.config.RetryAttempts, 0))), ctx)
	err = backoff.RetryNotify(operation, b, func(err error, d time.Duration) {
		n.logger.Warn("Push send failed, retrying",
			zap.String("user_id", a.UserID),
			zap.String("identifier", msg.Identifier),
			zap.Duration("backoff", d),
			zap.Error(err),
		)
	})
	if err != nil {
		n.logger.Error("Push send failed",
			zap.String("user_id", a.UserID),
			zap.String("identifier", msg.Identifier),
			zap.Error(err),
		)
		return fmt.Errorf("send push notification: %w", err)
	}

	n.logger.Info("Push notification sent",
		zap.String("user_id", a.UserID),
		zap.String("identifier", msg.Identifier),
		zap.String("message_id", messageID),
	)
	return nil
}

// HandleBadgeAchieved is an event bus handler. It only queues the send.
func (n *PushNotifier) HandleBadgeAchieved(ctx context.Context, event *events.BadgeAchievedEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stopped {
		return ErrStopped
	}

	select {
	case n.queue <- event.Achievement:
		return nil
	default:
		n.logger.Warn("Push queue full, dropping notification",
			zap.String("user_id", event.Achievement.UserID),
			zap.String("identifier", event.DedupKey),
		)
		return ErrQueueFull
	}
}

// buildPushMessage collapses repeated deliveries of the same achievement on
// the device using the identifier.
func buildPushMessage(token string, a models.Achievement, msg Message) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: map[string]string{
			"type":          events.EventTypeBadgeAchieved,
			"badge_id":      a.BadgeID,
			"level":         string(a.Level),
			"identifier":    msg.Identifier,
			"level_message": msg.LevelMessage,
		},
		Android: &messaging.AndroidConfig{
			CollapseKey: msg.Identifier,
			Priority:    "high",
			Notification: &messaging.AndroidNotification{
				Tag:   msg.Identifier,
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-collapse-id": msg.Identifier,
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}
