package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"noodlebadge/internal/catalog"
	"noodlebadge/internal/events"
	"noodlebadge/internal/models"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []*messaging.Message
	failures int
}

func (m *fakeMessenger) Send(ctx context.Context, message *messaging.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return "", errors.New("unavailable")
	}
	m.sent = append(m.sent, message)
	return "msg-1", nil
}

func (m *fakeMessenger) sentMessages() []*messaging.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*messaging.Message(nil), m.sent...)
}

type fakeSettings map[string]*models.NotificationSettings

func (s fakeSettings) Get(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	if st, ok := s[userID]; ok {
		return st, nil
	}
	return models.DefaultNotificationSettings(userID), nil
}

func achievement(userID string) models.Achievement {
	return models.Achievement{
		UserID:     userID,
		BadgeID:    "explorer",
		Level:      models.LevelSilver,
		Count:      26,
		AchievedAt: time.Now(),
	}
}

func TestNewAchievementMessage(t *testing.T) {
	def, ok := catalog.Default().Get("explorer")
	require.True(t, ok)

	msg := NewAchievementMessage(&def, achievement("u1"))
	assert.Equal(t, "New Badge Unlocked!", msg.Title)
	assert.Equal(t, "You've earned the Silver "+def.Name+" badge!", msg.Body)
	assert.Equal(t, "badge_explorer_silver", msg.Identifier)
	assert.Equal(t, "Amazing! You've reached Silver!", msg.LevelMessage)

	msg = NewAchievementMessage(nil, achievement("u1"))
	assert.Equal(t, "You've earned the Silver explorer badge!", msg.Body)
}

func TestLevelMessage(t *testing.T) {
	assert.Equal(t, "You've earned the Bronze level!", LevelMessage(models.LevelBronze))
	assert.Equal(t, "Incredible! You've achieved Gold!", LevelMessage(models.LevelGold))
}

func newNotifier(settings fakeSettings, m *fakeMessenger) *PushNotifier {
	return NewPushNotifier(&PushConfig{SendTimeout: time.Second, RetryAttempts: 2, RetryInterval: time.Millisecond}, catalog.Default(), settings, m, nil)
}

func TestPushNotifierSends(t *testing.T) {
	m := &fakeMessenger{}
	n := newNotifier(fakeSettings{"u1": {UserID: "u1", FCMToken: "tok", BadgeAchievements: true}}, m)

	n.Start(context.Background())
	require.NoError(t, n.HandleBadgeAchieved(context.Background(), events.NewBadgeAchievedEvent(achievement("u1"))))
	n.Stop()

	sentMsgs := m.sentMessages()
	require.Len(t, sentMsgs, 1)
	sent := sentMsgs[0]
	assert.Equal(t, "tok", sent.Token)
	assert.Equal(t, "New Badge Unlocked!", sent.Notification.Title)
	assert.Equal(t, "badge_explorer_silver", sent.Data["identifier"])
	assert.Equal(t, "badge_explorer_silver", sent.Android.CollapseKey)
	assert.Equal(t, "badge_explorer_silver", sent.APNS.Headers["apns-collapse-id"])
}

func TestPushNotifierSkips(t *testing.T) {
	m := &fakeMessenger{}
	n := newNotifier(fakeSettings{
		"off":     {UserID: "off", FCMToken: "tok", BadgeAchievements: false},
		"notoken": {UserID: "notoken", BadgeAchievements: true},
	}, m)

	require.NoError(t, n.Notify(context.Background(), achievement("off")))
	require.NoError(t, n.Notify(context.Background(), achievement("notoken")))
	require.NoError(t, n.Notify(context.Background(), achievement("unknown")))
	assert.Empty(t, m.sent)
}

func TestPushNotifierRetries(t *testing.T) {
	m := &fakeMessenger{failures: 1}
	n := newNotifier(fakeSettings{"u1": {UserID: "u1", FCMToken: "tok", BadgeAchievements: true}}, m)

	require.NoError(t, n.Notify(context.Background(), achievement("u1")))
	assert.Len(t, m.sent, 1)
}

func TestPushNotifierGivesUp(t *testing.T) {
	m := &fakeMessenger{failures: 10}
	n := newNotifier(fakeSettings{"u1": {UserID: "u1", FCMToken: "tok", BadgeAchievements: true}}, m)

	err := n.Notify(context.Background(), achievement("u1"))
	require.Error(t, err)
	assert.Empty(t, m.sent)
}

func TestPushQueueFull(t *testing.T) {
	m := &fakeMessenger{}
	n := NewPushNotifier(&PushConfig{SendTimeout: time.Second, QueueSize: 1}, catalog.Default(), fakeSettings{}, m, nil)

	// no workers started, so the second event overflows
	require.NoError(t, n.HandleBadgeAchieved(context.Background(), events.NewBadgeAchievedEvent(achievement("u1"))))
	assert.ErrorIs(t, n.HandleBadgeAchieved(context.Background(), events.NewBadgeAchievedEvent(achievement("u1"))), ErrQueueFull)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(catalog.Default(), nil)
	assert.NoError(t, n.HandleBadgeAchieved(context.Background(), events.NewBadgeAchievedEvent(achievement("u1"))))
}
