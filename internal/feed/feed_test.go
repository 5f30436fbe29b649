package feed

import (
	"context"
	"testing"
	"time"

	"noodlebadge/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func receive(t *testing.T, ch <-chan models.CounterUpdate) models.CounterUpdate {
	t.Helper()
	select {
	case u, ok := <-ch:
		require.True(t, ok, "channel closed")
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	return models.CounterUpdate{}
}

func TestChannelFeedRoutesByUser(t *testing.T) {
	f := NewChannelFeed(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice, err := f.Subscribe(ctx, "alice")
	require.NoError(t, err)
	bob, err := f.Subscribe(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, f.Publish(ctx, models.CounterUpdate{UserID: "alice", BadgeID: "explorer", Count: intPtr(3)}))
	require.NoError(t, f.Publish(ctx, models.CounterUpdate{UserID: "bob", BadgeID: "reviewer", Count: intPtr(1)}))

	got := receive(t, alice)
	assert.Equal(t, "explorer", got.BadgeID)
	assert.Equal(t, 3, *got.Count)

	got = receive(t, bob)
	assert.Equal(t, "reviewer", got.BadgeID)
}

func TestChannelFeedPreservesOrder(t *testing.T) {
	f := NewChannelFeed(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.Subscribe(ctx, "u1")
	require.NoError(t, err)

	go func() {
		for i := 1; i <= 5; i++ {
			_ = f.Publish(ctx, models.CounterUpdate{UserID: "u1", BadgeID: "explorer", Count: intPtr(i)})
		}
	}()

	for i := 1; i <= 5; i++ {
		assert.Equal(t, i, *receive(t, ch).Count)
	}
}

func TestChannelFeedClosesOnCancel(t *testing.T) {
	f := NewChannelFeed(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := f.Subscribe(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Subscribers("u1"))

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	require.Eventually(t, func() bool { return f.Subscribers("u1") == 0 }, time.Second, 5*time.Millisecond)

	// publishing to a user with no subscribers is a no-op
	assert.NoError(t, f.Publish(context.Background(), models.CounterUpdate{UserID: "u1", BadgeID: "explorer", Count: intPtr(1)}))
}

func TestChannelFeedPublishRespectsContext(t *testing.T) {
	f := NewChannelFeed(0)
	_, err := f.Subscribe(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = f.Publish(ctx, models.CounterUpdate{UserID: "u1", BadgeID: "explorer", Count: intPtr(1)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelFeedClose(t *testing.T) {
	f := NewChannelFeed(1)
	ch, err := f.Subscribe(context.Background(), "u1")
	require.NoError(t, err)

	require.NoError(t, f.Close())

	_, ok := <-ch
	assert.False(t, ok)

	_, err = f.Subscribe(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrFeedClosed)
	assert.ErrorIs(t, f.Publish(context.Background(), models.CounterUpdate{UserID: "u1"}), ErrFeedClosed)
}

func TestDecodeUpdate(t *testing.T) {
	u, err := DecodeUpdate([]byte(`{"user_id":"u1","badge_id":"explorer","count":12}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	require.NotNil(t, u.Count)
	assert.Equal(t, 12, *u.Count)

	u, err = DecodeUpdate([]byte(`{"user_id":"u1","badge_id":"explorer"}`))
	require.NoError(t, err)
	assert.Nil(t, u.Count)

	_, err = DecodeUpdate([]byte(`not json`))
	assert.Error(t, err)

	raw, err := EncodeUpdate(models.CounterUpdate{UserID: "u1", BadgeID: "reviewer", Count: intPtr(0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u1","badge_id":"reviewer","count":0}`, string(raw))
}

func TestNewFeed(t *testing.T) {
	f, err := NewFeed(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &ChannelFeed{}, f)

	_, err = NewFeed(&Config{Provider: "kafka"}, nil)
	assert.Error(t, err)

	_, err = NewFeed(&Config{Provider: "redis"}, nil)
	assert.Error(t, err)

	_, err = NewFeed(&Config{Provider: "amqp"}, nil)
	assert.Error(t, err)

	assert.Equal(t, "user.u1", routingKey("u1"))
}
