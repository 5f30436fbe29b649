package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"noodlebadge/internal/catalog"
	"noodlebadge/internal/models"
	"noodlebadge/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===============================
// TEST DOUBLES
// ===============================

type recordingSink struct {
	mu           sync.Mutex
	achievements []models.Achievement
	err          error
}

func (s *recordingSink) Emit(ctx context.Context, a models.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.achievements = append(s.achievements, a)
	return s.err
}

func (s *recordingSink) all() []models.Achievement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Achievement(nil), s.achievements...)
}

func (s *recordingSink) levels(userID, badgeID string) []models.BadgeLevel {
	var out []models.BadgeLevel
	for _, a := range s.all() {
		if a.UserID == userID && a.BadgeID == badgeID {
			out = append(out, a.Level)
		}
	}
	return out
}

type fakeFeed struct {
	mu    sync.Mutex
	chans map[string]chan models.CounterUpdate
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{chans: make(map[string]chan models.CounterUpdate)}
}

func (f *fakeFeed) Subscribe(ctx context.Context, userID string) (<-chan models.CounterUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan models.CounterUpdate, 32)
	f.chans[userID] = ch
	return ch, nil
}

func (f *fakeFeed) push(userID, badgeID string, count int) {
	f.mu.Lock()
	ch := f.chans[userID]
	f.mu.Unlock()
	ch <- models.CounterUpdate{UserID: userID, BadgeID: badgeID, Count: &count}
}

func (f *fakeFeed) pushRaw(userID string, u models.CounterUpdate) {
	f.mu.Lock()
	ch := f.chans[userID]
	f.mu.Unlock()
	ch <- u
}

// pushSettled pushes an update and returns a channel that receives its outcome
func (f *fakeFeed) pushSettled(userID, badgeID string, count int) <-chan bool {
	settled := make(chan bool, 1)
	u := models.CounterUpdate{UserID: userID, BadgeID: badgeID, Count: &count}
	f.pushRaw(userID, u.WithAck(func(processed bool) { settled <- processed }))
	return settled
}

func outcome(t *testing.T, settled <-chan bool) bool {
	t.Helper()
	select {
	case processed := <-settled:
		return processed
	case <-time.After(time.Second):
		t.Fatal("update was never settled")
	}
	return false
}

func trackedUsers(svc BadgeProgressService) int {
	s := svc.(*badgeProgressService)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type engineFixture struct {
	svc  BadgeProgressService
	repo *repositories.MemoryProgressRepository
	sink *recordingSink
	feed *fakeFeed
}

func newEngine(t *testing.T, policy StoreFailurePolicy) *engineFixture {
	t.Helper()
	repo := repositories.NewMemoryProgressRepository()
	sink := &recordingSink{}
	feed := newFakeFeed()
	svc := NewBadgeProgressService(&BadgeEngineConfig{
		StoreFailurePolicy: policy,
		StoreRetryAttempts: 1,
		StoreRetryInterval: time.Millisecond,
		ErrorBuffer:        8,
	}, catalog.Default(), repo, feed, sink, nil)
	return &engineFixture{svc: svc, repo: repo, sink: sink, feed: feed}
}

// ===============================
// CROSSING DETECTION
// ===============================

func TestExplorerSequenceEmitsEachLevelOnce(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	for _, count := range []int{5, 10, 24, 25, 50} {
		_, _, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", count)
		require.NoError(t, err)
	}

	assert.Equal(t,
		[]models.BadgeLevel{models.LevelBronze, models.LevelSilver, models.LevelGold},
		f.sink.levels("u1", "explorer"))
}

func TestJumpOverThresholdEmitsOnce(t *testing.T) {
	tests := []struct {
		name     string
		previous int
		next     int
		want     models.BadgeLevel
	}{
		{"8 to 12", 8, 12, models.LevelBronze},
		{"9 to 26", 9, 26, models.LevelSilver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngine(t, StoreFailureDrop)
			ctx := context.Background()

			_, _, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", tt.previous)
			require.NoError(t, err)
			require.Empty(t, f.sink.all())

			record, achievement, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", tt.next)
			require.NoError(t, err)
			require.NotNil(t, achievement)

			assert.Equal(t, tt.want, achievement.Level)
			assert.Equal(t, tt.next, achievement.Count)
			assert.Equal(t, tt.want, *record.AchievedLevel)
			assert.Len(t, f.sink.all(), 1)
		})
	}
}

func TestApplyCountUpdateIsIdempotent(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	first, a1, err := f.svc.ApplyCountUpdate(ctx, "u1", "reviewer", 6)
	require.NoError(t, err)
	require.NotNil(t, a1)

	second, a2, err := f.svc.ApplyCountUpdate(ctx, "u1", "reviewer", 6)
	require.NoError(t, err)
	assert.Nil(t, a2)

	assert.Equal(t, first, second)
	assert.Len(t, f.sink.all(), 1)
}

func TestNoOpUpdateEmitsNothing(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	_, _, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 11)
	require.NoError(t, err)
	_, a, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 20)
	require.NoError(t, err)

	assert.Nil(t, a)
	assert.Len(t, f.sink.all(), 1)
}

func TestDecreaseRecomputesLevelWithoutEvent(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	_, _, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 30)
	require.NoError(t, err)

	record, a, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 5)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Nil(t, record.AchievedLevel)
	assert.Equal(t, []models.BadgeLevel{models.LevelSilver}, f.sink.levels("u1", "explorer"))
}

func TestUnknownBadgeLeavesStateUntouched(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	_, _, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 12)
	require.NoError(t, err)

	_, _, err = f.svc.ApplyCountUpdate(ctx, "u1", "ramen_master", 99)
	require.Error(t, err)
	assert.True(t, IsUnknownBadge(err))
	assert.Equal(t, 404, GetStatusCode(err))

	stored, err := f.repo.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 12, stored[0].CurrentCount)
	assert.Len(t, f.sink.all(), 1)
}

func TestCountAboveStoreLimitIsMalformed(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)

	_, _, err := f.svc.ApplyCountUpdate(context.Background(), "u1", "explorer", models.MaxCount+1)
	require.Error(t, err)
	assert.True(t, IsMalformedUpdate(err))

	_, _, err = f.svc.ApplyCountUpdate(context.Background(), "u1", "explorer", models.MaxCount)
	assert.NoError(t, err)
}

func TestNegativeCountIsMalformed(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)

	_, _, err := f.svc.ApplyCountUpdate(context.Background(), "u1", "explorer", -1)
	assert.True(t, IsMalformedUpdate(err))
}

func TestPreviousCountReadFromStore(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	require.NoError(t, f.repo.Put(ctx, "u1", &models.UserBadgeProgress{BadgeID: "explorer", CurrentCount: 8}))

	_, a, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 12)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, models.LevelBronze, a.Level)
}

// ===============================
// STORE FAILURE POLICIES
// ===============================

func TestDropPolicyRecoversCrossingOnNextUpdate(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	_, _, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 8)
	require.NoError(t, err)

	f.repo.FailWith(errors.New("connection refused"))
	record, a, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 10)
	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.Nil(t, record)
	assert.Nil(t, a)
	assert.Empty(t, f.sink.all())

	f.repo.FailWith(nil)
	_, a, err = f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 11)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, models.LevelBronze, a.Level)
}

func TestBufferPolicyEmitsAndFlushes(t *testing.T) {
	f := newEngine(t, StoreFailureBuffer)
	ctx := context.Background()

	// a live subscription keeps the last known counts in memory
	sub, err := f.svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer sub.Cancel()

	_, _, err = f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 8)
	require.NoError(t, err)

	f.repo.FailWith(errors.New("connection refused"))
	record, a, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 10)
	require.Error(t, err)

	var storeErr *StoreUnavailableError
	require.ErrorAs(t, err, &storeErr)
	assert.True(t, storeErr.Buffered)
	require.NotNil(t, record)
	require.NotNil(t, a)
	assert.Equal(t, models.LevelBronze, a.Level)
	assert.Equal(t, 1, f.svc.PendingCount("u1"))

	// buffered state is visible to readers
	views, err := f.svc.Progress(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, views[0].CurrentCount)

	f.repo.FailWith(nil)
	_, _, err = f.svc.ApplyCountUpdate(ctx, "u1", "reviewer", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, f.svc.PendingCount("u1"))

	stored, err := f.repo.Get(ctx, "u1", "explorer")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 10, stored.CurrentCount)

	// reapplying the buffered count does not emit again
	_, a, err = f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 10)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Len(t, f.sink.levels("u1", "explorer"), 1)
}

func TestFlushPending(t *testing.T) {
	f := newEngine(t, StoreFailureBuffer)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer sub.Cancel()

	_, _, err = f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 2)
	require.NoError(t, err)

	f.repo.FailWith(errors.New("timeout"))
	_, _, err = f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 3)
	require.Error(t, err)
	_, _, err = f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 4)
	require.Error(t, err)
	assert.Equal(t, 1, f.svc.PendingCount("u1"))

	assert.Error(t, f.svc.FlushPending(ctx, "u1"))

	f.repo.FailWith(nil)
	require.NoError(t, f.svc.FlushAll(ctx))
	assert.Equal(t, 0, f.svc.PendingCount("u1"))

	stored, err := f.repo.Get(ctx, "u1", "explorer")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.CurrentCount)
}

func TestSinkFailureKeepsProgress(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	f.sink.err = errors.New("push gateway down")
	ctx := context.Background()

	record, a, err := f.svc.ApplyCountUpdate(ctx, "u1", "first_to_slurp", 1)
	require.Error(t, err)
	assert.True(t, IsDeliveryError(err))
	require.NotNil(t, record)
	require.NotNil(t, a)

	stored, err := f.repo.Get(ctx, "u1", "first_to_slurp")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentCount)
}

// ===============================
// READ MODEL
// ===============================

func TestProgressCoversWholeCatalog(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	_, _, err := f.svc.ApplyCountUpdate(ctx, "u1", "reviewer", 16)
	require.NoError(t, err)

	views, err := f.svc.Progress(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, "explorer", views[0].Badge.ID)
	assert.Equal(t, "Locked", views[0].Label)
	assert.Equal(t, "Silver", views[1].Label)
	assert.Equal(t, "16/30", views[1].Display)

	view, err := f.svc.BadgeProgress(ctx, "u1", "reviewer")
	require.NoError(t, err)
	assert.Equal(t, 16, view.CurrentCount)

	_, err = f.svc.BadgeProgress(ctx, "u1", "nope")
	assert.True(t, IsUnknownBadge(err))
}

// ===============================
// SUBSCRIPTIONS
// ===============================

func TestSubscriptionAppliesFeedUpdates(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)

	sub, err := f.svc.Subscribe(context.Background(), "u1")
	require.NoError(t, err)

	for _, count := range []int{5, 10, 24, 25, 50} {
		f.feed.push("u1", "explorer", count)
	}

	require.Eventually(t, func() bool {
		return len(f.sink.levels("u1", "explorer")) == 3
	}, time.Second, 5*time.Millisecond)

	sub.Cancel()
	assert.Equal(t,
		[]models.BadgeLevel{models.LevelBronze, models.LevelSilver, models.LevelGold},
		f.sink.levels("u1", "explorer"))
}

func TestSubscriptionReportsAndSkipsBadUpdates(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)

	sub, err := f.svc.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Cancel()

	f.feed.pushRaw("u1", models.CounterUpdate{UserID: "u1", BadgeID: "explorer"})
	err = <-sub.Errors()
	assert.True(t, IsMalformedUpdate(err))

	f.feed.push("u1", "ramen_master", 3)
	err = <-sub.Errors()
	assert.True(t, IsUnknownBadge(err))

	f.feed.push("u1", "first_to_slurp", 1)
	require.Eventually(t, func() bool {
		return len(f.sink.levels("u1", "first_to_slurp")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCancelStopsEmission(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)

	sub, err := f.svc.Subscribe(context.Background(), "u1")
	require.NoError(t, err)

	f.feed.push("u1", "first_to_slurp", 1)
	require.Eventually(t, func() bool { return len(f.sink.all()) == 1 }, time.Second, 5*time.Millisecond)

	sub.Cancel()
	sub.Cancel() // safe to call twice

	f.feed.push("u1", "first_to_slurp", 5)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.sink.all(), 1)

	_, open := <-sub.Errors()
	assert.False(t, open)
}

func TestConcurrentUsersAreIndependent(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		userID := fmt.Sprintf("user-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, count := range []int{5, 10, 24, 25, 50} {
				_, _, err := f.svc.ApplyCountUpdate(ctx, userID, "explorer", count)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		assert.Len(t, f.sink.levels(fmt.Sprintf("user-%d", i), "explorer"), 3)
	}
}

func TestConcurrentUpdatesForOneUserAreSerialized(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	// every goroutine applies the same count; exactly one may cross
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.sink.all(), 1)
}

func TestSubscriptionSettlesUpdates(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)

	sub, err := f.svc.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Cancel()

	assert.True(t, outcome(t, f.feed.pushSettled("u1", "explorer", 10)))
	// unknown badges are settled so they are not redelivered forever
	assert.True(t, outcome(t, f.feed.pushSettled("u1", "ramen_master", 1)))

	f.repo.FailWith(errors.New("connection refused"))
	assert.False(t, outcome(t, f.feed.pushSettled("u1", "explorer", 25)))

	// the redelivered update crosses silver once the store is back
	f.repo.FailWith(nil)
	assert.True(t, outcome(t, f.feed.pushSettled("u1", "explorer", 25)))
	assert.Equal(t,
		[]models.BadgeLevel{models.LevelBronze, models.LevelSilver},
		f.sink.levels("u1", "explorer"))
}

func TestBufferedWriteIsSettled(t *testing.T) {
	f := newEngine(t, StoreFailureBuffer)

	sub, err := f.svc.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Cancel()

	assert.True(t, outcome(t, f.feed.pushSettled("u1", "explorer", 3)))

	f.repo.FailWith(errors.New("timeout"))
	assert.True(t, outcome(t, f.feed.pushSettled("u1", "explorer", 10)))
	assert.Equal(t, 1, f.svc.PendingCount("u1"))
}

// ===============================
// USER STATE LIFETIME
// ===============================

func TestIdleUserStateIsEvicted(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		userID := fmt.Sprintf("user-%d", i)
		_, _, err := f.svc.ApplyCountUpdate(ctx, userID, "explorer", 12)
		require.NoError(t, err)
		_, err = f.svc.Progress(ctx, userID)
		require.NoError(t, err)
		_, err = f.svc.BadgeProgress(ctx, userID, "explorer")
		require.NoError(t, err)
	}
	for i := 0; i < 100; i++ {
		assert.Zero(t, f.svc.PendingCount(fmt.Sprintf("ghost-%d", i)))
	}

	assert.Zero(t, trackedUsers(f.svc))

	// evicted users resume from the store without re-emitting
	_, a, err := f.svc.ApplyCountUpdate(ctx, "user-0", "explorer", 12)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Len(t, f.sink.levels("user-0", "explorer"), 1)
}

func TestSubscriptionKeepsUserStateResident(t *testing.T) {
	f := newEngine(t, StoreFailureDrop)

	sub, err := f.svc.Subscribe(context.Background(), "u1")
	require.NoError(t, err)

	_, _, err = f.svc.ApplyCountUpdate(context.Background(), "u1", "explorer", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, trackedUsers(f.svc))

	sub.Cancel()
	assert.Zero(t, trackedUsers(f.svc))
}

func TestPendingWritesKeepUserStateResident(t *testing.T) {
	f := newEngine(t, StoreFailureBuffer)
	ctx := context.Background()

	sub, err := f.svc.Subscribe(ctx, "u1")
	require.NoError(t, err)
	_, _, err = f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 2)
	require.NoError(t, err)

	f.repo.FailWith(errors.New("timeout"))
	_, _, err = f.svc.ApplyCountUpdate(ctx, "u1", "explorer", 4)
	require.Error(t, err)

	sub.Cancel()
	assert.Equal(t, 1, trackedUsers(f.svc))
	assert.Equal(t, 1, f.svc.PendingCount("u1"))

	f.repo.FailWith(nil)
	require.NoError(t, f.svc.FlushAll(ctx))
	assert.Zero(t, trackedUsers(f.svc))
}
