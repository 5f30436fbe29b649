package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"noodlebadge/internal/models"
)

// ===============================
// IN-MEMORY REPOSITORIES
// ===============================

// MemoryProgressRepository keeps progress in process. It backs
// STORE_PROVIDER=memory and the service tests.
type MemoryProgressRepository struct {
	mu       sync.RWMutex
	records  map[string]map[string]models.UserBadgeProgress
	failErr  error
	writeErr error
}

// NewMemoryProgressRepository creates an empty in-memory progress store
func NewMemoryProgressRepository() *MemoryProgressRepository {
	return &MemoryProgressRepository{
		records: make(map[string]map[string]models.UserBadgeProgress),
	}
}

// FailWith makes every subsequent call return err until cleared with nil
func (r *MemoryProgressRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// FailWritesWith makes Put return err while reads keep working
func (r *MemoryProgressRepository) FailWritesWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErr = err
}

func (r *MemoryProgressRepository) Get(ctx context.Context, userID, badgeID string) (*models.UserBadgeProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failErr != nil {
		return nil, r.failErr
	}

	p, ok := r.records[userID][badgeID]
	if !ok {
		return nil, nil
	}
	return copyProgress(p), nil
}

func (r *MemoryProgressRepository) Put(ctx context.Context, userID string, progress *models.UserBadgeProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return r.failErr
	}
	if r.writeErr != nil {
		return r.writeErr
	}

	if progress.UpdatedAt.IsZero() {
		progress.UpdatedAt = time.Now().UTC()
	}

	byBadge, ok := r.records[userID]
	if !ok {
		byBadge = make(map[string]models.UserBadgeProgress)
		r.records[userID] = byBadge
	}
	byBadge[progress.BadgeID] = *copyProgress(*progress)

	return nil
}

func (r *MemoryProgressRepository) ListByUser(ctx context.Context, userID string) ([]*models.UserBadgeProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failErr != nil {
		return nil, r.failErr
	}

	out := make([]*models.UserBadgeProgress, 0, len(r.records[userID]))
	for _, p := range r.records[userID] {
		out = append(out, copyProgress(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })

	return out, nil
}

func copyProgress(p models.UserBadgeProgress) *models.UserBadgeProgress {
	if p.AchievedLevel != nil {
		l := *p.AchievedLevel
		p.AchievedLevel = &l
	}
	return &p
}

// MemoryNotificationSettingsRepository keeps settings in process
type MemoryNotificationSettingsRepository struct {
	mu       sync.RWMutex
	settings map[string]models.NotificationSettings
}

// NewMemoryNotificationSettingsRepository creates an empty settings store
func NewMemoryNotificationSettingsRepository() *MemoryNotificationSettingsRepository {
	return &MemoryNotificationSettingsRepository{
		settings: make(map[string]models.NotificationSettings),
	}
}

func (r *MemoryNotificationSettingsRepository) Get(ctx context.Context, userID string) (*models.NotificationSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *MemoryNotificationSettingsRepository) Upsert(ctx context.Context, s *models.NotificationSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.UpdatedAt = time.Now().UTC()
	r.settings[s.UserID] = *s
	return nil
}

func (r *MemoryNotificationSettingsRepository) Merge(ctx context.Context, userID string, fn func(*models.NotificationSettings)) (*models.NotificationSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := *models.DefaultNotificationSettings(userID)
	if stored, ok := r.settings[userID]; ok {
		merged = stored
	}

	fn(&merged)
	merged.UserID = userID
	merged.UpdatedAt = time.Now().UTC()
	r.settings[userID] = merged
	return &merged, nil
}
