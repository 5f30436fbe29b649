// file: internal/services/badge_progress_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"noodlebadge/internal/catalog"
	"noodlebadge/internal/models"
	"noodlebadge/internal/repositories"
	"noodlebadge/internal/validation"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// StoreFailurePolicy decides what happens to an update whose write fails
type StoreFailurePolicy string

const (
	// StoreFailureDrop leaves in-memory state and the sink untouched. The next
	// update recomputes the crossing from the last persisted count.
	StoreFailureDrop StoreFailurePolicy = "drop"
	// StoreFailureBuffer advances in-memory state, emits, and queues the
	// record until a later write for the same user succeeds.
	StoreFailureBuffer StoreFailurePolicy = "buffer"
)

// BadgeEngineConfig holds engine settings
type BadgeEngineConfig struct {
	StoreFailurePolicy StoreFailurePolicy
	StoreRetryAttempts int
	StoreRetryInterval time.Duration
	ErrorBuffer        int
}

// DefaultBadgeEngineConfig returns default engine configuration
func DefaultBadgeEngineConfig() *BadgeEngineConfig {
	return &BadgeEngineConfig{
		StoreFailurePolicy: StoreFailureDrop,
		StoreRetryAttempts: 3,
		StoreRetryInterval: 100 * time.Millisecond,
		ErrorBuffer:        16,
	}
}

// userState is the engine's view of one user. mu serializes every update for
// the user. refs counts in-flight calls and live subscriptions and is guarded
// by the service mutex; a state with no refs and nothing pending is evicted.
type userState struct {
	mu       sync.Mutex
	refs     int
	progress map[string]*models.UserBadgeProgress
	pending  map[string]*models.UserBadgeProgress
}

// badgeProgressService implements BadgeProgressService
type badgeProgressService struct {
	config  *BadgeEngineConfig
	catalog *catalog.Catalog
	repo    repositories.ProgressRepository
	feed    CounterFeed
	sink    AchievementSink
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	users map[string]*userState
}

// NewBadgeProgressService creates the badge engine. feed may be nil when no
// live subscriptions are needed; sink may be nil to discard achievements.
func NewBadgeProgressService(
	config *BadgeEngineConfig,
	cat *catalog.Catalog,
	repo repositories.ProgressRepository,
	feed CounterFeed,
	sink AchievementSink,
	logger *zap.Logger,
) BadgeProgressService {
	if config == nil {
		config = DefaultBadgeEngineConfig()
	}
	if config.StoreFailurePolicy == "" {
		config.StoreFailurePolicy = StoreFailureDrop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = AchievementSinkFunc(func(context.Context, models.Achievement) error { return nil })
	}

	return &badgeProgressService{
		config:  config,
		catalog: cat,
		repo:    repo,
		feed:    feed,
		sink:    sink,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		users:   make(map[string]*userState),
	}
}

// Catalog returns the badge catalog the engine evaluates against
func (s *badgeProgressService) Catalog() *catalog.Catalog {
	return s.catalog
}

// acquire returns the user's state, creating it if needed, and takes a
// reference that must be returned with release.
func (s *badgeProgressService) acquire(userID string) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.users[userID]
	if !ok {
		st = &userState{
			progress: make(map[string]*models.UserBadgeProgress),
			pending:  make(map[string]*models.UserBadgeProgress),
		}
		s.users[userID] = st
	}
	st.refs++
	return st
}

// release drops a reference. Callers must not hold st.mu.
func (s *badgeProgressService) release(userID string, st *userState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.refs--
	if st.refs > 0 {
		return
	}

	st.mu.Lock()
	idle := len(st.pending) == 0
	st.mu.Unlock()

	if idle && s.users[userID] == st {
		delete(s.users, userID)
	}
}

// lookup returns the user's state without creating it
func (s *badgeProgressService) lookup(userID string) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID]
}

// ===============================
// UPDATES
// ===============================

// ApplyCountUpdate records newCount and emits at most one achievement.
// Reapplying the current count is a no-op that returns the existing record.
func (s *badgeProgressService) ApplyCountUpdate(ctx context.Context, userID, badgeID string, newCount int) (*models.UserBadgeProgress, *models.Achievement, error) {
	def, ok := s.catalog.Get(badgeID)
	if !ok {
		return nil, nil, NewUnknownBadgeError(badgeID)
	}
	if userID == "" || newCount < 0 {
		return nil, nil, NewMalformedUpdateError(userID, badgeID, fmt.Errorf("user id and a non-negative count are required"))
	}
	if newCount > models.MaxCount {
		return nil, nil, NewMalformedUpdateError(userID, badgeID, fmt.Errorf("count %d exceeds %d", newCount, models.MaxCount))
	}

	st := s.acquire(userID)
	defer s.release(userID, st)
	st.mu.Lock()
	defer st.mu.Unlock()

	previous, err := s.previous(ctx, st, userID, badgeID)
	if err != nil {
		return nil, nil, NewStoreUnavailableError(userID, badgeID, false, err)
	}

	previousCount := 0
	if previous != nil {
		previousCount = previous.CurrentCount
	}

	record := &models.UserBadgeProgress{
		BadgeID:       badgeID,
		CurrentCount:  newCount,
		AchievedLevel: ComputeAchievedLevel(def.Tiers, newCount),
		UpdatedAt:     s.now(),
	}

	if previous != nil && previous.SameState(record) {
		return cloneProgress(previous), nil, nil
	}

	crossed := DetectNewAchievement(previousCount, newCount, def.Tiers)

	var storeErr error
	if err := s.persist(ctx, st, userID, record); err != nil {
		if s.config.StoreFailurePolicy != StoreFailureBuffer {
			s.logger.Warn("Progress write failed, update dropped",
				zap.String("user_id", userID),
				zap.String("badge_id", badgeID),
				zap.Int("count", newCount),
				zap.Error(err),
			)
			return nil, nil, NewStoreUnavailableError(userID, badgeID, false, err)
		}

		st.pending[badgeID] = cloneProgress(record)
		storeErr = NewStoreUnavailableError(userID, badgeID, true, err)
		s.logger.Warn("Progress write failed, update buffered",
			zap.String("user_id", userID),
			zap.String("badge_id", badgeID),
			zap.Int("count", newCount),
			zap.Int("pending", len(st.pending)),
			zap.Error(err),
		)
	}

	st.progress[badgeID] = cloneProgress(record)

	if crossed == nil {
		return cloneProgress(record), nil, storeErr
	}

	achievement := &models.Achievement{
		UserID:     userID,
		BadgeID:    badgeID,
		Level:      *crossed,
		Count:      newCount,
		AchievedAt: record.UpdatedAt,
	}

	s.logger.Info("Badge level achieved",
		zap.String("user_id", userID),
		zap.String("badge_id", badgeID),
		zap.String("level", string(*crossed)),
		zap.Int("previous_count", previousCount),
		zap.Int("count", newCount),
	)

	if err := s.sink.Emit(ctx, *achievement); err != nil {
		s.logger.Error("Failed to deliver achievement",
			zap.String("user_id", userID),
			zap.String("badge_id", badgeID),
			zap.Error(err),
		)
		if storeErr == nil {
			storeErr = NewDeliveryError(badgeID, err)
		}
	}

	return cloneProgress(record), achievement, storeErr
}

// previous returns the last known record: in-memory state first, then the store
func (s *badgeProgressService) previous(ctx context.Context, st *userState, userID, badgeID string) (*models.UserBadgeProgress, error) {
	if p, ok := st.progress[badgeID]; ok {
		return p, nil
	}

	p, err := s.repo.Get(ctx, userID, badgeID)
	if err != nil {
		return nil, err
	}
	if p != nil {
		st.progress[badgeID] = cloneProgress(p)
	}
	return p, nil
}

// persist writes record with retries. On success any other buffered records
// for the user are flushed opportunistically. Caller holds st.mu.
func (s *badgeProgressService) persist(ctx context.Context, st *userState, userID string, record *models.UserBadgeProgress) error {
	if err := s.put(ctx, userID, record); err != nil {
		return err
	}
	delete(st.pending, record.BadgeID)

	if len(st.pending) > 0 {
		if err := s.flushLocked(ctx, st, userID); err != nil {
			s.logger.Debug("Buffered progress still pending",
				zap.String("user_id", userID),
				zap.Int("pending", len(st.pending)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *badgeProgressService) put(ctx context.Context, userID string, record *models.UserBadgeProgress) error {
	write := cloneProgress(record)
	operation := func() error {
		return s.repo.Put(ctx, userID, write)
	}

	if s.config.StoreRetryAttempts <= 0 {
		return operation()
	}

	b := backoff.NewExponentialBackOff()
	if s.config.StoreRetryInterval > 0 {
		b.InitialInterval = s.config.StoreRetryInterval
	}

	return backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.config.StoreRetryAttempts)), ctx),
		func(err error, d time.Duration) {
			s.logger.Debug("Progress write failed, retrying",
				zap.String("user_id", userID),
				zap.String("badge_id", record.BadgeID),
				zap.Duration("backoff", d),
				zap.Error(err),
			)
		},
	)
}

// ===============================
// PENDING BUFFER
// ===============================

// FlushPending retries every buffered record for the user
func (s *badgeProgressService) FlushPending(ctx context.Context, userID string) error {
	st := s.acquire(userID)
	defer s.release(userID, st)
	st.mu.Lock()
	defer st.mu.Unlock()

	return s.flushLocked(ctx, st, userID)
}

func (s *badgeProgressService) flushLocked(ctx context.Context, st *userState, userID string) error {
	badgeIDs := make([]string, 0, len(st.pending))
	for id := range st.pending {
		badgeIDs = append(badgeIDs, id)
	}
	sort.Strings(badgeIDs)

	var errs []error
	for _, badgeID := range badgeIDs {
		if err := s.put(ctx, userID, st.pending[badgeID]); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(st.pending, badgeID)
	}

	if len(errs) > 0 {
		return NewStoreUnavailableError(userID, badgeIDs[0], true, errors.Join(errs...))
	}

	if len(badgeIDs) > 0 {
		s.logger.Info("Flushed buffered progress",
			zap.String("user_id", userID),
			zap.Int("records", len(badgeIDs)),
		)
	}
	return nil
}

// FlushAll flushes every user with buffered records
func (s *badgeProgressService) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	userIDs := make([]string, 0, len(s.users))
	for id := range s.users {
		userIDs = append(userIDs, id)
	}
	s.mu.Unlock()

	var errs []error
	for _, userID := range userIDs {
		if s.PendingCount(userID) == 0 {
			continue
		}
		if err := s.FlushPending(ctx, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PendingCount returns the number of buffered records for the user
func (s *badgeProgressService) PendingCount(userID string) int {
	st := s.lookup(userID)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.pending)
}

// ===============================
// READ MODEL
// ===============================

// Progress returns a view for every catalog badge. In-memory state wins over
// the store so buffered updates are visible.
func (s *badgeProgressService) Progress(ctx context.Context, userID string) ([]models.BadgeProgressView, error) {
	st := s.acquire(userID)
	defer s.release(userID, st)
	st.mu.Lock()
	defer st.mu.Unlock()

	records := make(map[string]*models.UserBadgeProgress)

	stored, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		if len(st.progress) == 0 {
			return nil, NewStoreUnavailableError(userID, "", false, err)
		}
		s.logger.Warn("Serving progress from memory, store unavailable",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	for _, p := range stored {
		records[p.BadgeID] = p
	}
	for id, p := range st.progress {
		records[id] = p
	}

	defs := s.catalog.List()
	views := make([]models.BadgeProgressView, 0, len(defs))
	for _, def := range defs {
		views = append(views, BuildProgressView(def, records[def.ID]))
	}

	return views, nil
}

// BadgeProgress returns the view for one badge
func (s *badgeProgressService) BadgeProgress(ctx context.Context, userID, badgeID string) (*models.BadgeProgressView, error) {
	def, ok := s.catalog.Get(badgeID)
	if !ok {
		return nil, NewUnknownBadgeError(badgeID)
	}

	st := s.acquire(userID)
	defer s.release(userID, st)
	st.mu.Lock()
	defer st.mu.Unlock()

	p, err := s.previous(ctx, st, userID, badgeID)
	if err != nil {
		return nil, NewStoreUnavailableError(userID, badgeID, false, err)
	}

	view := BuildProgressView(def, p)
	return &view, nil
}

func cloneProgress(p *models.UserBadgeProgress) *models.UserBadgeProgress {
	if p == nil {
		return nil
	}
	out := *p
	if p.AchievedLevel != nil {
		l := *p.AchievedLevel
		out.AchievedLevel = &l
	}
	return &out
}

// ===============================
// SUBSCRIPTIONS
// ===============================

// Subscription is a live attachment of the engine to one user's counter feed
type Subscription struct {
	userID string
	cancel context.CancelFunc
	done   chan struct{}
	errs   chan error
	once   sync.Once
}

// UserID returns the subscribed user
func (sub *Subscription) UserID() string {
	return sub.userID
}

// Errors reports per-update failures. It is closed when the subscription ends.
// Errors are dropped when the buffer is full.
func (sub *Subscription) Errors() <-chan error {
	return sub.errs
}

// Done is closed once the subscription loop has exited
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Cancel stops the subscription and waits for its loop to exit. No
// achievement is emitted by this subscription after Cancel returns.
func (sub *Subscription) Cancel() {
	sub.once.Do(sub.cancel)
	<-sub.done
}

// Subscribe starts draining the user's counter feed on its own goroutine
func (s *badgeProgressService) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if s.feed == nil {
		return nil, fmt.Errorf("no counter feed configured")
	}
	if userID == "" {
		return nil, NewValidationError("user id is required", nil)
	}

	// a live subscription keeps the user's state resident
	st := s.acquire(userID)

	subCtx, cancel := context.WithCancel(ctx)
	updates, err := s.feed.Subscribe(subCtx, userID)
	if err != nil {
		cancel()
		s.release(userID, st)
		return nil, fmt.Errorf("failed to subscribe to counter feed: %w", err)
	}

	bufSize := s.config.ErrorBuffer
	if bufSize <= 0 {
		bufSize = 16
	}

	sub := &Subscription{
		userID: userID,
		cancel: cancel,
		done:   make(chan struct{}),
		errs:   make(chan error, bufSize),
	}

	go s.run(subCtx, sub, st, updates)

	s.logger.Info("Badge subscription started", zap.String("user_id", userID))
	return sub, nil
}

func (s *badgeProgressService) run(ctx context.Context, sub *Subscription, st *userState, updates <-chan models.CounterUpdate) {
	defer close(sub.done)
	defer close(sub.errs)
	defer s.release(sub.userID, st)
	defer s.logger.Info("Badge subscription stopped", zap.String("user_id", sub.userID))

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				// hand it back so the feed can redeliver it
				update.Settle(false)
				return
			}
			err := s.handleUpdate(ctx, sub.userID, update)
			update.Settle(!shouldRedeliver(err))
			if err != nil {
				sub.report(err, s.logger)
			}
		}
	}
}

// shouldRedeliver reports whether a feed item failed in a way a later
// redelivery can fix. Dropped writes qualify; malformed items and buffered
// writes do not.
func shouldRedeliver(err error) bool {
	var storeErr *StoreUnavailableError
	return errors.As(err, &storeErr) && !storeErr.Buffered
}

// handleUpdate validates a feed item and applies it
func (s *badgeProgressService) handleUpdate(ctx context.Context, userID string, update models.CounterUpdate) error {
	if update.UserID == "" {
		update.UserID = userID
	}

	if err := validation.ValidateStruct(&update); err != nil {
		s.logger.Warn("Skipping malformed counter update",
			zap.String("user_id", update.UserID),
			zap.String("badge_id", update.BadgeID),
			zap.Error(err),
		)
		return NewMalformedUpdateError(update.UserID, update.BadgeID, err)
	}

	if update.UserID != userID {
		s.logger.Warn("Skipping counter update for another user",
			zap.String("user_id", userID),
			zap.String("update_user_id", update.UserID),
			zap.String("badge_id", update.BadgeID),
		)
		return NewMalformedUpdateError(update.UserID, update.BadgeID, fmt.Errorf("update addressed to another user"))
	}

	_, _, err := s.ApplyCountUpdate(ctx, userID, update.BadgeID, *update.Count)
	if err != nil && IsUnknownBadge(err) {
		s.logger.Warn("Ignoring update for unknown badge",
			zap.String("user_id", userID),
			zap.String("badge_id", update.BadgeID),
		)
	}
	return err
}

func (sub *Subscription) report(err error, logger *zap.Logger) {
	select {
	case sub.errs <- err:
	default:
		logger.Debug("Subscription error buffer full, dropping error",
			zap.String("user_id", sub.userID),
			zap.Error(err),
		)
	}
}
