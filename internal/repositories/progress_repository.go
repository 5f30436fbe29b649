// internal/repositories/progress_repository.go
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"noodlebadge/internal/database"
	"noodlebadge/internal/models"

	"go.uber.org/zap"
)

// progressRepository implements ProgressRepository on Postgres
type progressRepository struct {
	*BaseRepository
}

// NewProgressRepository creates a Postgres-backed ProgressRepository
func NewProgressRepository(db *database.Manager, logger *zap.Logger) ProgressRepository {
	return &progressRepository{
		BaseRepository: NewBaseRepository(db, logger),
	}
}

const progressColumns = `badge_id, current_count, achieved_level, updated_at`

// Get retrieves a user's progress for one badge
func (r *progressRepository) Get(ctx context.Context, userID, badgeID string) (*models.UserBadgeProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM user_badge_progress
		WHERE user_id = $1 AND badge_id = $2`

	progress, err := scanProgress(r.QueryRowContext(ctx, query, userID, badgeID))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get badge progress: %w", err)
	}

	return progress, nil
}

// Put upserts the progress record for (userID, progress.BadgeID)
func (r *progressRepository) Put(ctx context.Context, userID string, progress *models.UserBadgeProgress) error {
	if progress.UpdatedAt.IsZero() {
		progress.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO user_badge_progress (
			user_id, badge_id, current_count, achieved_level, updated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, badge_id) DO UPDATE SET
			current_count = EXCLUDED.current_count,
			achieved_level = EXCLUDED.achieved_level,
			updated_at = EXCLUDED.updated_at`

	_, err := r.ExecContext(ctx, query,
		userID, progress.BadgeID, progress.CurrentCount,
		nullableLevel(progress.AchievedLevel), progress.UpdatedAt,
	)
	if err != nil {
		r.GetLogger().Error("Failed to save badge progress",
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("badge_id", progress.BadgeID),
		)
		return fmt.Errorf("failed to save badge progress: %w", err)
	}

	return nil
}

// ListByUser returns every progress record the user has, ordered by badge id
func (r *progressRepository) ListByUser(ctx context.Context, userID string) ([]*models.UserBadgeProgress, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM user_badge_progress
		WHERE user_id = $1
		ORDER BY badge_id`

	rows, err := r.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badge progress: %w", err)
	}
	defer rows.Close()

	var out []*models.UserBadgeProgress
	for rows.Next() {
		progress, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan badge progress: %w", err)
		}
		out = append(out, progress)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate badge progress: %w", err)
	}

	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProgress(row rowScanner) (*models.UserBadgeProgress, error) {
	var progress models.UserBadgeProgress
	var level sql.NullString

	if err := row.Scan(&progress.BadgeID, &progress.CurrentCount, &level, &progress.UpdatedAt); err != nil {
		return nil, err
	}

	if level.Valid && level.String != "" {
		l := models.BadgeLevel(level.String)
		progress.AchievedLevel = &l
	}

	return &progress, nil
}

func nullableLevel(level *models.BadgeLevel) sql.NullString {
	if level == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*level), Valid: true}
}
