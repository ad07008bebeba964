package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"renamebot/internal/domain/preferences"
	"renamebot/pkg/errors"
)

// Compile-time check that we implement the interface
var _ preferences.Repository = (*PreferencesRepository)(nil)

// PreferencesRepository implements preferences.Repository using sqlx
type PreferencesRepository struct {
	db DBTX
}

// NewPreferencesRepository creates a new preferences repository
func NewPreferencesRepository(db DBTX) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// Get retrieves preferences by Telegram user ID
func (r *PreferencesRepository) Get(ctx context.Context, userID int64) (*preferences.Preferences, error) {
	var p preferences.Preferences
	var metadataJSON []byte

	query := `
		SELECT user_id, prefix, suffix, caption_template, thumbnail_ref, metadata,
			   files_renamed, last_used_at, created_at, updated_at
		FROM user_preferences
		WHERE user_id = $1`

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Prefix, &p.Suffix, &p.CaptionTemplate, &p.ThumbnailRef, &metadataJSON,
		&p.FilesRenamed, &p.LastUsedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "preferences not found for user_id=%d", userID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get preferences: user_id=%d", userID)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &p.Metadata); err != nil {
			p.Metadata = preferences.Metadata{}
		}
	}

	return &p, nil
}

// Upsert inserts or replaces the settings columns. Usage counters are
// owned by IncrementRenameCount and never overwritten here.
func (r *PreferencesRepository) Upsert(ctx context.Context, p *preferences.Preferences) error {
	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}

	query := `
		INSERT INTO user_preferences (
			user_id, prefix, suffix, caption_template, thumbnail_ref, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (user_id) DO UPDATE SET
			prefix = EXCLUDED.prefix,
			suffix = EXCLUDED.suffix,
			caption_template = EXCLUDED.caption_template,
			thumbnail_ref = EXCLUDED.thumbnail_ref,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = r.db.ExecContext(ctx, query,
		p.UserID, p.Prefix, p.Suffix, p.CaptionTemplate, p.ThumbnailRef, metadataJSON, createdAt, updatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert preferences: user_id=%d", p.UserID)
	}
	return nil
}

// IncrementRenameCount bumps files_renamed atomically and returns the new value
func (r *PreferencesRepository) IncrementRenameCount(ctx context.Context, userID int64, at time.Time) (int64, error) {
	query := `
		INSERT INTO user_preferences (user_id, files_renamed, last_used_at, created_at, updated_at)
		VALUES ($1, 1, $2, $2, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			files_renamed = user_preferences.files_renamed + 1,
			last_used_at = EXCLUDED.last_used_at
		RETURNING files_renamed`

	var count int64
	if err := r.db.GetContext(ctx, &count, query, userID, at); err != nil {
		return 0, errors.Wrapf(err, "failed to increment rename count: user_id=%d", userID)
	}
	return count, nil
}

// Delete removes a user's row
func (r *PreferencesRepository) Delete(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = $1`, userID); err != nil {
		return errors.Wrapf(err, "failed to delete preferences: user_id=%d", userID)
	}
	return nil
}

// Totals aggregates usage across all users
func (r *PreferencesRepository) Totals(ctx context.Context) (*preferences.Totals, error) {
	var t preferences.Totals

	query := `
		SELECT COUNT(*) AS users,
			   COUNT(*) FILTER (WHERE files_renamed > 0) AS active_users,
			   COALESCE(SUM(files_renamed), 0) AS files_renamed
		FROM user_preferences`

	if err := r.db.GetContext(ctx, &t, query); err != nil {
		return nil, errors.Wrap(err, "failed to aggregate preferences")
	}
	return &t, nil
}

// ListUserIDs pages through users by id (keyset pagination)
func (r *PreferencesRepository) ListUserIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	ids := make([]int64, 0, limit)

	query := `
		SELECT user_id
		FROM user_preferences
		WHERE user_id > $1
		ORDER BY user_id
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &ids, query, afterID, limit); err != nil {
		return nil, errors.Wrapf(err, "failed to list users after %d", afterID)
	}
	return ids, nil
}
