package preferences

import (
	"context"
	"time"
)

// Repository is the durable store for preferences.
// Implementation lives in internal/repository/postgres/preferences.go
type Repository interface {
	// Get returns errors.ErrNotFound for users without a row
	Get(ctx context.Context, userID int64) (*Preferences, error)
	Upsert(ctx context.Context, p *Preferences) error
	// IncrementRenameCount bumps files_renamed (creating the row if needed) and returns the new value
	IncrementRenameCount(ctx context.Context, userID int64, at time.Time) (int64, error)
	Delete(ctx context.Context, userID int64) error
	Totals(ctx context.Context) (*Totals, error)
	// ListUserIDs returns up to limit user ids greater than afterID, ascending
	ListUserIDs(ctx context.Context, afterID int64, limit int) ([]int64, error)
}

// Cache is a read-through cache in front of Repository.
// Implementation lives in internal/repository/redis/preferences_cache.go
type Cache interface {
	// Get returns errors.ErrNotFound on a miss
	Get(ctx context.Context, userID int64) (*Preferences, error)
	Set(ctx context.Context, p *Preferences, ttl time.Duration) error
	Invalidate(ctx context.Context, userID int64) error
}
