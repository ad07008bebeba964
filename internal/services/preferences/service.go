package preferences

import (
	"context"
	"time"

	"renamebot/internal/domain/preferences"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// DefaultCacheTTL is used when the configured TTL is not positive
const DefaultCacheTTL = 10 * time.Minute

// Service is the settings store: Postgres is the source of truth, the cache
// is read-through and invalidated on every write
type Service struct {
	repo     preferences.Repository
	cache    preferences.Cache // optional
	cacheTTL time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates the settings store. cache may be nil.
func NewService(repo preferences.Repository, cache preferences.Cache, cacheTTL time.Duration, log *logger.Logger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
		log:      log.With("service", "preferences"),
	}
}

// GetPreferences returns the user's preferences, or defaults for unknown users
func (s *Service) GetPreferences(ctx context.Context, userID int64) (*preferences.Preferences, error) {
	if s.cache != nil {
		p, err := s.cache.Get(ctx, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			s.log.Warnw("Preferences cache read failed", "user_id", userID, "error", err)
		}
	}

	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, errors.ErrNotFound) {
		return preferences.Default(userID), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get preferences for user %d", userID)
	}

	s.store(ctx, p)
	return p, nil
}

// IncrementRenameCount records a completed rename and returns the new total
func (s *Service) IncrementRenameCount(ctx context.Context, userID int64) (int64, error) {
	count, err := s.repo.IncrementRenameCount(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, errors.Wrapf(err, "increment rename count for user %d", userID)
	}
	s.invalidate(ctx, userID)
	return count, nil
}

// SetPrefix stores the filename prefix
func (s *Service) SetPrefix(ctx context.Context, userID int64, prefix string) (*preferences.Preferences, error) {
	if err := preferences.ValidateAffix("prefix", prefix); err != nil {
		return nil, err
	}
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.Prefix = prefix })
}

// ClearPrefix removes the filename prefix
func (s *Service) ClearPrefix(ctx context.Context, userID int64) (*preferences.Preferences, error) {
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.Prefix = "" })
}

// SetSuffix stores the filename suffix
func (s *Service) SetSuffix(ctx context.Context, userID int64, suffix string) (*preferences.Preferences, error) {
	if err := preferences.ValidateAffix("suffix", suffix); err != nil {
		return nil, err
	}
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.Suffix = suffix })
}

// ClearSuffix removes the filename suffix
func (s *Service) ClearSuffix(ctx context.Context, userID int64) (*preferences.Preferences, error) {
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.Suffix = "" })
}

// SetCaption stores the caption template
func (s *Service) SetCaption(ctx context.Context, userID int64, template string) (*preferences.Preferences, error) {
	if err := preferences.ValidateCaption(template); err != nil {
		return nil, err
	}
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.CaptionTemplate = template })
}

// ClearCaption removes the caption template
func (s *Service) ClearCaption(ctx context.Context, userID int64) (*preferences.Preferences, error) {
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.CaptionTemplate = "" })
}

// SetThumbnail stores a Telegram photo file id as the upload thumbnail
func (s *Service) SetThumbnail(ctx context.Context, userID int64, fileID string) (*preferences.Preferences, error) {
	if fileID == "" {
		return nil, errors.NewValidationError("thumbnail_ref", "must not be empty", fileID)
	}
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.ThumbnailRef = fileID })
}

// ClearThumbnail removes the stored thumbnail
func (s *Service) ClearThumbnail(ctx context.Context, userID int64) (*preferences.Preferences, error) {
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.ThumbnailRef = "" })
}

// UpdateMetadata applies a parsed /metadata command
func (s *Service) UpdateMetadata(ctx context.Context, userID int64, upd preferences.MetadataUpdate) (*preferences.Preferences, error) {
	if upd.Empty() {
		return s.GetPreferences(ctx, userID)
	}
	return s.update(ctx, userID, func(p *preferences.Preferences) { p.Metadata = upd.Apply(p.Metadata) })
}

// Reset clears every setting but keeps the usage counters
func (s *Service) Reset(ctx context.Context, userID int64) (*preferences.Preferences, error) {
	return s.update(ctx, userID, func(p *preferences.Preferences) {
		p.Prefix = ""
		p.Suffix = ""
		p.CaptionTemplate = ""
		p.ThumbnailRef = ""
		p.Metadata = preferences.Metadata{}
	})
}

// Totals returns usage across all users
func (s *Service) Totals(ctx context.Context) (*preferences.Totals, error) {
	t, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get usage totals")
	}
	return t, nil
}

// UserIDs pages through every known user, afterID exclusive
func (s *Service) UserIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "page size %d", limit)
	}
	ids, err := s.repo.ListUserIDs(ctx, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return ids, nil
}

// update reads from the repository (never the cache), applies fn and writes back
func (s *Service) update(ctx context.Context, userID int64, fn func(*preferences.Preferences)) (*preferences.Preferences, error) {
	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, errors.ErrNotFound) {
		p = preferences.Default(userID)
	} else if err != nil {
		return nil, errors.Wrapf(err, "load preferences for user %d", userID)
	}

	fn(p)
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "save preferences for user %d", userID)
	}
	s.invalidate(ctx, userID)

	s.log.Debugw("Preferences updated", "user_id", userID)
	return p, nil
}

func (s *Service) store(ctx context.Context, p *preferences.Preferences) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, p, s.cacheTTL); err != nil {
		s.log.Warnw("Preferences cache write failed", "user_id", p.UserID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warnw("Preferences cache invalidation failed", "user_id", userID, "error", err)
	}
}
