package postgres

import (
	"context"
	"embed"
	"sort"
	"strconv"
	"strings"

	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	name    string
	content string
}

// Migrate applies pending schema migrations in version order.
// Applied versions are tracked in schema_migrations.
func (c *Client) Migrate(ctx context.Context) error {
	log := logger.Get().With("component", "postgres_migrations")

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	if _, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	for _, m := range migrations {
		var applied bool
		if err := c.db.GetContext(ctx, &applied,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version); err != nil {
			return errors.Wrapf(err, "check migration %s", m.name)
		}
		if applied {
			continue
		}

		tx, err := c.db.BeginTxx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin migration transaction")
		}
		if _, err := tx.ExecContext(ctx, m.content); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "apply migration %s", m.name)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "record migration %s", m.name)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %s", m.name)
		}

		log.Infow("Applied migration", "version", m.version, "name", m.name)
	}

	return nil
}

// loadMigrations reads embedded files named <version>_<name>.sql
func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read migrations directory")
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "read migration %s", entry.Name())
		}
		out = append(out, migration{version: version, name: entry.Name(), content: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
