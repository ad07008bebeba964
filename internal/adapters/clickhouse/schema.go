package clickhouse

import (
	"context"

	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// schema is applied statement by statement; the native protocol rejects
// multi-statement queries
var schema = []string{
	`CREATE TABLE IF NOT EXISTS rename_history (
		finished_at      DateTime64(3, 'UTC'),
		session_id       UUID,
		chat_id          Int64,
		user_id          Int64,
		kind             LowCardinality(String),
		format           LowCardinality(String),
		original_name    String,
		final_name       String,
		size_bytes       Int64,
		status           LowCardinality(String),
		failed_stage     LowCardinality(String),
		error            String,
		metadata_applied Bool,
		thumbnail_used   Bool,
		duration_ms      Int64
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(finished_at)
	ORDER BY (user_id, finished_at)
	TTL toDateTime(finished_at) + INTERVAL 1 YEAR`,
}

// EnsureSchema creates the analytics tables when missing
func (c *Client) EnsureSchema(ctx context.Context) error {
	log := logger.Get().With("component", "clickhouse_schema", "database", c.database)

	for _, stmt := range schema {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply clickhouse schema")
		}
	}

	log.Infow("ClickHouse schema ready", "statements", len(schema))
	return nil
}
