package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"renamebot/internal/domain/rename"
	"renamebot/internal/metrics"
	"renamebot/pkg/clickhouse"
	"renamebot/pkg/errors"
	"renamebot/pkg/logger"
)

// Compile-time check
var _ rename.HistoryRepository = (*RenameHistoryRepository)(nil)

// RenameHistoryRepository buffers transfer outcomes and inserts them in batches
type RenameHistoryRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter[rename.Outcome]
	log         *logger.Logger
}

// HistoryOptions tunes batching
type HistoryOptions struct {
	BatchSize     int
	FlushInterval time.Duration
}

// NewRenameHistoryRepository creates the repository with its batch writer
func NewRenameHistoryRepository(conn driver.Conn, opts HistoryOptions, log *logger.Logger) *RenameHistoryRepository {
	r := &RenameHistoryRepository{
		conn: conn,
		log:  log.With("component", "rename_history"),
	}

	r.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[rename.Outcome]{
		FlushFunc:    r.flushBatch,
		OnFlush:      func(table string, _ int, err error) { metrics.RecordBatchFlush(table, err) },
		TableName:    "rename_history",
		MaxBatchSize: opts.BatchSize,
		MaxAge:       opts.FlushInterval,
		Logger:       log,
	})
	return r
}

// Start begins the background flush loop
func (r *RenameHistoryRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes buffered outcomes
func (r *RenameHistoryRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Record buffers an outcome; it is written on the next flush
func (r *RenameHistoryRepository) Record(ctx context.Context, outcome rename.Outcome) error {
	return r.batchWriter.Add(ctx, outcome)
}

func (r *RenameHistoryRepository) flushBatch(ctx context.Context, batch []rename.Outcome) error {
	stmt, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO rename_history (
			finished_at, session_id, chat_id, user_id,
			kind, format, original_name, final_name, size_bytes,
			status, failed_stage, error,
			metadata_applied, thumbnail_used, duration_ms
		)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Close()

	for _, o := range batch {
		if err := stmt.Append(
			o.FinishedAt, o.SessionID, o.ChatID, o.UserID,
			string(o.Kind), string(o.Format), o.OriginalName, o.FinalName, o.Size,
			string(o.Status), string(o.FailedStage), o.Error,
			o.MetadataApplied, o.ThumbnailUsed, o.Duration.Milliseconds(),
		); err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}
	return nil
}

// UserSummary aggregates the user's outcomes finished at or after since
func (r *RenameHistoryRepository) UserSummary(ctx context.Context, userID int64, since time.Time) (*rename.HistorySummary, error) {
	query := `
		SELECT
			count(),
			countIf(status = 'succeeded'),
			countIf(status = 'failed'),
			countIf(status = 'cancelled'),
			sumIf(size_bytes, status = 'succeeded'),
			max(finished_at)
		FROM rename_history
		WHERE user_id = ? AND finished_at >= ?
	`

	var (
		s    rename.HistorySummary
		last time.Time
	)
	if err := r.conn.QueryRow(ctx, query, userID, since).Scan(
		&s.Total, &s.Succeeded, &s.Failed, &s.Cancelled, &s.Bytes, &last,
	); err != nil {
		return nil, errors.Wrap(err, "failed to query rename history summary")
	}

	if s.Total > 0 {
		last = last.UTC()
		s.LastAt = &last
	}
	return &s, nil
}
