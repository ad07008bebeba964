package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"renamebot/internal/adapters/clickhouse"
	"renamebot/internal/adapters/config"
	"renamebot/internal/domain/rename"
)

// ClickHouseTestHelper manages cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper connects, ensures the schema and closes the client after the test.
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := clickhouse.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to apply clickhouse schema: %v", err)
	}

	return &ClickHouseTestHelper{client: client}
}

// NewTestClickHouse builds a helper from CLICKHOUSE_* variables
func NewTestClickHouse(t *testing.T) *ClickHouseTestHelper {
	t.Helper()

	return NewClickHouseTestHelper(t, LoadClickHouseConfig(t))
}

// Client returns the underlying client
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// CreateTempTable creates a temporary table and registers cleanup.
func (h *ClickHouseTestHelper) CreateTempTable(t *testing.T, schema string) string {
	t.Helper()

	table := fmt.Sprintf("tmp_test_%d", time.Now().UnixNano())
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY tuple()", table, schema)

	if err := h.client.Exec(context.Background(), query); err != nil {
		t.Fatalf("failed to create clickhouse table: %v", err)
	}

	t.Cleanup(func() {
		_ = h.client.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})

	return table
}

// CleanupTable drops the provided table immediately.
func (h *ClickHouseTestHelper) CleanupTable(ctx context.Context, table string) error {
	return h.client.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
}

// RegisterTableCleanup deletes matching rows of a shared table after the test
func (h *ClickHouseTestHelper) RegisterTableCleanup(t *testing.T, table, condition string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = h.client.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition))
	})
}

// OutcomeFixture builds transfer outcomes for history tests
type OutcomeFixture struct {
	outcome rename.Outcome
}

// NewOutcomeFixture returns a successful document rename for a fresh user
func NewOutcomeFixture() *OutcomeFixture {
	return &OutcomeFixture{outcome: rename.Outcome{
		SessionID:    uuid.New(),
		ChatID:       UniqueTelegramID(),
		UserID:       UniqueTelegramID(),
		Kind:         rename.KindDocument,
		Format:       rename.FormatDocument,
		OriginalName: "report.pdf",
		FinalName:    UniqueFilename("report", ".pdf"),
		Size:         1024,
		Status:       rename.OutcomeSucceeded,
		Duration:     1500 * time.Millisecond,
		FinishedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}}
}

func (f *OutcomeFixture) WithUser(userID int64) *OutcomeFixture {
	f.outcome.UserID = userID
	f.outcome.ChatID = userID
	return f
}

func (f *OutcomeFixture) WithSize(size int64) *OutcomeFixture {
	f.outcome.Size = size
	return f
}

func (f *OutcomeFixture) WithFinishedAt(at time.Time) *OutcomeFixture {
	f.outcome.FinishedAt = at.UTC().Truncate(time.Millisecond)
	return f
}

// Failed marks the outcome failed at stage
func (f *OutcomeFixture) Failed(stage rename.Stage, msg string) *OutcomeFixture {
	f.outcome.Status = rename.OutcomeFailed
	f.outcome.FailedStage = stage
	f.outcome.Error = msg
	return f
}

func (f *OutcomeFixture) Cancelled() *OutcomeFixture {
	f.outcome.Status = rename.OutcomeCancelled
	return f
}

func (f *OutcomeFixture) Build() rename.Outcome {
	return f.outcome
}
