package importer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pubrec/pkg/platform/sentinel"
)

// PostgresTaskStore persists task audit records in the import_tasks table.
type PostgresTaskStore struct {
	db *sql.DB
}

func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

func (s *PostgresTaskStore) Create(ctx context.Context, t *TaskRecord) error {
	statuses, err := json.Marshal(t.IndividualRecordStatus)
	if err != nil {
		return fmt.Errorf("marshal row statuses: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_tasks (id, feed, status, item_total, items_processed, row_statuses, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		t.ID, t.Feed, string(t.Status), t.ItemTotal, t.ItemsProcessed,
		statuses, t.StartedAt, nullableTime(t.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert import task: %w", err)
	}
	return nil
}

func (s *PostgresTaskStore) Update(ctx context.Context, t *TaskRecord) error {
	statuses, err := json.Marshal(t.IndividualRecordStatus)
	if err != nil {
		return fmt.Errorf("marshal row statuses: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_tasks
		SET status = $2, item_total = $3, items_processed = $4, row_statuses = $5, finished_at = $6
		WHERE id = $1
	`,
		t.ID, string(t.Status), t.ItemTotal, t.ItemsProcessed, statuses, nullableTime(t.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("update import task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update import task rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, feed, status, item_total, items_processed, row_statuses, started_at, finished_at
		FROM import_tasks WHERE id = $1
	`, id)

	var t TaskRecord
	var status string
	var statuses []byte
	var finished sql.NullTime
	if err := row.Scan(&t.ID, &t.Feed, &status, &t.ItemTotal, &t.ItemsProcessed, &statuses, &t.StartedAt, &finished); err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get import task: %w", err)
	}
	t.Status = TaskStatus(status)
	if finished.Valid {
		t.FinishedAt = finished.Time
	}
	if len(statuses) > 0 {
		if err := json.Unmarshal(statuses, &t.IndividualRecordStatus); err != nil {
			return nil, fmt.Errorf("unmarshal row statuses: %w", err)
		}
	}
	return &t, nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
