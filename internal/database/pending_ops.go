package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"
)

const pendingOpColumns = `id, entity_kind, entity_id, op_type, payload, status,
              attempt_count, last_error, created_at, next_retry_at, processed_at`

// CreatePendingOpTx records a captured local mutation in the same transaction
// as the row it describes. The entry is the durable record of the write until
// the remote acknowledges it.
func (db *DB) CreatePendingOpTx(ctx context.Context, tx *sql.Tx, op *models.PendingOperation) error {
	now := nowUTC()
	query := `INSERT INTO pending_operations
              (entity_kind, entity_id, op_type, payload, status, attempt_count, created_at)
              VALUES (?, ?, ?, ?, ?, 0, ?)`
	result, err := tx.ExecContext(ctx, query,
		op.EntityKind,
		op.EntityID,
		op.OpType,
		op.Payload,
		models.OpStatusPending,
		fmtTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create pending operation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	op.ID = id
	op.Status = models.OpStatusPending
	op.CreatedAt = now
	return nil
}

// GetUploadableOps returns operations ready for upload in capture order,
// head-of-line per entity: an operation is excluded while an earlier
// operation for the same entity is still pending or backing off. Operations
// for different entities are independent.
func (db *DB) GetUploadableOps(ctx context.Context, limit int) ([]models.PendingOperation, error) {
	query := `SELECT ` + pendingOpColumns + `
              FROM pending_operations p
              WHERE status IN ('pending', 'retry')
                AND (next_retry_at IS NULL OR next_retry_at <= ?)
                AND NOT EXISTS (
                    SELECT 1 FROM pending_operations prior
                    WHERE prior.entity_kind = p.entity_kind
                      AND prior.entity_id = p.entity_id
                      AND prior.id < p.id
                      AND prior.status IN ('pending', 'retry')
                )
              ORDER BY id ASC
              LIMIT ?`
	return db.queryPendingOps(ctx, query, fmtTime(nowUTC()), limit)
}

// AckPendingOp removes an acknowledged entry; the mutation is now synced.
func (db *DB) AckPendingOp(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to ack pending operation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOpRetry schedules another attempt after a transport failure. Transport
// failures are never terminal: the entry stays until the remote acknowledges.
func (db *DB) MarkOpRetry(ctx context.Context, id int64, cause string, nextRetryAt time.Time) error {
	query := `UPDATE pending_operations
              SET status = ?, last_error = ?, next_retry_at = ?, attempt_count = attempt_count + 1
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.OpStatusRetry, cause, fmtTime(nextRetryAt), id)
	if err != nil {
		return fmt.Errorf("failed to mark pending operation for retry: %w", err)
	}
	return nil
}

// MarkOpFailed records a terminal rejection from the remote. The entry is
// retained for inspection, not retried.
func (db *DB) MarkOpFailed(ctx context.Context, id int64, cause string) error {
	query := `UPDATE pending_operations
              SET status = ?, last_error = ?, next_retry_at = NULL,
                  attempt_count = attempt_count + 1, processed_at = ?
              WHERE id = ?`
	_, err := db.ExecContext(ctx, query, models.OpStatusFailed, cause, fmtTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("failed to mark pending operation as failed: %w", err)
	}
	return nil
}

// GetFailedOps returns terminally rejected operations, newest first.
func (db *DB) GetFailedOps(ctx context.Context) ([]models.PendingOperation, error) {
	query := `SELECT ` + pendingOpColumns + `
              FROM pending_operations WHERE status = 'failed' ORDER BY created_at DESC`
	return db.queryPendingOps(ctx, query)
}

// RequeueFailedOp puts a terminally failed entry back in the queue after the
// user resolved whatever the remote rejected.
func (db *DB) RequeueFailedOp(ctx context.Context, id int64) error {
	query := `UPDATE pending_operations
              SET status = ?, next_retry_at = NULL, processed_at = NULL
              WHERE id = ? AND status = 'failed'`
	result, err := db.ExecContext(ctx, query, models.OpStatusPending, id)
	if err != nil {
		return fmt.Errorf("failed to requeue pending operation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPendingOps returns the queue depth excluding terminal failures.
func (db *DB) CountPendingOps(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_operations WHERE status IN ('pending', 'retry')`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return count, nil
}

func (db *DB) queryPendingOps(ctx context.Context, query string, args ...interface{}) ([]models.PendingOperation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		op, err := scanPendingOp(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending operations: %w", err)
	}
	return ops, nil
}

func scanPendingOp(row rowScanner) (*models.PendingOperation, error) {
	var (
		op                   models.PendingOperation
		lastError            sql.NullString
		createdAt            string
		nextRetry, processed sql.NullString
	)
	err := row.Scan(
		&op.ID, &op.EntityKind, &op.EntityID, &op.OpType, &op.Payload, &op.Status,
		&op.AttemptCount, &lastError, &createdAt, &nextRetry, &processed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending operation: %w", err)
	}
	if lastError.Valid {
		op.LastError = &lastError.String
	}
	if op.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse pending operation created_at: %w", err)
	}
	if nextRetry.Valid {
		t, err := parseTime(nextRetry.String)
		if err != nil {
			return nil, fmt.Errorf("parse pending operation next_retry_at: %w", err)
		}
		op.NextRetryAt = &t
	}
	if processed.Valid {
		t, err := parseTime(processed.String)
		if err != nil {
			return nil, fmt.Errorf("parse pending operation processed_at: %w", err)
		}
		op.ProcessedAt = &t
	}
	return &op, nil
}
