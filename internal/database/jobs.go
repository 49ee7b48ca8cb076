package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"
)

const jobColumns = `id, booking_id, description, status, photos, created_at, updated_at`

// CreateJobTx inserts a job inside a caller-owned transaction. The booking_id
// foreign key is enforced by the store: a job can never reference a missing
// booking.
func (db *DB) CreateJobTx(ctx context.Context, tx *sql.Tx, job *models.Job) error {
	photos, err := encodePhotos(job.Photos)
	if err != nil {
		return err
	}
	query := `INSERT INTO jobs (id, booking_id, description, status, photos, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		job.ID,
		job.BookingID,
		job.Description,
		job.Status,
		photos,
		fmtTime(job.CreatedAt),
		fmtTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	job, err := scanJob(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetJobsByBookingID returns a booking's jobs in creation order.
func (db *DB) GetJobsByBookingID(ctx context.Context, bookingID string) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE booking_id = ? ORDER BY created_at`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs by booking: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatusTx sets a job's status and refreshes updated_at inside a
// caller-owned transaction. Returns ErrNotFound when the id does not exist.
func (db *DB) UpdateJobStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	query := `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`
	result, err := tx.ExecContext(ctx, query, status, fmtTime(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
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
