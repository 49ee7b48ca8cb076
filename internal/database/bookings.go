package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"
)

// executor is satisfied by both *DB and *sql.Tx so write paths can run inside
// a caller-owned transaction (the pending-operation capture requires it).
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const bookingColumns = `id, tenant_id, customer_id, due_date, time_estimate,
            description, quote, status, photos, custom_fields, created_at, updated_at`

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	return createBooking(ctx, db, booking)
}

// CreateBookingTx inserts a booking inside a caller-owned transaction.
func (db *DB) CreateBookingTx(ctx context.Context, tx *sql.Tx, booking *models.Booking) error {
	return createBooking(ctx, tx, booking)
}

func createBooking(ctx context.Context, q executor, booking *models.Booking) error {
	photos, err := encodePhotos(booking.Photos)
	if err != nil {
		return err
	}
	custom, err := encodeCustomFields(booking.CustomFields)
	if err != nil {
		return err
	}

	var quote interface{}
	if booking.Quote != nil {
		quote = *booking.Quote
	}

	query := `INSERT INTO bookings (
				id, tenant_id, customer_id, due_date, time_estimate,
				description, quote, status, photos, custom_fields, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = q.ExecContext(ctx, query,
		booking.ID,
		booking.TenantID,
		booking.CustomerID,
		fmtTime(booking.DueDate),
		booking.TimeEstimate,
		booking.Description,
		quote,
		booking.Status,
		photos,
		custom,
		fmtTime(booking.CreatedAt),
		fmtTime(booking.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// GetBookingsByTenantID returns a tenant's bookings ordered newest-created-first.
// Jobs are not populated here; the service layer attaches them.
func (db *DB) GetBookingsByTenantID(ctx context.Context, tenantID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE tenant_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by tenant: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBookingTx applies a partial update and refreshes updated_at inside a
// caller-owned transaction. Returns ErrNotFound when the id does not exist.
func (db *DB) UpdateBookingTx(ctx context.Context, tx *sql.Tx, id string, update models.BookingUpdate) error {
	setClause, args, err := bookingUpdateClause(update)
	if err != nil {
		return err
	}
	setClause = append(setClause, "updated_at = ?")
	args = append(args, fmtTime(nowUTC()), id)

	query := `UPDATE bookings SET ` + strings.Join(setClause, ", ") + ` WHERE id = ?`
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
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

// DeleteBookingTx removes a booking; its jobs go with it (ON DELETE CASCADE).
func (db *DB) DeleteBookingTx(ctx context.Context, tx *sql.Tx, id string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
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
