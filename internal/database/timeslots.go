package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"
)

const timeSlotColumns = `id, start_time, end_time, available, created_at, updated_at`

func (db *DB) CreateTimeSlotTx(ctx context.Context, tx *sql.Tx, slot *models.TimeSlot) error {
	query := `INSERT INTO time_slots (id, start_time, end_time, available, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, query,
		slot.ID,
		fmtTime(slot.StartTime),
		fmtTime(slot.EndTime),
		slot.Available,
		fmtTime(slot.CreatedAt),
		fmtTime(slot.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create time slot: %w", err)
	}
	return nil
}

// GetTimeSlots returns all slots whose start falls on the given calendar
// date (UTC), ordered by start time.
func (db *DB) GetTimeSlots(ctx context.Context, date time.Time) ([]models.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots
              WHERE date(start_time) = date(?) ORDER BY start_time`
	rows, err := db.QueryContext(ctx, query, date.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to get time slots: %w", err)
	}
	defer rows.Close()

	slots := []models.TimeSlot{}
	for rows.Next() {
		slot, err := scanTimeSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time slot: %w", err)
		}
		slots = append(slots, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read time slots: %w", err)
	}
	return slots, nil
}
