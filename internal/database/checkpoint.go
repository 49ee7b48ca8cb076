package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"
)

// GetCheckpoint returns the sequence of the last remote change applied
// locally. Incoming-change consumption resumes from here after a restart.
func (db *DB) GetCheckpoint(ctx context.Context) (int64, error) {
	var lastSeq int64
	err := db.QueryRowContext(ctx, `SELECT last_seq FROM sync_checkpoint WHERE id = 1`).Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get sync checkpoint: %w", err)
	}
	return lastSeq, nil
}

// ApplyRemoteChanges applies a page of incoming changes and advances the
// checkpoint to nextSeq in one transaction. A crash between the two can
// therefore neither skip nor duplicate a change. Each upsert is guarded by
// the row's server_seq: the higher-sequence change wins regardless of the
// order the page delivers them in.
func (db *DB) ApplyRemoteChanges(ctx context.Context, changes []models.RemoteChange, nextSeq int64) (applied int, err error) {
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range changes {
			ok, applyErr := applyRemoteChange(ctx, tx, &changes[i])
			if applyErr != nil {
				return fmt.Errorf("failed to apply remote change seq=%d: %w", changes[i].Seq, applyErr)
			}
			if ok {
				applied++
			}
		}

		query := `UPDATE sync_checkpoint SET last_seq = ?, updated_at = ? WHERE id = 1 AND last_seq < ?`
		if _, err := tx.ExecContext(ctx, query, nextSeq, fmtTime(nowUTC()), nextSeq); err != nil {
			return fmt.Errorf("failed to advance sync checkpoint: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func applyRemoteChange(ctx context.Context, tx *sql.Tx, ch *models.RemoteChange) (bool, error) {
	if ch.Op == models.OpDelete {
		return deleteRemoteRow(ctx, tx, ch)
	}

	switch ch.Entity {
	case models.EntityUser:
		return upsertRemoteUser(ctx, tx, ch)
	case models.EntityBooking:
		return upsertRemoteBooking(ctx, tx, ch)
	case models.EntityJob:
		return upsertRemoteJob(ctx, tx, ch)
	case models.EntityTimeSlot:
		return upsertRemoteTimeSlot(ctx, tx, ch)
	default:
		return false, fmt.Errorf("unknown entity kind: %s", ch.Entity)
	}
}

func deleteRemoteRow(ctx context.Context, tx *sql.Tx, ch *models.RemoteChange) (bool, error) {
	var query string
	switch ch.Entity {
	case models.EntityUser:
		query = `DELETE FROM users WHERE id = ? AND server_seq < ?`
	case models.EntityBooking:
		query = `DELETE FROM bookings WHERE id = ? AND server_seq < ?`
	case models.EntityJob:
		query = `DELETE FROM jobs WHERE id = ? AND server_seq < ?`
	case models.EntityTimeSlot:
		query = `DELETE FROM time_slots WHERE id = ? AND server_seq < ?`
	default:
		return false, fmt.Errorf("unknown entity kind: %s", ch.Entity)
	}
	result, err := tx.ExecContext(ctx, query, ch.EntityID, ch.Seq)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func upsertRemoteUser(ctx context.Context, tx *sql.Tx, ch *models.RemoteChange) (bool, error) {
	var user models.User
	if err := json.Unmarshal(ch.Payload, &user); err != nil {
		return false, fmt.Errorf("decode user payload: %w", err)
	}
	user.ID = ch.EntityID

	query := `INSERT INTO users (id, email, name, tenant_id, role, server_seq, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  email = excluded.email,
                  name = excluded.name,
                  tenant_id = excluded.tenant_id,
                  role = excluded.role,
                  server_seq = excluded.server_seq,
                  updated_at = excluded.updated_at
              WHERE excluded.server_seq > users.server_seq`
	result, err := tx.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.TenantID, user.Role,
		ch.Seq, fmtTime(user.CreatedAt), fmtTime(user.UpdatedAt),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func upsertRemoteBooking(ctx context.Context, tx *sql.Tx, ch *models.RemoteChange) (bool, error) {
	var booking models.Booking
	if err := json.Unmarshal(ch.Payload, &booking); err != nil {
		return false, fmt.Errorf("decode booking payload: %w", err)
	}
	booking.ID = ch.EntityID

	photos, err := encodePhotos(booking.Photos)
	if err != nil {
		return false, err
	}
	custom, err := encodeCustomFields(booking.CustomFields)
	if err != nil {
		return false, err
	}
	var quote interface{}
	if booking.Quote != nil {
		quote = *booking.Quote
	}

	query := `INSERT INTO bookings (id, tenant_id, customer_id, due_date, time_estimate,
                  description, quote, status, photos, custom_fields, server_seq, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  tenant_id = excluded.tenant_id,
                  customer_id = excluded.customer_id,
                  due_date = excluded.due_date,
                  time_estimate = excluded.time_estimate,
                  description = excluded.description,
                  quote = excluded.quote,
                  status = excluded.status,
                  photos = excluded.photos,
                  custom_fields = excluded.custom_fields,
                  server_seq = excluded.server_seq,
                  updated_at = excluded.updated_at
              WHERE excluded.server_seq > bookings.server_seq`
	result, err := tx.ExecContext(ctx, query,
		booking.ID, booking.TenantID, booking.CustomerID, fmtTime(booking.DueDate),
		booking.TimeEstimate, booking.Description, quote, booking.Status,
		photos, custom, ch.Seq, fmtTime(booking.CreatedAt), fmtTime(booking.UpdatedAt),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func upsertRemoteJob(ctx context.Context, tx *sql.Tx, ch *models.RemoteChange) (bool, error) {
	var job models.Job
	if err := json.Unmarshal(ch.Payload, &job); err != nil {
		return false, fmt.Errorf("decode job payload: %w", err)
	}
	job.ID = ch.EntityID

	photos, err := encodePhotos(job.Photos)
	if err != nil {
		return false, err
	}

	query := `INSERT INTO jobs (id, booking_id, description, status, photos, server_seq, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  booking_id = excluded.booking_id,
                  description = excluded.description,
                  status = excluded.status,
                  photos = excluded.photos,
                  server_seq = excluded.server_seq,
                  updated_at = excluded.updated_at
              WHERE excluded.server_seq > jobs.server_seq`
	result, err := tx.ExecContext(ctx, query,
		job.ID, job.BookingID, job.Description, job.Status, photos,
		ch.Seq, fmtTime(job.CreatedAt), fmtTime(job.UpdatedAt),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func upsertRemoteTimeSlot(ctx context.Context, tx *sql.Tx, ch *models.RemoteChange) (bool, error) {
	var slot models.TimeSlot
	if err := json.Unmarshal(ch.Payload, &slot); err != nil {
		return false, fmt.Errorf("decode time slot payload: %w", err)
	}
	slot.ID = ch.EntityID

	query := `INSERT INTO time_slots (id, start_time, end_time, available, server_seq, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  start_time = excluded.start_time,
                  end_time = excluded.end_time,
                  available = excluded.available,
                  server_seq = excluded.server_seq,
                  updated_at = excluded.updated_at
              WHERE excluded.server_seq > time_slots.server_seq`
	result, err := tx.ExecContext(ctx, query,
		slot.ID, fmtTime(slot.StartTime), fmtTime(slot.EndTime), slot.Available,
		ch.Seq, fmtTime(slot.CreatedAt), fmtTime(slot.UpdatedAt),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
