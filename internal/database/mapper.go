package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"
)

// Row mapping between domain entities and their stored representation.
// Nested collections (photos, custom fields) are serialized to JSON text on
// write; a NULL or empty stored value decodes to an empty collection, never
// nil. Column translation is a fixed, explicit table per entity — unknown
// fields are rejected upstream, never passed through as raw column names.

// timeLayout is RFC3339 with a fixed-width fraction: stored timestamps must
// compare correctly as text (next_retry_at windows, ORDER BY created_at).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nowUTC() time.Time {
	return time.Now().UTC()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Rows mirrored from the remote may carry second precision only.
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}

func encodePhotos(photos []string) (string, error) {
	if photos == nil {
		photos = []string{}
	}
	data, err := json.Marshal(photos)
	if err != nil {
		return "", fmt.Errorf("encode photos: %w", err)
	}
	return string(data), nil
}

func decodePhotos(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return []string{}, nil
	}
	var photos []string
	if err := json.Unmarshal([]byte(raw.String), &photos); err != nil {
		return nil, fmt.Errorf("decode photos: %w", err)
	}
	if photos == nil {
		photos = []string{}
	}
	return photos, nil
}

func encodeCustomFields(fields map[string]string) (string, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode custom fields: %w", err)
	}
	return string(data), nil
}

func decodeCustomFields(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return map[string]string{}, nil
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(raw.String), &fields); err != nil {
		return nil, fmt.Errorf("decode custom fields: %w", err)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return fields, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user               models.User
		createdAt, updated string
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.TenantID, &user.Role, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse user created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse user updated_at: %w", err)
	}
	return &user, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                  models.Booking
		dueDate            string
		quote              sql.NullFloat64
		photos, custom     sql.NullString
		createdAt, updated string
	)
	err := row.Scan(
		&b.ID, &b.TenantID, &b.CustomerID, &dueDate, &b.TimeEstimate,
		&b.Description, &quote, &b.Status, &photos, &custom,
		&createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	if b.DueDate, err = parseTime(dueDate); err != nil {
		return nil, fmt.Errorf("parse booking due_date: %w", err)
	}
	if quote.Valid {
		q := quote.Float64
		b.Quote = &q
	}
	if b.Photos, err = decodePhotos(photos); err != nil {
		return nil, err
	}
	if b.CustomFields, err = decodeCustomFields(custom); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse booking created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse booking updated_at: %w", err)
	}
	b.Jobs = []models.Job{}
	return &b, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j                  models.Job
		photos             sql.NullString
		createdAt, updated string
	)
	err := row.Scan(&j.ID, &j.BookingID, &j.Description, &j.Status, &photos, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if j.Photos, err = decodePhotos(photos); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse job created_at: %w", err)
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse job updated_at: %w", err)
	}
	return &j, nil
}

func scanTimeSlot(row rowScanner) (*models.TimeSlot, error) {
	var (
		slot               models.TimeSlot
		start, end         string
		createdAt, updated string
	)
	err := row.Scan(&slot.ID, &start, &end, &slot.Available, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	if slot.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("parse time slot start_time: %w", err)
	}
	if slot.EndTime, err = parseTime(end); err != nil {
		return nil, fmt.Errorf("parse time slot end_time: %w", err)
	}
	if slot.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse time slot created_at: %w", err)
	}
	if slot.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse time slot updated_at: %w", err)
	}
	return &slot, nil
}

// bookingUpdateClause builds the SET clause for a partial booking update from
// the exhaustively enumerated field-to-column table. id and created_at are
// not enumerated and therefore cannot be touched.
func bookingUpdateClause(u models.BookingUpdate) (setClause []string, args []interface{}, err error) {
	if u.CustomerID != nil {
		setClause = append(setClause, "customer_id = ?")
		args = append(args, *u.CustomerID)
	}
	if u.DueDate != nil {
		setClause = append(setClause, "due_date = ?")
		args = append(args, fmtTime(*u.DueDate))
	}
	if u.TimeEstimate != nil {
		setClause = append(setClause, "time_estimate = ?")
		args = append(args, *u.TimeEstimate)
	}
	if u.Description != nil {
		setClause = append(setClause, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Quote != nil {
		setClause = append(setClause, "quote = ?")
		args = append(args, *u.Quote)
	}
	if u.Status != nil {
		setClause = append(setClause, "status = ?")
		args = append(args, *u.Status)
	}
	if u.Photos != nil {
		encoded, encErr := encodePhotos(*u.Photos)
		if encErr != nil {
			return nil, nil, encErr
		}
		setClause = append(setClause, "photos = ?")
		args = append(args, encoded)
	}
	if u.CustomFields != nil {
		encoded, encErr := encodeCustomFields(*u.CustomFields)
		if encErr != nil {
			return nil, nil, encErr
		}
		setClause = append(setClause, "custom_fields = ?")
		args = append(args, encoded)
	}
	if len(setClause) == 0 {
		return nil, nil, ErrNoFields
	}
	return setClause, args, nil
}
