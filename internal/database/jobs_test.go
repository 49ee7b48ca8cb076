package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(id, bookingID string, createdAt time.Time) *models.Job {
	return &models.Job{
		ID:        id,
		BookingID: bookingID,
		Status:    models.JobStatusReceived,
		Photos:    []string{},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCreateJobTx_RequiresBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.CreateJobTx(ctx, tx, testJob("j-1", "missing-booking", time.Now().UTC()))
	})
	assert.Error(t, err)
}

func TestGetJobsByBookingID_CreationOrder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	base := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.CreateBooking(ctx, testBooking("b-1", "t1", base)))

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.CreateJobTx(ctx, tx, testJob("j-2", "b-1", base.Add(time.Minute))); err != nil {
			return err
		}
		return db.CreateJobTx(ctx, tx, testJob("j-1", "b-1", base))
	})
	require.NoError(t, err)

	jobs, err := db.GetJobsByBookingID(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j-1", jobs[0].ID)
	assert.Equal(t, "j-2", jobs[1].ID)
}

func TestGetJobsByBookingID_EmptyIsNotNil(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	jobs, err := db.GetJobsByBookingID(context.Background(), "no-such-booking")
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestUpdateJobStatusTx(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	created := time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.CreateBooking(ctx, testBooking("b-1", "t1", created)))
	require.NoError(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.CreateJobTx(ctx, tx, testJob("j-1", "b-1", created))
	}))

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.UpdateJobStatusTx(ctx, tx, "j-1", models.JobStatusInProgress)
	})
	require.NoError(t, err)

	job, err := db.GetJob(ctx, "j-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, job.Status)
	assert.True(t, job.UpdatedAt.After(created))

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.UpdateJobStatusTx(ctx, tx, "missing", models.JobStatusCompleted)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
