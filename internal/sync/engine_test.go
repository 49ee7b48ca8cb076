package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/database"
	"github.com/NicholasBarkolias/job-booking-expo/internal/domain"
	"github.com/NicholasBarkolias/job-booking-expo/internal/events"
	"github.com/NicholasBarkolias/job-booking-expo/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConnector scripts the remote side of a sync session.
type fakeConnector struct {
	uploadFn func(ctx context.Context, ops []models.PendingOperation) ([]domain.OpResult, error)
	pollFn   func(ctx context.Context, after int64, limit int) (domain.ChangePage, error)
	uploads  int
}

func (f *fakeConnector) FetchCredentials(ctx context.Context) (domain.Credentials, error) {
	return domain.Credentials{Endpoint: "fake", Token: "fake"}, nil
}

func (f *fakeConnector) Upload(ctx context.Context, ops []models.PendingOperation) ([]domain.OpResult, error) {
	f.uploads++
	if f.uploadFn == nil {
		return nil, nil
	}
	return f.uploadFn(ctx, ops)
}

func (f *fakeConnector) PollChanges(ctx context.Context, after int64, limit int) (domain.ChangePage, error) {
	if f.pollFn == nil {
		return domain.ChangePage{NextSeq: after}, nil
	}
	return f.pollFn(ctx, after, limit)
}

func setupEngine(t *testing.T, connector domain.Connector, redisClient *redis.Client) (*Engine, *database.DB) {
	t.Helper()
	logger := zerolog.New(os.Stdout)
	db, err := database.New(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := NewEngine(db, connector, events.NewEventBus(), redisClient, Options{
		UploadLimit:   10,
		DownloadLimit: 100,
		PollInterval:  time.Hour, // loops driven manually in tests
		Retry:         RetryPolicy{InitialDelay: time.Nanosecond, MaxDelay: time.Millisecond, BackoffFactor: 2},
	}, &logger)
	return engine, db
}

func queueBookingOp(t *testing.T, db *database.DB, entityID string) int64 {
	t.Helper()
	op := &models.PendingOperation{
		EntityKind: models.EntityBooking,
		EntityID:   entityID,
		OpType:     models.OpCreate,
		Payload:    `{"tenantId":"t1"}`,
	}
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return db.CreatePendingOpTx(context.Background(), tx, op)
	})
	require.NoError(t, err)
	return op.ID
}

func TestUploadOnce_TransportFailureThenSuccess(t *testing.T) {
	failures := 3
	connector := &fakeConnector{}
	connector.uploadFn = func(ctx context.Context, ops []models.PendingOperation) ([]domain.OpResult, error) {
		if connector.uploads <= failures {
			return nil, &TransportError{Err: errors.New("connection refused")}
		}
		results := make([]domain.OpResult, len(ops))
		for i, op := range ops {
			results[i] = domain.OpResult{OpID: op.ID, Accepted: true}
		}
		return results, nil
	}

	engine, db := setupEngine(t, connector, nil)
	ctx := context.Background()
	id := queueBookingOp(t, db, "b-1")

	for i := 0; i < failures; i++ {
		processed, err := engine.UploadOnce(ctx)
		require.Error(t, err)
		assert.True(t, IsTransport(err))
		assert.Zero(t, processed)

		// The entry survives every failed attempt.
		count, countErr := db.CountPendingOps(ctx)
		require.NoError(t, countErr)
		assert.Equal(t, 1, count)
		time.Sleep(time.Millisecond)
	}

	processed, err := engine.UploadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// Removed only after the remote acknowledged it.
	count, err := db.CountPendingOps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.ErrorIs(t, db.AckPendingOp(ctx, id), database.ErrNotFound)
}

func TestUploadOnce_RejectionIsTerminal(t *testing.T) {
	connector := &fakeConnector{}
	connector.uploadFn = func(ctx context.Context, ops []models.PendingOperation) ([]domain.OpResult, error) {
		results := make([]domain.OpResult, len(ops))
		for i, op := range ops {
			results[i] = domain.OpResult{OpID: op.ID, Accepted: false, Reason: "tenant mismatch"}
		}
		return results, nil
	}

	engine, db := setupEngine(t, connector, nil)
	ctx := context.Background()
	id := queueBookingOp(t, db, "b-1")

	processed, err := engine.UploadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// Never re-uploaded, but inspectable.
	ops, err := db.GetUploadableOps(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ops)

	failed, err := db.GetFailedOps(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, id, failed[0].ID)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "tenant mismatch", *failed[0].LastError)

	// With nothing uploadable the next batch never touches the network.
	processed, err = engine.UploadOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Equal(t, 1, connector.uploads)
}

func TestUploadOnce_MissingVerdictStaysQueued(t *testing.T) {
	connector := &fakeConnector{}
	connector.uploadFn = func(ctx context.Context, ops []models.PendingOperation) ([]domain.OpResult, error) {
		return nil, nil // remote answered but accounted for nothing
	}

	engine, db := setupEngine(t, connector, nil)
	ctx := context.Background()
	queueBookingOp(t, db, "b-1")

	processed, err := engine.UploadOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)

	count, err := db.CountPendingOps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUploadOnce_RejectionGoesToDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	connector := &fakeConnector{}
	connector.uploadFn = func(ctx context.Context, ops []models.PendingOperation) ([]domain.OpResult, error) {
		results := make([]domain.OpResult, len(ops))
		for i, op := range ops {
			results[i] = domain.OpResult{OpID: op.ID, Accepted: false, Reason: "schema drift"}
		}
		return results, nil
	}

	engine, db := setupEngine(t, connector, redisClient)
	ctx := context.Background()
	queueBookingOp(t, db, "b-1")

	_, err := engine.UploadOnce(ctx)
	require.NoError(t, err)

	entries, err := redisClient.LRange(ctx, "sync:deadletter", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var op models.PendingOperation
	require.NoError(t, json.Unmarshal([]byte(entries[0]), &op))
	assert.Equal(t, "b-1", op.EntityID)
}

func TestDownloadOnce_AppliesAndAdvances(t *testing.T) {
	payload, err := json.Marshal(models.Booking{
		TenantID: "t1", CustomerID: "customer-1",
		DueDate:      time.Date(2025, 11, 10, 10, 0, 0, 0, time.UTC),
		TimeEstimate: 60,
		Status:       models.BookingStatusConfirmed,
		CreatedAt:    time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	connector := &fakeConnector{}
	connector.pollFn = func(ctx context.Context, after int64, limit int) (domain.ChangePage, error) {
		if after >= 3 {
			return domain.ChangePage{NextSeq: after}, nil
		}
		return domain.ChangePage{
			Changes: []models.RemoteChange{{
				Entity: models.EntityBooking, EntityID: "b-remote",
				Op: models.OpCreate, Payload: payload, Seq: 3,
			}},
			NextSeq: 3,
		}, nil
	}

	engine, db := setupEngine(t, connector, nil)
	ctx := context.Background()

	applied, err := engine.DownloadOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	booking, err := db.GetBooking(ctx, "b-remote")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)

	seq, err := db.GetCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)

	// Caught up: the next poll is a no-op.
	applied, err = engine.DownloadOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestEngine_StartStop(t *testing.T) {
	connector := &fakeConnector{}
	engine, _ := setupEngine(t, connector, nil)

	engine.Start(context.Background())
	engine.Nudge()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		engine.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}
