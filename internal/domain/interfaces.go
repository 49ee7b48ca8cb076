package domain

import (
	"context"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/models"
)

// DataService is the read/write API consumed by the application layer. Every
// operation completes against the local store; none of them waits on the
// remote backend.
type DataService interface {
	Login(ctx context.Context, email string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, email, name, tenantID, role string) (*models.User, error)

	GetBookingsByTenantID(ctx context.Context, tenantID string) ([]*models.Booking, error)
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	CreateBooking(ctx context.Context, data models.NewBooking) (*models.Booking, error)
	UpdateBooking(ctx context.Context, id string, update models.BookingUpdate) (*models.Booking, error)

	GetJobsByBookingID(ctx context.Context, bookingID string) ([]models.Job, error)
	CreateJob(ctx context.Context, data models.NewJob) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID, status string) (*models.Job, error)

	GetTimeSlots(ctx context.Context, date time.Time) ([]models.TimeSlot, error)

	GetFailedOperations(ctx context.Context) ([]models.PendingOperation, error)
	RetryFailedOperation(ctx context.Context, id int64) error
}

// Credentials authorize a sync session against the remote backend. The token
// is opaque to the engine.
type Credentials struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
}

// OpResult is the remote's per-operation verdict for an uploaded mutation.
type OpResult struct {
	OpID     int64  `json:"op_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ChangePage is one page of authoritative changes from the remote backend.
// NextSeq is the watermark to resume from once the page is applied.
type ChangePage struct {
	Changes []models.RemoteChange `json:"changes"`
	NextSeq int64                 `json:"next_seq"`
}

// Connector is the narrow, replaceable boundary to the remote backend. Any
// backend implementing it is usable by the sync engine.
type Connector interface {
	FetchCredentials(ctx context.Context) (Credentials, error)
	Upload(ctx context.Context, ops []models.PendingOperation) ([]OpResult, error)
	PollChanges(ctx context.Context, after int64, limit int) (ChangePage, error)
}

// EventPublisher fans mutation and sync events out to in-process consumers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
