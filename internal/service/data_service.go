package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NicholasBarkolias/job-booking-expo/internal/database"
	"github.com/NicholasBarkolias/job-booking-expo/internal/domain"
	"github.com/NicholasBarkolias/job-booking-expo/internal/events"
	"github.com/NicholasBarkolias/job-booking-expo/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DataService serves all application reads and writes from the local store.
// Every mutation is persisted together with its pending operation in one
// transaction, so the local effect is visible immediately and the durable
// upload record exists before the call returns. Nothing here waits on the
// network.
type DataService struct {
	db       *database.DB
	eventBus domain.EventPublisher
	validate *validator.Validate
	nudge    func() // wakes the sync engine's upload loop; may be nil
	logger   *zerolog.Logger
}

func NewDataService(db *database.DB, eventBus domain.EventPublisher, nudge func(), logger *zerolog.Logger) *DataService {
	return &DataService{
		db:       db,
		eventBus: eventBus,
		validate: validator.New(),
		nudge:    nudge,
		logger:   logger,
	}
}

// Login resolves the user record for an email. Password verification belongs
// to the external auth collaborator, not this layer.
func (s *DataService) Login(ctx context.Context, email string) (*models.User, error) {
	return s.GetUserByEmail(ctx, email)
}

func (s *DataService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.db.GetUserByEmail(ctx, email)
}

func (s *DataService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.db.GetUserByID(ctx, id)
}

// CreateUser provisions a user locally; mirroring normally brings users in
// from the remote, this covers first-run provisioning.
func (s *DataService) CreateUser(ctx context.Context, email, name, tenantID, role string) (*models.User, error) {
	if email == "" {
		return nil, invalidField("email", "is required")
	}
	if tenantID == "" {
		return nil, invalidField("tenantId", "is required")
	}
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleAdmin && role != models.RoleUser {
		return nil, invalidField("role", fmt.Sprintf("unknown role %q", role))
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		TenantID:  tenantID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.captureMutation(ctx, models.EntityUser, user.ID, models.OpCreate, user, func(tx *sql.Tx) error {
		return s.db.CreateUserTx(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventUserCreated, user)
	return user, nil
}

// GetBookingsByTenantID returns a tenant's bookings, newest-created-first,
// each with its jobs populated.
func (s *DataService) GetBookingsByTenantID(ctx context.Context, tenantID string) ([]*models.Booking, error) {
	bookings, err := s.db.GetBookingsByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, booking := range bookings {
		jobs, err := s.db.GetJobsByBookingID(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		booking.Jobs = jobs
	}
	return bookings, nil
}

func (s *DataService) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := s.db.GetJobsByBookingID(ctx, id)
	if err != nil {
		return nil, err
	}
	booking.Jobs = jobs
	return booking, nil
}

func (s *DataService) GetJobsByBookingID(ctx context.Context, bookingID string) ([]models.Job, error) {
	return s.db.GetJobsByBookingID(ctx, bookingID)
}

func (s *DataService) CreateBooking(ctx context.Context, data models.NewBooking) (*models.Booking, error) {
	if err := s.validate.Struct(data); err != nil {
		return nil, asValidationError(err)
	}

	now := time.Now().UTC()
	booking := &models.Booking{
		ID:           uuid.NewString(),
		TenantID:     data.TenantID,
		CustomerID:   data.CustomerID,
		DueDate:      data.DueDate,
		TimeEstimate: data.TimeEstimate,
		Description:  data.Description,
		Quote:        data.Quote,
		Status:       models.BookingStatusPending,
		Photos:       emptyIfNil(data.Photos),
		CustomFields: emptyMapIfNil(data.CustomFields),
		Jobs:         []models.Job{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.captureMutation(ctx, models.EntityBooking, booking.ID, models.OpCreate, booking, func(tx *sql.Tx) error {
		return s.db.CreateBookingTx(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventBookingCreated, booking)
	return booking, nil
}

// UpdateBooking applies only the provided fields, refreshes updated_at and
// returns the full updated entity. id and createdAt cannot be modified; the
// update struct does not carry them.
func (s *DataService) UpdateBooking(ctx context.Context, id string, update models.BookingUpdate) (*models.Booking, error) {
	if update.Empty() {
		return nil, invalidField("", "no fields to update")
	}
	if err := s.validate.Struct(update); err != nil {
		return nil, asValidationError(err)
	}
	if update.Status != nil && !models.ValidBookingStatus(*update.Status) {
		return nil, invalidField("status", fmt.Sprintf("unknown booking status %q", *update.Status))
	}

	current, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Status != nil && !models.CanTransitionBooking(current.Status, *update.Status) {
		return nil, invalidField("status",
			fmt.Sprintf("cannot transition booking from %q to %q", current.Status, *update.Status))
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.UpdateBookingTx(ctx, tx, id, update); err != nil {
			return err
		}
		return s.capturePendingTx(ctx, tx, models.EntityBooking, id, models.OpUpdate, update)
	})
	if err != nil {
		return nil, err
	}
	s.wake()

	booking, err := s.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventBookingUpdated, booking)
	return booking, nil
}

func (s *DataService) CreateJob(ctx context.Context, data models.NewJob) (*models.Job, error) {
	if err := s.validate.Struct(data); err != nil {
		return nil, asValidationError(err)
	}
	// Jobs exist only as part of a booking.
	if _, err := s.db.GetBooking(ctx, data.BookingID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.NewString(),
		BookingID:   data.BookingID,
		Description: data.Description,
		Status:      models.JobStatusReceived,
		Photos:      emptyIfNil(data.Photos),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.captureMutation(ctx, models.EntityJob, job.ID, models.OpCreate, job, func(tx *sql.Tx) error {
		return s.db.CreateJobTx(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.EventJobCreated, job)
	return job, nil
}

func (s *DataService) UpdateJobStatus(ctx context.Context, jobID, status string) (*models.Job, error) {
	if !models.ValidJobStatus(status) {
		return nil, invalidField("status", fmt.Sprintf("unknown job status %q", status))
	}

	current, err := s.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionJob(current.Status, status) {
		return nil, invalidField("status",
			fmt.Sprintf("cannot transition job from %q to %q", current.Status, status))
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.db.UpdateJobStatusTx(ctx, tx, jobID, status); err != nil {
			return err
		}
		return s.capturePendingTx(ctx, tx, models.EntityJob, jobID, models.OpUpdate,
			map[string]string{"status": status})
	})
	if err != nil {
		return nil, err
	}
	s.wake()

	job, err := s.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.publish(events.EventJobStatusChanged, job)
	return job, nil
}

func (s *DataService) GetTimeSlots(ctx context.Context, date time.Time) ([]models.TimeSlot, error) {
	return s.db.GetTimeSlots(ctx, date)
}

// GetFailedOperations exposes terminally rejected mutations for user-visible
// resolution.
func (s *DataService) GetFailedOperations(ctx context.Context) ([]models.PendingOperation, error) {
	return s.db.GetFailedOps(ctx)
}

// RetryFailedOperation requeues a rejected mutation once the user has
// resolved the rejection.
func (s *DataService) RetryFailedOperation(ctx context.Context, id int64) error {
	if err := s.db.RequeueFailedOp(ctx, id); err != nil {
		return err
	}
	s.wake()
	return nil
}

// captureMutation persists the row and its pending operation atomically, then
// wakes the upload loop.
func (s *DataService) captureMutation(ctx context.Context, kind, id, opType string, payload interface{}, write func(tx *sql.Tx) error) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := write(tx); err != nil {
			return err
		}
		return s.capturePendingTx(ctx, tx, kind, id, opType, payload)
	})
	if err != nil {
		return err
	}
	s.wake()
	return nil
}

func (s *DataService) capturePendingTx(ctx context.Context, tx *sql.Tx, kind, id, opType string, payload interface{}) error {
	snapshot, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode pending payload: %w", err)
	}
	op := &models.PendingOperation{
		EntityKind: kind,
		EntityID:   id,
		OpType:     opType,
		Payload:    string(snapshot),
	}
	return s.db.CreatePendingOpTx(ctx, tx, op)
}

func (s *DataService) wake() {
	if s.nudge != nil {
		s.nudge()
	}
}

func (s *DataService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func asValidationError(err error) error {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		first := invalid[0]
		return &ValidationError{Field: first.Field(), Reason: fmt.Sprintf("failed %q constraint", first.Tag())}
	}
	return &ValidationError{Reason: err.Error()}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyMapIfNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
