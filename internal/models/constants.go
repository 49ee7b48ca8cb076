package models

// Booking statuses.
const (
	BookingStatusPending    = "pending"
	BookingStatusConfirmed  = "confirmed"
	BookingStatusInProgress = "in_progress"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

// Job statuses.
const (
	JobStatusReceived   = "received"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusOnHold     = "on_hold"
	JobStatusReturned   = "returned"
)

// User roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Pending operation statuses in the local queue.
const (
	OpStatusPending = "pending"
	OpStatusRetry   = "retry"
	OpStatusFailed  = "failed"
)

// Pending operation types.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Entity kinds recorded in pending operations and remote changes.
const (
	EntityUser     = "users"
	EntityBooking  = "bookings"
	EntityJob      = "jobs"
	EntityTimeSlot = "time_slots"
)

const (
	// DefaultUploadLimit ops per upload batch
	DefaultUploadLimit = 50

	// DefaultDownloadLimit changes per poll
	DefaultDownloadLimit = 500

	// DefaultPollIntervalSeconds pause between empty polls
	DefaultPollIntervalSeconds = 5

	// DefaultRemoteTimeoutSeconds bound on any single remote call
	DefaultRemoteTimeoutSeconds = 30
)

// BookingStatuses enumerates valid booking statuses.
var BookingStatuses = []string{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusInProgress,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

// JobStatuses enumerates valid job statuses.
var JobStatuses = []string{
	JobStatusReceived,
	JobStatusInProgress,
	JobStatusCompleted,
	JobStatusOnHold,
	JobStatusReturned,
}

// ValidBookingStatus reports whether s is one of the enumerated booking statuses.
func ValidBookingStatus(s string) bool {
	for _, v := range BookingStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ValidJobStatus reports whether s is one of the enumerated job statuses.
func ValidJobStatus(s string) bool {
	for _, v := range JobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// bookingTransitions lists the statuses reachable from each booking status.
// Cancellation is allowed from any non-terminal state; nothing moves backward.
var bookingTransitions = map[string][]string{
	BookingStatusPending:    {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed:  {BookingStatusInProgress, BookingStatusCancelled},
	BookingStatusInProgress: {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted:  {},
	BookingStatusCancelled:  {},
}

// jobTransitions lists the statuses reachable from each job status.
// on_hold and returned are side branches from in_progress; on_hold may resume.
var jobTransitions = map[string][]string{
	JobStatusReceived:   {JobStatusInProgress},
	JobStatusInProgress: {JobStatusCompleted, JobStatusOnHold, JobStatusReturned},
	JobStatusOnHold:     {JobStatusInProgress},
	JobStatusCompleted:  {},
	JobStatusReturned:   {},
}

// CanTransitionBooking reports whether a booking may move from one status to another.
func CanTransitionBooking(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionJob reports whether a job may move from one status to another.
func CanTransitionJob(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
