package models

import "time"

type Booking struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenantId"`
	CustomerID   string            `json:"customerId"`
	DueDate      time.Time         `json:"dueDate"`
	TimeEstimate int               `json:"timeEstimate"` // minutes, positive
	Description  string            `json:"description"`
	Quote        *float64          `json:"quote,omitempty"` // non-negative when set
	Status       string            `json:"status"`          // pending, confirmed, in_progress, completed, cancelled
	Photos       []string          `json:"photos"`
	CustomFields map[string]string `json:"customFields"`
	Jobs         []Job             `json:"jobs"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// NewBooking describes the caller-supplied fields for booking creation.
// ID, status and timestamps are assigned by the data service.
type NewBooking struct {
	TenantID     string            `json:"tenantId" validate:"required"`
	CustomerID   string            `json:"customerId" validate:"required"`
	DueDate      time.Time         `json:"dueDate" validate:"required"`
	TimeEstimate int               `json:"timeEstimate" validate:"required,gt=0"`
	Description  string            `json:"description"`
	Quote        *float64          `json:"quote,omitempty" validate:"omitempty,gte=0"`
	Photos       []string          `json:"photos"`
	CustomFields map[string]string `json:"customFields"`
}

// BookingUpdate is a partial update: only non-nil fields are applied.
// ID and CreatedAt are not representable here and can never be modified.
type BookingUpdate struct {
	CustomerID   *string            `json:"customerId,omitempty"`
	DueDate      *time.Time         `json:"dueDate,omitempty"`
	TimeEstimate *int               `json:"timeEstimate,omitempty" validate:"omitempty,gt=0"`
	Description  *string            `json:"description,omitempty"`
	Quote        *float64           `json:"quote,omitempty" validate:"omitempty,gte=0"`
	Status       *string            `json:"status,omitempty"`
	Photos       *[]string          `json:"photos,omitempty"`
	CustomFields *map[string]string `json:"customFields,omitempty"`
}

// Empty reports whether the update carries no fields at all.
func (u BookingUpdate) Empty() bool {
	return u.CustomerID == nil && u.DueDate == nil && u.TimeEstimate == nil &&
		u.Description == nil && u.Quote == nil && u.Status == nil &&
		u.Photos == nil && u.CustomFields == nil
}
