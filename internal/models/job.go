package models

import "time"

type Job struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"bookingId"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"` // received, in_progress, completed, on_hold, returned
	Photos      []string  `json:"photos"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewJob describes the caller-supplied fields for job creation.
type NewJob struct {
	BookingID   string   `json:"bookingId" validate:"required"`
	Description string   `json:"description"`
	Photos      []string `json:"photos"`
}

type TimeSlot struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
