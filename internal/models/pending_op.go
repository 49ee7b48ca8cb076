package models

import "time"

// PendingOperation is a locally captured mutation not yet confirmed by the
// remote backend. It is written in the same transaction as the row it
// describes and deleted only on acknowledgement.
type PendingOperation struct {
	ID           int64      `json:"id"`
	EntityKind   string     `json:"entity_kind"` // users, bookings, jobs, time_slots
	EntityID     string     `json:"entity_id"`
	OpType       string     `json:"op_type"` // create, update, delete
	Payload      string     `json:"payload"` // JSON snapshot of the row at capture time
	Status       string     `json:"status"`  // pending, retry, failed
	AttemptCount int        `json:"attempt_count"`
	LastError    *string    `json:"last_error"`
	CreatedAt    time.Time  `json:"created_at"`
	NextRetryAt  *time.Time `json:"next_retry_at"`
	ProcessedAt  *time.Time `json:"processed_at"`
}

// RemoteChange is one authoritative change received from the backend.
type RemoteChange struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id"`
	Op       string `json:"op"` // create/update collapse to upsert; delete removes
	Payload  []byte `json:"payload"`
	Seq      int64  `json:"seq"`
}
