package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatusEvent is the message published when a payout transaction is
// created or moves to a new status.
type PayoutStatusEvent struct {
	PayoutID   uuid.UUID    `json:"payout_id"`
	UserID     uuid.UUID    `json:"user_id"`
	UserType   UserType     `json:"user_type"`
	FromStatus PayoutStatus `json:"from_status,omitempty"`
	ToStatus   PayoutStatus `json:"to_status"`
	Amount     int64        `json:"amount"`
	NetAmount  int64        `json:"net_amount"`
	Currency   string       `json:"currency"`
	AdminID    string       `json:"admin_id,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// DisputeEvent is the message published when a dispute opens or resolves.
type DisputeEvent struct {
	DisputeID  uuid.UUID     `json:"dispute_id"`
	PayoutID   uuid.UUID     `json:"payout_id"`
	UserID     uuid.UUID     `json:"user_id"`
	Status     DisputeStatus `json:"status"`
	Outcome    string        `json:"outcome,omitempty"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// EarningsCreditedEvent is the message published after a booking payment's
// earnings are credited into a user's summary.
type EarningsCreditedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	UserID     uuid.UUID `json:"user_id"`
	UserType   UserType  `json:"user_type"`
	Gross      int64     `json:"gross_amount"`
	Credited   int64     `json:"credited_amount"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}
