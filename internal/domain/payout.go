/**
 * @description
 * This file defines the core domain models for the payout-service: platform
 * payout settings, payout destination accounts, per-user earnings summaries,
 * payout transactions, and disputes. These structs map directly to their
 * database tables and are shared across the store, app, and api layers.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents),
 *   which avoids floating-point inaccuracies with financial data.
 * - PayoutStatus is a closed type with an explicit transition table instead
 *   of free-form status strings compared across handlers.
 */

package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// PayoutStatus is the lifecycle state of a payout transaction.
type PayoutStatus string

const (
	StatusPending    PayoutStatus = "pending"
	StatusApproved   PayoutStatus = "approved"
	StatusProcessing PayoutStatus = "processing"
	StatusCompleted  PayoutStatus = "completed"
	StatusRejected   PayoutStatus = "rejected"
	StatusOnHold     PayoutStatus = "on_hold"
)

// DisputeStatus is the lifecycle state of a payout dispute.
type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeRejected    DisputeStatus = "rejected"
)

// UserType distinguishes the two kinds of payees on the platform.
type UserType string

const (
	UserTypeProducer UserType = "producer"
	UserTypePartner  UserType = "partner"
)

var (
	// ErrInvalidStateTransition is returned when a status move is not in the
	// transition table. Nothing is mutated when it is returned.
	ErrInvalidStateTransition = errors.New("invalid payout status transition")
	// ErrTerminalState is returned for any mutation attempted on a completed
	// or rejected transaction, or on an already resolved dispute.
	ErrTerminalState = errors.New("payout transaction is in a terminal state")
	// ErrBucketUnderflow is returned when a ledger operation would drive one
	// of the summary balance buckets negative.
	ErrBucketUnderflow = errors.New("ledger bucket would go negative")
)

// payoutTransitions is the closed set of legal status moves. A transition is
// legal iff transitions[from] contains to.
var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	StatusPending:    {StatusApproved, StatusRejected},
	StatusApproved:   {StatusProcessing, StatusRejected, StatusOnHold},
	StatusProcessing: {StatusCompleted, StatusOnHold},
	StatusOnHold:     {StatusApproved, StatusRejected},
}

// CanTransition reports whether moving a payout from one status to another is
// allowed by the state machine.
func CanTransition(from, to PayoutStatus) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status PayoutStatus) bool {
	return status == StatusCompleted || status == StatusRejected
}

// ValidStatus reports whether the given string names a known payout status.
func ValidStatus(s string) bool {
	switch PayoutStatus(s) {
	case StatusPending, StatusApproved, StatusProcessing, StatusCompleted, StatusRejected, StatusOnHold:
		return true
	}
	return false
}

// PayoutSettings is the singleton platform payout policy. It is read by every
// component and mutated only wholesale by an authorized admin.
type PayoutSettings struct {
	MinimumPayoutAmount     int64     `json:"minimum_payout_amount"` // in cents
	PlatformFeePercentage   float64   `json:"platform_fee_percentage"`
	AutomaticPayoutsEnabled bool      `json:"automatic_payouts_enabled"`
	RequireAdminApproval    bool      `json:"require_admin_approval"`
	PayoutMethods           []string  `json:"payout_methods"`
	SupportedCurrencies     []string  `json:"supported_currencies"`
	PayoutSchedule          string    `json:"payout_schedule"` // daily|weekly|biweekly|monthly
	WithdrawalFee           int64     `json:"withdrawal_fee"`  // in cents
	EarlyPayoutFee          int64     `json:"early_payout_fee"`
	MaxRetryAttempts        int       `json:"max_retry_attempts"`
	UpdatedAt               time.Time `json:"updated_at"`
	UpdatedBy               string    `json:"updated_by"`
}

// SupportsCurrency reports whether the platform pays out in the given currency.
func (s *PayoutSettings) SupportsCurrency(currency string) bool {
	for _, c := range s.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// SupportsMethod reports whether the platform pays out via the given method.
func (s *PayoutSettings) SupportsMethod(method string) bool {
	for _, m := range s.PayoutMethods {
		if m == method {
			return true
		}
	}
	return false
}

// PlatformFee computes the fee withheld from a payout of the given amount.
// The result is rounded to the nearest cent.
func (s *PayoutSettings) PlatformFee(amount int64) int64 {
	return int64(math.Round(float64(amount) * s.PlatformFeePercentage / 100))
}

// EarningsShare computes the payee's share of a booking payment after the
// platform fee is withheld.
func (s *PayoutSettings) EarningsShare(paymentAmount int64) int64 {
	return paymentAmount - s.PlatformFee(paymentAmount)
}

// PayoutAccount is a verified destination a user's payouts move into. Account
// details are opaque to the ledger; accounts are deactivated, never deleted.
type PayoutAccount struct {
	ID             uuid.UUID         `json:"id"`
	UserID         uuid.UUID         `json:"user_id"`
	UserType       UserType          `json:"user_type"`
	Method         string            `json:"method"`
	AccountDetails map[string]string `json:"account_details"`
	IsVerified     bool              `json:"is_verified"`
	IsActive       bool              `json:"is_active"`
	Currency       string            `json:"currency"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Payable reports whether a transaction may reference this account.
func (a *PayoutAccount) Payable() bool {
	return a.IsActive && a.IsVerified
}

// EarningsSummary is the per-user system of record for earned money and the
// state it is in. The four buckets plus lifetime totals must satisfy, after
// every mutation:
//
//	availableBalance + pendingBalance + onHoldBalance <= totalEarnings
//
// with every monetary field non-negative.
type EarningsSummary struct {
	UserID           uuid.UUID `json:"user_id"`
	UserType         UserType  `json:"user_type"`
	TotalEarnings    int64     `json:"total_earnings"`
	TotalPaidOut     int64     `json:"total_paid_out"`
	PendingBalance   int64     `json:"pending_balance"`
	AvailableBalance int64     `json:"available_balance"`
	OnHoldBalance    int64     `json:"on_hold_balance"`
	Currency         string    `json:"currency"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// Credit adds newly earned money: it grows the lifetime total and the
// spendable balance together.
func (e *EarningsSummary) Credit(amount int64) error {
	if amount <= 0 {
		return errors.New("credit amount must be positive")
	}
	e.TotalEarnings += amount
	e.AvailableBalance += amount
	return nil
}

// Reserve moves amount from available to pending when a payout is created.
func (e *EarningsSummary) Reserve(amount int64) error {
	if e.AvailableBalance < amount {
		return ErrBucketUnderflow
	}
	e.AvailableBalance -= amount
	e.PendingBalance += amount
	return nil
}

// Settle moves amount from pending to paid-out when a payout completes.
func (e *EarningsSummary) Settle(amount int64) error {
	if e.PendingBalance < amount {
		return ErrBucketUnderflow
	}
	e.PendingBalance -= amount
	e.TotalPaidOut += amount
	return nil
}

// Release returns amount from pending to available when a payout is rejected
// or abandoned before completion.
func (e *EarningsSummary) Release(amount int64) error {
	if e.PendingBalance < amount {
		return ErrBucketUnderflow
	}
	e.PendingBalance -= amount
	e.AvailableBalance += amount
	return nil
}

// Hold moves amount from pending to on-hold while a dispute is open.
func (e *EarningsSummary) Hold(amount int64) error {
	if e.PendingBalance < amount {
		return ErrBucketUnderflow
	}
	e.PendingBalance -= amount
	e.OnHoldBalance += amount
	return nil
}

// UnholdToPending moves amount back from on-hold to pending after a dispute
// is resolved in the payee's favor.
func (e *EarningsSummary) UnholdToPending(amount int64) error {
	if e.OnHoldBalance < amount {
		return ErrBucketUnderflow
	}
	e.OnHoldBalance -= amount
	e.PendingBalance += amount
	return nil
}

// UnholdToAvailable moves amount back from on-hold to available after a
// dispute cancels the payout.
func (e *EarningsSummary) UnholdToAvailable(amount int64) error {
	if e.OnHoldBalance < amount {
		return ErrBucketUnderflow
	}
	e.OnHoldBalance -= amount
	e.AvailableBalance += amount
	return nil
}

// CheckInvariant verifies the summary's balance invariant. Store
// implementations call this before committing a mutation.
func (e *EarningsSummary) CheckInvariant() error {
	if e.AvailableBalance < 0 || e.PendingBalance < 0 || e.OnHoldBalance < 0 || e.TotalPaidOut < 0 || e.TotalEarnings < 0 {
		return ErrBucketUnderflow
	}
	if e.AvailableBalance+e.PendingBalance+e.OnHoldBalance > e.TotalEarnings {
		return errors.New("balance buckets exceed total earnings")
	}
	return nil
}

// PayoutTransaction is a single payout request moving through the state
// machine. Amount, account, and user are immutable after creation; only
// status, notes, and the timestamp fields mutate.
type PayoutTransaction struct {
	ID                uuid.UUID    `json:"id"`
	UserID            uuid.UUID    `json:"user_id"`
	UserType          UserType     `json:"user_type"`
	AccountID         uuid.UUID    `json:"account_id"`
	Amount            int64        `json:"amount"` // in cents, gross
	PlatformFee       int64        `json:"platform_fee"`
	NetAmount         int64        `json:"net_amount"`
	Currency          string       `json:"currency"`
	Status            PayoutStatus `json:"status"`
	Description       string       `json:"description"`
	Notes             *string      `json:"notes,omitempty"`
	RelatedBookingIDs []uuid.UUID  `json:"related_booking_ids"`
	AdminID           *string      `json:"admin_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	ProcessedAt       *time.Time   `json:"processed_at,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
}

// PayoutDispute contests a payout while its parent transaction is on hold.
// Resolving it always resolves the parent's status as one logical unit.
type PayoutDispute struct {
	ID         uuid.UUID     `json:"id"`
	PayoutID   uuid.UUID     `json:"payout_id"`
	UserID     uuid.UUID     `json:"user_id"`
	UserType   UserType      `json:"user_type"`
	Reason     string        `json:"reason"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency"`
	Status     DisputeStatus `json:"status"`
	Resolution *string       `json:"resolution,omitempty"`
	ResolvedBy *string       `json:"resolved_by,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

// BookingPayment is the completed charter payment the earnings calculator
// consumes. The earnings_processed flag is the idempotency key: each booking
// payment is credited at most once.
type BookingPayment struct {
	BookingID uuid.UUID `json:"booking_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserType  UserType  `json:"user_type"`
	Amount    int64     `json:"amount"` // in cents, gross booking payment
	Currency  string    `json:"currency"`
	PaidAt    time.Time `json:"paid_at"`
	Processed bool      `json:"earnings_processed"`
}

// TransactionFilter narrows listTransactions results.
type TransactionFilter struct {
	UserID *uuid.UUID
	Status *PayoutStatus
	From   *time.Time
	To     *time.Time
	Limit  int
}
