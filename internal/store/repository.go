/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the payout-service needs. Defining an interface decouples the
 * business logic from the PostgreSQL implementation and lets tests substitute
 * an in-memory repository.
 *
 * Every method that spans a ledger bucket move plus a second record (payout
 * creation, status transition, dispute open/resolve, earnings credit) is a
 * single atomic unit inside the implementation: either both writes commit or
 * neither does.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/domain"
)

// BucketMove names the ledger movement applied alongside a payout status
// transition. MoveNone is used for transitions with no ledger effect.
type BucketMove string

const (
	MoveNone              BucketMove = "none"
	MoveSettle            BucketMove = "settle"
	MoveRelease           BucketMove = "release"
	MoveHold              BucketMove = "hold"
	MoveUnholdToPending   BucketMove = "unhold_to_pending"
	MoveUnholdToAvailable BucketMove = "unhold_to_available"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Settings
	GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error)
	UpdatePayoutSettings(ctx context.Context, settings *domain.PayoutSettings) error

	// Payout accounts
	CreatePayoutAccount(ctx context.Context, account *domain.PayoutAccount) error
	FindPayoutAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.PayoutAccount, error)
	FindPayoutAccount(ctx context.Context, userID uuid.UUID, method string) (*domain.PayoutAccount, error)
	FindPayoutAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.PayoutAccount, error)
	SetPayoutAccountVerification(ctx context.Context, accountID uuid.UUID, verified bool, notes *string) error
	DeactivatePayoutAccount(ctx context.Context, accountID uuid.UUID) error

	// Earnings summary
	FindEarningsSummary(ctx context.Context, userID uuid.UUID) (*domain.EarningsSummary, error)
	GetOrCreateEarningsSummary(ctx context.Context, userID uuid.UUID, userType domain.UserType, currency string) (*domain.EarningsSummary, error)

	// Payout transactions. CreatePayoutAtomic reserves the amount against the
	// user's available balance and inserts the transaction in one database
	// transaction; nothing is persisted when the reserve fails.
	CreatePayoutAtomic(ctx context.Context, payout *domain.PayoutTransaction) error
	FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutTransaction, error)
	ListPayouts(ctx context.Context, filter domain.TransactionFilter) ([]domain.PayoutTransaction, error)
	// TransitionPayoutStatus moves a payout from one status to another and
	// applies the matching ledger bucket move in the same database
	// transaction. The update is guarded on the expected current status, so a
	// concurrent transition makes this return ErrStatusConflict.
	TransitionPayoutStatus(ctx context.Context, payoutID uuid.UUID, from, to domain.PayoutStatus, move BucketMove, adminID string, notes *string) error

	// Disputes
	OpenDisputeAtomic(ctx context.Context, dispute *domain.PayoutDispute, payoutFrom domain.PayoutStatus) error
	FindDisputeByID(ctx context.Context, disputeID uuid.UUID) (*domain.PayoutDispute, error)
	FindOpenDisputeByPayoutID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutDispute, error)
	// ResolveDisputeAtomic claims the dispute row (its status doubles as the
	// completion marker), moves the held amount, and forces the parent payout
	// status, all in one database transaction. A repeat call returns
	// ErrAlreadyProcessed without moving funds.
	ResolveDisputeAtomic(ctx context.Context, disputeID uuid.UUID, outcome domain.DisputeStatus, resolution string, resolvedBy string, move BucketMove, payoutTo domain.PayoutStatus) error
	// FindResolvedDisputesWithHeldPayouts returns disputes whose row is
	// resolved but whose parent payout is still on hold. Used by the
	// reconcile job to re-drive a partially applied resolution.
	FindResolvedDisputesWithHeldPayouts(ctx context.Context) ([]domain.PayoutDispute, error)

	// Earnings calculation. CreditBookingEarningsAtomic flips the booking
	// payment's processed flag and credits the summary in one database
	// transaction; a booking already processed returns ErrAlreadyProcessed.
	// RecordBookingPayment is idempotent on booking id.
	RecordBookingPayment(ctx context.Context, payment domain.BookingPayment) error
	FindUnprocessedBookingPayments(ctx context.Context, userID *uuid.UUID, limit int) ([]domain.BookingPayment, error)
	CreditBookingEarningsAtomic(ctx context.Context, payment domain.BookingPayment, creditAmount int64) error
}
