/**
 * @description
 * This file contains the core business logic for the payout-service. The
 * `Service` struct owns the payout transaction state machine and drives
 * earnings-summary bucket moves in lockstep with every transition.
 *
 * Key features:
 * - Payout creation reserves funds and persists the transaction as one
 *   atomic unit; a failed reserve persists nothing.
 * - Status updates validate against the transition table before any write,
 *   short-circuit when the payout is already in the target status, and
 *   refuse mutation of terminal payouts.
 * - Publishes events to RabbitMQ for asynchronous processing by other
 *   services; publish failures never roll back ledger state.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/domain"
	"github.com/sailhaven/payout-service/internal/store"
	"github.com/sailhaven/payout-service/pkg/rabbitmq"
)

const eventsExchange = "sailhaven.events"

var (
	// ErrAccountNotVerified is returned when a payout references an account
	// that is inactive or unverified.
	ErrAccountNotVerified = errors.New("payout account is not active and verified")
	// ErrNotOwner is returned when a dispute is opened by a user that does
	// not own the payout.
	ErrNotOwner = errors.New("payout does not belong to this user")
	// ErrDisputeOpen is returned when a direct status update targets an
	// on-hold payout that has an unresolved dispute; the dispute resolution
	// path owns that ledger move.
	ErrDisputeOpen = errors.New("payout has an unresolved dispute")
	// ErrBelowMinimumPayout is returned when the requested amount is below
	// the platform's configured minimum.
	ErrBelowMinimumPayout = errors.New("amount is below the minimum payout amount")
	// ErrUnsupportedCurrency is returned when an account is registered in a
	// currency the platform does not pay out.
	ErrUnsupportedCurrency = errors.New("currency is not supported for payouts")
	// ErrUnsupportedMethod is returned when an account is registered with a
	// payout method the platform does not offer.
	ErrUnsupportedMethod = errors.New("payout method is not supported")
	// ErrInvalidAmount is returned for non-positive payout amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Service provides the core business logic for payouts, earnings, and disputes.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	rateLimiter   DisputeRateLimiter

	disputesPerHour int
}

// NewService creates a new payout service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher) *Service {
	return &Service{
		repo:            repo,
		eventProducer:   producer,
		disputesPerHour: 5,
	}
}

// SetDisputeRateLimiter installs an optional per-user rate limiter on
// dispute opening. Without one, dispute opening is not rate limited.
func (s *Service) SetDisputeRateLimiter(limiter DisputeRateLimiter, perHour int) {
	s.rateLimiter = limiter
	if perHour > 0 {
		s.disputesPerHour = perHour
	}
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSettings returns the platform payout policy.
func (s *Service) GetSettings(ctx context.Context) (*domain.PayoutSettings, error) {
	return s.repo.GetPayoutSettings(ctx)
}

// UpdateSettings replaces the platform payout policy wholesale. Admin-only;
// the caller id is stamped as updatedBy.
func (s *Service) UpdateSettings(ctx context.Context, settings *domain.PayoutSettings, adminID string) error {
	if settings.PlatformFeePercentage < 0 || settings.PlatformFeePercentage > 100 {
		return fmt.Errorf("platform fee percentage must be in [0,100], got %.2f", settings.PlatformFeePercentage)
	}
	if settings.MinimumPayoutAmount < 0 || settings.WithdrawalFee < 0 || settings.EarlyPayoutFee < 0 || settings.MaxRetryAttempts < 0 {
		return errors.New("settings amounts must be non-negative")
	}
	switch settings.PayoutSchedule {
	case "daily", "weekly", "biweekly", "monthly":
	default:
		return fmt.Errorf("unknown payout schedule %q", settings.PayoutSchedule)
	}
	settings.UpdatedBy = adminID
	return s.repo.UpdatePayoutSettings(ctx, settings)
}

// ---------------------------------------------------------------------------
// Payout accounts
// ---------------------------------------------------------------------------

// GetOrCreateAccount returns the user's active account for the given method,
// creating an unverified one when none exists. Creation also lazily creates
// the user's earnings summary.
func (s *Service) GetOrCreateAccount(ctx context.Context, userID uuid.UUID, userType domain.UserType, method, currency string, details map[string]string) (*domain.PayoutAccount, error) {
	if existing, err := s.repo.FindPayoutAccount(ctx, userID, method); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, err
	}

	settings, err := s.repo.GetPayoutSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout settings: %w", err)
	}
	if !settings.SupportsMethod(method) {
		return nil, ErrUnsupportedMethod
	}
	if !settings.SupportsCurrency(currency) {
		return nil, ErrUnsupportedCurrency
	}

	account := &domain.PayoutAccount{
		ID:             uuid.New(),
		UserID:         userID,
		UserType:       userType,
		Method:         method,
		AccountDetails: details,
		IsVerified:     false,
		IsActive:       true,
		Currency:       currency,
	}
	if err := s.repo.CreatePayoutAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrDuplicateAccount) {
			// Lost a creation race; the winner's account is the one to use.
			return s.repo.FindPayoutAccount(ctx, userID, method)
		}
		return nil, err
	}

	if _, err := s.repo.GetOrCreateEarningsSummary(ctx, userID, userType, currency); err != nil {
		log.Printf("level=warn component=payout_service msg=\"summary bootstrap failed\" user_id=%s err=%v", userID, err)
	}
	return account, nil
}

// ListAccounts returns the user's active payout accounts.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.PayoutAccount, error) {
	return s.repo.FindPayoutAccountsByUserID(ctx, userID)
}

// VerifyAccount marks an account verified or unverified. Admin-only.
func (s *Service) VerifyAccount(ctx context.Context, accountID uuid.UUID, verified bool, notes *string) error {
	return s.repo.SetPayoutAccountVerification(ctx, accountID, verified, notes)
}

// DeactivateAccount retires an account so new payouts can no longer use it.
func (s *Service) DeactivateAccount(ctx context.Context, accountID uuid.UUID) error {
	return s.repo.DeactivatePayoutAccount(ctx, accountID)
}

// ---------------------------------------------------------------------------
// Earnings summary
// ---------------------------------------------------------------------------

// GetSummary returns the user's earnings summary.
func (s *Service) GetSummary(ctx context.Context, userID uuid.UUID) (*domain.EarningsSummary, error) {
	return s.repo.FindEarningsSummary(ctx, userID)
}

// ---------------------------------------------------------------------------
// Transaction engine
// ---------------------------------------------------------------------------

// CreatePayout creates a payout transaction against the user's available
// balance. The reserve and the insert happen as one atomic unit inside the
// repository; on insufficient balance nothing is persisted.
func (s *Service) CreatePayout(ctx context.Context, userID, accountID uuid.UUID, amount int64, description string, bookingIDs []uuid.UUID) (*domain.PayoutTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.repo.FindPayoutAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, ErrNotOwner
	}
	if !account.Payable() {
		return nil, ErrAccountNotVerified
	}

	settings, err := s.repo.GetPayoutSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout settings: %w", err)
	}
	if amount < settings.MinimumPayoutAmount {
		return nil, ErrBelowMinimumPayout
	}

	fee := settings.PlatformFee(amount)
	initial := domain.StatusApproved
	if settings.RequireAdminApproval {
		initial = domain.StatusPending
	}

	payout := &domain.PayoutTransaction{
		ID:                uuid.New(),
		UserID:            userID,
		UserType:          account.UserType,
		AccountID:         account.ID,
		Amount:            amount,
		PlatformFee:       fee,
		NetAmount:         amount - fee,
		Currency:          account.Currency,
		Status:            initial,
		Description:       description,
		RelatedBookingIDs: bookingIDs,
	}

	if err := s.repo.CreatePayoutAtomic(ctx, payout); err != nil {
		return nil, err
	}

	log.Printf("level=info component=payout_service msg=\"payout created\" payout_id=%s user_id=%s amount=%d fee=%d status=%s",
		payout.ID, userID, amount, fee, initial)
	s.publishStatusEvent(ctx, payout, "", initial, "")

	return payout, nil
}

// bucketMoveFor maps a legal status transition to its ledger effect.
func bucketMoveFor(from, to domain.PayoutStatus) store.BucketMove {
	switch {
	case to == domain.StatusCompleted:
		return store.MoveSettle
	case to == domain.StatusRejected && from == domain.StatusOnHold:
		return store.MoveUnholdToAvailable
	case to == domain.StatusRejected:
		return store.MoveRelease
	case to == domain.StatusOnHold:
		return store.MoveHold
	case to == domain.StatusApproved && from == domain.StatusOnHold:
		return store.MoveUnholdToPending
	default:
		return store.MoveNone
	}
}

// UpdatePayoutStatus drives a payout through the state machine, applying the
// matching ledger move atomically with the status write.
//
// Retrying an already-applied transition is safe: when the payout is already
// in the target status the call is a no-op.
func (s *Service) UpdatePayoutStatus(ctx context.Context, payoutID uuid.UUID, target domain.PayoutStatus, adminID string, notes *string) error {
	if strings.TrimSpace(adminID) == "" {
		return errors.New("acting admin id is required")
	}

	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if payout.Status == target {
		return nil
	}
	if domain.IsTerminal(payout.Status) {
		return domain.ErrTerminalState
	}
	if !domain.CanTransition(payout.Status, target) {
		return domain.ErrInvalidStateTransition
	}

	// Leaving on_hold belongs to the dispute resolver while a dispute is
	// unresolved; a direct admin transition would strand or double-move the
	// held funds.
	if payout.Status == domain.StatusOnHold {
		if _, err := s.repo.FindOpenDisputeByPayoutID(ctx, payoutID); err == nil {
			return ErrDisputeOpen
		} else if !errors.Is(err, store.ErrDisputeNotFound) {
			return err
		}
	}

	move := bucketMoveFor(payout.Status, target)
	if err := s.repo.TransitionPayoutStatus(ctx, payoutID, payout.Status, target, move, adminID, notes); err != nil {
		return err
	}

	log.Printf("level=info component=payout_service msg=\"payout transitioned\" payout_id=%s from=%s to=%s admin_id=%s",
		payoutID, payout.Status, target, adminID)
	s.publishStatusEvent(ctx, payout, payout.Status, target, adminID)

	return nil
}

// GetPayout returns a payout transaction by id.
func (s *Service) GetPayout(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutTransaction, error) {
	return s.repo.FindPayoutByID(ctx, payoutID)
}

// ListPayouts returns payout transactions matching the filter.
func (s *Service) ListPayouts(ctx context.Context, filter domain.TransactionFilter) ([]domain.PayoutTransaction, error) {
	return s.repo.ListPayouts(ctx, filter)
}

func (s *Service) publishStatusEvent(ctx context.Context, payout *domain.PayoutTransaction, from, to domain.PayoutStatus, adminID string) {
	if s.eventProducer == nil {
		return
	}
	event := domain.PayoutStatusEvent{
		PayoutID:   payout.ID,
		UserID:     payout.UserID,
		UserType:   payout.UserType,
		FromStatus: from,
		ToStatus:   to,
		Amount:     payout.Amount,
		NetAmount:  payout.NetAmount,
		Currency:   payout.Currency,
		AdminID:    adminID,
		OccurredAt: time.Now().UTC(),
	}
	routingKey := "payout.status." + string(to)
	if from == "" {
		routingKey = "payout.created"
	}
	if err := s.eventProducer.Publish(ctx, eventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=payout_service msg=\"event publish failed\" routing_key=%s payout_id=%s err=%v",
			routingKey, payout.ID, err)
	}
}
