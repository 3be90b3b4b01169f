/**
 * @description
 * Dispute lifecycle logic. A dispute suspends its parent payout's reserved
 * funds into the on-hold bucket; resolving it routes the funds back and
 * forces the parent payout's status, as one atomic unit in the repository.
 *
 * ReconcileResolvedDisputes is the recovery path: it re-drives the ledger and
 * status effects for any dispute that is marked resolved while its parent
 * payout is still on hold. Re-driving is idempotent because the payout
 * transition is guarded on the on_hold status.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/domain"
	"github.com/sailhaven/payout-service/internal/store"
)

// DisputeRateLimiter bounds how often a single user can open disputes.
type DisputeRateLimiter interface {
	Allow(ctx context.Context, userID string, limitPerHour int) (bool, error)
}

// ErrDisputeRateLimited is returned when a user opens disputes too quickly.
var ErrDisputeRateLimited = errors.New("too many disputes opened; try again later")

// OpenDispute creates a dispute on the user's own payout and forces the
// payout into on_hold, moving the reserved amount into the on-hold bucket.
// The payout must be in a status that allows holding (approved, processing).
func (s *Service) OpenDispute(ctx context.Context, payoutID, userID uuid.UUID, reason string) (*domain.PayoutDispute, error) {
	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.Allow(ctx, userID.String(), s.disputesPerHour)
		if err != nil {
			log.Printf("level=warn component=dispute_resolver msg=\"rate limiter unavailable; allowing\" user_id=%s err=%v", userID, err)
		} else if !allowed {
			return nil, ErrDisputeRateLimited
		}
	}

	payout, err := s.repo.FindPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.UserID != userID {
		return nil, ErrNotOwner
	}
	if domain.IsTerminal(payout.Status) {
		return nil, domain.ErrTerminalState
	}
	if payout.Status == domain.StatusOnHold {
		return nil, ErrDisputeOpen
	}
	if !domain.CanTransition(payout.Status, domain.StatusOnHold) {
		return nil, domain.ErrInvalidStateTransition
	}

	dispute := &domain.PayoutDispute{
		ID:       uuid.New(),
		PayoutID: payout.ID,
		UserID:   payout.UserID,
		UserType: payout.UserType,
		Reason:   reason,
		Amount:   payout.Amount,
		Currency: payout.Currency,
		Status:   domain.DisputeOpen,
	}

	if err := s.repo.OpenDisputeAtomic(ctx, dispute, payout.Status); err != nil {
		return nil, err
	}

	log.Printf("level=info component=dispute_resolver msg=\"dispute opened\" dispute_id=%s payout_id=%s user_id=%s amount=%d",
		dispute.ID, payout.ID, userID, payout.Amount)
	s.publishDisputeEvent(ctx, dispute, "payout.dispute.opened", "")

	return dispute, nil
}

// disputeOutcomeEffects maps a resolution outcome to the ledger move and the
// forced parent payout status.
func disputeOutcomeEffects(outcome domain.DisputeStatus) (store.BucketMove, domain.PayoutStatus, error) {
	switch outcome {
	case domain.DisputeResolved:
		// Resolved in the payee's favor: the payout proceeds from approved.
		return store.MoveUnholdToPending, domain.StatusApproved, nil
	case domain.DisputeRejected:
		// The payout is cancelled; funds return to the spendable balance.
		return store.MoveUnholdToAvailable, domain.StatusRejected, nil
	default:
		return store.MoveNone, "", errors.New("outcome must be resolved or rejected")
	}
}

// ResolveDispute applies the three resolution effects as one atomic unit:
// the dispute row is claimed (completion marker), the held amount moves back
// to pending or available, and the parent payout is forced to approved or
// rejected. Re-resolving an already resolved dispute returns
// store.ErrAlreadyProcessed without moving funds.
func (s *Service) ResolveDispute(ctx context.Context, disputeID uuid.UUID, resolution string, outcome domain.DisputeStatus, adminID string) error {
	move, payoutTo, err := disputeOutcomeEffects(outcome)
	if err != nil {
		return err
	}

	if err := s.repo.ResolveDisputeAtomic(ctx, disputeID, outcome, resolution, adminID, move, payoutTo); err != nil {
		return err
	}

	log.Printf("level=info component=dispute_resolver msg=\"dispute resolved\" dispute_id=%s outcome=%s admin_id=%s",
		disputeID, outcome, adminID)

	if dispute, err := s.repo.FindDisputeByID(ctx, disputeID); err == nil {
		s.publishDisputeEvent(ctx, dispute, "payout.dispute.resolved", string(outcome))
	}
	return nil
}

// ReconcileResolvedDisputes re-drives the payout status and ledger move for
// disputes that were marked resolved without the rest of the resolution
// landing. Safe to run repeatedly; a payout no longer on hold is skipped.
func (s *Service) ReconcileResolvedDisputes(ctx context.Context) (int, error) {
	stuck, err := s.repo.FindResolvedDisputesWithHeldPayouts(ctx)
	if err != nil {
		return 0, err
	}

	redriven := 0
	for _, dispute := range stuck {
		move, payoutTo, err := disputeOutcomeEffects(dispute.Status)
		if err != nil {
			log.Printf("level=error component=dispute_resolver msg=\"unexpected dispute outcome during reconcile\" dispute_id=%s status=%s",
				dispute.ID, dispute.Status)
			continue
		}
		resolvedBy := "reconcile"
		if dispute.ResolvedBy != nil {
			resolvedBy = *dispute.ResolvedBy
		}
		err = s.repo.TransitionPayoutStatus(ctx, dispute.PayoutID, domain.StatusOnHold, payoutTo, move, resolvedBy, nil)
		if err != nil {
			if errors.Is(err, store.ErrStatusConflict) {
				continue
			}
			log.Printf("level=error component=dispute_resolver msg=\"reconcile transition failed\" dispute_id=%s payout_id=%s err=%v",
				dispute.ID, dispute.PayoutID, err)
			continue
		}
		redriven++
		log.Printf("level=info component=dispute_resolver msg=\"re-drove resolved dispute\" dispute_id=%s payout_id=%s to=%s",
			dispute.ID, dispute.PayoutID, payoutTo)
	}
	return redriven, nil
}

// GetDispute returns a dispute by id.
func (s *Service) GetDispute(ctx context.Context, disputeID uuid.UUID) (*domain.PayoutDispute, error) {
	return s.repo.FindDisputeByID(ctx, disputeID)
}

func (s *Service) publishDisputeEvent(ctx context.Context, dispute *domain.PayoutDispute, routingKey, outcome string) {
	if s.eventProducer == nil {
		return
	}
	event := domain.DisputeEvent{
		DisputeID:  dispute.ID,
		PayoutID:   dispute.PayoutID,
		UserID:     dispute.UserID,
		Status:     dispute.Status,
		Outcome:    outcome,
		Amount:     dispute.Amount,
		Currency:   dispute.Currency,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, eventsExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=dispute_resolver msg=\"event publish failed\" routing_key=%s dispute_id=%s err=%v",
			routingKey, dispute.ID, err)
	}
}
