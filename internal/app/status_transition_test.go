package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/domain"
	"github.com/sailhaven/payout-service/internal/store"
)

type statusTransitionRepoStub struct {
	store.Repository

	payout      *domain.PayoutTransaction
	openDispute *domain.PayoutDispute

	transitionCalled bool
	transitionFrom   domain.PayoutStatus
	transitionTo     domain.PayoutStatus
	transitionMove   store.BucketMove
	transitionErr    error
}

func (s *statusTransitionRepoStub) FindPayoutByID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutTransaction, error) {
	if s.payout == nil {
		return nil, store.ErrPayoutNotFound
	}
	return s.payout, nil
}

func (s *statusTransitionRepoStub) FindOpenDisputeByPayoutID(ctx context.Context, payoutID uuid.UUID) (*domain.PayoutDispute, error) {
	if s.openDispute == nil {
		return nil, store.ErrDisputeNotFound
	}
	return s.openDispute, nil
}

func (s *statusTransitionRepoStub) TransitionPayoutStatus(ctx context.Context, payoutID uuid.UUID, from, to domain.PayoutStatus, move store.BucketMove, adminID string, notes *string) error {
	s.transitionCalled = true
	s.transitionFrom = from
	s.transitionTo = to
	s.transitionMove = move
	return s.transitionErr
}

func payoutInStatus(status domain.PayoutStatus) *domain.PayoutTransaction {
	return &domain.PayoutTransaction{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Amount: 1000,
		Status: status,
	}
}

func TestBucketMoveFor(t *testing.T) {
	tests := []struct {
		name string
		from domain.PayoutStatus
		to   domain.PayoutStatus
		want store.BucketMove
	}{
		{"completion settles", domain.StatusProcessing, domain.StatusCompleted, store.MoveSettle},
		{"rejection releases the reserve", domain.StatusPending, domain.StatusRejected, store.MoveRelease},
		{"rejection from approved releases", domain.StatusApproved, domain.StatusRejected, store.MoveRelease},
		{"rejection from hold returns to available", domain.StatusOnHold, domain.StatusRejected, store.MoveUnholdToAvailable},
		{"holding moves pending to on hold", domain.StatusProcessing, domain.StatusOnHold, store.MoveHold},
		{"resuming from hold returns to pending", domain.StatusOnHold, domain.StatusApproved, store.MoveUnholdToPending},
		{"approval has no ledger effect", domain.StatusPending, domain.StatusApproved, store.MoveNone},
		{"starting processing has no ledger effect", domain.StatusApproved, domain.StatusProcessing, store.MoveNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bucketMoveFor(tt.from, tt.to); got != tt.want {
				t.Fatalf("bucketMoveFor(%s, %s) = %s, want %s", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestUpdatePayoutStatus_HappyPathUsesGuardedTransition(t *testing.T) {
	repo := &statusTransitionRepoStub{payout: payoutInStatus(domain.StatusProcessing)}
	svc := NewService(repo, nil)

	err := svc.UpdatePayoutStatus(context.Background(), repo.payout.ID, domain.StatusCompleted, "admin-1", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.transitionCalled {
		t.Fatal("expected repository transition to run")
	}
	if repo.transitionFrom != domain.StatusProcessing || repo.transitionTo != domain.StatusCompleted {
		t.Fatalf("transition guarded on %s->%s", repo.transitionFrom, repo.transitionTo)
	}
	if repo.transitionMove != store.MoveSettle {
		t.Fatalf("completion must settle the pending amount, got %s", repo.transitionMove)
	}
}

func TestUpdatePayoutStatus_SameStatusIsNoOp(t *testing.T) {
	repo := &statusTransitionRepoStub{payout: payoutInStatus(domain.StatusApproved)}
	svc := NewService(repo, nil)

	if err := svc.UpdatePayoutStatus(context.Background(), repo.payout.ID, domain.StatusApproved, "admin-1", nil); err != nil {
		t.Fatalf("retrying an applied transition must succeed, got %v", err)
	}
	if repo.transitionCalled {
		t.Fatal("no repository write expected for a no-op retry")
	}
}

func TestUpdatePayoutStatus_TerminalPayoutIsImmutable(t *testing.T) {
	for _, status := range []domain.PayoutStatus{domain.StatusCompleted, domain.StatusRejected} {
		repo := &statusTransitionRepoStub{payout: payoutInStatus(status)}
		svc := NewService(repo, nil)

		err := svc.UpdatePayoutStatus(context.Background(), repo.payout.ID, domain.StatusApproved, "admin-1", nil)
		if !errors.Is(err, domain.ErrTerminalState) {
			t.Fatalf("expected ErrTerminalState from %s, got %v", status, err)
		}
		if repo.transitionCalled {
			t.Fatalf("terminal payout in %s must not reach the repository", status)
		}
	}
}

func TestUpdatePayoutStatus_InvalidTransitionRejected(t *testing.T) {
	repo := &statusTransitionRepoStub{payout: payoutInStatus(domain.StatusPending)}
	svc := NewService(repo, nil)

	err := svc.UpdatePayoutStatus(context.Background(), repo.payout.ID, domain.StatusCompleted, "admin-1", nil)
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
	if repo.transitionCalled {
		t.Fatal("invalid transition must not reach the repository")
	}
}

func TestUpdatePayoutStatus_OpenDisputeBlocksLeavingHold(t *testing.T) {
	payout := payoutInStatus(domain.StatusOnHold)
	repo := &statusTransitionRepoStub{
		payout: payout,
		openDispute: &domain.PayoutDispute{
			ID:       uuid.New(),
			PayoutID: payout.ID,
			Status:   domain.DisputeOpen,
		},
	}
	svc := NewService(repo, nil)

	err := svc.UpdatePayoutStatus(context.Background(), payout.ID, domain.StatusApproved, "admin-1", nil)
	if !errors.Is(err, ErrDisputeOpen) {
		t.Fatalf("expected ErrDisputeOpen, got %v", err)
	}
	if repo.transitionCalled {
		t.Fatal("held funds must stay with the dispute resolver")
	}
}

func TestUpdatePayoutStatus_HoldWithoutDisputeCanResume(t *testing.T) {
	repo := &statusTransitionRepoStub{payout: payoutInStatus(domain.StatusOnHold)}
	svc := NewService(repo, nil)

	if err := svc.UpdatePayoutStatus(context.Background(), repo.payout.ID, domain.StatusApproved, "admin-1", nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if repo.transitionMove != store.MoveUnholdToPending {
		t.Fatalf("resuming from hold must return funds to pending, got %s", repo.transitionMove)
	}
}

func TestUpdatePayoutStatus_RequiresAdminID(t *testing.T) {
	repo := &statusTransitionRepoStub{payout: payoutInStatus(domain.StatusPending)}
	svc := NewService(repo, nil)

	if err := svc.UpdatePayoutStatus(context.Background(), repo.payout.ID, domain.StatusApproved, "  ", nil); err == nil {
		t.Fatal("expected error for missing admin id")
	}
}

func TestUpdatePayoutStatus_StatusConflictSurfaces(t *testing.T) {
	repo := &statusTransitionRepoStub{
		payout:        payoutInStatus(domain.StatusApproved),
		transitionErr: store.ErrStatusConflict,
	}
	svc := NewService(repo, nil)

	err := svc.UpdatePayoutStatus(context.Background(), repo.payout.ID, domain.StatusProcessing, "admin-1", nil)
	if !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
}
