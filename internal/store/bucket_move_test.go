package store

import (
	"errors"
	"testing"

	"github.com/sailhaven/payout-service/internal/domain"
)

func TestApplyBucketMove(t *testing.T) {
	tests := []struct {
		name          string
		move          BucketMove
		wantAvailable int64
		wantPending   int64
		wantOnHold    int64
		wantPaidOut   int64
	}{
		{"none leaves buckets untouched", MoveNone, 100, 200, 300, 0},
		{"settle moves pending to paid out", MoveSettle, 100, 150, 300, 50},
		{"release returns pending to available", MoveRelease, 150, 150, 300, 0},
		{"hold moves pending to on hold", MoveHold, 100, 150, 350, 0},
		{"unhold to pending", MoveUnholdToPending, 100, 250, 250, 0},
		{"unhold to available", MoveUnholdToAvailable, 150, 200, 250, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &domain.EarningsSummary{
				TotalEarnings:    600,
				AvailableBalance: 100,
				PendingBalance:   200,
				OnHoldBalance:    300,
			}
			if err := applyBucketMove(s, tt.move, 50); err != nil {
				t.Fatalf("applyBucketMove(%s) returned error: %v", tt.move, err)
			}
			if s.AvailableBalance != tt.wantAvailable || s.PendingBalance != tt.wantPending ||
				s.OnHoldBalance != tt.wantOnHold || s.TotalPaidOut != tt.wantPaidOut {
				t.Fatalf("after %s: available=%d pending=%d on_hold=%d paid_out=%d",
					tt.move, s.AvailableBalance, s.PendingBalance, s.OnHoldBalance, s.TotalPaidOut)
			}
			if err := s.CheckInvariant(); err != nil {
				t.Fatalf("invariant broken after %s: %v", tt.move, err)
			}
		})
	}
}

func TestApplyBucketMove_UnderflowDoesNotMutate(t *testing.T) {
	s := &domain.EarningsSummary{TotalEarnings: 100, PendingBalance: 10}
	if err := applyBucketMove(s, MoveSettle, 50); !errors.Is(err, domain.ErrBucketUnderflow) {
		t.Fatalf("expected ErrBucketUnderflow, got %v", err)
	}
	if s.PendingBalance != 10 || s.TotalPaidOut != 0 {
		t.Fatalf("failed move must not mutate: pending=%d paid_out=%d", s.PendingBalance, s.TotalPaidOut)
	}
}

func TestApplyBucketMove_UnknownMove(t *testing.T) {
	s := &domain.EarningsSummary{}
	if err := applyBucketMove(s, BucketMove("teleport"), 1); err == nil {
		t.Fatal("expected error for unknown bucket move")
	}
}
