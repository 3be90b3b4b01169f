package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/domain"
	"github.com/sailhaven/payout-service/internal/store"
)

type earningsRepoStub struct {
	store.Repository

	settings *domain.PayoutSettings
	payments []domain.BookingPayment

	creditErrs map[uuid.UUID]error
	credited   map[uuid.UUID]int64
}

func (s *earningsRepoStub) GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error) {
	return s.settings, nil
}

func (s *earningsRepoStub) FindUnprocessedBookingPayments(ctx context.Context, userID *uuid.UUID, limit int) ([]domain.BookingPayment, error) {
	if userID == nil {
		return s.payments, nil
	}
	var filtered []domain.BookingPayment
	for _, p := range s.payments {
		if p.UserID == *userID {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *earningsRepoStub) CreditBookingEarningsAtomic(ctx context.Context, payment domain.BookingPayment, creditAmount int64) error {
	if err := s.creditErrs[payment.BookingID]; err != nil {
		return err
	}
	if s.credited == nil {
		s.credited = map[uuid.UUID]int64{}
	}
	s.credited[payment.BookingID] = creditAmount
	return nil
}

func bookingPayment(userID uuid.UUID, amount int64) domain.BookingPayment {
	return domain.BookingPayment{
		BookingID: uuid.New(),
		UserID:    userID,
		UserType:  domain.UserTypeProducer,
		Amount:    amount,
		Currency:  "USD",
		PaidAt:    time.Now().UTC(),
	}
}

func TestCalculateEarnings_CreditsNetShare(t *testing.T) {
	userID := uuid.New()
	payment := bookingPayment(userID, 10000)
	repo := &earningsRepoStub{
		settings: &domain.PayoutSettings{PlatformFeePercentage: 10},
		payments: []domain.BookingPayment{payment},
	}
	svc := NewService(repo, nil)

	credited, err := svc.CalculateEarnings(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if credited != 1 {
		t.Fatalf("expected 1 credited booking, got %d", credited)
	}
	if got := repo.credited[payment.BookingID]; got != 9000 {
		t.Fatalf("expected net credit 9000 on 10000 at 10%%, got %d", got)
	}
}

func TestCalculateEarnings_SkipsAlreadyProcessed(t *testing.T) {
	userID := uuid.New()
	raced := bookingPayment(userID, 5000)
	fresh := bookingPayment(userID, 3000)
	repo := &earningsRepoStub{
		settings:   &domain.PayoutSettings{PlatformFeePercentage: 10},
		payments:   []domain.BookingPayment{raced, fresh},
		creditErrs: map[uuid.UUID]error{raced.BookingID: store.ErrAlreadyProcessed},
	}
	svc := NewService(repo, nil)

	credited, err := svc.CalculateEarnings(context.Background(), nil)
	if err != nil {
		t.Fatalf("a lost idempotency race must not fail the run, got %v", err)
	}
	if credited != 1 {
		t.Fatalf("expected 1 credited booking, got %d", credited)
	}
	if _, ok := repo.credited[raced.BookingID]; ok {
		t.Fatal("already-processed booking must not be credited again")
	}
}

func TestCalculateEarnings_FiltersByUser(t *testing.T) {
	target := uuid.New()
	other := uuid.New()
	repo := &earningsRepoStub{
		settings: &domain.PayoutSettings{PlatformFeePercentage: 0},
		payments: []domain.BookingPayment{
			bookingPayment(target, 1000),
			bookingPayment(other, 2000),
		},
	}
	svc := NewService(repo, nil)

	credited, err := svc.CalculateEarnings(context.Background(), &target)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if credited != 1 {
		t.Fatalf("expected only the target user's booking, got %d", credited)
	}
}

func TestCalculateEarnings_StopsOnRepositoryError(t *testing.T) {
	userID := uuid.New()
	broken := bookingPayment(userID, 1000)
	repo := &earningsRepoStub{
		settings:   &domain.PayoutSettings{PlatformFeePercentage: 10},
		payments:   []domain.BookingPayment{broken},
		creditErrs: map[uuid.UUID]error{broken.BookingID: errors.New("db down")},
	}
	svc := NewService(repo, nil)

	if _, err := svc.CalculateEarnings(context.Background(), nil); err == nil {
		t.Fatal("expected repository error to surface")
	}
}
