package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/domain"
	"github.com/sailhaven/payout-service/internal/store"
)

type createPayoutRepoStub struct {
	store.Repository

	account  *domain.PayoutAccount
	settings *domain.PayoutSettings

	createErr     error
	createCalled  bool
	createdPayout *domain.PayoutTransaction
}

func (s *createPayoutRepoStub) FindPayoutAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.PayoutAccount, error) {
	if s.account == nil {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *createPayoutRepoStub) GetPayoutSettings(ctx context.Context) (*domain.PayoutSettings, error) {
	return s.settings, nil
}

func (s *createPayoutRepoStub) CreatePayoutAtomic(ctx context.Context, p *domain.PayoutTransaction) error {
	s.createCalled = true
	if s.createErr != nil {
		return s.createErr
	}
	s.createdPayout = p
	return nil
}

func defaultSettings() *domain.PayoutSettings {
	return &domain.PayoutSettings{
		MinimumPayoutAmount:   100,
		PlatformFeePercentage: 10,
		RequireAdminApproval:  true,
		PayoutMethods:         []string{"bank_transfer"},
		SupportedCurrencies:   []string{"USD"},
		PayoutSchedule:        "weekly",
	}
}

func verifiedAccount(userID uuid.UUID) *domain.PayoutAccount {
	return &domain.PayoutAccount{
		ID:         uuid.New(),
		UserID:     userID,
		UserType:   domain.UserTypeProducer,
		Method:     "bank_transfer",
		Currency:   "USD",
		IsActive:   true,
		IsVerified: true,
	}
}

func TestCreatePayout_AppliesFeeAndStartsPending(t *testing.T) {
	userID := uuid.New()
	repo := &createPayoutRepoStub{
		account:  verifiedAccount(userID),
		settings: defaultSettings(),
	}
	svc := NewService(repo, nil)

	payout, err := svc.CreatePayout(context.Background(), userID, repo.account.ID, 1000, "weekly payout", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if payout.PlatformFee != 100 {
		t.Fatalf("expected fee 100 on 1000 at 10%%, got %d", payout.PlatformFee)
	}
	if payout.NetAmount != 900 {
		t.Fatalf("expected net 900, got %d", payout.NetAmount)
	}
	if payout.Status != domain.StatusPending {
		t.Fatalf("expected pending with admin approval required, got %s", payout.Status)
	}
	if payout.Currency != "USD" || payout.UserType != domain.UserTypeProducer {
		t.Fatalf("expected currency and user type inherited from the account, got %s %s",
			payout.Currency, payout.UserType)
	}
}

func TestCreatePayout_StartsApprovedWithoutAdminApproval(t *testing.T) {
	userID := uuid.New()
	settings := defaultSettings()
	settings.RequireAdminApproval = false
	repo := &createPayoutRepoStub{account: verifiedAccount(userID), settings: settings}
	svc := NewService(repo, nil)

	payout, err := svc.CreatePayout(context.Background(), userID, repo.account.ID, 1000, "", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if payout.Status != domain.StatusApproved {
		t.Fatalf("expected approved without admin approval, got %s", payout.Status)
	}
}

func TestCreatePayout_InsufficientBalanceSurfacesUnchanged(t *testing.T) {
	userID := uuid.New()
	repo := &createPayoutRepoStub{
		account:   verifiedAccount(userID),
		settings:  defaultSettings(),
		createErr: store.ErrInsufficientBalance,
	}
	svc := NewService(repo, nil)

	_, err := svc.CreatePayout(context.Background(), userID, repo.account.ID, 1000, "", nil)
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if repo.createdPayout != nil {
		t.Fatal("no payout must be recorded when the reserve fails")
	}
}

func TestCreatePayout_RejectsBelowMinimum(t *testing.T) {
	userID := uuid.New()
	repo := &createPayoutRepoStub{account: verifiedAccount(userID), settings: defaultSettings()}
	svc := NewService(repo, nil)

	_, err := svc.CreatePayout(context.Background(), userID, repo.account.ID, 99, "", nil)
	if !errors.Is(err, ErrBelowMinimumPayout) {
		t.Fatalf("expected ErrBelowMinimumPayout, got %v", err)
	}
	if repo.createCalled {
		t.Fatal("repository must not be touched for a below-minimum amount")
	}
}

func TestCreatePayout_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(&createPayoutRepoStub{}, nil)
	for _, amount := range []int64{0, -500} {
		if _, err := svc.CreatePayout(context.Background(), uuid.New(), uuid.New(), amount, "", nil); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for amount %d, got %v", amount, err)
		}
	}
}

func TestCreatePayout_RejectsUnverifiedAccount(t *testing.T) {
	userID := uuid.New()
	account := verifiedAccount(userID)
	account.IsVerified = false
	repo := &createPayoutRepoStub{account: account, settings: defaultSettings()}
	svc := NewService(repo, nil)

	_, err := svc.CreatePayout(context.Background(), userID, account.ID, 1000, "", nil)
	if !errors.Is(err, ErrAccountNotVerified) {
		t.Fatalf("expected ErrAccountNotVerified, got %v", err)
	}
}

func TestCreatePayout_RejectsForeignAccount(t *testing.T) {
	owner := uuid.New()
	repo := &createPayoutRepoStub{account: verifiedAccount(owner), settings: defaultSettings()}
	svc := NewService(repo, nil)

	_, err := svc.CreatePayout(context.Background(), uuid.New(), repo.account.ID, 1000, "", nil)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}
