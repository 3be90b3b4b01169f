/**
 * @description
 * Earnings calculator: credits each completed booking payment into the
 * payee's earnings summary exactly once. The booking id is the idempotency
 * key — the repository flips the booking's processed flag and applies the
 * credit in one database transaction, so a retry after partial failure can
 * never double-credit.
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

const earningsBatchSize = 500

// CalculateEarnings credits all unprocessed completed booking payments.
// When userID is non-nil only that user's bookings are processed. Returns
// the number of bookings credited. Safe to invoke repeatedly from the
// scheduler or the internal endpoint.
func (s *Service) CalculateEarnings(ctx context.Context, userID *uuid.UUID) (int, error) {
	settings, err := s.repo.GetPayoutSettings(ctx)
	if err != nil {
		return 0, err
	}

	payments, err := s.repo.FindUnprocessedBookingPayments(ctx, userID, earningsBatchSize)
	if err != nil {
		return 0, err
	}

	credited := 0
	for _, payment := range payments {
		amount := settings.EarningsShare(payment.Amount)
		if amount <= 0 {
			log.Printf("level=warn component=earnings_calculator msg=\"zero earnings share; skipping\" booking_id=%s gross=%d fee_pct=%.2f",
				payment.BookingID, payment.Amount, settings.PlatformFeePercentage)
			continue
		}

		err := s.repo.CreditBookingEarningsAtomic(ctx, payment, amount)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyProcessed) {
				// A concurrent run credited this booking first.
				continue
			}
			return credited, err
		}
		credited++

		if s.eventProducer != nil {
			event := domain.EarningsCreditedEvent{
				BookingID:  payment.BookingID,
				UserID:     payment.UserID,
				UserType:   payment.UserType,
				Gross:      payment.Amount,
				Credited:   amount,
				Currency:   payment.Currency,
				OccurredAt: time.Now().UTC(),
			}
			if err := s.eventProducer.Publish(ctx, eventsExchange, "earnings.credited", event); err != nil {
				log.Printf("level=warn component=earnings_calculator msg=\"event publish failed\" booking_id=%s err=%v",
					payment.BookingID, err)
			}
		}
	}

	if credited > 0 {
		log.Printf("level=info component=earnings_calculator msg=\"earnings credited\" bookings=%d", credited)
	}
	return credited, nil
}
