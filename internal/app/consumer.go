/**
 * @description
 * Consumer for booking payment events published by the booking service. Each
 * completed booking payment is recorded for the earnings calculator to credit
 * on its next run. Recording is idempotent on the booking id, so replayed
 * events are harmless.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/domain"
	"github.com/sailhaven/payout-service/internal/store"
)

// BookingPaymentEvent is the message shape emitted on booking.payment.completed.
type BookingPaymentEvent struct {
	BookingID uuid.UUID       `json:"booking_id"`
	UserID    uuid.UUID       `json:"user_id"`
	UserType  domain.UserType `json:"user_type"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	PaidAt    time.Time       `json:"paid_at"`
}

// BookingPaymentConsumer records incoming booking payments for earnings processing.
type BookingPaymentConsumer struct {
	repo store.Repository
}

// NewBookingPaymentConsumer creates a consumer backed by the given repository.
func NewBookingPaymentConsumer(repo store.Repository) *BookingPaymentConsumer {
	return &BookingPaymentConsumer{repo: repo}
}

// BookingPaymentConsumer returns the consumer wired to the service's repository.
func (s *Service) BookingPaymentConsumer() *BookingPaymentConsumer {
	return NewBookingPaymentConsumer(s.repo)
}

// HandleMessage decodes and records one booking payment event. Returning
// false re-queues the message.
func (c *BookingPaymentConsumer) HandleMessage(body []byte) bool {
	var event BookingPaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=booking_consumer msg=\"malformed event; dropping\" err=%v", err)
		return true
	}
	if event.BookingID == uuid.Nil || event.UserID == uuid.Nil || event.Amount <= 0 {
		log.Printf("level=warn component=booking_consumer msg=\"invalid event; dropping\" booking_id=%s amount=%d", event.BookingID, event.Amount)
		return true
	}

	payment := domain.BookingPayment{
		BookingID: event.BookingID,
		UserID:    event.UserID,
		UserType:  event.UserType,
		Amount:    event.Amount,
		Currency:  event.Currency,
		PaidAt:    event.PaidAt,
	}
	if err := c.repo.RecordBookingPayment(context.Background(), payment); err != nil {
		log.Printf("level=error component=booking_consumer msg=\"record failed; re-queuing\" booking_id=%s err=%v", event.BookingID, err)
		return false
	}
	return true
}
