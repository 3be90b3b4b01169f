package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sailhaven/payout-service/internal/domain"
	"github.com/sailhaven/payout-service/internal/store"
)

type bookingConsumerRepoStub struct {
	store.Repository

	recordErr error
	recorded  []domain.BookingPayment
}

func (s *bookingConsumerRepoStub) RecordBookingPayment(ctx context.Context, p domain.BookingPayment) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, p)
	return nil
}

func TestHandleMessage_RecordsValidEvent(t *testing.T) {
	repo := &bookingConsumerRepoStub{}
	consumer := NewBookingPaymentConsumer(repo)

	event := BookingPaymentEvent{
		BookingID: uuid.New(),
		UserID:    uuid.New(),
		UserType:  domain.UserTypeProducer,
		Amount:    12500,
		Currency:  "USD",
		PaidAt:    time.Now().UTC(),
	}
	body, _ := json.Marshal(event)

	if ack := consumer.HandleMessage(body); !ack {
		t.Fatal("expected valid event to be acked")
	}
	if len(repo.recorded) != 1 {
		t.Fatalf("expected 1 recorded payment, got %d", len(repo.recorded))
	}
	if repo.recorded[0].BookingID != event.BookingID || repo.recorded[0].Amount != 12500 {
		t.Fatalf("recorded payment does not match the event: %+v", repo.recorded[0])
	}
}

func TestHandleMessage_DropsMalformedBody(t *testing.T) {
	repo := &bookingConsumerRepoStub{}
	consumer := NewBookingPaymentConsumer(repo)

	if ack := consumer.HandleMessage([]byte("{not json")); !ack {
		t.Fatal("malformed event must be dropped, not re-queued")
	}
	if len(repo.recorded) != 0 {
		t.Fatal("malformed event must not be recorded")
	}
}

func TestHandleMessage_DropsInvalidEvent(t *testing.T) {
	repo := &bookingConsumerRepoStub{}
	consumer := NewBookingPaymentConsumer(repo)

	event := BookingPaymentEvent{BookingID: uuid.New(), UserID: uuid.New(), Amount: 0}
	body, _ := json.Marshal(event)

	if ack := consumer.HandleMessage(body); !ack {
		t.Fatal("a zero-amount event must be dropped, not re-queued")
	}
	if len(repo.recorded) != 0 {
		t.Fatal("invalid event must not be recorded")
	}
}

func TestHandleMessage_RequeuesOnStoreFailure(t *testing.T) {
	repo := &bookingConsumerRepoStub{recordErr: errors.New("db down")}
	consumer := NewBookingPaymentConsumer(repo)

	event := BookingPaymentEvent{
		BookingID: uuid.New(),
		UserID:    uuid.New(),
		Amount:    500,
		Currency:  "USD",
		PaidAt:    time.Now().UTC(),
	}
	body, _ := json.Marshal(event)

	if ack := consumer.HandleMessage(body); ack {
		t.Fatal("a store failure must re-queue the event")
	}
}
