package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/queue"
	"github.com/joinspot/reservation-api/internal/service"
)

func TestReservationConfirmedPublishesEvent(t *testing.T) {
	var got queue.ReservationConfirmedEvent
	n := &service.ReservationNotifier{
		Publish: func(_ context.Context, ev queue.ReservationConfirmedEvent) error {
			got = ev
			return nil
		},
	}

	activity := model.Activity{ID: 7, OwnerID: 10, Title: "Pottery Workshop", PriceCents: 2000}
	intent := "pi_pub"
	ticket := model.Ticket{ID: 3, UserID: 42, ActivityID: 7, Quantity: 3, Code: "AB12CD34", PaymentIntentID: &intent}

	n.ReservationConfirmed(context.Background(), activity, ticket)

	require.Equal(t, uint64(3), got.TicketID)
	assert.Equal(t, "AB12CD34", got.Code)
	assert.Equal(t, uint64(10), got.OwnerID)
	assert.Equal(t, int64(6000), got.AmountCents)
	assert.Equal(t, "pi_pub", got.PaymentIntent)
	assert.NotEmpty(t, got.ConfirmedAt)
}

func TestReservationConfirmedSwallowsPublishError(t *testing.T) {
	n := &service.ReservationNotifier{
		Publish: func(context.Context, queue.ReservationConfirmedEvent) error {
			return errors.New("broker unreachable")
		},
	}

	assert.NotPanics(t, func() {
		n.ReservationConfirmed(context.Background(), model.Activity{ID: 1, Title: "Trail Run"}, model.Ticket{ID: 1, UserID: 2, Quantity: 1})
	})
}
