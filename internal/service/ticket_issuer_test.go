package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/repository"
	"github.com/joinspot/reservation-api/internal/service"
	"github.com/joinspot/reservation-api/internal/testutil"
)

type recordingNotifier struct {
	mu      sync.Mutex
	tickets []model.Ticket
}

func (n *recordingNotifier) ReservationConfirmed(_ context.Context, _ model.Activity, ticket model.Ticket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tickets = append(n.tickets, ticket)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tickets)
}

func seedActivity(store *testutil.MemStore, seats int64, priceCents int64) model.Activity {
	a := model.Activity{
		ID:         1,
		OwnerID:    10,
		Title:      "Sunset Kayak Tour",
		PriceCents: priceCents,
		Seat:       seats,
	}
	store.AddActivity(a)
	return a
}

func strPtr(s string) *string { return &s }

func TestIssueFreeReservation(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 5, 0)
	issuer := service.NewTicketIssuer(store, nil)

	res, err := issuer.Issue(context.Background(), service.IssueInput{
		UserID:     42,
		ActivityID: 1,
		Quantity:   2,
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyIssued)
	assert.NotZero(t, res.Ticket.ID)
	assert.Len(t, res.Ticket.Code, 8)
	assert.Nil(t, res.Ticket.PaymentIntentID)
	assert.Equal(t, int64(3), store.Seats(1))
}

func TestIssueInvalidQuantity(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 5, 0)
	issuer := service.NewTicketIssuer(store, nil)

	for _, qty := range []int64{0, -1} {
		_, err := issuer.Issue(context.Background(), service.IssueInput{UserID: 42, ActivityID: 1, Quantity: qty})
		assert.ErrorIs(t, err, service.ErrInvalidQuantity)
	}
	assert.Equal(t, int64(5), store.Seats(1))
	assert.Equal(t, 0, store.TicketCount())
}

func TestIssueActivityNotFound(t *testing.T) {
	store := testutil.NewMemStore()
	issuer := service.NewTicketIssuer(store, nil)

	_, err := issuer.Issue(context.Background(), service.IssueInput{UserID: 42, ActivityID: 99, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrActivityNotFound)
}

func TestIssueInsufficientSeats(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 2, 2000)
	issuer := service.NewTicketIssuer(store, nil)

	_, err := issuer.Issue(context.Background(), service.IssueInput{
		UserID:          42,
		ActivityID:      1,
		Quantity:        3,
		PaymentIntentID: strPtr("pi_oversell"),
	})
	require.ErrorIs(t, err, repository.ErrInsufficientSeats)
	assert.Equal(t, int64(2), store.Seats(1), "a rejected reservation must not touch inventory")
	assert.Equal(t, 0, store.TicketCount())
}

func TestIssueIdempotentPerPaymentIntent(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 5, 2000)
	issuer := service.NewTicketIssuer(store, nil)

	in := service.IssueInput{UserID: 42, ActivityID: 1, Quantity: 3, PaymentIntentID: strPtr("pi_123")}
	first, err := issuer.Issue(context.Background(), in)
	require.NoError(t, err)
	require.False(t, first.AlreadyIssued)

	second, err := issuer.Issue(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.AlreadyIssued)
	assert.Equal(t, first.Ticket.ID, second.Ticket.ID)
	assert.Equal(t, first.Ticket.Code, second.Ticket.Code)

	assert.Equal(t, 1, store.TicketCount())
	assert.Equal(t, int64(2), store.Seats(1), "seats decremented once, not twice")
}

func TestIssueConcurrentSameIntent(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 5, 2000)
	issuer := service.NewTicketIssuer(store, nil)

	in := service.IssueInput{UserID: 42, ActivityID: 1, Quantity: 3, PaymentIntentID: strPtr("pi_race")}

	const callers = 8
	results := make([]service.IssueResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = issuer.Issue(context.Background(), in)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if !results[i].AlreadyIssued {
			fresh++
		}
		assert.Equal(t, results[0].Ticket.ID, results[i].Ticket.ID)
	}
	assert.Equal(t, 1, fresh, "exactly one caller creates the ticket")
	assert.Equal(t, 1, store.TicketCount())
	assert.Equal(t, int64(2), store.Seats(1))
}

func TestIssueConcurrentOversell(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 2, 2000)
	issuer := service.NewTicketIssuer(store, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			intent := "pi_oversell_" + string(rune('a'+i))
			_, errs[i] = issuer.Issue(context.Background(), service.IssueInput{
				UserID:          uint64(100 + i),
				ActivityID:      1,
				Quantity:        2,
				PaymentIntentID: strPtr(intent),
			})
		}(i)
	}
	wg.Wait()

	won, lost := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, repository.ErrInsufficientSeats):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, int64(0), store.Seats(1), "inventory never goes negative")
	assert.Equal(t, 1, store.TicketCount())
}

func TestIssueCodeCollisionRetries(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 5, 0)
	store.DupCodeOnce = true
	issuer := service.NewTicketIssuer(store, nil)

	res, err := issuer.Issue(context.Background(), service.IssueInput{UserID: 42, ActivityID: 1, Quantity: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Ticket.Code)
	assert.Equal(t, 1, store.TicketCount())
}

func TestIssueStoreFailureLeavesInventoryIntact(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 5, 2000)
	store.FailCreate = errors.New("connection reset by peer")
	issuer := service.NewTicketIssuer(store, nil)

	_, err := issuer.Issue(context.Background(), service.IssueInput{
		UserID:          42,
		ActivityID:      1,
		Quantity:        2,
		PaymentIntentID: strPtr("pi_fail"),
	})
	require.Error(t, err)
	assert.Equal(t, int64(5), store.Seats(1))
	assert.Equal(t, 0, store.TicketCount())
}

func TestIssueNotifiesAfterIssuance(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 5, 2000)
	notifier := &recordingNotifier{}
	issuer := service.NewTicketIssuer(store, notifier)

	res, err := issuer.Issue(context.Background(), service.IssueInput{
		UserID:          42,
		ActivityID:      1,
		Quantity:        1,
		PaymentIntentID: strPtr("pi_notify"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, res.Ticket.ID, notifier.tickets[0].ID)
}

func TestIssueDuplicateDoesNotNotifyAgain(t *testing.T) {
	store := testutil.NewMemStore()
	seedActivity(store, 5, 2000)
	notifier := &recordingNotifier{}
	issuer := service.NewTicketIssuer(store, notifier)

	in := service.IssueInput{UserID: 42, ActivityID: 1, Quantity: 1, PaymentIntentID: strPtr("pi_once")}
	_, err := issuer.Issue(context.Background(), in)
	require.NoError(t, err)
	_, err = issuer.Issue(context.Background(), in)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return notifier.count() >= 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, notifier.count(), "the losing confirmation path must not re-notify")
}
