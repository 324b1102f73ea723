package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinspot/reservation-api/internal/handler"
	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/payment"
	"github.com/joinspot/reservation-api/internal/service"
	"github.com/joinspot/reservation-api/internal/testutil"
)

// fakeGateway implements payment.Gateway in memory. Intents transition
// to succeeded when the test calls succeed(), mimicking the external
// payment step.
type fakeGateway struct {
	mu         sync.Mutex
	intents    map[string]payment.IntentSnapshot
	lastReq    payment.IntentRequest
	nextID     int
	createErr  error
	retrievErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: make(map[string]payment.IntentSnapshot)}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.IntentSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payment.IntentSnapshot{}, g.createErr
	}
	g.lastReq = req
	g.nextID++
	snap := payment.IntentSnapshot{
		ID:           fmt.Sprintf("pi_fake_%d", g.nextID),
		ClientSecret: fmt.Sprintf("pi_fake_%d_secret", g.nextID),
		Status:       "requires_payment_method",
		Metadata: map[string]string{
			payment.MetaActivityID: fmt.Sprint(req.ActivityID),
			payment.MetaUserID:     fmt.Sprint(req.UserID),
			payment.MetaQuantity:   fmt.Sprint(req.Quantity),
		},
	}
	g.intents[snap.ID] = snap
	return snap, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, intentID string) (payment.IntentSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retrievErr != nil {
		return payment.IntentSnapshot{}, g.retrievErr
	}
	snap, ok := g.intents[intentID]
	if !ok {
		return payment.IntentSnapshot{}, errors.New("no such intent")
	}
	return snap, nil
}

// VerifyWebhook accepts only the literal header "valid" and decodes the
// payload as a payment.Event-shaped JSON document.
func (g *fakeGateway) VerifyWebhook(payload []byte, signatureHeader string) (payment.Event, error) {
	if signatureHeader != "valid" {
		return payment.Event{}, payment.ErrSignatureInvalid
	}
	var ev payment.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return payment.Event{}, err
	}
	return ev, nil
}

func (g *fakeGateway) succeed(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := g.intents[intentID]
	snap.Status = "succeeded"
	snap.Succeeded = true
	g.intents[intentID] = snap
}

type fixture struct {
	e       *echo.Echo
	gateway *fakeGateway
	store   *testutil.MemStore
	h       *handler.ReservationHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewMemStore()
	gw := newFakeGateway()
	issuer := service.NewTicketIssuer(store, nil)
	return &fixture{
		e:       echo.New(),
		gateway: gw,
		store:   store,
		h:       handler.NewReservationHandler(gw, issuer, store, store),
	}
}

// request builds an echo context carrying the JWT middleware's user_id
// claim the way it really arrives, as a float64.
func (f *fixture) request(method, target, body string, userID uint64) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	if userID != 0 {
		c.Set("user_id", float64(userID))
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func webhookBody(intentID string, activityID, userID uint64, quantity int64) string {
	return fmt.Sprintf(`{
		"ID": "evt_1",
		"Type": "payment_intent.succeeded",
		"Intent": {
			"ID": %q,
			"Status": "succeeded",
			"Succeeded": true,
			"Metadata": {"activity_id": "%d", "user_id": "%d", "quantity": "%d"}
		}
	}`, intentID, activityID, userID, quantity)
}

func TestCreatePaymentIntentComputesAmount(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, OwnerID: 10, Title: "Wine Tasting", PriceCents: 20, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/payments/intent",
		`{"activity_id":1,"quantity":3,"currency":"usd"}`, 42)
	require.NoError(t, f.h.CreatePaymentIntent(c))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, int64(60), f.gateway.lastReq.AmountCents, "amount is price_cents * quantity")
	assert.Equal(t, "usd", f.gateway.lastReq.Currency)
	assert.Equal(t, uint64(42), f.gateway.lastReq.UserID)

	body := decode(t, rec)
	assert.NotEmpty(t, body["client_secret"])
	assert.NotEmpty(t, body["payment_intent_id"])
	assert.Equal(t, 0, f.store.TicketCount(), "intent creation reserves nothing")
	assert.Equal(t, int64(5), f.store.Seats(1))
}

func TestCreatePaymentIntentValidation(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, PriceCents: 2000, Seat: 5})

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing activity", `{"quantity":1,"currency":"usd"}`, http.StatusBadRequest},
		{"zero quantity", `{"activity_id":1,"quantity":0,"currency":"usd"}`, http.StatusBadRequest},
		{"missing currency", `{"activity_id":1,"quantity":1}`, http.StatusBadRequest},
		{"unknown activity", `{"activity_id":99,"quantity":1,"currency":"usd"}`, http.StatusNotFound},
		{"oversell pre-check", `{"activity_id":1,"quantity":6,"currency":"usd"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := f.request(http.MethodPost, "/v1/payments/intent", tc.body, 42)
			require.NoError(t, f.h.CreatePaymentIntent(c))
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestCreatePaymentIntentRejectsFreeActivity(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 2, Title: "Park Cleanup", PriceCents: 0, Seat: 10})

	c, rec := f.request(http.MethodPost, "/v1/payments/intent",
		`{"activity_id":2,"quantity":1,"currency":"usd"}`, 42)
	require.NoError(t, f.h.CreatePaymentIntent(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePaymentIntentGatewayDown(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, PriceCents: 2000, Seat: 5})
	f.gateway.createErr = errors.New("stripe: 503")

	c, rec := f.request(http.MethodPost, "/v1/payments/intent",
		`{"activity_id":1,"quantity":1,"currency":"usd"}`, 42)
	require.NoError(t, f.h.CreatePaymentIntent(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestConfirmPaymentIssuesTicket(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, OwnerID: 10, Title: "Wine Tasting", PriceCents: 2000, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/payments/intent",
		`{"activity_id":1,"quantity":2,"currency":"usd"}`, 42)
	require.NoError(t, f.h.CreatePaymentIntent(c))
	intentID := decode(t, rec)["payment_intent_id"].(string)
	f.gateway.succeed(intentID)

	c, rec = f.request(http.MethodPost, "/v1/payments/confirm",
		fmt.Sprintf(`{"payment_intent_id":%q}`, intentID), 42)
	require.NoError(t, f.h.ConfirmPayment(c))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, false, body["already_issued"])
	assert.Equal(t, 1, f.store.TicketCount())
	assert.Equal(t, int64(3), f.store.Seats(1))

	// Confirming again returns the same ticket without a second decrement.
	c, rec = f.request(http.MethodPost, "/v1/payments/confirm",
		fmt.Sprintf(`{"payment_intent_id":%q}`, intentID), 42)
	require.NoError(t, f.h.ConfirmPayment(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["already_issued"])
	assert.Equal(t, 1, f.store.TicketCount())
	assert.Equal(t, int64(3), f.store.Seats(1))
}

func TestConfirmPaymentNotSucceeded(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, PriceCents: 2000, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/payments/intent",
		`{"activity_id":1,"quantity":1,"currency":"usd"}`, 42)
	require.NoError(t, f.h.CreatePaymentIntent(c))
	intentID := decode(t, rec)["payment_intent_id"].(string)

	c, rec = f.request(http.MethodPost, "/v1/payments/confirm",
		fmt.Sprintf(`{"payment_intent_id":%q}`, intentID), 42)
	require.NoError(t, f.h.ConfirmPayment(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "payment_not_succeeded", decode(t, rec)["error"])
	assert.Equal(t, 0, f.store.TicketCount())
	assert.Equal(t, int64(5), f.store.Seats(1))
}

func TestConfirmPaymentGatewayDown(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, PriceCents: 2000, Seat: 5})
	f.gateway.retrievErr = errors.New("stripe: timeout")

	c, rec := f.request(http.MethodPost, "/v1/payments/confirm",
		`{"payment_intent_id":"pi_x"}`, 42)
	require.NoError(t, f.h.ConfirmPayment(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 0, f.store.TicketCount())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, PriceCents: 2000, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/payments/webhook",
		webhookBody("pi_forged", 1, 42, 1), 0)
	c.Request().Header.Set("Stripe-Signature", "forged")
	require.NoError(t, f.h.HandleWebhook(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid signature", decode(t, rec)["error"])
	assert.Equal(t, 0, f.store.TicketCount(), "a forged delivery must not mint tickets")
	assert.Equal(t, int64(5), f.store.Seats(1))
}

func TestWebhookIssuesTicket(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, OwnerID: 10, PriceCents: 2000, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/payments/webhook",
		webhookBody("pi_hook", 1, 42, 2), 0)
	c.Request().Header.Set("Stripe-Signature", "valid")
	require.NoError(t, f.h.HandleWebhook(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["received"])
	assert.Equal(t, 1, f.store.TicketCount())
	assert.Equal(t, int64(3), f.store.Seats(1))
}

func TestWebhookAcksBusinessFailures(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, PriceCents: 2000, Seat: 1})

	// Sold out after payment: the delivery is still ACKed so the
	// processor stops retrying.
	c, rec := f.request(http.MethodPost, "/v1/payments/webhook",
		webhookBody("pi_soldout", 1, 42, 3), 0)
	c.Request().Header.Set("Stripe-Signature", "valid")
	require.NoError(t, f.h.HandleWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["received"])
	assert.Equal(t, 0, f.store.TicketCount())
	assert.Equal(t, int64(1), f.store.Seats(1))
}

func TestPollAndWebhookProduceOneTicket(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, OwnerID: 10, Title: "Wine Tasting", PriceCents: 2000, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/payments/intent",
		`{"activity_id":1,"quantity":2,"currency":"usd"}`, 42)
	require.NoError(t, f.h.CreatePaymentIntent(c))
	intentID := decode(t, rec)["payment_intent_id"].(string)
	f.gateway.succeed(intentID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c, _ := f.request(http.MethodPost, "/v1/payments/confirm",
			fmt.Sprintf(`{"payment_intent_id":%q}`, intentID), 42)
		_ = f.h.ConfirmPayment(c)
	}()
	go func() {
		defer wg.Done()
		c, _ := f.request(http.MethodPost, "/v1/payments/webhook",
			webhookBody(intentID, 1, 42, 2), 0)
		c.Request().Header.Set("Stripe-Signature", "valid")
		_ = f.h.HandleWebhook(c)
	}()
	wg.Wait()

	assert.Equal(t, 1, f.store.TicketCount(), "both confirmation paths converge on one ticket")
	assert.Equal(t, int64(3), f.store.Seats(1), "seats decremented exactly once")
}

func TestReserveDirect(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 3, OwnerID: 10, Title: "Park Cleanup", PriceCents: 0, Seat: 4})

	c, rec := f.request(http.MethodPost, "/v1/activities/3/reserve", `{"quantity":2}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("3")
	require.NoError(t, f.h.ReserveDirect(c))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(2), f.store.Seats(3))
}

func TestReserveDirectRejectsPricedActivity(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, PriceCents: 2000, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/activities/1/reserve", `{"quantity":1}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, f.h.ReserveDirect(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "activity requires payment", decode(t, rec)["error"])
	assert.Equal(t, int64(5), f.store.Seats(1))
}

func TestReserveDirectSoldOut(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 3, PriceCents: 0, Seat: 1})

	c, rec := f.request(http.MethodPost, "/v1/activities/3/reserve", `{"quantity":2}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("3")
	require.NoError(t, f.h.ReserveDirect(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int64(1), f.store.Seats(3))
}

func TestGetTicketVisibility(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, OwnerID: 10, Title: "Wine Tasting", PriceCents: 0, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/activities/1/reserve", `{"quantity":1}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, f.h.ReserveDirect(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	get := func(userID uint64) *httptest.ResponseRecorder {
		c, rec := f.request(http.MethodGet, "/v1/tickets/1", "", userID)
		c.SetParamNames("id")
		c.SetParamValues("1")
		require.NoError(t, f.h.GetTicket(c))
		return rec
	}

	assert.Equal(t, http.StatusOK, get(42).Code, "ticket owner can read")
	assert.Equal(t, http.StatusOK, get(10).Code, "activity organizer can read")
	assert.Equal(t, http.StatusForbidden, get(77).Code, "strangers cannot")

	c, rec = f.request(http.MethodGet, "/v1/tickets/999", "", 42)
	c.SetParamNames("id")
	c.SetParamValues("999")
	require.NoError(t, f.h.GetTicket(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, OwnerID: 10, Title: "Wine Tasting", PriceCents: 0, Seat: 5})

	c, rec := f.request(http.MethodPost, "/v1/activities/1/reserve", `{"quantity":1}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, f.h.ReserveDirect(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	checkin := func(userID uint64) *httptest.ResponseRecorder {
		c, rec := f.request(http.MethodPost, "/v1/tickets/1/checkin", "", userID)
		c.SetParamNames("id")
		c.SetParamValues("1")
		require.NoError(t, f.h.CheckIn(c))
		return rec
	}

	assert.Equal(t, http.StatusForbidden, checkin(42).Code, "ticket owner cannot check themselves in")
	assert.Equal(t, http.StatusOK, checkin(10).Code, "organizer checks the ticket in")
	assert.Equal(t, http.StatusConflict, checkin(10).Code, "second check-in is rejected")

	ticket, ok := f.store.Ticket(1)
	require.True(t, ok)
	assert.True(t, ticket.Used)
}

func TestListMyTickets(t *testing.T) {
	f := newFixture(t)
	f.store.AddActivity(model.Activity{ID: 1, PriceCents: 0, Seat: 10})

	for i := 0; i < 2; i++ {
		c, rec := f.request(http.MethodPost, "/v1/activities/1/reserve", `{"quantity":1}`, 42)
		c.SetParamNames("id")
		c.SetParamValues("1")
		require.NoError(t, f.h.ReserveDirect(c))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	c, rec := f.request(http.MethodGet, "/v1/tickets", "", 42)
	require.NoError(t, f.h.ListMyTickets(c))
	require.Equal(t, http.StatusOK, rec.Code)
	tickets := decode(t, rec)["tickets"].([]any)
	assert.Len(t, tickets, 2)

	c, rec = f.request(http.MethodGet, "/v1/tickets", "", 77)
	require.NoError(t, f.h.ListMyTickets(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tickets"], 0)
}
