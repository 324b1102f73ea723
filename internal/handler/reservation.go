package handler

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/payment"
	"github.com/joinspot/reservation-api/internal/repository"
	"github.com/joinspot/reservation-api/internal/service"
)

// TicketAccess is the ticket read side plus the one permitted
// mutation, the check-in flag. Implemented by repository.TicketRepo.
type TicketAccess interface {
	GetByID(ctx context.Context, ticketID uint64) (model.Ticket, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Ticket, error)
	MarkUsed(ctx context.Context, ticketID uint64) error
}

// ReservationHandler is the public surface of the reservation core. It
// glues the payment gateway and the ticket issuer together and defines
// the two independent confirmation paths, client polling and the
// processor webhook, which converge on the issuer's idempotency guard.
// JWT authentication has already run for everything except the
// webhook, which is authenticated by its signature instead.
type ReservationHandler struct {
	Gateway payment.Gateway       // external processor adapter
	Issuer  *service.TicketIssuer // the single issuance choke point
	Store   service.Store         // activity lookups
	Tickets TicketAccess          // ticket reads and check-in
}

// NewReservationHandler constructs a ReservationHandler. All
// dependencies must be non-nil.
func NewReservationHandler(gw payment.Gateway, issuer *service.TicketIssuer, store service.Store, tickets TicketAccess) *ReservationHandler {
	if gw == nil || issuer == nil || store == nil || tickets == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Gateway: gw, Issuer: issuer, Store: store, Tickets: tickets}
}

// ----- DTOs -----

type createIntentReq struct {
	ActivityID     uint64 `json:"activity_id"`
	Quantity       int64  `json:"quantity"`
	Currency       string `json:"currency"`
	CardholderName string `json:"cardholder_name"`
	Email          string `json:"email"`
	Country        string `json:"country"`
}

type confirmPaymentReq struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type reserveDirectReq struct {
	Quantity int64 `json:"quantity"`
}

// CreatePaymentIntent handles POST /v1/payments/intent. It validates
// the request, pre-checks remaining seats (advisory only; the
// authoritative check happens again at issuance to close the race
// window), computes amount = price_cents * quantity and asks the
// processor for an intent carrying the reservation metadata. The
// client secret goes back to the frontend, which completes payment
// with the processor directly.
func (h *ReservationHandler) CreatePaymentIntent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createIntentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.ActivityID == 0 || req.Quantity < 1 || strings.TrimSpace(req.Currency) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "activity_id, quantity and currency are required"})
	}

	ctx := c.Request().Context()
	activity, err := h.Store.GetActivity(ctx, req.ActivityID)
	if err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "activity not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if activity.PriceCents == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "activity is free, use the direct reservation endpoint"})
	}
	if activity.Seat < req.Quantity {
		return c.JSON(http.StatusConflict, echo.Map{"error": "not enough seats available", "remaining": activity.Seat})
	}

	snap, err := h.Gateway.CreateIntent(ctx, payment.IntentRequest{
		AmountCents:    activity.PriceCents * req.Quantity,
		Currency:       req.Currency,
		ActivityID:     req.ActivityID,
		UserID:         userID,
		Quantity:       req.Quantity,
		CardholderName: req.CardholderName,
		Email:          req.Email,
		Country:        req.Country,
	})
	if err != nil {
		log.Printf("reservation: create intent failed: %v", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment processor unavailable"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"client_secret":     snap.ClientSecret,
		"payment_intent_id": snap.ID,
	})
}

// ConfirmPayment handles POST /v1/payments/confirm, the polling
// confirmation path, invoked by the client after it finished the
// payment UI. The intent metadata, not the request body, defines what
// gets reserved: it is the only state that survived the round trip to
// the processor. A non-succeeded intent produces no side effects.
func (h *ReservationHandler) ConfirmPayment(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req confirmPaymentReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.PaymentIntentID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_intent_id is required"})
	}

	ctx := c.Request().Context()
	snap, err := h.Gateway.RetrieveIntent(ctx, req.PaymentIntentID)
	if err != nil {
		// Processor unreachable is transient: the client may retry the
		// poll, it is not a payment failure.
		log.Printf("reservation: retrieve intent %s failed: %v", req.PaymentIntentID, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment processor unavailable"})
	}
	if !snap.Succeeded {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_not_succeeded", "status": snap.Status})
	}
	return h.issueFromIntent(c, snap, http.StatusCreated)
}

// HandleWebhook handles POST /v1/payments/webhook, the push
// confirmation path. The signature check is a hard security boundary:
// it runs before anything else and a mismatch rejects the delivery
// outright. Once the signature passes, the endpoint always ACKs with
// {"received": true} regardless of the business outcome, because a
// webhook whose failure is not transient (sold out, unknown activity)
// must not be retried by the processor forever.
func (h *ReservationHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	event, err := h.Gateway.VerifyWebhook(body, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		// Potential forgery attempt; log it and reject before any
		// business logic runs.
		log.Printf("reservation: webhook signature rejected from %s: %v", c.RealIP(), err)
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
	}

	if event.Type == "payment_intent.succeeded" && event.Intent != nil {
		activityID, userID, quantity, err := payment.ParseIntentMetadata(event.Intent.Metadata)
		if err != nil {
			log.Printf("reservation: webhook %s: %v", event.ID, err)
		} else {
			intentID := event.Intent.ID
			_, err := h.Issuer.Issue(c.Request().Context(), service.IssueInput{
				UserID:          userID,
				ActivityID:      activityID,
				Quantity:        quantity,
				PaymentIntentID: &intentID,
			})
			if err != nil {
				// Business failures land here too (e.g. sold out after
				// payment). Still ACK; the refund workflow picks these up.
				log.Printf("reservation: webhook issuance for intent %s failed: %v", intentID, err)
			}
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

// ReserveDirect handles POST /v1/activities/:id/reserve, the free
// path. Priced activities must go through the payment flow; accepting
// them here would hand out paid seats for nothing. No idempotency key
// is used: the caller is the sole trigger.
func (h *ReservationHandler) ReserveDirect(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	activityID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || activityID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid activity id"})
	}
	var req reserveDirectReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Quantity < 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be at least 1"})
	}

	ctx := c.Request().Context()
	activity, err := h.Store.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "activity not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if activity.PriceCents > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "activity requires payment"})
	}

	res, err := h.Issuer.Issue(ctx, service.IssueInput{
		UserID:     userID,
		ActivityID: activityID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		return issueError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ticket": res.Ticket})
}

// GetTicket handles GET /v1/tickets/:id. Visibility is the ticket
// owner or the organizer of the activity it belongs to.
func (h *ReservationHandler) GetTicket(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || ticketID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	ctx := c.Request().Context()
	ticket, err := h.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if ticket.UserID != userID {
		activity, err := h.Store.GetActivity(ctx, ticket.ActivityID)
		if err != nil || activity.OwnerID != userID {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket": ticket})
}

// CheckIn handles POST /v1/tickets/:id/checkin. Only the organizer of
// the activity may mark a ticket used; a second check-in of the same
// ticket is rejected so one confirmation code admits one party once.
func (h *ReservationHandler) CheckIn(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ticketID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || ticketID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	ctx := c.Request().Context()
	ticket, err := h.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	activity, err := h.Store.GetActivity(ctx, ticket.ActivityID)
	if err != nil || activity.OwnerID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if err := h.Tickets.MarkUsed(ctx, ticketID); err != nil {
		if errors.Is(err, repository.ErrTicketUsed) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "ticket already used"})
		}
		if errors.Is(err, repository.ErrTicketNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	ticket.Used = true
	return c.JSON(http.StatusOK, echo.Map{"ticket": ticket})
}

// ListMyTickets handles GET /v1/tickets and returns the caller's
// reservation history, newest first.
func (h *ReservationHandler) ListMyTickets(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	tickets, err := h.Tickets.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}

// issueFromIntent runs the issuer for a succeeded intent and maps the
// outcome to a response. AlreadyIssued is success: the existing ticket
// is returned with 200 instead of 201.
func (h *ReservationHandler) issueFromIntent(c echo.Context, snap payment.IntentSnapshot, createdStatus int) error {
	activityID, userID, quantity, err := payment.ParseIntentMetadata(snap.Metadata)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "intent metadata invalid"})
	}
	intentID := snap.ID
	res, err := h.Issuer.Issue(c.Request().Context(), service.IssueInput{
		UserID:          userID,
		ActivityID:      activityID,
		Quantity:        quantity,
		PaymentIntentID: &intentID,
	})
	if err != nil {
		return issueError(c, err)
	}
	status := createdStatus
	if res.AlreadyIssued {
		status = http.StatusOK
	}
	return c.JSON(status, echo.Map{"ticket": res.Ticket, "already_issued": res.AlreadyIssued})
}

// issueError maps issuer errors to HTTP responses. Business errors are
// 4xx and never retried; anything unrecognized is a 5xx the caller may
// safely retry because nothing partial was committed.
func issueError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrActivityNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "activity not found"})
	case errors.Is(err, repository.ErrInsufficientSeats):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not enough seats available"})
	case errors.Is(err, service.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be at least 1"})
	default:
		log.Printf("reservation: issuance failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reservation failed"})
	}
}
