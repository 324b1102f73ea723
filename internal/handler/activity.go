package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/repository"
)

// ActivityHandler exposes the activity directory the reservation core
// reads from: organizers create activities with a fixed seat capacity
// and a price, buyers browse them. Seat counts shown here are a
// snapshot; the authoritative count lives behind the ledger's
// conditional decrement.
type ActivityHandler struct {
	Activities *repository.ActivityRepo
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(activities *repository.ActivityRepo) *ActivityHandler {
	if activities == nil {
		panic("nil repository passed to NewActivityHandler")
	}
	return &ActivityHandler{Activities: activities}
}

type createActivityReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`
	PriceCents  int64  `json:"price_cents"`
	Seat        int64  `json:"seat"`
	StartsAt    string `json:"starts_at"` // RFC3339
	EndsAt      string `json:"ends_at"`   // RFC3339
}

// Create handles POST /v1/activities. Only organizers may create
// activities; the role middleware enforces that before this runs.
func (h *ActivityHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createActivityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Title) == "" || req.Seat < 1 || req.PriceCents < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title, positive seat count and non-negative price are required"})
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be RFC3339"})
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil || !endsAt.After(startsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be RFC3339 and after starts_at"})
	}

	activity := model.Activity{
		OwnerID:     userID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Location:    req.Location,
		PriceCents:  req.PriceCents,
		Seat:        req.Seat,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
	}
	if err := h.Activities.Create(c.Request().Context(), &activity); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create activity failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"activity": activity})
}

// Get handles GET /v1/activities/:id.
func (h *ActivityHandler) Get(c echo.Context) error {
	activityID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || activityID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid activity id"})
	}
	activity, err := h.Activities.GetByID(c.Request().Context(), activityID)
	if err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "activity not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"activity": activity})
}

// List handles GET /v1/activities.
func (h *ActivityHandler) List(c echo.Context) error {
	activities, err := h.Activities.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if activities == nil {
		activities = []model.Activity{}
	}
	return c.JSON(http.StatusOK, echo.Map{"activities": activities})
}
