// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/joinspot/reservation-api/internal/handler"
	"github.com/joinspot/reservation-api/internal/middleware"
)

// RegisterRoutes registers routes that require no authentication at
// all: the health check used by load balancers and monitoring.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the identity endpoints. Unauthenticated
// operations live under /v1/auth; /v1/me sits behind JWT validation.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterActivities registers the activity directory. Browsing is
// public; creation requires an authenticated organizer.
func RegisterActivities(e *echo.Echo, h *handler.ActivityHandler, jwtSecret string) {
	e.GET("/v1/activities", h.List)
	e.GET("/v1/activities/:id", h.Get)

	org := e.Group("/v1/activities")
	org.Use(middleware.JWTAuth(jwtSecret))
	org.Use(middleware.RequireRole("ORGANIZER"))
	org.POST("", h.Create)
}

// RegisterReservations registers the reservation core. The payment and
// ticket endpoints require a session; rateLimit (which may be a no-op
// when redis is unavailable) shields the payment endpoints. The
// processor webhook is registered outside the authenticated group: it
// carries no session and is authenticated by its signature instead.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, rateLimit echo.MiddlewareFunc) {
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("USER", "ORGANIZER"))

	pay := auth.Group("/payments")
	if rateLimit != nil {
		pay.Use(rateLimit)
	}
	pay.POST("/intent", h.CreatePaymentIntent)
	pay.POST("/confirm", h.ConfirmPayment)

	auth.POST("/activities/:id/reserve", h.ReserveDirect)
	auth.GET("/tickets", h.ListMyTickets)
	auth.GET("/tickets/:id", h.GetTicket)
	auth.POST("/tickets/:id/checkin", h.CheckIn)

	e.POST("/v1/payments/webhook", h.HandleWebhook)
}

// RegisterNotifications registers the notification feed.
func RegisterNotifications(e *echo.Echo, h *handler.NotificationHandler, jwtSecret string) {
	g := e.Group("/v1/notifications")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.GET("", h.List)
}
