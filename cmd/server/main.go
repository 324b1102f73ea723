package main

import (
	"log"

	"github.com/labstack/echo/v4"

	"github.com/joinspot/reservation-api/internal/config"
	"github.com/joinspot/reservation-api/internal/database"
	"github.com/joinspot/reservation-api/internal/handler"
	"github.com/joinspot/reservation-api/internal/middleware"
	"github.com/joinspot/reservation-api/internal/payment"
	"github.com/joinspot/reservation-api/internal/queue"
	"github.com/joinspot/reservation-api/internal/repository"
	"github.com/joinspot/reservation-api/internal/router"
	"github.com/joinspot/reservation-api/internal/service"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Repositories share the single pool.
	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	activityRepo := repository.NewActivityRepo(db)
	ticketRepo := repository.NewTicketRepo(db)
	notificationRepo := repository.NewNotificationRepo(db)
	store := repository.NewReservationStore(db, activityRepo, ticketRepo)

	// One Stripe client for the whole process, injected everywhere.
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	notifier := service.NewReservationNotifier(userRepo, notificationRepo)
	issuer := service.NewTicketIssuer(store, notifier)

	// Redis-backed rate limiting on the payment endpoints; degrades to a
	// pass-through when redis is unreachable.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}
	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, userRepo, tokenRepo), cfg.JWTSecret)
	router.RegisterActivities(e, handler.NewActivityHandler(activityRepo), cfg.JWTSecret)
	router.RegisterReservations(e,
		handler.NewReservationHandler(gateway, issuer, store, ticketRepo),
		cfg.JWTSecret, rateLimit)
	router.RegisterNotifications(e, handler.NewNotificationHandler(notificationRepo), cfg.JWTSecret)

	// Drain reservation events in the background for the ops log.
	go func() {
		if err := queue.StartReservationConsumer(); err != nil {
			log.Printf("reservation consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
