package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/queue"
	"github.com/joinspot/reservation-api/internal/repository"
)

// ReservationNotifier tells the activity owner about a new
// reservation. It writes a notifications row for the in-app feed and
// publishes a ReservationConfirmedEvent to the broker for downstream
// consumers. Every failure here is logged and dropped.
type ReservationNotifier struct {
	Users         *repository.UserRepo
	Notifications *repository.NotificationRepo
	// Publish is swappable for tests; defaults to the RabbitMQ publisher.
	Publish func(ctx context.Context, ev queue.ReservationConfirmedEvent) error
}

// NewReservationNotifier constructs a ReservationNotifier over the
// given repositories.
func NewReservationNotifier(users *repository.UserRepo, notifications *repository.NotificationRepo) *ReservationNotifier {
	return &ReservationNotifier{
		Users:         users,
		Notifications: notifications,
		Publish:       queue.PublishReservationConfirmed,
	}
}

// ReservationConfirmed implements service.Notifier. It runs under its
// own timeout since the issuer fires it from a goroutine after the
// reservation is already committed.
func (n *ReservationNotifier) ReservationConfirmed(ctx context.Context, activity model.Activity, ticket model.Ticket) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	userName := ""
	if n.Users != nil {
		name, err := n.Users.UserName(ctx, ticket.UserID)
		if err != nil {
			log.Printf("notifier: lookup user %d failed: %v", ticket.UserID, err)
		} else {
			userName = name
		}
	}

	if n.Notifications != nil {
		content := fmt.Sprintf("%s reserved %d seat(s) for your activity %q", userName, ticket.Quantity, activity.Title)
		notif := model.Notification{FromID: ticket.UserID, ToID: activity.OwnerID, Content: content}
		if err := n.Notifications.Create(ctx, &notif); err != nil {
			log.Printf("notifier: create notification for ticket %d failed: %v", ticket.ID, err)
		}
	}

	if n.Publish != nil {
		ev := queue.ReservationConfirmedEvent{
			TicketID:      ticket.ID,
			Code:          ticket.Code,
			UserID:        ticket.UserID,
			UserName:      userName,
			ActivityID:    activity.ID,
			ActivityTitle: activity.Title,
			OwnerID:       activity.OwnerID,
			Quantity:      ticket.Quantity,
			AmountCents:   activity.PriceCents * ticket.Quantity,
			ConfirmedAt:   time.Now().UTC().Format(time.RFC3339),
		}
		if ticket.PaymentIntentID != nil {
			ev.PaymentIntent = *ticket.PaymentIntentID
		}
		if err := n.Publish(ctx, ev); err != nil {
			log.Printf("notifier: publish event for ticket %d failed: %v", ticket.ID, err)
		}
	}
}
