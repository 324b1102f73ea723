// Package testutil provides in-memory fakes for unit tests. MemStore
// mirrors the contract of repository.ReservationStore: reads and the
// decrement-plus-insert are atomic with respect to each other, and
// unique-key collisions surface as the repository sentinel errors.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/joinspot/reservation-api/internal/model"
	"github.com/joinspot/reservation-api/internal/repository"
)

// MemStore is a mutex-guarded service.Store implementation. The mutex
// stands in for the row lock the real store gets from its conditional
// UPDATE: every CreateTicket observes and mutates state as one unit.
type MemStore struct {
	mu         sync.Mutex
	activities map[uint64]*model.Activity
	tickets    map[uint64]model.Ticket
	byIntent   map[string]uint64
	nextID     uint64

	// FailCreate, when non-nil, makes CreateTicket fail without
	// mutating anything, simulating a datastore error inside the
	// transaction.
	FailCreate error
	// DupCodeOnce makes the next CreateTicket report a confirmation
	// code collision, exercising the regenerate-and-retry path.
	DupCodeOnce bool
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		activities: make(map[uint64]*model.Activity),
		tickets:    make(map[uint64]model.Ticket),
		byIntent:   make(map[string]uint64),
	}
}

// AddActivity seeds an activity.
func (s *MemStore) AddActivity(a model.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.activities[a.ID] = &cp
}

// GetActivity implements service.Store.
func (s *MemStore) GetActivity(_ context.Context, activityID uint64) (model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[activityID]
	if !ok {
		return model.Activity{}, repository.ErrActivityNotFound
	}
	return *a, nil
}

// TicketByPaymentIntent implements service.Store.
func (s *MemStore) TicketByPaymentIntent(_ context.Context, intentID string) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIntent[intentID]
	if !ok {
		return model.Ticket{}, repository.ErrTicketNotFound
	}
	return s.tickets[id], nil
}

// CreateTicket implements service.Store: the seat decrement and the
// ticket insert happen all-or-nothing under the lock.
func (s *MemStore) CreateTicket(_ context.Context, t *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DupCodeOnce {
		s.DupCodeOnce = false
		return repository.ErrDuplicateCode
	}
	if t.PaymentIntentID != nil {
		if _, exists := s.byIntent[*t.PaymentIntentID]; exists {
			return repository.ErrDuplicateIntent
		}
	}
	a, ok := s.activities[t.ActivityID]
	if !ok {
		return repository.ErrActivityNotFound
	}
	if a.Seat < t.Quantity {
		return repository.ErrInsufficientSeats
	}
	if s.FailCreate != nil {
		return s.FailCreate
	}
	a.Seat -= t.Quantity
	s.nextID++
	t.ID = s.nextID
	t.CreatedAt = time.Now().UTC()
	s.tickets[t.ID] = *t
	if t.PaymentIntentID != nil {
		s.byIntent[*t.PaymentIntentID] = t.ID
	}
	return nil
}

// GetByID implements the handlers' ticket read side.
func (s *MemStore) GetByID(_ context.Context, ticketID uint64) (model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return model.Ticket{}, repository.ErrTicketNotFound
	}
	return t, nil
}

// ListByUser implements the handlers' ticket read side, newest first.
func (s *MemStore) ListByUser(_ context.Context, userID uint64) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Ticket
	for id := s.nextID; id >= 1; id-- {
		if t, ok := s.tickets[id]; ok && t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// MarkUsed implements check-in: a second call for the same ticket
// returns repository.ErrTicketUsed.
func (s *MemStore) MarkUsed(_ context.Context, ticketID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return repository.ErrTicketNotFound
	}
	if t.Used {
		return repository.ErrTicketUsed
	}
	t.Used = true
	s.tickets[ticketID] = t
	return nil
}

// Seats returns the remaining seat count for an activity.
func (s *MemStore) Seats(activityID uint64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.activities[activityID]; ok {
		return a.Seat
	}
	return -1
}

// TicketCount returns the number of tickets issued so far.
func (s *MemStore) TicketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

// Ticket returns a stored ticket by ID.
func (s *MemStore) Ticket(id uint64) (model.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	return t, ok
}
