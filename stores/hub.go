package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/models"
)

// Predicate selects requests by equality on one indexed field.
// The zero value selects every request.
type Predicate struct {
	Field string
	Value string
}

// Fields that may be used in a Predicate
const (
	FieldUserID     = "user_id"
	FieldAssignedTo = "assigned_to"
)

// All selects every request
func All() Predicate {
	return Predicate{}
}

// OwnedBy selects requests created by userID
func OwnedBy(userID string) Predicate {
	return Predicate{Field: FieldUserID, Value: userID}
}

// AssignedTo selects requests assigned to userID
func AssignedTo(userID string) Predicate {
	return Predicate{Field: FieldAssignedTo, Value: userID}
}

// IsAll reports whether the predicate selects every request
func (p Predicate) IsAll() bool {
	return p.Field == ""
}

func (p Predicate) validate() error {
	switch p.Field {
	case "", FieldUserID, FieldAssignedTo:
		return nil
	}
	return fmt.Errorf("unsupported predicate field %q", p.Field)
}

type snapshotLoader func(ctx context.Context, p Predicate) ([]models.Request, error)

// Hub fans out full request snapshots to live subscriptions.
// Every delivery happens under one lock, so all subscribers see changes in store order.
type Hub struct {
	mu   sync.Mutex
	subs map[uint64]*Subscription
	next uint64
	load snapshotLoader
}

func newHub(load snapshotLoader) *Hub {
	return &Hub{
		subs: make(map[uint64]*Subscription),
		load: load,
	}
}

// Subscription receives the current snapshot immediately and a fresh one after each change.
// The channel holds at most one pending snapshot; a newer one replaces an unread one.
type Subscription struct {
	id   uint64
	pred Predicate
	hub  *Hub
	ch   chan []models.Request
	done chan struct{}
	once sync.Once
}

// Updates returns the snapshot channel. It is closed on Unsubscribe.
func (s *Subscription) Updates() <-chan []models.Request {
	return s.ch
}

// Done is closed once the subscription has ended
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		close(s.ch)
		s.hub.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) offer(snapshot []models.Request) {
	select {
	case s.ch <- snapshot:
	default:
		// drop the superseded snapshot
		select {
		case <-s.ch:
		default:
		}
		s.ch <- snapshot
	}
}

// Subscribe registers a subscription that ends when ctx is done or Unsubscribe is called
func (h *Hub) Subscribe(ctx context.Context, p Predicate) (*Subscription, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	snapshot, err := h.load(ctx, p)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}

	h.next++
	sub := &Subscription{
		id:   h.next,
		pred: p,
		hub:  h,
		ch:   make(chan []models.Request, 1),
		done: make(chan struct{}),
	}
	h.subs[sub.id] = sub
	sub.offer(snapshot)
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Notify reloads and delivers a snapshot to every subscription.
// Subscriptions sharing a predicate share one load.
func (h *Hub) Notify(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.subs) == 0 {
		return
	}

	loaded := make(map[Predicate][]models.Request)
	for _, sub := range h.subs {
		snapshot, ok := loaded[sub.pred]
		if !ok {
			var err error
			snapshot, err = h.load(ctx, sub.pred)
			if err != nil {
				logger.WithError(err, "request_hub").Warn("Failed to load snapshot for subscribers")
				continue
			}
			loaded[sub.pred] = snapshot
		}
		sub.offer(snapshot)
	}
}

// Refresh re-delivers snapshots after a change made elsewhere, e.g. by another instance
func (h *Hub) Refresh(ctx context.Context) {
	h.Notify(ctx)
}

// Len returns the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
