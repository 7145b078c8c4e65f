package services

import (
	"fmt"

	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/stores"
)

// ViewKind selects which requests a list or feed covers
type ViewKind int

const (
	// ViewOwn lists the requests a user submitted
	ViewOwn ViewKind = iota
	// ViewAll lists every request, narrowed by the filter
	ViewAll
	// ViewAssigned lists the requests assigned to a user
	ViewAssigned
)

// View describes a request list
type View struct {
	Kind   ViewKind
	UserID string
	Filter RequestFilter
}

// OwnView lists requests submitted by userID
func OwnView(userID string) View {
	return View{Kind: ViewOwn, UserID: userID}
}

// AllView lists every request matching filter
func AllView(filter RequestFilter) View {
	return View{Kind: ViewAll, Filter: filter}
}

// AssignedView lists requests assigned to userID
func AssignedView(userID string) View {
	return View{Kind: ViewAssigned, UserID: userID}
}

func (v View) predicate() (stores.Predicate, error) {
	switch v.Kind {
	case ViewOwn:
		if v.UserID == "" {
			return stores.Predicate{}, fmt.Errorf("own view requires a user id")
		}
		return stores.OwnedBy(v.UserID), nil
	case ViewAssigned:
		if v.UserID == "" {
			return stores.Predicate{}, fmt.Errorf("assigned view requires a user id")
		}
		return stores.AssignedTo(v.UserID), nil
	case ViewAll:
		return stores.All(), nil
	}
	return stores.Predicate{}, fmt.Errorf("unknown view kind %d", v.Kind)
}

// Feed is a live view. Each value on Updates is the complete, ordered list.
type Feed struct {
	sub     *stores.Subscription
	updates chan []models.Request
}

func newFeed(sub *stores.Subscription, present func([]models.Request) []models.Request) *Feed {
	f := &Feed{
		sub:     sub,
		updates: make(chan []models.Request, 1),
	}

	go func() {
		defer close(f.updates)
		for snapshot := range sub.Updates() {
			f.offer(present(snapshot))
		}
	}()

	return f
}

func (f *Feed) offer(list []models.Request) {
	select {
	case f.updates <- list:
	default:
		select {
		case <-f.updates:
		default:
		}
		f.updates <- list
	}
}

// Updates delivers snapshots until the feed is closed
func (f *Feed) Updates() <-chan []models.Request {
	return f.updates
}

// Close stops the feed. Safe to call more than once.
func (f *Feed) Close() {
	f.sub.Unsubscribe()
}

// CountByStatus tallies requests per status, including statuses with no requests
func CountByStatus(requests []models.Request) map[models.RequestStatus]int {
	counts := make(map[models.RequestStatus]int, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[s] = 0
	}
	for _, r := range requests {
		counts[r.Status]++
	}
	return counts
}
