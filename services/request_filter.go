package services

import (
	"sort"
	"strings"

	"github.com/kendall-kelly/repairdesk-api/models"
)

// FilterAll disables a status or priority filter
const FilterAll = "All"

// RequestFilter narrows the administrative request list.
// All set conditions must hold.
type RequestFilter struct {
	Search   string `form:"q"`
	Status   string `form:"status"`
	Priority string `form:"priority"`
}

func isUnset(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == FilterAll
}

// Matches reports whether r satisfies the filter
func (f RequestFilter) Matches(r models.Request) bool {
	if !isUnset(f.Status) && string(r.Status) != strings.TrimSpace(f.Status) {
		return false
	}
	if !isUnset(f.Priority) && string(r.Priority) != strings.TrimSpace(f.Priority) {
		return false
	}

	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	for _, field := range []string{r.ProblemDescription, r.DeviceType, string(r.Status), string(r.Priority)} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// FilterRequests returns the matching requests in a new slice
func FilterRequests(requests []models.Request, f RequestFilter) []models.Request {
	out := make([]models.Request, 0, len(requests))
	for _, r := range requests {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// SortNewestFirst orders requests by creation time, newest first
func SortNewestFirst(requests []models.Request) {
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
}
