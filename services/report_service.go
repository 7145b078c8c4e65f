package services

import (
	"context"
	"sort"

	"github.com/kendall-kelly/repairdesk-api/models"
	"github.com/kendall-kelly/repairdesk-api/stores"
)

// MonthCount is the number of requests created in one calendar month
type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

// Report summarizes all requests
type Report struct {
	Total        int                            `json:"total"`
	ByStatus     map[models.RequestStatus]int   `json:"by_status"`
	ByPriority   map[models.RequestPriority]int `json:"by_priority"`
	ByDeviceType map[string]int                 `json:"by_device_type"`
	ByMonth      []MonthCount                   `json:"by_month"`
}

// BuildReport tallies requests by status, priority, device type and creation month
func BuildReport(requests []models.Request) Report {
	report := Report{
		Total:        len(requests),
		ByStatus:     CountByStatus(requests),
		ByPriority:   make(map[models.RequestPriority]int, len(models.AllPriorities)),
		ByDeviceType: make(map[string]int),
	}
	for _, p := range models.AllPriorities {
		report.ByPriority[p] = 0
	}

	months := make(map[string]int)
	for _, r := range requests {
		report.ByPriority[r.Priority]++
		report.ByDeviceType[r.DeviceType]++
		months[r.CreatedAt.UTC().Format("2006-01")]++
	}

	for month, count := range months {
		report.ByMonth = append(report.ByMonth, MonthCount{Month: month, Count: count})
	}
	sort.Slice(report.ByMonth, func(i, j int) bool {
		return report.ByMonth[i].Month < report.ByMonth[j].Month
	})
	return report
}

// ReportService builds reports from the request store
type ReportService struct {
	requests *stores.RequestStore
}

func NewReportService(requests *stores.RequestStore) *ReportService {
	return &ReportService{requests: requests}
}

// Summary reports on every request
func (s *ReportService) Summary(ctx context.Context) (Report, error) {
	requests, err := s.requests.List(ctx, stores.All())
	if err != nil {
		return Report{}, err
	}
	return BuildReport(requests), nil
}
