package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairdesk-api/services"
)

type ReportController struct {
	reports *services.ReportService
}

func NewReportController(reports *services.ReportService) *ReportController {
	return &ReportController{reports: reports}
}

// Summary handles GET /api/v1/reports/summary
func (rc *ReportController) Summary(c *gin.Context) {
	report, err := rc.reports.Summary(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, report)
}
