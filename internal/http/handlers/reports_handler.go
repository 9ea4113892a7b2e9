package handlers

import (
	"net/http"

	"logbook/internal/services"

	"github.com/gin-gonic/gin"
)

// GET /api/reports/manifest?route=&conductorId=&from=&to= returns a PDF (inline).
func (a *API) GetRouteManifest(c *gin.Context) {
	from, to, err := a.dateRange(c)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	q := services.ReportQuery{
		Route:       c.Query("route"),
		ConductorID: conductorFor(c, c.Query("conductorId")),
		From:        from,
		To:          to,
	}
	pdfBytes, filename, err := a.reports(c).RouteManifest(c.Request.Context(), q)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}
