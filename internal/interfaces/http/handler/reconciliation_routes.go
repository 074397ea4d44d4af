package handler

import (
	"github.com/finrec/backend/internal/interfaces/http/router"
)

// ReconciliationRoutes creates the route group for reconciliation endpoints
func ReconciliationRoutes(h *ReconciliationHandler) *router.DomainGroup {
	group := router.NewDomainGroup("reconciliation", "/reconciliation")

	// Runs
	group.POST("/runs", h.StartRun)
	group.GET("/runs/:id", h.GetRun)
	group.GET("/runs/:id/issues", h.ListIssues)

	// Dashboard summary
	group.GET("/summary/latest", h.LatestSummary)

	// Review workflow
	group.POST("/results/:id/review", h.Review)

	return group
}
