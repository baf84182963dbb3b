package routes

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/jmcoleman/codescribe-backend/internal/api/handlers"
)

// AnalyticsRoutes handles the setup of the analytics API surface
type AnalyticsRoutes struct {
	events    *handlers.EventsHandler
	analytics *handlers.AnalyticsHandler
}

// NewAnalyticsRoutes creates a new AnalyticsRoutes instance
func NewAnalyticsRoutes(events *handlers.EventsHandler, analytics *handlers.AnalyticsHandler) *AnalyticsRoutes {
	return &AnalyticsRoutes{
		events:    events,
		analytics: analytics,
	}
}

// RegisterRoutes registers all analytics-related routes
func (ar *AnalyticsRoutes) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/analytics")

	// Write path
	group.POST("/events", ar.events.Record)
	group.POST("/sessions/:session_id/internal", ar.events.FlagSession)

	// Raw-event reads
	group.GET("/events", gzip.Gzip(gzip.DefaultCompression), ar.events.ListEvents)
	group.GET("/events/names", ar.events.ListEventNames)

	// Aggregated reads
	group.GET("/funnel", ar.analytics.ConversionFunnel)
	group.GET("/funnel/business", ar.analytics.BusinessFunnel)
	group.GET("/timeseries", ar.analytics.TimeSeries)
	group.GET("/comparison", ar.analytics.MetricComparison)

	// Export streams incrementally; gzip keeps large windows manageable
	group.GET("/export", gzip.Gzip(gzip.DefaultCompression), ar.analytics.ExportCSV)
}
