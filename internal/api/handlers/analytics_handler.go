package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmcoleman/codescribe-backend/internal/api/dto"
	"github.com/jmcoleman/codescribe-backend/internal/api/middleware"
	"github.com/jmcoleman/codescribe-backend/internal/domain/analytics"
	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/internal/infrastructure/cache"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

// readCacheTTL bounds the staleness of cached funnel and series reads.
const readCacheTTL = 5 * time.Minute

// AnalyticsHandler serves the aggregated read surface: funnels, time
// series, metric comparisons and the CSV export.
type AnalyticsHandler struct {
	service analytics.Service
	cache   *cache.RedisClient
	log     *logger.Logger
}

func NewAnalyticsHandler(service analytics.Service, cacheClient *cache.RedisClient, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, cache: cacheClient, log: log}
}

func (h *AnalyticsHandler) bindFunnelQuery(c *gin.Context) (*analytics.FunnelQuery, string, bool) {
	var query dto.FunnelQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return nil, "", false
	}

	start, end, err := parseWindow(query.StartDate, query.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, "", false
	}

	excludeInternal := boolOrDefault(query.ExcludeInternal, true)
	key := cache.GenerateCacheKey(
		start.Format(time.RFC3339),
		end.Format(time.RFC3339),
		strconv.FormatBool(excludeInternal),
	)
	return &analytics.FunnelQuery{
		Start:           start,
		End:             end,
		ExcludeInternal: excludeInternal,
	}, key, true
}

// cachedRead serves fn's result through the response cache, degrading to a
// direct call when the cache is unavailable.
func (h *AnalyticsHandler) cachedRead(c *gin.Context, key string, fn func() (interface{}, error)) {
	var (
		result interface{}
		err    error
	)
	if h.cache != nil {
		result, err = h.cache.CacheResponse(c.Request.Context(), key, readCacheTTL, fn)
	} else {
		result, err = fn()
	}
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidMetric) || errors.Is(err, analytics.ErrInvalidInterval) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("analytics read failed", zap.String("cache_key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ConversionFunnel reports visitor progression through the generation flow.
func (h *AnalyticsHandler) ConversionFunnel(c *gin.Context) {
	query, key, ok := h.bindFunnelQuery(c)
	if !ok {
		return
	}

	h.cachedRead(c, cache.GenerateCacheKey("funnel", "conversion", key), func() (interface{}, error) {
		return h.service.ConversionFunnel(c.Request.Context(), *query)
	})
}

// BusinessFunnel reports progression from visitor to paying subscriber.
func (h *AnalyticsHandler) BusinessFunnel(c *gin.Context) {
	query, key, ok := h.bindFunnelQuery(c)
	if !ok {
		return
	}

	h.cachedRead(c, cache.GenerateCacheKey("funnel", "business", key), func() (interface{}, error) {
		return h.service.BusinessFunnel(c.Request.Context(), *query)
	})
}

// TimeSeries returns one metric bucketed by day, week or month.
func (h *AnalyticsHandler) TimeSeries(c *gin.Context) {
	var query dto.TimeSeriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	start, end, err := parseWindow(query.StartDate, query.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	excludeInternal := boolOrDefault(query.ExcludeInternal, true)
	key := cache.GenerateCacheKey(
		"timeseries", query.Metric, query.Interval,
		start.Format(time.RFC3339), end.Format(time.RFC3339),
		strconv.FormatBool(excludeInternal),
	)

	h.cachedRead(c, key, func() (interface{}, error) {
		points, err := h.service.TimeSeries(c.Request.Context(), analytics.SeriesQuery{
			Metric:          query.Metric,
			Interval:        query.Interval,
			Start:           start,
			End:             end,
			ExcludeInternal: excludeInternal,
		})
		if err != nil {
			return nil, err
		}
		return gin.H{"metric": query.Metric, "interval": query.Interval, "points": points}, nil
	})
}

// MetricComparison compares a metric against the preceding window of equal
// duration.
func (h *AnalyticsHandler) MetricComparison(c *gin.Context) {
	var query dto.ComparisonQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	start, end, err := parseWindow(query.StartDate, query.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	excludeInternal := boolOrDefault(query.ExcludeInternal, true)
	key := cache.GenerateCacheKey(
		"comparison", query.Metric,
		start.Format(time.RFC3339), end.Format(time.RFC3339),
		strconv.FormatBool(excludeInternal),
	)

	h.cachedRead(c, key, func() (interface{}, error) {
		return h.service.MetricComparison(c.Request.Context(), analytics.ComparisonQuery{
			Metric:          query.Metric,
			Start:           start,
			End:             end,
			ExcludeInternal: excludeInternal,
		})
	})
}

// ExportCSV streams the filtered event log as CSV. The response is written
// incrementally, so failures mid-stream surface as a truncated file.
func (h *AnalyticsHandler) ExportCSV(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	start, end, err := parseWindow(query.StartDate, query.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := events.Filter{
		Start:           start,
		End:             end,
		Category:        categoryParam(query.Category),
		EventNames:      splitNamesParam(query.EventNames),
		ExcludeInternal: boolOrDefault(query.ExcludeInternal, false),
	}

	filename := fmt.Sprintf("analytics_export_%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.service.StreamExport(c.Request.Context(), filter, c.Writer); err != nil {
		if errors.Is(err, analytics.ErrExportWindowTooLarge) {
			// Rejected before the first byte was written.
			c.Header("Content-Disposition", "")
			middleware.CountExportRun("window_too_large")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		middleware.CountExportRun("error")
		h.log.Error("csv export failed", zap.Error(err))
		// Headers may already be on the wire; the client sees a short file.
		c.Status(http.StatusInternalServerError)
		return
	}

	middleware.CountExportRun("ok")
}
