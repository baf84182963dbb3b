package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmcoleman/codescribe-backend/internal/api/dto"
	"github.com/jmcoleman/codescribe-backend/internal/api/middleware"
	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

// EventsHandler serves the event write path and raw-event reads.
type EventsHandler struct {
	service events.Service
	log     *logger.Logger
}

func NewEventsHandler(service events.Service, log *logger.Logger) *EventsHandler {
	return &EventsHandler{service: service, log: log}
}

// Record ingests a single analytics event. Unknown event names are rejected
// before anything is written.
func (h *EventsHandler) Record(c *gin.Context) {
	var req dto.RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	recorded, err := h.service.Record(c.Request.Context(), events.RecordInput{
		EventName:    req.EventName,
		Payload:      req.Payload,
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		IPAddress:    c.ClientIP(),
		InternalHint: req.InternalHint,
	})
	if err != nil {
		if errors.Is(err, events.ErrInvalidEvent) || errors.Is(err, events.ErrInvalidPayload) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("failed to record event", zap.String("event_name", req.EventName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record event"})
		return
	}

	middleware.CountEventRecorded(string(recorded.Category))

	c.JSON(http.StatusAccepted, dto.RecordEventResponse{
		ID:        recorded.ID,
		EventName: recorded.EventName,
		Category:  string(recorded.Category),
		CreatedAt: recorded.CreatedAt,
	})
}

// ListEvents returns a filtered, paginated page of raw events. Internal
// traffic is included unless exclude_internal=true is passed.
func (h *EventsHandler) ListEvents(c *gin.Context) {
	var query dto.EventListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	start, end, err := parseWindow(query.StartDate, query.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listQuery := events.ListQuery{
		Filter: events.Filter{
			Start:           start,
			End:             end,
			Category:        categoryParam(query.Category),
			EventNames:      splitNamesParam(query.EventNames),
			ExcludeInternal: boolOrDefault(query.ExcludeInternal, false),
		},
		Page:  query.Page,
		Limit: query.Limit,
	}
	if query.Action != "" {
		action := query.Action
		listQuery.Action = &action
	}

	page, err := h.service.ListEvents(c.Request.Context(), listQuery)
	if err != nil {
		h.log.Error("failed to list events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve events"})
		return
	}

	responses := make([]dto.EventResponse, 0, len(page.Events))
	for _, event := range page.Events {
		responses = append(responses, EventToResponse(event))
	}

	c.JSON(http.StatusOK, dto.EventListResponse{
		Events:     responses,
		Total:      page.Total,
		Page:       page.Page,
		TotalPages: page.TotalPages,
	})
}

// ListEventNames returns every known event name, declared or observed.
func (h *EventsHandler) ListEventNames(c *gin.Context) {
	names, err := h.service.AllNames(c.Request.Context())
	if err != nil {
		h.log.Error("failed to list event names", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event names"})
		return
	}

	c.JSON(http.StatusOK, dto.EventNamesResponse{Names: names})
}

// FlagSession retroactively marks every event in a session as internal.
func (h *EventsHandler) FlagSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	updated, err := h.service.FlagSessionInternal(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error("failed to flag session internal", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to flag session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "events_updated": updated})
}
