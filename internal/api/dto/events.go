package dto

import (
	"time"

	"github.com/google/uuid"
)

// RecordEventRequest represents the request to record an analytics event.
// InternalHint lets trusted callers pre-flag anonymous operator activity;
// the server can only strengthen it, never weaken it.
type RecordEventRequest struct {
	EventName    string                 `json:"event_name" binding:"required"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	UserID       *uuid.UUID             `json:"user_id,omitempty"`
	InternalHint bool                   `json:"internal_hint,omitempty"`
}

// RecordEventResponse represents a successfully recorded event
type RecordEventResponse struct {
	ID        uuid.UUID `json:"id"`
	EventName string    `json:"event_name"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// EventResponse represents a single raw event entry
type EventResponse struct {
	ID         uuid.UUID              `json:"id"`
	EventName  string                 `json:"event_name"`
	Category   string                 `json:"category"`
	SessionID  string                 `json:"session_id,omitempty"`
	UserID     *uuid.UUID             `json:"user_id,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	IsInternal bool                   `json:"is_internal"`
	CreatedAt  time.Time              `json:"created_at"`
}

// EventListResponse represents the paginated raw-event response
type EventListResponse struct {
	Events     []EventResponse `json:"events"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
}

// EventNamesResponse represents the event-name catalogue
type EventNamesResponse struct {
	Names []string `json:"names"`
}

// EventListQuery represents the filter parameters for raw-event queries
type EventListQuery struct {
	StartDate       string `form:"start_date"`
	EndDate         string `form:"end_date"`
	Category        string `form:"category"`
	EventNames      string `form:"event_names"`
	Action          string `form:"action"`
	ExcludeInternal *bool  `form:"exclude_internal"`
	Page            int    `form:"page,default=1" binding:"min=0"`
	Limit           int    `form:"limit,default=50" binding:"min=0,max=1000"`
}
