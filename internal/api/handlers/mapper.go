package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmcoleman/codescribe-backend/internal/api/dto"
	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
)

// defaultWindowDays is the query window applied when no dates are given.
const defaultWindowDays = 30

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected RFC3339 or YYYY-MM-DD", value)
}

// parseWindow resolves the optional start/end parameters. A date-only end
// covers the whole day; an empty window defaults to the last 30 days.
func parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if endStr != "" {
		parsed, err := parseDate(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
		if len(endStr) == len("2006-01-02") {
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
	}

	start := end.AddDate(0, 0, -defaultWindowDays)
	if startStr != "" {
		parsed, err := parseDate(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date %s is after end_date %s", startStr, endStr)
	}
	return start, end, nil
}

func boolOrDefault(value *bool, def bool) bool {
	if value == nil {
		return def
	}
	return *value
}

func splitNamesParam(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

func categoryParam(value string) *events.Category {
	if value == "" {
		return nil
	}
	category := events.Category(value)
	return &category
}

// EventToResponse converts a domain event to its API shape.
func EventToResponse(event events.AnalyticsEvent) dto.EventResponse {
	var payload map[string]interface{}
	if len(event.Payload) > 0 {
		// A payload that fails to decode is returned empty rather than
		// failing the whole page.
		_ = json.Unmarshal(event.Payload, &payload)
	}

	return dto.EventResponse{
		ID:         event.ID,
		EventName:  event.EventName,
		Category:   string(event.Category),
		SessionID:  event.SessionID,
		UserID:     event.UserID,
		IPAddress:  event.IPAddress,
		Payload:    payload,
		IsInternal: event.IsInternal,
		CreatedAt:  event.CreatedAt,
	}
}
