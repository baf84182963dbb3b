package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

var (
	// ErrInvalidEvent rejects names outside the taxonomy before any write.
	ErrInvalidEvent = errors.New("unknown event name")
	// ErrInvalidPayload rejects payloads that cannot be serialized.
	ErrInvalidPayload = errors.New("invalid event payload")
)

// Events whose recording means "this actor authenticated in this session".
// They trigger the retroactive session trust repair.
var sessionIdentityEvents = map[string]struct{}{
	EventSessionAuthenticated: {},
	EventSignupCompleted:      {},
}

// RecordInput is the write-path contract.
type RecordInput struct {
	EventName    string
	Payload      map[string]interface{}
	SessionID    string
	UserID       *uuid.UUID
	IPAddress    string
	InternalHint bool
}

// RecordedEvent is what callers get back from a successful write.
type RecordedEvent struct {
	ID        uuid.UUID `json:"id"`
	EventName string    `json:"event_name"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// ListQuery selects a page of raw events. Action filters on the payload's
// sub-action field and is applied in memory after the page fetch.
type ListQuery struct {
	Filter
	Action *string
	Page   int
	Limit  int
}

// EventPage is a paginated slice of raw events.
type EventPage struct {
	Events     []AnalyticsEvent `json:"events"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

// Service is the event recorder: validation, trust resolution, persistence
// and the best-effort session trust repair.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*RecordedEvent, error)
	FlagSessionInternal(ctx context.Context, sessionID string) (int64, error)
	ListEvents(ctx context.Context, query ListQuery) (*EventPage, error)
	AllNames(ctx context.Context) ([]string, error)
}

type service struct {
	repo  Repository
	trust *TrustClassifier
	log   *logger.Logger
}

func NewService(repo Repository, trust *TrustClassifier, log *logger.Logger) Service {
	return &service{repo: repo, trust: trust, log: log}
}

func (s *service) Record(ctx context.Context, input RecordInput) (*RecordedEvent, error) {
	category, ok := CategoryOf(input.EventName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, input.EventName)
	}

	payload := datatypes.JSON("{}")
	if len(input.Payload) > 0 {
		encoded, err := json.Marshal(input.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		payload = datatypes.JSON(encoded)
	}

	isInternal := s.trust.Resolve(ctx, input.UserID, input.InternalHint)

	event := &AnalyticsEvent{
		EventName:  input.EventName,
		Category:   category,
		SessionID:  input.SessionID,
		UserID:     input.UserID,
		IPAddress:  input.IPAddress,
		Payload:    payload,
		IsInternal: isInternal,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		s.log.Error("failed to persist analytics event",
			zap.String("event_name", input.EventName),
			zap.Error(err),
			zap.Time("timestamp", time.Now().UTC()),
		)
		return nil, fmt.Errorf("persisting analytics event: %w", err)
	}

	// An internal actor authenticating repairs the session's earlier
	// anonymous events. Best effort: failure never fails the write.
	if isInternal && input.SessionID != "" {
		if _, identity := sessionIdentityEvents[input.EventName]; identity {
			if _, err := s.FlagSessionInternal(ctx, input.SessionID); err != nil {
				s.log.Warn("session trust repair failed",
					zap.String("session_id", input.SessionID),
					zap.Error(err),
				)
			}
		}
	}

	return &RecordedEvent{
		ID:        event.ID,
		EventName: event.EventName,
		Category:  event.Category,
		CreatedAt: event.CreatedAt,
	}, nil
}

func (s *service) FlagSessionInternal(ctx context.Context, sessionID string) (int64, error) {
	repaired, err := s.repo.MarkSessionInternal(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if repaired > 0 {
		s.log.Info("flagged session events internal",
			zap.String("session_id", sessionID),
			zap.Int64("rows", repaired),
		)
	}
	return repaired, nil
}

func (s *service) ListEvents(ctx context.Context, query ListQuery) (*EventPage, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = 50
	}

	rows, total, err := s.repo.List(ctx, query.Filter, query.Page, query.Limit)
	if err != nil {
		return nil, err
	}

	if query.Action != nil && len(rows) > 0 {
		fetched := len(rows)
		kept := rows[:0]
		for _, row := range rows {
			field := "action"
			if f, _, ok := ActionSpec(row.EventName); ok {
				field = f
			}
			if TopLevelString(row.Payload, field) == *query.Action {
				kept = append(kept, row)
			}
		}
		rows = kept

		// The action lives inside the payload, so the page was filtered in
		// memory. The total is scaled by the page's retention ratio; a known
		// approximation, kept deliberately.
		total = int64(math.Round(float64(total) * float64(len(rows)) / float64(fetched)))
	}

	totalPages := 0
	if query.Limit > 0 {
		totalPages = int((total + int64(query.Limit) - 1) / int64(query.Limit))
	}

	return &EventPage{
		Events:     rows,
		Total:      total,
		Page:       query.Page,
		TotalPages: totalPages,
	}, nil
}

// AllNames returns the catalogue of event names: every declared name plus
// every name actually observed in storage, so ad-hoc historical events stay
// visible to filtering UIs.
func (s *service) AllNames(ctx context.Context) ([]string, error) {
	observed, err := s.repo.DistinctNames(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, name := range DeclaredNames() {
		set[name] = struct{}{}
	}
	for _, name := range observed {
		set[name] = struct{}{}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
