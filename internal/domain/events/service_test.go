package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/jmcoleman/codescribe-backend/internal/domain/user"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

type mockRepository struct {
	created         []*AnalyticsEvent
	createErr       error
	listRows        []AnalyticsEvent
	listTotal       int64
	listErr         error
	distinct        []string
	flaggedSessions []string
	flagRows        int64
	flagErr         error
}

func (m *mockRepository) Create(ctx context.Context, event *AnalyticsEvent) error {
	if m.createErr != nil {
		return m.createErr
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	m.created = append(m.created, event)
	return nil
}

func (m *mockRepository) List(ctx context.Context, filter Filter, page, limit int) ([]AnalyticsEvent, int64, error) {
	return m.listRows, m.listTotal, m.listErr
}

func (m *mockRepository) CountMatching(ctx context.Context, filter Filter) (int64, error) {
	return m.listTotal, nil
}

func (m *mockRepository) FetchExportBatch(ctx context.Context, filter Filter, offset, limit int) ([]ExportRow, error) {
	return nil, nil
}

func (m *mockRepository) DistinctNames(ctx context.Context) ([]string, error) {
	return m.distinct, nil
}

func (m *mockRepository) MarkSessionInternal(ctx context.Context, sessionID string) (int64, error) {
	if m.flagErr != nil {
		return 0, m.flagErr
	}
	m.flaggedSessions = append(m.flaggedSessions, sessionID)
	return m.flagRows, nil
}

type mockActorStore struct {
	snapshot *user.Snapshot
	err      error
}

func (m *mockActorStore) Snapshot(ctx context.Context, id uuid.UUID) (*user.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

func newTestService(repo *mockRepository, store *mockActorStore) Service {
	log := logger.NewNop()
	return NewService(repo, NewTrustClassifier(store, log), log)
}

func TestRecordValidEvent(t *testing.T) {
	repo := &mockRepository{}
	svc := newTestService(repo, &mockActorStore{})

	recorded, err := svc.Record(context.Background(), RecordInput{
		EventName: EventDocGeneration,
		Payload:   map[string]interface{}{"success": true, "doc_type": "readme"},
		SessionID: "sess-1",
		IPAddress: "203.0.113.9",
	})

	require.NoError(t, err)
	assert.Equal(t, EventDocGeneration, recorded.EventName)
	assert.Equal(t, CategoryWorkflow, recorded.Category)
	assert.NotEqual(t, uuid.Nil, recorded.ID)

	require.Len(t, repo.created, 1)
	stored := repo.created[0]
	assert.Equal(t, "sess-1", stored.SessionID)
	assert.Equal(t, "203.0.113.9", stored.IPAddress)
	assert.False(t, stored.IsInternal)
	assert.JSONEq(t, `{"success":true,"doc_type":"readme"}`, string(stored.Payload))
}

func TestRecordUnknownEventName(t *testing.T) {
	repo := &mockRepository{}
	svc := newTestService(repo, &mockActorStore{})

	_, err := svc.Record(context.Background(), RecordInput{EventName: "made_up_event"})

	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Empty(t, repo.created, "nothing may be written for an unknown name")
}

func TestRecordEmptyPayload(t *testing.T) {
	repo := &mockRepository{}
	svc := newTestService(repo, &mockActorStore{})

	_, err := svc.Record(context.Background(), RecordInput{EventName: EventPageView})

	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "{}", string(repo.created[0].Payload))
}

func TestRecordPersistenceFailure(t *testing.T) {
	repo := &mockRepository{createErr: errors.New("connection reset")}
	svc := newTestService(repo, &mockActorStore{})

	_, err := svc.Record(context.Background(), RecordInput{EventName: EventPageView})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidEvent)
}

func TestRecordTrustResolution(t *testing.T) {
	operatorTier := "pro"
	actorID := uuid.New()

	tests := []struct {
		name     string
		store    *mockActorStore
		userID   *uuid.UUID
		hint     bool
		internal bool
	}{
		{
			name:     "anonymous event keeps hint false",
			store:    &mockActorStore{},
			internal: false,
		},
		{
			name:     "anonymous event keeps hint true",
			store:    &mockActorStore{},
			hint:     true,
			internal: true,
		},
		{
			name:     "regular user stays external",
			store:    &mockActorStore{snapshot: &user.Snapshot{ID: actorID, Role: user.RoleUser}},
			userID:   &actorID,
			internal: false,
		},
		{
			name:     "admin actor is internal",
			store:    &mockActorStore{snapshot: &user.Snapshot{ID: actorID, Role: user.RoleAdmin}},
			userID:   &actorID,
			internal: true,
		},
		{
			name:     "support actor is internal",
			store:    &mockActorStore{snapshot: &user.Snapshot{ID: actorID, Role: user.RoleSupport}},
			userID:   &actorID,
			internal: true,
		},
		{
			name:     "tier override marks internal regardless of role",
			store:    &mockActorStore{snapshot: &user.Snapshot{ID: actorID, Role: user.RoleUser, ViewingAsTier: &operatorTier}},
			userID:   &actorID,
			internal: true,
		},
		{
			name:     "lookup failure degrades to hint",
			store:    &mockActorStore{err: errors.New("db down")},
			userID:   &actorID,
			hint:     false,
			internal: false,
		},
		{
			name:     "lookup failure never clears a true hint",
			store:    &mockActorStore{err: errors.New("db down")},
			userID:   &actorID,
			hint:     true,
			internal: true,
		},
		{
			name:     "regular user cannot weaken a true hint",
			store:    &mockActorStore{snapshot: &user.Snapshot{ID: actorID, Role: user.RoleUser}},
			userID:   &actorID,
			hint:     true,
			internal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{}
			svc := newTestService(repo, tt.store)

			_, err := svc.Record(context.Background(), RecordInput{
				EventName:    EventPageView,
				UserID:       tt.userID,
				InternalHint: tt.hint,
			})

			require.NoError(t, err)
			require.Len(t, repo.created, 1)
			assert.Equal(t, tt.internal, repo.created[0].IsInternal)
		})
	}
}

func TestRecordSessionTrustRepair(t *testing.T) {
	actorID := uuid.New()
	adminStore := &mockActorStore{snapshot: &user.Snapshot{ID: actorID, Role: user.RoleAdmin}}

	tests := []struct {
		name      string
		eventName string
		sessionID string
		userID    *uuid.UUID
		repaired  bool
	}{
		{
			name:      "admin authentication repairs the session",
			eventName: EventSessionAuthenticated,
			sessionID: "sess-1",
			userID:    &actorID,
			repaired:  true,
		},
		{
			name:      "admin signup repairs the session",
			eventName: EventSignupCompleted,
			sessionID: "sess-2",
			userID:    &actorID,
			repaired:  true,
		},
		{
			name:      "non-identity internal event does not trigger repair",
			eventName: EventPageView,
			sessionID: "sess-3",
			userID:    &actorID,
			repaired:  false,
		},
		{
			name:      "identity event without a session has nothing to repair",
			eventName: EventSessionAuthenticated,
			userID:    &actorID,
			repaired:  false,
		},
		{
			name:      "external authentication does not repair",
			eventName: EventSessionAuthenticated,
			sessionID: "sess-4",
			repaired:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{flagRows: 3}
			svc := newTestService(repo, adminStore)

			_, err := svc.Record(context.Background(), RecordInput{
				EventName: tt.eventName,
				SessionID: tt.sessionID,
				UserID:    tt.userID,
			})

			require.NoError(t, err)
			if tt.repaired {
				assert.Equal(t, []string{tt.sessionID}, repo.flaggedSessions)
			} else {
				assert.Empty(t, repo.flaggedSessions)
			}
		})
	}
}

func TestRecordRepairFailureDoesNotFailWrite(t *testing.T) {
	actorID := uuid.New()
	repo := &mockRepository{flagErr: errors.New("lock timeout")}
	svc := newTestService(repo, &mockActorStore{snapshot: &user.Snapshot{ID: actorID, Role: user.RoleAdmin}})

	recorded, err := svc.Record(context.Background(), RecordInput{
		EventName: EventSessionAuthenticated,
		SessionID: "sess-1",
		UserID:    &actorID,
	})

	require.NoError(t, err, "repair is best effort")
	assert.NotNil(t, recorded)
	assert.Len(t, repo.created, 1)
}

func TestFlagSessionInternal(t *testing.T) {
	repo := &mockRepository{flagRows: 5}
	svc := newTestService(repo, &mockActorStore{})

	rows, err := svc.FlagSessionInternal(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rows)

	// Already-flagged rows are untouched, so repeating is harmless.
	repo.flagRows = 0
	rows, err = svc.FlagSessionInternal(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func eventWithAction(name, action string) AnalyticsEvent {
	return AnalyticsEvent{
		ID:        uuid.New(),
		EventName: name,
		Category:  CategoryBusiness,
		Payload:   datatypes.JSON(fmt.Sprintf(`{"action":%q}`, action)),
	}
}

func TestListEventsActionFilter(t *testing.T) {
	rows := []AnalyticsEvent{
		eventWithAction(EventTrialLifecycle, "started"),
		eventWithAction(EventTrialLifecycle, "converted"),
		eventWithAction(EventTrialLifecycle, "started"),
		eventWithAction(EventTrialLifecycle, "expired"),
	}
	repo := &mockRepository{listRows: rows, listTotal: 40}
	svc := newTestService(repo, &mockActorStore{})

	action := "started"
	page, err := svc.ListEvents(context.Background(), ListQuery{
		Action: &action,
		Page:   1,
		Limit:  4,
	})

	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	for _, event := range page.Events {
		assert.Equal(t, "started", TopLevelString(event.Payload, "action"))
	}

	// 2 of 4 fetched rows matched, so the total is scaled to 40 * 2/4.
	assert.Equal(t, int64(20), page.Total)
	assert.Equal(t, 5, page.TotalPages)
}

func TestListEventsWithoutActionFilter(t *testing.T) {
	rows := []AnalyticsEvent{
		eventWithAction(EventTrialLifecycle, "started"),
		eventWithAction(EventTrialLifecycle, "expired"),
	}
	repo := &mockRepository{listRows: rows, listTotal: 2}
	svc := newTestService(repo, &mockActorStore{})

	page, err := svc.ListEvents(context.Background(), ListQuery{Page: 0, Limit: 0})

	require.NoError(t, err)
	assert.Len(t, page.Events, 2)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Page, "page normalizes to 1")
	assert.Equal(t, 1, page.TotalPages)
}

func TestAllNames(t *testing.T) {
	repo := &mockRepository{distinct: []string{"legacy_event", EventPageView}}
	svc := newTestService(repo, &mockActorStore{})

	names, err := svc.AllNames(context.Background())
	require.NoError(t, err)

	assert.Contains(t, names, "legacy_event", "observed historical names stay visible")
	assert.Contains(t, names, EventSessionStart, "declared names appear even when never recorded")

	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i], "names must be sorted")
	}
}
