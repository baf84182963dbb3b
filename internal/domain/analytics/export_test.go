package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

// mockExportRepo serves FetchExportBatch pages from an in-memory slice.
type mockExportRepo struct {
	rows    []events.ExportRow
	fetches int
}

func (m *mockExportRepo) Create(ctx context.Context, event *events.AnalyticsEvent) error {
	return nil
}

func (m *mockExportRepo) List(ctx context.Context, filter events.Filter, page, limit int) ([]events.AnalyticsEvent, int64, error) {
	return nil, 0, nil
}

func (m *mockExportRepo) CountMatching(ctx context.Context, filter events.Filter) (int64, error) {
	return int64(len(m.rows)), nil
}

func (m *mockExportRepo) FetchExportBatch(ctx context.Context, filter events.Filter, offset, limit int) ([]events.ExportRow, error) {
	m.fetches++
	if offset >= len(m.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.rows) {
		end = len(m.rows)
	}
	return m.rows[offset:end], nil
}

func (m *mockExportRepo) DistinctNames(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *mockExportRepo) MarkSessionInternal(ctx context.Context, sessionID string) (int64, error) {
	return 0, nil
}

func exportRow(name string, payload string, created time.Time) events.ExportRow {
	return events.ExportRow{
		ID:        uuid.New(),
		EventName: name,
		Category:  events.CategoryWorkflow,
		SessionID: "sess-1",
		UserEmail: "dev@example.com",
		IPAddress: "203.0.113.9",
		Payload:   datatypes.JSON(payload),
		CreatedAt: created,
	}
}

func exportFilter(days int) events.Filter {
	end := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	return events.Filter{Start: end.AddDate(0, 0, -days), End: end}
}

func runExport(t *testing.T, repo events.Repository, cfg ExportConfig, filter events.Filter) [][]string {
	t.Helper()
	exporter := NewExporter(repo, cfg, logger.NewNop())

	var buf bytes.Buffer
	require.NoError(t, exporter.Stream(context.Background(), filter, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExportWindowTooLarge(t *testing.T) {
	repo := &mockExportRepo{}
	exporter := NewExporter(repo, ExportConfig{MaxWindowDays: 90}, logger.NewNop())

	var buf bytes.Buffer
	err := exporter.Stream(context.Background(), exportFilter(91), &buf)

	assert.ErrorIs(t, err, ErrExportWindowTooLarge)
	assert.Zero(t, buf.Len(), "nothing may be written for a rejected window")
	assert.Zero(t, repo.fetches, "rejection happens before any query")
}

func TestExportHeaderComposition(t *testing.T) {
	created := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	repo := &mockExportRepo{rows: []events.ExportRow{
		exportRow("doc_generation", `{"action":"x","origin":"y","doc_type":"readme","options":{"toc":true}}`, created),
		exportRow("page_view", `{"path":"/pricing"}`, created),
	}}

	records := runExport(t, repo, ExportConfig{}, exportFilter(30))
	require.Len(t, records, 3)

	header := records[0]
	assert.Equal(t, []string{
		"id", "event_name", "category", "action", "origin", "session_id",
		"user_id", "user_email", "ip_address", "is_internal", "created_at",
		"payload.doc_type", "payload.options.toc", "payload.path",
	}, header, "fixed columns first, then sorted discovered paths; promoted keys not duplicated")
}

func TestExportRowRendering(t *testing.T) {
	created := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	repo := &mockExportRepo{rows: []events.ExportRow{
		exportRow("doc_generation", `{"action":"generate","doc_type":"api, docs","note":"say \"hi\""}`, created),
	}}

	records := runExport(t, repo, ExportConfig{}, exportFilter(30))
	require.Len(t, records, 2)

	header, row := records[0], records[1]
	byColumn := map[string]string{}
	for i, column := range header {
		byColumn[column] = row[i]
	}

	assert.Equal(t, "doc_generation", byColumn["event_name"])
	assert.Equal(t, "workflow", byColumn["category"])
	assert.Equal(t, "generate", byColumn["action"], "promoted from the payload")
	assert.Equal(t, "dev@example.com", byColumn["user_email"])
	assert.Equal(t, "", byColumn["user_id"], "nil actor renders empty")
	assert.Equal(t, "false", byColumn["is_internal"])
	assert.Equal(t, "2026-08-20T10:30:00Z", byColumn["created_at"])
	assert.Equal(t, "api, docs", byColumn["payload.doc_type"], "csv layer handles embedded commas")
	assert.Equal(t, `say "hi"`, byColumn["payload.note"])
}

func TestExportRowCeiling(t *testing.T) {
	rows := make([]events.ExportRow, 10)
	for i := range rows {
		rows[i] = exportRow("page_view", fmt.Sprintf(`{"n":%d}`, i), time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	}
	repo := &mockExportRepo{rows: rows}

	records := runExport(t, repo, ExportConfig{MaxRows: 7, BatchSize: 3}, exportFilter(30))

	assert.Len(t, records, 8, "header plus exactly the row ceiling")
}

func TestExportSparseColumns(t *testing.T) {
	created := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	repo := &mockExportRepo{rows: []events.ExportRow{
		exportRow("file_uploaded", `{"size_kb":120}`, created),
		exportRow("page_view", `{"path":"/"}`, created),
	}}

	records := runExport(t, repo, ExportConfig{}, exportFilter(30))
	require.Len(t, records, 3)

	header := records[0]
	pathIdx, sizeIdx := -1, -1
	for i, column := range header {
		switch column {
		case "payload.path":
			pathIdx = i
		case "payload.size_kb":
			sizeIdx = i
		}
	}
	require.GreaterOrEqual(t, pathIdx, 0)
	require.GreaterOrEqual(t, sizeIdx, 0)

	assert.Equal(t, "", records[1][pathIdx], "absent paths render as empty cells")
	assert.Equal(t, "120", records[1][sizeIdx])
	assert.Equal(t, "/", records[2][pathIdx])
	assert.Equal(t, "", records[2][sizeIdx])
}

func TestExportMalformedPayloadSkipped(t *testing.T) {
	created := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	broken := exportRow("page_view", `{"broken`, created)
	repo := &mockExportRepo{rows: []events.ExportRow{
		broken,
		exportRow("page_view", `{"path":"/"}`, created),
	}}

	records := runExport(t, repo, ExportConfig{}, exportFilter(30))

	require.Len(t, records, 3, "a malformed payload must not sink the export")
	assert.Contains(t, records[0], "payload.path")
}

func TestExportDeterministic(t *testing.T) {
	created := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	rows := []events.ExportRow{
		exportRow("doc_generation", `{"z":1,"a":2,"m":{"x":3}}`, created),
		exportRow("page_view", `{"b":"two"}`, created),
	}

	first := runExport(t, &mockExportRepo{rows: rows}, ExportConfig{}, exportFilter(30))
	second := runExport(t, &mockExportRepo{rows: rows}, ExportConfig{}, exportFilter(30))

	assert.Equal(t, first, second, "identical log and filter must produce identical output")
	assert.True(t, strings.HasPrefix(strings.Join(first[0], ","), "id,event_name"))
}
