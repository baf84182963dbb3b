package analytics

import (
	"context"
	"time"

	"github.com/jmcoleman/codescribe-backend/internal/domain/events"
	"github.com/jmcoleman/codescribe-backend/internal/domain/generation"
	"github.com/jmcoleman/codescribe-backend/internal/infrastructure/persistence/postgres/connection"
)

// Window is a half-inclusive [Start, End] query window.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the window length in whole days, minimum 1.
func (w Window) Days() float64 {
	days := w.End.Sub(w.Start).Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}

// SeriesPoint is one bucketed data point of a time series.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// StageCounts is one funnel stage's distinct-session and raw event counts.
type StageCounts struct {
	Sessions int64
	Events   int64
}

// Repository is the read-only aggregation surface over the event log and
// the adjacent generation outcome table. All methods are pure reads.
type Repository interface {
	StageCounts(ctx context.Context, eventNames []string, success *bool, w Window, excludeInternal bool) (StageCounts, error)
	CountEvents(ctx context.Context, eventName string, w Window, excludeInternal bool) (int64, error)
	EventCountSeries(ctx context.Context, eventName string, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error)
	SessionCountSeries(ctx context.Context, eventName string, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error)
	RevenueSeries(ctx context.Context, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error)
	RevenueTotal(ctx context.Context, w Window, excludeInternal bool) (float64, error)
	Outcomes(ctx context.Context, w Window) ([]generation.GenerationOutcome, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) StageCounts(ctx context.Context, eventNames []string, success *bool, w Window, excludeInternal bool) (StageCounts, error) {
	var result struct {
		Sessions int64
		Events   int64
	}

	query := r.db.WithContext(ctx).Model(&events.AnalyticsEvent{}).
		Select("COUNT(DISTINCT session_id) AS sessions, COUNT(*) AS events").
		Where("event_name IN ?", eventNames).
		Where("created_at BETWEEN ? AND ?", w.Start, w.End)

	if success != nil {
		// Start/completion of a generation is one event name distinguished
		// by the payload success flag, not two names.
		query = query.Where("payload->>'success' = ?", boolText(*success))
	}
	if excludeInternal {
		query = query.Where("is_internal = ?", false)
	}

	if err := query.Scan(&result).Error; err != nil {
		return StageCounts{}, err
	}
	return StageCounts{Sessions: result.Sessions, Events: result.Events}, nil
}

func (r *repository) CountEvents(ctx context.Context, eventName string, w Window, excludeInternal bool) (int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&events.AnalyticsEvent{}).
		Where("event_name = ?", eventName).
		Where("created_at BETWEEN ? AND ?", w.Start, w.End)
	if excludeInternal {
		query = query.Where("is_internal = ?", false)
	}
	err := query.Count(&total).Error
	return total, err
}

func (r *repository) EventCountSeries(ctx context.Context, eventName string, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error) {
	return r.series(ctx, "COUNT(*)", eventName, interval, w, excludeInternal)
}

func (r *repository) SessionCountSeries(ctx context.Context, eventName string, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error) {
	return r.series(ctx, "COUNT(DISTINCT session_id)", eventName, interval, w, excludeInternal)
}

func (r *repository) RevenueSeries(ctx context.Context, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error) {
	return r.series(ctx,
		"SUM(COALESCE((payload->>'amount_cents')::bigint, 0)) / 100.0",
		events.EventPaymentReceived, interval, w, excludeInternal)
}

// series runs one grouped aggregation bucketed with DATE_TRUNC, the same
// shape for counts, distinct sessions and payload sums.
func (r *repository) series(ctx context.Context, aggregate string, eventName string, interval string, w Window, excludeInternal bool) ([]SeriesPoint, error) {
	var results []struct {
		Date  string
		Value float64
	}

	query := `
		SELECT
			TO_CHAR(DATE_TRUNC(?, created_at), 'YYYY-MM-DD') AS date,
			` + aggregate + ` AS value
		FROM analytics_events
		WHERE event_name = ?
			AND created_at BETWEEN ? AND ?
			AND (NOT ? OR is_internal = false)
		GROUP BY 1
		ORDER BY 1;
	`

	err := r.db.WithContext(ctx).
		Raw(query, interval, eventName, w.Start, w.End, excludeInternal).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	points := make([]SeriesPoint, 0, len(results))
	for _, result := range results {
		points = append(points, SeriesPoint{Date: result.Date, Value: result.Value})
	}
	return points, nil
}

func (r *repository) RevenueTotal(ctx context.Context, w Window, excludeInternal bool) (float64, error) {
	var total float64
	query := r.db.WithContext(ctx).Model(&events.AnalyticsEvent{}).
		Select("COALESCE(SUM(COALESCE((payload->>'amount_cents')::bigint, 0)), 0) / 100.0").
		Where("event_name = ?", events.EventPaymentReceived).
		Where("created_at BETWEEN ? AND ?", w.Start, w.End)
	if excludeInternal {
		query = query.Where("is_internal = ?", false)
	}
	err := query.Scan(&total).Error
	return total, err
}

func (r *repository) Outcomes(ctx context.Context, w Window) ([]generation.GenerationOutcome, error) {
	var outcomes []generation.GenerationOutcome
	err := r.db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", w.Start, w.End).
		Order("created_at ASC").
		Find(&outcomes).Error
	return outcomes, err
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
