package events

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jmcoleman/codescribe-backend/internal/infrastructure/persistence/postgres/connection"
)

// Filter selects events by window and optional attributes. One filter
// struct composes one WHERE chain; every caller goes through it.
type Filter struct {
	Start           time.Time
	End             time.Time
	Category        *Category
	EventNames      []string
	ExcludeInternal bool
}

// Scope returns a gorm scope applying the filter. prefix qualifies column
// names when the query joins other tables.
func (f Filter) Scope(prefix string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		q = q.Where(prefix+"created_at BETWEEN ? AND ?", f.Start, f.End)
		if f.Category != nil {
			q = q.Where(prefix+"category = ?", *f.Category)
		}
		if len(f.EventNames) > 0 {
			q = q.Where(prefix+"event_name IN ?", f.EventNames)
		}
		if f.ExcludeInternal {
			q = q.Where(prefix+"is_internal = ?", false)
		}
		return q
	}
}

// Repository defines persistence operations for analytics events.
type Repository interface {
	Create(ctx context.Context, event *AnalyticsEvent) error
	List(ctx context.Context, filter Filter, page, limit int) ([]AnalyticsEvent, int64, error)
	CountMatching(ctx context.Context, filter Filter) (int64, error)
	FetchExportBatch(ctx context.Context, filter Filter, offset, limit int) ([]ExportRow, error)
	DistinctNames(ctx context.Context) ([]string, error)
	MarkSessionInternal(ctx context.Context, sessionID string) (int64, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, event *AnalyticsEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) List(ctx context.Context, filter Filter, page, limit int) ([]AnalyticsEvent, int64, error) {
	var rows []AnalyticsEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&AnalyticsEvent{}).Scopes(filter.Scope(""))

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}

	// Secondary order on id keeps pagination stable within a timestamp.
	err := query.Order("created_at DESC, id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}

func (r *repository) CountMatching(ctx context.Context, filter Filter) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&AnalyticsEvent{}).
		Scopes(filter.Scope("")).
		Count(&total).Error
	return total, err
}

func (r *repository) FetchExportBatch(ctx context.Context, filter Filter, offset, limit int) ([]ExportRow, error) {
	var rows []ExportRow
	err := r.db.WithContext(ctx).
		Table("analytics_events AS e").
		Select("e.id, e.event_name, e.category, e.session_id, e.user_id, COALESCE(u.email, '') AS user_email, e.ip_address, e.payload, e.is_internal, e.created_at").
		Joins("LEFT JOIN users u ON u.id = e.user_id").
		Scopes(filter.Scope("e.")).
		Order("e.created_at DESC, e.id ASC").
		Offset(offset).
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *repository) DistinctNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&AnalyticsEvent{}).
		Distinct("event_name").
		Order("event_name ASC").
		Pluck("event_name", &names).Error
	return names, err
}

// MarkSessionInternal flags every not-yet-internal event of a session.
// Re-running it is a no-op for rows already flagged.
func (r *repository) MarkSessionInternal(ctx context.Context, sessionID string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&AnalyticsEvent{}).
		Where("session_id = ? AND is_internal = ?", sessionID, false).
		Update("is_internal", true)
	return result.RowsAffected, result.Error
}
