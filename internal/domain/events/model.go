package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnalyticsEvent is one immutable record of something that happened.
// Rows are insert-only; the single exception is the retroactive
// is_internal repair, which only ever flips false to true.
type AnalyticsEvent struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	EventName  string         `gorm:"size:100;not null;index"`
	Category   Category       `gorm:"size:20;not null;index"`
	SessionID  string         `gorm:"size:100;index"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index"`
	IPAddress  string         `gorm:"size:45"`
	Payload    datatypes.JSON `gorm:"type:jsonb"`
	IsInternal bool           `gorm:"not null;default:false;index"`
	CreatedAt  time.Time      `gorm:"not null;default:current_timestamp;index"`
}

// TableName specifies the table name for the AnalyticsEvent model
func (AnalyticsEvent) TableName() string {
	return "analytics_events"
}

// BeforeCreate is called before inserting a new event record
func (e *AnalyticsEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

// ExportRow is an event joined with the actor's email for CSV export.
type ExportRow struct {
	ID         uuid.UUID      `gorm:"column:id"`
	EventName  string         `gorm:"column:event_name"`
	Category   Category       `gorm:"column:category"`
	SessionID  string         `gorm:"column:session_id"`
	UserID     *uuid.UUID     `gorm:"column:user_id"`
	UserEmail  string         `gorm:"column:user_email"`
	IPAddress  string         `gorm:"column:ip_address"`
	Payload    datatypes.JSON `gorm:"column:payload"`
	IsInternal bool           `gorm:"column:is_internal"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
}
