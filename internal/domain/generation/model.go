package generation

import (
	"time"

	"github.com/google/uuid"
)

// GenerationOutcome is one completed documentation-generation attempt,
// written by the generation service and read here for latency, cache-hit
// and throughput metrics.
type GenerationOutcome struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	SessionID string     `gorm:"size:100;index"`
	UserID    *uuid.UUID `gorm:"type:uuid;index"`
	DocType   string     `gorm:"size:50"`
	Success   bool       `gorm:"not null;default:false"`
	LatencyMs int64      `gorm:"not null;default:0"`
	TTFTMs    int64      `gorm:"column:ttft_ms;not null;default:0"`
	CacheHit  bool       `gorm:"not null;default:false"`
	CreatedAt time.Time  `gorm:"not null;default:current_timestamp;index"`
}

// TableName specifies the table name for the GenerationOutcome model
func (GenerationOutcome) TableName() string {
	return "generation_outcomes"
}
