package billing

import (
	"time"

	"github.com/google/uuid"
)

// Trial sources and statuses. These rows are written by the billing
// service; this subsystem only aggregates them for funnel breakdowns.
const (
	TrialSourceCampaign   = "campaign"
	TrialSourceIndividual = "individual"

	TrialStatusStarted   = "started"
	TrialStatusConverted = "converted"
	TrialStatusExpired   = "expired"
)

// Subscription change types.
const (
	ChangeUpgraded   = "upgraded"
	ChangeDowngraded = "downgraded"
	ChangeCanceled   = "canceled"
)

type Trial struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	Source      string     `gorm:"size:20;not null"`
	Status      string     `gorm:"size:20;not null;default:'started'"`
	StartedAt   time.Time  `gorm:"not null;default:current_timestamp;index"`
	ConvertedAt *time.Time `gorm:"default:null"`
}

// TableName specifies the table name for the Trial model
func (Trial) TableName() string {
	return "trials"
}

type SubscriptionChange struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index"`
	ChangeType string    `gorm:"size:20;not null"`
	ViaTrial   bool      `gorm:"not null;default:false"`
	TierName   string    `gorm:"size:50"`
	CreatedAt  time.Time `gorm:"not null;default:current_timestamp;index"`
}

// TableName specifies the table name for the SubscriptionChange model
func (SubscriptionChange) TableName() string {
	return "subscription_changes"
}
