package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles carried by the account store. Anything above RoleUser is operator
// activity and makes the session internal for analytics purposes.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSupport    = "support"
	RoleSuperAdmin = "super_admin"
)

// User is the account row this subsystem reads for trust resolution and
// export email columns. Its lifecycle is owned by the account service.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Email         string    `gorm:"size:255;not null;uniqueIndex"`
	Role          string    `gorm:"size:20;not null;default:'user'"`
	ViewingAsTier *string   `gorm:"size:50;default:null"`
	CreatedAt     time.Time `gorm:"not null;default:current_timestamp"`
	UpdatedAt     time.Time `gorm:"not null;default:current_timestamp;autoUpdateTime"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// BeforeCreate is called before creating a new user record
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Snapshot is the read-only actor view consumed by trust resolution.
// ViewingAsTier is set while support tooling impersonates a pricing tier;
// any non-empty value marks the actor internal.
type Snapshot struct {
	ID            uuid.UUID
	Email         string
	Role          string
	ViewingAsTier *string
}

// IsOperator reports whether the snapshot's role is operator-level.
func (s *Snapshot) IsOperator() bool {
	switch s.Role {
	case RoleAdmin, RoleSupport, RoleSuperAdmin:
		return true
	}
	return false
}

// HasTierOverride reports whether a viewing-as-tier override is active.
func (s *Snapshot) HasTierOverride() bool {
	return s.ViewingAsTier != nil && *s.ViewingAsTier != ""
}
