package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jmcoleman/codescribe-backend/internal/infrastructure/persistence/postgres/connection"
)

var ErrUserNotFound = errors.New("user not found")

// ReadStore exposes the actor lookups this subsystem needs. Account
// creation and updates live elsewhere.
type ReadStore interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error)
}

type readStore struct {
	db *connection.Database
}

func NewReadStore(db *connection.Database) ReadStore {
	return &readStore{db: db}
}

func (r *readStore) Snapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	var u User
	result := r.db.WithContext(ctx).First(&u, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &Snapshot{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		ViewingAsTier: u.ViewingAsTier,
	}, nil
}
