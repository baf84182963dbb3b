package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmcoleman/codescribe-backend/internal/domain/user"
	"github.com/jmcoleman/codescribe-backend/pkg/logger"
)

// ErrActorLookupFailed marks a degraded trust resolution. It is logged,
// never returned to the write path: availability beats strict trust
// accuracy.
var ErrActorLookupFailed = errors.New("actor lookup failed")

// ActorStore is the read-only account lookup trust resolution depends on.
type ActorStore interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*user.Snapshot, error)
}

// TrustClassifier decides whether an event must be flagged internal.
type TrustClassifier struct {
	store ActorStore
	log   *logger.Logger
}

func NewTrustClassifier(store ActorStore, log *logger.Logger) *TrustClassifier {
	return &TrustClassifier{store: store, log: log}
}

// Resolve computes the internal flag for an event. The caller hint can
// only strengthen the result false to true, never weaken it; with no
// actor known the hint stands as-is. On lookup failure the hint is kept
// rather than blocking the write.
func (t *TrustClassifier) Resolve(ctx context.Context, actorID *uuid.UUID, hint bool) bool {
	if actorID == nil {
		return hint
	}

	snapshot, err := t.store.Snapshot(ctx, *actorID)
	if err != nil {
		t.log.Warn("degrading trust resolution to caller hint",
			zap.Error(fmt.Errorf("%w: %v", ErrActorLookupFailed, err)),
			zap.String("actor_id", actorID.String()),
			zap.Bool("hint", hint),
		)
		return hint
	}

	if snapshot.IsOperator() || snapshot.HasTierOverride() {
		return true
	}
	return hint
}
