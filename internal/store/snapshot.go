package store

import (
	"context"

	"medslot/backend/internal/domain"
)

// SnapshotStore persists the whole scheduling state as one document. Load returns
// ErrNotFound when nothing has been saved yet.
type SnapshotStore interface {
	Load(ctx context.Context) (domain.State, error)
	Save(ctx context.Context, state domain.State) error
}
