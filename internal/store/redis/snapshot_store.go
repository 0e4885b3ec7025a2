package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"medslot/backend/internal/domain"
	"medslot/backend/internal/store"
)

const keyPrefix = "medslot:snapshot:"

// SnapshotStore keeps the whole state as one JSON string value.
type SnapshotStore struct {
	client redis.Cmdable
	key    string
}

func NewSnapshotStore(client redis.Cmdable, key string) *SnapshotStore {
	if key == "" {
		key = "default"
	}
	return &SnapshotStore{client: client, key: keyPrefix + key}
}

func (s *SnapshotStore) Key() string {
	return s.key
}

func (s *SnapshotStore) Load(ctx context.Context) (domain.State, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.State{}, store.ErrNotFound
		}
		return domain.State{}, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var state domain.State
	if err := json.Unmarshal(b, &state); err != nil {
		return domain.State{}, fmt.Errorf("decode snapshot %s: %w", s.key, err)
	}
	return state, nil
}

func (s *SnapshotStore) Save(ctx context.Context, state domain.State) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
