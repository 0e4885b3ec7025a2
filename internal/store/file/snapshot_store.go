package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"medslot/backend/internal/domain"
	"medslot/backend/internal/store"
)

// SnapshotStore keeps the state as an indented JSON document on disk. Writes go to
// a sibling temp file first and are renamed into place.
type SnapshotStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewSnapshotStore(fs afero.Fs, path string) *SnapshotStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &SnapshotStore{fs: fs, path: filepath.Clean(path)}
}

func (s *SnapshotStore) Path() string {
	return s.path
}

func (s *SnapshotStore) Load(ctx context.Context) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return domain.State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.State{}, store.ErrNotFound
		}
		return domain.State{}, err
	}
	if len(b) == 0 {
		return domain.State{}, store.ErrNotFound
	}

	var state domain.State
	if err := json.Unmarshal(b, &state); err != nil {
		return domain.State{}, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return state, nil
}

func (s *SnapshotStore) Save(ctx context.Context, state domain.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}
