package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"medslot/backend/internal/domain"
	"medslot/backend/internal/store"
)

const DefaultSnapshotKey = "default"

type snapshotRow struct {
	bun.BaseModel `bun:"table:scheduling_snapshots"`

	Key      string    `bun:"key,pk"`
	Revision uuid.UUID `bun:"revision,type:uuid,notnull"`
	Document string    `bun:"document,type:jsonb,notnull"`
	SavedAt  time.Time `bun:"saved_at,notnull"`
}

// SnapshotRepo stores the state document in one row per key. Saves are serialized
// with a transaction-scoped advisory lock on the key and refuse to overwrite a
// revision this process has not seen.
type SnapshotRepo struct {
	db  *bun.DB
	key string
	now func() time.Time

	mu       sync.Mutex
	revision uuid.UUID
}

func NewSnapshotRepo(db *bun.DB, key string) *SnapshotRepo {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SnapshotRepo{db: db, key: key, now: time.Now}
}

// EnsureSchema creates the snapshot table when migrations have not been applied.
func (r *SnapshotRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*snapshotRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return mapPgError(err)
}

func (r *SnapshotRepo) Load(ctx context.Context) (domain.State, error) {
	var row snapshotRow
	err := r.db.NewSelect().
		Model(&row).
		Where("key = ?", r.key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.State{}, store.ErrNotFound
		}
		return domain.State{}, mapPgError(err)
	}

	state, err := decodeDocument(row.Document)
	if err != nil {
		return domain.State{}, fmt.Errorf("snapshot %q revision %s: %w", r.key, row.Revision, err)
	}

	r.mu.Lock()
	r.revision = row.Revision
	r.mu.Unlock()

	return state, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, state domain.State) error {
	doc, err := encodeDocument(state)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := uuid.NewV7()
	if err != nil {
		return err
	}

	err = r.inSnapshotTransaction(ctx, func(ctx context.Context, tx bun.Tx) error {
		current, err := currentRevision(ctx, tx, r.key)
		if err != nil {
			return err
		}
		if current != uuid.Nil && current != r.revision {
			return store.ErrConflict
		}

		row := snapshotRow{
			Key:      r.key,
			Revision: next,
			Document: doc,
			SavedAt:  r.now().UTC(),
		}
		_, err = tx.NewInsert().
			Model(&row).
			On("CONFLICT (key) DO UPDATE").
			Set("revision = EXCLUDED.revision").
			Set("document = EXCLUDED.document").
			Set("saved_at = EXCLUDED.saved_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return mapPgError(err)
	}

	r.revision = next
	return nil
}

func (r *SnapshotRepo) inSnapshotTransaction(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockSnapshot(ctx, tx, r.key); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func lockSnapshot(ctx context.Context, tx bun.Tx, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "medslot:"+key).Exec(ctx)
	return err
}

func currentRevision(ctx context.Context, tx bun.Tx, key string) (uuid.UUID, error) {
	var row snapshotRow
	err := tx.NewSelect().
		Model(&row).
		Column("revision").
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, nil
		}
		return uuid.Nil, err
	}
	return row.Revision, nil
}

func encodeDocument(state domain.State) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

func decodeDocument(doc string) (domain.State, error) {
	var state domain.State
	if err := json.Unmarshal([]byte(doc), &state); err != nil {
		return domain.State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, nil
}

// mapPgError turns lock contention and serialization failures into store.ErrConflict.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "42P01":
			return fmt.Errorf("snapshot table missing (apply migrations): %w", err)
		}
	}
	return err
}
