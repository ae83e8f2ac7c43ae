package postgresrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/tix-wizard/internal/postgres"
)

// SlotRepo reads and writes rows of wizard_slots.
type SlotRepo struct {
	pool postgres.DB
	db   postgres.DB
}

func NewSlotRepo(pool postgres.DB) *SlotRepo {
	return &SlotRepo{pool: pool}
}

func (r *SlotRepo) With(db postgres.DB) *SlotRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SlotRepo) handle() postgres.DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Get returns the live value at key. Expired rows read as absent.
func (r *SlotRepo) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "postgresrepo.SlotRepo.Get"

	var value string
	err := r.handle().QueryRow(ctx,
		`SELECT value FROM wizard_slots
		 WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&value)
	if err != nil {
		err = wrapDBErr(op, err)
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	return value, true, nil
}

// PutMany upserts every pair in one batch with a fresh expiry.
func (r *SlotRepo) PutMany(ctx context.Context, kv map[string]string, expiresAt time.Time) error {
	const op = "postgresrepo.SlotRepo.PutMany"

	if len(kv) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for k, v := range kv {
		b.Queue(
			`INSERT INTO wizard_slots(key, value, expires_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (key) DO UPDATE
			 SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`,
			k, v, expiresAt,
		)
	}

	if err := r.handle().SendBatch(ctx, b).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *SlotRepo) Delete(ctx context.Context, keys ...string) error {
	const op = "postgresrepo.SlotRepo.Delete"

	if len(keys) == 0 {
		return nil
	}

	if _, err := r.handle().Exec(ctx, `DELETE FROM wizard_slots WHERE key = ANY($1)`, keys); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// DeleteExpired removes expired rows and returns how many went.
func (r *SlotRepo) DeleteExpired(ctx context.Context) (int64, error) {
	const op = "postgresrepo.SlotRepo.DeleteExpired"

	tag, err := r.handle().Exec(ctx, `DELETE FROM wizard_slots WHERE expires_at <= now()`)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}
