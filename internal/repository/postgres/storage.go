package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/tix-wizard/internal/postgres"
	"github.com/kirinyoku/tix-wizard/internal/uow"
)

// Storage is the session key/value backend on wizard_slots. Multi-slot
// writes commit together.
type Storage struct {
	slots    *SlotRepo
	uow      *uow.UoW
	ttl      time.Duration
	onCommit func(ctx context.Context, keys int)
}

// NewStorage returns a backend whose rows expire ttl after their last
// write. onCommit, when set, runs after every committed batch.
func NewStorage(store *postgres.Store, ttl time.Duration, onCommit func(ctx context.Context, keys int)) *Storage {
	return &Storage{
		slots:    NewSlotRepo(store.Pool()),
		uow:      uow.NewUoW(store),
		ttl:      ttl,
		onCommit: onCommit,
	}
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	return s.slots.Get(ctx, key)
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

func (s *Storage) SetMany(ctx context.Context, kv map[string]string) error {
	const op = "postgresrepo.Storage.SetMany"

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgres.DB, after func(uow.AfterCommit)) error {
		if err := s.slots.With(tx).PutMany(ctx, kv, time.Now().Add(s.ttl)); err != nil {
			return err
		}

		if s.onCommit != nil {
			after(func(ctx context.Context) { s.onCommit(ctx, len(kv)) })
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	return s.slots.Delete(ctx, keys...)
}

// Purge removes expired slots.
func (s *Storage) Purge(ctx context.Context) (int64, error) {
	return s.slots.DeleteExpired(ctx)
}
