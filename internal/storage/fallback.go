package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Fallback forwards to a primary Storage until the first failure, then
// switches permanently to an in-memory store for the rest of its life.
// It only returns an error when the caller's context was cancelled, which
// leaves the primary in place.
//
// Values written before the switch are not copied; a session that degrades
// keeps working from whatever it holds in memory from then on.
type Fallback struct {
	primary Storage
	memory  *Memory
	logger  *slog.Logger

	mu        sync.RWMutex
	degraded  bool
	onDegrade func(err error)
}

func NewFallback(primary Storage, logger *slog.Logger, onDegrade func(err error)) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		primary:   primary,
		memory:    NewMemory(),
		logger:    logger,
		onDegrade: onDegrade,
	}
}

// Persistent reports whether writes still reach the primary store.
func (f *Fallback) Persistent() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return !f.degraded && f.primary != nil
}

func (f *Fallback) active() Storage {
	if f.Persistent() {
		return f.primary
	}
	return f.memory
}

// abandoned reports whether err only reflects the caller giving up on the
// call. Such failures say nothing about the health of the primary store.
func abandoned(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

func (f *Fallback) degrade(op string, err error) {
	f.mu.Lock()
	already := f.degraded
	f.degraded = true
	f.mu.Unlock()

	if already {
		return
	}

	f.logger.Warn("storage degraded to memory", "op", op, "error", err)
	if f.onDegrade != nil {
		f.onDegrade(err)
	}
}

func (f *Fallback) Get(ctx context.Context, key string) (string, bool, error) {
	s := f.active()

	v, ok, err := s.Get(ctx, key)
	if err != nil {
		if abandoned(ctx, err) {
			return "", false, err
		}
		f.degrade("get", err)
		return f.memory.Get(ctx, key)
	}

	return v, ok, nil
}

func (f *Fallback) Set(ctx context.Context, key, value string) error {
	return f.SetMany(ctx, map[string]string{key: value})
}

func (f *Fallback) SetMany(ctx context.Context, kv map[string]string) error {
	s := f.active()

	if err := s.SetMany(ctx, kv); err != nil {
		if abandoned(ctx, err) {
			return err
		}
		f.degrade("set", err)
		return f.memory.SetMany(ctx, kv)
	}

	return nil
}

func (f *Fallback) Delete(ctx context.Context, keys ...string) error {
	s := f.active()

	if err := s.Delete(ctx, keys...); err != nil {
		if abandoned(ctx, err) {
			return err
		}
		f.degrade("delete", err)
		return f.memory.Delete(ctx, keys...)
	}

	return nil
}
