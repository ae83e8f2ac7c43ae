// Package session keeps one wizard machine per browser session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/kirinyoku/tix-wizard/internal/events"
	"github.com/kirinyoku/tix-wizard/internal/metrics"
	"github.com/kirinyoku/tix-wizard/internal/storage"
	"github.com/kirinyoku/tix-wizard/internal/upload"
	"github.com/kirinyoku/tix-wizard/internal/wizard"
)

type Config struct {
	// IdleTTL is how long an untouched machine stays in memory. Evicted
	// sessions are restored from storage on next access.
	IdleTTL time.Duration
	// SweepInterval is the period of Run.
	SweepInterval time.Duration
}

type Deps struct {
	// Backend is shared by all sessions; each one sees it through its own
	// key prefix. Defaults to an in-process store.
	Backend  storage.Storage
	Uploader upload.Gateway
	Exporter wizard.Exporter
	Bus      events.Bus
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Purge, when set, is called on every sweep to drop expired rows from
	// the backend.
	Purge func(ctx context.Context) (int64, error)
}

type entry struct {
	machine     *wizard.Machine
	ready       chan struct{}
	lastSeen    time.Time
	unsubscribe func()
}

type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func New(deps Deps, cfg Config) *Service {
	if deps.Backend == nil {
		deps.Backend = storage.NewMemory()
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return &Service{
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape NewID produces.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// Machine returns the wizard of session id, restoring it from storage on
// first access.
func (s *Service) Machine(ctx context.Context, id string) (*wizard.Machine, error) {
	const op = "service.session.Machine"

	if !ValidID(id) {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidID)
	}

	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		e.lastSeen = s.now()
		s.mu.Unlock()
		<-e.ready
		return e.machine, nil
	}

	e = &entry{
		machine:  s.newMachine(id),
		ready:    make(chan struct{}),
		lastSeen: s.now(),
	}
	s.sessions[id] = e
	n := len(s.sessions)
	s.mu.Unlock()

	s.deps.Metrics.SetSessions(n)

	e.machine.Restore(ctx)
	e.unsubscribe = e.machine.Subscribe(s.publisher(id))
	close(e.ready)

	return e.machine, nil
}

func (s *Service) newMachine(id string) *wizard.Machine {
	logger := s.deps.Logger.With("session", id)

	st := storage.NewFallback(
		storage.WithPrefix(s.deps.Backend, storage.KeySessionPrefix(id)),
		logger,
		func(error) { s.deps.Metrics.Degraded() },
	)

	return wizard.New(wizard.Deps{
		Storage:  st,
		Uploader: s.deps.Uploader,
		Exporter: s.deps.Exporter,
		Logger:   logger,
		Metrics:  s.deps.Metrics,
	})
}

func (s *Service) publisher(id string) wizard.Observer {
	return func(op string, st domain.State) {
		if s.deps.Bus == nil {
			return
		}
		if err := s.deps.Bus.Publish(context.Background(), events.NewChange(id, op, st)); err != nil {
			s.deps.Logger.Warn("failed to publish change", "session", id, "op", op, "error", err)
		}
	}
}

// Subscribe streams changes of session id to handler until ctx is done.
func (s *Service) Subscribe(ctx context.Context, id string, handler func(ctx context.Context, c events.Change)) error {
	const op = "service.session.Subscribe"

	if !ValidID(id) {
		return fmt.Errorf("%s:%w", op, ErrInvalidID)
	}

	if s.deps.Bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	return s.deps.Bus.Subscribe(ctx, id, handler)
}

// Len is the number of machines held in memory.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Sweep evicts machines idle for longer than IdleTTL. Machines with an
// upload, submit or export in flight are kept.
func (s *Service) Sweep() int {
	cutoff := s.now().Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	var evicted []*entry
	for id, e := range s.sessions {
		if e.lastSeen.After(cutoff) {
			continue
		}

		select {
		case <-e.ready:
		default:
			continue
		}

		b := e.machine.Busy()
		if b.Uploading || b.Submitting || b.Exporting {
			continue
		}

		delete(s.sessions, id)
		evicted = append(evicted, e)
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, e := range evicted {
		e.unsubscribe()
	}

	s.deps.Metrics.SetSessions(n)

	return len(evicted)
}

// Run sweeps every SweepInterval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.deps.Logger.Debug("evicted idle sessions", "count", n)
			}

			if s.deps.Purge != nil {
				purged, err := s.deps.Purge(ctx)
				if err != nil {
					s.deps.Logger.Warn("failed to purge expired slots", "error", err)
					continue
				}
				s.deps.Metrics.Purged(purged)
			}
		}
	}
}
