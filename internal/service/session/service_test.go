package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/kirinyoku/tix-wizard/internal/events"
	"github.com/kirinyoku/tix-wizard/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T, deps Deps) (*Service, *clock) {
	t.Helper()

	c := &clock{t: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)}
	s := New(deps, Config{IdleTTL: time.Minute})
	s.now = c.now
	return s, c
}

func TestMachineRejectsInvalidID(t *testing.T) {
	s, _ := newService(t, Deps{})

	for _, id := range []string{"", "abc", "../../etc", "urn:uuid:8e1f3f0e-5a6b-4c1d-9e2f-3a4b5c6d7e8f"} {
		_, err := s.Machine(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
}

func TestMachineIsCachedPerSession(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Deps{})

	a := NewID()
	m1, err := s.Machine(ctx, a)
	require.NoError(t, err)
	m2, err := s.Machine(ctx, a)
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	other, err := s.Machine(ctx, NewID())
	require.NoError(t, err)
	assert.NotSame(t, m1, other)
	assert.Equal(t, 2, s.Len())
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	s, _ := newService(t, Deps{Backend: backend})

	a, err := s.Machine(ctx, NewID())
	require.NoError(t, err)
	b, err := s.Machine(ctx, NewID())
	require.NoError(t, err)

	_, err = a.ConfirmSelection(ctx, domain.TypeVIP, 5)
	require.NoError(t, err)

	assert.Equal(t, domain.Selection, b.State().Position)
	assert.Equal(t, 20, b.State().Inventory[1].Remaining)
	assert.Equal(t, 15, a.State().Inventory[1].Remaining)
}

func TestSweepEvictsIdleAndRestores(t *testing.T) {
	ctx := context.Background()
	s, c := newService(t, Deps{Backend: storage.NewMemory()})

	id := NewID()
	m, err := s.Machine(ctx, id)
	require.NoError(t, err)
	_, err = m.ConfirmSelection(ctx, domain.TypeVVIP, 2)
	require.NoError(t, err)

	c.advance(30 * time.Second)
	assert.Zero(t, s.Sweep())

	c.advance(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Zero(t, s.Len())

	restored, err := s.Machine(ctx, id)
	require.NoError(t, err)
	assert.NotSame(t, m, restored)

	st := restored.State()
	assert.Equal(t, domain.Details, st.Position)
	assert.Equal(t, domain.TypeVVIP, st.Draft.SelectedType)
	assert.Equal(t, 18, st.Inventory[2].Remaining)
}

func TestChangesArePublished(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewLocal()
	s, _ := newService(t, Deps{Bus: bus})
	id := NewID()

	got := make(chan events.Change, 4)
	go func() {
		_ = s.Subscribe(ctx, id, func(_ context.Context, c events.Change) { got <- c })
	}()
	require.Eventually(t, func() bool { return bus.Subscribers(id) == 1 }, time.Second, 5*time.Millisecond)

	m, err := s.Machine(ctx, id)
	require.NoError(t, err)
	_, err = m.ConfirmSelection(ctx, domain.TypeRegular, 1)
	require.NoError(t, err)

	select {
	case c := <-got:
		assert.Equal(t, id, c.SessionID)
		assert.Equal(t, "confirm_selection", c.Op)
		assert.Equal(t, domain.Details, c.State.Position)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}
}

func TestRunPurges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	purged := make(chan struct{}, 1)
	s := New(Deps{Purge: func(context.Context) (int64, error) {
		select {
		case purged <- struct{}{}:
		default:
		}
		return 3, nil
	}}, Config{SweepInterval: 5 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-purged:
	case <-time.After(time.Second):
		t.Fatal("purge not called")
	}

	cancel()
	assert.NoError(t, <-done)
}
