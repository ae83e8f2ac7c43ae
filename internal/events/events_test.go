package events

import (
	"context"
	"testing"
	"time"

	"github.com/kirinyoku/tix-wizard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDeliversToSessionSubscribers(t *testing.T) {
	bus := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Change, 1)
	done := make(chan error, 1)
	go func() {
		done <- bus.Subscribe(ctx, "s1", func(_ context.Context, c Change) { got <- c })
	}()

	require.Eventually(t, func() bool { return bus.Subscribers("s1") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, NewChange("other", "reset", domain.State{})))
	require.NoError(t, bus.Publish(ctx, NewChange("s1", "back", domain.State{Position: domain.Selection})))

	select {
	case c := <-got:
		assert.Equal(t, "back", c.Op)
		assert.Equal(t, domain.Selection, c.State.Position)
	case <-time.After(time.Second):
		t.Fatal("change not delivered")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, bus.Subscribers("s1"))
}
