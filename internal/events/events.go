// Package events carries wizard state-change notifications between the
// machines and whoever streams them to clients.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/kirinyoku/tix-wizard/internal/domain"
)

// Change is published after every state-changing wizard operation.
type Change struct {
	SessionID string       `json:"session_id"`
	Op        string       `json:"op"`
	State     domain.State `json:"state"`
	TsUnix    int64        `json:"ts_unix"`
}

func NewChange(sessionID, op string, st domain.State) Change {
	return Change{SessionID: sessionID, Op: op, State: st, TsUnix: time.Now().Unix()}
}

// Bus fans changes out to subscribers of a session.
type Bus interface {
	Publish(ctx context.Context, c Change) error
	// Subscribe blocks, calling handler for each change of sessionID,
	// until ctx is done.
	Subscribe(ctx context.Context, sessionID string, handler func(ctx context.Context, c Change)) error
}

// Local is an in-process Bus.
type Local struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Change
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[int]chan Change)}
}

// Publish never blocks; a subscriber whose buffer is full misses the change.
func (l *Local) Publish(_ context.Context, c Change) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, ch := range l.subs[c.SessionID] {
		select {
		case ch <- c:
		default:
		}
	}

	return nil
}

func (l *Local) Subscribe(ctx context.Context, sessionID string, handler func(ctx context.Context, c Change)) error {
	ch := make(chan Change, 16)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	if l.subs[sessionID] == nil {
		l.subs[sessionID] = make(map[int]chan Change)
	}
	l.subs[sessionID][id] = ch
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.subs[sessionID], id)
		if len(l.subs[sessionID]) == 0 {
			delete(l.subs, sessionID)
		}
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-ch:
			handler(ctx, c)
		}
	}
}

// Subscribers is the number of live subscriptions for sessionID.
func (l *Local) Subscribers(sessionID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.subs[sessionID])
}
