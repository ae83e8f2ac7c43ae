package redis

import (
	"context"
	"encoding/json"

	"github.com/kirinyoku/tix-wizard/internal/events"
	"github.com/kirinyoku/tix-wizard/internal/storage"
	"github.com/redis/go-redis/v9"
)

// EventsPubSub is an events.Bus shared by every instance behind the same
// Redis, so a stream served by one instance sees changes made on another.
type EventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: storage.ChannelSessionChanged(),
	}
}

func (p *EventsPubSub) Publish(ctx context.Context, c events.Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *EventsPubSub) Subscribe(ctx context.Context, sessionID string, handler func(ctx context.Context, c events.Change)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var c events.Change
			if err := json.Unmarshal([]byte(m.Payload), &c); err == nil && c.SessionID == sessionID {
				handler(ctx, c)
			}
		}
	}
}
