package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/meinhoongagan/availability-engine/realtime"
)

// DefaultChannel carries realtime envelopes between server instances.
const DefaultChannel = "availability:realtime"

// Bus is a realtime.Bus over Redis pub/sub.
type Bus struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewBus(client *redis.Client, channel string, logger *slog.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{client: client, channel: channel, logger: logger}
}

func (b *Bus) Publish(ctx context.Context, msg realtime.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode bus message: %w", err)
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

// Subscribe blocks until ctx is done. Undecodable payloads are logged and skipped.
func (b *Bus) Subscribe(ctx context.Context, deliver func(realtime.Message)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("subscribed to realtime channel", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("realtime channel %s closed", b.channel)
			}
			var msg realtime.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("skipping malformed bus message", "error", err)
				continue
			}
			deliver(msg)
		}
	}
}
