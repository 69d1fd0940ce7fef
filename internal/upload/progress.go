package upload

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/quiz-uploader/pkg/http/ws"
)

// DefaultProgressChannel is the Redis channel progress events travel on.
const DefaultProgressChannel = "uploads:progress"

// RedisPublisher fans progress events out over Redis Pub/Sub so every API
// instance can forward them to its own WebSocket clients.
type RedisPublisher struct {
	redis   *redis.Client
	channel string
}

var _ Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultProgressChannel
	}
	return &RedisPublisher{redis: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, p.channel, data).Err()
}

// Broadcaster listens for progress events on Redis and forwards them to the
// hub connections watching each run.
type Broadcaster struct {
	redis   *redis.Client
	hub     *ws.Hub
	channel string
	logger  zerolog.Logger
}

func NewBroadcaster(client *redis.Client, hub *ws.Hub, channel string, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultProgressChannel
	}
	return &Broadcaster{
		redis:   client,
		hub:     hub,
		channel: channel,
		logger:  logger.With().Str("component", "progress_broadcaster").Logger(),
	}
}

// Run subscribes to the progress channel and blocks until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.Forward(msg.Payload)
		}
	}
}

// Forward decodes one published event and sends it to the run's watchers.
func (b *Broadcaster) Forward(payload string) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn().Err(err).Msg("failed to decode progress event")
		return
	}
	msg, err := ws.NewMessage(ws.TypeUploadProgress, evt)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to encode progress message")
		return
	}
	if err := b.hub.BroadcastToRun(evt.RunID, msg); err != nil {
		b.logger.Debug().Err(err).Str("run_id", evt.RunID).Msg("progress broadcast incomplete")
	}
}
