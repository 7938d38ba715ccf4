package websocket

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultRelayTopic is the pub/sub channel shared by all gateway instances
const DefaultRelayTopic = "chat:gateway"

// RelayEnvelope is an already-encoded frame travelling between instances
type RelayEnvelope struct {
	Origin      string   `msgpack:"o"`
	Channels    []string `msgpack:"c"`
	ExcludeUser int64    `msgpack:"x"`
	Data        []byte   `msgpack:"d"`
}

// Relay carries publishes to the other gateway instances
type Relay interface {
	Publish(ctx context.Context, env RelayEnvelope) error
	// Subscribe blocks, calling fn for every envelope, until ctx ends
	Subscribe(ctx context.Context, fn func(RelayEnvelope)) error
}

// RedisRelay fans out over one Redis pub/sub topic
type RedisRelay struct {
	client *redis.Client
	topic  string
}

func NewRedisRelay(client *redis.Client, topic string) *RedisRelay {
	if topic == "" {
		topic = DefaultRelayTopic
	}
	return &RedisRelay{client: client, topic: topic}
}

func (r *RedisRelay) Publish(ctx context.Context, env RelayEnvelope) error {
	data, err := msgpack.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.topic, data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, fn func(RelayEnvelope)) error {
	sub := r.client.Subscribe(ctx, r.topic)
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.topic, err)
	}
	log.Info().Str("topic", r.topic).Msg("Gateway relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var env RelayEnvelope
			if err := msgpack.Unmarshal([]byte(m.Payload), &env); err != nil {
				log.Warn().Err(err).Msg("Dropping malformed relay envelope")
				continue
			}
			fn(env)
		}
	}
}
