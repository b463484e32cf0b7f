package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"shorturl-analytics/cache"
	"shorturl-analytics/logging"

	"github.com/redis/go-redis/v9"
)

// Bulk event names.
const (
	EventBulkExecuted = "bulk_executed"
	EventBulkFailed   = "bulk_failed"
)

type HandlerFunc func(data map[string]interface{})

// client is the part of *redis.Client the bus uses.
type client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// PubSub publishes {event, data} JSON envelopes on one Redis channel.
type PubSub struct {
	client  client
	channel string
}

func NewPubSub(redisStore *cache.RedisStore, channel string) *PubSub {
	return &PubSub{client: redisStore.Client, channel: channel}
}

type envelope struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// Publish an event
func (ps *PubSub) Publish(ctx context.Context, event string, data map[string]interface{}) error {
	bytes, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	return ps.client.Publish(ctx, ps.channel, bytes).Err()
}

// Subscribe calls handler for every message carrying event until ctx is
// done. It returns once the subscription is confirmed by Redis.
func (ps *PubSub) Subscribe(ctx context.Context, event string, handler HandlerFunc) error {
	sub := ps.client.Subscribe(ctx, ps.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribing to %s: %w", ps.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				data, ok := decode(msg.Payload, event)
				if ok {
					handler(data)
				}
			}
		}
	}()
	return nil
}

// decode returns the data of payload when it is an envelope for event. An
// empty event matches every envelope.
func decode(payload, event string) (map[string]interface{}, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logging.ErrorLogger.Printf("decoding event payload: %v", err)
		return nil, false
	}
	if event != "" && env.Event != event {
		return nil, false
	}
	if env.Data == nil {
		env.Data = map[string]interface{}{}
	}
	env.Data["event"] = env.Event
	return env.Data, true
}
