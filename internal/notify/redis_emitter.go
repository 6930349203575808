package notify

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "notification-intents"

type RedisEmitter struct {
	client  *redis.Client
	channel string
}

var _ Emitter = (*RedisEmitter)(nil)

func NewRedisEmitter(client *redis.Client, channel string) *RedisEmitter {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisEmitter{client: client, channel: channel}
}

func (e *RedisEmitter) Emit(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("notify: marshal intent for %s %s: %v", ev.EntityType, ev.EntityID, err)
		return
	}

	if err := e.client.Publish(ctx, e.channel, payload).Err(); err != nil {
		log.Printf("notify: publish intent for %s %s: %v", ev.EntityType, ev.EntityID, err)
	}
}
