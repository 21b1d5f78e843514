package service

import (
	"context"
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultEventChannel is the pub/sub channel events are published on.
const DefaultEventChannel = "slidedeck:events"

// EventEnvelope is the wire form of a published event.
type EventEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RedisEmitter publishes events to a Redis channel so an external UI can
// follow the editor. Publishing is best effort; failures are only logged.
type RedisEmitter struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

// NewRedisEmitter connects to addr and verifies the server with PING.
func NewRedisEmitter(ctx context.Context, addr, channel string) (*RedisEmitter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if channel == "" {
		channel = DefaultEventChannel
	}
	log.Printf("[Redis] publishing events on %s (%s)", channel, addr)
	return &RedisEmitter{client: client, channel: channel, timeout: 2 * time.Second}, nil
}

func (r *RedisEmitter) Emit(ctx context.Context, event string, data any) {
	payload, err := json.Marshal(EventEnvelope{Event: event, Data: data})
	if err != nil {
		log.Printf("[Redis] encode %s: %v", event, err)
		return
	}
	// Events outlive the request that caused them.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.client.Publish(pubCtx, r.channel, payload).Err(); err != nil {
		log.Printf("[Redis] publish %s: %v", event, err)
	}
}

func (r *RedisEmitter) Close() error {
	return r.client.Close()
}
