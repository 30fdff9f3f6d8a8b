// Package pubsub delivers progress events to per-user pub/sub channels.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"docvault/internal/config"
	"docvault/internal/pipeline"
)

// PubSubClient is the part of *redis.Client used to send events.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Envelope is the message shape subscribers receive.
type Envelope struct {
	Channel string                 `json:"channel"`
	Topic   string                 `json:"topic"`
	Data    pipeline.ProgressEvent `json:"data"`
}

type StatusPublisher struct {
	client PubSubClient
}

func NewStatusPublisher(client PubSubClient) *StatusPublisher {
	return &StatusPublisher{client: client}
}

func (p *StatusPublisher) Publish(ctx context.Context, ownerUserID string, event pipeline.ProgressEvent) error {
	channel := config.UserChannel(ownerUserID)
	body, err := json.Marshal(Envelope{Channel: channel, Topic: config.StatusTopic, Data: event})
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// LogPublisher writes events to the log when no Redis is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, ownerUserID string, event pipeline.ProgressEvent) error {
	slog.InfoContext(ctx, "status event",
		"channel", config.UserChannel(ownerUserID),
		"file_id", event.ManagedFileID,
		"status", event.Status,
		"step", event.Step,
		"progress", event.Progress,
	)
	return nil
}

// NewClient accepts either a redis:// URL or a bare host:port and checks connectivity.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}
