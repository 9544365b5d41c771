package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one stream entry with its decoded event.
type Message struct {
	ID    string // stream entry id, e.g. "1702000000000-0"
	Event CommentEvent
}

// ReadOptions controls a single XREADGROUP call.
type ReadOptions struct {
	Count int64
	Block time.Duration // ignored for backlog reads
	// Backlog re-reads entries already delivered to this consumer but never
	// acknowledged, instead of new entries.
	Backlog bool
}

// Consumer reads comment events for one consumer group.
type Consumer interface {
	// EnsureGroup creates the group (and the stream) when missing.
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, consumer string, opts ReadOptions) ([]Message, error)
	Ack(ctx context.Context, ids ...string) error
	// Pending counts delivered but unacknowledged entries of the group.
	Pending(ctx context.Context) (int64, error)
}

// RedisConsumer is a Consumer bound to one stream and group.
type RedisConsumer struct {
	client *redis.Client
	stream string
	group  string
}

func NewConsumer(client *redis.Client, stream, group string) *RedisConsumer {
	return &RedisConsumer{client: client, stream: stream, group: group}
}

// EnsureGroup starts a new group at "$": a fresh instance has no threads
// loaded, so older events have nothing to apply to.
func (c *RedisConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	switch {
	case err == nil:
		log.Printf("[Consumer] EnsureGroup OK: stream=%s group=%s created=true", c.stream, c.group)
		return nil
	case strings.HasPrefix(err.Error(), "BUSYGROUP"):
		log.Printf("[Consumer] EnsureGroup OK: stream=%s group=%s created=false", c.stream, c.group)
		return nil
	default:
		log.Printf("[Consumer] EnsureGroup FAILED: stream=%s group=%s err=%v", c.stream, c.group, err)
		return fmt.Errorf("create consumer group: %w", err)
	}
}

func (c *RedisConsumer) Read(ctx context.Context, consumer string, opts ReadOptions) ([]Message, error) {
	startTime := time.Now()

	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: consumer,
		Streams:  []string{c.stream, ">"},
		Count:    opts.Count,
		Block:    opts.Block,
	}
	if opts.Backlog {
		args.Streams[1] = "0"
		args.Block = -1 // do not send BLOCK
	}

	streams, err := c.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		log.Printf("[Consumer] Read FAILED: group=%s consumer=%s backlog=%t err=%v", c.group, consumer, opts.Backlog, err)
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	messages, malformed := decodeStreams(streams)
	if len(malformed) > 0 {
		// Undecodable entries would come back on every backlog read.
		if err := c.Ack(ctx, malformed...); err != nil {
			log.Printf("[Consumer] Drop malformed FAILED: ids=%v err=%v", malformed, err)
		}
	}

	if len(messages) > 0 {
		log.Printf("[Consumer] Read OK: group=%s consumer=%s backlog=%t count=%d duration=%v",
			c.group, consumer, opts.Backlog, len(messages), time.Since(startTime))
	}
	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		log.Printf("[Consumer] Ack FAILED: group=%s ids=%v err=%v", c.group, ids, err)
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func (c *RedisConsumer) Pending(ctx context.Context) (int64, error) {
	info, err := c.client.XPending(ctx, c.stream, c.group).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}
	return info.Count, nil
}

// decodeStreams turns stream entries into messages and returns the ids of
// entries whose payload could not be decoded.
func decodeStreams(streams []redis.XStream) ([]Message, []string) {
	var (
		messages  []Message
		malformed []string
	)
	for _, s := range streams {
		for _, entry := range s.Messages {
			event, err := ParseCommentEvent(entry.Values)
			if err != nil {
				log.Printf("[Consumer] Decode FAILED: msgID=%s err=%v", entry.ID, err)
				malformed = append(malformed, entry.ID)
				continue
			}
			messages = append(messages, Message{ID: entry.ID, Event: event})
		}
	}
	return messages, malformed
}
