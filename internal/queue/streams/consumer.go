package streams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Consumer reads envelopes as one member of a consumer group. Entries that
// cannot be decoded or fail their schema are acked and dropped, so they are
// never redelivered.
type Consumer struct {
	client   *redis.Client
	registry *SchemaRegistry
	group    string
	name     string
}

func NewConsumer(client *redis.Client, registry *SchemaRegistry, group, name string) *Consumer {
	return &Consumer{client: client, registry: registry, group: group, name: name}
}

// EnsureGroup creates group at the start of stream, creating the stream if
// needed. Requests published before the first worker joined are delivered.
func EnsureGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	if stream == "" || group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create %s/%s: %w", stream, group, err)
	}
	return nil
}

// Message is a decoded stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// Backlog describes the state of the group on one stream.
type Backlog struct {
	// Pending entries were delivered but not acked.
	Pending int64
	// Lag is the number of entries not yet delivered; -1 when Redis cannot tell.
	Lag        int64
	Consumers  int64
	OldestIdle time.Duration
}

func (c *Consumer) ready(stream string) error {
	if stream == "" {
		return fmt.Errorf("stream name is required")
	}
	if c.group == "" || c.name == "" {
		return fmt.Errorf("consumer group and name must be configured")
	}
	return nil
}

// Read waits up to block for new entries and returns at most count of them.
// A zero block or count leaves the Redis default.
func (c *Consumer) Read(ctx context.Context, stream string, block time.Duration, count int64) ([]Message, error) {
	if err := c.ready(stream); err != nil {
		return nil, err
	}
	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{stream, ">"},
	}
	if block > 0 {
		args.Block = block
	}
	if count > 0 {
		args.Count = count
	}
	res, err := c.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup %s: %w", stream, err)
	}
	var out []Message
	for _, st := range res {
		out = append(out, c.decodeAll(ctx, stream, st.Messages)...)
	}
	return out, nil
}

// AutoClaim takes over entries another consumer read but did not ack within
// minIdle. Pass the returned cursor as start on the next call; "0-0" starts over.
func (c *Consumer) AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]Message, string, error) {
	if err := c.ready(stream); err != nil {
		return nil, "", err
	}
	args := &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  minIdle,
		Start:    start,
	}
	if count > 0 {
		args.Count = count
	}
	msgs, next, err := c.client.XAutoClaim(ctx, args).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xautoclaim %s: %w", stream, err)
	}
	return c.decodeAll(ctx, stream, msgs), next, nil
}

func (c *Consumer) Ack(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// Backlog reports pending and undelivered entries for the consumer's group.
func (c *Consumer) Backlog(ctx context.Context, stream string) (Backlog, error) {
	if err := c.ready(stream); err != nil {
		return Backlog{}, err
	}
	b := Backlog{Lag: -1}
	groups, err := c.client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return b, fmt.Errorf("xinfo groups %s: %w", stream, err)
	}
	for _, g := range groups {
		if g.Name == c.group {
			b.Pending, b.Lag, b.Consumers = g.Pending, g.Lag, int64(g.Consumers)
			break
		}
	}
	if b.Pending == 0 {
		return b, nil
	}
	oldest, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream, Group: c.group, Start: "-", End: "+", Count: 1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return b, fmt.Errorf("xpending %s: %w", stream, err)
	}
	if len(oldest) == 1 {
		b.OldestIdle = oldest[0].Idle
	}
	return b, nil
}

func (c *Consumer) decodeAll(ctx context.Context, stream string, msgs []redis.XMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		env, reason := c.decode(msg)
		if reason != "" {
			recordDropped(ctx, stream, reason)
			_ = c.client.XAck(ctx, stream, c.group, msg.ID).Err()
			continue
		}
		out = append(out, Message{ID: msg.ID, Envelope: env})
	}
	return out
}

// decode returns the envelope of msg, or the reason it must be dropped.
func (c *Consumer) decode(msg redis.XMessage) (Envelope, string) {
	var raw []byte
	switch v := msg.Values["envelope"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case nil:
		return Envelope{}, "missing_envelope"
	default:
		return Envelope{}, "bad_encoding"
	}
	env, err := UnmarshalEnvelope(raw)
	if err != nil {
		return Envelope{}, "bad_envelope"
	}
	if c.registry != nil && c.registry.Validate(env.EventType, env.PayloadVersion, env.Data) != nil {
		return Envelope{}, "schema"
	}
	return env, ""
}
