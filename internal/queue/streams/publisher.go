package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Publisher appends schema-checked envelopes to Redis streams.
type Publisher struct {
	client   *redis.Client
	registry *SchemaRegistry
	// MaxLen approximately caps each stream; 0 disables trimming.
	MaxLen int64
}

func NewPublisher(client *redis.Client, registry *SchemaRegistry) *Publisher {
	return &Publisher{client: client, registry: registry, MaxLen: defaultMaxLen}
}

// Publish wraps payload in a new envelope, validates it and appends it to
// stream. The trace id of ctx, if any, travels with the envelope. It
// returns the stream entry id.
func (p *Publisher) Publish(ctx context.Context, stream, eventType, version string, payload any) (string, error) {
	if stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", eventType, err)
	}
	env := Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		PayloadVersion: version,
		OccurredAt:     time.Now().UTC(),
		Data:           data,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	if p.registry != nil {
		if err := p.registry.Validate(eventType, version, data); err != nil {
			return "", err
		}
	}
	raw, err := env.Marshal()
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{Stream: stream, Values: map[string]any{"envelope": raw}}
	if p.MaxLen > 0 {
		args.MaxLen, args.Approx = p.MaxLen, true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	recordPublished(ctx, stream, eventType)
	return id, nil
}
