package streams

import (
	"context"
	"time"
)

const (
	// StreamBriefings carries generation requests to workers.
	StreamBriefings = "briefings.requested"
	// GroupBriefingWorkers is the consumer group every worker joins.
	GroupBriefingWorkers = "briefing-workers"

	EventBriefingRequested = "briefing.requested"
	PayloadV1              = "v1"

	// defaultMaxLen bounds the stream; acked entries beyond it are trimmed.
	defaultMaxLen = 10000
)

// Triggers of a briefing request.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// BriefingRequested asks a worker to run the pipeline for an existing
// pending briefing row.
type BriefingRequested struct {
	BriefingID  string    `json:"briefing_id"`
	UserID      string    `json:"user_id"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// PublishBriefingRequested enqueues req on StreamBriefings.
func (p *Publisher) PublishBriefingRequested(ctx context.Context, req BriefingRequested) (string, error) {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	return p.Publish(ctx, StreamBriefings, EventBriefingRequested, PayloadV1, req)
}
