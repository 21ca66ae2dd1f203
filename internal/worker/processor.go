// Package worker consumes briefing requests from Redis Streams and runs the
// generation pipeline for each.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/queue/streams"
)

const (
	DefaultBlock       = 5 * time.Second
	DefaultCount       = 16
	DefaultRunTimeout  = 20 * time.Minute
	DefaultReclaimIdle = 30 * time.Minute
)

// StoreAPI is the persistence the worker needs.
type StoreAPI interface {
	briefing.StatusStore
	ClaimIdempotency(ctx context.Context, scope, key string) (bool, error)
}

// Runner executes one briefing generation.
type Runner interface {
	RunGeneration(ctx context.Context, briefingID, userID string) (briefing.Status, error)
}

// Options tune the read loop. Zero values take the defaults above.
type Options struct {
	Stream string
	Block  time.Duration
	Count  int64
	// RunTimeout bounds a single generation.
	RunTimeout time.Duration
	// ReclaimIdle is how long an unacked entry must sit before another worker
	// takes it over. Keep it above RunTimeout.
	ReclaimIdle time.Duration
}

func (o Options) withDefaults() Options {
	if o.Stream == "" {
		o.Stream = streams.StreamBriefings
	}
	if o.Block <= 0 {
		o.Block = DefaultBlock
	}
	if o.Count <= 0 {
		o.Count = DefaultCount
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = DefaultRunTimeout
	}
	if o.ReclaimIdle <= 0 {
		o.ReclaimIdle = DefaultReclaimIdle
	}
	return o
}

// Processor drives briefing generation by consuming briefing.requested events.
type Processor struct {
	logger   *log.Logger
	store    StoreAPI
	consumer *streams.Consumer
	runner   Runner
	opts     Options
	tracer   trace.Tracer

	runCounter     otelmetric.Int64Counter
	skipCounter    otelmetric.Int64Counter
	reclaimCounter otelmetric.Int64Counter
}

func NewProcessor(logger *log.Logger, st StoreAPI, cons *streams.Consumer, runner Runner, opts Options, meter otelmetric.Meter, tracer trace.Tracer) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("worker")
	}
	proc := &Processor{
		logger:   logger,
		store:    st,
		consumer: cons,
		runner:   runner,
		opts:     opts.withDefaults(),
		tracer:   tracer,
	}
	if meter != nil {
		var err error
		proc.runCounter, err = meter.Int64Counter("worker_briefings_processed_total",
			otelmetric.WithDescription("Briefing runs executed by this worker, by terminal status"))
		if err != nil {
			logger.Printf("warn: create run counter failed: %v", err)
		}
		proc.skipCounter, err = meter.Int64Counter("worker_events_skipped_total",
			otelmetric.WithDescription("Requests acked without running, by reason"))
		if err != nil {
			logger.Printf("warn: create skip counter failed: %v", err)
		}
		proc.reclaimCounter, err = meter.Int64Counter("worker_events_reclaimed_total",
			otelmetric.WithDescription("Requests taken over from a stalled consumer"))
		if err != nil {
			logger.Printf("warn: create reclaim counter failed: %v", err)
		}
		if cons != nil {
			proc.registerLagGauge(meter)
		}
	}
	return proc
}

func (p *Processor) registerLagGauge(meter otelmetric.Meter) {
	gauge, err := meter.Int64ObservableGauge("worker_stream_pending",
		otelmetric.WithDescription("Entries delivered to the group but not yet acked"))
	if err != nil {
		p.logger.Printf("warn: create pending gauge failed: %v", err)
		return
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, o otelmetric.Observer) error {
		backlog, err := p.consumer.Backlog(ctx, p.opts.Stream)
		if err != nil {
			return nil
		}
		o.ObserveInt64(gauge, backlog.Pending, otelmetric.WithAttributes(attribute.String("stream", p.opts.Stream)))
		return nil
	}, gauge)
	if err != nil {
		p.logger.Printf("warn: register pending gauge failed: %v", err)
	}
}

// Start blocks, processing requests until ctx is cancelled. A run in progress
// when ctx ends is allowed to finish within RunTimeout.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil || p.runner == nil {
		return fmt.Errorf("worker processor requires a consumer and a runner")
	}
	p.logger.Printf("worker processor starting; consuming stream %s", p.opts.Stream)
	p.reclaim(ctx)
	lastReclaim := time.Now()

	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker processor stopping: %v", ctx.Err())
			return nil
		default:
		}

		if time.Since(lastReclaim) > p.opts.ReclaimIdle/2 {
			p.reclaim(ctx)
			lastReclaim = time.Now()
		}

		msgs, err := p.consumer.Read(ctx, p.opts.Stream, p.opts.Block, p.opts.Count)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			p.process(ctx, msg, false)
		}
	}
}

// reclaim takes over entries another consumer read but never acked.
func (p *Processor) reclaim(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := p.consumer.AutoClaim(ctx, p.opts.Stream, p.opts.ReclaimIdle, start, p.opts.Count)
		if err != nil {
			p.logger.Printf("warn: reclaim pending entries: %v", err)
			return
		}
		for _, msg := range msgs {
			if p.reclaimCounter != nil {
				p.reclaimCounter.Add(ctx, 1)
			}
			p.process(ctx, msg, true)
		}
		if next == "" || next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}

func (p *Processor) process(ctx context.Context, msg streams.Message, reclaimed bool) {
	if err := p.handle(ctx, msg, reclaimed); err != nil {
		p.logger.Printf("error handling message %s: %v", msg.ID, err)
	}
	if err := p.consumer.Ack(context.WithoutCancel(ctx), p.opts.Stream, msg.ID); err != nil {
		p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
	}
}

func (p *Processor) skip(ctx context.Context, reason string) {
	if p.skipCounter != nil {
		p.skipCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
	}
}

// handle runs the pipeline for a pending briefing. Requests for briefings
// that already left pending are acked without running; a reclaimed request
// whose briefing is stuck mid-run is marked failed.
func (p *Processor) handle(ctx context.Context, msg streams.Message, reclaimed bool) error {
	ctx, span := p.tracer.Start(ctx, "worker.handle_briefing",
		trace.WithAttributes(attribute.String("event.id", msg.Envelope.EventID), attribute.Bool("reclaimed", reclaimed)))
	defer span.End()

	var req streams.BriefingRequested
	if err := msg.Envelope.Decode(&req); err != nil {
		p.skip(ctx, "decode")
		return err
	}

	status, found, err := p.store.GetBriefingStatus(ctx, req.BriefingID)
	if err != nil {
		return fmt.Errorf("load briefing %s: %w", req.BriefingID, err)
	}
	if !found {
		p.skip(ctx, "not_found")
		p.logger.Printf("skip event %s: briefing %s no longer exists", msg.Envelope.EventID, req.BriefingID)
		return nil
	}
	switch {
	case status == briefing.StatusPending:
	case status.Terminal():
		p.skip(ctx, "terminal")
		return nil
	case reclaimed:
		return p.markInterrupted(ctx, req.BriefingID, status)
	default:
		p.skip(ctx, "in_progress")
		p.logger.Printf("skip event %s: briefing %s already %s", msg.Envelope.EventID, req.BriefingID, status)
		return nil
	}

	claimed, err := p.store.ClaimIdempotency(ctx, msg.Envelope.EventType, msg.Envelope.EventID)
	if err != nil {
		return fmt.Errorf("claim idempotency: %w", err)
	}
	if !claimed {
		p.skip(ctx, "duplicate")
		p.logger.Printf("skip event %s: already processed", msg.Envelope.EventID)
		return nil
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.RunTimeout)
	defer cancel()
	final, runErr := p.runner.RunGeneration(runCtx, req.BriefingID, req.UserID)
	if p.runCounter != nil {
		p.runCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("status", string(final)),
			attribute.String("trigger", req.Trigger),
		))
	}
	if runErr != nil && !briefing.IsCancelled(runErr) {
		return fmt.Errorf("briefing %s %s: %w", req.BriefingID, final, runErr)
	}
	return nil
}

// markInterrupted fails a briefing whose worker stopped before finishing.
func (p *Processor) markInterrupted(ctx context.Context, briefingID string, status briefing.Status) error {
	tr, err := briefing.NewTracker(ctx, p.store, briefingID, p.logger)
	if err != nil {
		return err
	}
	p.logger.Printf("warn: briefing %s stalled in %s; marking failed", briefingID, status)
	return tr.RecordError(ctx, briefing.GenerationError{
		Phase:       briefing.PhaseOf(status),
		Component:   "worker",
		Message:     fmt.Sprintf("generation interrupted during %s", status),
		Recoverable: false,
	})
}
