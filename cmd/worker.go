package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/morningdrive/internal/queue/streams"
	"github.com/mohammad-safakhou/morningdrive/internal/runtime"
	"github.com/mohammad-safakhou/morningdrive/internal/worker"
)

func workerCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued briefings and generate them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runtime.SignalContext(context.Background(), "worker")
			defer stop()

			a, err := bootstrap(ctx, *cfgPath, "morningdrive-worker")
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			wc := a.cfg.Worker
			group := wc.Group
			if group == "" {
				group = streams.GroupBriefingWorkers
			}
			if err := streams.EnsureGroup(ctx, a.rdb, streams.StreamBriefings, group); err != nil {
				return fmt.Errorf("ensure group: %w", err)
			}
			name := wc.Consumer
			if name == "" {
				name = fmt.Sprintf("worker-%s", uuid.NewString()[:8])
			}
			consumer := streams.NewConsumer(a.rdb, a.registry, group, name)

			processor := worker.NewProcessor(newLogger("WORKER"), a.store, consumer, orch, worker.Options{
				Stream:      streams.StreamBriefings,
				Block:       wc.Block,
				Count:       wc.Count,
				RunTimeout:  wc.RunTimeout,
				ReclaimIdle: wc.ReclaimIdle,
			}, a.meter, a.tracer)
			return processor.Start(ctx)
		},
	}
}
