package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/runtime"
	srv "github.com/mohammad-safakhou/morningdrive/internal/server"
)

// generateCMD runs one briefing in-process, bypassing the queue.
func generateCMD(cfgPath *string) *cobra.Command {
	var userID string
	var gen = &cobra.Command{
		Use:   "generate",
		Short: "Generate a briefing for a user in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			ctx, stop := runtime.SignalContext(context.Background(), "generate")
			defer stop()

			a, err := bootstrap(ctx, *cfgPath, "morningdrive-generate")
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			settings, ok, err := a.store.GetUserSettings(ctx, userID)
			if err != nil {
				return err
			}
			if !ok {
				settings = briefing.DefaultUserSettings(userID)
				if err := a.store.UpsertUserSettings(ctx, settings); err != nil {
					return err
				}
			}
			orch, err := a.orchestrator()
			if err != nil {
				return err
			}
			b, err := a.store.CreateBriefing(ctx, userID, srv.BriefingTitle(time.Now().In(settings.Normalize().Location())))
			if err != nil {
				return err
			}
			status, runErr := orch.RunGeneration(ctx, b.ID, userID)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "briefing %s: %s\n", b.ID, status)
			if final, found, err := a.store.GetBriefing(context.Background(), b.ID); err == nil && found {
				for _, ge := range final.GenerationErrors {
					fmt.Fprintf(out, "  [%s/%s] %s (recoverable=%v)\n", ge.Phase, ge.Component, ge.Message, ge.Recoverable)
				}
				if final.AudioKey != "" {
					fmt.Fprintf(out, "audio: %s (%.1fs)\n", final.AudioKey, final.DurationSeconds)
				}
			}
			return runErr
		},
	}
	gen.Flags().StringVar(&userID, "user", "", "user id to generate for")
	return gen
}
