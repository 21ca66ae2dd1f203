// Package pipeline runs one briefing from settings to uploaded audio.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/morningdrive/internal/audio"
	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/content"
	"github.com/mohammad-safakhou/morningdrive/internal/objectstore"
	"github.com/mohammad-safakhou/morningdrive/internal/script"
	"github.com/mohammad-safakhou/morningdrive/internal/tts"
)

// ErrNoSettings is returned by setup when the user has no stored preferences.
var ErrNoSettings = errors.New("user settings not found")

// Store is the persistence one run needs.
type Store interface {
	briefing.StatusStore
	SettingsForRun(ctx context.Context, userID string) (briefing.UserSettings, bool, error)
	FinalizeBriefing(ctx context.Context, briefingID string, r briefing.Result) (bool, error)
}

type Gatherer interface {
	Gather(ctx context.Context, rec briefing.Recorder, req content.Request) content.Bundle
}

type ScriptWriter interface {
	Write(ctx context.Context, in script.Input) (*briefing.Script, error)
	Title(ctx context.Context, s *briefing.Script, now time.Time) string
}

type Researcher interface {
	Expand(ctx context.Context, rec briefing.Recorder, s *briefing.Script, style string, limit int) (*briefing.Script, script.ExpandReport, error)
}

type Speaker interface {
	Synthesize(ctx context.Context, s *briefing.Script, vc tts.VoiceConfig) (*tts.Result, error)
}

type Assembler interface {
	Assemble(ctx context.Context, req audio.AssembleRequest) (audio.AssembleResult, error)
}

// Orchestrator drives the status state machine of a briefing. It is the only
// writer of the briefing row during a run; a concurrent cancel is observed at
// the next phase boundary.
type Orchestrator struct {
	Store    Store
	Content  Gatherer
	Writer   ScriptWriter
	Research Researcher // optional
	Speech   Speaker
	Mixer    Assembler
	// Media holds music pieces; nil disables music download.
	Media objectstore.Storage
	// TempRoot is where run-scoped temp dirs are created ("" = os.TempDir).
	TempRoot string
	Logger   *log.Logger
	Tracer   trace.Tracer
	Now      func() time.Time
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (o *Orchestrator) tracer() trace.Tracer {
	if o.Tracer != nil {
		return o.Tracer
	}
	return otel.Tracer("morningdrive/pipeline")
}

// run is the state of one RunGeneration call.
type run struct {
	id       string
	userID   string
	tracker  *briefing.Tracker
	settings briefing.UserSettings
	rules    briefing.GenerationRules
	now      time.Time
	tempDir  string

	bundle content.Bundle
	script *briefing.Script
	speech *tts.Result
	mix    audio.AssembleResult
}

// RunGeneration executes every phase for briefingID and returns the terminal
// status. Cancellation returns *briefing.CancelledError with status
// cancelled; an unrecovered failure returns the cause with status failed.
func (o *Orchestrator) RunGeneration(ctx context.Context, briefingID, userID string) (status briefing.Status, err error) {
	started := time.Now()
	ctx, span := o.tracer().Start(ctx, "pipeline.run_generation", trace.WithAttributes(attribute.String("briefing.id", briefingID)))
	defer span.End()

	tr, err := briefing.NewTracker(ctx, o.Store, briefingID, o.Logger)
	if err != nil {
		return briefing.StatusFailed, err
	}
	r := &run{id: briefingID, userID: userID, tracker: tr}

	defer func() {
		if p := recover(); p != nil {
			err = o.fail(ctx, r, fmt.Errorf("panic: %v", p))
			status = briefing.StatusFailed
		}
		elapsed := time.Since(started)
		recordRun(ctx, status, elapsed, tr.Errors())
		span.SetAttributes(attribute.String("briefing.status", string(status)))
		o.logf("briefing %s user=%s status=%s errors=%d duration=%.1fs elapsed=%s",
			briefingID, userID, status, len(tr.Errors()), r.mix.DurationSeconds, elapsed.Round(time.Millisecond))
	}()

	if err := o.phases(ctx, r); err != nil {
		if briefing.IsCancelled(err) {
			tr.MarkTerminal(briefing.StatusCancelled)
			return briefing.StatusCancelled, err
		}
		return briefing.StatusFailed, o.fail(ctx, r, err)
	}
	return tr.Current(), nil
}

func (o *Orchestrator) phases(ctx context.Context, r *run) error {
	if err := o.enter(ctx, r, briefing.StatusSetup, o.setup); err != nil {
		return err
	}
	defer os.RemoveAll(r.tempDir)

	if err := o.enter(ctx, r, briefing.StatusGatheringContent, o.gather); err != nil {
		return err
	}
	if err := o.enter(ctx, r, briefing.StatusWritingScript, o.write); err != nil {
		return err
	}
	if o.deepDiveLimit(r) > 0 {
		if err := o.enter(ctx, r, briefing.StatusResearchingStories, o.research); err != nil {
			return err
		}
	} else {
		o.stripDeepDives(r)
	}
	if err := o.enter(ctx, r, briefing.StatusGeneratingAudio, o.generateAudio); err != nil {
		return err
	}
	return o.enter(ctx, r, briefing.StatusFinalizing, o.finalize)
}

// enter checks for cancellation, persists next and runs the phase under a span.
func (o *Orchestrator) enter(ctx context.Context, r *run, next briefing.Status, phase func(context.Context, *run) error) error {
	if err := r.tracker.Transition(ctx, next); err != nil {
		return err
	}
	ctx, span := o.tracer().Start(ctx, "pipeline."+string(next))
	defer span.End()
	return phase(ctx, r)
}

// fail records err as a non-recoverable error unless a step already did, and
// marks the briefing failed.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) error {
	var fe *briefing.FatalError
	if errors.As(err, &fe) {
		if ferr := r.tracker.Fail(ctx); ferr != nil {
			o.logf("warn: briefing %s: mark failed: %v", r.id, ferr)
		}
		return err
	}
	if rerr := r.tracker.RecordError(ctx, briefing.GenerationError{
		Phase:       r.tracker.Phase(),
		Component:   "pipeline",
		Message:     err.Error(),
		Recoverable: false,
	}); rerr != nil {
		o.logf("warn: briefing %s: record failure: %v", r.id, rerr)
		if ferr := r.tracker.Fail(ctx); ferr != nil {
			o.logf("warn: briefing %s: mark failed: %v", r.id, ferr)
		}
	}
	return err
}

func (o *Orchestrator) now(r *run) time.Time {
	now := time.Now()
	if o.Now != nil {
		now = o.Now()
	}
	return now.In(r.settings.Location())
}

func (o *Orchestrator) setup(ctx context.Context, r *run) error {
	settings, err := briefing.RunStep(ctx, r.tracker, briefing.Step[briefing.UserSettings]{
		Name:  "settings",
		Phase: briefing.PhaseSetup,
	}, func(ctx context.Context) (briefing.UserSettings, error) {
		u, found, err := o.Store.SettingsForRun(ctx, r.userID)
		if err != nil {
			return briefing.UserSettings{}, fmt.Errorf("load settings: %w", err)
		}
		if !found {
			return briefing.UserSettings{}, fmt.Errorf("%w for %s", ErrNoSettings, r.userID)
		}
		return u.Normalize(), nil
	})
	if err != nil {
		return err
	}
	r.settings = settings
	r.rules = briefing.RulesFor(settings.LengthMode)
	r.now = o.now(r)

	dir, err := os.MkdirTemp(o.TempRoot, "briefing-"+r.id+"-")
	if err != nil {
		return fmt.Errorf("create run temp dir: %w", err)
	}
	r.tempDir = dir
	return nil
}

func (o *Orchestrator) gather(ctx context.Context, r *run) error {
	r.bundle = o.Content.Gather(ctx, r.tracker, content.Request{
		Settings:     r.settings,
		Rules:        r.rules,
		IncludeMusic: r.settings.IncludeMusic,
		Now:          r.now,
	})
	return nil
}

// deepDiveLimit is the number of placeholders to request and research. It is
// zero when the user disabled deep dives or no researcher is configured.
func (o *Orchestrator) deepDiveLimit(r *run) int {
	if !r.settings.DeepDiveEnabled || o.Research == nil {
		return 0
	}
	return r.rules.DeepDiveCount
}

func (o *Orchestrator) write(ctx context.Context, r *run) error {
	s, err := briefing.RunStep(ctx, r.tracker, briefing.Step[*briefing.Script]{
		Name:  "script",
		Phase: briefing.PhaseWritingScript,
		Fallback: func(error) (*briefing.Script, string) {
			return script.FallbackScript(r.now), "minimal intro/outro script"
		},
	}, func(ctx context.Context) (*briefing.Script, error) {
		return o.Writer.Write(ctx, script.Input{
			Bundle:        r.bundle,
			Settings:      r.settings,
			Rules:         r.rules,
			IncludeMusic:  r.settings.IncludeMusic && r.bundle.Piece != nil,
			DeepDiveCount: o.deepDiveLimit(r),
			Now:           r.now,
		})
	})
	if err != nil {
		return err
	}
	r.script = s
	return nil
}

func (o *Orchestrator) research(ctx context.Context, r *run) error {
	s, report, err := o.Research.Expand(ctx, r.tracker, r.script, r.settings.WritingStyle, o.deepDiveLimit(r))
	if err != nil {
		return err
	}
	o.logf("briefing %s: deep dives found=%d researched=%d failed=%d", r.id, report.Found, report.Researched, report.Failed)
	r.script = s
	return nil
}

// stripDeepDives turns stray placeholders into plain mentions when research
// is skipped, so no tag is ever spoken or silently dropped.
func (o *Orchestrator) stripDeepDives(r *run) {
	if n := len(script.FindDeepDives(r.script)); n > 0 {
		o.logf("briefing %s: %d deep dives left unresearched", r.id, n)
		r.script = script.StripDeepDives(r.script)
	}
}

func (o *Orchestrator) generateAudio(ctx context.Context, r *run) error {
	speech, err := briefing.RunStep(ctx, r.tracker, briefing.Step[*tts.Result]{
		Name:  "tts",
		Phase: briefing.PhaseGeneratingAudio,
	}, func(ctx context.Context) (*tts.Result, error) {
		res, err := o.Speech.Synthesize(ctx, r.script, tts.VoiceConfigFrom(r.settings))
		if err != nil {
			return nil, err
		}
		if len(res.Clips) == 0 {
			return nil, fmt.Errorf("no speech synthesized (%d item errors)", len(res.Errors))
		}
		return res, nil
	})
	if err != nil {
		return err
	}
	r.speech = speech
	for _, ie := range speech.Errors {
		o.warn(ctx, r, briefing.GenerationError{
			Phase:       briefing.PhaseGeneratingAudio,
			Component:   "tts",
			Message:     ie.Error(),
			Recoverable: true,
			Fallback:    "item skipped",
		})
	}
	if missing := speech.MissingTypes(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, t := range missing {
			names[i] = string(t)
		}
		o.warn(ctx, r, briefing.GenerationError{
			Phase:       briefing.PhaseGeneratingAudio,
			Component:   "tts",
			Message:     "no audio for segments: " + strings.Join(names, ", "),
			Recoverable: true,
			Fallback:    "segments omitted",
		})
	}

	musicPath := o.downloadMusic(ctx, r)
	mix, err := briefing.RunStep(ctx, r.tracker, briefing.Step[audio.AssembleResult]{
		Name:  "mixer",
		Phase: briefing.PhaseGeneratingAudio,
	}, func(ctx context.Context) (audio.AssembleResult, error) {
		return o.Mixer.Assemble(ctx, audio.AssembleRequest{
			BriefingID:         r.id,
			Tracks:             speech.Tracks(),
			IncludeIntro:       r.settings.IncludeIntro,
			IncludeTransitions: r.settings.IncludeTransitions,
			MusicPath:          musicPath,
			TempDir:            r.tempDir,
		})
	})
	if err != nil {
		return err
	}
	r.mix = mix
	return nil
}

func (o *Orchestrator) warn(ctx context.Context, r *run, ge briefing.GenerationError) {
	if err := r.tracker.RecordError(ctx, ge); err != nil {
		o.logf("warn: briefing %s: record error: %v", r.id, err)
	}
}

// downloadMusic fetches the selected piece into the run temp dir. A failed
// download still returns the target path so the mixer reports music_error.
func (o *Orchestrator) downloadMusic(ctx context.Context, r *run) string {
	if !r.settings.IncludeMusic || r.bundle.Piece == nil {
		return ""
	}
	key := r.bundle.Piece.ObjectKey
	dst := filepath.Join(r.tempDir, "music_"+path.Base(key))
	if o.Media == nil {
		o.logf("warn: briefing %s: no media store for music %s", r.id, key)
		return dst
	}
	if err := objectstore.Download(ctx, o.Media, key, dst); err != nil {
		o.logf("warn: briefing %s: download music %s: %v", r.id, key, err)
	}
	return dst
}

func (o *Orchestrator) finalize(ctx context.Context, r *run) error {
	title := o.Writer.Title(ctx, r.script, r.now)
	r.script.Title = title
	status := r.tracker.TerminalStatus()
	tl := r.mix.Timeline
	ok, err := o.Store.FinalizeBriefing(ctx, r.id, briefing.Result{
		Title:           title,
		DurationSeconds: r.mix.DurationSeconds,
		AudioKey:        r.mix.Key,
		Script:          r.script,
		Timeline:        &tl,
		Status:          status,
	})
	if err != nil {
		return fmt.Errorf("finalize briefing: %w", err)
	}
	if !ok {
		persisted, _, _ := o.Store.GetBriefingStatus(ctx, r.id)
		if persisted == briefing.StatusCancelled {
			return &briefing.CancelledError{Phase: briefing.PhaseOf(briefing.StatusFinalizing), Next: status}
		}
		return fmt.Errorf("finalize briefing: status already %s", persisted)
	}
	r.tracker.MarkTerminal(status)
	return nil
}
