package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/audio"
	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
	"github.com/mohammad-safakhou/morningdrive/internal/content"
	"github.com/mohammad-safakhou/morningdrive/internal/objectstore"
	"github.com/mohammad-safakhou/morningdrive/internal/script"
	"github.com/mohammad-safakhou/morningdrive/internal/tts"
)

const testBriefing = "0f6d1c1e-5a0e-4a5a-9a55-3f1a3c1b2d4e"

type fakeStore struct {
	mu        sync.Mutex
	status    briefing.Status
	history   []briefing.Status
	errs      []briefing.GenerationError
	settings  *briefing.UserSettings
	finalized *briefing.Result
}

func newFakeStore(settings *briefing.UserSettings) *fakeStore {
	return &fakeStore{status: briefing.StatusPending, settings: settings}
}

func (f *fakeStore) GetBriefingStatus(context.Context, string) (briefing.Status, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, true, nil
}

func (f *fakeStore) UpdateBriefingStatus(_ context.Context, _ string, st briefing.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.Terminal() {
		return false, nil
	}
	f.status = st
	f.history = append(f.history, st)
	return true, nil
}

func (f *fakeStore) AppendGenerationError(_ context.Context, _ string, ge briefing.GenerationError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, ge)
	return nil
}

func (f *fakeStore) SettingsForRun(_ context.Context, userID string) (briefing.UserSettings, bool, error) {
	if f.settings == nil {
		return briefing.UserSettings{}, false, nil
	}
	return f.settings.Normalize(), true, nil
}

func (f *fakeStore) FinalizeBriefing(_ context.Context, _ string, r briefing.Result) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.Terminal() {
		return false, nil
	}
	f.status = r.Status
	f.history = append(f.history, r.Status)
	f.finalized = &r
	return true, nil
}

// cancel simulates an out-of-band cancel request.
func (f *fakeStore) cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = briefing.StatusCancelled
}

type fakeGatherer struct {
	bundle content.Bundle
	warn   bool
	panics bool
}

func (g *fakeGatherer) Gather(ctx context.Context, rec briefing.Recorder, _ content.Request) content.Bundle {
	if g.panics {
		panic("boom")
	}
	if g.warn {
		_ = rec.RecordError(ctx, briefing.GenerationError{Component: "weather", Message: "timeout", Recoverable: true, Fallback: "omitted"})
	}
	return g.bundle
}

type fakeWriter struct {
	err    error
	onCall func()
	input  script.Input
	script *briefing.Script
}

func testScript() *briefing.Script {
	return &briefing.Script{Date: "2025-01-02", Segments: []briefing.Segment{
		{Type: briefing.SegmentIntro, Items: []briefing.Item{{Voice: "host", Text: "Good morning."}}},
		{Type: briefing.SegmentNews, Items: []briefing.Item{{Voice: "host", Text: "Markets rallied."}}},
		{Type: briefing.SegmentOutro, Items: []briefing.Item{{Voice: "host", Text: "Have a great day."}}},
	}}
}

func (w *fakeWriter) Write(_ context.Context, in script.Input) (*briefing.Script, error) {
	w.input = in
	if w.onCall != nil {
		w.onCall()
	}
	if w.err != nil {
		return nil, w.err
	}
	if w.script != nil {
		return w.script, nil
	}
	return testScript(), nil
}

func (w *fakeWriter) Title(context.Context, *briefing.Script, time.Time) string {
	return "1/2/25 - Markets Rally"
}

type fakeResearcher struct {
	calls  int
	limits []int
}

func (r *fakeResearcher) Expand(_ context.Context, _ briefing.Recorder, s *briefing.Script, _ string, limit int) (*briefing.Script, script.ExpandReport, error) {
	r.calls++
	r.limits = append(r.limits, limit)
	return s, script.ExpandReport{Found: limit, Researched: limit}, nil
}

type fakeSpeaker struct {
	calls   int
	itemErr bool
	empty   bool
	err     error
}

func (s *fakeSpeaker) Synthesize(_ context.Context, sc *briefing.Script, _ tts.VoiceConfig) (*tts.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	res := &tts.Result{Expected: sc.SegmentTypes()}
	if s.empty {
		return res, nil
	}
	for i, seg := range sc.Segments {
		if s.itemErr && seg.Type == briefing.SegmentNews {
			res.Errors = append(res.Errors, &tts.ItemError{SegmentType: seg.Type, SegmentIndex: i, TextPreview: "Markets rallied.", Err: errors.New("503")})
			continue
		}
		res.Clips = append(res.Clips, tts.SpokenClip{SegmentType: seg.Type, SegmentIndex: i, Clip: audio.Silence(100, audio.DefaultSampleRate)})
		res.Actual = append(res.Actual, seg.Type)
	}
	return res, nil
}

type fakeMixer struct {
	req audio.AssembleRequest
	err error
}

func (m *fakeMixer) Assemble(_ context.Context, req audio.AssembleRequest) (audio.AssembleResult, error) {
	m.req = req
	if m.err != nil {
		return audio.AssembleResult{}, m.err
	}
	var tl briefing.Timeline
	for _, t := range req.Tracks {
		tl.Segments = append(tl.Segments, briefing.TimelineEntry{Type: t.Type, Title: t.Type.Title()})
	}
	return audio.AssembleResult{Key: "briefings/" + req.BriefingID + ".wav", DurationSeconds: 0.3, Timeline: tl}, nil
}

type harness struct {
	store    *fakeStore
	gather   *fakeGatherer
	writer   *fakeWriter
	research *fakeResearcher
	speech   *fakeSpeaker
	mixer    *fakeMixer
	orch     *Orchestrator
}

func newHarness(t *testing.T, settings *briefing.UserSettings) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(settings),
		gather:   &fakeGatherer{},
		writer:   &fakeWriter{},
		research: &fakeResearcher{},
		speech:   &fakeSpeaker{},
		mixer:    &fakeMixer{},
	}
	h.orch = &Orchestrator{
		Store:    h.store,
		Content:  h.gather,
		Writer:   h.writer,
		Research: h.research,
		Speech:   h.speech,
		Mixer:    h.mixer,
		TempRoot: t.TempDir(),
		Logger:   log.New(io.Discard, "", 0),
		Now:      func() time.Time { return time.Date(2025, 1, 2, 11, 30, 0, 0, time.UTC) },
	}
	return h
}

func defaultSettings() *briefing.UserSettings {
	u := briefing.DefaultUserSettings("user-1")
	return &u
}

func (h *harness) run(t *testing.T) (briefing.Status, error) {
	t.Helper()
	return h.orch.RunGeneration(context.Background(), testBriefing, "user-1")
}

func statuses(in []briefing.Status) string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return strings.Join(out, ",")
}

func TestRunGenerationCompletes(t *testing.T) {
	h := newHarness(t, defaultSettings())
	status, err := h.run(t)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if status != briefing.StatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
	want := "setup,gathering_content,writing_script,generating_audio,finalizing,completed"
	if got := statuses(h.store.history); got != want {
		t.Fatalf("history = %s, want %s", got, want)
	}
	fin := h.store.finalized
	if fin == nil {
		t.Fatalf("briefing was not finalized")
	}
	if fin.Title != "1/2/25 - Markets Rally" || fin.AudioKey != "briefings/"+testBriefing+".wav" {
		t.Fatalf("unexpected result: %+v", fin)
	}
	if fin.Script == nil || fin.Script.Title != fin.Title {
		t.Fatalf("script title not set")
	}
	if fin.Timeline == nil || len(fin.Timeline.Segments) != 3 {
		t.Fatalf("timeline not persisted: %+v", fin.Timeline)
	}
	if h.research.calls != 0 {
		t.Fatalf("research should be skipped when deep dives are disabled")
	}
	if h.writer.input.DeepDiveCount != 0 {
		t.Fatalf("deep dive count = %d", h.writer.input.DeepDiveCount)
	}
	if len(h.store.errs) != 0 {
		t.Fatalf("unexpected errors: %+v", h.store.errs)
	}
}

func TestRunGenerationRecoverableErrorsYieldWarnings(t *testing.T) {
	h := newHarness(t, defaultSettings())
	h.gather.warn = true
	status, err := h.run(t)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if status != briefing.StatusCompletedWithWarnings || h.store.status != briefing.StatusCompletedWithWarnings {
		t.Fatalf("expected completed_with_warnings, got %s / %s", status, h.store.status)
	}
	if len(h.store.errs) != 1 || h.store.errs[0].Phase != briefing.PhaseGatheringContent {
		t.Fatalf("unexpected errors: %+v", h.store.errs)
	}
}

func TestRunGenerationCancelStopsAtNextPhase(t *testing.T) {
	h := newHarness(t, defaultSettings())
	h.writer.onCall = h.store.cancel
	status, err := h.run(t)
	if status != briefing.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", status)
	}
	var ce *briefing.CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CancelledError, got %v", err)
	}
	if ce.Phase != briefing.PhaseWritingScript {
		t.Fatalf("cancel observed in %s", ce.Phase)
	}
	if h.speech.calls != 0 || h.store.finalized != nil {
		t.Fatalf("work continued after cancel")
	}
	if h.store.status != briefing.StatusCancelled {
		t.Fatalf("cancelled status overwritten with %s", h.store.status)
	}
}

func TestRunGenerationStatusIsMonotonic(t *testing.T) {
	settings := defaultSettings()
	settings.DeepDiveEnabled = true
	h := newHarness(t, settings)
	h.gather.warn = true
	h.speech.itemErr = true
	if _, err := h.run(t); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	for i := 1; i < len(h.store.history); i++ {
		if h.store.history[i].Rank() < h.store.history[i-1].Rank() {
			t.Fatalf("status went backwards: %s", statuses(h.store.history))
		}
	}
}

func TestRunGenerationResearchesDeepDives(t *testing.T) {
	settings := defaultSettings()
	settings.DeepDiveEnabled = true
	h := newHarness(t, settings)
	if _, err := h.run(t); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if !strings.Contains(statuses(h.store.history), "researching_stories") {
		t.Fatalf("research phase missing: %s", statuses(h.store.history))
	}
	if h.research.calls != 1 || h.research.limits[0] != 1 {
		t.Fatalf("expected one expand with limit 1, got %v", h.research.limits)
	}
	if h.writer.input.DeepDiveCount != 1 {
		t.Fatalf("writer deep dive count = %d", h.writer.input.DeepDiveCount)
	}
}

func taggedScript(news string) *briefing.Script {
	s := testScript()
	s.Segments[1].Items[0].Text = news
	return s
}

func TestRunGenerationDeepDiveWithoutResearcherUsesFallback(t *testing.T) {
	settings := defaultSettings()
	settings.DeepDiveEnabled = true
	h := newHarness(t, settings)
	h.orch.Research = nil
	h.writer.script = taggedScript(`Markets rallied. [DEEP_DIVE topic="Fed" context="Rates were cut"]`)
	status, err := h.run(t)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if status != briefing.StatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
	if h.writer.input.DeepDiveCount != 0 {
		t.Fatalf("writer asked for %d deep dives with no researcher", h.writer.input.DeepDiveCount)
	}
	if strings.Contains(statuses(h.store.history), "researching_stories") {
		t.Fatalf("research phase ran without a researcher: %s", statuses(h.store.history))
	}
	got := h.store.finalized.Script.Segments[1].Items[0].Text
	if got != "Markets rallied. Now, about Fed. Rates were cut." {
		t.Fatalf("persisted news text = %q", got)
	}
}

func TestRunGenerationUnrequestedDeepDivesAreStripped(t *testing.T) {
	h := newHarness(t, defaultSettings())
	h.writer.script = taggedScript(`[DEEP_DIVE topic="Oil" context="Prices fell."] Then [DEEP_DIVE topic="Gold" context="A new high" url="https://example.com/gold"]`)
	if _, err := h.run(t); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if h.research.calls != 0 {
		t.Fatalf("research should be skipped when deep dives are disabled")
	}
	got := h.store.finalized.Script.Segments[1].Items[0].Text
	want := "Now, about Oil. Prices fell. Then Now, about Gold. A new high."
	if got != want {
		t.Fatalf("persisted news text = %q, want %q", got, want)
	}
	if strings.Contains(got, "DEEP_DIVE") {
		t.Fatalf("tag left in script: %q", got)
	}
}

func TestRunGenerationMissingSettingsFails(t *testing.T) {
	h := newHarness(t, nil)
	status, err := h.run(t)
	if status != briefing.StatusFailed || !errors.Is(err, ErrNoSettings) {
		t.Fatalf("expected failed with ErrNoSettings, got %s %v", status, err)
	}
	if h.store.status != briefing.StatusFailed {
		t.Fatalf("store status = %s", h.store.status)
	}
	if len(h.store.errs) != 1 || h.store.errs[0].Recoverable || h.store.errs[0].Phase != briefing.PhaseSetup {
		t.Fatalf("unexpected errors: %+v", h.store.errs)
	}
}

func TestRunGenerationScriptFailureUsesFallback(t *testing.T) {
	h := newHarness(t, defaultSettings())
	h.writer.err = errors.New("llm down")
	status, err := h.run(t)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if status != briefing.StatusCompletedWithWarnings {
		t.Fatalf("expected warnings, got %s", status)
	}
	types := h.store.finalized.Script.SegmentTypes()
	if len(types) != 2 || types[0] != briefing.SegmentIntro || types[1] != briefing.SegmentOutro {
		t.Fatalf("expected fallback intro/outro, got %v", types)
	}
}

func TestRunGenerationMixerFailureIsFatal(t *testing.T) {
	h := newHarness(t, defaultSettings())
	h.mixer.err = errors.New("export failed")
	status, err := h.run(t)
	if status != briefing.StatusFailed || err == nil {
		t.Fatalf("expected failed, got %s %v", status, err)
	}
	var fe *briefing.FatalError
	if !errors.As(err, &fe) || fe.Step != "mixer" {
		t.Fatalf("expected mixer FatalError, got %v", err)
	}
	if h.store.status != briefing.StatusFailed || h.store.finalized != nil {
		t.Fatalf("store status = %s", h.store.status)
	}
}

func TestRunGenerationNoSpeechIsFatal(t *testing.T) {
	h := newHarness(t, defaultSettings())
	h.speech.empty = true
	status, _ := h.run(t)
	if status != briefing.StatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
}

func TestRunGenerationItemErrorsAreWarnings(t *testing.T) {
	h := newHarness(t, defaultSettings())
	h.speech.itemErr = true
	status, err := h.run(t)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if status != briefing.StatusCompletedWithWarnings {
		t.Fatalf("expected warnings, got %s", status)
	}
	var ttsErrs, missing int
	for _, ge := range h.store.errs {
		if ge.Component != "tts" || !ge.Recoverable {
			t.Fatalf("unexpected error: %+v", ge)
		}
		ttsErrs++
		if strings.Contains(ge.Message, "no audio for segments: news") {
			missing++
		}
	}
	if ttsErrs != 2 || missing != 1 {
		t.Fatalf("expected item error plus missing segment warning, got %+v", h.store.errs)
	}
	if len(h.mixer.req.Tracks) != 2 {
		t.Fatalf("mixer got %d tracks", len(h.mixer.req.Tracks))
	}
}

func TestRunGenerationPanicMarksFailed(t *testing.T) {
	h := newHarness(t, defaultSettings())
	h.gather.panics = true
	status, err := h.run(t)
	if status != briefing.StatusFailed || err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected failed with panic, got %s %v", status, err)
	}
	if h.store.status != briefing.StatusFailed {
		t.Fatalf("store status = %s", h.store.status)
	}
}

func TestRunGenerationDownloadsMusic(t *testing.T) {
	media, err := objectstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	wav, err := audio.EncodeWAVBytes(audio.Silence(200, audio.DefaultSampleRate))
	if err != nil {
		t.Fatalf("EncodeWAVBytes: %v", err)
	}
	if err := media.Put(context.Background(), "music/gymnopedie.wav", bytes.NewReader(wav), int64(len(wav)), "audio/wav"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	settings := defaultSettings()
	settings.IncludeMusic = true
	h := newHarness(t, settings)
	h.orch.Media = media
	h.gather.bundle.Piece = &briefing.MusicPiece{ID: 1, Composer: "Satie", Title: "Gymnopedie No. 1", ObjectKey: "music/gymnopedie.wav", Active: true}
	h.orch.Mixer = assembleFunc(func(req audio.AssembleRequest) {
		if req.MusicPath == "" {
			t.Fatalf("music path not passed to mixer")
		}
		got, err := os.ReadFile(req.MusicPath)
		if err != nil || !bytes.Equal(got, wav) {
			t.Fatalf("music not downloaded: %v", err)
		}
	})
	if _, err := h.run(t); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if !h.writer.input.IncludeMusic {
		t.Fatalf("writer should introduce the music piece")
	}
}

func TestRunGenerationMissingMusicStillCompletes(t *testing.T) {
	media, err := objectstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	settings := defaultSettings()
	settings.IncludeMusic = true
	h := newHarness(t, settings)
	h.orch.Media = media
	h.gather.bundle.Piece = &briefing.MusicPiece{ID: 2, ObjectKey: "music/missing.wav", Active: true}
	status, err := h.run(t)
	if err != nil || status != briefing.StatusCompleted {
		t.Fatalf("expected completed, got %s %v", status, err)
	}
	if h.mixer.req.MusicPath == "" {
		t.Fatalf("mixer should still receive the music path")
	}
	if _, err := os.Stat(h.mixer.req.MusicPath); !os.IsNotExist(err) {
		t.Fatalf("expected no file at %s", h.mixer.req.MusicPath)
	}
}

type assembleFunc func(req audio.AssembleRequest)

func (f assembleFunc) Assemble(_ context.Context, req audio.AssembleRequest) (audio.AssembleResult, error) {
	f(req)
	return audio.AssembleResult{Key: "briefings/" + req.BriefingID + ".wav", DurationSeconds: 1}, nil
}
