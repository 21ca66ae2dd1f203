package briefing

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
)

type memStatusStore struct {
	mu      sync.Mutex
	status  map[string]Status
	errs    map[string][]GenerationError
	history []Status
}

func newMemStatusStore(id string, st Status) *memStatusStore {
	return &memStatusStore{
		status: map[string]Status{id: st},
		errs:   map[string][]GenerationError{},
	}
}

func (m *memStatusStore) GetBriefingStatus(_ context.Context, id string) (Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.status[id]
	return st, ok, nil
}

func (m *memStatusStore) UpdateBriefingStatus(_ context.Context, id string, st Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.status[id]
	if !ok || cur.Terminal() {
		return false, nil
	}
	m.status[id] = st
	m.history = append(m.history, st)
	return true, nil
}

func (m *memStatusStore) AppendGenerationError(_ context.Context, id string, ge GenerationError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[id] = append(m.errs[id], ge)
	return nil
}

func (m *memStatusStore) cancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = StatusCancelled
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestTrackerTransitionsForwardOnly(t *testing.T) {
	ctx := context.Background()
	st := newMemStatusStore("b1", StatusPending)
	tr, err := NewTracker(ctx, st, "b1", quietLogger())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	for _, next := range []Status{StatusSetup, StatusGatheringContent, StatusWritingScript, StatusGeneratingAudio} {
		if err := tr.Transition(ctx, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := tr.Transition(ctx, StatusGatheringContent); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for regression, got %v", err)
	}
	for i := 1; i < len(st.history); i++ {
		if st.history[i].Rank() < st.history[i-1].Rank() {
			t.Fatalf("status regressed: %v", st.history)
		}
	}
}

func TestTrackerNoTransitionAfterTerminal(t *testing.T) {
	ctx := context.Background()
	st := newMemStatusStore("b1", StatusCompleted)
	tr, err := NewTracker(ctx, st, "b1", quietLogger())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if err := tr.Transition(ctx, StatusFinalizing); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if len(st.history) != 0 {
		t.Fatalf("expected no writes, got %v", st.history)
	}
}

func TestTrackerCancellationCarriesRunningPhase(t *testing.T) {
	ctx := context.Background()
	st := newMemStatusStore("b1", StatusPending)
	tr, _ := NewTracker(ctx, st, "b1", quietLogger())
	for _, next := range []Status{StatusSetup, StatusGatheringContent, StatusWritingScript} {
		if err := tr.Transition(ctx, next); err != nil {
			t.Fatalf("transition: %v", err)
		}
	}
	st.cancel("b1")

	err := tr.Transition(ctx, StatusGeneratingAudio)
	var ce *CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CancelledError, got %v", err)
	}
	if ce.Phase != PhaseWritingScript {
		t.Fatalf("expected phase writing_script, got %s", ce.Phase)
	}
	if ce.Next != StatusGeneratingAudio {
		t.Fatalf("expected next generating_audio, got %s", ce.Next)
	}
	if got, _, _ := st.GetBriefingStatus(ctx, "b1"); got != StatusCancelled {
		t.Fatalf("expected status to stay cancelled, got %s", got)
	}
}

func TestTrackerRecordErrorFatalMarksFailed(t *testing.T) {
	ctx := context.Background()
	st := newMemStatusStore("b1", StatusPending)
	tr, _ := NewTracker(ctx, st, "b1", quietLogger())
	_ = tr.Transition(ctx, StatusSetup)

	if err := tr.RecordError(ctx, GenerationError{Component: "weather", Message: "timeout", Recoverable: true}); err != nil {
		t.Fatalf("RecordError: %v", err)
	}
	if got, _, _ := st.GetBriefingStatus(ctx, "b1"); got != StatusSetup {
		t.Fatalf("recoverable error changed status to %s", got)
	}
	if tr.TerminalStatus() != StatusCompletedWithWarnings {
		t.Fatalf("expected warnings terminal status, got %s", tr.TerminalStatus())
	}

	if err := tr.RecordError(ctx, GenerationError{Component: "settings", Message: "missing", Recoverable: false}); err != nil {
		t.Fatalf("RecordError: %v", err)
	}
	if got, _, _ := st.GetBriefingStatus(ctx, "b1"); got != StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	errs := st.errs["b1"]
	if len(errs) != 2 || errs[0].Phase != PhaseSetup {
		t.Fatalf("unexpected error log: %+v", errs)
	}
}

func TestTrackerTerminalStatusWithoutErrors(t *testing.T) {
	ctx := context.Background()
	st := newMemStatusStore("b1", StatusPending)
	tr, _ := NewTracker(ctx, st, "b1", quietLogger())
	if tr.TerminalStatus() != StatusCompleted {
		t.Fatalf("expected completed, got %s", tr.TerminalStatus())
	}
}

func TestNewTrackerMissingBriefing(t *testing.T) {
	st := newMemStatusStore("b1", StatusPending)
	if _, err := NewTracker(context.Background(), st, "nope", quietLogger()); !errors.Is(err, ErrBriefingNotFound) {
		t.Fatalf("expected ErrBriefingNotFound, got %v", err)
	}
}
