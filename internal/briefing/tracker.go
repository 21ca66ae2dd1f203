package briefing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrBriefingNotFound is returned when the tracked briefing no longer exists.
var ErrBriefingNotFound = errors.New("briefing not found")

// ErrInvalidTransition is returned for backwards or post-terminal status writes.
var ErrInvalidTransition = errors.New("invalid status transition")

// CancelledError signals that the briefing was cancelled out of band. Phase is
// the phase that was running when the cancellation was observed; Next is the
// status the run was about to enter.
type CancelledError struct {
	Phase Phase
	Next  Status
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("briefing cancelled during %s", e.Phase)
}

// IsCancelled reports whether err carries a cancellation signal.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

// StatusStore is the persistence the tracker needs. UpdateStatus must be a
// single conditional write that refuses to overwrite a terminal status; it
// reports whether the row was updated.
type StatusStore interface {
	GetBriefingStatus(ctx context.Context, briefingID string) (Status, bool, error)
	UpdateBriefingStatus(ctx context.Context, briefingID string, status Status) (bool, error)
	AppendGenerationError(ctx context.Context, briefingID string, ge GenerationError) error
}

// Recorder accepts generation errors. Tracker is the production implementation.
type Recorder interface {
	RecordError(ctx context.Context, ge GenerationError) error
}

// Tracker owns the status state machine and error log of one briefing run.
type Tracker struct {
	store      StatusStore
	briefingID string
	logger     *log.Logger
	now        func() time.Time

	mu      sync.Mutex
	current Status
	errs    []GenerationError
}

// NewTracker loads the current status of briefingID and returns a tracker for it.
func NewTracker(ctx context.Context, st StatusStore, briefingID string, logger *log.Logger) (*Tracker, error) {
	if st == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	status, found, err := st.GetBriefingStatus(ctx, briefingID)
	if err != nil {
		return nil, fmt.Errorf("load briefing status: %w", err)
	}
	if !found {
		return nil, ErrBriefingNotFound
	}
	return &Tracker{store: st, briefingID: briefingID, logger: logger, now: time.Now, current: status}, nil
}

// BriefingID returns the tracked briefing id.
func (t *Tracker) BriefingID() string { return t.briefingID }

// Current returns the last status this tracker persisted or observed.
func (t *Tracker) Current() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Phase returns the phase of the current status.
func (t *Tracker) Phase() Phase { return PhaseOf(t.Current()) }

// Transition moves the briefing to next after checking for an out-of-band
// cancellation. A cancelled briefing yields *CancelledError and is left untouched.
func (t *Tracker) Transition(ctx context.Context, next Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	persisted, found, err := t.store.GetBriefingStatus(ctx, t.briefingID)
	if err != nil {
		return fmt.Errorf("check briefing status: %w", err)
	}
	if !found {
		return ErrBriefingNotFound
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if persisted == StatusCancelled {
		return &CancelledError{Phase: PhaseOf(t.current), Next: next}
	}
	if persisted.Terminal() {
		t.current = persisted
		return fmt.Errorf("%w: briefing already %s", ErrInvalidTransition, persisted)
	}
	if next.Rank() < persisted.Rank() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, persisted, next)
	}

	updated, err := t.store.UpdateBriefingStatus(ctx, t.briefingID, next)
	if err != nil {
		return fmt.Errorf("persist status %s: %w", next, err)
	}
	if !updated {
		// lost a race with a cancel or another terminal write
		again, _, gerr := t.store.GetBriefingStatus(ctx, t.briefingID)
		if gerr == nil && again == StatusCancelled {
			return &CancelledError{Phase: PhaseOf(t.current), Next: next}
		}
		return fmt.Errorf("%w: status %s not applied", ErrInvalidTransition, next)
	}
	t.current = next
	return nil
}

// RecordError appends ge to the error log. A non-recoverable error also moves
// the briefing to failed.
func (t *Tracker) RecordError(ctx context.Context, ge GenerationError) error {
	t.mu.Lock()
	if ge.Phase == "" {
		ge.Phase = PhaseOf(t.current)
	}
	if ge.Timestamp.IsZero() {
		ge.Timestamp = t.now().UTC()
	}
	t.errs = append(t.errs, ge)
	t.mu.Unlock()

	t.logger.Printf("briefing %s: %s/%s error (recoverable=%t): %s", t.briefingID, ge.Phase, ge.Component, ge.Recoverable, ge.Message)
	if err := t.store.AppendGenerationError(ctx, t.briefingID, ge); err != nil {
		return fmt.Errorf("append generation error: %w", err)
	}
	if !ge.Recoverable {
		return t.Fail(ctx)
	}
	return nil
}

// Fail marks the briefing failed unless it already reached a terminal status.
func (t *Tracker) Fail(ctx context.Context) error {
	updated, err := t.store.UpdateBriefingStatus(ctx, t.briefingID, StatusFailed)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if updated {
		t.mu.Lock()
		t.current = StatusFailed
		t.mu.Unlock()
	}
	return nil
}

// Errors returns a copy of the errors recorded during this run.
func (t *Tracker) Errors() []GenerationError {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]GenerationError, len(t.errs))
	copy(out, t.errs)
	return out
}

// HasErrors reports whether any error was recorded.
func (t *Tracker) HasErrors() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.errs) > 0
}

// TerminalStatus is the status a successful run ends with.
func (t *Tracker) TerminalStatus() Status {
	if t.HasErrors() {
		return StatusCompletedWithWarnings
	}
	return StatusCompleted
}

// MarkTerminal records a terminal status written by the caller.
func (t *Tracker) MarkTerminal(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if status.Terminal() {
		t.current = status
	}
}
