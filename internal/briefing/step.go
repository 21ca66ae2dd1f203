package briefing

import (
	"context"
	"errors"
	"fmt"
)

// RecoverableError is returned by a step that failed but already knows the
// value the run should continue with.
type RecoverableError struct {
	Err         error
	Fallback    any
	Description string
}

func (e *RecoverableError) Error() string {
	if e.Err == nil {
		return "recoverable error"
	}
	return e.Err.Error()
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// Recoverable wraps err with the value the run should continue with.
func Recoverable(err error, fallback any, description string) error {
	return &RecoverableError{Err: err, Fallback: fallback, Description: description}
}

// FatalError is returned once a step failure has been recorded as
// non-recoverable and the briefing has been marked failed.
type FatalError struct {
	Step string
	Err  error
}

func (e *FatalError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

// Step describes one fallible call site. Fallback is optional; when set, any
// unexpected failure is downgraded to a recoverable error using its value.
type Step[T any] struct {
	Name     string
	Phase    Phase
	Fallback func(err error) (T, string)
}

// RunStep executes fn under the step's failure policy, recording errors on rec.
func RunStep[T any](ctx context.Context, rec Recorder, step Step[T], fn func(ctx context.Context) (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = handleStepError(ctx, rec, step, fmt.Errorf("panic: %v", r))
		}
	}()

	out, err = fn(ctx)
	if err == nil {
		return out, nil
	}
	return handleStepError(ctx, rec, step, err)
}

func handleStepError[T any](ctx context.Context, rec Recorder, step Step[T], err error) (T, error) {
	var zero T
	if IsCancelled(err) {
		return zero, err
	}

	var recErr *RecoverableError
	if errors.As(err, &recErr) {
		value, ok := recErr.Fallback.(T)
		if ok || recErr.Fallback == nil {
			record(ctx, rec, GenerationError{
				Phase:       step.Phase,
				Component:   step.Name,
				Message:     err.Error(),
				Recoverable: true,
				Fallback:    recErr.Description,
			})
			return value, nil
		}
	}

	if step.Fallback != nil {
		value, desc := step.Fallback(err)
		record(ctx, rec, GenerationError{
			Phase:       step.Phase,
			Component:   step.Name,
			Message:     err.Error(),
			Recoverable: true,
			Fallback:    desc,
		})
		return value, nil
	}

	record(ctx, rec, GenerationError{
		Phase:       step.Phase,
		Component:   step.Name,
		Message:     err.Error(),
		Recoverable: false,
	})
	return zero, &FatalError{Step: step.Name, Err: err}
}

func record(ctx context.Context, rec Recorder, ge GenerationError) {
	if rec == nil {
		return
	}
	// the error log is best effort; the step outcome does not depend on it
	_ = rec.RecordError(ctx, ge)
}
