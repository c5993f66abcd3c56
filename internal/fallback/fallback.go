// Package fallback runs an operation against a live source and, when that
// fails, once more against a stale copy of the same data.
package fallback

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/run"
)

// Task names the three locators of one unit of work.
type Task struct {
	Primary     string
	Fallback    string
	Destination string
}

// Operation is a transfer or creation action from a source to a destination.
type Operation struct {
	Name string
	Do   func(ctx context.Context, source, destination string) error
}

// Outcome reports which attempt, if any, succeeded.
type Outcome int

const (
	Failed Outcome = iota
	UsedPrimary
	UsedFallback
)

func (o Outcome) String() string {
	switch o {
	case UsedPrimary:
		return "primary"
	case UsedFallback:
		return "fallback"
	default:
		return "failed"
	}
}

// Succeeded reports whether either attempt succeeded.
func (o Outcome) Succeeded() bool { return o != Failed }

// ExecuteWithFallback runs op against task.Primary and, if that fails,
// against task.Fallback. Each failed attempt adds one entry to the run's
// error log. The destination is left as the last attempt wrote it.
func ExecuteWithFallback(ctx context.Context, rc *run.Context, op Operation, task Task) Outcome {
	err := attempt(ctx, op, task.Primary, task.Destination)
	if err == nil {
		return UsedPrimary
	}
	rc.Record(run.Fail(op.Name, run.Cause(err), "source", task.Primary, "destination", task.Destination))

	rc.Logger().Info("trying stale data source",
		zap.String("op", op.Name),
		zap.String("source", task.Fallback),
		zap.String("destination", task.Destination))

	if err := attempt(ctx, op, task.Fallback, task.Destination); err != nil {
		rc.Record(run.Fail(op.Name, run.Cause(err), "fallbackSource", task.Fallback, "destination", task.Destination))
		return Failed
	}
	return UsedFallback
}

// attempt converts a panic in op into an error so a misbehaving
// collaborator cannot take the run down.
func attempt(ctx context.Context, op Operation, source, destination string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return op.Do(ctx, source, destination)
}

type panicError struct{ value any }

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
