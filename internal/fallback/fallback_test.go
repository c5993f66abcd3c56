package fallback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/nnww-gis/gisops/internal/run"
)

// recordingOp fails for any source listed in failOn and records every call.
type recordingOp struct {
	failOn map[string]bool
	calls  []string
}

func (r *recordingOp) op() Operation {
	return Operation{
		Name: "ExportFeatureClass",
		Do: func(_ context.Context, source, destination string) error {
			r.calls = append(r.calls, source+"->"+destination)
			if r.failOn[source] {
				return errors.New("cannot open " + source)
			}
			return nil
		},
	}
}

func newRun() *run.Context {
	return run.New("ExportWeekday", run.Env{Host: "arctic"})
}

func TestExecuteWithFallback(t *testing.T) {
	task := Task{Primary: "prod", Fallback: "stale", Destination: "temp"}
	tests := []struct {
		name      string
		failOn    map[string]bool
		want      Outcome
		wantCalls int
		wantErrs  int
	}{
		{"primary succeeds", nil, UsedPrimary, 1, 0},
		{"fallback succeeds", map[string]bool{"prod": true}, UsedFallback, 2, 1},
		{"both fail", map[string]bool{"prod": true, "stale": true}, Failed, 2, 2},
		{"only fallback broken", map[string]bool{"stale": true}, UsedPrimary, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := newRun()
			r := &recordingOp{failOn: tt.failOn}
			got := ExecuteWithFallback(context.Background(), rc, r.op(), task)
			if got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
			if len(r.calls) != tt.wantCalls {
				t.Errorf("calls = %v, want %d", r.calls, tt.wantCalls)
			}
			if n := len(rc.Errors()); n != tt.wantErrs {
				t.Errorf("error log length = %d, want %d", n, tt.wantErrs)
			}
		})
	}
}

func TestExecuteWithFallbackContext(t *testing.T) {
	rc := newRun()
	r := &recordingOp{failOn: map[string]bool{"prod": true, "stale": true}}
	ExecuteWithFallback(context.Background(), rc, r.op(), Task{Primary: "prod", Fallback: "stale", Destination: "temp"})

	errs := rc.Errors()
	if len(errs) != 2 {
		t.Fatalf("got %d errors", len(errs))
	}
	if want := "ExportFeatureClass(source=prod, destination=temp)"; errs[0].Context != want {
		t.Errorf("first context = %q, want %q", errs[0].Context, want)
	}
	if want := "ExportFeatureClass(fallbackSource=stale, destination=temp)"; errs[1].Context != want {
		t.Errorf("second context = %q, want %q", errs[1].Context, want)
	}
	if !strings.Contains(errs[1].Detail, "cannot open stale") {
		t.Errorf("second detail = %q", errs[1].Detail)
	}
}

func TestSameLocatorStillTriesTwice(t *testing.T) {
	rc := newRun()
	r := &recordingOp{failOn: map[string]bool{"same": true}}
	got := ExecuteWithFallback(context.Background(), rc, r.op(), Task{Primary: "same", Fallback: "same", Destination: "d"})
	if got != Failed || len(r.calls) != 2 || len(rc.Errors()) != 2 {
		t.Errorf("outcome=%v calls=%d errors=%d", got, len(r.calls), len(rc.Errors()))
	}
}

func TestPanickingOperationIsRecorded(t *testing.T) {
	rc := newRun()
	op := Operation{Name: "Copy", Do: func(context.Context, string, string) error { panic("bad handle") }}
	if got := ExecuteWithFallback(context.Background(), rc, op, Task{"a", "b", "c"}); got != Failed {
		t.Errorf("outcome = %v, want Failed", got)
	}
	if errs := rc.Errors(); len(errs) != 2 || errs[0].Detail != "panic: bad handle" {
		t.Errorf("errors = %v", errs)
	}
}

func TestExecuteWithFallbackProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		primaryFails := rapid.Bool().Draw(t, "primaryFails")
		fallbackFails := rapid.Bool().Draw(t, "fallbackFails")
		prior := rapid.IntRange(0, 5).Draw(t, "prior")

		rc := newRun()
		for i := 0; i < prior; i++ {
			rc.RecordError("earlier", nil)
		}
		calls := 0
		op := Operation{Name: "Op", Do: func(_ context.Context, source, _ string) error {
			calls++
			if (source == "p" && primaryFails) || (source == "f" && fallbackFails) {
				return errors.New("x")
			}
			return nil
		}}
		out := ExecuteWithFallback(context.Background(), rc, op, Task{"p", "f", "d"})

		failing := 0
		if primaryFails {
			failing++
			if fallbackFails {
				failing++
			}
		}
		if got := len(rc.Errors()) - prior; got != failing {
			t.Fatalf("recorded %d, want %d", got, failing)
		}
		if calls > 2 {
			t.Fatalf("%d calls", calls)
		}
		if out.Succeeded() != (failing < 2) {
			t.Fatalf("outcome %v with %d failures", out, failing)
		}
	})
}
