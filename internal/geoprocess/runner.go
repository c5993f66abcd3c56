// Package geoprocess drives the vendor geoprocessing toolkit through an
// external bridge process. Each toolkit call is one process invocation:
//
//	<command> <args...> <tool> <tool args...>
//
// The bridge prints any result on stdout and exits non-zero on failure
// with the toolkit's message on stderr.
package geoprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner runs one toolkit call and returns its stdout.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) ([]byte, error)
}

// ErrToolFailed is wrapped by errors returned from BridgeRunner when the
// bridge exits non-zero.
var ErrToolFailed = errors.New("geoprocessing tool failed")

// BridgeRunner runs toolkit calls through an external command.
type BridgeRunner struct {
	Command string
	Args    []string
	Timeout time.Duration
	Log     *zap.Logger
}

// NewBridgeRunner creates a BridgeRunner. A zero timeout means no limit.
func NewBridgeRunner(command string, args []string, timeout time.Duration, log *zap.Logger) *BridgeRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &BridgeRunner{Command: command, Args: args, Timeout: timeout, Log: log}
}

// Run implements Runner.
func (b *BridgeRunner) Run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	if b.Command == "" {
		return nil, fmt.Errorf("%s: no geoprocessor command configured", tool)
	}
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(b.Args)+1+len(args))
	argv = append(argv, b.Args...)
	argv = append(argv, tool)
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, b.Command, argv...) //nolint:gosec // G204: command comes from operator config
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	b.Log.Debug("geoprocessing call",
		zap.String("tool", tool),
		zap.Strings("args", args),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrToolFailed, tool, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrToolFailed, msg)
	}
	return stdout.Bytes(), nil
}

// Call is one recorded toolkit call.
type Call struct {
	Tool string
	Args []string
}

// String renders the call as tool(arg, arg).
func (c Call) String() string {
	return c.Tool + "(" + strings.Join(c.Args, ", ") + ")"
}

// DryRunner records calls without running anything. With no Respond
// hook every call succeeds with empty output.
type DryRunner struct {
	Log     *zap.Logger
	Respond func(Call) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements Runner.
func (d *DryRunner) Run(_ context.Context, tool string, args ...string) ([]byte, error) {
	c := Call{Tool: tool, Args: append([]string(nil), args...)}
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
	if d.Log != nil {
		d.Log.Info("dry run", zap.String("call", c.String()))
	}
	if d.Respond != nil {
		return d.Respond(c)
	}
	return nil, nil
}

// Tools returns the tool names of the recorded calls in order.
func (d *DryRunner) Tools() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	for i, c := range d.calls {
		out[i] = c.Tool
	}
	return out
}

// Calls returns the recorded calls.
func (d *DryRunner) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}
