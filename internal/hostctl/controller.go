package hostctl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/run"
)

var (
	// ErrServiceNotReported is returned when sc output does not mention the
	// requested service.
	ErrServiceNotReported = errors.New("service state not reported")

	// ErrDeadlineExceeded is returned by WaitForState when the service does
	// not reach the wanted state in time.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// Commander runs a command and returns its stdout split into lines.
type Commander interface {
	Output(ctx context.Context, name string, args ...string) ([]string, error)
}

// ExecCommander runs commands with os/exec.
type ExecCommander struct{}

// Output implements Commander. A non-zero exit is not an error as long as
// the tool printed something; sc and schtasks report failures on stdout.
func (ExecCommander) Output(ctx context.Context, name string, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // G204: fixed tool names
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	lines := splitLines(stdout.Bytes())
	if err != nil && len(lines) == 0 {
		return nil, fmt.Errorf("running %s: %w", name, err)
	}
	return lines, nil
}

// DryCommander logs commands instead of running them. Scheduled task
// changes report SUCCESS and every query reports nothing.
type DryCommander struct {
	Log *zap.Logger
}

// Output implements Commander.
func (d DryCommander) Output(_ context.Context, name string, args ...string) ([]string, error) {
	if d.Log != nil {
		d.Log.Info("dry run", zap.String("command", name+" "+strings.Join(args, " ")))
	}
	if name == "schtasks" {
		return []string{"SUCCESS: dry run"}, nil
	}
	return nil, nil
}

func splitLines(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

// Controller drives schtasks, sc and openfiles on remote servers.
type Controller struct {
	cmd   Commander
	log   *zap.Logger
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewController creates a Controller. A nil logger discards output.
func NewController(cmd Commander, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{cmd: cmd, log: log, now: time.Now, sleep: sleepCtx}
}

// WithClock replaces the clock and sleep used by WaitForState.
func (c *Controller) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Controller {
	c.now = now
	c.sleep = sleep
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetScheduledTaskEnabled enables or disables a scheduled task and reports
// whether schtasks confirmed the change.
func (c *Controller) SetScheduledTaskEnabled(ctx context.Context, name, server string, enabled bool) (bool, error) {
	flag := "/Disable"
	if enabled {
		flag = "/Enable"
	}
	c.log.Info("changing scheduled task", zap.String("task", name), zap.String("server", server), zap.Bool("enabled", enabled))
	lines, err := c.cmd.Output(ctx, "schtasks", "/Change", "/S", server, "/TN", name, flag)
	if err != nil {
		return false, err
	}
	return ParseSchTasksOutput(lines), nil
}

// QueryServiceStates returns the state of every service on server.
func (c *Controller) QueryServiceStates(ctx context.Context, server string) (map[string]State, error) {
	c.log.Info("querying services", zap.String("server", server))
	lines, err := c.cmd.Output(ctx, "sc", `\\`+server, "query", "state=", "all")
	if err != nil {
		return nil, err
	}
	return ParseSCOutput(lines), nil
}

// QueryService returns the state of one service.
func (c *Controller) QueryService(ctx context.Context, service, server string) (State, error) {
	return c.serviceCommand(ctx, "query", service, server)
}

// StopService asks the service to stop and returns the reported state.
func (c *Controller) StopService(ctx context.Context, service, server string) (State, error) {
	return c.serviceCommand(ctx, "stop", service, server)
}

// StartService asks the service to start and returns the reported state.
func (c *Controller) StartService(ctx context.Context, service, server string) (State, error) {
	return c.serviceCommand(ctx, "start", service, server)
}

func (c *Controller) serviceCommand(ctx context.Context, verb, service, server string) (State, error) {
	lines, err := c.cmd.Output(ctx, "sc", `\\`+server, verb, service)
	if err != nil {
		return "", err
	}
	state, ok := ParseSCOutput(lines)[service]
	if !ok {
		return "", fmt.Errorf("sc %s %q on %s: %w", verb, service, server, ErrServiceNotReported)
	}
	c.log.Info("service state", zap.String("verb", verb), zap.String("service", service),
		zap.String("server", server), zap.String("state", string(state)))
	return state, nil
}

// WaitForState polls the service every poll until it reports want. It
// gives up once timeout has elapsed since the call, without backoff.
func (c *Controller) WaitForState(ctx context.Context, service, server string, want State, timeout, poll time.Duration) (State, error) {
	deadline := c.now().Add(timeout)
	state, err := c.QueryService(ctx, service, server)
	for err == nil && state != want {
		if !c.now().Before(deadline) {
			return state, run.Fail("WaitForState", ErrDeadlineExceeded,
				"service", service, "server", server, "want", string(want), "timeout", timeout.String())
		}
		if serr := c.sleep(ctx, poll); serr != nil {
			return state, serr
		}
		state, err = c.QueryService(ctx, service, server)
	}
	return state, err
}

// ListOpenFiles lists files opened remotely through shares on server.
func (c *Controller) ListOpenFiles(ctx context.Context, server string) ([]OpenFile, error) {
	lines, err := c.cmd.Output(ctx, "openfiles", "/query", "/s", server, "/fo", "csv", "/v")
	if err != nil {
		return nil, err
	}
	return ParseOpenFilesCSV(lines), nil
}

// DisconnectOpenFile closes one open file by its openfiles id.
func (c *Controller) DisconnectOpenFile(ctx context.Context, server, id string) error {
	c.log.Info("disconnecting open file", zap.String("server", server), zap.String("id", id))
	if _, err := c.cmd.Output(ctx, "openfiles", "/disconnect", "/s", server, "/id", id); err != nil {
		return run.Fail("DisconnectOpenFile", err, "server", server, "id", id)
	}
	return nil
}
