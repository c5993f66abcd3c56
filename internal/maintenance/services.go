package maintenance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nnww-gis/gisops/internal/hostctl"
	"github.com/nnww-gis/gisops/internal/run"
)

// HostControl is the part of hostctl.Controller maintenance drives.
type HostControl interface {
	SetScheduledTaskEnabled(ctx context.Context, name, server string, enabled bool) (bool, error)
	QueryServiceStates(ctx context.Context, server string) (map[string]hostctl.State, error)
	QueryService(ctx context.Context, service, server string) (hostctl.State, error)
	StopService(ctx context.Context, service, server string) (hostctl.State, error)
	StartService(ctx context.Context, service, server string) (hostctl.State, error)
	WaitForState(ctx context.Context, service, server string, want hostctl.State, timeout, poll time.Duration) (hostctl.State, error)
}

var _ HostControl = (*hostctl.Controller)(nil)

// runningServices returns the watched services that are running or
// starting on server, in reverse name order.
func runningServices(ctx context.Context, h HostControl, server string, watched []string) ([]string, error) {
	states, err := h.QueryServiceStates(ctx, server)
	if err != nil {
		return nil, run.Fail("QueryServiceStates", err, "server", server)
	}
	var running []string
	for _, svc := range watched {
		if st, ok := states[svc]; ok && st.Active() {
			running = append(running, svc)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(running)))
	return running, nil
}

// setTaskEnabled enables or disables a scheduled task and fails when
// schtasks does not confirm the change.
func setTaskEnabled(ctx context.Context, h HostControl, ref TaskRef, enabled bool) error {
	op := "DisableTask"
	if enabled {
		op = "EnableTask"
	}
	ok, err := h.SetScheduledTaskEnabled(ctx, ref.Task, ref.Server, enabled)
	if err != nil {
		return run.Fail(op, err, "task", ref.Task, "server", ref.Server)
	}
	if !ok {
		return run.Fail(op, fmt.Errorf("schtasks did not report SUCCESS"), "task", ref.Task, "server", ref.Server)
	}
	return nil
}

// startService brings a stopped service back to RUNNING, waiting out a
// pending stop first.
func startService(ctx context.Context, h HostControl, ref ServiceRef, timeout, poll time.Duration) error {
	state, err := h.QueryService(ctx, ref.Service, ref.Server)
	if err != nil {
		return run.Fail("QueryService", err, "service", ref.Service, "server", ref.Server)
	}
	if state == hostctl.StopPending {
		if state, err = h.WaitForState(ctx, ref.Service, ref.Server, hostctl.Stopped, timeout, poll); err != nil {
			return err
		}
	}
	if state == hostctl.Stopped {
		if state, err = h.StartService(ctx, ref.Service, ref.Server); err != nil {
			return run.Fail("StartService", err, "service", ref.Service, "server", ref.Server)
		}
	}
	if state == hostctl.StartPending {
		if state, err = h.WaitForState(ctx, ref.Service, ref.Server, hostctl.Running, timeout, poll); err != nil {
			return err
		}
	}
	if state != hostctl.Running {
		return run.Fail("StartService", fmt.Errorf("service is %s", state), "service", ref.Service, "server", ref.Server)
	}
	return nil
}

// stopService stops a service and waits for STOPPED.
func stopService(ctx context.Context, h HostControl, ref ServiceRef, timeout, poll time.Duration) error {
	state, err := h.StopService(ctx, ref.Service, ref.Server)
	if err != nil {
		return run.Fail("StopService", err, "service", ref.Service, "server", ref.Server)
	}
	if state != hostctl.Stopped {
		if _, err := h.WaitForState(ctx, ref.Service, ref.Server, hostctl.Stopped, timeout, poll); err != nil {
			return err
		}
	}
	return nil
}
