// Package maintenance runs scheduled geodatabase maintenance. It takes GIS
// services, scheduled tasks and user sessions offline, works on the
// database, then brings everything back and reports.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/gdbadmin"
	"github.com/nnww-gis/gisops/internal/logging"
	"github.com/nnww-gis/gisops/internal/mail"
	"github.com/nnww-gis/gisops/internal/run"
)

var (
	// ErrWrongServer is returned when the run is not on the application server.
	ErrWrongServer = errors.New("wrong application server")

	// ErrMissingConnection is returned when a connection file is missing.
	ErrMissingConnection = errors.New("database connection file does not exist")

	errImportNotImplemented = errors.New("unable to import data from other systems: /Import option has not been implemented")
)

// Options selects the maintenance work.
type Options struct {
	AppServer string
	DBServer  string
	Versions  bool
	Compress  bool
	Import    bool
	Indexes   bool

	// From is the mail sender. Empty means "user <user@domain>".
	From string
}

// Any reports whether any maintenance task was requested.
func (o Options) Any() bool {
	return o.Versions || o.Compress || o.Import || o.Indexes
}

func (o Options) stopsServices() bool { return o.Versions || o.Compress || o.Indexes }
func (o Options) blocksUsers() bool   { return o.Versions || o.Indexes }

// Deps are the collaborators a Runner drives.
type Deps struct {
	Hosts HostControl
	Admin gdbadmin.Admin
	Mail  mail.Sender
	// State is optional. When set, stopped services and disabled tasks
	// are persisted for "maintenance restore".
	State      *StateManager
	FileExists func(string) bool
	Sleep      func(context.Context, time.Duration) error
}

// Runner performs one maintenance run.
type Runner struct {
	rc     *run.Context
	cfg    config.MaintenanceConfig
	domain string
	opts   Options
	deps   Deps

	from        string
	versionsLog string

	ready   bool
	profile config.MaintenanceProfile
	stopped map[string][]string
	warned  []string
}

// New creates a Runner. Empty AppServer means the current host and empty
// DBServer means the configured default.
func New(rc *run.Context, cfg config.MaintenanceConfig, domain, logDir string, opts Options, deps Deps) *Runner {
	if opts.AppServer == "" {
		opts.AppServer = rc.Env.Host
	}
	if opts.DBServer == "" {
		opts.DBServer = cfg.DBServer
	}
	opts.AppServer = strings.ToLower(opts.AppServer)
	opts.DBServer = strings.ToLower(opts.DBServer)
	if opts.From == "" {
		opts.From = mail.DefaultSender(rc.Env.User, domain)
	}
	if deps.FileExists == nil {
		deps.FileExists = fileExists
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	return &Runner{
		rc:          rc,
		cfg:         cfg,
		domain:      domain,
		opts:        opts,
		deps:        deps,
		from:        opts.From,
		versionsLog: filepath.Join(logDir, logging.RunLogName(rc.Start, rc.Env.Host, "Versions")),
		stopped:     make(map[string][]string),
	}
}

// VersionsLog is the reconcile log file for this run.
func (r *Runner) VersionsLog() string { return r.versionsLog }

// Warned returns the users sent the disconnect warning.
func (r *Runner) Warned() []string { return r.warned }

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
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

// Run performs the requested work. The first fatal failure stops the work;
// the cleanup phases run regardless once initialization has passed. The
// returned error is the fatal failure, already recorded on the run.
func (r *Runner) Run(ctx context.Context) error {
	if !r.opts.Any() {
		return nil
	}
	r.rc.SetField("Database Server", r.opts.DBServer)
	r.rc.AttachLogFile(r.versionsLog)
	defer r.cleanup(ctx)
	return r.perform(ctx)
}

type phase struct {
	name string
	when bool
	fn   func(context.Context) error
}

func (r *Runner) perform(ctx context.Context) error {
	o := r.opts
	phases := []phase{
		{"Initialize", true, r.initialize},
		{"DisableTasks", o.stopsServices(), r.disableTasks},
		{"StopServices", o.stopsServices(), r.stopServices},
		{"StopAcceptingConnections", o.blocksUsers(), r.stopAcceptingConnections},
		{"SendWarningMail", o.blocksUsers(), r.sendWarningMail},
		{"DisconnectUsers", o.blocksUsers(), r.disconnectUsers},
		{"ReconcilePostDeleteVersions", o.Versions, r.reconcilePostDeleteVersions},
		{"CompressDatabase", o.Compress, r.compressDatabase},
		{"CreateVersions", o.Versions, r.createVersions},
		{"ImportDataFromOtherSystems", o.Import, r.importData},
		{"RebuildIndexes", o.Indexes, r.rebuildIndexes},
		{"UpdateStatistics", o.Indexes, r.updateStatistics},
	}
	for _, p := range phases {
		if !p.when {
			continue
		}
		r.rc.Logger().Info("Doing " + p.name + " ...")
		if err := p.fn(ctx); err != nil {
			r.rc.Record(err)
			return err
		}
	}
	return nil
}

func (r *Runner) cleanup(ctx context.Context) {
	if !r.ready {
		return
	}
	// Bring the system back even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)
	o := r.opts
	phases := []phase{
		{"AcceptConnections", o.blocksUsers(), r.acceptConnections},
		{"StartServices", o.stopsServices(), r.startServices},
		{"EnableTasks", o.stopsServices(), r.enableTasks},
		{"SendNotificationMail", o.blocksUsers(), r.sendNotificationMail},
	}
	for _, p := range phases {
		if !p.when {
			continue
		}
		r.rc.Logger().Info("Doing " + p.name + " ...")
		if err := p.fn(ctx); err != nil {
			r.rc.Record(err)
		}
	}
}

func (r *Runner) initialize(_ context.Context) error {
	r.rc.Logger().Info("Application Server: " + r.opts.AppServer)
	if !strings.EqualFold(r.opts.AppServer, r.rc.Env.Host) {
		return fmt.Errorf("%w: tried to run %q on %s, it must be run on %s",
			ErrWrongServer, r.rc.Task, r.rc.Env.Host, r.opts.AppServer)
	}
	user, admin := r.cfg.ConnectionFiles(r.opts.DBServer)
	for _, f := range []string{user, admin} {
		if !r.deps.FileExists(f) {
			return fmt.Errorf("%w: %q", ErrMissingConnection, f)
		}
	}
	r.profile = r.cfg.Profile(r.opts.DBServer)
	if r.deps.State != nil {
		r.deps.State.ForRun(r.rc.ID, r.opts.DBServer)
	}
	r.ready = true
	return nil
}

// saveState applies a state change. A failure to persist never stops
// maintenance.
func (r *Runner) saveState(err error) {
	if err != nil {
		r.rc.Warn(fmt.Sprintf("maintenance state not saved: %v", err))
	}
}

func (r *Runner) taskRefs() []TaskRef {
	servers := make([]string, 0, len(r.profile.Tasks))
	for s := range r.profile.Tasks {
		servers = append(servers, s)
	}
	sort.Strings(servers)
	var refs []TaskRef
	for _, s := range servers {
		for _, t := range r.profile.Tasks[s] {
			refs = append(refs, TaskRef{Server: s, Task: t})
		}
	}
	return refs
}

func (r *Runner) disableTasks(ctx context.Context) error {
	for _, ref := range r.taskRefs() {
		if err := setTaskEnabled(ctx, r.deps.Hosts, ref, false); err != nil {
			return err
		}
		if r.deps.State != nil {
			r.saveState(r.deps.State.AddDisabledTask(ref))
		}
	}
	return nil
}

func (r *Runner) enableTasks(ctx context.Context) error {
	var first error
	for _, ref := range r.taskRefs() {
		if err := setTaskEnabled(ctx, r.deps.Hosts, ref, true); err != nil {
			if first == nil {
				first = err
			} else {
				r.rc.Record(err)
			}
			continue
		}
		if r.deps.State != nil {
			r.saveState(r.deps.State.RemoveDisabledTask(ref))
		}
	}
	return first
}

func (r *Runner) stopServices(ctx context.Context) error {
	for _, server := range r.profile.ServiceServers {
		running, err := runningServices(ctx, r.deps.Hosts, server, r.cfg.Services)
		if err != nil {
			return err
		}
		r.stopped[server] = running
		r.rc.Logger().Info("running services", zap.String("server", server), zap.Strings("services", running))
	}
	for _, server := range r.profile.ServiceServers {
		for _, svc := range r.stopped[server] {
			ref := ServiceRef{Server: server, Service: svc}
			if r.deps.State != nil {
				r.saveState(r.deps.State.AddStoppedService(ref))
			}
			if err := stopService(ctx, r.deps.Hosts, ref, r.cfg.ServiceTimeout, r.cfg.ServicePoll); err != nil {
				return err
			}
		}
	}
	return nil
}

// startServices restarts every stopped service independently. All but
// the first failure are recorded here; the first is returned.
func (r *Runner) startServices(ctx context.Context) error {
	var first error
	for _, server := range r.profile.ServiceServers {
		services := append([]string(nil), r.stopped[server]...)
		sort.Strings(services)
		for _, svc := range services {
			ref := ServiceRef{Server: server, Service: svc}
			if err := startService(ctx, r.deps.Hosts, ref, r.cfg.ServiceTimeout, r.cfg.ServicePoll); err != nil {
				if first == nil {
					first = err
				} else {
					r.rc.Record(err)
				}
				continue
			}
			if r.deps.State != nil {
				r.saveState(r.deps.State.RemoveStoppedService(ref))
			}
		}
	}
	return first
}

func (r *Runner) stopAcceptingConnections(ctx context.Context) error {
	return r.deps.Admin.AcceptConnections(ctx, false)
}

func (r *Runner) acceptConnections(ctx context.Context) error {
	return r.deps.Admin.AcceptConnections(ctx, true)
}

func (r *Runner) connectedUsers(ctx context.Context) ([]string, error) {
	users, err := r.deps.Admin.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return gdbadmin.ConnectedWindowsUsers(users, r.cfg.SystemUsers), nil
}

// sendWarningMail warns connected users, then waits until they have all
// disconnected or the warning period is over.
func (r *Runner) sendWarningMail(ctx context.Context) error {
	users, err := r.connectedUsers(ctx)
	if err != nil {
		return err
	}
	r.warned = users
	if len(users) == 0 {
		return nil
	}
	to := mail.UserAddresses(users, r.domain)
	r.rc.Logger().Info("sending warning mail", zap.Strings("to", to))
	if err := r.deps.Mail.Send(ctx, mail.WarningMessage(r.from, to, r.cfg.WarningWait)); err != nil {
		r.rc.Record(err)
	}

	deadline := r.rc.Now().Add(r.cfg.WarningWait)
	for r.rc.Now().Before(deadline) {
		remaining, err := r.connectedUsers(ctx)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			break
		}
		r.rc.Logger().Info("waiting for users to disconnect", zap.Strings("users", remaining))
		if err := r.deps.Sleep(ctx, r.cfg.WarningPoll); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) sendNotificationMail(ctx context.Context) error {
	if len(r.warned) == 0 {
		return nil
	}
	return r.deps.Mail.Send(ctx, mail.NotificationMessage(r.from, mail.UserAddresses(r.warned, r.domain)))
}

func (r *Runner) disconnectUsers(ctx context.Context) error {
	return r.deps.Admin.DisconnectAll(ctx)
}

func (r *Runner) reconcilePostDeleteVersions(ctx context.Context) error {
	versions, err := r.deps.Admin.ListVersions(ctx)
	if err != nil {
		return err
	}
	return r.deps.Admin.ReconcilePostDelete(ctx, gdbadmin.ReconcileOptions{
		Target:   r.cfg.TargetVersion,
		Versions: versions,
		LogFile:  r.versionsLog,
	})
}

func (r *Runner) compressDatabase(ctx context.Context) error {
	return r.deps.Admin.Compress(ctx)
}

// createVersions records each failure and carries on.
func (r *Runner) createVersions(ctx context.Context) error {
	for _, v := range r.cfg.Versions {
		r.rc.Logger().Info("creating version",
			zap.String("version", v.Name), zap.String("parent", v.Parent), zap.String("access", v.Access))
		err := r.deps.Admin.CreateVersion(ctx, gdbadmin.Version{Name: v.Name, Parent: v.Parent, Access: v.Access})
		if err != nil {
			r.rc.Record(err)
		}
	}
	return nil
}

func (r *Runner) importData(_ context.Context) error {
	r.rc.RecordError("ImportDataFromOtherSystems", errImportNotImplemented)
	return nil
}

func (r *Runner) rebuildIndexes(ctx context.Context) error {
	data, err := r.deps.Admin.ListData(ctx, r.cfg.DataPattern)
	if err != nil {
		return err
	}
	return r.deps.Admin.RebuildIndexes(ctx, data)
}

func (r *Runner) updateStatistics(ctx context.Context) error {
	data, err := r.deps.Admin.ListData(ctx, r.cfg.DataPattern)
	if err != nil {
		return err
	}
	return r.deps.Admin.AnalyzeDatasets(ctx, data)
}
