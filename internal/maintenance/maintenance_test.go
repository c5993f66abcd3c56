package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/gdbadmin"
	"github.com/nnww-gis/gisops/internal/hostctl"
	"github.com/nnww-gis/gisops/internal/mail"
	"github.com/nnww-gis/gisops/internal/run"
)

// fakeClock advances only when the code under test sleeps.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	return nil
}

type fakeHosts struct {
	states    map[string]map[string]hostctl.State
	failStart map[string]bool
	failTask  map[string]bool
	calls     []string
}

func newFakeHosts() *fakeHosts {
	return &fakeHosts{
		states: map[string]map[string]hostctl.State{
			"arctic": {
				"ArcGIS Server":    hostctl.StartPending,
				"AW_GIS_Interface": hostctl.Running,
				"Spooler":          hostctl.Running,
			},
		},
		failStart: map[string]bool{},
		failTask:  map[string]bool{},
	}
}

func (f *fakeHosts) SetScheduledTaskEnabled(_ context.Context, name, server string, enabled bool) (bool, error) {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	f.calls = append(f.calls, verb+" "+server+" "+name)
	return !f.failTask[name], nil
}

func (f *fakeHosts) QueryServiceStates(_ context.Context, server string) (map[string]hostctl.State, error) {
	f.calls = append(f.calls, "query-all "+server)
	out := make(map[string]hostctl.State)
	for k, v := range f.states[server] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeHosts) QueryService(_ context.Context, service, server string) (hostctl.State, error) {
	return f.states[server][service], nil
}

func (f *fakeHosts) StopService(_ context.Context, service, server string) (hostctl.State, error) {
	f.calls = append(f.calls, "stop "+server+" "+service)
	f.states[server][service] = hostctl.Stopped
	return hostctl.StopPending, nil
}

func (f *fakeHosts) StartService(_ context.Context, service, server string) (hostctl.State, error) {
	f.calls = append(f.calls, "start "+server+" "+service)
	if f.failStart[service] {
		return "", errors.New("[SC] StartService FAILED 5: Access is denied.")
	}
	f.states[server][service] = hostctl.Running
	return hostctl.StartPending, nil
}

func (f *fakeHosts) WaitForState(_ context.Context, service, server string, want hostctl.State, timeout, _ time.Duration) (hostctl.State, error) {
	st := f.states[server][service]
	if st != want {
		return st, run.Fail("WaitForState", hostctl.ErrDeadlineExceeded,
			"service", service, "server", server, "want", string(want), "timeout", timeout.String())
	}
	return st, nil
}

type fakeAdmin struct {
	calls     []string
	users     [][]gdbadmin.User
	versions  []string
	data      []string
	fail      map[string]error
	reconcile gdbadmin.ReconcileOptions
}

func (a *fakeAdmin) call(name string) error {
	a.calls = append(a.calls, name)
	return a.fail[name]
}

func (a *fakeAdmin) AcceptConnections(_ context.Context, accept bool) error {
	return a.call(fmt.Sprintf("AcceptConnections(%t)", accept))
}

func (a *fakeAdmin) ListUsers(context.Context) ([]gdbadmin.User, error) {
	if err := a.call("ListUsers"); err != nil {
		return nil, err
	}
	if len(a.users) == 0 {
		return nil, nil
	}
	u := a.users[0]
	if len(a.users) > 1 {
		a.users = a.users[1:]
	}
	return u, nil
}

func (a *fakeAdmin) DisconnectAll(context.Context) error { return a.call("DisconnectAll") }

func (a *fakeAdmin) ListVersions(context.Context) ([]string, error) {
	return a.versions, a.call("ListVersions")
}

func (a *fakeAdmin) ReconcilePostDelete(_ context.Context, opts gdbadmin.ReconcileOptions) error {
	a.reconcile = opts
	return a.call("ReconcilePostDelete")
}

func (a *fakeAdmin) Compress(context.Context) error { return a.call("Compress") }

func (a *fakeAdmin) CreateVersion(_ context.Context, v gdbadmin.Version) error {
	return a.call("CreateVersion(" + v.Name + ")")
}

func (a *fakeAdmin) RebuildIndexes(context.Context, []string) error { return a.call("RebuildIndexes") }

func (a *fakeAdmin) AnalyzeDatasets(context.Context, []string) error {
	return a.call("AnalyzeDatasets")
}

func (a *fakeAdmin) ListData(context.Context, string) ([]string, error) {
	return a.data, a.call("ListData")
}

func testConfig() config.MaintenanceConfig {
	return config.MaintenanceConfig{
		Database:       "sdeVector",
		DBServer:       "conway",
		ConnectionDir:  `\\arctic\Maintenance\Interfaces`,
		UserConn:       "{server}_{database}_sde.sde",
		AdminConn:      "{server}_{database}_sdeAdmin.sde",
		SystemUsers:    []string{"sde", "dbo", "arcgiscontainer"},
		Services:       []string{"ArcGIS Server", "AW_GIS_Interface"},
		DataPattern:    "*.sdeDataOwner.*",
		TargetVersion:  "sde.DEFAULT",
		WarningWait:    15 * time.Minute,
		WarningPoll:    time.Minute,
		ServiceTimeout: 10 * time.Minute,
		ServicePoll:    10 * time.Second,
		Profiles: []config.MaintenanceProfile{{
			DBServer: "conway",
			Tasks: map[string][]string{
				"arctic": {`\NNWW\ImportGisScadaReadings`, `\NNWW\RefreshMapServices`},
			},
			ServiceServers: []string{"arctic"},
		}},
		Versions: []config.VersionSpec{
			{Name: "SAP_GIS_Interface", Parent: "sde.DEFAULT", Access: "PUBLIC"},
			{Name: "ArcGISContainer", Parent: "DBO.SAP_GIS_Interface", Access: "PUBLIC"},
		},
	}
}

type harness struct {
	rc    *run.Context
	clock *fakeClock
	hosts *fakeHosts
	admin *fakeAdmin
	mail  *mail.Recorder
	state *StateManager
	dir   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 9, 22, 0, 0, 0, time.Local)}
	dir := t.TempDir()
	return &harness{
		rc:    run.New("gisops maintenance", run.Env{Host: "arctic", User: "bgates"}, run.WithClock(clock.Now)),
		clock: clock,
		hosts: newFakeHosts(),
		admin: &fakeAdmin{versions: []string{"sde.DEFAULT", "DBO.SAP_GIS_Interface"}, data: []string{"sdeVector.sdeDataOwner.wHydrant"}},
		mail:  &mail.Recorder{},
		state: NewStateManager(dir),
		dir:   dir,
	}
}

func (h *harness) runner(opts Options, exists bool) *Runner {
	return New(h.rc, testConfig(), "nnva.gov", h.dir, opts, Deps{
		Hosts:      h.hosts,
		Admin:      h.admin,
		Mail:       h.mail,
		State:      h.state,
		FileExists: func(string) bool { return exists },
		Sleep:      h.clock.Sleep,
	})
}

func TestRunNoTasks(t *testing.T) {
	h := newHarness(t)
	if err := h.runner(Options{}, true).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(h.hosts.calls) != 0 || len(h.admin.calls) != 0 || h.rc.Failed() {
		t.Errorf("unexpected work: hosts=%v admin=%v errors=%v", h.hosts.calls, h.admin.calls, h.rc.Errors())
	}
}

func TestRunWrongServer(t *testing.T) {
	h := newHarness(t)
	err := h.runner(Options{AppServer: "DevArctic", Versions: true}, true).Run(context.Background())
	if !errors.Is(err, ErrWrongServer) {
		t.Fatalf("error = %v, want ErrWrongServer", err)
	}
	if len(h.hosts.calls) != 0 || len(h.admin.calls) != 0 {
		t.Errorf("ran work on the wrong server: hosts=%v admin=%v", h.hosts.calls, h.admin.calls)
	}
	if errs := h.rc.Errors(); len(errs) != 1 {
		t.Errorf("errors = %v", errs)
	}
}

func TestRunMissingConnectionFile(t *testing.T) {
	h := newHarness(t)
	err := h.runner(Options{AppServer: "ARCTIC", Compress: true}, false).Run(context.Background())
	if !errors.Is(err, ErrMissingConnection) {
		t.Fatalf("error = %v, want ErrMissingConnection", err)
	}
	if !strings.Contains(err.Error(), `conway_sdeVector_sde.sde`) {
		t.Errorf("error %q does not name the connection file", err)
	}
}

func TestRunFullSequence(t *testing.T) {
	h := newHarness(t)
	h.admin.users = [][]gdbadmin.User{
		{{Name: `NNWW\BKingery`}, {Name: "sde"}, {Name: "bkingery"}},
		{},
	}
	opts := Options{Versions: true, Compress: true, Indexes: true}
	if err := h.runner(opts, true).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if h.rc.Failed() {
		t.Fatalf("errors = %v", h.rc.Errors())
	}

	wantHosts := []string{
		`disable arctic \NNWW\ImportGisScadaReadings`,
		`disable arctic \NNWW\RefreshMapServices`,
		"query-all arctic",
		"stop arctic ArcGIS Server",
		"stop arctic AW_GIS_Interface",
		"start arctic AW_GIS_Interface",
		"start arctic ArcGIS Server",
		`enable arctic \NNWW\ImportGisScadaReadings`,
		`enable arctic \NNWW\RefreshMapServices`,
	}
	if got := strings.Join(h.hosts.calls, "\n"); got != strings.Join(wantHosts, "\n") {
		t.Errorf("host calls:\n%s\nwant:\n%s", got, strings.Join(wantHosts, "\n"))
	}

	wantAdmin := []string{
		"AcceptConnections(false)",
		"ListUsers", "ListUsers",
		"DisconnectAll",
		"ListVersions", "ReconcilePostDelete",
		"Compress",
		"CreateVersion(SAP_GIS_Interface)", "CreateVersion(ArcGISContainer)",
		"ListData", "RebuildIndexes",
		"ListData", "AnalyzeDatasets",
		"AcceptConnections(true)",
	}
	if got := strings.Join(h.admin.calls, ","); got != strings.Join(wantAdmin, ",") {
		t.Errorf("admin calls:\n%s\nwant:\n%s", got, strings.Join(wantAdmin, ","))
	}

	r := h.admin.reconcile
	if r.Target != "sde.DEFAULT" || len(r.Versions) != 2 || !strings.HasSuffix(r.LogFile, "_arctic_Versions.log") {
		t.Errorf("reconcile options = %+v", r)
	}

	if len(h.mail.Sent) != 2 {
		t.Fatalf("sent %d messages, want warning and notification", len(h.mail.Sent))
	}
	warning, notice := h.mail.Sent[0], h.mail.Sent[1]
	if warning.Subject != "Please Disconnect from the GIS Database" || strings.Join(warning.To, ",") != "bkingery@nnva.gov" {
		t.Errorf("warning = %+v", warning)
	}
	if warning.From != "bgates <bgates@nnva.gov>" {
		t.Errorf("warning from = %q", warning.From)
	}
	if notice.Subject != "All GIS services are now available" || strings.Join(notice.To, ",") != "bkingery@nnva.gov" {
		t.Errorf("notification = %+v", notice)
	}

	if _, err := os.Stat(h.state.Path()); !os.IsNotExist(err) {
		t.Errorf("state file left behind after a clean run: %v", err)
	}

	rep := h.rc.Finalize()
	if len(rep.Fields) != 1 || rep.Fields[0] != (run.Field{Name: "Database Server", Value: "conway"}) {
		t.Errorf("fields = %v", rep.Fields)
	}
}

func TestRunFatalStopsWorkButCleansUp(t *testing.T) {
	h := newHarness(t)
	h.admin.fail = map[string]error{"Compress": errors.New("ERROR 000837: compress failed")}
	err := h.runner(Options{Versions: true, Compress: true, Indexes: true}, true).Run(context.Background())
	if err == nil {
		t.Fatal("expected compress failure")
	}
	for _, c := range h.admin.calls {
		if strings.HasPrefix(c, "CreateVersion") || c == "RebuildIndexes" {
			t.Errorf("%s ran after a fatal failure", c)
		}
	}
	last := h.admin.calls[len(h.admin.calls)-1]
	if last != "AcceptConnections(true)" {
		t.Errorf("last admin call = %s, want AcceptConnections(true)", last)
	}
	var started, enabled int
	for _, c := range h.hosts.calls {
		switch {
		case strings.HasPrefix(c, "start "):
			started++
		case strings.HasPrefix(c, "enable "):
			enabled++
		}
	}
	if started != 2 || enabled != 2 {
		t.Errorf("cleanup started %d services and enabled %d tasks", started, enabled)
	}
	if errs := h.rc.Errors(); len(errs) != 1 || errs[0].Context != "ERROR 000837: compress failed" {
		t.Errorf("errors = %v", errs)
	}
}

func TestRunImportOnly(t *testing.T) {
	h := newHarness(t)
	if err := h.runner(Options{Import: true}, true).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(h.hosts.calls) != 0 || len(h.admin.calls) != 0 {
		t.Errorf("import touched services or the database: hosts=%v admin=%v", h.hosts.calls, h.admin.calls)
	}
	errs := h.rc.Errors()
	if len(errs) != 1 || errs[0].Context != "ImportDataFromOtherSystems" || !strings.Contains(errs[0].Detail, "not been implemented") {
		t.Errorf("errors = %v", errs)
	}
}

func TestWarningWaitEndsAtDeadline(t *testing.T) {
	h := newHarness(t)
	h.admin.users = [][]gdbadmin.User{{{Name: "mvwashington"}}}
	start := h.clock.Now()
	if err := h.runner(Options{Indexes: true}, true).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if waited := h.clock.Now().Sub(start); waited != 15*time.Minute {
		t.Errorf("waited %v, want 15m", waited)
	}
	var lists int
	for _, c := range h.admin.calls {
		if c == "ListUsers" {
			lists++
		}
	}
	if lists != 16 {
		t.Errorf("ListUsers called %d times, want 16", lists)
	}
}

func TestCreateVersionsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.admin.fail = map[string]error{"CreateVersion(SAP_GIS_Interface)": errors.New("version already exists")}
	if err := h.runner(Options{Versions: true}, true).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	joined := strings.Join(h.admin.calls, ",")
	if !strings.Contains(joined, "CreateVersion(ArcGISContainer)") {
		t.Errorf("second version not created: %s", joined)
	}
	if errs := h.rc.Errors(); len(errs) != 1 {
		t.Errorf("errors = %v", errs)
	}
}

func TestStartServicesIndependent(t *testing.T) {
	h := newHarness(t)
	h.hosts.failStart["AW_GIS_Interface"] = true
	if err := h.runner(Options{Compress: true}, true).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if h.hosts.states["arctic"]["ArcGIS Server"] != hostctl.Running {
		t.Error("ArcGIS Server not restarted after another service failed")
	}
	errs := h.rc.Errors()
	if len(errs) != 1 || !strings.HasPrefix(errs[0].Context, "StartService(service=AW_GIS_Interface") {
		t.Errorf("errors = %v", errs)
	}
	s, err := h.state.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(s.StoppedServices) != 1 || s.StoppedServices[0].Service != "AW_GIS_Interface" || len(s.DisabledTasks) != 0 {
		t.Errorf("state = %+v", s)
	}
	if s.RunID != h.rc.ID || s.DBServer != "conway" {
		t.Errorf("state not stamped with the run: %+v", s)
	}
}

func TestDisableTaskFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.hosts.failTask[`\NNWW\RefreshMapServices`] = true
	if err := h.runner(Options{Compress: true}, true).Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	for _, c := range h.hosts.calls {
		if strings.HasPrefix(c, "stop ") {
			t.Errorf("services stopped after a task could not be disabled: %s", c)
		}
	}
	for _, c := range h.admin.calls {
		if c == "Compress" {
			t.Error("compressed after a fatal failure")
		}
	}
}

func TestRestore(t *testing.T) {
	h := newHarness(t)
	h.hosts.states["arctic"]["ArcGIS Server"] = hostctl.Stopped
	h.hosts.states["arctic"]["AW_GIS_Interface"] = hostctl.Stopped
	sm := h.state.ForRun("crashed-run", "conway")
	for _, err := range []error{
		sm.AddStoppedService(ServiceRef{Server: "arctic", Service: "ArcGIS Server"}),
		sm.AddStoppedService(ServiceRef{Server: "arctic", Service: "AW_GIS_Interface"}),
		sm.AddDisabledTask(TaskRef{Server: "arctic", Task: `\NNWW\RefreshMapServices`}),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
	h.hosts.failStart["AW_GIS_Interface"] = true

	left, err := Restore(context.Background(), h.rc, h.hosts, NewStateManager(h.dir), time.Minute, time.Second)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if len(left.StoppedServices) != 1 || left.StoppedServices[0].Service != "AW_GIS_Interface" || len(left.DisabledTasks) != 0 {
		t.Errorf("remaining = %+v", left)
	}
	if left.RunID != "crashed-run" {
		t.Errorf("restore replaced the owning run id: %q", left.RunID)
	}
	if h.hosts.states["arctic"]["ArcGIS Server"] != hostctl.Running {
		t.Error("ArcGIS Server not started")
	}
	if len(h.rc.Errors()) != 1 {
		t.Errorf("errors = %v", h.rc.Errors())
	}
}
