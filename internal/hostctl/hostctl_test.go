package hostctl

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nnww-gis/gisops/internal/run"
)

const scQueryAll = `
SERVICE_NAME: ArcGIS Server
DISPLAY_NAME: ArcGIS Server
        TYPE               : 10  WIN32_OWN_PROCESS
        STATE              : 4  RUNNING
                                (STOPPABLE, NOT_PAUSABLE, ACCEPTS_SHUTDOWN)
        WIN32_EXIT_CODE    : 0  (0x0)

SERVICE_NAME: AW_GIS_Interface
DISPLAY_NAME: AW GIS Interface
        TYPE               : 10  WIN32_OWN_PROCESS
        STATE              : 2  START_PENDING

SERVICE_NAME: Spooler
        STATE              : 1  STOPPED
`

func TestParseSCOutput(t *testing.T) {
	got := ParseSCOutput(strings.Split(scQueryAll, "\n"))
	want := map[string]State{
		"ArcGIS Server":    Running,
		"AW_GIS_Interface": StartPending,
		"Spooler":          Stopped,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseSCOutput = %v, want %v", got, want)
	}
}

func TestParseSCOutputNoMatch(t *testing.T) {
	lines := []string{"[SC] OpenService FAILED 1060:", "", "        STATE              : 1  STOPPED"}
	if got := ParseSCOutput(lines); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestParseSchTasksOutput(t *testing.T) {
	tests := []struct {
		lines []string
		want  bool
	}{
		{[]string{`SUCCESS: The parameters of scheduled task "\NNWW\RefreshMapServices" have been changed.`}, true},
		{[]string{"", "ERROR: The system cannot find the file specified."}, false},
		{[]string{"  SUCCESS: indented does not count"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := ParseSchTasksOutput(tt.lines); got != tt.want {
			t.Errorf("ParseSchTasksOutput(%q) = %v, want %v", tt.lines, got, tt.want)
		}
	}
}

func TestParseOpenFilesCSV(t *testing.T) {
	out := []string{
		"",
		"INFO: The system global flag 'maintain objects list' needs",
		"      to be enabled to see local opened files.",
		"Files opened remotely via local share points:",
		"---------------------------------------------",
		`"Hostname","ID","Accessed By","Type","#Locks","Open Mode","Open File (Path\executable)"`,
		`"ARCTIC","1342178304","johndoe","Windows","0","Read","E:\desktop_gis\"`,
		`"ARCTIC","1208065025","bgates","Windows","0","Write + Read","E:\Desktop_GIS\ArcData\MainBreaks\MainBrks.shp"` + "\r",
	}
	got := ParseOpenFilesCSV(out)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(got), got)
	}
	if got[1].ID != "1208065025" || got[1].AccessedBy != "bgates" || got[1].OpenMode != "Write + Read" {
		t.Errorf("row = %+v", got[1])
	}
	if !strings.HasSuffix(got[1].Path, "MainBrks.shp") {
		t.Errorf("path = %q", got[1].Path)
	}
}

// fakeCommander replays canned output keyed by the joined command line.
type fakeCommander struct {
	mu      sync.Mutex
	outputs map[string][][]string
	calls   []string
	err     error
}

func (f *fakeCommander) Output(_ context.Context, name string, args ...string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if f.err != nil {
		return nil, f.err
	}
	queue := f.outputs[key]
	if len(queue) == 0 {
		return nil, nil
	}
	out := queue[0]
	if len(queue) > 1 {
		f.outputs[key] = queue[1:]
	}
	return out, nil
}

func scState(service string, state State) []string {
	return []string{"SERVICE_NAME: " + service, "        STATE              : 4  " + string(state)}
}

func TestSetScheduledTaskEnabled(t *testing.T) {
	f := &fakeCommander{outputs: map[string][][]string{
		`schtasks /Change /S arctic /TN \NNWW\RefreshMapServices /Disable`: {{"SUCCESS: changed"}},
	}}
	c := NewController(f, nil)

	ok, err := c.SetScheduledTaskEnabled(context.Background(), `\NNWW\RefreshMapServices`, "arctic", false)
	if err != nil || !ok {
		t.Errorf("disable = %v, %v", ok, err)
	}
	ok, err = c.SetScheduledTaskEnabled(context.Background(), `\NNWW\RefreshMapServices`, "arctic", true)
	if err != nil || ok {
		t.Errorf("enable with no output = %v, %v; want false", ok, err)
	}
}

func TestQueryServiceStates(t *testing.T) {
	f := &fakeCommander{outputs: map[string][][]string{
		`sc \\arctic query state= all`: {strings.Split(scQueryAll, "\n")},
	}}
	got, err := NewController(f, nil).QueryServiceStates(context.Background(), "arctic")
	if err != nil {
		t.Fatal(err)
	}
	if got["ArcGIS Server"] != Running || len(got) != 3 {
		t.Errorf("states = %v", got)
	}
}

func TestQueryServiceNotReported(t *testing.T) {
	f := &fakeCommander{outputs: map[string][][]string{}}
	_, err := NewController(f, nil).QueryService(context.Background(), "Missing", "arctic")
	if !errors.Is(err, ErrServiceNotReported) {
		t.Errorf("err = %v, want ErrServiceNotReported", err)
	}
}

// stepClock advances by each sleep instead of waiting.
type stepClock struct {
	now    time.Time
	sleeps int
}

func (s *stepClock) Now() time.Time { return s.now }

func (s *stepClock) Sleep(_ context.Context, d time.Duration) error {
	s.sleeps++
	s.now = s.now.Add(d)
	return nil
}

func TestWaitForState(t *testing.T) {
	key := `sc \\arctic query ArcGIS Server`
	f := &fakeCommander{outputs: map[string][][]string{
		key: {scState("ArcGIS Server", StopPending), scState("ArcGIS Server", StopPending), scState("ArcGIS Server", Stopped)},
	}}
	clk := &stepClock{now: time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC)}
	c := NewController(f, nil).WithClock(clk.Now, clk.Sleep)

	state, err := c.WaitForState(context.Background(), "ArcGIS Server", "arctic", Stopped, 10*time.Minute, 10*time.Second)
	if err != nil || state != Stopped {
		t.Fatalf("WaitForState = %s, %v", state, err)
	}
	if clk.sleeps != 2 {
		t.Errorf("sleeps = %d, want 2", clk.sleeps)
	}
}

func TestWaitForStateDeadline(t *testing.T) {
	key := `sc \\arctic query AW_GIS_Interface`
	f := &fakeCommander{outputs: map[string][][]string{key: {scState("AW_GIS_Interface", StartPending)}}}
	clk := &stepClock{now: time.Date(2024, 3, 9, 22, 0, 0, 0, time.UTC)}
	c := NewController(f, nil).WithClock(clk.Now, clk.Sleep)

	state, err := c.WaitForState(context.Background(), "AW_GIS_Interface", "arctic", Running, 10*time.Minute, 10*time.Second)
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("err = %v, want ErrDeadlineExceeded", err)
	}
	if state != StartPending {
		t.Errorf("state = %s", state)
	}
	if clk.sleeps != 60 {
		t.Errorf("sleeps = %d, want 60 fixed 10s polls", clk.sleeps)
	}
	if f, ok := run.AsFailure(err); !ok || f.Op != "WaitForState" {
		t.Errorf("err is not a WaitForState failure: %v", err)
	}
}

func TestWaitForStateCancelled(t *testing.T) {
	key := `sc \\arctic query ArcGIS Server`
	f := &fakeCommander{outputs: map[string][][]string{key: {scState("ArcGIS Server", StopPending)}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewController(f, nil)
	_, err := c.WaitForState(ctx, "ArcGIS Server", "arctic", Stopped, time.Minute, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDisconnectOpenFile(t *testing.T) {
	f := &fakeCommander{outputs: map[string][][]string{}}
	if err := NewController(f, nil).DisconnectOpenFile(context.Background(), "Arctic", "42"); err != nil {
		t.Fatal(err)
	}
	if want := "openfiles /disconnect /s Arctic /id 42"; f.calls[0] != want {
		t.Errorf("call = %q, want %q", f.calls[0], want)
	}

	f.err = errors.New("access denied")
	err := NewController(f, nil).DisconnectOpenFile(context.Background(), "Arctic", "42")
	if err == nil || !strings.Contains(err.Error(), "DisconnectOpenFile(server=Arctic, id=42)") {
		t.Errorf("err = %v", err)
	}
}

func TestDryCommander(t *testing.T) {
	c := NewController(DryCommander{}, nil)
	ok, err := c.SetScheduledTaskEnabled(context.Background(), `\NNWW\RefreshMapServices`, "arctic", false)
	if err != nil || !ok {
		t.Errorf("SetScheduledTaskEnabled = %v, %v; want true, nil", ok, err)
	}
	states, err := c.QueryServiceStates(context.Background(), "arctic")
	if err != nil || len(states) != 0 {
		t.Errorf("QueryServiceStates = %v, %v; want empty", states, err)
	}
}
