package maintenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/nnww-gis/gisops/internal/util"
)

// StateFile is the name of the maintenance state file in the log directory.
const StateFile = "maintenance-state.json"

// ServiceRef is a service stopped on a server.
type ServiceRef struct {
	Server  string `json:"server"`
	Service string `json:"service"`
}

// TaskRef is a scheduled task disabled on a server.
type TaskRef struct {
	Server string `json:"server"`
	Task   string `json:"task"`
}

// State records what a maintenance run has taken down, so a run that dies
// before its cleanup can be undone with "gisops maintenance restore".
type State struct {
	RunID           string       `json:"run_id,omitempty"`
	DBServer        string       `json:"db_server,omitempty"`
	UpdatedAt       string       `json:"updated_at,omitempty"`
	StoppedServices []ServiceRef `json:"stopped_services,omitempty"`
	DisabledTasks   []TaskRef    `json:"disabled_tasks,omitempty"`
}

// Empty reports whether nothing is left to restore.
func (s *State) Empty() bool {
	return len(s.StoppedServices) == 0 && len(s.DisabledTasks) == 0
}

// StateManager persists State with file locking.
type StateManager struct {
	dir      string
	now      func() time.Time
	runID    string
	dbServer string
}

// NewStateManager keeps the state file in dir.
func NewStateManager(dir string) *StateManager {
	return &StateManager{dir: dir, now: time.Now}
}

// Path returns the state file path.
func (m *StateManager) Path() string {
	return filepath.Join(m.dir, StateFile)
}

func (m *StateManager) lockPath() string {
	return filepath.Join(m.dir, "maintenance-state.lock")
}

// lock acquires an exclusive file lock for state operations.
// Caller must defer unlock().
func (m *StateManager) lock() (func(), error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	fl := flock.New(m.lockPath())
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquiring maintenance state lock: %w", err)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Load reads the state. A missing file is an empty state.
func (m *StateManager) Load() (*State, error) {
	data, err := os.ReadFile(m.Path())
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading maintenance state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing maintenance state: %w", err)
	}
	return &s, nil
}

// Update loads the state under the lock, applies fn and writes the result.
// An empty result removes the file.
func (m *StateManager) Update(fn func(*State)) error {
	unlock, err := m.lock()
	if err != nil {
		return err
	}
	defer unlock()

	s, err := m.Load()
	if err != nil {
		return err
	}
	fn(s)
	if s.Empty() {
		if err := os.Remove(m.Path()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing maintenance state: %w", err)
		}
		return nil
	}
	if m.runID != "" {
		s.RunID = m.runID
		s.DBServer = m.dbServer
	}
	s.UpdatedAt = m.now().UTC().Format(time.RFC3339)
	return util.EnsureDirAndWriteJSON(m.Path(), s)
}

// ForRun stamps every later write with the owning run.
func (m *StateManager) ForRun(runID, dbServer string) *StateManager {
	m.runID = runID
	m.dbServer = dbServer
	return m
}

// AddStoppedService records a stopped service.
func (m *StateManager) AddStoppedService(ref ServiceRef) error {
	return m.Update(func(s *State) {
		for _, r := range s.StoppedServices {
			if r == ref {
				return
			}
		}
		s.StoppedServices = append(s.StoppedServices, ref)
	})
}

// RemoveStoppedService forgets a service once it runs again.
func (m *StateManager) RemoveStoppedService(ref ServiceRef) error {
	return m.Update(func(s *State) {
		kept := s.StoppedServices[:0]
		for _, r := range s.StoppedServices {
			if r != ref {
				kept = append(kept, r)
			}
		}
		s.StoppedServices = kept
	})
}

// AddDisabledTask records a disabled scheduled task.
func (m *StateManager) AddDisabledTask(ref TaskRef) error {
	return m.Update(func(s *State) {
		for _, r := range s.DisabledTasks {
			if r == ref {
				return
			}
		}
		s.DisabledTasks = append(s.DisabledTasks, ref)
	})
}

// RemoveDisabledTask forgets a task once it is enabled again.
func (m *StateManager) RemoveDisabledTask(ref TaskRef) error {
	return m.Update(func(s *State) {
		kept := s.DisabledTasks[:0]
		for _, r := range s.DisabledTasks {
			if r != ref {
				kept = append(kept, r)
			}
		}
		s.DisabledTasks = kept
	})
}
