package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/run"
)

// Restore starts the services and enables the tasks left down by a run
// that never reached its cleanup. Each item is forgotten once it is back;
// failures are recorded on rc and the item stays in the state file. It
// returns the state that remains.
func Restore(ctx context.Context, rc *run.Context, h HostControl, sm *StateManager, timeout, poll time.Duration) (*State, error) {
	s, err := sm.Load()
	if err != nil {
		return nil, err
	}
	if s.Empty() {
		rc.Logger().Info("nothing to restore")
		return s, nil
	}
	rc.Logger().Info("restoring", zap.String("runID", s.RunID), zap.String("dbServer", s.DBServer))

	for _, ref := range s.StoppedServices {
		if err := startService(ctx, h, ref, timeout, poll); err != nil {
			rc.Record(err)
			continue
		}
		if err := sm.RemoveStoppedService(ref); err != nil {
			return nil, err
		}
	}
	for _, ref := range s.DisabledTasks {
		if err := setTaskEnabled(ctx, h, ref, true); err != nil {
			rc.Record(err)
			continue
		}
		if err := sm.RemoveDisabledTask(ref); err != nil {
			return nil, err
		}
	}
	return sm.Load()
}
