package procmanager

import (
	"context"
	"sync"
	"time"

	"github.com/rorygraves/clientserverrunner/internal/logpipeline"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

// entryKey identifies one (configuration, application) pair.
func entryKey(configID, appID string) string {
	return configID + "/" + appID
}

// appEntry is the manager's in-memory handle on one application: its
// current runtime snapshot plus the machinery (lock, pipeline, cancel
// functions) needed to drive its state machine. All state transitions for
// a given entry are serialised behind mu, per spec.md §4.5's concurrency
// discipline.
//
// Grounded on the teacher's ManagedDaemon (internal/supervisor/
// supervisor.go), split into a persisted-shape ApplicationRuntime plus the
// unexported machinery the teacher mixed into one struct.
type appEntry struct {
	mu sync.Mutex

	configID string
	appID    string
	spec     model.ApplicationSpec
	rt       model.ApplicationRuntime

	pipeline *logpipeline.Pipeline

	healthCancel  context.CancelFunc
	restartCancel context.CancelFunc
	manualStop    bool
	exitedCh      chan struct{}

	restartTimes []time.Time
}

func newAppEntry(configID, appID string) *appEntry {
	return &appEntry{
		configID: configID,
		appID:    appID,
		rt: model.ApplicationRuntime{
			ConfigID: configID,
			AppID:    appID,
			State:    model.StateStopped,
			Health:   model.HealthUnknown,
		},
	}
}

// snapshot returns a copy of the runtime state safe to read without the lock.
func (e *appEntry) snapshot() model.ApplicationRuntime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rt
}

func (e *appEntry) status() model.ApplicationStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := model.ApplicationStatus{
		AppID:         e.appID,
		State:         e.rt.State,
		Health:        e.rt.Health,
		ExitCode:      e.rt.ExitCode,
		ErrorMessage:  e.rt.ErrorMessage,
		AllocatedPort: e.rt.AllocatedPort,
	}
	if e.rt.Cmd != nil && e.rt.Cmd.Process != nil {
		st.PID = e.rt.Cmd.Process.Pid
	}
	if !e.rt.StartedAt.IsZero() {
		started := e.rt.StartedAt
		st.StartedAt = &started
	}
	return st
}
