package procmanager

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// StopConfiguration implements spec.md §4.5's group-stop: extend the target
// set by transitive dependents (a dependent must stop before the
// dependency it relies on), sort in reverse dependency order, and stop
// sequentially so a still-running dependent is never left pointed at a
// dependency that already went away.
func (m *Manager) StopConfiguration(configID string, appIDs []string) (map[string]AppResult, error) {
	return m.StopConfigurationGraceful(configID, appIDs, true)
}

// StopConfigurationGraceful is StopConfiguration with explicit control over
// whether each stopped application gets a SIGTERM grace period before
// SIGKILL, or is killed outright.
func (m *Manager) StopConfigurationGraceful(configID string, appIDs []string, graceful bool) (map[string]AppResult, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return nil, err
	}

	targets, err := resolveTargetIDs(cfg, appIDs)
	if err != nil {
		return nil, err
	}
	targets = closeDependents(cfg, targets)

	order, err := topoSortStop(cfg, targets)
	if err != nil {
		return nil, err
	}

	results := make(map[string]AppResult, len(order))
	for _, spec := range order {
		entry := m.entryFor(configID, spec.ID)
		m.stopOne(entry, spec, graceful, spec.StopTimeoutDuration())
		st := entry.status()
		results[spec.ID] = AppResult{State: st.State}
	}
	return results, nil
}

// stopOne drives one application from starting/running to stopped. graceful
// requests a SIGTERM-then-wait before escalating to SIGKILL, and is passed
// through from the caller of StopConfigurationGraceful (StopConfiguration
// always passes true); the health-timeout path in healthLoop kills directly
// and never goes through stopOne.
func (m *Manager) stopOne(entry *appEntry, spec model.ApplicationSpec, graceful bool, timeout time.Duration) {
	entry.mu.Lock()
	state := entry.rt.State
	cmd := entry.rt.Cmd
	exited := entry.exitedCh
	healthCancel := entry.healthCancel
	restartCancel := entry.restartCancel
	entry.manualStop = true
	entry.mu.Unlock()

	if healthCancel != nil {
		healthCancel()
	}
	if restartCancel != nil {
		restartCancel()
	}

	if state == model.StateStopped || state == model.StateFailed || cmd == nil || cmd.Process == nil {
		entry.mu.Lock()
		entry.rt.State = model.StateStopped
		entry.rt.Cmd = nil
		entry.mu.Unlock()
		m.publish(entry)
		m.archiveQuiet(entry)
		return
	}

	entry.mu.Lock()
	entry.rt.State = model.StateStopping
	entry.mu.Unlock()
	m.publish(entry)

	pid := cmd.Process.Pid
	if graceful {
		killProcessGroup(pid, unix.SIGTERM)
		select {
		case <-exited:
		case <-time.After(timeout):
			killProcessGroup(pid, unix.SIGKILL)
			<-exited
		}
	} else {
		killProcessGroup(pid, unix.SIGKILL)
		<-exited
	}

	m.releasePort(entry.snapshot().AllocatedPort)

	entry.mu.Lock()
	entry.rt.State = model.StateStopped
	entry.rt.Cmd = nil
	entry.rt.AllocatedPort = 0
	entry.mu.Unlock()
	m.publish(entry)

	m.archiveQuiet(entry)
}

func (m *Manager) archiveQuiet(entry *appEntry) {
	pipeline := m.pipelineFor(entry)
	if err := pipeline.Archive(entry.snapshot().RunID); err != nil {
		m.logger.Warn("archive on stop failed", "config_id", entry.configID, "app_id", entry.appID, "error", err)
	}
}
