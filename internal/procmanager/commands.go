package procmanager

import (
	"context"
	"fmt"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

// Status returns the current runtime snapshot of every application in
// configID, or the subset named by appIDs.
func (m *Manager) Status(configID string, appIDs []string) ([]model.ApplicationStatus, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return nil, err
	}
	targets, err := resolveTargetIDs(cfg, appIDs)
	if err != nil {
		return nil, err
	}

	statuses := make([]model.ApplicationStatus, 0, len(targets))
	for _, spec := range cfg.Applications {
		if !targets[spec.ID] {
			continue
		}
		entry := m.entryFor(configID, spec.ID)
		statuses = append(statuses, entry.status())
	}
	return statuses, nil
}

// RestartConfiguration stops then starts the requested applications (and
// their dependency/dependent closures), in the order each phase requires.
func (m *Manager) RestartConfiguration(ctx context.Context, configID string, appIDs []string) (map[string]AppResult, error) {
	if _, err := m.StopConfiguration(configID, appIDs); err != nil {
		return nil, err
	}
	return m.StartConfiguration(ctx, configID, appIDs)
}

// Logs returns the tail of an application's log pipeline.
func (m *Manager) Logs(configID, appID, runID string, n int) ([]model.LogEntry, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return nil, err
	}
	if _, ok := cfg.AppByID(appID); !ok {
		return nil, apierr.NotFound("application %q not found in configuration %q", appID, configID)
	}
	entry := m.entryFor(configID, appID)
	return m.pipelineFor(entry).Tail(runID, n)
}

// ListLogRuns returns an application's archived log files, newest-first.
func (m *Manager) ListLogRuns(configID, appID string) ([]model.LogRunInfo, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return nil, err
	}
	if _, ok := cfg.AppByID(appID); !ok {
		return nil, apierr.NotFound("application %q not found in configuration %q", appID, configID)
	}
	entry := m.entryFor(configID, appID)
	return m.pipelineFor(entry).ListRuns()
}

// LogFilePath returns the path of an application's live log file, for
// follow-mode streaming.
func (m *Manager) LogFilePath(configID, appID string) (string, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return "", err
	}
	if _, ok := cfg.AppByID(appID); !ok {
		return "", apierr.NotFound("application %q not found in configuration %q", appID, configID)
	}
	entry := m.entryFor(configID, appID)
	return m.pipelineFor(entry).CurrentLogPath(), nil
}

// SearchLogs runs a regex (or literal, if pattern fails to compile) search
// over an application's current plus archived log files.
func (m *Manager) SearchLogs(configID, appID, pattern string, caseSensitive bool, maxResults int) ([]model.SearchMatch, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return nil, err
	}
	if _, ok := cfg.AppByID(appID); !ok {
		return nil, apierr.NotFound("application %q not found in configuration %q", appID, configID)
	}
	entry := m.entryFor(configID, appID)
	return m.pipelineFor(entry).Search(pattern, caseSensitive, maxResults)
}

// RunCommand dispatches an ad hoc or handler-mapped subcommand against a
// stopped or running application's working directory. Its stdout and
// stderr are captured into the returned CommandResult; they are not written
// to the application's log pipeline.
func (m *Manager) RunCommand(ctx context.Context, configID, appID, command string, args []string) (model.CommandResult, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return model.CommandResult{}, err
	}
	spec, ok := cfg.AppByID(appID)
	if !ok {
		return model.CommandResult{}, apierr.NotFound("application %q not found in configuration %q", appID, configID)
	}
	h, ok := m.handlers.Lookup(spec.HandlerTag)
	if !ok {
		return model.CommandResult{}, apierr.HandlerMissing(spec.HandlerTag)
	}

	entry := m.entryFor(configID, appID)
	env := childEnv(cfg, spec, entry.snapshot().AllocatedPort, func(depID string) (int, bool) {
		dep, ok := m.lookupEntry(configID, depID)
		if !ok {
			return 0, false
		}
		snap := dep.snapshot()
		return snap.AllocatedPort, snap.AllocatedPort != 0
	})

	return h.RunCustomCommand(ctx, spec, command, args, env)
}

// TriggerReload asks the application's handler to hot-reload it in place,
// without restarting the managed process. Returns false with a message
// when the handler reports no support for it.
func (m *Manager) TriggerReload(ctx context.Context, configID, appID string) (bool, string, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return false, "", err
	}
	spec, ok := cfg.AppByID(appID)
	if !ok {
		return false, "", apierr.NotFound("application %q not found in configuration %q", appID, configID)
	}
	h, ok := m.handlers.Lookup(spec.HandlerTag)
	if !ok {
		return false, "", apierr.HandlerMissing(spec.HandlerTag)
	}
	if !h.SupportsReload(spec) {
		return false, fmt.Sprintf("handler %q does not support reload", spec.HandlerTag), nil
	}
	ok, msg := h.TriggerReload(ctx, spec)
	return ok, msg, nil
}
