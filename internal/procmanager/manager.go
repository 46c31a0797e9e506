// Package procmanager is the orchestration core: it owns the per-application
// state machine, spawn/terminate, auto-restart policy, dependency-ordered
// group start/stop, and port-passing between applications.
//
// Grounded on the teacher's Supervisor (internal/supervisor/supervisor.go):
// Start/Stop/monitorDaemon/waitForExit/handleDaemonFailure establish the
// spawn-with-Setpgid, ticker-driven health poll, and exponential-backoff
// restart idioms this package generalizes from a flat name->daemon map to
// dependency-ordered group operations over (config_id, app_id) keys.
package procmanager

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
	"github.com/rorygraves/clientserverrunner/internal/configstore"
	"github.com/rorygraves/clientserverrunner/internal/events"
	"github.com/rorygraves/clientserverrunner/internal/handler"
	"github.com/rorygraves/clientserverrunner/internal/logpipeline"
	"github.com/rorygraves/clientserverrunner/internal/model"
	"github.com/rorygraves/clientserverrunner/internal/portalloc"
)

const (
	restartBudgetWindow  = time.Hour
	maxRestartsPerWindow = 10
	defaultStopTimeout   = 10 * time.Second
)

var restartBackoffSequenceSeconds = []int{1, 2, 4, 8, 16, 30}

// AppResult is the per-application outcome reported by a group-start,
// group-stop, or restart call.
type AppResult struct {
	State model.State `json:"state"`
	Error string      `json:"error,omitempty"`
}

// Manager is the process manager. One Manager serves every loaded
// configuration for the life of the supervisor process.
type Manager struct {
	store    *configstore.Store
	handlers *handler.Registry
	ports    *portalloc.Allocator
	dataDir  string
	logger   *slog.Logger
	bus      *events.Bus

	mu      sync.Mutex
	entries map[string]*appEntry
}

// NewManager wires the process manager to its collaborators. dataDir is the
// supervisor's data directory root (D in spec.md §6); per-application log
// directories live under dataDir/logs/<config_id>/<app_id>/. bus receives
// an events.StateChanged notification on every application state
// transition; pass nil to disable notification (e.g. in tests that don't
// need the dashboard feed).
func NewManager(store *configstore.Store, handlers *handler.Registry, ports *portalloc.Allocator, dataDir string, logger *slog.Logger, bus *events.Bus) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = events.New(logger)
	}
	return &Manager{
		store:    store,
		handlers: handlers,
		ports:    ports,
		dataDir:  dataDir,
		logger:   logger,
		bus:      bus,
		entries:  make(map[string]*appEntry),
	}
}

// publish notifies the event bus of entry's current state, used after every
// state-machine transition so the status dashboard can update without polling.
func (m *Manager) publish(entry *appEntry) {
	snap := entry.snapshot()
	m.bus.Publish(events.StateChanged{
		ConfigID:  entry.configID,
		AppID:     entry.appID,
		State:     snap.State,
		Health:    snap.Health,
		Timestamp: time.Now().UTC(),
	})
}

func (m *Manager) entryFor(configID, appID string) *appEntry {
	key := entryKey(configID, appID)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = newAppEntry(configID, appID)
		m.entries[key] = e
	}
	return e
}

func (m *Manager) lookupEntry(configID, appID string) (*appEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entryKey(configID, appID)]
	return e, ok
}

// IsRunning reports whether any application of configID is not currently
// stopped. Wired into configstore.Store as its RunningChecker.
func (m *Manager) IsRunning(configID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := configID + "/"
	for key, e := range m.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if e.snapshot().State != model.StateStopped {
			return true
		}
	}
	return false
}

func (m *Manager) logDir(configID, appID string) string {
	return filepath.Join(m.dataDir, "logs", configID, appID)
}

func (m *Manager) pipelineFor(entry *appEntry) *logpipeline.Pipeline {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.pipeline == nil {
		entry.pipeline = logpipeline.New(m.logDir(entry.configID, entry.appID), 0)
	}
	return entry.pipeline
}

// resolveTargetIDs restricts appIDs to the caller's request (or every
// application when appIDs is empty).
func resolveTargetIDs(cfg model.Configuration, appIDs []string) (map[string]bool, error) {
	if len(appIDs) == 0 {
		ids := make(map[string]bool, len(cfg.Applications))
		for _, a := range cfg.Applications {
			ids[a.ID] = true
		}
		return ids, nil
	}
	ids := make(map[string]bool, len(appIDs))
	for _, id := range appIDs {
		if _, ok := cfg.AppByID(id); !ok {
			return nil, apierr.NotFound("application %q not found in configuration %q", id, cfg.ID)
		}
		ids[id] = true
	}
	return ids, nil
}

func childEnv(cfg model.Configuration, spec model.ApplicationSpec, allocatedPort int, depPort func(depID string) (int, bool)) []string {
	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	if spec.PortEnvVar != "" && allocatedPort != 0 {
		env = append(env, fmt.Sprintf("%s=%d", spec.PortEnvVar, allocatedPort))
	}
	for _, dep := range spec.DependsOn {
		if port, ok := depPort(dep); ok {
			env = append(env, fmt.Sprintf("%s_PORT=%d", strings.ToUpper(dep), port))
		}
	}
	return env
}

func restartBackoff(attempt int) time.Duration {
	if attempt < len(restartBackoffSequenceSeconds) {
		return time.Duration(restartBackoffSequenceSeconds[attempt]) * time.Second
	}
	return time.Duration(restartBackoffSequenceSeconds[len(restartBackoffSequenceSeconds)-1]) * time.Second
}

// runIDClock disambiguates two newRunID calls that land in the same
// wall-clock second (a fast manual restart loop, or a crash immediately
// followed by a restart), since the archive filename's resolution is one
// second and a colliding name would silently overwrite the prior run's log
// on Archive's os.Rename.
var runIDClock struct {
	mu       sync.Mutex
	lastSec  string
	seenThis int
}

// newRunID names one run of an application for the on-disk log archive:
// D/logs/<config_id>/<app_id>/<YYYY-MM-DD-HH-MM-SS>.log, with a numeric
// suffix appended only on the rare second call within the same second.
func newRunID() string {
	stamp := time.Now().UTC().Format("2006-01-02-15-04-05")

	runIDClock.mu.Lock()
	if stamp == runIDClock.lastSec {
		runIDClock.seenThis++
	} else {
		runIDClock.lastSec = stamp
		runIDClock.seenThis = 0
	}
	n := runIDClock.seenThis
	runIDClock.mu.Unlock()

	if n == 0 {
		return stamp
	}
	return fmt.Sprintf("%s-%d", stamp, n)
}

// killProcessGroup sends sig to the process group led by the child, since
// every child is spawned with Setpgid so a single signal reaches any
// grandchildren it may have forked (grounded on the teacher's
// SysProcAttr{Setpgid: true} spawn idiom).
func killProcessGroup(pid int, sig unix.Signal) {
	if pid <= 0 {
		return
	}
	unix.Kill(-pid, sig)
}
