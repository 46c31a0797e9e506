package procmanager

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
	"github.com/rorygraves/clientserverrunner/internal/health"
	"github.com/rorygraves/clientserverrunner/internal/logpipeline"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

// StartConfiguration implements spec.md §4.5's group-start: snapshot the
// configuration, extend the target set by transitive dependencies,
// topologically sort it, and bring each application up layer by layer
// (siblings within a layer start concurrently via errgroup; a layer always
// finishes before the next begins, preserving the dependency happens-after
// guarantee of §5(a)).
func (m *Manager) StartConfiguration(ctx context.Context, configID string, appIDs []string) (map[string]AppResult, error) {
	cfg, err := m.store.Get(configID)
	if err != nil {
		return nil, err
	}

	targets, err := resolveTargetIDs(cfg, appIDs)
	if err != nil {
		return nil, err
	}
	targets, err = closeDependencies(cfg, targets)
	if err != nil {
		return nil, err
	}
	layers, err := topoLayersStart(cfg, targets)
	if err != nil {
		return nil, err
	}

	results := make(map[string]AppResult, len(targets))
	for _, layer := range layers {
		g, gctx := errgroup.WithContext(ctx)
		for _, spec := range layer {
			spec := spec
			entry := m.entryFor(configID, spec.ID)
			if entry.snapshot().State != model.StateStopped && entry.snapshot().State != model.StateFailed {
				results[spec.ID] = AppResult{State: entry.snapshot().State}
				continue
			}
			g.Go(func() error {
				m.startOne(gctx, cfg, spec)
				st := entry.status()
				res := AppResult{State: st.State}
				if st.State == model.StateFailed {
					res.Error = st.ErrorMessage
				}
				m.mu.Lock()
				results[spec.ID] = res
				m.mu.Unlock()
				return nil
			})
		}
		g.Wait()

		aborted := false
		for _, spec := range layer {
			if r, ok := results[spec.ID]; ok && r.State == model.StateFailed {
				aborted = true
			}
		}
		if aborted {
			break
		}
	}
	return results, nil
}

// startOne drives one application from stopped/failed through to running
// (or failed), mutating entry in place. It is also the restart path: the
// auto-restart monitor calls it directly after its backoff delay elapses.
func (m *Manager) startOne(ctx context.Context, cfg model.Configuration, spec model.ApplicationSpec) {
	entry := m.entryFor(cfg.ID, spec.ID)

	entry.mu.Lock()
	entry.spec = spec
	entry.manualStop = false
	entry.rt.State = model.StateStarting
	entry.rt.ErrorMessage = ""
	entry.rt.ExitCode = nil
	entry.rt.Health = model.HealthUnknown
	entry.mu.Unlock()
	m.publish(entry)

	h, ok := m.handlers.Lookup(spec.HandlerTag)
	if !ok {
		m.failEntry(entry, apierr.HandlerMissing(spec.HandlerTag))
		return
	}

	port, err := m.allocatePort(cfg.ID, spec)
	if err != nil {
		m.failEntry(entry, err)
		return
	}

	env := childEnv(cfg, spec, port, func(depID string) (int, bool) {
		dep, ok := m.lookupEntry(cfg.ID, depID)
		if !ok {
			return 0, false
		}
		snap := dep.snapshot()
		if snap.AllocatedPort == 0 {
			return 0, false
		}
		return snap.AllocatedPort, true
	})

	pipeline := m.pipelineFor(entry)
	runID := newRunID()
	if err := pipeline.Archive(runID); err != nil {
		m.logger.Warn("archive previous run failed", "config_id", cfg.ID, "app_id", spec.ID, "error", err)
	}

	if spec.BuildCommand != "" {
		if err := m.runBuild(ctx, spec, env, pipeline); err != nil {
			m.releasePort(port)
			m.failEntry(entry, err)
			return
		}
	}

	name, args, err := h.PrepareCommand(spec)
	if err != nil {
		m.releasePort(port)
		m.failEntry(entry, apierr.StartupFailed(apierr.ReasonExited, "prepare_command: %v", err))
		return
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.releasePort(port)
		m.failEntry(entry, apierr.StartupFailed(apierr.ReasonExited, "stdout pipe: %v", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.releasePort(port)
		m.failEntry(entry, apierr.StartupFailed(apierr.ReasonExited, "stderr pipe: %v", err))
		return
	}

	if err := cmd.Start(); err != nil {
		m.releasePort(port)
		m.failEntry(entry, apierr.StartupFailed(apierr.ReasonExited, "spawn: %v", err))
		return
	}
	if err := pipeline.Attach(stdout, stderr); err != nil {
		m.logger.Warn("attach log pipeline failed", "config_id", cfg.ID, "app_id", spec.ID, "error", err)
	}

	exited := make(chan struct{})
	entry.mu.Lock()
	entry.rt.Cmd = cmd
	entry.rt.AllocatedPort = port
	entry.rt.StartedAt = time.Now().UTC()
	entry.rt.RunID = runID
	entry.rt.ResolvedEnv = env
	entry.exitedCh = exited
	entry.mu.Unlock()

	go m.waitForExit(entry, cmd, exited)

	if spec.HealthCheck == nil {
		entry.mu.Lock()
		entry.rt.State = model.StateRunning
		entry.rt.Health = model.HealthHealthy
		entry.mu.Unlock()
		m.publish(entry)
		return
	}

	hctx, cancel := context.WithCancel(context.Background())
	entry.mu.Lock()
	entry.healthCancel = cancel
	entry.mu.Unlock()
	go m.healthLoop(hctx, entry, spec, health.Target{AllocatedPort: port, PID: cmd.Process.Pid})

	m.awaitStarting(ctx, entry, spec)
}

// awaitStarting blocks the calling goroutine (one errgroup member per
// group-start call) until the health loop has taken the application out of
// starting, or the caller's context is cancelled.
func (m *Manager) awaitStarting(ctx context.Context, entry *appEntry, spec model.ApplicationSpec) {
	deadline := time.Now().Add(spec.StartupTimeoutDuration() + time.Second)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if entry.snapshot().State != model.StateStarting {
				return
			}
			if time.Now().After(deadline) {
				return
			}
		}
	}
}

func (m *Manager) allocatePort(configID string, spec model.ApplicationSpec) (int, error) {
	if spec.FixedPort != 0 {
		if !m.ports.Reserve(spec.FixedPort) {
			return 0, apierr.PortUnavailable("fixed port %d already held by another managed application", spec.FixedPort)
		}
		return spec.FixedPort, nil
	}
	if !spec.WantsDynamicPort() {
		return 0, nil
	}
	port, err := m.ports.Allocate()
	if err != nil {
		return 0, apierr.PortUnavailable("%v", err)
	}
	return port, nil
}

func (m *Manager) releasePort(port int) {
	if port == 0 {
		return
	}
	m.ports.Release(port)
}

func (m *Manager) runBuild(ctx context.Context, spec model.ApplicationSpec, env []string, pipeline *logpipeline.Pipeline) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", spec.BuildCommand)
	cmd.Dir = spec.WorkDir
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apierr.BuildFailed(-1, []string{err.Error()})
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apierr.BuildFailed(-1, []string{err.Error()})
	}
	if err := cmd.Start(); err != nil {
		return apierr.BuildFailed(-1, []string{err.Error()})
	}
	pipeline.Attach(stdout, stderr)

	runErr := cmd.Wait()
	if runErr == nil {
		return nil
	}
	tail, _ := pipeline.Tail("", 20)
	lines := make([]string, len(tail))
	for i, l := range tail {
		lines[i] = l.Text
	}
	exitCode := -1
	if ee, ok := runErr.(*exec.ExitError); ok {
		exitCode = ee.ExitCode()
	}
	return apierr.BuildFailed(exitCode, lines)
}

func (m *Manager) failEntry(entry *appEntry, err error) {
	entry.mu.Lock()
	entry.rt.State = model.StateFailed
	if e, ok := apierr.As(err); ok {
		entry.rt.ErrorMessage = e.Error()
	} else {
		entry.rt.ErrorMessage = err.Error()
	}
	entry.mu.Unlock()
	m.publish(entry)
}

func (m *Manager) healthLoop(ctx context.Context, entry *appEntry, spec model.ApplicationSpec, target health.Target) {
	interval := spec.HealthCheck.IntervalDuration()
	deadline := time.Now().Add(spec.StartupTimeoutDuration())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if entry.snapshot().State == model.StateStopped || entry.snapshot().State == model.StateStopping {
				return
			}
			verdict := health.Probe(ctx, *spec.HealthCheck, target)

			entry.mu.Lock()
			entry.rt.Health = verdict
			starting := entry.rt.State == model.StateStarting
			entry.mu.Unlock()

			if verdict == model.HealthHealthy && starting {
				entry.mu.Lock()
				entry.rt.State = model.StateRunning
				entry.mu.Unlock()
				m.publish(entry)
				continue
			}
			if starting && time.Now().After(deadline) {
				entry.mu.Lock()
				entry.rt.State = model.StateFailed
				entry.rt.ErrorMessage = apierr.StartupFailed(apierr.ReasonTimeout, "startup_timeout elapsed without a healthy verdict").Error()
				cmd := entry.rt.Cmd
				port := entry.rt.AllocatedPort
				entry.rt.Cmd = nil
				entry.rt.AllocatedPort = 0
				entry.mu.Unlock()
				m.publish(entry)
				m.releasePort(port)
				if cmd != nil && cmd.Process != nil {
					killProcessGroup(cmd.Process.Pid, unix.SIGKILL)
				}
				return
			}
		}
	}
}

func (m *Manager) waitForExit(entry *appEntry, cmd *exec.Cmd, exited chan struct{}) {
	waitErr := cmd.Wait()
	close(exited)

	entry.mu.Lock()
	state := entry.rt.State
	manualStop := entry.manualStop
	spec := entry.spec
	port := entry.rt.AllocatedPort
	entry.mu.Unlock()

	if state == model.StateStopping {
		return // stopOne is driving this exit; it will finish the transition.
	}

	m.releasePort(port)

	exitCode := exitCodeOf(waitErr)
	entry.mu.Lock()
	entry.rt.State = model.StateFailed
	entry.rt.ExitCode = &exitCode
	if entry.rt.ErrorMessage == "" {
		entry.rt.ErrorMessage = fmt.Sprintf("process exited with code %d", exitCode)
	}
	entry.rt.Cmd = nil
	entry.rt.AllocatedPort = 0
	entry.mu.Unlock()
	m.publish(entry)

	if spec.AutoRestart && !manualStop {
		m.scheduleRestart(entry)
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}
