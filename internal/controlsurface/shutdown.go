package controlsurface

import (
	"context"
	"sync"
)

// LogFilePath exposes the process manager's live log file path for an
// application, used by the CLI's --follow flag. It bypasses the verb
// table since following a file is a local filesystem operation, not a
// request/response call.
func (s *Surface) LogFilePath(configID, appID string) (string, error) {
	return s.procs.LogFilePath(configID, appID)
}

// ShutdownAll issues a graceful group-stop against every loaded
// configuration that has a running application, one goroutine per
// configuration. Each configuration's stop runs its own per-app
// SIGTERM/SIGKILL escalation inside the process manager; ctx's deadline
// only bounds how long ShutdownAll itself waits for all of them to finish.
// When the deadline passes first, ShutdownAll logs a warning and returns
// without killing the applications still terminating. Every child runs in
// its own process group, so a child still alive when the supervisor
// process exits is not taken down with it.
func (s *Surface) ShutdownAll(ctx context.Context) {
	summaries, err := s.store.List()
	if err != nil {
		s.logger.Warn("shutdown: list configurations failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, cfg := range summaries {
		if !cfg.HasRunning {
			continue
		}
		wg.Add(1)
		go func(configID string) {
			defer wg.Done()
			if _, err := s.procs.StopConfiguration(configID, nil); err != nil {
				s.logger.Warn("shutdown: stop configuration failed", "config_id", configID, "error", err)
			}
		}(cfg.ID)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown deadline exceeded; some applications may still be terminating")
	}
}
