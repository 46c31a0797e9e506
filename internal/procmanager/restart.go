package procmanager

import (
	"context"
	"time"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// scheduleRestart implements the rolling-hour auto-restart budget: prune
// restart timestamps older than restartBudgetWindow, latch to failed once
// maxRestartsPerWindow is exceeded (requiring a manual start to clear), and
// otherwise re-invoke startOne after an exponential backoff delay. The
// delay is cancelable via entry.restartCancel so a manual stop issued while
// a restart is pending never races the restart back to life.
func (m *Manager) scheduleRestart(entry *appEntry) {
	entry.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-restartBudgetWindow)
	kept := entry.restartTimes[:0]
	for _, t := range entry.restartTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	entry.restartTimes = kept

	if len(entry.restartTimes) >= maxRestartsPerWindow {
		entry.rt.State = model.StateFailed
		entry.rt.ErrorMessage = "auto-restart budget exhausted: too many restarts within the last hour"
		entry.mu.Unlock()
		m.publish(entry)
		return
	}

	attempt := len(entry.restartTimes)
	entry.restartTimes = append(entry.restartTimes, now)
	configID, appID := entry.configID, entry.appID
	ctx, cancel := context.WithCancel(context.Background())
	entry.restartCancel = cancel
	entry.mu.Unlock()

	delay := restartBackoff(attempt)
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		cfg, err := m.store.Get(configID)
		if err != nil {
			return // configuration was deleted out from under a still-scheduled restart.
		}
		spec, ok := cfg.AppByID(appID)
		if !ok {
			return
		}

		entry.mu.Lock()
		manualStop := entry.manualStop
		entry.mu.Unlock()
		if manualStop {
			return
		}

		m.startOne(context.Background(), cfg, spec)
	}()
}
