package controlsurface

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
	"github.com/rorygraves/clientserverrunner/internal/configstore"
	"github.com/rorygraves/clientserverrunner/internal/model"
	"github.com/rorygraves/clientserverrunner/internal/procmanager"
)

// Surface wires the external verb table to the Configuration Store and
// Process Manager. One Surface serves the whole supervisor process: the
// stdio request loop and every CLI subcommand dispatch through the same
// instance in-process.
type Surface struct {
	store   *configstore.Store
	procs   *procmanager.Manager
	dataDir string
	logger  *slog.Logger
}

// New builds a Surface. dataDir is the supervisor's data directory root (D
// in spec.md §6), used here only to remove D/logs/<config_id>/ after a
// successful delete — configstore.Store already owns D/configurations/.
func New(store *configstore.Store, procs *procmanager.Manager, dataDir string, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{store: store, procs: procs, dataDir: dataDir, logger: logger}
}

// Dispatch deserialises req's verb and arguments, calls the appropriate
// manager, and shapes the result into an Envelope. Every error returned by
// a manager is already a *apierr.Error (or is reported as Internal);
// Dispatch never panics on a malformed request that merely omits an
// optional field.
func (s *Surface) Dispatch(ctx context.Context, req Request) Envelope {
	switch req.Verb {
	case VerbListConfigurations:
		return s.listConfigurations()
	case VerbCreateConfiguration:
		return s.createConfiguration(req)
	case VerbGetConfiguration:
		return s.getConfiguration(req)
	case VerbUpdateConfiguration:
		return s.updateConfiguration(req)
	case VerbDeleteConfiguration:
		return s.deleteConfiguration(req)
	case VerbStartConfiguration:
		return s.startConfiguration(ctx, req)
	case VerbStopConfiguration:
		return s.stopConfiguration(req)
	case VerbRestartConfiguration:
		return s.restartConfiguration(ctx, req)
	case VerbGetStatus:
		return s.getStatus(req)
	case VerbGetLogs:
		return s.getLogs(req)
	case VerbSearchLogs:
		return s.searchLogs(req)
	case VerbListLogRuns:
		return s.listLogRuns(req)
	case VerbRunCommand:
		return s.runCommand(ctx, req)
	case VerbTriggerReload:
		return s.triggerReload(ctx, req)
	default:
		return errEnvelope(apierr.ConfigInvalid("unknown verb %q", req.Verb))
	}
}

func (s *Surface) listConfigurations() Envelope {
	summaries, err := s.store.List()
	if err != nil {
		return errEnvelope(err)
	}
	if summaries == nil {
		summaries = []model.ConfigurationSummary{}
	}
	return ok(summaries)
}

func (s *Surface) createConfiguration(req Request) Envelope {
	id, err := s.store.Create(req.Name, req.Description, req.Applications)
	if err != nil {
		return errEnvelope(err)
	}
	return ok(struct {
		ID string `json:"id"`
	}{ID: id})
}

func (s *Surface) getConfiguration(req Request) Envelope {
	cfg, err := s.store.Get(req.ConfigID)
	if err != nil {
		return errEnvelope(err)
	}
	return ok(cfg)
}

func (s *Surface) updateConfiguration(req Request) Envelope {
	var name, description *string
	var apps []model.ApplicationSpec
	if req.Updates != nil {
		name = req.Updates.Name
		description = req.Updates.Description
		apps = req.Updates.Applications
	}
	cfg, err := s.store.Update(req.ConfigID, name, description, apps)
	if err != nil {
		return errEnvelope(err)
	}
	return ok(cfg)
}

func (s *Surface) deleteConfiguration(req Request) Envelope {
	if err := s.store.Delete(req.ConfigID, req.Force); err != nil {
		return errEnvelope(err)
	}
	// The store owns only D/configurations/<id>.json and leaves the log
	// tree to its caller, so the surface removes D/logs/<id>/ here.
	if s.dataDir != "" {
		logDir := filepath.Join(s.dataDir, "logs", req.ConfigID)
		if err := os.RemoveAll(logDir); err != nil {
			s.logger.Warn("remove log directory on delete failed", "config_id", req.ConfigID, "error", err)
		}
	}
	return ok(struct {
		OK bool `json:"ok"`
	}{OK: true})
}

func (s *Surface) startConfiguration(ctx context.Context, req Request) Envelope {
	results, err := s.procs.StartConfiguration(ctx, req.ConfigID, req.AppIDs)
	if err != nil {
		return errEnvelope(err)
	}
	return ok(perAppEnvelope(results))
}

func (s *Surface) stopConfiguration(req Request) Envelope {
	results, err := s.procs.StopConfigurationGraceful(req.ConfigID, req.AppIDs, req.graceful())
	if err != nil {
		return errEnvelope(err)
	}
	return ok(perAppEnvelope(results))
}

func (s *Surface) restartConfiguration(ctx context.Context, req Request) Envelope {
	results, err := s.procs.RestartConfiguration(ctx, req.ConfigID, req.AppIDs)
	if err != nil {
		return errEnvelope(err)
	}
	return ok(perAppEnvelope(results))
}

// perAppEnvelope shapes a process-manager result map into the
// {"per_app": {app_id: {state, error?}}} structure spec.md §6 documents
// for start/stop/restart_configuration.
func perAppEnvelope(results map[string]procmanager.AppResult) any {
	return struct {
		PerApp map[string]procmanager.AppResult `json:"per_app"`
	}{PerApp: results}
}

func (s *Surface) getStatus(req Request) Envelope {
	statuses, err := s.procs.Status(req.ConfigID, req.AppIDs)
	if err != nil {
		return errEnvelope(err)
	}
	if statuses == nil {
		statuses = []model.ApplicationStatus{}
	}
	return ok(statuses)
}

func (s *Surface) getLogs(req Request) Envelope {
	entries, err := s.procs.Logs(req.ConfigID, req.AppID, req.RunID, req.lines())
	if err != nil {
		return errEnvelope(err)
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	return ok(entries)
}

func (s *Surface) searchLogs(req Request) Envelope {
	matches, err := s.procs.SearchLogs(req.ConfigID, req.AppID, req.Query, req.caseSensitive(), req.maxResults())
	if err != nil {
		return errEnvelope(err)
	}
	if matches == nil {
		matches = []model.SearchMatch{}
	}
	return ok(matches)
}

func (s *Surface) listLogRuns(req Request) Envelope {
	runs, err := s.procs.ListLogRuns(req.ConfigID, req.AppID)
	if err != nil {
		return errEnvelope(err)
	}
	if runs == nil {
		runs = []model.LogRunInfo{}
	}
	return ok(runs)
}

func (s *Surface) runCommand(ctx context.Context, req Request) Envelope {
	if req.Command == "" {
		return errEnvelope(apierr.CommandFailed("command must not be empty"))
	}
	result, err := s.procs.RunCommand(ctx, req.ConfigID, req.AppID, req.Command, req.Args)
	if err != nil {
		return errEnvelope(err)
	}
	return ok(result)
}

func (s *Surface) triggerReload(ctx context.Context, req Request) Envelope {
	okReload, message, err := s.procs.TriggerReload(ctx, req.ConfigID, req.AppID)
	if err != nil {
		return errEnvelope(err)
	}
	return ok(struct {
		OK      bool   `json:"ok"`
		Message string `json:"message,omitempty"`
	}{OK: okReload, Message: message})
}
