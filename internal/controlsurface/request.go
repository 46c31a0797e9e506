package controlsurface

import "github.com/rorygraves/clientserverrunner/internal/model"

// Verb names exactly as listed in spec.md §6.
const (
	VerbListConfigurations   = "list_configurations"
	VerbCreateConfiguration  = "create_configuration"
	VerbGetConfiguration     = "get_configuration"
	VerbUpdateConfiguration  = "update_configuration"
	VerbDeleteConfiguration  = "delete_configuration"
	VerbStartConfiguration   = "start_configuration"
	VerbStopConfiguration    = "stop_configuration"
	VerbRestartConfiguration = "restart_configuration"
	VerbGetStatus            = "get_status"
	VerbGetLogs              = "get_logs"
	VerbSearchLogs           = "search_logs"
	VerbListLogRuns          = "list_log_runs"
	VerbRunCommand           = "run_command"
	VerbTriggerReload        = "trigger_reload"
)

// ConfigurationUpdates is the partial-update payload accepted by
// update_configuration. A nil field leaves that part of the document
// unchanged; Applications, when non-nil, replaces the whole slice (spec.md
// §4.6: "merges a partial document").
type ConfigurationUpdates struct {
	Name         *string                 `json:"name,omitempty"`
	Description  *string                 `json:"description,omitempty"`
	Applications []model.ApplicationSpec `json:"applications,omitempty"`
}

// Request is the deserialised form of one control-surface call. Not every
// field applies to every verb; see Dispatch for which fields each verb
// reads.
type Request struct {
	Verb string `json:"verb"`

	ConfigID string   `json:"config_id,omitempty"`
	AppID    string   `json:"app_id,omitempty"`
	AppIDs   []string `json:"app_ids,omitempty"`

	Name         string                  `json:"name,omitempty"`
	Description  string                  `json:"description,omitempty"`
	Applications []model.ApplicationSpec `json:"applications,omitempty"`
	Updates      *ConfigurationUpdates   `json:"updates,omitempty"`
	Force        bool                    `json:"force,omitempty"`

	Graceful *bool `json:"graceful,omitempty"`

	Lines int    `json:"lines,omitempty"`
	RunID string `json:"run_id,omitempty"`

	Query         string `json:"query,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	CaseSensitive *bool  `json:"case_sensitive,omitempty"`

	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

func (r Request) graceful() bool {
	if r.Graceful == nil {
		return true
	}
	return *r.Graceful
}

func (r Request) caseSensitive() bool {
	if r.CaseSensitive == nil {
		return false
	}
	return *r.CaseSensitive
}

func (r Request) lines() int {
	if r.Lines <= 0 {
		return 100
	}
	return r.Lines
}

func (r Request) maxResults() int {
	if r.MaxResults <= 0 {
		return 50
	}
	return r.MaxResults
}
