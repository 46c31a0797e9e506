package configstore

import (
	"os"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

// Validate checks a Configuration against the data model's structural
// invariants: unique application ids, working directories that exist,
// dependency references that resolve to a sibling, and no self-dependency.
// It also rejects any depends_on cycle at write time (spec testable
// property: cycle rejection at create/update), independently of the
// process manager's own Kahn's-algorithm check over the live subgraph at
// group-start time.
func Validate(cfg model.Configuration) error {
	if cfg.Name == "" {
		return apierr.ConfigInvalid("configuration name must not be empty")
	}

	seen := make(map[string]bool, len(cfg.Applications))
	for _, app := range cfg.Applications {
		if app.ID == "" {
			return apierr.ConfigInvalid("application id must not be empty")
		}
		if seen[app.ID] {
			return apierr.ConfigInvalid("duplicate application id %q", app.ID)
		}
		seen[app.ID] = true

		if app.WorkDir == "" {
			return apierr.ConfigInvalid("application %q: work_dir must not be empty", app.ID)
		}
		if info, err := os.Stat(app.WorkDir); err != nil || !info.IsDir() {
			return apierr.ConfigInvalid("application %q: work_dir %q does not exist", app.ID, app.WorkDir)
		}
		if app.Command == "" {
			return apierr.ConfigInvalid("application %q: command must not be empty", app.ID)
		}
	}

	for _, app := range cfg.Applications {
		for _, dep := range app.DependsOn {
			if dep == app.ID {
				return apierr.ConfigInvalid("application %q: cannot depend on itself", app.ID)
			}
			if !seen[dep] {
				return apierr.ConfigInvalid("application %q: unknown dependency %q", app.ID, dep)
			}
		}
	}

	if cycle := findCycle(cfg); len(cycle) > 0 {
		return apierr.Cycle(cycle)
	}

	return nil
}

// findCycle runs a depth-first search over the depends_on graph and
// returns the member ids of the first cycle encountered, or nil if the
// graph is acyclic.
func findCycle(cfg model.Configuration) []string {
	deps := make(map[string][]string, len(cfg.Applications))
	for _, app := range cfg.Applications {
		deps[app.ID] = app.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(cfg.Applications))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch state[dep] {
			case visiting:
				for i, v := range stack {
					if v == dep {
						return append(append([]string{}, stack[i:]...), dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, app := range cfg.Applications {
		if state[app.ID] == unvisited {
			if cycle := visit(app.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
