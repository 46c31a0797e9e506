package procmanager

import (
	"sort"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

// closeDependencies extends ids with every application transitively
// reachable via depends_on, per spec.md §4.5 group-start step 2. Returns
// ConfigInvalid if any depends_on reference does not resolve within cfg
// (configstore.Validate already rejects this at write time, but a group
// operation validates again defensively against any subset it is handed).
func closeDependencies(cfg model.Configuration, ids map[string]bool) (map[string]bool, error) {
	closed := make(map[string]bool, len(ids))
	for id := range ids {
		closed[id] = true
	}

	queue := make([]string, 0, len(ids))
	for id := range ids {
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		app, ok := cfg.AppByID(id)
		if !ok {
			return nil, apierr.ConfigInvalid("unknown application id %q", id)
		}
		for _, dep := range app.DependsOn {
			if !closed[dep] {
				if _, ok := cfg.AppByID(dep); !ok {
					return nil, apierr.ConfigInvalid("application %q depends on unknown id %q", id, dep)
				}
				closed[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return closed, nil
}

// closeDependents extends ids with every application that transitively
// depends on one already in ids, per spec.md §4.5 group-stop step 1: a
// dependent must be stopped before the dependency it relies on.
func closeDependents(cfg model.Configuration, ids map[string]bool) map[string]bool {
	closed := make(map[string]bool, len(ids))
	for id := range ids {
		closed[id] = true
	}

	changed := true
	for changed {
		changed = false
		for _, app := range cfg.Applications {
			if closed[app.ID] {
				continue
			}
			for _, dep := range app.DependsOn {
				if closed[dep] {
					closed[app.ID] = true
					changed = true
					break
				}
			}
		}
	}
	return closed
}

// topoSortStart returns the subset of cfg.Applications restricted to ids,
// in dependency order (a dependency always precedes its dependents), via
// Kahn's algorithm. On a cycle it returns an apierr.Cycle naming the
// members that could not be ordered.
func topoSortStart(cfg model.Configuration, ids map[string]bool) ([]model.ApplicationSpec, error) {
	indegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	byID := make(map[string]model.ApplicationSpec, len(ids))

	for _, app := range cfg.Applications {
		if !ids[app.ID] {
			continue
		}
		byID[app.ID] = app
		if _, ok := indegree[app.ID]; !ok {
			indegree[app.ID] = 0
		}
		for _, dep := range app.DependsOn {
			if !ids[dep] {
				continue
			}
			indegree[app.ID]++
			dependents[dep] = append(dependents[dep], app.ID)
		}
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []model.ApplicationSpec
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, byID[id])

		var unlocked []string
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				unlocked = append(unlocked, next)
			}
		}
		sort.Strings(unlocked)
		queue = append(queue, unlocked...)
	}

	if len(order) != len(ids) {
		var stuck []string
		for id := range ids {
			if indegree[id] != 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, apierr.Cycle(stuck)
	}
	return order, nil
}

// topoLayersStart groups the same order as topoSortStart into successive
// layers: every app in one layer has all its in-subset dependencies already
// satisfied by a prior layer, so siblings within a layer may be started
// concurrently (§5 ADDED: same-layer fan-out via errgroup) while the whole
// layer still finishes before the next one begins.
func topoLayersStart(cfg model.Configuration, ids map[string]bool) ([][]model.ApplicationSpec, error) {
	indegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	byID := make(map[string]model.ApplicationSpec, len(ids))

	for _, app := range cfg.Applications {
		if !ids[app.ID] {
			continue
		}
		byID[app.ID] = app
		if _, ok := indegree[app.ID]; !ok {
			indegree[app.ID] = 0
		}
		for _, dep := range app.DependsOn {
			if !ids[dep] {
				continue
			}
			indegree[app.ID]++
			dependents[dep] = append(dependents[dep], app.ID)
		}
	}

	var layer []string
	for id, deg := range indegree {
		if deg == 0 {
			layer = append(layer, id)
		}
	}

	var layers [][]model.ApplicationSpec
	placed := 0
	for len(layer) > 0 {
		sort.Strings(layer)
		specs := make([]model.ApplicationSpec, len(layer))
		for i, id := range layer {
			specs[i] = byID[id]
		}
		layers = append(layers, specs)
		placed += len(layer)

		var next []string
		for _, id := range layer {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		layer = next
	}

	if placed != len(ids) {
		var stuck []string
		for id := range ids {
			if indegree[id] != 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, apierr.Cycle(stuck)
	}
	return layers, nil
}

// topoSortStop is topoSortStart reversed: dependents are stopped before the
// dependencies they rely on.
func topoSortStop(cfg model.Configuration, ids map[string]bool) ([]model.ApplicationSpec, error) {
	order, err := topoSortStart(cfg, ids)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
