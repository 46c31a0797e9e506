package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// pythonHandler serves generic interpreted processes: bare python
// invocations as well as anything spawned without a more specific family
// (spec.md §1's "generic interpreted" family).
type pythonHandler struct{}

var pythonSubcommands = map[string][]string{
	"lint":      {"ruff", "check", "."},
	"format":    {"ruff", "format", "."},
	"test":      {"pytest"},
	"typecheck": {"mypy", "."},
	"build":     {"python", "-m", "build"},
	"clean":     {"find", ".", "-name", "__pycache__", "-type", "d", "-prune", "-exec", "rm", "-rf", "{}", "+"},
}

func (pythonHandler) PrepareCommand(spec model.ApplicationSpec) (string, []string, error) {
	name, args := splitCommand(spec.Command)
	if name == "" {
		return "", nil, fmt.Errorf("empty command")
	}
	return name, args, nil
}

func (pythonHandler) SupportsReload(spec model.ApplicationSpec) bool {
	cmd := spec.Command
	return strings.Contains(cmd, "--reload") ||
		strings.Contains(cmd, "--debug") ||
		strings.Contains(cmd, "runserver")
}

func (pythonHandler) TriggerReload(ctx context.Context, spec model.ApplicationSpec) (bool, string) {
	// Python dev servers that support --reload watch the filesystem
	// themselves; there is no out-of-band trigger to send.
	return false, "python handler has no reload trigger; rely on --reload filesystem watching"
}

func (h pythonHandler) RunCustomCommand(ctx context.Context, spec model.ApplicationSpec, command string, args []string, env []string) (model.CommandResult, error) {
	if mapped, ok := pythonSubcommands[command]; ok {
		full := append(append([]string{}, mapped...), args...)
		return runCommand(ctx, spec.WorkDir, env, full[0], full[1:]...)
	}
	name, cmdArgs := splitCommand(command)
	if name == "" {
		return model.CommandResult{}, fmt.Errorf("empty custom command")
	}
	return runCommand(ctx, spec.WorkDir, env, name, append(cmdArgs, args...)...)
}
