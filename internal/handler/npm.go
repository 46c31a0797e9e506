package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// npmHandler serves node-package applications: the start command is
// typically `npm run <script>` or a direct `node` invocation.
type npmHandler struct{}

var npmSubcommands = map[string][]string{
	"lint":      {"npm", "run", "lint"},
	"format":    {"npm", "run", "format"},
	"test":      {"npm", "test"},
	"typecheck": {"npm", "run", "typecheck"},
	"build":     {"npm", "run", "build"},
	"clean":     {"npm", "run", "clean"},
}

func (npmHandler) PrepareCommand(spec model.ApplicationSpec) (string, []string, error) {
	name, args := splitCommand(spec.Command)
	if name == "" {
		return "", nil, fmt.Errorf("empty command")
	}
	return name, args, nil
}

func (npmHandler) SupportsReload(spec model.ApplicationSpec) bool {
	cmd := spec.Command
	for _, marker := range []string{"nodemon", "--watch", "dev", "next dev", "vite"} {
		if strings.Contains(cmd, marker) {
			return true
		}
	}
	return false
}

func (npmHandler) TriggerReload(ctx context.Context, spec model.ApplicationSpec) (bool, string) {
	return false, "npm handler has no reload trigger; rely on the dev server's own file watcher"
}

func (h npmHandler) RunCustomCommand(ctx context.Context, spec model.ApplicationSpec, command string, args []string, env []string) (model.CommandResult, error) {
	if mapped, ok := npmSubcommands[command]; ok {
		full := append(append([]string{}, mapped...), args...)
		return runCommand(ctx, spec.WorkDir, env, full[0], full[1:]...)
	}
	name, cmdArgs := splitCommand(command)
	if name == "" {
		return model.CommandResult{}, fmt.Errorf("empty custom command")
	}
	return runCommand(ctx, spec.WorkDir, env, name, append(cmdArgs, args...)...)
}
