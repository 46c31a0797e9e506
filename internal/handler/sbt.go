package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// sbtHandler serves scala/sbt-style applications. sbt invocations need no
// shell expansion, so PrepareCommand passes the configured command through
// unchanged beyond whitespace splitting.
type sbtHandler struct{}

var sbtSubcommands = map[string][]string{
	"lint":      {"sbt", "scalafmtCheck"},
	"format":    {"sbt", "scalafmt"},
	"test":      {"sbt", "test"},
	"typecheck": {"sbt", "compile"},
	"build":     {"sbt", "compile"},
	"compile":   {"sbt", "compile"},
	"clean":     {"sbt", "clean"},
}

func (sbtHandler) PrepareCommand(spec model.ApplicationSpec) (string, []string, error) {
	name, args := splitCommand(spec.Command)
	if name == "" {
		return "", nil, fmt.Errorf("empty command")
	}
	return name, args, nil
}

func (sbtHandler) SupportsReload(spec model.ApplicationSpec) bool {
	return strings.Contains(spec.Command, "~run") || strings.Contains(spec.Command, "~ ")
}

func (sbtHandler) TriggerReload(ctx context.Context, spec model.ApplicationSpec) (bool, string) {
	return false, "sbt handler has no reload trigger; ~run watches sources itself"
}

func (h sbtHandler) RunCustomCommand(ctx context.Context, spec model.ApplicationSpec, command string, args []string, env []string) (model.CommandResult, error) {
	if mapped, ok := sbtSubcommands[command]; ok {
		full := append(append([]string{}, mapped...), args...)
		return runCommand(ctx, spec.WorkDir, env, full[0], full[1:]...)
	}
	name, cmdArgs := splitCommand(command)
	if name == "" {
		return model.CommandResult{}, fmt.Errorf("empty custom command")
	}
	return runCommand(ctx, spec.WorkDir, env, name, append(cmdArgs, args...)...)
}
