// Package handler adapts process families (python, npm, sbt) to a uniform
// control contract, so the process manager never needs family-specific
// knowledge.
//
// The name-to-behavior registry populated at construction mirrors the
// pattern the teacher's own config package alludes to for
// ensemble.strategyRegistry, generalized here to this spec's four-operation
// Handler interface instead of an AI-agent strategy lookup.
package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// Handler encapsulates per-family knowledge: how to prepare a command for
// execution, whether it supports live reload, and how to run a recognised
// subcommand (lint, test, build, ...) against the family's tool chain.
type Handler interface {
	// PrepareCommand may rewrite or wrap spec.Command for execution. Must
	// be pure and idempotent.
	PrepareCommand(spec model.ApplicationSpec) (string, []string, error)

	// SupportsReload statically inspects spec.Command to decide whether
	// this application is expected to pick up code changes without a
	// restart.
	SupportsReload(spec model.ApplicationSpec) bool

	// TriggerReload asks a running application to reload, for handlers
	// that support it via file touch or HTTP endpoint. ok is false with a
	// reason when unsupported.
	TriggerReload(ctx context.Context, spec model.ApplicationSpec) (ok bool, message string)

	// RunCustomCommand executes a recognised subcommand (or an arbitrary
	// pass-through command) synchronously in spec.WorkDir with env.
	RunCustomCommand(ctx context.Context, spec model.ApplicationSpec, command string, args []string, env []string) (model.CommandResult, error)
}

// Registry maps an ApplicationSpec's HandlerTag to its Handler.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a Registry pre-populated with the three required
// built-in handlers: python, npm, sbt.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.Register("python", pythonHandler{})
	r.Register("npm", npmHandler{})
	r.Register("sbt", sbtHandler{})
	return r
}

// Register adds or replaces the handler for tag. Used both for the three
// built-ins and for additional families registered at runtime.
func (r *Registry) Register(tag string, h Handler) {
	r.handlers[tag] = h
}

// Lookup returns the handler for tag, or ok=false if tag is not registered.
func (r *Registry) Lookup(tag string) (Handler, bool) {
	h, ok := r.handlers[tag]
	return h, ok
}

// runCommand is the shared synchronous-exec helper every built-in handler's
// RunCustomCommand delegates to.
func runCommand(ctx context.Context, workDir string, env []string, name string, args ...string) (model.CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := model.CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, fmt.Errorf("run %s: %w", name, runErr)
}

// splitCommand does a simple whitespace split of a configured command
// string into an executable name and its arguments. Handlers that need
// shell features (pipes, globs) are expected to prepare commands that wrap
// themselves in `sh -c`.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
