package handler

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

func TestRegistryHasThreeBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, tag := range []string{"python", "npm", "sbt"} {
		if _, ok := r.Lookup(tag); !ok {
			t.Errorf("Lookup(%q) not found", tag)
		}
	}
	if _, ok := r.Lookup("unknown"); ok {
		t.Errorf("Lookup(unknown) found, want not found")
	}
}

func TestRegistryRegisterAdditional(t *testing.T) {
	r := NewRegistry()
	r.Register("custom", pythonHandler{})
	if _, ok := r.Lookup("custom"); !ok {
		t.Errorf("Lookup(custom) not found after Register")
	}
}

func TestPythonSupportsReload(t *testing.T) {
	h := pythonHandler{}
	cases := []struct {
		command string
		want    bool
	}{
		{"uvicorn app:app --reload", true},
		{"python manage.py runserver", true},
		{"python -c 'print(1)'", false},
	}
	for _, c := range cases {
		spec := model.ApplicationSpec{Command: c.command}
		if got := h.SupportsReload(spec); got != c.want {
			t.Errorf("SupportsReload(%q) = %v, want %v", c.command, got, c.want)
		}
	}
}

func TestSbtSupportsReload(t *testing.T) {
	h := sbtHandler{}
	if !h.SupportsReload(model.ApplicationSpec{Command: "sbt ~run"}) {
		t.Errorf("SupportsReload(sbt ~run) = false, want true")
	}
	if h.SupportsReload(model.ApplicationSpec{Command: "sbt run"}) {
		t.Errorf("SupportsReload(sbt run) = true, want false")
	}
}

func TestNpmSupportsReload(t *testing.T) {
	h := npmHandler{}
	if !h.SupportsReload(model.ApplicationSpec{Command: "npm run dev"}) {
		t.Errorf("SupportsReload(npm run dev) = false, want true")
	}
	if h.SupportsReload(model.ApplicationSpec{Command: "npm start"}) {
		t.Errorf("SupportsReload(npm start) = true, want false")
	}
}

func TestPrepareCommandSplitsWhitespace(t *testing.T) {
	h := pythonHandler{}
	name, args, err := h.PrepareCommand(model.ApplicationSpec{Command: "python -m http.server 8080"})
	if err != nil {
		t.Fatalf("PrepareCommand() error = %v", err)
	}
	if name != "python" {
		t.Errorf("name = %q, want python", name)
	}
	wantArgs := []string{"-m", "http.server", "8080"}
	if len(args) != len(wantArgs) {
		t.Fatalf("args = %v, want %v", args, wantArgs)
	}
	for i := range wantArgs {
		if args[i] != wantArgs[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], wantArgs[i])
		}
	}
}

func TestPrepareCommandEmptyErrors(t *testing.T) {
	h := pythonHandler{}
	if _, _, err := h.PrepareCommand(model.ApplicationSpec{Command: "   "}); err == nil {
		t.Errorf("PrepareCommand(empty) error = nil, want error")
	}
}

func TestTriggerReloadUnsupported(t *testing.T) {
	for _, h := range []Handler{pythonHandler{}, npmHandler{}, sbtHandler{}} {
		ok, msg := h.TriggerReload(context.Background(), model.ApplicationSpec{})
		if ok {
			t.Errorf("TriggerReload() ok = true, want false")
		}
		if msg == "" {
			t.Errorf("TriggerReload() message empty, want a reason")
		}
	}
}

func TestRunCustomCommandExitCode(t *testing.T) {
	h := pythonHandler{}
	dir := t.TempDir()
	result, err := h.RunCustomCommand(context.Background(), model.ApplicationSpec{WorkDir: dir}, "true", nil, os.Environ())
	if err != nil {
		t.Fatalf("RunCustomCommand() error = %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestRunCustomCommandNonZeroExit(t *testing.T) {
	h := pythonHandler{}
	dir := t.TempDir()
	result, err := h.RunCustomCommand(context.Background(), model.ApplicationSpec{WorkDir: dir}, "false", nil, os.Environ())
	if err != nil {
		t.Fatalf("RunCustomCommand() error = %v", err)
	}
	if result.ExitCode == 0 {
		t.Errorf("ExitCode = 0, want non-zero")
	}
}

func TestRunCustomCommandMapsKnownSubcommand(t *testing.T) {
	h := npmHandler{}
	dir := t.TempDir()
	// "test" maps to "npm test"; npm is unlikely to be installed in the
	// test environment, so this accepts either a result from running npm or
	// a wrapped exec error that names npm.
	_, err := h.RunCustomCommand(context.Background(), model.ApplicationSpec{WorkDir: dir}, "test", nil, os.Environ())
	if err != nil && !strings.Contains(err.Error(), "run npm") {
		t.Fatalf("RunCustomCommand(test) error = %v, want it to come from running npm", err)
	}
}
