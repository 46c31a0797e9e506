// Package cli is the supervisor's command-line shell: a cobra root command
// exposing one subcommand per control-surface verb, plus the bare stdio
// JSON mode that runs when no verb is given.
//
// Grounded on the teacher's internal/cli/root.go: a persistent-flag root
// command (here --data-dir/--log-level instead of --config/--json),
// package-level ldflags-populated version variables, and an Execute()
// entrypoint that turns a returned error into a non-zero process exit.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rorygraves/clientserverrunner/internal/config"
	"github.com/rorygraves/clientserverrunner/internal/configstore"
	"github.com/rorygraves/clientserverrunner/internal/controlsurface"
	"github.com/rorygraves/clientserverrunner/internal/events"
	"github.com/rorygraves/clientserverrunner/internal/handler"
	"github.com/rorygraves/clientserverrunner/internal/portalloc"
	"github.com/rorygraves/clientserverrunner/internal/procmanager"
)

var (
	dataDirFlag  string
	logLevelFlag string

	// Version, Commit, Date, and BuiltBy are set by the release build via
	// -ldflags; "dev"/"none"/"unknown" are the values a plain `go build`
	// produces.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
	BuiltBy = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "clientserverrunnerd",
	Short: "Local supervisor for groups of long-running application processes",
	Long: `clientserverrunnerd manages dependency-ordered groups of long-running
child processes on behalf of an automation client.

With no subcommand it runs the control surface on standard I/O, reading one
JSON request per line and writing one JSON reply per line. Subcommands
(start, stop, status, logs, ...) issue a single request against the same
data directory and print the reply, for interactive or scripted use.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "supervisor data directory (default $HOME/.clientserverrunner)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error (default info)")

	rootCmd.AddCommand(
		newListCmd(),
		newCreateCmd(),
		newGetCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newSearchCmd(),
		newListRunsCmd(),
		newRunCommandCmd(),
		newTriggerReloadCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
}

// Execute runs the root command and returns the process exit code per
// spec.md §6: 0 on clean shutdown, 1 on fatal init error, 2 on
// data-directory access failure.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if exitCode, ok := exitCodeFor(err); ok {
			return exitCode
		}
		return 1
	}
	return 0
}

// buildSurface wires a fresh Configuration Store, Process Manager, and
// Control Surface rooted at the resolved data directory. Every subcommand
// invocation calls this once; the long-lived `serve` stdio loop is the
// only caller that keeps the result alive beyond a single request.
func buildSurface() (*controlsurface.Surface, *events.Bus, *slog.Logger, error) {
	resolvedDir := dataDirFlag
	if resolvedDir == "" {
		resolvedDir = config.DefaultDataDir()
	}
	cfg, err := config.Load(resolvedDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load operator config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, nil, dataDirError{err: fmt.Errorf("create data directory %q: %w", cfg.DataDir, err)}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	store, err := configstore.New(cfg.DataDir+"/configurations", nil, nil)
	if err != nil {
		return nil, nil, nil, dataDirError{err: err}
	}

	bus := events.New(logger)
	mgr := procmanager.NewManager(store, handler.NewRegistry(), portalloc.New(), cfg.DataDir, logger, bus)
	store.SetRunningChecker(mgr.IsRunning)
	store.SetStopper(func(configID string) error {
		_, err := mgr.StopConfiguration(configID, nil)
		return err
	})

	return controlsurface.New(store, mgr, cfg.DataDir, logger), bus, logger, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dataDirError tags an error as a data-directory access failure so Execute
// can map it to exit code 2 instead of the generic fatal-init code 1.
type dataDirError struct{ err error }

func (e dataDirError) Error() string { return e.err.Error() }
func (e dataDirError) Unwrap() error { return e.err }

func exitCodeFor(err error) (int, bool) {
	var dde dataDirError
	if errors.As(err, &dde) {
		return 2, true
	}
	return 0, false
}
