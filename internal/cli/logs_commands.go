package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/rorygraves/clientserverrunner/internal/controlsurface"
	"github.com/rorygraves/clientserverrunner/internal/model"
	"github.com/rorygraves/clientserverrunner/internal/watcher"
)

func newLogsCmd() *cobra.Command {
	var lines int
	var runID string
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs <config-id> <app-id>",
		Short: "Show an application's recent log lines",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			configID, appID := args[0], args[1]

			if follow {
				return followLogs(cmd.Context(), surface, configID, appID)
			}

			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbGetLogs,
				ConfigID: configID,
				AppID:    appID,
				RunID:    runID,
				Lines:    lines,
			})
			return printEnvelope(resp)
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing lines to return")
	cmd.Flags().StringVar(&runID, "run-id", "", "archived run to read instead of the live file")
	cmd.Flags().BoolVar(&follow, "follow", false, "stream new lines as they are written, like tail -f")
	return cmd
}

// followLogs streams an application's live log file until interrupted,
// using fsnotify instead of polling.
func followLogs(ctx context.Context, surface *controlsurface.Surface, configID, appID string) error {
	path, err := surface.LogFilePath(configID, appID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	return watcher.FollowFile(ctx, path, func(line string) {
		fmt.Println(line)
	})
}

func newSearchCmd() *cobra.Command {
	var caseSensitive bool
	var maxResults int
	var copyToClipboard bool
	cmd := &cobra.Command{
		Use:   "search <config-id> <app-id> <query>",
		Short: "Search an application's current and archived logs",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			req := controlsurface.Request{
				Verb:       controlsurface.VerbSearchLogs,
				ConfigID:   args[0],
				AppID:      args[1],
				Query:      args[2],
				MaxResults: maxResults,
			}
			if cmd.Flags().Changed("case-sensitive") {
				req.CaseSensitive = &caseSensitive
			}
			resp := surface.Dispatch(cmd.Context(), req)
			if copyToClipboard && resp.Success {
				if err := copyMatchesToClipboard(resp); err != nil {
					fmt.Fprintln(os.Stderr, "copy to clipboard failed:", err)
				}
			}
			return printEnvelope(resp)
		},
	}
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "match case-sensitively")
	cmd.Flags().IntVar(&maxResults, "max-results", 50, "maximum matches to return")
	cmd.Flags().BoolVar(&copyToClipboard, "copy", false, "copy matched lines to the OS clipboard")
	return cmd
}

func copyMatchesToClipboard(resp controlsurface.Envelope) error {
	matches, ok := resp.Data.([]model.SearchMatch)
	if !ok {
		return nil
	}
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("%s:%d: %s", m.File, m.LineNumber, m.Text))
	}
	return clipboard.WriteAll(strings.Join(lines, "\n"))
}

func newListRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-runs <config-id> <app-id>",
		Short: "List an application's archived log files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbListLogRuns,
				ConfigID: args[0],
				AppID:    args[1],
			})
			return printEnvelope(resp)
		},
	}
}

func newRunCommandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-command <config-id> <app-id> <command> [args...]",
		Short: "Run an ad hoc command against an application's working directory",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbRunCommand,
				ConfigID: args[0],
				AppID:    args[1],
				Command:  args[2],
				Args:     args[3:],
			})
			return printEnvelope(resp)
		},
	}
	return cmd
}
