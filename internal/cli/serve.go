package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rorygraves/clientserverrunner/internal/controlsurface"
)

// shutdownGrace bounds how long a supervisor shutdown waits for its
// group-stops to finish; applications still terminating when it passes are
// not killed by the supervisor.
const shutdownGrace = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control surface on standard I/O (the default with no subcommand)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe implements the bare stdio control-surface mode: one JSON
// request per line on stdin, one JSON Envelope per line on stdout. A
// SIGINT/SIGTERM triggers a group-stop of every loaded configuration
// before exit, grounded on the teacher's serve.go signal.Notify +
// context.WithCancel shutdown pattern (adapted here from an HTTP listener
// to a stdio read loop, since this supervisor's control surface is a
// local request/response protocol, not a web server).
func runServe(ctx context.Context) error {
	surface, _, logger, err := buildSurface()
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
		logger.Info("shutdown signal received, draining configurations")
		cancel()
	}()

	reqCh := make(chan controlsurface.Request)
	readErrCh := make(chan error, 1)
	go readRequests(os.Stdin, reqCh, readErrCh)

	writer := bufio.NewWriter(os.Stdout)
	encoder := json.NewEncoder(writer)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-readErrCh:
			if err != nil && err != io.EOF {
				logger.Error("stdin read failed", "error", err)
			}
			break loop
		case req, ok := <-reqCh:
			if !ok {
				break loop
			}
			resp := surface.Dispatch(ctx, req)
			if encErr := encoder.Encode(resp); encErr != nil {
				logger.Error("write reply failed", "error", encErr)
				break loop
			}
			writer.Flush()
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer drainCancel()
	surface.ShutdownAll(drainCtx)
	return nil
}

func readRequests(r io.Reader, out chan<- controlsurface.Request, errCh chan<- error) {
	defer close(out)
	decoder := json.NewDecoder(r)
	for {
		var req controlsurface.Request
		if err := decoder.Decode(&req); err != nil {
			errCh <- err
			return
		}
		out <- req
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("clientserverrunnerd %s (commit %s, built %s by %s)\n", Version, Commit, Date, BuiltBy)
			return nil
		},
	}
}
