package cli

import (
	"github.com/spf13/cobra"

	"github.com/rorygraves/clientserverrunner/internal/controlsurface"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <config-id> [app-ids...]",
		Short: "Start a configuration, or a subset of its applications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbStartConfiguration,
				ConfigID: args[0],
				AppIDs:   args[1:],
			})
			return printEnvelope(resp)
		},
	}
}

func newStopCmd() *cobra.Command {
	var graceful bool
	cmd := &cobra.Command{
		Use:   "stop <config-id> [app-ids...]",
		Short: "Stop a configuration, or a subset of its applications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			req := controlsurface.Request{
				Verb:     controlsurface.VerbStopConfiguration,
				ConfigID: args[0],
				AppIDs:   args[1:],
			}
			if cmd.Flags().Changed("graceful") {
				req.Graceful = &graceful
			}
			return printEnvelope(surface.Dispatch(cmd.Context(), req))
		},
	}
	cmd.Flags().BoolVar(&graceful, "graceful", true, "send SIGTERM and wait before SIGKILL")
	return cmd
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <config-id> [app-ids...]",
		Short: "Stop then start a configuration, or a subset of its applications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbRestartConfiguration,
				ConfigID: args[0],
				AppIDs:   args[1:],
			})
			return printEnvelope(resp)
		},
	}
}

func newStatusCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status <config-id> [app-ids...]",
		Short: "Show the runtime status of a configuration's applications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, bus, logger, err := buildSurface()
			if err != nil {
				return err
			}
			configID, appIDs := args[0], args[1:]
			if watch {
				return runDashboard(cmd.Context(), surface, bus, logger, configID, appIDs)
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbGetStatus,
				ConfigID: configID,
				AppIDs:   appIDs,
			})
			return printEnvelopeForVerb(controlsurface.VerbGetStatus, resp)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "open a live-updating status dashboard")
	return cmd
}

func newTriggerReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload <config-id> <app-id>",
		Short: "Ask an application's handler to hot-reload it in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbTriggerReload,
				ConfigID: args[0],
				AppID:    args[1],
			})
			return printEnvelope(resp)
		},
	}
}
