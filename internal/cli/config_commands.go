package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rorygraves/clientserverrunner/internal/controlsurface"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

// loadApplications reads a YAML or JSON document at path into a slice of
// ApplicationSpec. YAML is a superset of JSON, so one decoder handles both
// forms a configuration author might hand the CLI.
func loadApplications(path string) ([]model.ApplicationSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var apps []model.ApplicationSpec
	if err := yaml.Unmarshal(data, &apps); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return apps, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List known configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{Verb: controlsurface.VerbListConfigurations})
			return printEnvelopeForVerb(controlsurface.VerbListConfigurations, resp)
		},
	}
}

func newCreateCmd() *cobra.Command {
	var name, description, fromFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			var apps []model.ApplicationSpec
			if fromFile != "" {
				apps, err = loadApplications(fromFile)
				if err != nil {
					return err
				}
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:         controlsurface.VerbCreateConfiguration,
				Name:         name,
				Description:  description,
				Applications: apps,
			})
			return printEnvelope(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "configuration name")
	cmd.Flags().StringVar(&description, "description", "", "configuration description")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "path to a YAML or JSON list of application specs")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <config-id>",
		Short: "Show a configuration's full definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbGetConfiguration,
				ConfigID: args[0],
			})
			return printEnvelope(resp)
		},
	}
}

func newUpdateCmd() *cobra.Command {
	var name, description, fromFile string
	cmd := &cobra.Command{
		Use:   "update <config-id>",
		Short: "Merge changes into an existing configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			updates := &controlsurface.ConfigurationUpdates{}
			if cmd.Flags().Changed("name") {
				updates.Name = &name
			}
			if cmd.Flags().Changed("description") {
				updates.Description = &description
			}
			if fromFile != "" {
				apps, err := loadApplications(fromFile)
				if err != nil {
					return err
				}
				updates.Applications = apps
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbUpdateConfiguration,
				ConfigID: args[0],
				Updates:  updates,
			})
			return printEnvelope(resp)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new configuration name")
	cmd.Flags().StringVar(&description, "description", "", "new configuration description")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "path to a YAML or JSON list of application specs, replacing the current set")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "delete <config-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a configuration and its archived logs",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			surface, _, _, err := buildSurface()
			if err != nil {
				return err
			}
			resp := surface.Dispatch(cmd.Context(), controlsurface.Request{
				Verb:     controlsurface.VerbDeleteConfiguration,
				ConfigID: args[0],
				Force:    force,
			})
			return printEnvelope(resp)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "stop running applications first instead of refusing to delete")
	return cmd
}
