package cli

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rorygraves/clientserverrunner/internal/controlsurface"
	"github.com/rorygraves/clientserverrunner/internal/dashboard"
	"github.com/rorygraves/clientserverrunner/internal/events"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

// runDashboard fetches the configuration document for its name and
// description, then runs the bubbletea status dashboard until the user
// quits. The dashboard subscribes to bus for state-change notifications
// instead of polling the control surface on a fixed interval.
func runDashboard(ctx context.Context, surface *controlsurface.Surface, bus *events.Bus, logger *slog.Logger, configID string, appIDs []string) error {
	resp := surface.Dispatch(ctx, controlsurface.Request{Verb: controlsurface.VerbGetConfiguration, ConfigID: configID})
	if !resp.Success {
		return printEnvelope(resp)
	}
	cfg, _ := resp.Data.(model.Configuration)

	m := dashboard.New(ctx, surface, bus, configID, appIDs, cfg.Name, cfg.Description)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		logger.Error("dashboard exited with error", "error", err)
		return err
	}
	return nil
}
