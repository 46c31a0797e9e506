// Package dashboard renders a live-updating terminal view of a
// configuration's application statuses, used by `clientserverrunnerd
// status --watch`.
//
// Grounded on the teacher's internal/tui/dashboard package: a bubbletea
// model driven by inbound notifications, lipgloss for styling, and glamour
// for rendering the configuration's free-text description as markdown.
// The teacher's dashboard tracks dozens of panels fed by many subsystems;
// this one has exactly one data source (the process manager's status
// snapshot, reached via the event bus instead of the teacher's polling
// loop) and one panel.
package dashboard

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/rorygraves/clientserverrunner/internal/controlsurface"
	"github.com/rorygraves/clientserverrunner/internal/events"
	"github.com/rorygraves/clientserverrunner/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	stateStyles = map[model.State]lipgloss.Style{
		model.StateRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		model.StateStarting: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		model.StateStopping: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		model.StateFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		model.StateStopped:  dimStyle,
	}
)

type statusMsg struct {
	statuses []model.ApplicationStatus
	err      string
}

// stateEventMsg wraps a events.StateChanged notification delivered by the
// bus subscription, telling Update it's time to re-fetch the full status
// snapshot.
type stateEventMsg events.StateChanged

// subscriptionClosedMsg signals the bus dropped this subscriber (e.g. the
// manager shut down); the dashboard stops listening for further events.
type subscriptionClosedMsg struct{}

// subscribedMsg carries the channel and unsubscribe func back from the
// one-shot subscribe command into Update, since Init's value receiver
// can't persist them directly on the model bubbletea keeps around.
type subscribedMsg struct {
	ch    <-chan events.StateChanged
	unsub func()
}

// Model is the bubbletea model backing the status dashboard.
type Model struct {
	ctx        context.Context
	surface    *controlsurface.Surface
	bus        *events.Bus
	configID   string
	appIDs     []string
	configName string
	description string

	events    <-chan events.StateChanged
	unsubscribe func()

	statuses []model.ApplicationStatus
	lastErr  string
	width    int
}

// New builds a dashboard Model for configID, optionally restricted to
// appIDs. name and description come from the configuration document and
// are rendered once in the header. bus may be nil in tests that never call
// Init.
func New(ctx context.Context, surface *controlsurface.Surface, bus *events.Bus, configID string, appIDs []string, name, description string) Model {
	return Model{
		ctx:         ctx,
		surface:     surface,
		bus:         bus,
		configID:    configID,
		appIDs:      appIDs,
		configName:  name,
		description: description,
		width:       80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.subscribe())
}

// subscribe registers with the bus and hands the resulting channel back to
// Update as a message; a nil bus (used by tests that never call Init)
// yields no command.
func (m Model) subscribe() tea.Cmd {
	if m.bus == nil {
		return nil
	}
	bus := m.bus
	return func() tea.Msg {
		ch, unsub := bus.Subscribe(32)
		return subscribedMsg{ch: ch, unsub: unsub}
	}
}

// waitForEvent blocks on the subscription channel and turns the next
// delivered event (or its closure) into a tea.Msg. Update re-issues this
// command after every event so the model keeps listening.
func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		return stateEventMsg(ev)
	}
}

func (m Model) poll() tea.Cmd {
	if m.surface == nil {
		return nil
	}
	return func() tea.Msg {
		resp := m.surface.Dispatch(m.ctx, controlsurface.Request{
			Verb:     controlsurface.VerbGetStatus,
			ConfigID: m.configID,
			AppIDs:   m.appIDs,
		})
		if !resp.Success {
			return statusMsg{err: resp.Error}
		}
		statuses, _ := resp.Data.([]model.ApplicationStatus)
		return statusMsg{statuses: statuses}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.unsubscribe != nil {
				m.unsubscribe()
			}
			return m, tea.Quit
		}
		return m, nil
	case subscribedMsg:
		m.events = msg.ch
		m.unsubscribe = msg.unsub
		return m, m.waitForEvent()
	case stateEventMsg:
		return m, tea.Batch(m.poll(), m.waitForEvent())
	case subscriptionClosedMsg:
		return m, nil
	case statusMsg:
		m.statuses = msg.statuses
		m.lastErr = msg.err
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%s)", m.configName, m.configID)))
	b.WriteString("\n")
	if m.description != "" {
		if rendered, err := glamour.Render(m.description, "dark"); err == nil {
			b.WriteString(strings.TrimRight(rendered, "\n"))
			b.WriteString("\n")
		} else {
			b.WriteString(dimStyle.Render(m.description))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("error: " + m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("%-20s %-10s %-8s %-8s %s\n", "APP", "STATE", "HEALTH", "PID", "PORT"))
	for _, st := range m.statuses {
		style, ok := stateStyles[st.State]
		if !ok {
			style = dimStyle
		}
		pid := "-"
		if st.PID != 0 {
			pid = fmt.Sprintf("%d", st.PID)
		}
		port := "-"
		if st.AllocatedPort != 0 {
			port = fmt.Sprintf("%d", st.AllocatedPort)
		}
		b.WriteString(fmt.Sprintf("%-20s %-10s %-8s %-8s %s\n",
			st.AppID, style.Render(string(st.State)), st.Health, pid, port))
		if st.ErrorMessage != "" {
			b.WriteString("  " + errorStyle.Render(st.ErrorMessage) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("q to quit, updates live"))
	return b.String()
}
