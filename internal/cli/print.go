package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/rorygraves/clientserverrunner/internal/controlsurface"
	"github.com/rorygraves/clientserverrunner/internal/model"
	"github.com/rorygraves/clientserverrunner/internal/output"
)

// printEnvelope writes resp to stdout. A scripted caller (stdout redirected
// to a pipe or file) always gets one JSON object, matching the stdio
// protocol's wire shape exactly. An interactive terminal gets a table for
// the few verbs whose data collapses naturally into rows (get_status,
// list_configurations); every other verb falls back to the same JSON,
// pretty-printed, since most replies (per-app maps, nested configuration
// documents) don't flatten into a table worth building.
func printEnvelope(resp controlsurface.Envelope) error {
	return printEnvelopeForVerb("", resp)
}

// printEnvelopeForVerb is printEnvelope with the originating request's verb,
// used to pick a table renderer when stdout is a terminal.
func printEnvelopeForVerb(verb string, resp controlsurface.Envelope) error {
	if isatty.IsTerminal(os.Stdout.Fd()) && resp.Success {
		if rendered := renderTable(verb, resp); rendered {
			return nil
		}
	}

	var (
		body []byte
		err  error
	)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		body, err = json.MarshalIndent(resp, "", "  ")
	} else {
		body, err = json.Marshal(resp)
	}
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	fmt.Println(string(body))
	if !resp.Success {
		return fmt.Errorf("%s: %s", resp.ErrorCode, resp.Error)
	}
	return nil
}

// renderTable renders resp.Data as an output.Table for the verbs that have
// one, writing directly to stdout. It reports whether it handled verb;
// callers fall back to JSON when it returns false.
func renderTable(verb string, resp controlsurface.Envelope) bool {
	switch verb {
	case controlsurface.VerbGetStatus:
		statuses, ok := decodeSlice[model.ApplicationStatus](resp.Data)
		if !ok {
			return false
		}
		t := output.NewTable(os.Stdout, "APP", "STATE", "HEALTH", "PID", "PORT", "ERROR")
		for _, st := range statuses {
			pid, port := "-", "-"
			if st.PID != 0 {
				pid = fmt.Sprintf("%d", st.PID)
			}
			if st.AllocatedPort != 0 {
				port = fmt.Sprintf("%d", st.AllocatedPort)
			}
			t.AddRow(st.AppID, string(st.State), string(st.Health), pid, port, output.Truncate(st.ErrorMessage, 40))
		}
		t.Render()
		return true
	case controlsurface.VerbListConfigurations:
		summaries, ok := decodeSlice[model.ConfigurationSummary](resp.Data)
		if !ok {
			return false
		}
		t := output.NewTable(os.Stdout, "ID", "NAME", "RUNNING", "UPDATED")
		for _, cfg := range summaries {
			t.AddRow(cfg.ID, cfg.Name, fmt.Sprintf("%t", cfg.HasRunning), cfg.UpdatedAt.Format("2006-01-02T15:04:05Z"))
		}
		t.Render()
		return true
	default:
		return false
	}
}

// decodeSlice recovers a []T from an Envelope.Data that arrived as the
// concrete type (in-process dispatch) rather than json.Unmarshal'd
// map[string]any (the stdio wire path never reaches this CLI-only helper).
func decodeSlice[T any](data any) ([]T, bool) {
	slice, ok := data.([]T)
	return slice, ok
}
