// Package controlsurface translates the external request/response verbs of
// spec.md §6 into calls against the Configuration Store and Process
// Manager, and shapes their replies into a stable JSON envelope.
//
// The envelope shape (success/timestamp/error/error_code/hint) is grounded
// on the teacher's internal/robot/types.go RobotResponse and ErrCode*
// constants, adapted from AI-agent-facing command output to this
// supervisor's own §7 error taxonomy instead of the teacher's tmux-specific
// codes.
package controlsurface

import (
	"time"

	"github.com/rorygraves/clientserverrunner/internal/apierr"
)

// EnvelopeVersion identifies the schema of Envelope itself, independent of
// the supervisor's own version.
const EnvelopeVersion = "1.0.0"

// Envelope is the reply shape for every control-surface verb.
type Envelope struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

func newEnvelope(success bool) Envelope {
	return Envelope{
		Success:   success,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   EnvelopeVersion,
	}
}

// ok wraps data in a success envelope.
func ok(data any) Envelope {
	e := newEnvelope(true)
	e.Data = data
	return e
}

// errEnvelope maps err to a failure envelope. apierr.Error values carry
// their Kind as error_code verbatim; any other error is reported as
// apierr.KindInternal so callers always see one of the documented codes.
func errEnvelope(err error) Envelope {
	e := newEnvelope(false)
	e.Error = err.Error()

	apiErr, ok := apierr.As(err)
	if !ok {
		e.ErrorCode = string(apierr.KindInternal)
		return e
	}
	e.ErrorCode = string(apiErr.Kind)
	e.Hint = hintFor(apiErr)
	return e
}

// hintFor returns actionable guidance for the error kinds where an obvious
// corrective action exists, mirroring the teacher's PrintRobotError hint
// argument.
func hintFor(e *apierr.Error) string {
	switch e.Kind {
	case apierr.KindNotFound:
		return "use list_configurations to see available configuration ids"
	case apierr.KindConfigInvalid:
		if len(e.Cycle) > 0 {
			return "remove one edge from the depends_on cycle and retry"
		}
		return "check the configuration document against the data model before resubmitting"
	case apierr.KindBusy:
		return "stop_configuration the affected applications before retrying this mutation"
	case apierr.KindPortUnavailable:
		return "free the port or remove the fixed_port declaration to use dynamic allocation"
	case apierr.KindHandlerMissing:
		return "register the app_type or use one of: python, npm, sbt"
	case apierr.KindStartupFailed:
		return "inspect get_logs for this application's current run before retrying start_configuration"
	case apierr.KindInternal:
		return "retry; if it recurs, report correlation_id " + e.CorrelationID
	default:
		return ""
	}
}
