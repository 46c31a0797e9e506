// Package health implements the three stateless health-probe strategies of
// spec.md §4.2: http, tcp, and process. Probing is pure per call; looping
// on an interval is the process manager's responsibility.
//
// Grounded on the teacher's checkHealthHTTP/checkHealthCmd
// (internal/supervisor/supervisor.go), which already establish the
// context-bounded single-shot probe idiom this package generalizes to
// three verdict-producing kinds instead of the teacher's boolean health
// checks.
package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

// Target supplies the runtime details a probe needs beyond the static
// HealthCheckSpec: the application's allocated dynamic port (if any) and
// its PID, for the process probe.
type Target struct {
	AllocatedPort int
	PID           int
}

// Probe runs the health check described by spec against target, never
// blocking longer than spec's configured timeout.
func Probe(ctx context.Context, spec model.HealthCheckSpec, target Target) model.HealthVerdict {
	timeout := spec.TimeoutDuration()
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch spec.Kind {
	case model.ProbeHTTP:
		return probeHTTP(pctx, spec.URL)
	case model.ProbeTCP:
		port := spec.Port
		if port == 0 {
			port = target.AllocatedPort
		}
		return probeTCP(pctx, port, timeout)
	case model.ProbeProcess:
		return probeProcess(target.PID)
	default:
		return model.HealthUnknown
	}
}

func probeHTTP(ctx context.Context, url string) model.HealthVerdict {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.HealthUnhealthy
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return model.HealthUnhealthy
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return model.HealthHealthy
	}
	return model.HealthUnhealthy
}

func probeTCP(ctx context.Context, port int, timeout time.Duration) model.HealthVerdict {
	if port == 0 {
		return model.HealthUnhealthy
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return model.HealthUnhealthy
	}
	conn.Close()
	return model.HealthHealthy
}

func probeProcess(pid int) model.HealthVerdict {
	if pid <= 0 {
		return model.HealthUnhealthy
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return model.HealthUnhealthy
	}
	// On unix, FindProcess always succeeds; signal 0 performs existence
	// and permission checks without delivering a real signal.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return model.HealthUnhealthy
	}
	if isZombie(pid) {
		return model.HealthUnhealthy
	}
	return model.HealthHealthy
}

// isZombie best-effort detects a zombie process via /proc on Linux. On
// platforms without /proc (or when the read fails) it conservatively
// reports false, deferring to the liveness signal check above.
func isZombie(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// Format: pid (comm) state ...; comm may contain spaces/parens, so
	// split on the last ')' before reading the state field.
	s := string(data)
	idx := strings.LastIndex(s, ")")
	if idx == -1 || idx+2 >= len(s) {
		return false
	}
	fields := strings.Fields(s[idx+1:])
	if len(fields) == 0 {
		return false
	}
	return fields[0] == "Z"
}
