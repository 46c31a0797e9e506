package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/rorygraves/clientserverrunner/internal/model"
)

func TestProbeHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	spec := model.HealthCheckSpec{Kind: model.ProbeHTTP, URL: srv.URL, Timeout: 2}
	if got := Probe(context.Background(), spec, Target{}); got != model.HealthHealthy {
		t.Errorf("Probe() = %v, want healthy", got)
	}
}

func TestProbeHTTPUnreachable(t *testing.T) {
	spec := model.HealthCheckSpec{Kind: model.ProbeHTTP, URL: "http://127.0.0.1:1/nope", Timeout: 1}
	if got := Probe(context.Background(), spec, Target{}); got != model.HealthUnhealthy {
		t.Errorf("Probe() = %v, want unhealthy", got)
	}
}

func TestProbeHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	spec := model.HealthCheckSpec{Kind: model.ProbeHTTP, URL: srv.URL, Timeout: 2}
	if got := Probe(context.Background(), spec, Target{}); got != model.HealthUnhealthy {
		t.Errorf("Probe() = %v, want unhealthy", got)
	}
}

func TestProbeTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	spec := model.HealthCheckSpec{Kind: model.ProbeTCP, Timeout: 2}
	target := Target{AllocatedPort: port}
	if got := Probe(context.Background(), spec, target); got != model.HealthHealthy {
		t.Errorf("Probe() = %v, want healthy", got)
	}
}

func TestProbeTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // nothing listening now

	spec := model.HealthCheckSpec{Kind: model.ProbeTCP, Timeout: 1}
	if got := Probe(context.Background(), spec, Target{AllocatedPort: port}); got != model.HealthUnhealthy {
		t.Errorf("Probe() = %v, want unhealthy", got)
	}
}

func TestProbeProcessAlive(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	defer cmd.Process.Kill()

	spec := model.HealthCheckSpec{Kind: model.ProbeProcess}
	if got := Probe(context.Background(), spec, Target{PID: cmd.Process.Pid}); got != model.HealthHealthy {
		t.Errorf("Probe() = %v, want healthy", got)
	}
}

func TestProbeProcessDead(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("true not available: %v", err)
	}

	spec := model.HealthCheckSpec{Kind: model.ProbeProcess}
	// A freshly-exited PID may be reaped; either way it must not report healthy.
	if got := Probe(context.Background(), spec, Target{PID: cmd.Process.Pid}); got == model.HealthHealthy {
		t.Errorf("Probe() = %v, want not-healthy for exited process", got)
	}
}

func TestProbeTimeoutBound(t *testing.T) {
	spec := model.HealthCheckSpec{Kind: model.ProbeHTTP, URL: "http://10.255.255.1/", Timeout: 1}
	start := time.Now()
	Probe(context.Background(), spec, Target{})
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Probe() took %v, want bounded close to the 1s timeout", elapsed)
	}
}
