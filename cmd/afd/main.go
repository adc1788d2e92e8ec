// Command afd is the AFD supervisor (spec section 4.6): it owns
// AfdActive and AfdStatus, forks every other component in a fixed
// order, and enforces restart policy and shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/afdcore/afd/internal/afdlog"
	"github.com/afdcore/afd/internal/fd/health"
	"github.com/afdcore/afd/internal/metrics"
	"github.com/afdcore/afd/internal/supervisor"
)

func main() {
	workDir := flag.String("work-dir", defaultWorkDir(), "AFD working directory")
	metricsAddr := flag.String("metrics-addr", defaultMetricsAddr(), "address to serve /metrics and /healthz on (empty disables)")
	flag.Parse()

	log := afdlog.NewStderr(afdlog.ChannelSystem)

	if err := run(*workDir, *metricsAddr, log); err != nil {
		fmt.Fprintln(os.Stderr, "afd:", err)
		os.Exit(1)
	}
}

func defaultWorkDir() string {
	if d := os.Getenv("AFD_WORK_DIR"); d != "" {
		return d
	}
	return "/afd"
}

func defaultMetricsAddr() string {
	if a := os.Getenv("AFD_METRICS_ADDR"); a != "" {
		return a
	}
	return "127.0.0.1:8040"
}

// errorAction wires the error state machine's rule 1/2 actions
// (start/stop a host's transfer queue) back into the supervisor: both
// reduce to logging here, since the dispatcher itself consults
// AUTO_PAUSE_QUEUE on every scheduling pass rather than being signaled
// directly.
func errorAction(log *afdlog.Logger) health.ErrorActionFunc {
	return func(alias, action string) {
		log.Config("host queue "+action, map[string]interface{}{"host": alias})
	}
}

func run(workDir, metricsAddr string, log *afdlog.Logger) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("afd: resolve own executable: %w", err)
	}
	dir := filepath.Dir(self)

	children := []supervisor.ChildSpec{
		{Name: "amg", Path: filepath.Join(dir, "afd-amg-stub"), Args: []string{"-work-dir", workDir}, RestartClass: supervisor.RestartCritical, StatusSlot: 0},
		{Name: "fd", Path: filepath.Join(dir, "afd-fd"), Args: []string{"-work-dir", workDir}, RestartClass: supervisor.RestartCritical, StatusSlot: 1},
	}

	th := health.Thresholds{
		LinkMax: 10000, DangerNoFiles: 10000, JobsInQueue: 5000,
		StopAmgThreshold: 100, StartAmgThreshold: 200, DirsInFileDir: 10,
	}

	sup := supervisor.New(workDir, children, th, errorAction(log), log)
	if err := sup.Startup(); err != nil {
		return fmt.Errorf("afd: startup: %w", err)
	}

	if metricsAddr != "" {
		if err := serveMetrics(metricsAddr, sup, log); err != nil {
			log.Warn("metrics server disabled", map[string]interface{}{"addr": metricsAddr, "error": err.Error()})
		}
	}

	return sup.Run(context.Background())
}

// serveMetrics starts the Prometheus/healthz mux in the background. A
// bind failure (address in use) is non-fatal: the supervisor's job of
// forking children and enforcing restart policy does not depend on it.
func serveMetrics(addr string, sup *supervisor.Supervisor, log *afdlog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	collector := metrics.NewCollector(sup.Status(), sup.FSA())
	srv := &http.Server{Handler: metrics.NewServeMux(collector)}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	log.Info("metrics server listening", map[string]interface{}{"addr": addr})
	return nil
}
