// Package metrics exposes Prometheus-compatible metrics on a dedicated
// listener, plus counters recorded by the provisioning pipeline.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	vmetrics "github.com/VictoriaMetrics/metrics"
)

// MetricsServer serves the /metrics endpoint on its own address so that the
// exposition listener can be firewalled separately from the API.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given service name and listen address.
func New(name, addr string) (*MetricsServer, error) {
	if addr == "" {
		return &MetricsServer{}, nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Service-Name", name)
		vmetrics.WritePrometheus(w, true)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// IncStageResult counts one pipeline stage invocation by stage name and
// outcome class.
func IncStageResult(stage, outcome string) {
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`provisioning_stage_results_total{stage=%q,outcome=%q}`, stage, outcome)).Inc()
}

// IncEngineBoot counts engine boot attempts by result.
func IncEngineBoot(result string) {
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`engine_boot_total{result=%q}`, result)).Inc()
}

// IncBroadcast counts routed broadcast events by kind.
func IncBroadcast(kind string) {
	vmetrics.GetOrCreateCounter(fmt.Sprintf(`broadcast_events_total{kind=%q}`, kind)).Inc()
}
