package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/navillasa/litellm-eks-stack/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics holds the Prometheus metrics exported by the status server.
type Metrics struct {
	endpointHealthy *prometheus.GaugeVec
	probeDuration   *prometheus.HistogramVec
	probeErrors     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		endpointHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llmstack_endpoint_healthy",
				Help: "Whether the endpoint's last probes passed (1=healthy, 0=unhealthy)",
			},
			[]string{"endpoint"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llmstack_probe_duration_seconds",
				Help:    "Probe round-trip time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		probeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmstack_probe_errors_total",
				Help: "Total failed probes per endpoint",
			},
			[]string{"endpoint"},
		),
	}

	reg.MustRegister(m.endpointHealthy, m.probeDuration, m.probeErrors)
	return m
}

// Server serves the stack health summary and Prometheus metrics.
type Server struct {
	cfg      *config.Config
	checker  *Checker
	metrics  *Metrics
	registry *prometheus.Registry

	lastErrors map[string]int
	lastSample map[string]time.Time
}

// NewServer creates a status server probing the configured endpoints.
func NewServer(cfg *config.Config) *Server {
	registry := prometheus.NewRegistry()
	checker := NewChecker(cfg.Status.ProbeInterval)

	for _, endpoint := range cfg.Status.Endpoints {
		checker.AddEndpoint(endpoint.Name, endpoint.URL+endpoint.Path)
	}

	return &Server{
		cfg:        cfg,
		checker:    checker,
		metrics:    newMetrics(registry),
		registry:   registry,
		lastErrors: make(map[string]int),
		lastSample: make(map[string]time.Time),
	}
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")
	return router
}

// Start runs the probe loop, the metrics refresher, and the HTTP server
// until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.checker.Start(ctx)
	go s.updateMetrics(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Status.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("Status server listening on port %d", s.cfg.Status.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Status server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := s.checker.Snapshot()

	healthy := s.checker.HealthyCount()
	overall := "healthy"
	if healthy < len(snapshot) {
		overall = "degraded"
	}
	if healthy == 0 && len(snapshot) > 0 {
		overall = "unhealthy"
	}

	payload := map[string]interface{}{
		"status":            overall,
		"healthy_endpoints": healthy,
		"total_endpoints":   len(snapshot),
		"endpoints":         snapshot,
		"timestamp":         time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) updateMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Status.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshMetrics()
		}
	}
}

func (s *Server) refreshMetrics() {
	for name, endpoint := range s.checker.Snapshot() {
		if endpoint.Healthy {
			s.metrics.endpointHealthy.WithLabelValues(name).Set(1)
		} else {
			s.metrics.endpointHealthy.WithLabelValues(name).Set(0)
		}

		// Each probe result goes into the histogram once, no matter how
		// often the refresher runs between probes.
		if endpoint.LastCheck.After(s.lastSample[name]) {
			s.metrics.probeDuration.WithLabelValues(name).Observe(endpoint.ResponseTime / 1000)
			s.lastSample[name] = endpoint.LastCheck
		}

		if delta := endpoint.ErrorCount - s.lastErrors[name]; delta > 0 {
			s.metrics.probeErrors.WithLabelValues(name).Add(float64(delta))
		}
		s.lastErrors[name] = endpoint.ErrorCount
	}
}
