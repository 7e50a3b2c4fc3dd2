package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthChecker exposes /health, /ready, /status, /metrics for the Ingestor service.
type HealthChecker struct {
	service *IngestorService
	logger  *logrus.Logger
}

// HealthStatus is the payload returned by /health.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Service   string                 `json:"service"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// NewHealthChecker wires a HealthChecker for the given service.
func NewHealthChecker(service *IngestorService, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{service: service, logger: logger}
}

// StartHealthServer runs the HTTP server with sane timeouts and graceful shutdown.
func (h *HealthChecker) StartHealthServer(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/metrics", h.metricsHandler)
	mux.HandleFunc("/ready", h.readinessHandler)
	mux.HandleFunc("/status", h.statusHandler)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	h.logger.WithField("port", port).Info("starting health server")

	// Graceful shutdown: stop accepting new conns, wait for in-flight to complete.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			h.logger.WithError(err).Error("health server shutdown error")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		h.logger.WithError(err).Error("health server failed")
	}
}

// healthHandler returns a quick liveness payload plus a metrics snapshot.
func (h *HealthChecker) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.service.config.Service.Version,
		Service:   "ingestor",
		Uptime:    time.Since(h.service.metrics.StartTime).String(),
		Metrics:   h.service.getMetrics(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.WithError(err).Error("encode /health response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// metricsHandler returns raw metrics as JSON (handy for dashboards).
func (h *HealthChecker) metricsHandler(w http.ResponseWriter, r *http.Request) {
	m := h.service.getMetrics()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m); err != nil {
		h.logger.WithError(err).Error("encode /metrics response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

// readinessHandler distinguishes alive vs ready to serve traffic.
func (h *HealthChecker) readinessHandler(w http.ResponseWriter, r *http.Request) {
	h.service.metrics.mu.RLock()
	defer h.service.metrics.mu.RUnlock()

	// Ready if we processed at least one filing OR have been up > 30s.
	isReady := h.service.metrics.ProcessedCount > 0 ||
		time.Since(h.service.metrics.StartTime) > 30*time.Second

	w.Header().Set("Content-Type", "application/json")
	if isReady {
		w.WriteHeader(http.StatusOK)
		resp := map[string]interface{}{
			"status":          "ready",
			"processed_count": h.service.metrics.ProcessedCount,
			"uptime":          time.Since(h.service.metrics.StartTime).String(),
		}
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	resp := map[string]interface{}{
		"status": "not ready",
		"uptime": time.Since(h.service.metrics.StartTime).String(),
		"reason": "service still starting up",
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusHandler returns a richer operational snapshot: error rate, throughput, etc.
func (h *HealthChecker) statusHandler(w http.ResponseWriter, r *http.Request) {
	h.service.metrics.mu.RLock()
	uptime := time.Since(h.service.metrics.StartTime)
	processed := h.service.metrics.ProcessedCount
	errCount := h.service.metrics.ErrorCount
	avgMs := h.service.metrics.AverageProcessingTime
	lastAt := h.service.metrics.LastProcessedAt
	startTime := h.service.metrics.StartTime
	byForm := make(map[string]int64, len(h.service.metrics.FilingsByForm))
	for k, v := range h.service.metrics.FilingsByForm {
		byForm[k] = v
	}
	h.service.metrics.mu.RUnlock()

	var throughput float64
	if s := uptime.Seconds(); s > 0 {
		throughput = float64(processed) / s
	}

	total := processed + errCount
	var errRate float64
	if total > 0 {
		errRate = float64(errCount) / float64(total)
	}

	status := map[string]interface{}{
		"service":                "ingestor",
		"version":                h.service.config.Service.Version,
		"status":                 "running",
		"uptime":                 uptime.String(),
		"processed_count":        processed,
		"error_count":            errCount,
		"error_rate":             errRate,
		"throughput_per_second":  throughput,
		"avg_processing_time_ms": avgMs,
		"last_processed_at":      lastAt,
		"filings_by_form":        byForm,
		"start_time":             startTime,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		h.logger.WithError(err).Error("encode /status response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
