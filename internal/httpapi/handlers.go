package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pongarena/server/internal/logging"
	"pongarena/server/internal/session"
)

// ReadinessProvider exposes server state required for readiness checks.
type ReadinessProvider interface {
	ConnectedClients() int
	OpenLobbies() int
	StartupError() error
	Uptime() time.Duration
}

// StatsFunc returns cumulative counters for the metrics endpoint.
type StatsFunc func() (clients, lobbies, runningSessions int, broadcasts int64)

// Options configures the HandlerSet.
type Options struct {
	Logger     *logging.Logger
	Readiness  ReadinessProvider
	Stats      StatsFunc
	TickStats  func() session.TickStats
	TimeSource func() time.Time
}

// HandlerSet bundles the operational handlers.
type HandlerSet struct {
	logger    *logging.Logger
	readiness ReadinessProvider
	stats     StatsFunc
	tickStats func() session.TickStats
	now       func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:    logger,
		readiness: opts.Readiness,
		stats:     opts.Stats,
		tickStats: opts.TickStats,
		now:       now,
	}
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports server readiness with client and lobby counts.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
		Lobbies       int     `json:"lobbies"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Clients = h.readiness.ConnectedClients()
			resp.Lobbies = h.readiness.OpenLobbies()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var clients, lobbies, running int
		var broadcasts int64
		if h.stats != nil {
			clients, lobbies, running, broadcasts = h.stats()
		}
		var uptime float64
		if h.readiness != nil {
			uptime = h.readiness.Uptime().Seconds()
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP pong_uptime_seconds Server uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE pong_uptime_seconds gauge\n")
		fmt.Fprintf(w, "pong_uptime_seconds %.0f\n", uptime)

		fmt.Fprintf(w, "# HELP pong_clients Current connected WebSocket clients.\n")
		fmt.Fprintf(w, "# TYPE pong_clients gauge\n")
		fmt.Fprintf(w, "pong_clients %d\n", clients)

		fmt.Fprintf(w, "# HELP pong_lobbies Open lobbies.\n")
		fmt.Fprintf(w, "# TYPE pong_lobbies gauge\n")
		fmt.Fprintf(w, "pong_lobbies %d\n", lobbies)

		fmt.Fprintf(w, "# HELP pong_running_sessions Match sessions currently ticking.\n")
		fmt.Fprintf(w, "# TYPE pong_running_sessions gauge\n")
		fmt.Fprintf(w, "pong_running_sessions %d\n", running)

		fmt.Fprintf(w, "# HELP pong_broadcasts_total Total broadcast frames delivered.\n")
		fmt.Fprintf(w, "# TYPE pong_broadcasts_total counter\n")
		fmt.Fprintf(w, "pong_broadcasts_total %d\n", broadcasts)

		if h.tickStats != nil {
			stats := h.tickStats()
			fmt.Fprintf(w, "# HELP pong_tick_seconds_avg Average simulation tick duration in seconds.\n")
			fmt.Fprintf(w, "# TYPE pong_tick_seconds_avg gauge\n")
			fmt.Fprintf(w, "pong_tick_seconds_avg %.6f\n", stats.Average.Seconds())
			fmt.Fprintf(w, "# HELP pong_tick_seconds_max Worst observed simulation tick duration in seconds.\n")
			fmt.Fprintf(w, "# TYPE pong_tick_seconds_max gauge\n")
			fmt.Fprintf(w, "pong_tick_seconds_max %.6f\n", stats.Max.Seconds())
			fmt.Fprintf(w, "# HELP pong_tick_samples_total Simulation ticks observed.\n")
			fmt.Fprintf(w, "# TYPE pong_tick_samples_total counter\n")
			fmt.Fprintf(w, "pong_tick_samples_total %d\n", stats.Samples)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L().Warn("failed to encode http response", logging.Error(err))
	}
}
