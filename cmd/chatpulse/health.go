package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/chatpulse/internal/connection"
)

// subscriberCounter reports the registry size.
type subscriberCounter interface {
	Len() int
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(manager connection.Manager, subs subscriberCounter, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := manager.Stats()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		conn := map[string]any{
			"state":    stats.State.String(),
			"identity": stats.Identity,
		}
		switch stats.State {
		case connection.StateOpen:
			conn["uptime"] = time.Since(stats.OpenedAt).Round(time.Second).String()
		case connection.StateErrored:
			health.Status = "unhealthy"
			conn["error"] = stats.LastError
		default:
			health.Status = "degraded"
		}
		health.Components["connection"] = conn
		health.Components["registry"] = map[string]any{
			"subscribers": subs.Len(),
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/connection", func(w http.ResponseWriter, r *http.Request) {
		stats := manager.Stats()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"state":           stats.State.String(),
			"identity":        stats.Identity,
			"connects":        stats.Connects,
			"frames_received": stats.FramesReceived,
			"frames_dropped":  stats.FramesDropped,
			"dispatched":      stats.Dispatched,
			"last_error":      stats.LastError,
			"opened_at":       stats.OpenedAt,
		})
	})

	if metricsPath != "" {
		mux.Handle(metricsPath, promhttp.Handler())
	}

	return mux
}
