package handlers

import (
	"net/http"
	"runtime"
	"time"

	"gifbot/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Bot info
	Bot      string `json:"bot,omitempty"`
	Polling  bool   `json:"polling"`
	InFlight int    `json:"inFlight"`

	// Encoder info
	EncodersRunning int    `json:"encodersRunning"`
	EncoderError    string `json:"encoderError,omitempty"`

	// Scratch info
	ActiveWorkspaces int   `json:"activeWorkspaces"`
	ScratchBytes     int64 `json:"scratchBytes"`
	ScratchEntries   int   `json:"scratchEntries"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Ready:        h.ready(),
		Version:      startup.Version,
		Uptime:       time.Since(h.started).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if h.bot != nil {
		response.Bot = h.bot.Username()
		response.Polling = h.bot.Polling()
		response.InFlight = h.bot.InFlight()
	}
	if h.encoder != nil {
		response.EncodersRunning = h.encoder.Running()
	}
	if h.scratch != nil {
		response.ActiveWorkspaces = h.scratch.Active()
		if bytes, entries, err := h.scratch.ScratchUsage(); err == nil {
			response.ScratchBytes = bytes
			response.ScratchEntries = entries
		}
	}

	switch {
	case !response.Polling:
		response.Status = statusStarting
	case h.encoderErr != nil:
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}
	if h.encoderErr != nil {
		response.EncoderError = h.encoderErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")

	// 503 only while the bot is not polling; a degraded encoder still answers
	// users with an apology.
	if !response.Polling {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the bot is polling and the encoder
// binaries passed their startup check
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.ready() {
		writeJSONStatus(w, http.StatusOK, "ready")
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
}
