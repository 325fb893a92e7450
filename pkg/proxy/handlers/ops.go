package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/credentials"
	"mercator-hq/ganymede/pkg/usage"
)

// OpsHandler serves the /internal/* operator endpoints: executor inventory
// and control, queue introspection, credential capture, and usage summaries.
// These endpoints are not part of the OpenAI surface and return plain JSON.
type OpsHandler struct {
	Broker      Broker
	Credentials *credentials.Manager
	Usage       usage.Store // nil when usage accounting is disabled

	logger *slog.Logger
}

// NewOpsHandler creates the operator endpoint handler. store may be nil.
func NewOpsHandler(b Broker, mgr *credentials.Manager, store usage.Store) *OpsHandler {
	return &OpsHandler{
		Broker:      b,
		Credentials: mgr,
		Usage:       store,
		logger:      slog.Default().With("component", "handlers.ops"),
	}
}

// ServeHTTP implements http.Handler, routing by sub-path under /internal/.
func (h *OpsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/internal/")

	switch {
	case path == "executors":
		h.listExecutors(w, r)
	case strings.HasPrefix(path, "executors/") && strings.HasSuffix(path, "/refresh"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "executors/"), "/refresh")
		h.signalExecutor(w, r, id, "refresh")
	case strings.HasPrefix(path, "executors/") && strings.HasSuffix(path, "/reconnect"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "executors/"), "/reconnect")
		h.signalExecutor(w, r, id, "reconnect")
	case path == "queue":
		h.queueStats(w, r)
	case path == "credentials/arm":
		h.armCapture(w, r)
	case path == "credentials/capture":
		h.completeCapture(w, r)
	case path == "credentials/reload":
		h.reloadCredentials(w, r)
	case path == "usage":
		h.usageSummary(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *OpsHandler) listExecutors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	executors := h.Broker.Executors()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"executors": executors,
		"count":     len(executors),
		"ready":     h.Broker.ReadyExecutors(),
		"in_flight": h.Broker.InFlight(),
	})
}

func (h *OpsHandler) signalExecutor(w http.ResponseWriter, r *http.Request, id, signal string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "executor id is required")
		return
	}

	var err error
	switch signal {
	case "refresh":
		err = h.Broker.SendRefresh(id)
	case "reconnect":
		err = h.Broker.SendReconnect(id)
	}
	if err != nil {
		h.logger.Warn("executor signal failed", "executor_id", id, "signal", signal, "error", err)
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.Info("executor signal sent", "executor_id", id, "signal", signal)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"executor_id": id,
		"signal":      signal,
		"sent":        true,
	})
}

func (h *OpsHandler) queueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.Broker.QueueStats()
	writeJSON(w, http.StatusOK, stats)
}

// armRequest is the body for POST /internal/credentials/arm.
type armRequest struct {
	Mode         string `json:"mode"`
	BattleTarget string `json:"battle_target,omitempty"`
}

func (h *OpsHandler) armCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Credentials == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "credential management is not configured")
		return
	}

	var req armRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.Credentials.Arm(bridge.Mode(req.Mode), req.BattleTarget); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Nudge a connected executor to activate its capture helper. Capture
	// still works without one: the operator can post the pair directly.
	payload, _ := json.Marshal(map[string]string{
		"mode":          req.Mode,
		"battle_target": req.BattleTarget,
	})
	activated := ""
	for _, ex := range h.Broker.Executors() {
		if err := h.Broker.SendCapability(ex.ID, "capture_credentials", payload); err == nil {
			activated = ex.ID
			break
		}
	}
	if activated == "" {
		h.logger.Warn("no executor accepted capture activation", "mode", req.Mode)
	}

	h.logger.Info("credential capture armed", "mode", req.Mode, "battle_target", req.BattleTarget)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"armed":              true,
		"mode":               req.Mode,
		"activated_executor": activated,
	})
}

// captureRequest is the body for POST /internal/credentials/capture.
type captureRequest struct {
	Model     string `json:"model"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

func (h *OpsHandler) completeCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Credentials == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "credential management is not configured")
		return
	}

	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cred, err := h.Credentials.Capture(req.Model, req.SessionID, req.MessageID)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("session credential captured",
		"model", req.Model,
		"mode", cred.Mode,
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model": req.Model,
		"mode":  cred.Mode,
	})
}

func (h *OpsHandler) reloadCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Credentials == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "credential management is not configured")
		return
	}

	if err := h.Credentials.Load(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"models":   h.Broker.Models(),
	})
}

func (h *OpsHandler) usageSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Usage == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "usage accounting is disabled")
		return
	}

	filter := usage.Filter{
		Principal: r.URL.Query().Get("principal"),
		Model:     r.URL.Query().Get("model"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}

	summary, err := h.Usage.Summarize(r.Context(), filter)
	if err != nil {
		h.logger.Error("usage summary failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to summarize usage")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
