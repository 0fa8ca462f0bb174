// Package api HTTP handlers for the GymBot control endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

// testMessageBody is sent by the dashboard's connectivity check.
const testMessageBody = "🤖 Mensaje de prueba del bot GYMBRO 💪"

// sessionStats is the per-location and per-plan breakdown of live sessions.
type sessionStats struct {
	Active      int            `json:"active_sessions"`
	ByLocation  map[string]int `json:"by_location"`
	ByPlan      map[string]int `json:"by_plan"`
	AwaitingPay int            `json:"awaiting_payment"`
	HandedOff   int            `json:"handed_off"`
}

func (s *Server) collectSessionStats() sessionStats {
	stats := sessionStats{
		ByLocation: make(map[string]int),
		ByPlan:     make(map[string]int),
	}
	for _, st := range s.sessions.Snapshot() {
		stats.Active++
		if st.Location != models.LocationNone {
			stats.ByLocation[string(st.Location)]++
		}
		if st.Plan != "" {
			stats.ByPlan[st.Plan]++
		}
		if st.PaymentFlow == models.PaymentAwaitingMethod {
			stats.AwaitingPay++
		}
		if st.HandoffToHuman {
			stats.HandedOff++
		}
	}
	return stats
}

// healthHandler reports liveness and transport readiness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := s.manager.Status()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":         "ok",
		"transport":      string(status),
		"ready":          status == models.ConnectionReady,
		"uptime_seconds": int(s.manager.Uptime().Seconds()),
	}))
}

// statsHandler reports the live session breakdown.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.collectSessionStats()))
}

// statusHandler is the dashboard's full status payload.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := s.manager.Status()
	qr, qrAt := s.manager.LatestQR()
	if qr == "" && s.qrText != nil {
		qr = s.qrText()
	}

	payload := map[string]interface{}{
		"transport":          string(status),
		"ready":              status == models.ConnectionReady,
		"reconnect_attempts": s.manager.ReconnectAttempts(),
		"uptime_seconds":     int(s.manager.Uptime().Seconds()),
		"heap_mb":            mem.HeapAlloc / (1 << 20),
		"sessions":           s.collectSessionStats(),
	}
	if qr != "" {
		payload["qr_code"] = qr
		if !qrAt.IsZero() {
			payload["qr_issued_at"] = qrAt.Format(time.RFC3339)
		}
	}
	if s.logs != nil {
		payload["recent_logs"] = s.logs.Recent(20)
	}

	writeJSONResponse(w, http.StatusOK, models.Success(payload))
}

// restartHandler acknowledges and then exits so the supervisor restarts the
// process. The response is written before the exit fires.
func (s *Server) restartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	slog.Warn("Restart requested via control surface")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Restarting", nil))

	go func() {
		time.Sleep(500 * time.Millisecond)
		s.exit(0)
	}()
}

// regenerateQRHandler forces a fresh connection cycle to issue a new pairing
// code.
func (s *Server) regenerateQRHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	slog.Info("QR regeneration requested via control surface")
	s.manager.ForceReconnect(r.Context())
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Regenerating QR code", nil))
}

// cleanupHandler runs the inactivity sweep synchronously.
func (s *Server) cleanupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	removed := s.manager.CleanupInactive(r.Context())
	slog.Info("Manual inactivity sweep completed", "removed", removed)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(
		fmt.Sprintf("Cleanup completed, %d sessions closed", removed),
		map[string]int{"removed": removed}))
}

// testMessageHandler sends the connectivity check message. It requires the
// transport to be ready so a queued send can't mask a dead connection.
func (s *Server) testMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.manager.Status() != models.ConnectionReady {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Transport is not ready"))
		return
	}

	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	canonical, err := s.msgService.ValidateAndCanonicalizeRecipient(req.Phone)
	if err != nil {
		slog.Warn("Test message recipient validation failed", "error", err, "phone", req.Phone)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.msgService.SendMessage(r.Context(), canonical, testMessageBody); err != nil {
		slog.Error("Test message send failed", "error", err, "to", canonical)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send test message"))
		return
	}

	slog.Info("Test message sent", "to", canonical)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Test message sent", nil))
}

// logsDownloadHandler streams the captured log ring as a text attachment.
func (s *Server) logsDownloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.logs == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Log capture is not enabled"))
		return
	}

	filename := fmt.Sprintf("gymbot-logs-%s.txt", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	if _, err := w.Write([]byte(s.logs.Dump())); err != nil {
		slog.Error("Failed to write log download", "error", err)
	}
}
