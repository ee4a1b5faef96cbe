package api

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/pkg/models"
)

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	state, lastErr := h.session.State()
	status := models.Status{
		Connected:     h.chat.IsConnected(),
		State:         string(state),
		LoginRequired: h.session.LoginRequired(r.Context()),
		ChatURL:       h.info.ChatURL,
		Headless:      h.info.Headless,
		CookieCount:   len(h.session.Cookies()),
		StartedAt:     h.startedAt,
		Screenshots:   h.info.Screenshots,
		DebuggerPath:  "/debug/ws",
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

// ReopenSession handles POST /session/reopen. With ?visible=true the browser
// window is shown so the operator can log in by hand.
func (h *Handler) ReopenSession(w http.ResponseWriter, r *http.Request) {
	visible := false
	if v := r.URL.Query().Get("visible"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "visible must be a boolean")
			return
		}
		visible = parsed
	}

	if err := h.session.Reopen(r.Context(), visible); err != nil {
		h.logger.Error("session reopen failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	h.Status(w, r)
}

// CloseSession handles POST /session/close.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Close(r.Context()); err != nil {
		// The session is closed either way; report the cleanup problem.
		h.logger.Warn("session close reported an error", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
