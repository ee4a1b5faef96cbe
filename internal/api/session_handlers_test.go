package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/session"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/pkg/models"
)

func TestStatus(t *testing.T) {
	sess := &fakeSession{state: session.StateFailed, lastErr: errors.New("navigation timed out"), login: true}
	router := newTestRouter(&fakeChat{}, sess, nil)

	rec := do(t, router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Connected)
	assert.Equal(t, "failed", status.State)
	assert.Equal(t, "navigation timed out", status.LastError)
	assert.True(t, status.LoginRequired)
	assert.Equal(t, "https://chat.example/", status.ChatURL)
	assert.Equal(t, 1, status.CookieCount)
}

func TestReopenSession(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		code    int
		visible *bool
	}{
		{"default hidden", "", http.StatusOK, boolPtr(false)},
		{"visible", "?visible=true", http.StatusOK, boolPtr(true)},
		{"numeric", "?visible=1", http.StatusOK, boolPtr(true)},
		{"invalid", "?visible=maybe", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{}
			router := newTestRouter(&fakeChat{}, sess, nil)

			rec := do(t, router, http.MethodPost, "/session/reopen"+tt.query, "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.visible, sess.visible)
		})
	}
}

func TestReopenSessionFailure(t *testing.T) {
	sess := &fakeSession{reopenErr: errors.New("browser session initialization failed")}
	router := newTestRouter(&fakeChat{}, sess, nil)

	rec := do(t, router, http.MethodPost, "/session/reopen", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCloseSession(t *testing.T) {
	sess := &fakeSession{state: session.StateReady, closeErr: errors.New("browser already gone")}
	router := newTestRouter(&fakeChat{}, sess, nil)

	rec := do(t, router, http.MethodPost, "/session/close", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, sess.closed)
}

func boolPtr(b bool) *bool { return &b }
