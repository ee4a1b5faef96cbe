package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/poller"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/prompt"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/session"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/pkg/models"
)

// Completer is the chat core the HTTP layer calls into.
type Completer interface {
	SendMessage(ctx context.Context, messages []prompt.Message) (string, error)
	SendMessageStream(ctx context.Context, messages []prompt.Message, onChunk poller.ChunkFunc) (string, error)
	IsConnected() bool
}

// SessionControl exposes lifecycle operations on the browser session.
// Reopen and Close must not interrupt a completion in progress.
type SessionControl interface {
	Reopen(ctx context.Context, forceVisible bool) error
	Close(ctx context.Context) error
	LoginRequired(ctx context.Context) bool
	State() (session.State, error)
	Cookies() []browser.Cookie
}

// Info is static data reported by /status.
type Info struct {
	Model       string
	ChatURL     string
	Headless    bool
	Screenshots bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	chat      Completer
	session   SessionControl
	info      Info
	startedAt time.Time
	logger    *zap.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(chat Completer, sess SessionControl, info Info, logger *zap.Logger) *Handler {
	return &Handler{
		chat:      chat,
		session:   sess,
		info:      info,
		startedAt: time.Now(),
		logger:    logging.OrNop(logger),
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req models.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must be a non-empty array")
		return
	}

	messages := make([]prompt.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		role := prompt.Role(m.Role)
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_request_error",
				fmt.Sprintf("messages[%d].role must be one of system, user or assistant", i))
			return
		}
		messages = append(messages, prompt.Message{Role: role, Content: m.Content})
	}

	model := req.Model
	if model == "" {
		model = h.info.Model
	}

	if req.Stream {
		h.streamCompletion(w, r, model, messages)
		return
	}

	text, err := h.chat.SendMessage(r.Context(), messages)
	if err != nil {
		h.logger.Error("completion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	promptTokens := estimateTokens(prompt.Format(messages))
	completionTokens := estimateTokens(text)
	writeJSON(w, http.StatusOK, models.ChatCompletionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []models.Choice{{
			Index:        0,
			Message:      models.ChatMessage{Role: string(prompt.RoleAssistant), Content: text},
			FinishReason: "stop",
		}},
		Usage: models.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
}

// streamCompletion forwards chunks as server-sent events. Headers are only
// sent with the first chunk, so a failure before any output still becomes a
// plain 500 response.
func (h *Handler) streamCompletion(w http.ResponseWriter, r *http.Request, model string, messages []prompt.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "server_error", "streaming is not supported by this connection")
		return
	}

	id := completionID()
	created := time.Now().Unix()
	started := false

	send := func(delta models.Delta, finish *string) error {
		chunk := models.ChatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []models.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	start := func() error {
		if started {
			return nil
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		return send(models.Delta{Role: string(prompt.RoleAssistant)}, nil)
	}

	_, err := h.chat.SendMessageStream(r.Context(), messages, func(chunk string) error {
		if err := start(); err != nil {
			return err
		}
		return send(models.Delta{Content: chunk}, nil)
	})

	if err != nil && !started {
		h.logger.Error("streaming completion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.logger.Info("stream client went away")
			return
		}
		h.logger.Error("streaming completion failed mid-stream", zap.Error(err))
		body, _ := json.Marshal(models.ErrorBody{Error: models.ErrorDetail{Message: err.Error(), Type: "server_error"}})
		fmt.Fprintf(w, "data: %s\n\n", body)
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
		return
	}

	if err := start(); err != nil {
		return
	}
	stop := "stop"
	if err := send(models.Delta{}, &stop); err != nil {
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// ListModels handles GET /v1/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ModelList{
		Object: "list",
		Data: []models.Model{{
			ID:      h.info.Model,
			Object:  "model",
			Created: h.startedAt.Unix(),
			OwnedBy: "qwen-web-bridge",
		}},
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Health{Status: "ok", Connected: h.chat.IsConnected()})
}

func completionID() string {
	return "chatcmpl-" + uuid.NewString()
}

// estimateTokens approximates a token count at four characters per token.
func estimateTokens(s string) int {
	n := len([]rune(s))
	return (n + 3) / 4
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, models.ErrorBody{Error: models.ErrorDetail{Message: message, Type: kind}})
}
