package a2a

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

const maxRequestBytes = 1 << 20

type Handler struct {
	router    chi.Router
	card      *AgentCard
	executor  *Executor
	logger    *slog.Logger
	authToken string
}

type HandlerConfig struct {
	Card      *AgentCard
	Executor  *Executor
	Logger    *slog.Logger
	AuthToken string
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		card:      cfg.Card,
		executor:  cfg.Executor,
		logger:    cfg.Logger,
		authToken: cfg.AuthToken,
	}
	h.buildRouter()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) buildRouter() {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	r.Get("/.well-known/agent-card.json", h.handleAgentCard)
	r.Get("/.well-known/agent.json", h.handleAgentCard)

	r.Group(func(r chi.Router) {
		if h.authToken != "" {
			r.Use(h.authMiddleware)
		}
		r.Post("/", h.handleJSONRPC)
		r.Post("/a2a", h.handleJSONRPC)
		r.Get("/a2a/tasks", h.handleListTasks)
		r.Get("/a2a/tasks/{id}", h.handleGetTask)
		r.Post("/a2a/tasks/{id}/cancel", h.handleCancelTask)
		r.Get("/a2a/stats", h.handleStats)
	})
	h.router = r
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || subtle.ConstantTimeCompare([]byte(token), []byte(h.authToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.card)
}

func (h *Handler) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, NewJSONRPCError(nil, ErrCodeParse, "Parse error: request body unreadable or too large"))
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' && json.Valid(trimmed) {
		writeJSON(w, http.StatusBadRequest, NewJSONRPCError(nil, ErrCodeInvalidReq, "Invalid Request: batch requests are not supported"))
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewJSONRPCError(nil, ErrCodeParse, "Parse error: invalid JSON"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, http.StatusBadRequest, NewJSONRPCError(req.ID, ErrCodeInvalidReq, `Invalid Request: jsonrpc must be "2.0" and method is required`))
		return
	}

	ctx, logger := telemetry.With(telemetry.WithLogger(r.Context(), h.logger),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("rpc_method", req.Method),
	)
	resp := h.executor.Handle(ctx, req)
	if resp.Error != nil {
		logger.Info("rpc error", slog.Int("code", resp.Error.Code), slog.String("message", resp.Error.Message))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be an integer"})
		return
	}

	tasks, err := h.executor.ListTasks(r.Context(), limit, offset)
	if err != nil {
		writeRESTError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.executor.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRESTError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.executor.CancelTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRESTError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.executor.Stats(r.Context())
	if err != nil {
		writeRESTError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeRESTError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ErrCodeInternal
	msg := err.Error()
	var rpcErr *JSONRPCError
	if errors.As(err, &rpcErr) {
		code, msg = rpcErr.Code, rpcErr.Message
		switch rpcErr.Code {
		case ErrCodeTaskNotFound:
			status = http.StatusNotFound
		case ErrCodeTaskNotCancelable:
			status = http.StatusConflict
		case ErrCodeInvalidParams:
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, map[string]any{"error": msg, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
