package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	internallog "github.com/tombee/referral-agent/internal/log"
	"github.com/tombee/referral-agent/internal/tracing"
	"github.com/tombee/referral-agent/pkg/agent"
	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

// maxBodyBytes caps message request bodies.
const maxBodyBytes = 1 << 20

const unavailableMessage = "We are unable to process your request at the moment. Please try again."

// Agent runs conversation turns.
type Agent interface {
	Invoke(ctx context.Context, query, contextID string) (*agent.Result, error)
	StreamResult(ctx context.Context, query, contextID string, emit func(agent.Update)) (*agent.Result, error)
}

// MessageRequest is the body of both message endpoints.
type MessageRequest struct {
	ContextID string `json:"context_id,omitempty" validate:"omitempty,max=128"`
	Message   string `json:"message" validate:"required"`
}

// MessageResponse is the outcome of one turn.
type MessageResponse struct {
	ContextID        string `json:"context_id"`
	TaskID           string `json:"task_id"`
	IsTaskComplete   bool   `json:"is_task_complete"`
	RequireUserInput bool   `json:"require_user_input"`
	Content          string `json:"content"`
}

// HandlerConfig wires the handler's collaborators.
type HandlerConfig struct {
	Agent Agent
	Card  AgentCard

	// Metrics records per-route request metrics. Nil disables them.
	Metrics *tracing.MetricsCollector

	// MetricsHandler serves /metrics. Nil uses the default Prometheus
	// registry.
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// Handler serves the agent API.
type Handler struct {
	agent          Agent
	card           atomic.Pointer[AgentCard]
	metrics        *tracing.MetricsCollector
	metricsHandler http.Handler
	logger         *slog.Logger
	validate       *validator.Validate
}

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		agent:          cfg.Agent,
		metrics:        cfg.Metrics,
		metricsHandler: cfg.MetricsHandler,
		logger:         cfg.Logger,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
	if h.metricsHandler == nil {
		h.metricsHandler = promhttp.Handler()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	card := cfg.Card
	h.card.Store(&card)
	return h
}

// SetCard replaces the served agent card.
func (h *Handler) SetCard(card AgentCard) {
	h.card.Store(&card)
}

// Router returns the routed handler with request logging and tracing.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(h.metricsMiddleware)

	r.HandleFunc("/.well-known/agent.json", h.handleAgentCard).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", h.metricsHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/messages", h.handleMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/stream", h.handleStream).Methods(http.MethodPost)

	return internallog.HTTPMiddleware(h.logger)(tracing.HTTPMiddleware(r))
}

// metricsMiddleware records request metrics under the matched route
// template so path parameters do not explode label cardinality.
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.RecordRequest(r.Context(), route, r.Method, status, time.Since(start))
	})
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.card.Load())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}

	result, err := h.agent.Invoke(r.Context(), req.Message, req.ContextID)
	if err != nil {
		status, msg := h.turnError(r, err)
		if status == 0 {
			return
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, newMessageResponse(result))
}

// handleStream runs a turn and reports it as server-sent events: one
// "update" event per status message and a closing "final" event. A failed
// turn closes with an "error" event instead.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	h.metrics.StreamOpened(ctx)
	defer h.metrics.StreamClosed(context.WithoutCancel(ctx))

	emit := func(u agent.Update) {
		if ctx.Err() != nil {
			return
		}
		writeEvent(w, "update", u)
		flusher.Flush()
	}

	result, err := h.agent.StreamResult(ctx, req.Message, req.ContextID, emit)
	if err != nil {
		status, msg := h.turnError(r, err)
		if status == 0 {
			return
		}
		writeEvent(w, "error", map[string]string{"error": msg})
		flusher.Flush()
		return
	}
	writeEvent(w, "final", newMessageResponse(result))
	flusher.Flush()
}

func (h *Handler) decodeMessage(w http.ResponseWriter, r *http.Request) (*MessageRequest, bool) {
	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, requestErrorMessage(err))
		return nil, false
	}
	return &req, true
}

// turnError maps a failed turn to a status code and client message. A zero
// status means the client went away and nothing should be written.
func (h *Handler) turnError(r *http.Request, err error) (int, string) {
	logger := internallog.FromContext(r.Context())
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.Info("client disconnected during turn")
		return 0, ""
	}

	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, apperrors.UserMessage(err)
	}

	logger.Error("turn failed", "error", err)
	return http.StatusServiceUnavailable, unavailableMessage
}

func newMessageResponse(res *agent.Result) MessageResponse {
	return MessageResponse{
		ContextID:        res.ContextID,
		TaskID:           res.TaskID,
		IsTaskComplete:   res.IsTaskComplete,
		RequireUserInput: res.RequireUserInput,
		Content:          res.Content,
	}
}

func requestErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Message":
		return "message is required"
	case "ContextID":
		return "context_id must be at most 128 characters"
	}
	return fe.Error()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeEvent(w http.ResponseWriter, event string, data any) {
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
