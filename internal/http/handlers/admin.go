package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/citaflow/citaflow/internal/bookingaudit"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/internal/jobs"
	"github.com/citaflow/citaflow/internal/knowledge"
	"github.com/citaflow/citaflow/pkg/logging"
)

// adminStore is the subset of the conversation store the admin API reads.
type adminStore interface {
	ListClients(ctx context.Context, limit int) ([]engine.Client, error)
	ListConversations(ctx context.Context, limit int) ([]engine.Conversation, error)
	GetConversationByID(ctx context.Context, id uuid.UUID) (*engine.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]engine.Message, error)
	ListHandoffs(ctx context.Context, status string, limit int) ([]engine.Handoff, error)
	UpdateHandoffStatus(ctx context.Context, handoffID uuid.UUID, status string) error
}

type knowledgeRepo interface {
	Upsert(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]knowledge.Entry, error)
}

type auditReader interface {
	ListForConversation(ctx context.Context, conversationID uuid.UUID) ([]bookingaudit.Record, error)
}

type jobReader interface {
	GetJob(ctx context.Context, jobID string) (*jobs.Record, error)
}

// AdminHandler serves the operator API: read access to conversation data,
// knowledge base editing, handoff resolution and job status lookup.
type AdminHandler struct {
	store     adminStore
	knowledge knowledgeRepo
	audit     auditReader
	jobs      jobReader
	logger    *logging.Logger
}

// AdminConfig wires the admin handler dependencies. Knowledge, audit and
// jobs are optional; their endpoints answer 503 when absent.
type AdminConfig struct {
	Store     adminStore
	Knowledge knowledgeRepo
	Audit     auditReader
	Jobs      jobReader
	Logger    *logging.Logger
}

// NewAdminHandler builds the admin API handler.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	if cfg.Store == nil {
		panic("handlers: admin store cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminHandler{
		store:     cfg.Store,
		knowledge: cfg.Knowledge,
		audit:     cfg.Audit,
		jobs:      cfg.Jobs,
		logger:    cfg.Logger.Component("admin"),
	}
}

func (h *AdminHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.store.ListClients(r.Context(), queryLimit(r))
	if err != nil {
		h.serverError(w, "list clients", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.ListConversations(r.Context(), queryLimit(r))
	if err != nil {
		h.serverError(w, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (h *AdminHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "conversationID")
	if !ok {
		return
	}
	if _, err := h.store.GetConversationByID(r.Context(), id); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.serverError(w, "load conversation", err)
		return
	}
	messages, err := h.store.ListMessages(r.Context(), id, queryLimit(r))
	if err != nil {
		h.serverError(w, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *AdminHandler) ListHandoffs(w http.ResponseWriter, r *http.Request) {
	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	handoffs, err := h.store.ListHandoffs(r.Context(), status, queryLimit(r))
	if err != nil {
		h.serverError(w, "list handoffs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handoffs": handoffs})
}

// UpdateHandoff transitions a handoff ticket, typically OPEN -> CLOSED
// when an operator finishes assisting.
func (h *AdminHandler) UpdateHandoff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "handoffID")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	status := strings.ToUpper(strings.TrimSpace(body.Status))
	if err := h.store.UpdateHandoffStatus(r.Context(), id, status); err != nil {
		switch {
		case errors.Is(err, engine.ErrValidation):
			http.Error(w, "invalid status", http.StatusBadRequest)
		case errors.Is(err, engine.ErrNotFound):
			http.Error(w, "handoff not found", http.StatusNotFound)
		default:
			h.serverError(w, "update handoff", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *AdminHandler) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	if h.knowledge == nil {
		http.Error(w, "knowledge base not configured", http.StatusServiceUnavailable)
		return
	}
	entries, err := h.knowledge.List(r.Context())
	if err != nil {
		h.serverError(w, "list knowledge", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AdminHandler) UpsertKnowledge(w http.ResponseWriter, r *http.Request) {
	if h.knowledge == nil {
		http.Error(w, "knowledge base not configured", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	body.Key = strings.TrimSpace(body.Key)
	if body.Key == "" || strings.TrimSpace(body.Value) == "" {
		http.Error(w, "key and value are required", http.StatusBadRequest)
		return
	}
	if err := h.knowledge.Upsert(r.Context(), body.Key, body.Value); err != nil {
		h.serverError(w, "upsert knowledge", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": body.Key})
}

func (h *AdminHandler) DeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	if h.knowledge == nil {
		http.Error(w, "knowledge base not configured", http.StatusServiceUnavailable)
		return
	}
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "key required", http.StatusBadRequest)
		return
	}
	if err := h.knowledge.Delete(r.Context(), key); err != nil {
		h.serverError(w, "delete knowledge", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		http.Error(w, "booking audit not configured", http.StatusServiceUnavailable)
		return
	}
	id, ok := pathUUID(w, r, "conversationID")
	if !ok {
		return
	}
	records, err := h.audit.ListForConversation(r.Context(), id)
	if err != nil {
		h.serverError(w, "list bookings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": records})
}

func (h *AdminHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job tracking not configured", http.StatusServiceUnavailable)
		return
	}
	job, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		h.serverError(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *AdminHandler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("admin request failed", "op", op, "error", err)
	http.Error(w, "server error", http.StatusInternalServerError)
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
