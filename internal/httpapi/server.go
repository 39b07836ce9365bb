package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/aria/internal/brain"
	"github.com/antoniostano/aria/internal/config"
	"github.com/antoniostano/aria/internal/engine"
	"github.com/antoniostano/aria/internal/observability"
	"github.com/antoniostano/aria/internal/persona"
	"github.com/antoniostano/aria/internal/session"
)

// Responder runs one assistant turn for a conversation.
type Responder interface {
	Respond(ctx context.Context, conversationID, utterance string, onDelta brain.DeltaHandler) (engine.Reply, error)
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	engine   Responder
	personas *persona.LazyBinding[persona.Store]
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, eng Responder, personas *persona.LazyBinding[persona.Store], metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		engine:   eng,
		personas: personas,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Other websites must not
				// be able to drive a user's conversation.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/chat/session", s.handleCreateSession)
	r.Post("/v1/chat/session/{id}/end", s.handleEndSession)
	r.Post("/v1/chat/session/{id}/message", s.handleMessage)
	r.Get("/v1/chat/session/ws", s.handleSessionWS)

	r.Get("/v1/personas", s.handleListPersonas)
	r.Get("/v1/personas/{id}", s.handleGetPersona)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"persona_store": s.personaStoreState(r.Context()),
		"active_convos": s.sessions.ActiveCount(),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil || s.metrics.Stages == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "stage window not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.Stages.Snapshot())
}

type createSessionRequest struct {
	UserID    string `json:"user_id"`
	PersonaID string `json:"persona_id"`
}

type createSessionResponse struct {
	ConversationID  string         `json:"conversation_id"`
	UserID          string         `json:"user_id"`
	PersonaID       string         `json:"persona_id"`
	Status          session.Status `json:"status"`
	Greeting        string         `json:"greeting,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	LastActivityAt  time.Time      `json:"last_activity_at"`
	InactivityTTLMS int64          `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}
	if strings.TrimSpace(req.PersonaID) == "" {
		req.PersonaID = "warm"
	}

	greeting := ""
	if desc, err := s.lookupPersona(r.Context(), req.PersonaID); err == nil {
		greeting = desc.Greeting
	} else if errors.Is(err, persona.ErrNotFound) {
		respondError(w, http.StatusNotFound, "persona_not_found", "unknown persona "+req.PersonaID)
		return
	}

	conv := s.sessions.Create(req.UserID, req.PersonaID)
	if s.metrics != nil {
		s.metrics.ActiveConversations.Set(float64(s.sessions.ActiveCount()))
		s.metrics.ConversationEvents.WithLabelValues("created").Inc()
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		ConversationID:  conv.ID,
		UserID:          conv.UserID,
		PersonaID:       conv.PersonaID,
		Status:          conv.Status,
		Greeting:        greeting,
		StartedAt:       conv.StartedAt,
		LastActivityAt:  conv.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_conversation_id", "missing conversation id")
		return
	}

	conv, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveConversations.Set(float64(s.sessions.ActiveCount()))
		s.metrics.ConversationEvents.WithLabelValues("ended").Inc()
	}
	respondJSON(w, http.StatusOK, conv)
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	ConversationID string `json:"conversation_id"`
	TurnID         string `json:"turn_id"`
	Text           string `json:"text"`
	Disclosed      bool   `json:"disclosed"`
	Retrieved      int    `json:"retrieved"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_conversation_id", "missing conversation id")
		return
	}
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if s.engine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "engine not configured")
		return
	}

	reply, err := s.engine.Respond(r.Context(), id, req.Text, nil)
	if err != nil {
		s.respondTurnError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{
		ConversationID: id,
		TurnID:         reply.TurnID,
		Text:           reply.Text,
		Disclosed:      reply.Disclosed,
		Retrieved:      reply.Retrieved,
	})
}

func (s *Server) respondTurnError(w http.ResponseWriter, _ string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", err.Error())
	case errors.Is(err, engine.ErrTransient):
		respondError(w, http.StatusServiceUnavailable, "assistant_unavailable", engine.ErrTransient.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "request_aborted", "request canceled or timed out")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	store, err := s.personas.Resolve(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "persona_store_unavailable", err.Error())
		return
	}
	descriptors, err := store.ListPersonas(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "persona_store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"personas": descriptors})
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	desc, err := s.lookupPersona(r.Context(), id)
	if errors.Is(err, persona.ErrNotFound) {
		respondError(w, http.StatusNotFound, "persona_not_found", "unknown persona "+id)
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "persona_store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, desc)
}

func (s *Server) lookupPersona(ctx context.Context, id string) (persona.Descriptor, error) {
	if s.personas == nil {
		return persona.Descriptor{}, errors.New("persona store not configured")
	}
	store, err := s.personas.Resolve(ctx)
	if err != nil {
		return persona.Descriptor{}, err
	}
	return store.GetPersona(ctx, id)
}

func (s *Server) personaStoreState(ctx context.Context) string {
	if s.personas == nil {
		return "disabled"
	}
	if s.personas.Bound() {
		return "bound"
	}
	checkCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if _, err := s.personas.Resolve(checkCtx); err != nil {
		return "unbound"
	}
	return "bound"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
