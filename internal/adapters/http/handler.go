package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/farum-companion/internal/app/agentflow"
	"github.com/PabloGalante/farum-companion/internal/app/conversation"
	journalapp "github.com/PabloGalante/farum-companion/internal/app/journal"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Pipeline is the part of the orchestrator the HTTP API exposes directly.
type Pipeline interface {
	Respond(ctx context.Context, msg domain.IncomingMessage, pre *domain.Context) domain.Response
	Trends(userID domain.UserID) domain.EmotionalTrends
	Stats() agentflow.Stats
}

type Server struct {
	svc      *conversation.Service
	journal  *journalapp.Service
	pipeline Pipeline
}

// NewServer builds the API handler. journal and pipeline may be nil, which
// disables their routes.
func NewServer(svc *conversation.Service, journal *journalapp.Service, pipeline Pipeline) http.Handler {
	s := &Server{svc: svc, journal: journal, pipeline: pipeline}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /sessions → create session (POST)
	mux.HandleFunc("/sessions", s.handleSessions)

	// /sessions/{id}         →  GET: get session + messages
	// /sessions/{id}/messages → POST: send message
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	// /respond → one stateless pipeline call (POST)
	mux.HandleFunc("/respond", s.handleRespond)

	// /users/{id}/journal → GET: journal entries
	// /users/{id}/trends  → GET: session emotional trends
	// /users/{id}/sessions → GET: recent sessions
	mux.HandleFunc("/users/", s.handleUserWithID)

	// /stats → pipeline counters (GET)
	mux.HandleFunc("/stats", s.handleStats)

	return chainMiddlewares(mux, withRecover, withLogging, withRequestID, withCORS)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	UserID        string `json:"user_id"`
	PreferredMode string `json:"preferred_mode,omitempty"`
	Title         string `json:"title,omitempty"`
}

type createSessionResponse struct {
	Session sessionResponse  `json:"session"`
	Welcome *messageResponse `json:"welcome_message,omitempty"`
}

type sessionResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	PreferredMode string    `json:"preferred_mode"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	Mode        string    `json:"mode"`
	Tags        []string  `json:"tags,omitempty"`
	ReplyTo     string    `json:"reply_to,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type sendMessageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	UserMessage  messageResponse        `json:"user_message"`
	AgentMessage messageResponse        `json:"agent_message"`
	Context      domain.ResponseContext `json:"context"`
}

type getSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

// respondRequest is an IncomingMessage plus the optional precomputed context.
type respondRequest struct {
	domain.IncomingMessage
	Context *domain.Context `json:"context,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /sessions/{id} or /sessions/{id}/messages
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := splitID(r.URL.Path, "/sessions/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch rest {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleGetSession(w, r, domain.SessionID(id))
	case "messages":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleSendMessage(w, r, domain.SessionID(id))
	default:
		http.NotFound(w, r)
	}
}

// /users/{id}/journal, /users/{id}/trends or /users/{id}/sessions
func (s *Server) handleUserWithID(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := splitID(r.URL.Path, "/users/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	userID := domain.UserID(id)
	switch {
	case rest == "journal" && s.journal != nil:
		s.handleGetJournal(w, r, userID)
	case rest == "trends" && s.pipeline != nil:
		writeJSON(w, http.StatusOK, s.pipeline.Trends(userID))
	case rest == "sessions":
		sessions, err := s.svc.ListSessions(r.Context(), userID, queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]sessionResponse, 0, len(sessions))
		for _, sess := range sessions {
			out = append(out, toSessionResponse(sess))
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
	default:
		http.NotFound(w, r)
	}
}

// splitID parses prefix + "{id}" or prefix + "{id}/{rest}".
func splitID(path, prefix string) (id, rest string, ok bool) {
	path = strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		if parts[1] == "" || strings.Contains(parts[1], "/") {
			return "", "", false
		}
		rest = parts[1]
	}
	return parts[0], rest, true
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	out, err := s.svc.StartSession(
		r.Context(),
		conversation.StartSessionInput{
			UserID:        domain.UserID(req.UserID),
			PreferredMode: parseInteractionMode(req.PreferredMode),
			Title:         req.Title,
		},
	)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := createSessionResponse{Session: toSessionResponse(out.Session)}
	if out.Welcome != nil {
		m := toMessageResponse(out.Welcome)
		resp.Welcome = &m
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	session, msgs, err := s.svc.GetSessionTimeline(r.Context(), id, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := getSessionResponse{
		Session:  toSessionResponse(session),
		Messages: toMessagesResponse(msgs),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, sessionID domain.SessionID) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	out, err := s.svc.SendMessage(
		r.Context(),
		conversation.SendMessageInput{
			SessionID: sessionID,
			UserID:    domain.UserID(req.UserID),
			Text:      req.Text,
		},
	)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := sendMessageResponse{
		UserMessage:  toMessageResponse(out.UserMessage),
		AgentMessage: toMessageResponse(out.AgentMessage),
		Context:      out.Response.Context,
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRespond always answers 200 with a Response: pipeline failures are
// reported inside its context, as the pipeline itself does.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.pipeline == nil {
		http.NotFound(w, r)
		return
	}

	var req respondRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, s.pipeline.Respond(r.Context(), req.IncomingMessage, req.Context))
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request, userID domain.UserID) {
	entries, err := s.journal.GetUserJournal(r.Context(), userID, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.pipeline == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Stats())
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:            string(s.ID),
		UserID:        string(s.UserID),
		Title:         s.Title,
		PreferredMode: string(s.PreferredMode),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	out := messageResponse{
		ID:          string(m.ID),
		SessionID:   string(m.SessionID),
		Author:      string(m.Author),
		Text:        m.Text,
		Mode:        string(m.Mode),
		Tags:        m.Tags,
		ContentType: m.ContentType,
		CreatedAt:   m.CreatedAt,
	}
	if m.ReplyTo != nil {
		out.ReplyTo = string(*m.ReplyTo)
	}
	return out
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func parseInteractionMode(s string) domain.InteractionMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "check_in", "checkin":
		return domain.ModeCheckIn
	case "deep_dive", "deep":
		return domain.ModeDeepDive
	case "action_plan", "action":
		return domain.ModeActionPlan
	default:
		return domain.ModeCheckIn
	}
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to statuses. Only validation errors expose
// their message.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Kind == domain.KindValidation {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: derr.Message, Code: derr.Code})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
}
