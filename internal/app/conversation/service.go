package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-companion/internal/domain"
	"github.com/PabloGalante/farum-companion/internal/observability"
)

const (
	// Stored messages handed to the pipeline as history.
	historyLimit = 20

	welcomeText = "Hola, soy Farum. ¿Qué te gustaría trabajar hoy?"
)

// Content types of stored agent messages.
const (
	ContentText         = "text"
	ContentProtocolStep = "protocol_step"
	ContentError        = "error"
)

// ErrWrongUser is returned when a message is sent to another user's session.
var ErrWrongUser = errors.New("session belongs to another user")

// Responder produces the reply to one message. *agentflow.Orchestrator
// implements it.
type Responder interface {
	Respond(ctx context.Context, msg domain.IncomingMessage, pre *domain.Context) domain.Response
}

// Service keeps stored sessions and runs each user message through the
// response pipeline.
type Service struct {
	responder    Responder
	sessionStore domain.SessionStore
	messageStore domain.MessageStore
	now          func() time.Time
}

func NewService(
	responder Responder,
	sessionStore domain.SessionStore,
	messageStore domain.MessageStore,
) *Service {
	return &Service{
		responder:    responder,
		sessionStore: sessionStore,
		messageStore: messageStore,
		now:          time.Now,
	}
}

type StartSessionInput struct {
	UserID        domain.UserID
	PreferredMode domain.InteractionMode
	Title         string
}

type StartSessionOutput struct {
	Session *domain.Session
	Welcome *domain.Message
}

func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*StartSessionOutput, error) {
	if strings.TrimSpace(string(in.UserID)) == "" {
		return nil, domain.NewValidationError("MISSING_USER", "user id is required")
	}
	switch in.PreferredMode {
	case "", domain.ModeCheckIn, domain.ModeDeepDive, domain.ModeActionPlan:
	default:
		return nil, domain.NewValidationError("INVALID_MODE", fmt.Sprintf("unknown interaction mode %q", in.PreferredMode))
	}

	now := s.now().UTC()

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.UserID,
		"preferred_mode", in.PreferredMode,
	)
	log.Info("starting new session")

	session := &domain.Session{
		ID:            domain.SessionID(uuid.NewString()),
		UserID:        in.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
		PreferredMode: in.PreferredMode,
		Title:         in.Title,
	}

	if err := s.sessionStore.CreateSession(ctx, session); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, domain.NewStorageError("create session", err)
	}

	welcome := &domain.Message{
		ID:          domain.MessageID(uuid.NewString()),
		SessionID:   session.ID,
		Author:      domain.RoleAgent,
		Text:        welcomeText,
		CreatedAt:   now,
		Mode:        session.PreferredMode,
		ContentType: ContentText,
	}

	if err := s.messageStore.AppendMessage(ctx, welcome); err != nil {
		log.Error("failed to append welcome message", "error", err)
		return nil, domain.NewStorageError("append welcome message", err)
	}

	log.Info("session started", "session_id", session.ID)

	return &StartSessionOutput{
		Session: session,
		Welcome: welcome,
	}, nil
}

type SendMessageInput struct {
	SessionID domain.SessionID
	UserID    domain.UserID
	Text      string
}

type SendMessageOutput struct {
	UserMessage  *domain.Message
	AgentMessage *domain.Message
	Response     domain.Response
}

// SendMessage stores the user's message, asks the pipeline for a reply with
// the stored timeline as history and stores the reply. Input the pipeline
// rejects is not stored.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	session, err := s.sessionStore.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, lookupError("get session", err)
	}
	if in.UserID != "" && in.UserID != session.UserID {
		return nil, domain.NewValidationError("WRONG_USER", ErrWrongUser.Error())
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"user_id", session.UserID,
		"mode", session.PreferredMode,
	)
	log.Debug("sending message", "length", len(in.Text))

	stored, err := s.messageStore.GetMessagesBySession(ctx, session.ID, historyLimit)
	if err != nil {
		log.Error("failed to load history", "error", err)
		return nil, domain.NewStorageError("load history", err)
	}

	resp := s.responder.Respond(ctx, domain.IncomingMessage{
		Content:        in.Text,
		UserID:         session.UserID,
		ConversationID: domain.ConversationID(session.ID),
	}, &domain.Context{
		History: domain.HistoryFromMessages(stored),
		Mode:    session.PreferredMode,
	})
	if resp.Context.Error && resp.Context.ErrorType == string(domain.KindValidation) {
		return nil, domain.NewValidationError(resp.Context.ErrorCode, resp.Context.ErrorMessage)
	}

	now := s.now().UTC()
	userMsg := &domain.Message{
		ID:          domain.MessageID(uuid.NewString()),
		SessionID:   session.ID,
		Author:      domain.RoleUser,
		Text:        in.Text,
		CreatedAt:   now,
		Mode:        session.PreferredMode,
		ContentType: ContentText,
	}
	if e := resp.Context.Emotional; e != nil {
		userMsg.Tags = []string{string(e.MainEmotion)}
		if e.Topic != "" {
			userMsg.Tags = append(userMsg.Tags, e.Topic)
		}
	}
	if err := s.messageStore.AppendMessage(ctx, userMsg); err != nil {
		log.Error("failed to append user message", "error", err)
		return nil, domain.NewStorageError("append user message", err)
	}

	replyTo := userMsg.ID
	agentMsg := &domain.Message{
		ID:          domain.MessageID(uuid.NewString()),
		SessionID:   session.ID,
		Author:      domain.RoleAgent,
		Text:        resp.Content,
		CreatedAt:   now.Add(time.Millisecond),
		Mode:        session.PreferredMode,
		ReplyTo:     &replyTo,
		ContentType: contentType(resp),
	}
	if p := resp.Context.Protocol; p != nil {
		agentMsg.Tags = []string{p.Name}
	}
	if err := s.messageStore.AppendMessage(ctx, agentMsg); err != nil {
		log.Error("failed to append agent message", "error", err)
		return nil, domain.NewStorageError("append agent message", err)
	}

	session.UpdatedAt = agentMsg.CreatedAt
	if err := s.sessionStore.UpdateSession(ctx, session); err != nil {
		log.Error("failed to update session", "error", err)
		return nil, domain.NewStorageError("update session", err)
	}

	log.Info("send message completed", "error", resp.Context.Error)

	return &SendMessageOutput{
		UserMessage:  userMsg,
		AgentMessage: agentMsg,
		Response:     resp,
	}, nil
}

func (s *Service) GetSessionTimeline(
	ctx context.Context,
	sessionID domain.SessionID,
	limit int,
) (*domain.Session, []*domain.Message, error) {

	log := observability.LoggerFromContext(ctx).With(
		"session_id", sessionID,
		"limit", limit,
	)

	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		log.Warn("failed to get session", "error", err)
		return nil, nil, lookupError("get session", err)
	}

	msgs, err := s.messageStore.GetMessagesBySession(ctx, sessionID, limit)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return nil, nil, domain.NewStorageError("get messages", err)
	}

	log.Debug("fetched session timeline", "message_count", len(msgs))

	return session, msgs, nil
}

// ListSessions returns the user's most recent sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	sessions, err := s.sessionStore.ListSessionsByUser(ctx, userID, limit)
	if err != nil {
		return nil, domain.NewStorageError("list sessions", err)
	}
	return sessions, nil
}

func contentType(resp domain.Response) string {
	switch {
	case resp.Context.Error:
		return ContentError
	case resp.Context.Protocol != nil && !resp.Context.Protocol.Completed:
		return ContentProtocolStep
	default:
		return ContentText
	}
}

// lookupError keeps ErrNotFound visible to callers.
func lookupError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewStorageError(op, err)
}
