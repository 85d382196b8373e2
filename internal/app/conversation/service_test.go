package conversation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-companion/internal/adapters/llm"
	"github.com/PabloGalante/farum-companion/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-companion/internal/app/agentflow"
	"github.com/PabloGalante/farum-companion/internal/app/conversation"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

func newService(t *testing.T, script ...llm.MockStep) (*conversation.Service, *llm.MockLLM, *memory.MessageStore) {
	t.Helper()
	mock := llm.NewMockLLM(script...)
	orch, err := agentflow.New(agentflow.Deps{Completer: mock}, agentflow.Options{})
	require.NoError(t, err)
	t.Cleanup(orch.Close)

	messages := memory.NewMessageStore()
	return conversation.NewService(orch, memory.NewSessionStore(), messages), mock, messages
}

func TestStartSessionAndSendMessage(t *testing.T) {
	ctx := context.Background()
	svc, mock, messages := newService(t)

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{
		UserID:        domain.UserID("test-user"),
		PreferredMode: domain.ModeCheckIn,
		Title:         "Test session",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Session.ID)
	require.NotNil(t, out.Welcome)

	reply, err := svc.SendMessage(ctx, conversation.SendMessageInput{
		SessionID: out.Session.ID,
		UserID:    out.Session.UserID,
		Text:      "Hola Farum, hoy estuve pensando en mi trabajo",
	})
	require.NoError(t, err)
	require.NotNil(t, reply.AgentMessage)
	assert.NotEmpty(t, reply.AgentMessage.Text)
	assert.Equal(t, reply.UserMessage.ID, *reply.AgentMessage.ReplyTo)
	assert.False(t, reply.Response.Context.Error)

	// the welcome message reaches the completer as history
	calls := mock.Calls()
	require.Len(t, calls, 1)
	var sawWelcome bool
	for _, m := range calls[0].Messages {
		if m.Role == domain.RoleAssistant && m.Content == out.Welcome.Text {
			sawWelcome = true
		}
	}
	assert.True(t, sawWelcome)

	stored, err := messages.GetMessagesBySession(ctx, out.Session.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, domain.RoleUser, stored[1].Author)
	assert.Equal(t, domain.RoleAgent, stored[2].Author)

	session, timeline, err := svc.GetSessionTimeline(ctx, out.Session.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, out.Session.ID, session.ID)
	assert.Len(t, timeline, 2)
}

func TestSendMessageRejectsInvalidInputWithoutStoring(t *testing.T) {
	ctx := context.Background()
	svc, mock, messages := newService(t)

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: out.Session.ID, Text: "   "})
	require.Error(t, err)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, agentflow.CodeEmptyMessage, derr.Code)
	assert.Empty(t, mock.Calls())

	stored, err := messages.GetMessagesBySession(ctx, out.Session.ID, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestSendMessageStoresFailureReplies(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, llm.MockStep{Err: domain.NewRateLimitError(errors.New("quota"))})

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{UserID: "u1"})
	require.NoError(t, err)

	reply, err := svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: out.Session.ID, Text: "¿Me ayudás a ordenar la semana?"})
	require.NoError(t, err)
	assert.True(t, reply.Response.Context.Error)
	assert.Equal(t, agentflow.MsgRetryLater, reply.AgentMessage.Text)
	assert.Equal(t, conversation.ContentError, reply.AgentMessage.ContentType)
}

func TestSessionErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.StartSession(ctx, conversation.StartSessionInput{})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = svc.StartSession(ctx, conversation.StartSessionInput{UserID: "u1", PreferredMode: "yoga"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: "missing", Text: "hola"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	out, err := svc.StartSession(ctx, conversation.StartSessionInput{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, conversation.SendMessageInput{SessionID: out.Session.ID, UserID: "u2", Text: "hola"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	sessions, err := svc.ListSessions(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
