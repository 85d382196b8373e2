package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-companion/internal/adapters/llm"
	"github.com/PabloGalante/farum-companion/internal/app/conversation"
	"github.com/PabloGalante/farum-companion/internal/config"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

func TestNewCompleter(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()

	c, err := NewCompleter(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.MockLLM{}, c)

	cfg.LLMProvider = "openai"
	c, err = NewCompleter(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIClient{}, c)

	cfg.LLMProvider = "carrier-pigeon"
	_, err = NewCompleter(ctx, cfg)
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestNewWiresMemoryBackend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, config.Default())
	require.NoError(t, err)
	app.Start(ctx)

	started, err := app.Conversation.StartSession(ctx, conversation.StartSessionInput{UserID: "ana"})
	require.NoError(t, err)
	sent, err := app.Conversation.SendMessage(ctx, conversation.SendMessageInput{
		SessionID: started.Session.ID,
		UserID:    "ana",
		Text:      "hoy estoy un poco cansada",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sent.AgentMessage.Text)

	entries, err := app.Journal.GetUserJournal(ctx, "ana", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, app.Close(context.Background()))
}

func TestOpenStoresSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.StorageBackend = "sqlite"
	cfg.SQLiteDir = t.TempDir()

	stores, err := OpenStores(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, stores.Close()) }()

	s := &domain.Session{ID: "s1", UserID: "ana"}
	require.NoError(t, stores.Sessions.CreateSession(ctx, s))
	got, err := stores.Sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("ana"), got.UserID)
}

func TestMemoryStoresCloseIsNoop(t *testing.T) {
	stores, err := OpenStores(context.Background(), config.Default(), nil)
	require.NoError(t, err)
	assert.NoError(t, stores.Close())
	assert.Same(t, stores.Profiles, stores.Sentiment)
}
