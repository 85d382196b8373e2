package agentflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/farum-companion/internal/adapters/llm"
	"github.com/PabloGalante/farum-companion/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-companion/internal/app/classify"
	"github.com/PabloGalante/farum-companion/internal/app/protocol"
	"github.com/PabloGalante/farum-companion/internal/app/tasks"
	"github.com/PabloGalante/farum-companion/internal/app/templates"
	"github.com/PabloGalante/farum-companion/internal/app/tools"
	"github.com/PabloGalante/farum-companion/internal/domain"
	"github.com/PabloGalante/farum-companion/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type panicCompleter struct{}

func (panicCompleter) Complete(context.Context, domain.CompletionRequest) (*domain.CompletionResponse, error) {
	panic("boom")
}

type blankCompleter struct{}

func (blankCompleter) Complete(context.Context, domain.CompletionRequest) (*domain.CompletionResponse, error) {
	return &domain.CompletionResponse{Content: "   ", FinishReason: "stop", Usage: domain.TokenUsage{PromptTokens: 5, TotalTokens: 5}}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newOrchestrator(t *testing.T, deps Deps, opts Options) *Orchestrator {
	t.Helper()
	if deps.Completer == nil {
		deps.Completer = llm.NewMockLLM()
	}
	if deps.Templates == nil {
		deps.Templates = templates.Default(templates.WithPicker(func(int) int { return 0 }))
	}
	o, err := New(deps, opts)
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func reading(emotion domain.Emotion, intensity int, category domain.Category) *domain.Context {
	return &domain.Context{
		Emotional: &domain.EmotionAnalysis{
			MainEmotion: emotion,
			Intensity:   intensity,
			Category:    category,
			Subtype:     "general",
			Topic:       "trabajo",
		},
		Contextual: &domain.Contextual{Intent: classify.IntentSharing},
	}
}

func msg(uid, text string) domain.IncomingMessage {
	return domain.IncomingMessage{UserID: domain.UserID(uid), Content: text}
}

func TestNewRequiresCompleter(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestRespondValidation(t *testing.T) {
	mock := llm.NewMockLLM()
	o := newOrchestrator(t, Deps{Completer: mock}, Options{MaxMessageLength: 20})
	ctx := context.Background()

	tests := []struct {
		name    string
		in      domain.IncomingMessage
		code    string
		content string
	}{
		{"empty", msg("u1", "  \n "), CodeEmptyMessage, MsgEmptyMessage},
		{"too long", msg("u1", strings.Repeat("a", 21)), CodeMessageTooLong, MsgTooLong},
		{"missing user", msg("", "hola"), CodeMissingUser, MsgInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := o.Respond(ctx, tt.in, nil)
			assert.True(t, resp.Context.Error)
			assert.Equal(t, string(domain.KindValidation), resp.Context.ErrorType)
			assert.Equal(t, tt.code, resp.Context.ErrorCode)
			assert.Equal(t, tt.content, resp.Content)
			assert.False(t, resp.Context.Timestamp.IsZero())
		})
	}
	assert.Empty(t, mock.Calls())
	assert.Equal(t, int64(3), o.Stats().Usage.Errors)
}

func TestRespondBackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    domain.ErrorKind
		content string
	}{
		{"auth", domain.NewAuthenticationError(errors.New("bad key")), domain.KindAuthentication, MsgConfig},
		{"rate limit", domain.NewRateLimitError(errors.New("quota")), domain.KindRateLimit, MsgRetryLater},
		{"server", domain.NewServerError(503, errors.New("down")), domain.KindServer, MsgRetryLater},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, Deps{Completer: llm.NewMockLLM(llm.MockStep{Err: tt.err})}, Options{})
			resp := o.Respond(context.Background(), msg("u1", "Necesito hablar de algo"), reading(domain.EmotionNeutral, 3, domain.CategoryNeutral))
			assert.True(t, resp.Context.Error)
			assert.Equal(t, string(tt.kind), resp.Context.ErrorType)
			assert.Equal(t, tt.content, resp.Content)
		})
	}
}

func TestRespondFallbackIsNotCached(t *testing.T) {
	mock := llm.NewMockLLM(llm.MockStep{})
	o := newOrchestrator(t, Deps{Completer: mock}, Options{})
	ctx := context.Background()
	pre := reading(domain.EmotionNeutral, 3, domain.CategoryNeutral)

	first := o.Respond(ctx, msg("u1", "Hoy fue un día raro en la oficina"), pre)
	assert.False(t, first.Context.Error)
	assert.True(t, first.Context.Fallback)
	assert.NotEmpty(t, first.Content)

	second := o.Respond(ctx, msg("u1", "Hoy fue un día raro en la oficina"), pre)
	assert.False(t, second.Context.Fallback)
	assert.False(t, second.Context.Cached)

	third := o.Respond(ctx, msg("u1", "Hoy fue un día raro en la oficina"), pre)
	assert.True(t, third.Context.Cached)
	assert.Equal(t, second.Content, third.Content)

	assert.Len(t, mock.Calls(), 2)
	assert.Equal(t, int64(1), o.Stats().Usage.Fallbacks)
}

func TestRespondBlankGenerationFallsBack(t *testing.T) {
	o := newOrchestrator(t, Deps{Completer: blankCompleter{}}, Options{})
	ctx := context.Background()

	a := o.Respond(ctx, msg("u1", "Hola, ¿cómo estás?"), nil)
	require.False(t, a.Context.Error)
	assert.True(t, a.Context.Fallback)
	assert.Contains(t, a.Content, "Estoy acá para escucharte")

	b := o.Respond(ctx, msg("u2", "Hola, ¿cómo estás?"), nil)
	assert.True(t, b.Context.Fallback)
	assert.False(t, b.Context.Cached)

	usage := o.Stats().Usage
	assert.Equal(t, int64(2), usage.Fallbacks)
	assert.Equal(t, int64(0), usage.CacheHits)
}

func TestRespondStaleCacheIsRegenerated(t *testing.T) {
	clock := newTestClock()
	mock := llm.NewMockLLM()
	o := newOrchestrator(t, Deps{Completer: mock, Now: clock.Now}, Options{CacheTTL: 30 * time.Second, CacheMaxAge: 30 * time.Second})
	ctx := context.Background()
	pre := reading(domain.EmotionNeutral, 3, domain.CategoryNeutral)

	a := o.Respond(ctx, msg("u1", "Estuve ordenando la casa"), pre)
	require.False(t, a.Context.Error)

	clock.Advance(20 * time.Second)
	b := o.Respond(ctx, msg("u1", "Estuve ordenando la casa"), pre)
	assert.True(t, b.Context.Cached)

	clock.Advance(25 * time.Second)
	c := o.Respond(ctx, msg("u1", "Estuve ordenando la casa"), pre)
	assert.False(t, c.Context.Cached)
	assert.Len(t, mock.Calls(), 2)
	assert.Equal(t, int64(2), o.Stats().Usage.Generations)
	assert.Equal(t, 30*time.Second, o.responseTTL())
}

func TestRespondPersonalizedRepliesAreNotShared(t *testing.T) {
	mock := llm.NewMockLLM()
	o := newOrchestrator(t, Deps{Completer: mock}, Options{})
	ctx := context.Background()

	named := reading(domain.EmotionNeutral, 3, domain.CategoryNeutral)
	named.Profile = &domain.UserProfile{UserID: "u1", DisplayName: "Lu"}
	a := o.Respond(ctx, msg("u1", "Hoy salí a caminar por el parque"), named)
	require.False(t, a.Context.Error)

	b := o.Respond(ctx, msg("u2", "Hoy salí a caminar por el parque"), reading(domain.EmotionNeutral, 3, domain.CategoryNeutral))
	assert.False(t, b.Context.Cached)

	again := reading(domain.EmotionNeutral, 3, domain.CategoryNeutral)
	again.Profile = &domain.UserProfile{UserID: "u1", DisplayName: "Lu"}
	c := o.Respond(ctx, msg("u1", "Hoy salí a caminar por el parque"), again)
	assert.False(t, c.Context.Cached)

	require.Len(t, mock.Calls(), 3)
	assert.Contains(t, mock.Calls()[0].Messages[0].Content, "called Lu")
	assert.NotContains(t, mock.Calls()[1].Messages[0].Content, "called Lu")
}

func TestRespondNormalizesHistoryRoles(t *testing.T) {
	mock := llm.NewMockLLM()
	o := newOrchestrator(t, Deps{Completer: mock}, Options{})
	pre := reading(domain.EmotionNeutral, 3, domain.CategoryNeutral)
	pre.History = []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Hola"},
		{Role: domain.RoleAgent, Content: "¡Hola! ¿Cómo estás?"},
		{Role: "friend", Content: "Bien, gracias"},
	}

	resp := o.Respond(context.Background(), msg("u1", "Quería contarte algo"), pre)
	require.False(t, resp.Context.Error)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	var roles []domain.Role
	for _, m := range calls[0].Messages[1:] {
		roles = append(roles, m.Role)
	}
	want := []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleUser}
	if diff := cmp.Diff(want, roles); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestRespondCachesByReading(t *testing.T) {
	mock := llm.NewMockLLM()
	o := newOrchestrator(t, Deps{Completer: mock}, Options{})
	ctx := context.Background()

	a := o.Respond(ctx, msg("u1", "Estuve pensando en cambiar de trabajo"), reading(domain.EmotionNeutral, 3, domain.CategoryNeutral))
	b := o.Respond(ctx, msg("u2", "  estuve pensando en CAMBIAR de trabajo "), reading(domain.EmotionNeutral, 3, domain.CategoryNeutral))
	require.False(t, a.Context.Error)
	assert.False(t, a.Context.Cached)
	assert.True(t, b.Context.Cached)
	assert.Equal(t, a.Content, b.Content)

	// another emotion is another key
	c := o.Respond(ctx, msg("u1", "Estuve pensando en cambiar de trabajo"), reading(domain.EmotionHope, 3, domain.CategoryPositive))
	assert.False(t, c.Context.Cached)

	usage := o.Stats().Usage
	assert.Equal(t, int64(3), usage.Requests)
	assert.Equal(t, int64(1), usage.CacheHits)
	assert.Equal(t, int64(2), usage.Generations)
	assert.Len(t, mock.Calls(), 2)
}

func TestRespondProtocolFlow(t *testing.T) {
	journal := memory.NewJournalStore()
	profiles := memory.NewProfileStore()
	o := newOrchestrator(t, Deps{
		Profiles: profiles,
		Journal:  tools.NewJournalTool(journal),
	}, Options{})
	ctx := context.Background()

	anger, ok := o.Protocols().Get(protocol.Anger)
	require.True(t, ok)
	require.Len(t, anger.Steps, 4)

	pre := reading(domain.EmotionAnger, 7, domain.CategoryNegative)
	for i, step := range anger.Steps {
		resp := o.Respond(ctx, msg("u1", "Estoy furioso con mi jefe"), pre)
		require.False(t, resp.Context.Error, "turn %d", i)
		require.NotNil(t, resp.Context.Protocol)
		assert.Equal(t, protocol.Anger, resp.Context.Protocol.Name)
		assert.Equal(t, step.Step, resp.Context.Protocol.Step)
		assert.False(t, resp.Context.Protocol.Completed)
		assert.Contains(t, resp.Content, step.Intervention)
		assert.False(t, resp.Context.Cached)
	}

	done := o.Respond(ctx, msg("u1", "Ya estoy más tranquilo"), reading(domain.EmotionCalm, 3, domain.CategoryPositive))
	require.NotNil(t, done.Context.Protocol)
	assert.True(t, done.Context.Protocol.Completed)
	assert.Equal(t, 0, o.Stats().ActiveProtocols)

	entries, err := journal.ListJournalEntriesByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, protocol.Anger, entries[0].Protocol)
	assert.Equal(t, string(domain.EmotionCalm), entries[0].MoodAfter)

	rec, err := profiles.GetTherapeuticRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{protocol.Anger}, rec.CompletedProtocols)
	assert.Equal(t, 5, rec.Interactions)
}

func TestRespondProtocolStop(t *testing.T) {
	o := newOrchestrator(t, Deps{}, Options{})
	ctx := context.Background()

	first := o.Respond(ctx, msg("u1", "Estoy furioso con mi jefe"), reading(domain.EmotionAnger, 7, domain.CategoryNegative))
	require.NotNil(t, first.Context.Protocol)

	stopped := o.Respond(ctx, msg("u1", "Quiero parar, dejemos esto"), reading(domain.EmotionNeutral, 3, domain.CategoryNeutral))
	assert.Nil(t, stopped.Context.Protocol)
	assert.Equal(t, 0, o.Stats().ActiveProtocols)
}

func TestRespondSafety(t *testing.T) {
	o := newOrchestrator(t, Deps{}, Options{})
	ctx := context.Background()

	high := o.Respond(ctx, msg("u1", "Estoy harto de todo esto"), reading(domain.EmotionFrustration, 8, domain.CategoryNegative))
	assert.Contains(t, high.Content, safetyCheck)
	assert.NotContains(t, high.Content, crisisResources)

	crisis := o.Respond(ctx, msg("u1", "Estoy harto de todo esto"), reading(domain.EmotionFrustration, 9, domain.CategoryNegative))
	assert.Contains(t, crisis.Content, safetyCheck)
	assert.Contains(t, crisis.Content, crisisResources)
	assert.False(t, crisis.Context.Cached)
}

func TestRespondRecoversFromPanic(t *testing.T) {
	o := newOrchestrator(t, Deps{Completer: panicCompleter{}}, Options{})
	for _, intensity := range []int{3, 9} {
		resp := o.Respond(context.Background(), msg("u1", "Hola, ¿cómo va?"), reading(domain.EmotionNeutral, intensity, domain.CategoryNeutral))
		assert.True(t, resp.Context.Error)
		assert.Equal(t, string(domain.KindUnknown), resp.Context.ErrorType)
		assert.Equal(t, MsgDefault, resp.Content)
	}
}

func TestRespondTechniqueRequest(t *testing.T) {
	profiles := memory.NewProfileStore()
	o := newOrchestrator(t, Deps{Profiles: profiles}, Options{})
	ctx := context.Background()

	pre := reading(domain.EmotionAnxiety, 4, domain.CategoryNegative)
	pre.Contextual.Intent = classify.IntentTechniqueRequest
	resp := o.Respond(ctx, msg("u1", "¿Me enseñás alguna técnica para calmarme?"), pre)
	require.False(t, resp.Context.Error)
	require.NotNil(t, resp.Context.Therapeutic)
	assert.Contains(t, resp.Content, "Te propongo una técnica")

	rec, err := profiles.GetTherapeuticRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, rec.TechniquesUsed, resp.Context.Therapeutic.Technique)
}

func TestRespondSideEffectsThroughQueue(t *testing.T) {
	profiles := memory.NewProfileStore()
	q := tasks.New(8, 1, time.Second)
	o := newOrchestrator(t, Deps{Profiles: profiles, Sentiment: profiles, Tasks: q}, Options{})
	ctx := context.Background()

	pre := reading(domain.EmotionHope, 4, domain.CategoryPositive)
	pre.Contextual.Intent = classify.IntentGoalSetting
	resp := o.Respond(ctx, msg("u1", "Mi meta es salir a correr dos veces por semana"), pre)
	require.False(t, resp.Context.Error)
	require.NoError(t, q.Close(ctx))

	got := profiles.Sentiment("u1")
	require.Len(t, got, 1)
	assert.Equal(t, domain.EmotionHope, got[0].Emotion)

	goals, err := profiles.ListGoals(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "Mi meta es salir a correr dos veces por semana", goals[0].Description)
	assert.Equal(t, int64(3), q.Stats().Completed)
}

func TestRespondJournalKeepsRequestID(t *testing.T) {
	var (
		mu  sync.Mutex
		got []tools.ToolContext
	)
	journal := tools.Func{ToolName: "journal_store", Fn: func(_ context.Context, tctx tools.ToolContext, _ map[string]any) (map[string]any, error) {
		mu.Lock()
		got = append(got, tctx)
		mu.Unlock()
		return nil, nil
	}}
	q := tasks.New(16, 1, time.Second)
	o := newOrchestrator(t, Deps{Journal: journal, Tasks: q}, Options{})
	ctx := observability.WithRequestID(context.Background(), "req-42")

	anger, ok := o.Protocols().Get(protocol.Anger)
	require.True(t, ok)
	for range anger.Steps {
		o.Respond(ctx, msg("u1", "Estoy furioso con mi jefe"), reading(domain.EmotionAnger, 7, domain.CategoryNegative))
	}
	done := o.Respond(ctx, msg("u1", "Ya estoy más tranquilo"), reading(domain.EmotionCalm, 3, domain.CategoryPositive))
	require.NotNil(t, done.Context.Protocol)
	require.True(t, done.Context.Protocol.Completed)
	require.NoError(t, q.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "req-42", got[0].RequestID)
	assert.Equal(t, domain.UserID("u1"), got[0].UserID)
}

func TestBuildRequestCarriesContext(t *testing.T) {
	mock := llm.NewMockLLM()
	o := newOrchestrator(t, Deps{Completer: mock}, Options{Model: "test-model"})
	pre := reading(domain.EmotionSadness, 5, domain.CategoryNegative)
	pre.Profile = &domain.UserProfile{UserID: "u1", DisplayName: "Lu", PreferredStyle: domain.StyleBrief}
	pre.History = []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Hola"},
		{Role: domain.RoleAssistant, Content: "Hola, ¿cómo estás?"},
	}

	resp := o.Respond(context.Background(), msg("u1", "Me siento bajoneada"), pre)
	require.False(t, resp.Context.Error)
	assert.Equal(t, domain.StyleBrief, resp.Context.Contextual.Style)
	assert.Equal(t, PhaseStart, resp.Context.Contextual.Phase)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 4)
	sys := req.Messages[0].Content
	assert.Contains(t, sys, "Style: brief")
	assert.Contains(t, sys, "Emotion: sadness (intensity 5/10")
	assert.Contains(t, sys, "called Lu")
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "Me siento bajoneada"}, req.Messages[3])
}

func TestSelectHistory(t *testing.T) {
	history := []domain.ChatMessage{{Role: domain.RoleUser, Content: "Mi perro se llama Toby y lo extraño"}}
	for i := 1; i < 12; i++ {
		history = append(history, domain.ChatMessage{Role: domain.RoleUser, Content: fmt.Sprintf("relleno %d", i)})
	}

	got := selectHistory(history, "Extraño a Toby", 4)
	want := []domain.ChatMessage{history[0], history[9], history[10], history[11]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("selectHistory mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, selectHistory(history[:3], "x", 10), 3)
	assert.Empty(t, selectHistory([]domain.ChatMessage{{Role: domain.RoleSystem, Content: "sys"}}, "x", 10))
}

func TestPhaseFor(t *testing.T) {
	user := domain.ChatMessage{Role: domain.RoleUser, Content: "x"}
	assert.Equal(t, PhaseStart, phaseFor(nil))
	assert.Equal(t, PhaseExplore, phaseFor([]domain.ChatMessage{user, user}))
	assert.Equal(t, PhaseDeepen, phaseFor([]domain.ChatMessage{user, user, user, user, user, user}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "corto", truncate("corto", 20))
	assert.Equal(t, "Hola mundo."+ellipsis, truncate("Hola mundo. Esto es largo de verdad", 20))
	assert.Equal(t, "abcdefghi"+ellipsis, truncate("abcdefghijklmnopqrstuvwxyz", 10))
}

func TestRepair(t *testing.T) {
	o := newOrchestrator(t, Deps{}, Options{})

	sad := &turn{emotional: domain.EmotionAnalysis{MainEmotion: domain.EmotionSadness, Intensity: 6, Category: domain.CategoryNegative}}
	assert.Equal(t, empathicLeadIns[domain.EmotionSadness]+" ¿Qué pasó hoy?", o.repair(sad, "¿Qué pasó hoy?"))

	calm := &turn{emotional: domain.EmotionAnalysis{MainEmotion: domain.EmotionCalm, Intensity: 3, Category: domain.CategoryPositive}}
	assert.Equal(t, exploratoryLeadIn+" Ok.", o.repair(calm, "Ok."))
	assert.Equal(t, exploratoryLeadIn, o.repair(calm, ""))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, MsgDefault, UserMessage(errors.New("plain")))
	assert.Equal(t, MsgInvalid, UserMessage(domain.NewValidationError("OTHER", "x")))
	assert.Equal(t, MsgRetryLater, UserMessage(fmt.Errorf("wrapped: %w", domain.NewRateLimitError(nil))))
}

func TestResponseKeyNormalizes(t *testing.T) {
	a := ResponseKey("Hola, ¿CÓMO estás?", domain.EmotionNeutral, "greeting", "general")
	b := ResponseKey("hola, ¿cómo estás?", domain.EmotionNeutral, "greeting", "general")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "response:"))
	assert.NotEqual(t, a, ResponseKey("hola, ¿cómo estás?", domain.EmotionJoy, "greeting", "general"))
}
