package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-companion/internal/app/classify"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

func TestDefaultRegistryIsValid(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{
		Panic, Depression, Anxiety, Anger, Guilt,
		Loneliness, SelfCompassion, Sleep, Trauma, OCD,
	}, r.Names())

	for _, p := range r.All() {
		require.NotEmpty(t, p.Steps, p.Name)
		assert.True(t, p.Steps[len(p.Steps)-1].Terminal(), p.Name)
	}
}

func TestNewRegistryRejectsBrokenProtocols(t *testing.T) {
	bad := 7
	self := 1
	tests := []struct {
		name string
		p    Protocol
	}{
		{"no steps", Protocol{Name: "x"}},
		{"misnumbered", Protocol{Name: "x", Steps: []Step{{Step: 2, Name: "a", Intervention: "b", Description: "c"}}}},
		{"dangling next", Protocol{Name: "x", Steps: []Step{{Step: 1, Name: "a", Intervention: "b", Description: "c", NextStep: &bad}}}},
		{"self loop", Protocol{Name: "x", Steps: []Step{{Step: 1, Name: "a", Intervention: "b", Description: "c", NextStep: &self}}}},
		{"empty text", Protocol{Name: "x", Steps: linear([3]string{"a", "", "c"})}},
		{"two terminals", Protocol{Name: "x", Steps: []Step{
			{Step: 1, Name: "a", Intervention: "b", Description: "c"},
			{Step: 2, Name: "a", Intervention: "b", Description: "c"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry([]Protocol{tt.p})
			assert.Error(t, err)
		})
	}

	_, err := NewRegistry([]Protocol{
		{Name: "dup", Steps: linear([3]string{"a", "b", "c"})},
		{Name: "dup", Steps: linear([3]string{"a", "b", "c"})},
	})
	assert.ErrorContains(t, err, "duplicate")
}

func TestStartUnknownProtocol(t *testing.T) {
	e := NewEngine(DefaultRegistry())

	st, ok := e.Start("u1", "nope")
	assert.False(t, ok)
	assert.Nil(t, st)
	_, ok = e.Active("u1")
	assert.False(t, ok)
}

func TestAdvanceThroughEveryProtocol(t *testing.T) {
	r := DefaultRegistry()
	for _, p := range r.All() {
		t.Run(p.Name, func(t *testing.T) {
			e := NewEngine(r)
			st, ok := e.Start("u1", p.Name)
			require.True(t, ok)
			assert.Equal(t, 1, st.CurrentStep)

			n := len(p.Steps)
			for i := 1; i < n; i++ {
				step, ok := e.Advance("u1")
				require.True(t, ok, "advance %d", i)
				assert.Equal(t, i+1, step.Step)
			}

			_, ok = e.Advance("u1")
			assert.False(t, ok, "advance %d completes the protocol", n)
			_, ok = e.Active("u1")
			assert.False(t, ok)
			_, ok = e.CurrentIntervention("u1")
			assert.False(t, ok)
		})
	}
}

func TestReturnedStateIsACopy(t *testing.T) {
	e := NewEngine(DefaultRegistry())
	st, ok := e.Start("u1", Anger)
	require.True(t, ok)

	st.CurrentStep = 99
	st.Steps[0].Intervention = "mutated"

	cur, ok := e.CurrentIntervention("u1")
	require.True(t, ok)
	assert.Equal(t, 1, cur.Step)
	assert.NotEqual(t, "mutated", cur.Intervention)
}

func TestStopAndEvictIdle(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	e := NewEngine(DefaultRegistry(), WithClock(func() time.Time { return now }))

	e.Start("stale", Sleep)
	now = now.Add(3 * time.Hour)
	e.Start("fresh", Sleep)
	e.Start("quitter", Anger)

	assert.True(t, e.Stop("quitter"))
	assert.False(t, e.Stop("quitter"))
	assert.Equal(t, 2, e.Len())

	assert.Equal(t, 1, e.EvictIdle(time.Hour))
	_, ok := e.Active("stale")
	assert.False(t, ok)
	_, ok = e.Active("fresh")
	assert.True(t, ok)
}

func TestAdvanceKeepsStateAlive(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	e := NewEngine(DefaultRegistry(), WithClock(func() time.Time { return now }))

	e.Start("u1", Panic)
	now = now.Add(50 * time.Minute)
	_, ok := e.Advance("u1")
	require.True(t, ok)
	now = now.Add(50 * time.Minute)

	assert.Equal(t, 0, e.EvictIdle(time.Hour))
}

func TestShouldStart(t *testing.T) {
	e := NewEngine(DefaultRegistry())

	tests := []struct {
		name      string
		emotion   domain.Emotion
		intensity int
		subtype   string
		text      string
		want      string
	}{
		{"panic by subtype", domain.EmotionAnxiety, 8, classify.SubtypePanic, "", Panic},
		{"panic needs intensity", domain.EmotionAnxiety, 5, classify.SubtypePanic, "", ""},
		{"depression by subtype", domain.EmotionSadness, 7, classify.SubtypeDepression, "", Depression},
		{"depression by keyword", domain.EmotionFrustration, 8, "", "Nada tiene sentido", Depression},
		{"generalized anxiety", domain.EmotionAnxiety, 6, classify.SubtypeGeneralized, "", Anxiety},
		{"anger", domain.EmotionAnger, 8, "", "", Anger},
		{"guilt", domain.EmotionGuilt, 6, classify.SubtypeSelfBlame, "", Guilt},
		{"loneliness", domain.EmotionLoneliness, 6, "", "", Loneliness},
		{"self criticism", domain.EmotionShame, 6, classify.SubtypeSelfCriticism, "", SelfCompassion},
		{"sleep", domain.EmotionAnxiety, 5, classify.SubtypeSleep, "", Sleep},
		{"trauma", domain.EmotionFear, 7, classify.SubtypeTrauma, "", Trauma},
		{"ocd", domain.EmotionAnxiety, 5, classify.SubtypeOCD, "", OCD},
		{"nothing for joy", domain.EmotionJoy, 9, "", "Estoy feliz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.ShouldStart(tt.emotion, tt.intensity, tt.subtype, tt.text)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldStartPanicOutranksDepression(t *testing.T) {
	e := NewEngine(DefaultRegistry())
	text := "Tengo un ataque de pánico y siento que nada tiene sentido"

	in := NewTriggerInput(domain.EmotionAnxiety, 9, classify.SubtypePanic, text)
	triggers := DefaultTriggers()
	require.True(t, triggers[0].Match(in))
	require.True(t, triggers[1].Match(in), "both rules apply")

	got, ok := e.ShouldStart(domain.EmotionAnxiety, 9, classify.SubtypePanic, text)
	require.True(t, ok)
	assert.Equal(t, Panic, got)
}

func TestShouldStartSkipsUnregisteredProtocols(t *testing.T) {
	r, err := NewRegistry([]Protocol{{Name: Anger, Steps: linear([3]string{"a", "b", "c"})}})
	require.NoError(t, err)
	e := NewEngine(r)

	_, ok := e.ShouldStart(domain.EmotionAnxiety, 9, classify.SubtypePanic, "")
	assert.False(t, ok)
	got, ok := e.ShouldStart(domain.EmotionAnger, 9, "", "")
	require.True(t, ok)
	assert.Equal(t, Anger, got)
}

func TestPanicScenario(t *testing.T) {
	const text = "Estoy teniendo un ataque de pánico, no puedo respirar"
	analysis := classify.NewEmotionClassifier(nil).Classify(text, nil)
	subtype := classify.NewSubtypeClassifier(nil).Classify(analysis.MainEmotion, text)

	require.Equal(t, domain.EmotionAnxiety, analysis.MainEmotion)
	require.GreaterOrEqual(t, analysis.Intensity, 8)

	e := NewEngine(DefaultRegistry())
	name, ok := e.ShouldStart(analysis.MainEmotion, analysis.Intensity, subtype, text)
	require.True(t, ok)
	require.Equal(t, Panic, name)

	_, ok = e.Start("u1", name)
	require.True(t, ok)
	step, ok := e.CurrentIntervention("u1")
	require.True(t, ok)
	assert.Equal(t, 1, step.Step)
	assert.Equal(t, "validacion_grounding", step.Name)
}

func TestWantsToStop(t *testing.T) {
	assert.True(t, WantsToStop("Quiero parar, gracias"))
	assert.False(t, WantsToStop("Sigo con ansiedad"))
}
