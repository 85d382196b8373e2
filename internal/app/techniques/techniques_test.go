package techniques

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

func TestSelect(t *testing.T) {
	c := Default()

	tests := []struct {
		name    string
		emotion domain.Emotion
		subtype string
		exclude []string
		wantID  string
	}{
		{"emotion only", domain.EmotionAnger, "", nil, "respiracion_4_7_8"},
		{"subtype wins", domain.EmotionAnxiety, "generalized", nil, "registro_de_pensamientos"},
		{"depression", domain.EmotionSadness, "depression", nil, "activacion_conductual"},
		{"exclude used", domain.EmotionAnger, "", []string{"Respiración 4-7-8"}, "tiempo_fuera"},
		{"positive", domain.EmotionJoy, "", nil, "tres_cosas_buenas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Select(tt.emotion, tt.subtype, tt.exclude)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSelectAllExcludedStillReturnsOne(t *testing.T) {
	c, err := New([]Technique{{ID: "a", Name: "A", Steps: []string{"x"}, Emotions: []domain.Emotion{domain.EmotionFear}}})
	require.NoError(t, err)

	got, ok := c.Select(domain.EmotionFear, "", []string{"A"})
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = c.Select(domain.EmotionJoy, "", nil)
	assert.False(t, ok)
}

func TestNewValidates(t *testing.T) {
	_, err := New([]Technique{
		{ID: "a", Name: "A", Steps: []string{"x"}, Emotions: []domain.Emotion{domain.EmotionFear}},
		{ID: "a", Name: "B", Steps: []string{"x"}, Emotions: []domain.Emotion{domain.EmotionFear}},
		{ID: "c", Name: "C"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
	assert.Contains(t, err.Error(), "needs steps")
}

func TestRenderAndInfo(t *testing.T) {
	tech, ok := Default().Get("tiempo_fuera")
	require.True(t, ok)

	out := tech.Render()
	assert.True(t, strings.HasPrefix(out, "Te propongo una técnica: Tiempo fuera."))
	assert.Contains(t, out, "\n3. ")

	info := tech.Info()
	assert.Equal(t, "Tiempo fuera", info.Technique)
	assert.Equal(t, "behavioral", info.Type)
	assert.Equal(t, "regulation", info.Category)
}
