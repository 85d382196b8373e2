package agentflow

import (
	"github.com/PabloGalante/farum-companion/internal/app/classify"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

// Replies of the local fallback responder, used when generation produced
// nothing usable.
const (
	fallbackGreeting  = "¡Hola! Estoy acá para escucharte. ¿Cómo te sentís hoy?"
	fallbackGratitude = "Gracias a vos por confiar en mí. ¿Hay algo más que quieras compartir?"
	fallbackGoal      = "Me encanta que te propongas algo para vos. ¿Cuál sería un primer paso pequeño que podrías dar esta semana?"
	fallbackQuestion  = "Es una buena pregunta. Contame un poco más sobre qué te la trae ahora, así puedo acompañarte mejor."
	fallbackDefault   = "Te escucho. ¿Podés contarme un poco más sobre lo que estás sintiendo?"
)

var fallbackByEmotion = map[domain.Emotion]string{
	domain.EmotionJoy:       "¡Qué lindo leer eso! ¿Qué fue lo que más disfrutaste?",
	domain.EmotionGratitude: fallbackGratitude,
	domain.EmotionHope:      "Me alegra sentir esa esperanza en lo que contás. ¿Qué te ayudó a llegar hasta acá?",
	domain.EmotionCalm:      "Qué bueno que estés en un momento de calma. ¿Querés aprovecharlo para mirar algo en particular?",
	domain.EmotionNeutral:   fallbackDefault,
}

// fallback answers from local material: intent first, then the template
// library, then a fixed reply per emotion.
func (o *Orchestrator) fallback(t *turn) string {
	e := t.emotional
	switch t.contextual.Intent {
	case classify.IntentGreeting:
		return fallbackGreeting
	case classify.IntentGratitude:
		return fallbackGratitude
	case classify.IntentGoalSetting:
		return fallbackGoal
	case classify.IntentTechniqueRequest:
		// shape appends the technique itself.
		if v, ok := o.templates.Validation(e.MainEmotion, e.Subtype, true); ok {
			return v
		}
		return fallbackDefault
	}

	if t.step != nil {
		// shape rewrites to the step.
		return ""
	}
	if s, ok := o.templates.Build(e.MainEmotion, e.Subtype, t.contextual.Style); ok {
		return s
	}
	if s, ok := fallbackByEmotion[e.MainEmotion]; ok {
		return s
	}
	if t.contextual.Intent == classify.IntentQuestion {
		return fallbackQuestion
	}
	return fallbackDefault
}
