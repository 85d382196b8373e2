package agentflow

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/farum-companion/internal/app/classify"
	"github.com/PabloGalante/farum-companion/internal/app/protocol"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

const (
	ellipsis = "…"

	// Replies shorter than this carry too little to stand on their own.
	minReplyRunes = 25
	// A bridge longer than this is a full answer, not a lead-in.
	maxBridgeRunes = 320
	// Negative readings from this intensity on need an explicit validation.
	coherenceIntensity = 5
	templateIntensity  = 6
)

// Patterns run over classify.Normalize output.
var (
	empathyMarkers = regexp.MustCompile(`\b(entiendo|comprendo|te escucho|escucharte|tiene sentido|es normal|es comprensible|es valido|lamento|siento mucho|que dificil|debe ser|gracias por contarme|gracias por compartir)\b`)
	genericReply   = regexp.MustCompile(`^(ok|okay|vale|entiendo|de acuerdo|claro|bien|lo siento)[.!]*$|como (modelo|asistente) de (lenguaje|ia)|no puedo ayudarte con eso|no tengo (sentimientos|emociones)`)
)

const (
	exploratoryLeadIn = "Me gustaría entender mejor lo que estás viviendo."
	safetyCheck       = "Quiero preguntarte algo importante: ¿estás a salvo en este momento? Si sentís que podrías hacerte daño, por favor buscá ayuda ahora con alguien de confianza."
	crisisResources   = "Si estás en peligro, llamá al número de emergencias de tu país (911 en Argentina, 112 en España) o a una línea de prevención del suicidio (135 en Buenos Aires). No estás solo/a."
)

var empathicLeadIns = map[domain.Emotion]string{
	domain.EmotionAnxiety:     "Entiendo que estés sintiendo tanta ansiedad.",
	domain.EmotionSadness:     "Lamento que estés pasando por esta tristeza.",
	domain.EmotionAnger:       "Es comprensible que te sientas así de enojado/a.",
	domain.EmotionFear:        "Tiene sentido que sientas miedo con lo que estás viviendo.",
	domain.EmotionGuilt:       "Entiendo que la culpa pese mucho en este momento.",
	domain.EmotionShame:       "Gracias por contarme algo tan difícil; la vergüenza duele.",
	domain.EmotionLoneliness:  "Lamento que te sientas tan solo/a.",
	domain.EmotionFrustration: "Entiendo que esto te tenga frustrado/a.",
}

const defaultEmpathicLeadIn = "Entiendo que esto no es fácil para vos."

func isGeneric(s string) bool {
	norm := classify.Normalize(s)
	return utf8.RuneCountInString(norm) < minReplyRunes || genericReply.MatchString(norm)
}

func hasEmpathy(s string) bool {
	return empathyMarkers.MatchString(classify.Normalize(s))
}

// withTemplate prepends a validation phrase to strong negative readings
// whose reply does not already validate.
func (o *Orchestrator) withTemplate(t *turn, content string) string {
	e := t.emotional
	if e.Category != domain.CategoryNegative || e.Intensity < templateIntensity || hasEmpathy(content) {
		return content
	}
	v, ok := o.templates.Validation(e.MainEmotion, e.Subtype, t.contextual.Style == domain.StyleBrief)
	if !ok || v == "" {
		return content
	}
	return v + " " + content
}

// rewriteForStep makes the reply deliver the current protocol step: the
// first paragraph of the generated text survives as a bridge when it is
// worth keeping.
func rewriteForStep(reply string, step protocol.Step) string {
	if strings.Contains(classify.Normalize(reply), classify.Normalize(step.Intervention)) {
		return reply
	}
	bridge := firstParagraph(reply)
	if bridge == "" || isGeneric(bridge) || utf8.RuneCountInString(bridge) > maxBridgeRunes {
		return step.Intervention
	}
	return bridge + "\n\n" + step.Intervention
}

func firstParagraph(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// repair validates length, genericity and emotional coherence, fixing what
// it can.
func (o *Orchestrator) repair(t *turn, content string) string {
	content = strings.TrimSpace(content)
	e := t.emotional

	switch {
	case e.Category == domain.CategoryNegative && e.Intensity >= coherenceIntensity && !hasEmpathy(content):
		content = joinLeadIn(empathicLeadIn(e.MainEmotion), content)
	case content == "" || isGeneric(content):
		content = joinLeadIn(exploratoryLeadIn, content)
	}

	return truncate(content, o.opts.MaxResponseLength)
}

func empathicLeadIn(e domain.Emotion) string {
	if s, ok := empathicLeadIns[e]; ok {
		return s
	}
	return defaultEmpathicLeadIn
}

func joinLeadIn(leadIn, content string) string {
	if content == "" {
		return leadIn
	}
	return leadIn + " " + content
}

// truncate cuts s to at most limit runes, preferring a sentence boundary
// and then a word boundary, and marks the cut with an ellipsis.
func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	cut := r[:limit-1]

	end := -1
	for i := len(cut) - 1; i >= len(cut)/2; i-- {
		if c := cut[i]; c == '.' || c == '!' || c == '?' || c == '\n' {
			end = i + 1
			break
		}
	}
	if end < 0 {
		for i := len(cut) - 1; i >= len(cut)/2; i-- {
			if cut[i] == ' ' {
				end = i
				break
			}
		}
	}
	if end > 0 {
		cut = cut[:end]
	}
	return strings.TrimRight(string(cut), " \n") + ellipsis
}

// withSafety appends the safety check and crisis resources for high
// intensities.
func withSafety(content string, intensity int) string {
	if intensity >= safetyIntensity && !strings.Contains(content, safetyCheck) {
		content += "\n\n" + safetyCheck
	}
	if intensity >= resourcesIntensity && !strings.Contains(content, crisisResources) {
		content += "\n\n" + crisisResources
	}
	return content
}
