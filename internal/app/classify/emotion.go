package classify

import (
	"regexp"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// EmotionRule maps a pattern to an emotion. Rules are evaluated in slice
// order and the first match wins, so more specific rules go first.
type EmotionRule struct {
	Emotion       domain.Emotion
	Pattern       *regexp.Regexp
	BaseIntensity int
	Category      domain.Category
}

// DefaultEmotionRules is the built-in rule table, in priority order.
func DefaultEmotionRules() []EmotionRule {
	neg, pos, neu := domain.CategoryNegative, domain.CategoryPositive, domain.CategoryNeutral
	return []EmotionRule{
		{domain.EmotionAnxiety, rx(`\b(ataques? de panico|crisis de panico|panico|no puedo respirar|me falta el aire|me ahogo|taquicardia)\b`), 8, neg},
		{domain.EmotionAnxiety, rx(`\b(ansiedad|ansios[oa]s?|nervios[oa]s?|nervios|preocupad[oa]s?|preocupacion(es)?|angustia(d[oa])?|inquiet[oa]|estresad[oa]|estres|agobiad[oa]|agobio|intranquil[oa])\b`), 6, neg},
		{domain.EmotionSadness, rx(`\b(triste|tristeza|deprimid[oa]|depresion|desanimad[oa]|vaci[oa]|lloro|llorar|llorando|sin ganas|desesperanza(d[oa])?|melancoli(a|c[oa])|nada tiene sentido|abatid[oa])\b`), 6, neg},
		{domain.EmotionGuilt, rx(`\b(culpa|culpable|me arrepiento|arrepentid[oa]|remordimientos?)\b`), 6, neg},
		{domain.EmotionShame, rx(`\b(verguenza|avergonzad[oa]|humillad[oa]|me odio|soy un fracaso|soy una fracasada|no valgo nada|no sirvo para nada|soy inutil)\b`), 6, neg},
		{domain.EmotionLoneliness, rx(`\b(me siento sol[oa]|estoy sol[oa]|soledad|aislad[oa]|nadie me (entiende|quiere|escucha)|abandonad[oa]|no tengo a nadie)\b`), 6, neg},
		{domain.EmotionAnger, rx(`\b(enojad[oa]|enojo|furios[oa]|rabia|ira|molest[oa]|irritad[oa]|odio|bronca|indignad[oa]|cabread[oa])\b`), 6, neg},
		{domain.EmotionFear, rx(`\b(miedo|asustad[oa]|aterrad[oa]|aterroriza(d[oa])?|temor|pavor|terror)\b`), 6, neg},
		{domain.EmotionFrustration, rx(`\b(frustrad[oa]|frustracion|frustrante|hart[oa]|cansad[oa] de|no me sale nada)\b`), 5, neg},
		{domain.EmotionConfusion, rx(`\b(confundid[oa]|confusion|no se que hacer|no entiendo|perdid[oa])\b`), 4, neu},
		{domain.EmotionJoy, rx(`\b(feliz|contento|contenta|alegre|alegria|emocionad[oa]|genial|increible|maravillos[oa])\b`), 6, pos},
		{domain.EmotionGratitude, rx(`\b(gracias|agradecid[oa]|agradezco)\b`), 5, pos},
		{domain.EmotionHope, rx(`\b(esperanza(d[oa])?|optimista|motivad[oa]|ilusionad[oa]|con ganas)\b`), 5, pos},
		{domain.EmotionCalm, rx(`\b(tranquil[oa]|en paz|relajad[oa]|seren[oa]|calmad[oa])\b`), 3, pos},
	}
}

const (
	neutralIntensity    = 4
	matchConfidence     = 0.8
	noMatchConfidence   = 0.4
	firstPersonBonus    = 0.1
	longMessageWords    = 40
	historyWindow       = 5
	historyTrendMargin  = 2.0
	attentionIntensity  = 7
	intensifierModifier = 2
)

var (
	intensifiers = rx(`\b(muy|mucho|muchisimo|muchisima|demasiad[oa]|extremadamente|super|totalmente|completamente|terriblemente|horrible|terrible|insoportable|no aguanto|no puedo mas)\b`)
	diminishers  = rx(`\b(un poco|un poquito|algo|ligeramente|apenas|levemente|medio)\b`)
	firstPerson  = rx(`\b(me siento|siento que|me estoy sintiendo|estoy sintiendo|me encuentro|me pongo)\b`)
)

// EmotionClassifier is the ordered-rule emotion classifier.
type EmotionClassifier struct {
	rules []EmotionRule
}

// NewEmotionClassifier builds a classifier over rules, or over the default
// table when rules is nil.
func NewEmotionClassifier(rules []EmotionRule) *EmotionClassifier {
	if rules == nil {
		rules = DefaultEmotionRules()
	}
	return &EmotionClassifier{rules: rules}
}

// Classify reads text and, optionally, the analyses of previous messages
// (oldest first). It never returns an intensity outside [1,10].
func (c *EmotionClassifier) Classify(text string, history []domain.EmotionAnalysis) domain.EmotionAnalysis {
	norm := Normalize(text)

	out := domain.EmotionAnalysis{
		MainEmotion:    domain.EmotionNeutral,
		Category:       domain.CategoryNeutral,
		Intensity:      neutralIntensity,
		Confidence:     noMatchConfidence,
		IntensityTrend: domain.IntensityStable,
	}

	winner := -1
	for i, r := range c.rules {
		if r.Pattern.MatchString(norm) {
			winner = i
			break
		}
	}

	if winner >= 0 {
		r := c.rules[winner]
		out.MainEmotion = r.Emotion
		out.Category = r.Category
		out.Confidence = matchConfidence
		out.Intensity = adjustIntensity(r.BaseIntensity, norm)
		out.Secondary = c.secondary(norm, winner)
	}

	if firstPerson.MatchString(norm) {
		out.Confidence += firstPersonBonus
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}

	if winner >= 0 && len(history) > 0 {
		out.Intensity, out.IntensityTrend = adjustForHistory(out.Intensity, history)
	}

	out.Intensity = domain.ClampIntensity(out.Intensity)
	out.RequiresAttention = out.Category == domain.CategoryNegative && out.Intensity >= attentionIntensity
	return out
}

func adjustIntensity(base int, norm string) int {
	v := base
	switch {
	case intensifiers.MatchString(norm):
		v = domain.ClampIntensity(v + intensifierModifier)
	case diminishers.MatchString(norm):
		v = domain.ClampIntensity(v - intensifierModifier)
	}
	if WordCount(norm) > longMessageWords {
		v = domain.ClampIntensity(v + 1)
	}
	return v
}

func (c *EmotionClassifier) secondary(norm string, winner int) []domain.Emotion {
	main := c.rules[winner].Emotion
	seen := map[domain.Emotion]bool{main: true}

	var out []domain.Emotion
	for i, r := range c.rules {
		if i == winner || seen[r.Emotion] {
			continue
		}
		if r.Pattern.MatchString(norm) {
			seen[r.Emotion] = true
			out = append(out, r.Emotion)
		}
	}
	return out
}

func adjustForHistory(current int, history []domain.EmotionAnalysis) (int, string) {
	window := history
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}

	sum := 0
	for _, a := range window {
		sum += a.Intensity
	}
	avg := float64(sum) / float64(len(window))

	switch diff := float64(current) - avg; {
	case diff > historyTrendMargin:
		return domain.ClampIntensity(current + 1), domain.IntensityIncreasing
	case diff < -historyTrendMargin:
		return domain.ClampIntensity(current - 1), domain.IntensityDecreasing
	default:
		return current, domain.IntensityStable
	}
}
