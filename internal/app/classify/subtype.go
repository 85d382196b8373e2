package classify

import (
	"regexp"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// Subtype labels refine a primary emotion.
const (
	SubtypePanic          = "panic"
	SubtypeGeneralized    = "generalized"
	SubtypeSocial         = "social"
	SubtypeHealth         = "health"
	SubtypePerformance    = "performance"
	SubtypeOCD            = "ocd"
	SubtypeGrief          = "grief"
	SubtypeDepression     = "depression"
	SubtypeLoneliness     = "loneliness"
	SubtypeDisappointment = "disappointment"
	SubtypeSelfCriticism  = "self_criticism"
	SubtypeInjustice      = "injustice"
	SubtypeInterpersonal  = "interpersonal"
	SubtypeSelfBlame      = "self_blame"
	SubtypeRegret         = "regret"
	SubtypeTrauma         = "trauma"
	SubtypeFuture         = "future"
	SubtypeIsolation      = "social_isolation"
	SubtypeMisunderstood  = "misunderstood"
	SubtypeSleep          = "sleep"
)

// SubtypeRule is one (subtype, pattern) entry under an emotion.
type SubtypeRule struct {
	Subtype string
	Pattern *regexp.Regexp
}

// DefaultSubtypeRules is the built-in nested table. Order inside each
// emotion is the match priority.
func DefaultSubtypeRules() map[domain.Emotion][]SubtypeRule {
	return map[domain.Emotion][]SubtypeRule{
		domain.EmotionAnxiety: {
			{SubtypePanic, rx(`\b(panico|no puedo respirar|me falta el aire|me ahogo|taquicardia|el corazon (me )?late)\b`)},
			{SubtypeOCD, rx(`\b(obsesion(es)?|obsesiv[oa]|pensamientos intrusivos|compulsi(on|vo|va)|revis(o|ar) una y otra vez|rituales?)\b`)},
			{SubtypeSleep, rx(`\b(no puedo dormir|insomnio|no duermo|desvelad[oa]|me desvelo)\b`)},
			{SubtypeSocial, rx(`\b(gente|en publico|hablar en|reuniones?|fiestas?|me juzgan|que piensen)\b`)},
			{SubtypePerformance, rx(`\b(examen(es)?|entrevista|presentacion|rendimiento|evaluacion)\b`)},
			{SubtypeHealth, rx(`\b(enfermedad|enferm[oa]|sintomas?|diagnostico)\b`)},
			{SubtypeGeneralized, rx(`\b(todo el tiempo|todo me preocupa|constantemente|siempre (estoy )?preocupad[oa]|por todo|no paro de pensar)\b`)},
		},
		domain.EmotionSadness: {
			{SubtypeGrief, rx(`\b(murio|fallecio|perdi a|duelo|extrano a|ya no esta)\b`)},
			{SubtypeSelfCriticism, rx(`\b(me odio|soy un fracaso|no valgo|no sirvo|soy inutil|todo lo hago mal)\b`)},
			{SubtypeDepression, rx(`\b(sin ganas|nada tiene sentido|vaci[oa]|no disfruto|depresion|deprimid[oa]|no quiero levantarme)\b`)},
			{SubtypeLoneliness, rx(`\b(sol[oa]|nadie|soledad)\b`)},
			{SubtypeDisappointment, rx(`\b(decepcion|decepcionad[oa]|desilusion)\b`)},
			{SubtypeSleep, rx(`\b(no puedo dormir|insomnio|no duermo)\b`)},
		},
		domain.EmotionAnger: {
			{SubtypeInjustice, rx(`\b(injust[oa]|injusticia|no es justo)\b`)},
			{SubtypeInterpersonal, rx(`\b(me grito|me falto el respeto|me trato|me insulto|mi jefe|mi pareja)\b`)},
		},
		domain.EmotionGuilt: {
			{SubtypeSelfBlame, rx(`\b(es mi culpa|todo es mi culpa|por mi culpa|soy culpable|yo tuve la culpa)\b`)},
			{SubtypeRegret, rx(`\b(me arrepiento|deberia haber|si hubiera)\b`)},
		},
		domain.EmotionShame: {
			{SubtypeSelfCriticism, rx(`\b(me odio|soy un fracaso|soy una fracasada|no valgo|no sirvo|soy inutil|todo lo hago mal)\b`)},
		},
		domain.EmotionFear: {
			{SubtypeTrauma, rx(`\b(trauma|traumatic[oa]|flashbacks?|pesadillas?|abuso|accidente|lo revivo|revivo)\b`)},
			{SubtypeFuture, rx(`\b(futuro|que va a pasar|que pasara|manana)\b`)},
		},
		domain.EmotionLoneliness: {
			{SubtypeMisunderstood, rx(`\b(no me entiende(n)?|incomprendid[oa])\b`)},
			{SubtypeIsolation, rx(`\b(nadie|aislad[oa]|no tengo a nadie|sin amigos)\b`)},
		},
	}
}

// SubtypeClassifier refines an emotion with the nested rule table.
type SubtypeClassifier struct {
	rules map[domain.Emotion][]SubtypeRule
}

func NewSubtypeClassifier(rules map[domain.Emotion][]SubtypeRule) *SubtypeClassifier {
	if rules == nil {
		rules = DefaultSubtypeRules()
	}
	return &SubtypeClassifier{rules: rules}
}

// Classify returns the first matching subtype of emotion, or "" when the
// emotion has no table or nothing matches.
func (c *SubtypeClassifier) Classify(emotion domain.Emotion, text string) string {
	table, ok := c.rules[emotion]
	if !ok {
		return ""
	}
	norm := Normalize(text)
	for _, r := range table {
		if r.Pattern.MatchString(norm) {
			return r.Subtype
		}
	}
	return ""
}
