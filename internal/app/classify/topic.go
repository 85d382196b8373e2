package classify

import (
	"regexp"
	"sort"
	"strings"
)

// TopicGeneral is returned when no topic scores.
const TopicGeneral = "general"

// TopicRule scores one topic of the taxonomy.
type TopicRule struct {
	Topic    string
	Patterns []*regexp.Regexp
	Keywords []string
}

// DefaultTopicRules is the fixed taxonomy, in tie-break order.
func DefaultTopicRules() []TopicRule {
	return []TopicRule{
		{
			Topic: "relaciones",
			Patterns: []*regexp.Regexp{
				rx(`\bmi (pareja|novi[oa]|espos[oa]|marido|mujer|ex)\b`),
				rx(`\b(rompimos|terminamos|ruptura|separacion|divorcio|nos peleamos)\b`),
			},
			Keywords: []string{"pareja", "novio", "novia", "relacion", "discusion", "celos", "amistad", "amigo", "amiga"},
		},
		{
			Topic: "trabajo",
			Patterns: []*regexp.Regexp{
				rx(`\bmi (jefe|jefa|trabajo|empleo|oficina)\b`),
				rx(`\b(me despidieron|renunciar|despido|ascenso)\b`),
			},
			Keywords: []string{"trabajo", "jefe", "jefa", "companer", "oficina", "empleo", "reunion", "proyecto", "sueldo"},
		},
		{
			Topic: "familia",
			Patterns: []*regexp.Regexp{
				rx(`\bmi (madre|padre|mama|papa|herman[oa]|hij[oa]s?|familia|abuel[oa])\b`),
			},
			Keywords: []string{"familia", "madre", "padre", "mama", "papa", "hermano", "hermana", "hijo", "hija"},
		},
		{
			Topic: "salud",
			Patterns: []*regexp.Regexp{
				rx(`\b(me duele|dolor de|estoy enferm[oa]|diagnostico|el medico|la medica)\b`),
			},
			Keywords: []string{"salud", "enfermedad", "dolor", "medico", "hospital", "sintoma", "medicacion"},
		},
		{
			Topic: "estudios",
			Patterns: []*regexp.Regexp{
				rx(`\b(examen(es)?|parcial(es)?|la facultad|la universidad|el colegio)\b`),
			},
			Keywords: []string{"estudio", "examen", "universidad", "facultad", "colegio", "profesor", "materia", "tesis"},
		},
		{
			Topic: "autoestima",
			Patterns: []*regexp.Regexp{
				rx(`\b(no valgo|me odio|soy un fracaso|no sirvo|no soy suficiente)\b`),
			},
			Keywords: []string{"autoestima", "inseguridad", "insegur", "fracaso", "suficiente", "aspecto", "cuerpo"},
		},
		{
			Topic: "finanzas",
			Patterns: []*regexp.Regexp{
				rx(`\b(no llego a fin de mes|deudas?|no tengo plata|no tengo dinero)\b`),
			},
			Keywords: []string{"dinero", "plata", "deuda", "alquiler", "pagar", "cuentas", "ahorro"},
		},
		{
			Topic: "duelo",
			Patterns: []*regexp.Regexp{
				rx(`\b(murio|fallecio|perdi a|ya no esta|funeral|velorio)\b`),
			},
			Keywords: []string{"duelo", "muerte", "perdida", "extrano", "fallec"},
		},
		{
			Topic: "descanso",
			Patterns: []*regexp.Regexp{
				rx(`\b(no puedo dormir|insomnio|no duermo|me desvelo|pesadillas?)\b`),
			},
			Keywords: []string{"dormir", "sueno", "cansancio", "descanso", "noche"},
		},
	}
}

// TopicScore is one entry of a ranked topic list.
type TopicScore struct {
	Topic string
	Score int
}

// TopicClassifier scores text against the taxonomy.
type TopicClassifier struct {
	rules []TopicRule
}

func NewTopicClassifier(rules []TopicRule) *TopicClassifier {
	if rules == nil {
		rules = DefaultTopicRules()
	}
	return &TopicClassifier{rules: rules}
}

// Classify returns the best scoring topic, or TopicGeneral.
func (c *TopicClassifier) Classify(text string) string {
	ranked := c.Rank(text)
	if len(ranked) == 0 {
		return TopicGeneral
	}
	return ranked[0].Topic
}

// Rank returns every topic with a positive score, best first. Equal scores
// keep taxonomy order.
func (c *TopicClassifier) Rank(text string) []TopicScore {
	norm := Normalize(text)

	var out []TopicScore
	for _, r := range c.rules {
		score := 0
		for _, p := range r.Patterns {
			score += 2 * len(p.FindAllStringIndex(norm, -1))
		}
		for _, kw := range r.Keywords {
			if strings.Contains(norm, kw) {
				score++
			}
		}
		if score > 0 {
			out = append(out, TopicScore{Topic: r.Topic, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Topics flattens a ranking to its labels.
func Topics(ranked []TopicScore) []string {
	out := make([]string, 0, len(ranked))
	for _, t := range ranked {
		out = append(out, t.Topic)
	}
	return out
}
