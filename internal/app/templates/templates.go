// Package templates holds the canned validation, psychoeducation and
// follow-up question fragments used to frame replies.
package templates

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// BriefMaxRunes bounds the phrases preferred for brief replies.
const BriefMaxRunes = 90

// Key identifies an entry. An empty Subtype is the emotion-level entry.
type Key struct {
	Emotion domain.Emotion
	Subtype string
}

// Entry holds the alternatives for each fragment kind.
type Entry struct {
	Validation      []string `yaml:"validation"`
	Psychoeducation []string `yaml:"psychoeducation"`
	Question        []string `yaml:"question"`
}

// Library is an immutable, validated template table.
type Library struct {
	entries map[Key]Entry
	pick    func(n int) int
}

// Option configures a Library.
type Option func(*Library)

// WithPicker replaces the random choice among alternatives; pick(n) must
// return a value in [0,n).
func WithPicker(pick func(n int) int) Option {
	return func(l *Library) { l.pick = pick }
}

// New validates entries: every entry needs at least one phrase of each kind.
func New(entries map[Key]Entry, opts ...Option) (*Library, error) {
	l := &Library{entries: make(map[Key]Entry, len(entries)), pick: rand.IntN}
	var errs []error
	for k, e := range entries {
		if len(e.Validation) == 0 || len(e.Psychoeducation) == 0 || len(e.Question) == 0 {
			errs = append(errs, fmt.Errorf("templates: %s/%s is missing a fragment kind", k.Emotion, k.Subtype))
			continue
		}
		l.entries[k] = e
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Default returns the built-in library.
func Default(opts ...Option) *Library {
	l, err := New(DefaultEntries(), opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// Lookup finds the entry for (emotion, subtype), falling back to the
// emotion-level entry.
func (l *Library) Lookup(emotion domain.Emotion, subtype string) (Entry, bool) {
	if subtype != "" {
		if e, ok := l.entries[Key{emotion, subtype}]; ok {
			return e, true
		}
	}
	e, ok := l.entries[Key{emotion, ""}]
	return e, ok
}

// Build assembles a framing text for the given style. Brief is validation
// plus question, deep puts all three fragments on their own lines, anything
// else is validation and psychoeducation followed by the question on a new
// line. It returns false when there is no entry.
func (l *Library) Build(emotion domain.Emotion, subtype string, style domain.ResponseStyle) (string, bool) {
	e, ok := l.Lookup(emotion, subtype)
	if !ok {
		return "", false
	}

	switch style {
	case domain.StyleBrief:
		return l.choose(e.Validation, true) + " " + l.choose(e.Question, true), true
	case domain.StyleDeep:
		return strings.Join([]string{
			l.choose(e.Validation, false),
			l.choose(e.Psychoeducation, false),
			l.choose(e.Question, false),
		}, "\n"), true
	default:
		return l.choose(e.Validation, false) + " " + l.choose(e.Psychoeducation, false) +
			"\n" + l.choose(e.Question, false), true
	}
}

// Validation returns one validation phrase for the entry, if any.
func (l *Library) Validation(emotion domain.Emotion, subtype string, brief bool) (string, bool) {
	e, ok := l.Lookup(emotion, subtype)
	if !ok {
		return "", false
	}
	return l.choose(e.Validation, brief), true
}

// Question returns one follow-up question for the entry, if any.
func (l *Library) Question(emotion domain.Emotion, subtype string) (string, bool) {
	e, ok := l.Lookup(emotion, subtype)
	if !ok {
		return "", false
	}
	return l.choose(e.Question, false), true
}

func (l *Library) choose(options []string, short bool) string {
	if short {
		var brief []string
		for _, o := range options {
			if utf8.RuneCountInString(o) <= BriefMaxRunes {
				brief = append(brief, o)
			}
		}
		if len(brief) > 0 {
			options = brief
		}
	}
	return options[l.pick(len(options))]
}

// DefaultEntries is the built-in table.
func DefaultEntries() map[Key]Entry {
	return map[Key]Entry{
		{domain.EmotionAnxiety, ""}: {
			Validation: []string{
				"Es entendible que te sientas con ansiedad.",
				"La ansiedad puede ser muy incómoda, y tiene sentido que te afecte así.",
			},
			Psychoeducation: []string{
				"La ansiedad es una respuesta del cuerpo que intenta protegerte, aunque a veces se active de más.",
				"Cuando la mente anticipa peligros, el cuerpo reacciona como si ya estuvieran pasando.",
			},
			Question: []string{
				"¿Qué es lo que más te preocupa en este momento?",
				"¿En qué parte del cuerpo notás la ansiedad?",
			},
		},
		{domain.EmotionAnxiety, "panic"}: {
			Validation: []string{
				"Lo que sentís es muy intenso, y va a pasar.",
				"Un ataque de pánico asusta muchísimo, pero no es peligroso.",
			},
			Psychoeducation: []string{
				"El pánico sube, llega a un pico y después baja; suele durar unos minutos.",
			},
			Question: []string{
				"¿Podés contarme qué notás en tu cuerpo ahora?",
			},
		},
		{domain.EmotionAnxiety, "social"}: {
			Validation: []string{
				"Sentirse observado o juzgado genera mucha tensión.",
			},
			Psychoeducation: []string{
				"La ansiedad social suele sobreestimar cuánto nos miran los demás y qué tan mal lo hacemos.",
			},
			Question: []string{
				"¿Qué situación con otras personas te genera más nervios?",
			},
		},
		{domain.EmotionSadness, ""}: {
			Validation: []string{
				"Siento que estés pasando por esto.",
				"Tiene sentido que te sientas triste con lo que estás viviendo.",
			},
			Psychoeducation: []string{
				"La tristeza nos ayuda a procesar pérdidas y a pedir apoyo; no es una debilidad.",
			},
			Question: []string{
				"¿Querés contarme un poco más de lo que te tiene así?",
				"¿Desde cuándo te sentís de esta manera?",
			},
		},
		{domain.EmotionSadness, "grief"}: {
			Validation: []string{
				"Perder a alguien duele profundamente.",
			},
			Psychoeducation: []string{
				"El duelo no es lineal: hay días mejores y peores, y ambos son parte del proceso.",
			},
			Question: []string{
				"¿Te gustaría contarme algo sobre esa persona?",
			},
		},
		{domain.EmotionSadness, "depression"}: {
			Validation: []string{
				"Sentir que nada tiene sentido es agotador.",
			},
			Psychoeducation: []string{
				"Cuando el ánimo está muy bajo, la motivación suele llegar después de actuar, no antes.",
			},
			Question: []string{
				"¿Hubo algún momento del día en que te sintieras un poco menos mal?",
			},
		},
		{domain.EmotionAnger, ""}: {
			Validation: []string{
				"Es válido sentir enojo.",
				"Entiendo que esto te haya dado mucha bronca.",
			},
			Psychoeducation: []string{
				"El enojo suele aparecer cuando sentimos que se cruzó un límite o algo fue injusto.",
			},
			Question: []string{
				"¿Qué fue lo que más te molestó de la situación?",
			},
		},
		{domain.EmotionFear, ""}: {
			Validation: []string{
				"Sentir miedo es una reacción natural ante lo incierto.",
			},
			Psychoeducation: []string{
				"El miedo nos prepara para protegernos; a veces reacciona a amenazas que no están presentes.",
			},
			Question: []string{
				"¿Qué es lo que más temés que pase?",
			},
		},
		{domain.EmotionGuilt, ""}: {
			Validation: []string{
				"La culpa pesa mucho, y muestra que te importa.",
			},
			Psychoeducation: []string{
				"Sentir culpa no siempre significa haber hecho algo mal; a veces asumimos más responsabilidad de la que nos toca.",
			},
			Question: []string{
				"¿Qué parte de lo que pasó dependía realmente de vos?",
			},
		},
		{domain.EmotionShame, ""}: {
			Validation: []string{
				"La vergüenza es una emoción muy dolorosa.",
			},
			Psychoeducation: []string{
				"La vergüenza habla de quiénes creemos que somos, no de quiénes somos de verdad.",
			},
			Question: []string{
				"¿Qué te dirías si fuera un amigo el que estuviera en tu lugar?",
			},
		},
		{domain.EmotionLoneliness, ""}: {
			Validation: []string{
				"Sentirse solo duele de verdad.",
			},
			Psychoeducation: []string{
				"La soledad es una señal de que necesitamos conexión, igual que el hambre nos avisa que necesitamos comer.",
			},
			Question: []string{
				"¿Hay alguien con quien te gustaría estar más en contacto?",
			},
		},
		{domain.EmotionFrustration, ""}: {
			Validation: []string{
				"Es frustrante cuando las cosas no salen como esperabas.",
			},
			Psychoeducation: []string{
				"La frustración aparece cuando hay una distancia entre lo que queremos y lo que logramos.",
			},
			Question: []string{
				"¿Qué te gustaría que fuera distinto?",
			},
		},
		{domain.EmotionConfusion, ""}: {
			Validation: []string{
				"Es normal sentirse confundido cuando hay muchas cosas en juego.",
			},
			Psychoeducation: []string{
				"Ordenar las ideas por escrito suele ayudar a ver con más claridad.",
			},
			Question: []string{
				"¿Qué es lo que más te cuesta entender de la situación?",
			},
		},
		{domain.EmotionJoy, ""}: {
			Validation: []string{
				"¡Qué lindo leerte así!",
			},
			Psychoeducation: []string{
				"Detenerse a saborear los buenos momentos ayuda a que dejen huella.",
			},
			Question: []string{
				"¿Qué fue lo que más disfrutaste?",
			},
		},
	}
}
