// Package techniques is the catalog of self-help exercises offered when a
// user explicitly asks for one.
package techniques

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// Technique is one exercise.
type Technique struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Type        string           `json:"type" yaml:"type"`
	Category    string           `json:"category" yaml:"category"`
	Description string           `json:"description" yaml:"description"`
	Steps       []string         `json:"steps" yaml:"steps"`
	Emotions    []domain.Emotion `json:"emotions" yaml:"emotions"`
	Subtypes    []string         `json:"subtypes,omitempty" yaml:"subtypes,omitempty"`
}

// Info is the projection exposed in a response context.
func (t Technique) Info() *domain.TherapeuticInfo {
	return &domain.TherapeuticInfo{Technique: t.Name, Type: t.Type, Category: t.Category}
}

// Render formats the technique for appending to a reply.
func (t Technique) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Te propongo una técnica: %s. %s", t.Name, t.Description)
	for i, s := range t.Steps {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s)
	}
	return b.String()
}

// Catalog is an immutable, validated list of techniques in preference order.
type Catalog struct {
	items []Technique
}

// New validates techniques: unique ids, a name, at least one step and one
// emotion.
func New(items []Technique) (*Catalog, error) {
	seen := make(map[string]bool, len(items))
	var errs []error
	for _, t := range items {
		switch {
		case t.ID == "" || t.Name == "":
			errs = append(errs, errors.New("techniques: id and name are required"))
		case seen[t.ID]:
			errs = append(errs, fmt.Errorf("techniques: duplicate id %q", t.ID))
		case len(t.Steps) == 0 || len(t.Emotions) == 0:
			errs = append(errs, fmt.Errorf("techniques: %s needs steps and emotions", t.ID))
		}
		seen[t.ID] = true
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Catalog{items: append([]Technique(nil), items...)}, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultTechniques())
	if err != nil {
		panic(err)
	}
	return c
}

// All returns the catalog in preference order.
func (c *Catalog) All() []Technique {
	return append([]Technique(nil), c.items...)
}

// Get looks a technique up by id.
func (c *Catalog) Get(id string) (Technique, bool) {
	for _, t := range c.items {
		if t.ID == id {
			return t, true
		}
	}
	return Technique{}, false
}

// Select returns the best technique for an emotion: one that also lists the
// subtype wins over one that only lists the emotion. Techniques in exclude
// (by name) are skipped when an alternative exists.
func (c *Catalog) Select(emotion domain.Emotion, subtype string, exclude []string) (Technique, bool) {
	var byEmotion, bySubtype []Technique
	for _, t := range c.items {
		if !hasEmotion(t.Emotions, emotion) {
			continue
		}
		if subtype != "" && hasString(t.Subtypes, subtype) {
			bySubtype = append(bySubtype, t)
		} else {
			byEmotion = append(byEmotion, t)
		}
	}
	candidates := append(bySubtype, byEmotion...)
	if len(candidates) == 0 {
		return Technique{}, false
	}
	for _, t := range candidates {
		if !hasString(exclude, t.Name) {
			return t, true
		}
	}
	return candidates[0], true
}

func hasEmotion(list []domain.Emotion, e domain.Emotion) bool {
	for _, v := range list {
		if v == e {
			return true
		}
	}
	return false
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DefaultTechniques is the built-in catalog.
func DefaultTechniques() []Technique {
	return []Technique{
		{
			ID:          "respiracion_4_7_8",
			Name:        "Respiración 4-7-8",
			Type:        "breathing",
			Category:    "regulation",
			Description: "Una respiración lenta que ayuda a bajar la activación del cuerpo.",
			Steps: []string{
				"Inhalá por la nariz contando hasta 4.",
				"Sostené el aire contando hasta 7.",
				"Exhalá por la boca, despacio, contando hasta 8.",
				"Repetilo cuatro veces.",
			},
			Emotions: []domain.Emotion{domain.EmotionAnxiety, domain.EmotionFear, domain.EmotionAnger},
			Subtypes: []string{"panic"},
		},
		{
			ID:          "grounding_5_4_3_2_1",
			Name:        "Anclaje 5-4-3-2-1",
			Type:        "grounding",
			Category:    "regulation",
			Description: "Usa los sentidos para volver al presente.",
			Steps: []string{
				"Nombrá 5 cosas que ves.",
				"Nombrá 4 cosas que podés tocar.",
				"Nombrá 3 sonidos que escuchás.",
				"Nombrá 2 olores.",
				"Nombrá 1 sabor.",
			},
			Emotions: []domain.Emotion{domain.EmotionAnxiety, domain.EmotionFear, domain.EmotionConfusion},
			Subtypes: []string{"panic", "trauma"},
		},
		{
			ID:          "registro_de_pensamientos",
			Name:        "Registro de pensamientos",
			Type:        "cognitive",
			Category:    "cognitive_restructuring",
			Description: "Ayuda a mirar un pensamiento difícil con más perspectiva.",
			Steps: []string{
				"Escribí la situación y el pensamiento automático.",
				"Anotá la evidencia a favor y en contra.",
				"Buscá un pensamiento alternativo más equilibrado.",
			},
			Emotions: []domain.Emotion{domain.EmotionAnxiety, domain.EmotionGuilt, domain.EmotionShame, domain.EmotionSadness},
			Subtypes: []string{"generalized", "self_blame", "self_criticism"},
		},
		{
			ID:          "activacion_conductual",
			Name:        "Activación conductual",
			Type:        "behavioral",
			Category:    "activation",
			Description: "Pequeñas acciones que ayudan a mover el ánimo.",
			Steps: []string{
				"Elegí una actividad breve que antes disfrutabas.",
				"Agendala para hoy o mañana, con hora.",
				"Después, anotá cómo te sentiste del 1 al 10.",
			},
			Emotions: []domain.Emotion{domain.EmotionSadness, domain.EmotionLoneliness, domain.EmotionFrustration},
			Subtypes: []string{"depression"},
		},
		{
			ID:          "tiempo_fuera",
			Name:        "Tiempo fuera",
			Type:        "behavioral",
			Category:    "regulation",
			Description: "Una pausa para no actuar en el pico del enojo.",
			Steps: []string{
				"Decí que necesitás unos minutos.",
				"Alejate físicamente de la situación.",
				"Respirá lento hasta que baje la tensión antes de volver.",
			},
			Emotions: []domain.Emotion{domain.EmotionAnger, domain.EmotionFrustration},
		},
		{
			ID:          "carta_compasiva",
			Name:        "Carta compasiva",
			Type:        "writing",
			Category:    "acceptance",
			Description: "Escribirte como le escribirías a alguien que querés.",
			Steps: []string{
				"Pensá en lo que te está haciendo sufrir.",
				"Escribite una carta como si fueras un amigo cercano.",
				"Leela en voz alta con calma.",
			},
			Emotions: []domain.Emotion{domain.EmotionShame, domain.EmotionGuilt, domain.EmotionSadness},
			Subtypes: []string{"self_criticism", "regret"},
		},
		{
			ID:          "relajacion_muscular",
			Name:        "Relajación muscular progresiva",
			Type:        "relaxation",
			Category:    "regulation",
			Description: "Tensar y soltar los músculos para liberar tensión.",
			Steps: []string{
				"Tensá los pies durante 5 segundos y soltá.",
				"Subí por piernas, abdomen, manos, hombros y cara.",
				"Notá la diferencia entre tensión y relajación.",
			},
			Emotions: []domain.Emotion{domain.EmotionAnxiety, domain.EmotionAnger, domain.EmotionFrustration},
			Subtypes: []string{"sleep"},
		},
		{
			ID:          "tres_cosas_buenas",
			Name:        "Tres cosas buenas",
			Type:        "mindfulness",
			Category:    "positive",
			Description: "Registrar lo que salió bien para entrenar la atención.",
			Steps: []string{
				"Antes de dormir, anotá tres cosas que salieron bien hoy.",
				"Al lado de cada una, escribí por qué pasó.",
			},
			Emotions: []domain.Emotion{domain.EmotionJoy, domain.EmotionGratitude, domain.EmotionHope, domain.EmotionCalm, domain.EmotionNeutral},
		},
	}
}
