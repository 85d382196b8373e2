// Package protocol runs structured, multi-turn interventions: a registry of
// named protocols, a per-user state machine that walks their steps, and the
// ordered trigger rules that decide when one should start.
package protocol

import (
	"errors"
	"fmt"
)

// Protocol names.
const (
	Panic          = "panic_protocol"
	Depression     = "depression_protocol"
	Anxiety        = "anxiety_protocol"
	Anger          = "anger_protocol"
	Guilt          = "guilt_protocol"
	Loneliness     = "loneliness_protocol"
	SelfCompassion = "self_compassion_protocol"
	Sleep          = "sleep_protocol"
	Trauma         = "trauma_protocol"
	OCD            = "ocd_protocol"
)

// Step is one turn of a protocol. A nil NextStep marks the last step.
type Step struct {
	Step         int    `json:"step" yaml:"step"`
	Name         string `json:"name" yaml:"name"`
	Intervention string `json:"intervention" yaml:"intervention"`
	Description  string `json:"description" yaml:"description"`
	NextStep     *int   `json:"next_step,omitempty" yaml:"next_step,omitempty"`
}

// Terminal reports whether s ends its protocol.
func (s Step) Terminal() bool { return s.NextStep == nil }

// Protocol is a named, ordered list of steps.
type Protocol struct {
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Steps       []Step `json:"steps" yaml:"steps"`
}

// Registry is an immutable, validated set of protocols.
type Registry struct {
	order  []string
	byName map[string]Protocol
}

// NewRegistry validates protocols and indexes them by name. Each protocol
// must number its steps 1..n, every NextStep must point at an existing step,
// exactly one step must be terminal and every text must be set.
func NewRegistry(protocols []Protocol) (*Registry, error) {
	r := &Registry{byName: make(map[string]Protocol, len(protocols))}
	var errs []error
	for _, p := range protocols {
		if _, dup := r.byName[p.Name]; dup {
			errs = append(errs, fmt.Errorf("protocol: duplicate name %q", p.Name))
			continue
		}
		if err := validate(p); err != nil {
			errs = append(errs, err)
			continue
		}
		r.order = append(r.order, p.Name)
		r.byName[p.Name] = clone(p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func validate(p Protocol) error {
	if p.Name == "" {
		return errors.New("protocol: empty name")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("protocol %s: no steps", p.Name)
	}
	terminal := 0
	for i, s := range p.Steps {
		if s.Step != i+1 {
			return fmt.Errorf("protocol %s: step %d is numbered %d", p.Name, i+1, s.Step)
		}
		if s.Name == "" || s.Intervention == "" || s.Description == "" {
			return fmt.Errorf("protocol %s: step %d has empty text", p.Name, s.Step)
		}
		if s.NextStep == nil {
			terminal++
			continue
		}
		if n := *s.NextStep; n < 1 || n > len(p.Steps) || n == s.Step {
			return fmt.Errorf("protocol %s: step %d points at invalid step %d", p.Name, s.Step, n)
		}
	}
	if terminal != 1 {
		return fmt.Errorf("protocol %s: want exactly one terminal step, got %d", p.Name, terminal)
	}
	return nil
}

func clone(p Protocol) Protocol {
	out := p
	out.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		out.Steps[i] = s
		if s.NextStep != nil {
			n := *s.NextStep
			out.Steps[i].NextStep = &n
		}
	}
	return out
}

// Get returns a copy of the named protocol.
func (r *Registry) Get(name string) (Protocol, bool) {
	p, ok := r.byName[name]
	if !ok {
		return Protocol{}, false
	}
	return clone(p), true
}

// Names lists protocols in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns copies of every protocol in registration order.
func (r *Registry) All() []Protocol {
	out := make([]Protocol, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, clone(r.byName[n]))
	}
	return out
}

// linear chains (name, intervention, description) triples into steps 1..n.
func linear(defs ...[3]string) []Step {
	steps := make([]Step, len(defs))
	for i, d := range defs {
		steps[i] = Step{Step: i + 1, Name: d[0], Intervention: d[1], Description: d[2]}
		if i < len(defs)-1 {
			next := i + 2
			steps[i].NextStep = &next
		}
	}
	return steps
}

// DefaultRegistry returns the built-in protocols. It panics if they do not
// validate, which would be a programming error.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultProtocols())
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultProtocols is the built-in protocol set.
func DefaultProtocols() []Protocol {
	return []Protocol{
		{
			Name:        Panic,
			Title:       "Crisis de pánico",
			Description: "Contención y anclaje durante un ataque de pánico.",
			Steps: linear(
				[3]string{"validacion_grounding",
					"Lo que estás sintiendo es muy intenso, pero no es peligroso y va a pasar. Estoy acá con vos. Apoyá los pies en el piso y notá el contacto con el suelo.",
					"Validar la experiencia y anclar al presente."},
				[3]string{"respiracion",
					"Vamos a respirar juntos: inhalá contando hasta 4, sostené 4 y exhalá lento contando hasta 6. Repetilo cinco veces a tu ritmo.",
					"Respiración diafragmática con exhalación larga."},
				[3]string{"tecnica_5_4_3_2_1",
					"Ahora nombrá 5 cosas que ves, 4 que podés tocar, 3 que escuchás, 2 que podés oler y 1 que podés saborear.",
					"Anclaje sensorial 5-4-3-2-1."},
				[3]string{"reencuadre",
					"Los síntomas del pánico son una alarma del cuerpo que suena sin que haya un incendio. Subieron, llegaron a un pico y ya empiezan a bajar.",
					"Psicoeducación breve sobre la curva del pánico."},
				[3]string{"cierre",
					"¿Cómo te sentís ahora, del 1 al 10? Si vuelve a pasar, podés repetir estos pasos. Y si los ataques se repiten, hablarlo con un profesional puede ayudarte mucho.",
					"Evaluar el estado y cerrar con un plan."},
			),
		},
		{
			Name:        Depression,
			Title:       "Ánimo bajo",
			Description: "Acompañamiento ante tristeza profunda y falta de sentido.",
			Steps: linear(
				[3]string{"validacion",
					"Gracias por contarme cómo estás. Sentir que nada tiene sentido es agotador, y no estás exagerando.",
					"Validar sin minimizar."},
				[3]string{"exploracion",
					"¿Desde cuándo te sentís así? ¿Hubo algo que lo desencadenara o fue apareciendo de a poco?",
					"Explorar duración y contexto."},
				[3]string{"activacion_conductual",
					"Elijamos una sola cosa pequeña para hoy: tomar agua, abrir una ventana o caminar cinco minutos. No hace falta que tengas ganas para empezar.",
					"Activación conductual mínima."},
				[3]string{"red_de_apoyo",
					"¿Hay alguien de confianza con quien puedas hablar hoy, aunque sea un mensaje corto?",
					"Activar la red de apoyo."},
				[3]string{"cierre",
					"Lo que hiciste hoy cuenta. Si este estado se sostiene por semanas, te recomiendo consultar con un profesional de salud mental.",
					"Reforzar y derivar si corresponde."},
			),
		},
		{
			Name:        Anxiety,
			Title:       "Ansiedad generalizada",
			Description: "Manejo de la preocupación constante.",
			Steps: linear(
				[3]string{"validacion",
					"Vivir preocupado por todo cansa muchísimo. Tiene sentido que te sientas así.",
					"Validar la carga de la preocupación."},
				[3]string{"identificar_preocupacion",
					"Escribí la preocupación que más pesa ahora. ¿Es algo que está pasando o algo que podría pasar?",
					"Distinguir problemas reales de hipotéticos."},
				[3]string{"reestructuracion",
					"Si un amigo tuviera esta misma preocupación, ¿qué le dirías? ¿Qué evidencia hay a favor y en contra?",
					"Reestructuración cognitiva."},
				[3]string{"tiempo_de_preocupacion",
					"Probá reservar 15 minutos por día como tu momento para preocuparte. Si aparece fuera de ese horario, anotala y posponela.",
					"Técnica de posponer la preocupación."},
			),
		},
		{
			Name:        Anger,
			Title:       "Regulación del enojo",
			Description: "Bajar la activación antes de actuar.",
			Steps: linear(
				[3]string{"validacion",
					"El enojo es una señal de que algo te importa o se sintió injusto. Está bien sentirlo.",
					"Validar la emoción sin validar la agresión."},
				[3]string{"pausa",
					"Antes de responder, tomate una pausa: alejate unos minutos, respirá hondo y soltá los hombros.",
					"Tiempo fuera y descarga fisiológica."},
				[3]string{"necesidad",
					"¿Qué necesitabas en esa situación que no pasó? Ponerle nombre ayuda a expresarlo sin herir.",
					"Identificar la necesidad detrás del enojo."},
				[3]string{"comunicacion",
					"Podés probar con: \"Cuando pasó ___, me sentí ___, y necesito ___\". ¿Cómo sonaría en tu caso?",
					"Comunicación asertiva."},
			),
		},
		{
			Name:        Guilt,
			Title:       "Culpa",
			Description: "Diferenciar responsabilidad de autocastigo.",
			Steps: linear(
				[3]string{"validacion",
					"La culpa muestra que te importan los demás. Vamos a mirarla con cuidado, sin castigarte.",
					"Validar la culpa."},
				[3]string{"responsabilidad",
					"Hagamos un reparto: ¿qué parte de lo que pasó dependía de vos y qué parte de otras personas o circunstancias?",
					"Gráfico de responsabilidad."},
				[3]string{"reparacion",
					"Si hay algo para reparar, ¿cuál sería un primer paso posible? Si no lo hay, ¿qué aprendiste?",
					"Orientar a la reparación."},
				[3]string{"autoperdon",
					"Probá decirte lo que le dirías a alguien querido que se equivocó: con firmeza, pero con cariño.",
					"Autoperdón."},
			),
		},
		{
			Name:        Loneliness,
			Title:       "Soledad",
			Description: "Reconectar con otros de a poco.",
			Steps: linear(
				[3]string{"validacion",
					"Sentirse solo duele de verdad. Gracias por animarte a contarlo.",
					"Validar la soledad."},
				[3]string{"mapa_de_vinculos",
					"Pensemos en tus vínculos: ¿quién estuvo cerca alguna vez, aunque hoy el contacto sea poco?",
					"Mapear la red existente."},
				[3]string{"micro_contacto",
					"¿Te animás a mandar hoy un mensaje corto a una de esas personas? Algo simple, como preguntar cómo está.",
					"Contacto de bajo costo."},
				[3]string{"cierre",
					"La conexión se construye de a pasos chicos. Acá también podés volver cuando lo necesites.",
					"Cerrar reforzando el vínculo."},
			),
		},
		{
			Name:        SelfCompassion,
			Title:       "Autocompasión",
			Description: "Suavizar la autocrítica.",
			Steps: linear(
				[3]string{"validacion",
					"Estás siendo muy duro con vos. Esa voz crítica suele aparecer cuando algo nos duele.",
					"Nombrar la autocrítica."},
				[3]string{"humanidad_compartida",
					"Equivocarse y sentirse insuficiente es parte de ser humano. No estás solo en esto.",
					"Humanidad compartida."},
				[3]string{"voz_amable",
					"¿Cómo le hablarías a un amigo que dijera eso de sí mismo? Probá escribirte esas palabras.",
					"Cultivar una voz interna amable."},
			),
		},
		{
			Name:        Sleep,
			Title:       "Dificultades para dormir",
			Description: "Higiene del sueño y calma nocturna.",
			Steps: linear(
				[3]string{"validacion",
					"No poder dormir desgasta el cuerpo y el ánimo. Vamos a buscar algo que te ayude esta noche.",
					"Validar el malestar."},
				[3]string{"higiene_del_sueno",
					"Probá dejar las pantallas una hora antes, mantener horarios parecidos y usar la cama solo para dormir.",
					"Higiene del sueño."},
				[3]string{"relajacion",
					"Acostado, tensá y soltá cada grupo de músculos desde los pies hasta la cara, respirando lento.",
					"Relajación muscular progresiva."},
				[3]string{"cierre",
					"Si después de 20 minutos no te dormiste, levantate y hacé algo tranquilo hasta tener sueño. Si el insomnio sigue, conviene consultarlo.",
					"Control de estímulos y derivación."},
			),
		},
		{
			Name:        Trauma,
			Title:       "Recuerdos traumáticos",
			Description: "Estabilización ante recuerdos intrusivos.",
			Steps: linear(
				[3]string{"seguridad",
					"Lo que recordás ya pasó; ahora estás en un lugar seguro. Mirá a tu alrededor y nombrá dónde estás y qué día es hoy.",
					"Orientación al presente."},
				[3]string{"grounding",
					"Tocá algo con textura, como una tela o una taza. Describí qué sentís en las manos.",
					"Anclaje sensorial."},
				[3]string{"lugar_seguro",
					"Imaginá un lugar donde te sientas a salvo. ¿Cómo es? ¿Qué se escucha ahí?",
					"Visualización de lugar seguro."},
				[3]string{"derivacion",
					"Estos recuerdos merecen acompañamiento especializado. Un profesional en trauma puede ayudarte a procesarlos con cuidado.",
					"Derivar a tratamiento especializado."},
			),
		},
		{
			Name:        OCD,
			Title:       "Pensamientos intrusivos",
			Description: "Tomar distancia de las obsesiones.",
			Steps: linear(
				[3]string{"validacion",
					"Los pensamientos intrusivos asustan, pero tener un pensamiento no te define ni significa que vaya a pasar.",
					"Normalizar los pensamientos intrusivos."},
				[3]string{"defusion",
					"Probá decirte: \"Estoy teniendo el pensamiento de que...\". Observalo como una nube que pasa.",
					"Defusión cognitiva."},
				[3]string{"posponer_compulsion",
					"Si sentís la urgencia de revisar o repetir algo, intentá esperar cinco minutos antes. ¿Qué pasa con la ansiedad mientras esperás?",
					"Prevención de respuesta gradual."},
				[3]string{"cierre",
					"Cada vez que esperás un poco, tu cerebro aprende que puede tolerar la incertidumbre. Un profesional puede guiarte en este proceso.",
					"Reforzar y derivar."},
			),
		},
	}
}
