package protocol

import (
	"regexp"

	"github.com/PabloGalante/farum-companion/internal/app/classify"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

// TriggerInput is what a trigger rule sees. Text is normalized.
type TriggerInput struct {
	Emotion   domain.Emotion
	Intensity int
	Subtype   string
	Text      string
}

func NewTriggerInput(emotion domain.Emotion, intensity int, subtype, text string) TriggerInput {
	return TriggerInput{
		Emotion:   emotion,
		Intensity: intensity,
		Subtype:   subtype,
		Text:      classify.Normalize(text),
	}
}

// Trigger starts Protocol when Match holds.
type Trigger struct {
	Protocol string
	Match    func(TriggerInput) bool
}

var (
	panicWords      = regexp.MustCompile(`\b(panico|no puedo respirar|me falta el aire|me ahogo|me voy a morir|taquicardia)\b`)
	depressionWords = regexp.MustCompile(`\b(nada tiene sentido|no quiero vivir|sin ganas de nada|no quiero levantarme|no vale la pena)\b`)
	sleepWords      = regexp.MustCompile(`\b(no puedo dormir|insomnio|no duermo|me desvelo)\b`)
	traumaWords     = regexp.MustCompile(`\b(flashbacks?|lo revivo|trauma|traumatic[oa]|estres postraumatico|tept)\b`)
	stopWords       = regexp.MustCompile(`\b(para(r)? el ejercicio|quiero parar|basta de ejercicios?|no quiero seguir con esto|dejemos esto)\b`)
)

func is(in TriggerInput, emotions ...domain.Emotion) bool {
	for _, e := range emotions {
		if in.Emotion == e {
			return true
		}
	}
	return false
}

// DefaultTriggers lists the start rules in priority order: the first match
// wins when several apply.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{Panic, func(in TriggerInput) bool {
			return is(in, domain.EmotionAnxiety, domain.EmotionFear) && in.Intensity >= 7 &&
				(in.Subtype == classify.SubtypePanic || panicWords.MatchString(in.Text))
		}},
		{Depression, func(in TriggerInput) bool {
			if in.Intensity < 7 {
				return false
			}
			return (is(in, domain.EmotionSadness) && in.Subtype == classify.SubtypeDepression) ||
				depressionWords.MatchString(in.Text)
		}},
		{Anxiety, func(in TriggerInput) bool {
			return is(in, domain.EmotionAnxiety) && in.Intensity >= 6 && in.Subtype == classify.SubtypeGeneralized
		}},
		{Anger, func(in TriggerInput) bool {
			return is(in, domain.EmotionAnger) && in.Intensity >= 7
		}},
		{Guilt, func(in TriggerInput) bool {
			return is(in, domain.EmotionGuilt) && in.Intensity >= 6 && in.Subtype == classify.SubtypeSelfBlame
		}},
		{Loneliness, func(in TriggerInput) bool {
			return in.Intensity >= 6 && (is(in, domain.EmotionLoneliness) ||
				(is(in, domain.EmotionSadness) && in.Subtype == classify.SubtypeLoneliness))
		}},
		{SelfCompassion, func(in TriggerInput) bool {
			return is(in, domain.EmotionShame, domain.EmotionSadness) && in.Intensity >= 5 &&
				in.Subtype == classify.SubtypeSelfCriticism
		}},
		{Sleep, func(in TriggerInput) bool {
			return in.Intensity >= 5 && (in.Subtype == classify.SubtypeSleep || sleepWords.MatchString(in.Text))
		}},
		{Trauma, func(in TriggerInput) bool {
			return in.Intensity >= 6 && (in.Subtype == classify.SubtypeTrauma || traumaWords.MatchString(in.Text))
		}},
		{OCD, func(in TriggerInput) bool {
			return is(in, domain.EmotionAnxiety) && in.Intensity >= 5 && in.Subtype == classify.SubtypeOCD
		}},
	}
}

// WantsToStop reports whether the user asked to leave the current protocol.
func WantsToStop(text string) bool {
	return stopWords.MatchString(classify.Normalize(text))
}
