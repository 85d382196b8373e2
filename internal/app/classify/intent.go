package classify

import (
	"regexp"
	"strings"
)

// Intent labels.
const (
	IntentGreeting         = "greeting"
	IntentGratitude        = "gratitude"
	IntentTechniqueRequest = "technique_request"
	IntentGoalSetting      = "goal_setting"
	IntentSeekingHelp      = "seeking_help"
	IntentQuestion         = "question"
	IntentVenting          = "venting"
	IntentSharing          = "sharing"
)

type intentRule struct {
	intent  string
	pattern *regexp.Regexp
}

// Ordered: the first matching rule wins.
var intentRules = []intentRule{
	{IntentTechniqueRequest, rx(`\b(tecnicas?|ejercicios?|estrategias?|herramientas?|que puedo hacer para|como (me )?calmo|como puedo calmarme|ensename)\b`)},
	{IntentGoalSetting, rx(`\b(mi meta|mi objetivo|quiero lograr|me propongo|quiero empezar a|quiero dejar de)\b`)},
	{IntentSeekingHelp, rx(`\b(que hago|que deberia hacer|como puedo|ayudame|ayuda|necesito ayuda|consejo|no se como)\b`)},
	{IntentGratitude, rx(`^(muchas )?gracias\b|\b(te agradezco|me ayudaste)\b`)},
	{IntentGreeting, rx(`^(hola|buenas|buenos dias|buenas tardes|buenas noches|hey|que tal)\b`)},
}

// IntentClassifier derives what the user is asking for.
type IntentClassifier struct{}

func NewIntentClassifier() *IntentClassifier { return &IntentClassifier{} }

// Classify returns the intent of text. negative tells whether the emotional
// reading was negative, which separates venting from plain sharing.
func (c *IntentClassifier) Classify(text string, negative bool) string {
	norm := Normalize(text)
	for _, r := range intentRules {
		if r.pattern.MatchString(norm) {
			// A greeting followed by real content is not just a greeting.
			if r.intent == IntentGreeting && WordCount(norm) > 4 {
				continue
			}
			return r.intent
		}
	}
	if strings.Contains(text, "?") {
		return IntentQuestion
	}
	if negative {
		return IntentVenting
	}
	return IntentSharing
}

// ExplicitTechniqueRequest reports whether the user asked for a technique.
func ExplicitTechniqueRequest(intent string) bool {
	return intent == IntentTechniqueRequest
}
