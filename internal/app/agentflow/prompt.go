package agentflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PabloGalante/farum-companion/internal/app/classify"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

const baseSystemPrompt = `
You are "Farum", an AI companion focused on emotional well-being.

Your role:
- You listen with empathy and without judgment.
- You help the user name what they feel, understand it a little better and find one next step.
- You are NOT a therapist, doctor, or emergency service and you do NOT give medical or psychiatric diagnoses.

General style guidelines:
- Answer in the SAME LANGUAGE as the user (usually Rioplatense Spanish).
- Reflect back what you understood before suggesting anything.
- Ask at most one follow-up question.
- Invite small, realistic steps rather than big changes.
- Do not list techniques unless the user asks for one.

Boundaries and safety:
- If the user mentions self-harm, suicide, or that they might hurt someone, encourage them to seek immediate help from local emergency services or a trusted person.
- Make it clear you cannot replace professional mental health care, especially in crisis situations.
- Never give instructions on how to self-harm or harm others.
`

const briefInstructions = `
Style: brief
- Two or three sentences. Validate, then one gentle question.
`

const deepInstructions = `
Style: deep
- Explore with curiosity: context, history, patterns.
- Help the user connect thoughts, emotions and behaviours, one layer deeper, not ten.
`

const defaultInstructions = `
Style: default
- Validate, add one short piece of psychoeducation that fits what they said, close with a question.
`

const actionPlanInstructions = `
The user is in action-plan mode: summarise briefly and co-create 1-3 small, concrete actions, presented as options.
`

func styleInstructions(style domain.ResponseStyle) string {
	switch style {
	case domain.StyleBrief:
		return briefInstructions
	case domain.StyleDeep:
		return deepInstructions
	default:
		return defaultInstructions
	}
}

// Conversation phases.
const (
	PhaseStart   = "inicio"
	PhaseExplore = "exploracion"
	PhaseDeepen  = "profundizacion"
)

// phaseFor derives the phase from how many user turns came before.
func phaseFor(history []domain.ChatMessage) string {
	n := 0
	for _, m := range history {
		if m.Role == domain.RoleUser {
			n++
		}
	}
	switch {
	case n < 2:
		return PhaseStart
	case n < 6:
		return PhaseExplore
	default:
		return PhaseDeepen
	}
}

// styleFor picks the response style: the user's preference, then the
// session mode, then what the moment calls for.
func styleFor(t *turn) domain.ResponseStyle {
	if t.profile != nil && t.profile.PreferredStyle != "" {
		return t.profile.PreferredStyle
	}
	if t.mode != "" {
		return domain.StyleForMode(t.mode)
	}
	switch {
	case t.emotional.Intensity >= safetyIntensity:
		return domain.StyleBrief
	case t.contextual.Phase == PhaseDeepen:
		return domain.StyleDeep
	default:
		return domain.StyleDefault
	}
}

func (o *Orchestrator) buildRequest(t *turn) domain.CompletionRequest {
	var sys strings.Builder
	sys.WriteString(strings.TrimSpace(baseSystemPrompt))
	sys.WriteString("\n")
	sys.WriteString(styleInstructions(t.contextual.Style))
	if t.mode == domain.ModeActionPlan {
		sys.WriteString(actionPlanInstructions)
	}
	sys.WriteString("\n")
	sys.WriteString(turnContext(t))

	msgs := []domain.ChatMessage{{Role: domain.RoleSystem, Content: sys.String()}}
	msgs = append(msgs, selectHistory(t.history, t.msg.Content, o.opts.MaxHistory)...)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleUser, Content: t.msg.Content})

	return domain.CompletionRequest{
		Model:               o.opts.Model,
		Messages:            msgs,
		MaxCompletionTokens: o.opts.MaxCompletionTokens,
	}
}

// turnContext renders what the pipeline knows about this turn.
func turnContext(t *turn) string {
	e := t.emotional
	var b strings.Builder
	b.WriteString("Current reading:\n")
	fmt.Fprintf(&b, "- Emotion: %s (intensity %d/10", e.MainEmotion, e.Intensity)
	if e.Subtype != "" {
		fmt.Fprintf(&b, ", subtype %s", e.Subtype)
	}
	b.WriteString(")\n")
	if len(e.Secondary) > 0 {
		names := make([]string, len(e.Secondary))
		for i, s := range e.Secondary {
			names[i] = string(s)
		}
		fmt.Fprintf(&b, "- Also present: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "- Topic: %s\n", e.Topic)
	fmt.Fprintf(&b, "- Intent: %s\n", t.contextual.Intent)
	fmt.Fprintf(&b, "- Conversation phase: %s\n", t.contextual.Phase)

	tr := t.contextual.Trends
	if tr.Entries > 1 {
		fmt.Fprintf(&b, "- Session memory: trend %s, negative streak %d, average intensity %.1f", tr.Trend, tr.NegativeStreak, tr.AverageIntensity)
		if tr.DominantEmotion != "" {
			fmt.Fprintf(&b, ", dominant emotion %s", tr.DominantEmotion)
		}
		b.WriteString("\n")
	}

	if t.profile != nil && t.profile.DisplayName != "" {
		fmt.Fprintf(&b, "- The user likes to be called %s\n", t.profile.DisplayName)
	}
	if r := t.record; r != nil {
		if len(r.TechniquesUsed) > 0 {
			fmt.Fprintf(&b, "- Techniques already tried: %s\n", strings.Join(r.TechniquesUsed, ", "))
		}
		if len(r.CompletedProtocols) > 0 {
			fmt.Fprintf(&b, "- Protocols completed before: %s\n", strings.Join(r.CompletedProtocols, ", "))
		}
	}

	if t.step != nil {
		fmt.Fprintf(&b, "\nActive protocol %s, step %d (%s): %s\n", t.protocol.Name, t.step.Step, t.step.Name, t.step.Description)
		fmt.Fprintf(&b, "Guide your reply toward this intervention: %s\n", t.step.Intervention)
	}
	if t.completed != "" {
		fmt.Fprintf(&b, "\nThe user just finished %s. Acknowledge the work done and ask how they feel now.\n", t.completed)
	}
	return b.String()
}

// selectHistory keeps the limit most relevant turns, in their original order.
// Relevance is word overlap with the current message plus a recency bonus.
func selectHistory(history []domain.ChatMessage, current string, limit int) []domain.ChatMessage {
	var turns []domain.ChatMessage
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" || m.Role == domain.RoleSystem {
			continue
		}
		role := domain.RoleUser
		if m.Role == domain.RoleAgent || m.Role == domain.RoleAssistant {
			role = domain.RoleAssistant
		}
		turns = append(turns, domain.ChatMessage{Role: role, Content: m.Content})
	}
	if limit <= 0 || len(turns) <= limit {
		return turns
	}

	words := significantWords(current)
	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(turns))
	for i, m := range turns {
		overlap := 0
		for w := range significantWords(m.Content) {
			if _, ok := words[w]; ok {
				overlap++
			}
		}
		recency := float64(i+1) / float64(len(turns))
		if i >= len(turns)-4 {
			recency++
		}
		ranked[i] = scored{idx: i, score: 2*float64(overlap) + recency}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	keep := ranked[:limit]
	sort.Slice(keep, func(a, b int) bool { return keep[a].idx < keep[b].idx })
	out := make([]domain.ChatMessage, len(keep))
	for i, k := range keep {
		out[i] = turns[k.idx]
	}
	return out
}

func significantWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(classify.Normalize(text)) {
		w = strings.Trim(w, ".,;:!?¿¡\"'()")
		if len([]rune(w)) >= 4 {
			out[w] = struct{}{}
		}
	}
	return out
}
