package protocol

import (
	"sync"
	"time"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// State is the progress of one user through one protocol. CurrentStep always
// names an existing step.
type State struct {
	ProtocolName string    `json:"protocol_name"`
	CurrentStep  int       `json:"current_step"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Steps        []Step    `json:"steps"`
}

// Current returns the step CurrentStep points at.
func (s *State) Current() (Step, bool) {
	for _, st := range s.Steps {
		if st.Step == s.CurrentStep {
			return st, true
		}
	}
	return Step{}, false
}

func (s *State) copy() *State {
	out := *s
	out.Steps = clone(Protocol{Steps: s.Steps}).Steps
	return &out
}

// Engine holds at most one active protocol per user. It is safe for
// concurrent use; every method returns copies.
type Engine struct {
	mu       sync.Mutex
	registry *Registry
	triggers []Trigger
	states   map[domain.UserID]*State
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTriggers replaces DefaultTriggers.
func WithTriggers(t []Trigger) EngineOption {
	return func(e *Engine) { e.triggers = t }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		triggers: DefaultTriggers(),
		states:   make(map[domain.UserID]*State),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Registry returns the protocols the engine runs.
func (e *Engine) Registry() *Registry { return e.registry }

// Start puts userID at step 1 of the named protocol, replacing whatever was
// active. It returns false for an unknown protocol.
func (e *Engine) Start(userID domain.UserID, name string) (*State, bool) {
	p, ok := e.registry.Get(name)
	if !ok {
		return nil, false
	}
	now := e.now()
	st := &State{
		ProtocolName: p.Name,
		CurrentStep:  p.Steps[0].Step,
		StartedAt:    now,
		UpdatedAt:    now,
		Steps:        p.Steps,
	}

	e.mu.Lock()
	e.states[userID] = st
	e.mu.Unlock()
	return st.copy(), true
}

// Active returns the user's protocol state, if any.
func (e *Engine) Active(userID domain.UserID) (*State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[userID]
	if !ok {
		return nil, false
	}
	return st.copy(), true
}

// Advance moves the user to the next step and returns it. When the current
// step is terminal the protocol is complete: the state is removed and
// Advance returns false, as it does when nothing is active.
func (e *Engine) Advance(userID domain.UserID) (Step, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[userID]
	if !ok {
		return Step{}, false
	}
	cur, ok := st.Current()
	if !ok || cur.Terminal() {
		delete(e.states, userID)
		return Step{}, false
	}
	st.CurrentStep = *cur.NextStep
	st.UpdatedAt = e.now()
	next, _ := st.Current()
	return next, true
}

// CurrentIntervention returns the step the user is on.
func (e *Engine) CurrentIntervention(userID domain.UserID) (Step, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[userID]
	if !ok {
		return Step{}, false
	}
	return st.Current()
}

// Stop abandons the user's protocol and reports whether one was active.
func (e *Engine) Stop(userID domain.UserID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.states[userID]
	delete(e.states, userID)
	return ok
}

// EvictIdle drops states not touched within maxIdle and returns how many
// were removed.
func (e *Engine) EvictIdle(maxIdle time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-maxIdle)
	n := 0
	for id, st := range e.states {
		if st.UpdatedAt.Before(cutoff) {
			delete(e.states, id)
			n++
		}
	}
	return n
}

// Len is the number of users with an active protocol.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.states)
}

// ShouldStart evaluates the trigger rules in order and returns the first
// protocol that applies. Protocols missing from the registry are skipped.
func (e *Engine) ShouldStart(emotion domain.Emotion, intensity int, subtype, text string) (string, bool) {
	in := NewTriggerInput(emotion, intensity, subtype, text)
	for _, t := range e.triggers {
		if !t.Match(in) {
			continue
		}
		if _, ok := e.registry.Get(t.Protocol); ok {
			return t.Protocol, true
		}
	}
	return "", false
}
