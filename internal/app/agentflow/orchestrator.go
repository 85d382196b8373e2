// Package agentflow turns one incoming message into one reply: it reads the
// message, gathers what is known about the user, consults the intervention
// protocols and the response cache, asks the completer and repairs the
// result before handing it back.
package agentflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/farum-companion/internal/app/classify"
	"github.com/PabloGalante/farum-companion/internal/app/protocol"
	"github.com/PabloGalante/farum-companion/internal/app/sessionmemory"
	"github.com/PabloGalante/farum-companion/internal/app/tasks"
	"github.com/PabloGalante/farum-companion/internal/app/techniques"
	"github.com/PabloGalante/farum-companion/internal/app/templates"
	"github.com/PabloGalante/farum-companion/internal/app/tools"
	"github.com/PabloGalante/farum-companion/internal/cache"
	"github.com/PabloGalante/farum-companion/internal/domain"
	"github.com/PabloGalante/farum-companion/internal/observability"
)

const (
	// Replies at or above these intensities get a safety check, and crisis
	// resources on top of it.
	safetyIntensity    = 8
	resourcesIntensity = 9

	// Analyses of previous messages fed to the emotion classifier.
	classifierHistory = 5

	minResponseTTL = time.Minute
)

// Options tunes the pipeline. Zero values fall back to DefaultOptions.
type Options struct {
	Model               string
	MaxCompletionTokens int
	MaxHistory          int
	MaxMessageLength    int
	MaxResponseLength   int
	GenerationTimeout   time.Duration
	CacheTTL            time.Duration
	CacheMaxAge         time.Duration
	CacheLockTimeout    time.Duration
	ContextTTL          time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxCompletionTokens: 800,
		MaxHistory:          10,
		MaxMessageLength:    2000,
		MaxResponseLength:   1200,
		GenerationTimeout:   30 * time.Second,
		CacheTTL:            30 * time.Minute,
		CacheMaxAge:         2 * time.Hour,
		CacheLockTimeout:    5 * time.Second,
		ContextTTL:          5 * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxCompletionTokens <= 0 {
		o.MaxCompletionTokens = d.MaxCompletionTokens
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = d.MaxHistory
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = d.MaxMessageLength
	}
	if o.MaxResponseLength <= 0 {
		o.MaxResponseLength = d.MaxResponseLength
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = d.GenerationTimeout
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = d.CacheTTL
	}
	if o.CacheMaxAge <= 0 {
		o.CacheMaxAge = d.CacheMaxAge
	}
	if o.CacheLockTimeout <= 0 {
		o.CacheLockTimeout = d.CacheLockTimeout
	}
	if o.ContextTTL <= 0 {
		o.ContextTTL = d.ContextTTL
	}
	return o
}

// Deps are the collaborators of the Orchestrator. Only Completer is
// required; stateful components default to fresh instances and the optional
// stores are skipped when nil.
type Deps struct {
	Completer  domain.Completer
	Profiles   domain.ProfileStore
	Sentiment  domain.SentimentLog
	Journal    tools.Tool
	Memory     *sessionmemory.Store
	Protocols  *protocol.Engine
	Templates  *templates.Library
	Techniques *techniques.Catalog
	Tasks      *tasks.Queue
	Metrics    *observability.PipelineMetrics
	Now        func() time.Time
}

// Orchestrator is the response pipeline.
type Orchestrator struct {
	llm        domain.Completer
	profiles   domain.ProfileStore
	sentiment  domain.SentimentLog
	journal    tools.Tool
	memory     *sessionmemory.Store
	protocols  *protocol.Engine
	templates  *templates.Library
	techniques *techniques.Catalog
	tasks      *tasks.Queue
	metrics    *observability.PipelineMetrics
	now        func() time.Time

	emotions *classify.EmotionClassifier
	subtypes *classify.SubtypeClassifier
	topics   *classify.TopicClassifier
	intents  *classify.IntentClassifier

	responses    *cache.Cache[cachedReply]
	profileCache *cache.Cache[*domain.UserProfile]
	recordCache  *cache.Cache[*domain.TherapeuticRecord]

	usage TokenUsageStats
	opts  Options
}

// cachedReply is what the response cache stores.
type cachedReply struct {
	Content     string
	Emotion     domain.Emotion
	Therapeutic *domain.TherapeuticInfo
	CreatedAt   time.Time
}

// New builds an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Completer == nil {
		return nil, errors.New("agentflow: a completer is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		llm:        deps.Completer,
		profiles:   deps.Profiles,
		sentiment:  deps.Sentiment,
		journal:    deps.Journal,
		memory:     deps.Memory,
		protocols:  deps.Protocols,
		templates:  deps.Templates,
		techniques: deps.Techniques,
		tasks:      deps.Tasks,
		metrics:    deps.Metrics,
		now:        now,
		emotions:   classify.NewEmotionClassifier(nil),
		subtypes:   classify.NewSubtypeClassifier(nil),
		topics:     classify.NewTopicClassifier(nil),
		intents:    classify.NewIntentClassifier(),
		opts:       opts.withDefaults(),
	}
	if o.memory == nil {
		o.memory = sessionmemory.New(sessionmemory.WithClock(now))
	}
	if o.protocols == nil {
		o.protocols = protocol.NewEngine(protocol.DefaultRegistry(), protocol.WithClock(now))
	}
	if o.templates == nil {
		o.templates = templates.Default()
	}
	if o.techniques == nil {
		o.techniques = techniques.Default()
	}

	o.responses = cache.New[cachedReply](cache.WithDefaultTTL(o.opts.CacheTTL), cache.WithClock(now))
	o.profileCache = cache.New[*domain.UserProfile](cache.WithDefaultTTL(o.opts.ContextTTL), cache.WithClock(now))
	o.recordCache = cache.New[*domain.TherapeuticRecord](cache.WithDefaultTTL(o.opts.ContextTTL), cache.WithClock(now))
	return o, nil
}

// turn is the working state of one Respond call.
type turn struct {
	msg        domain.IncomingMessage
	mode       domain.InteractionMode
	emotional  domain.EmotionAnalysis
	contextual domain.Contextual
	history    []domain.ChatMessage
	profile    *domain.UserProfile
	record     *domain.TherapeuticRecord

	step      *protocol.Step
	protocol  *domain.ProtocolInfo
	completed string
}

func (t *turn) cacheable() bool {
	return t.step == nil && t.completed == "" && t.emotional.Intensity < safetyIntensity && !t.personalized()
}

// personalized reports whether the prompt carries lines about this user.
// Such replies are not shared through the response cache.
func (t *turn) personalized() bool {
	if t.profile != nil && t.profile.DisplayName != "" {
		return true
	}
	return t.record != nil && (len(t.record.TechniquesUsed) > 0 || len(t.record.CompletedProtocols) > 0)
}

// Respond runs the pipeline. It never panics and never fails: errors come
// back as a Response whose context carries the error fields.
func (o *Orchestrator) Respond(ctx context.Context, msg domain.IncomingMessage, pre *domain.Context) (resp domain.Response) {
	ctx, span := observability.Tracer().Start(ctx, "agentflow.Respond")
	defer span.End()
	ctx = observability.WithUserID(ctx, string(msg.UserID))
	log := observability.LoggerFromContext(ctx).With("conversation_id", msg.ConversationID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("respond panicked", "panic", r, "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, "panic")
			resp = o.failure(ctx, domain.NewUnknownError(fmt.Errorf("panic: %v", r)))
		}
	}()

	o.usage.requests.Add(1)
	if err := o.validate(msg); err != nil {
		log.Info("message rejected", "code", err.Code)
		return o.failure(ctx, err)
	}

	t := o.analyze(msg, pre)
	o.loadUserContext(ctx, t, pre)
	o.resolveProtocol(ctx, t)

	span.SetAttributes(
		attribute.String("farum.emotion", string(t.emotional.MainEmotion)),
		attribute.Int("farum.intensity", t.emotional.Intensity),
		attribute.String("farum.intent", t.contextual.Intent),
	)

	var (
		reply    cachedReply
		cached   bool
		fallback bool
		key      string
	)
	if t.cacheable() {
		key = ResponseKey(msg.Content, t.emotional.MainEmotion, t.contextual.Intent, t.emotional.Topic)
		if hit, ok := o.responses.Get(key); ok {
			if o.validHit(hit, t) {
				reply, cached = hit, true
				o.usage.cacheHits.Add(1)
			} else {
				o.responses.Delete(key)
			}
		}
	}

	if !cached {
		compose := func(ctx context.Context) (cachedReply, error) { return o.compose(ctx, t) }
		var err error
		if key != "" {
			reply, err = o.responses.GetOrSet(ctx, key, compose, o.responseTTL(), o.opts.CacheLockTimeout)
		} else {
			reply, err = compose(ctx)
		}
		if err != nil {
			var fb *fallbackReply
			if !errors.As(err, &fb) {
				span.SetStatus(codes.Error, err.Error())
				return o.failure(ctx, err)
			}
			reply, fallback = fb.reply, true
			o.usage.fallbacks.Add(1)
			o.metrics.RecordFallback(ctx)
		}
	}

	content := withSafety(reply.Content, t.emotional.Intensity)

	o.afterReply(ctx, t, reply)
	o.metrics.RecordResponse(ctx, string(t.emotional.MainEmotion), cached)
	span.SetAttributes(attribute.Bool("farum.cached", cached), attribute.Bool("farum.fallback", fallback))
	log.Info("reply ready",
		"emotion", t.emotional.MainEmotion,
		"intensity", t.emotional.Intensity,
		"intent", t.contextual.Intent,
		"cached", cached,
		"fallback", fallback,
		"protocol", protocolName(t.protocol),
	)

	emotional := t.emotional
	contextual := t.contextual
	return domain.Response{
		Content: content,
		Context: domain.ResponseContext{
			Emotional:   &emotional,
			Contextual:  &contextual,
			Therapeutic: reply.Therapeutic,
			Protocol:    t.protocol,
			Cached:      cached,
			Fallback:    fallback,
			Timestamp:   o.now().UTC(),
		},
	}
}

func (o *Orchestrator) validate(msg domain.IncomingMessage) *domain.Error {
	if strings.TrimSpace(msg.Content) == "" {
		return domain.NewValidationError(CodeEmptyMessage, "message content is empty")
	}
	if n := len([]rune(msg.Content)); n > o.opts.MaxMessageLength {
		return domain.NewValidationError(CodeMessageTooLong, fmt.Sprintf("message has %d characters, limit is %d", n, o.opts.MaxMessageLength))
	}
	if strings.TrimSpace(string(msg.UserID)) == "" {
		return domain.NewValidationError(CodeMissingUser, "user id is required")
	}
	return nil
}

// analyze fills every reading the caller did not precompute and records the
// analysis in the session buffer.
func (o *Orchestrator) analyze(msg domain.IncomingMessage, pre *domain.Context) *turn {
	t := &turn{msg: msg}
	if pre == nil {
		pre = &domain.Context{}
	}
	t.mode = pre.Mode
	t.history = pre.History

	if pre.Emotional != nil {
		t.emotional = *pre.Emotional
		t.emotional.Intensity = domain.ClampIntensity(t.emotional.Intensity)
	} else {
		t.emotional = o.emotions.Classify(msg.Content, o.memory.Recent(msg.UserID, classifierHistory))
	}
	if t.emotional.Subtype == "" {
		t.emotional.Subtype = o.subtypes.Classify(t.emotional.MainEmotion, msg.Content)
	}
	if t.emotional.Topic == "" {
		ranked := o.topics.Rank(msg.Content)
		t.emotional.Topics = classify.Topics(ranked)
		t.emotional.Topic = classify.TopicGeneral
		if len(ranked) > 0 {
			t.emotional.Topic = ranked[0].Topic
		}
	}

	o.memory.Add(msg.UserID, t.emotional)

	if pre.Contextual != nil {
		t.contextual = *pre.Contextual
	}
	if t.contextual.Intent == "" {
		t.contextual.Intent = o.intents.Classify(msg.Content, t.emotional.Category == domain.CategoryNegative)
	}
	if t.contextual.Phase == "" {
		t.contextual.Phase = phaseFor(t.history)
	}
	t.contextual.Trends = o.memory.Trends(msg.UserID)
	return t
}

// loadUserContext reads the profile and therapeutic record through the
// context cache. Failures only cost personalisation.
func (o *Orchestrator) loadUserContext(ctx context.Context, t *turn, pre *domain.Context) {
	if pre != nil {
		t.profile = pre.Profile
		t.record = pre.Therapeutic
	}
	defer func() {
		if t.contextual.Style == "" {
			t.contextual.Style = styleFor(t)
		}
	}()
	if o.profiles == nil {
		return
	}

	log := observability.LoggerFromContext(ctx)
	uid := t.msg.UserID
	g, gctx := errgroup.WithContext(ctx)
	if t.profile == nil {
		g.Go(func() error {
			p, err := o.profileCache.GetOrSet(gctx, profileKey(uid), func(ctx context.Context) (*domain.UserProfile, error) {
				p, err := o.profiles.GetProfile(ctx, uid)
				if errors.Is(err, domain.ErrNotFound) {
					return nil, nil
				}
				return p, err
			}, o.opts.ContextTTL, o.opts.CacheLockTimeout)
			if err != nil {
				log.Warn("profile unavailable", "error", err)
				return nil
			}
			t.profile = p
			return nil
		})
	}
	if t.record == nil {
		g.Go(func() error {
			r, err := o.recordCache.GetOrSet(gctx, recordKey(uid), func(ctx context.Context) (*domain.TherapeuticRecord, error) {
				r, err := o.profiles.GetTherapeuticRecord(ctx, uid)
				if errors.Is(err, domain.ErrNotFound) {
					return nil, nil
				}
				return r, err
			}, o.opts.ContextTTL, o.opts.CacheLockTimeout)
			if err != nil {
				log.Warn("therapeutic record unavailable", "error", err)
				return nil
			}
			t.record = r
			return nil
		})
	}
	_ = g.Wait()
}

func profileKey(uid domain.UserID) string { return cache.UserKey("profile", string(uid), "doc") }
func recordKey(uid domain.UserID) string  { return cache.UserKey("context", string(uid), "record") }

// resolveProtocol advances an active protocol, stops it on request, or
// starts one when a trigger fires.
func (o *Orchestrator) resolveProtocol(ctx context.Context, t *turn) {
	log := observability.LoggerFromContext(ctx)
	uid := t.msg.UserID

	if st, ok := o.protocols.Active(uid); ok {
		if protocol.WantsToStop(t.msg.Content) {
			o.protocols.Stop(uid)
			log.Info("protocol stopped by user", "protocol", st.ProtocolName)
			return
		}
		next, ok := o.protocols.Advance(uid)
		if !ok {
			last, _ := st.Current()
			t.completed = st.ProtocolName
			t.protocol = &domain.ProtocolInfo{Name: st.ProtocolName, Step: last.Step, StepName: last.Name, Completed: true}
			log.Info("protocol completed", "protocol", st.ProtocolName)
			return
		}
		t.step = &next
		t.protocol = &domain.ProtocolInfo{Name: st.ProtocolName, Step: next.Step, StepName: next.Name}
		return
	}

	name, ok := o.protocols.ShouldStart(t.emotional.MainEmotion, t.emotional.Intensity, t.emotional.Subtype, t.msg.Content)
	if !ok {
		return
	}
	st, ok := o.protocols.Start(uid, name)
	if !ok {
		return
	}
	first, ok := st.Current()
	if !ok {
		return
	}
	t.step = &first
	t.protocol = &domain.ProtocolInfo{Name: name, Step: first.Step, StepName: first.Name}
	log.Info("protocol started", "protocol", name)
}

// validHit reports whether a cached reply still fits the reading of this turn.
func (o *Orchestrator) validHit(hit cachedReply, t *turn) bool {
	if o.now().Sub(hit.CreatedAt) > o.opts.CacheMaxAge {
		return false
	}
	return hit.Emotion == t.emotional.MainEmotion
}

func (o *Orchestrator) responseTTL() time.Duration {
	ttl := o.opts.CacheTTL
	if ttl > o.opts.CacheMaxAge {
		ttl = o.opts.CacheMaxAge
	}
	if ttl < minResponseTTL {
		ttl = minResponseTTL
	}
	if o.opts.CacheMaxAge > 0 && ttl > o.opts.CacheMaxAge {
		ttl = o.opts.CacheMaxAge
	}
	return ttl
}

// fallbackReply carries a locally produced reply out of a cache fetch, so
// that it reaches the caller without being cached.
type fallbackReply struct {
	reply cachedReply
	cause error
}

func (f *fallbackReply) Error() string { return "fallback reply: " + f.cause.Error() }
func (f *fallbackReply) Unwrap() error { return f.cause }

// compose generates and shapes a reply.
func (o *Orchestrator) compose(ctx context.Context, t *turn) (cachedReply, error) {
	log := observability.LoggerFromContext(ctx)
	req := o.buildRequest(t)

	genCtx, cancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	defer cancel()

	start := o.now()
	res, err := o.llm.Complete(genCtx, req)
	o.metrics.RecordGeneration(ctx, float64(o.now().Sub(start).Microseconds())/1000)

	if err == nil && res == nil {
		err = domain.NewEmptyGenerationError("")
	}
	if err == nil {
		o.usage.record(res.Usage)
		o.metrics.RecordTokens(ctx, res.Usage.PromptTokens, res.Usage.CompletionTokens)
		if strings.TrimSpace(res.Content) == "" {
			err = domain.NewEmptyGenerationError(res.FinishReason)
		}
	}
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindAuthentication, domain.KindRateLimit, domain.KindServer:
			return cachedReply{}, err
		}
		log.Warn("generation failed, using fallback responder", "error", err)
		content, info := o.shape(t, o.fallback(t))
		return cachedReply{}, &fallbackReply{
			reply: cachedReply{Content: content, Emotion: t.emotional.MainEmotion, Therapeutic: info, CreatedAt: o.now()},
			cause: err,
		}
	}

	content, info := o.shape(t, res.Content)
	return cachedReply{Content: content, Emotion: t.emotional.MainEmotion, Therapeutic: info, CreatedAt: o.now()}, nil
}

// shape applies the protocol rewrite or the template and technique
// additions, then validates and repairs the text.
func (o *Orchestrator) shape(t *turn, content string) (string, *domain.TherapeuticInfo) {
	var info *domain.TherapeuticInfo
	content = strings.TrimSpace(content)

	if t.step != nil {
		content = rewriteForStep(content, *t.step)
	} else {
		content = o.withTemplate(t, content)
		if classify.ExplicitTechniqueRequest(t.contextual.Intent) {
			if tech, ok := o.selectTechnique(t); ok {
				content += "\n\n" + tech.Render()
				info = tech.Info()
			}
		}
	}

	return o.repair(t, content), info
}

func (o *Orchestrator) selectTechnique(t *turn) (techniques.Technique, bool) {
	var used []string
	if t.record != nil {
		used = t.record.TechniquesUsed
	}
	return o.techniques.Select(t.emotional.MainEmotion, t.emotional.Subtype, used)
}

// Stats is a snapshot of the pipeline's counters and state sizes.
type Stats struct {
	Usage           UsageSnapshot `json:"usage"`
	ResponseCache   cache.Stats   `json:"response_cache"`
	ProfileCache    cache.Stats   `json:"profile_cache"`
	RecordCache     cache.Stats   `json:"record_cache"`
	ActiveProtocols int           `json:"active_protocols"`
	TrackedUsers    int           `json:"tracked_users"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Usage:           o.usage.Snapshot(),
		ResponseCache:   o.responses.Stats(),
		ProfileCache:    o.profileCache.Stats(),
		RecordCache:     o.recordCache.Stats(),
		ActiveProtocols: o.protocols.Len(),
		TrackedUsers:    o.memory.Len(),
	}
}

// Trends returns the emotional trends of a user's session buffer.
func (o *Orchestrator) Trends(userID domain.UserID) domain.EmotionalTrends {
	return o.memory.Trends(userID)
}

// Protocols exposes the registry the engine runs on.
func (o *Orchestrator) Protocols() *protocol.Registry {
	return o.protocols.Registry()
}

// ForgetUser drops the cached profile and record of a user, e.g. after an
// external update.
func (o *Orchestrator) ForgetUser(userID domain.UserID) {
	o.profileCache.InvalidateUser(string(userID))
	o.recordCache.InvalidateUser(string(userID))
}

// StartSweepers removes expired cache entries every interval until ctx ends.
func (o *Orchestrator) StartSweepers(ctx context.Context, interval time.Duration) {
	o.responses.StartSweeper(ctx, interval)
	o.profileCache.StartSweeper(ctx, interval)
	o.recordCache.StartSweeper(ctx, interval)
}

// EvictIdle drops session buffers and protocol states untouched for maxIdle.
func (o *Orchestrator) EvictIdle(maxIdle time.Duration) (buffers, protocols int) {
	return o.memory.EvictIdle(maxIdle), o.protocols.EvictIdle(maxIdle)
}

// RunJanitor calls EvictIdle every interval until ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b, p := o.EvictIdle(maxIdle)
			if b > 0 || p > 0 {
				observability.Logger().Info("evicted idle state", "buffers", b, "protocols", p)
			}
		}
	}
}

// Close stops the cache sweepers.
func (o *Orchestrator) Close() {
	o.responses.Close()
	o.profileCache.Close()
	o.recordCache.Close()
}

func protocolName(p *domain.ProtocolInfo) string {
	if p == nil {
		return ""
	}
	return p.Name
}
