package agentflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/farum-companion/internal/app/classify"
	"github.com/PabloGalante/farum-companion/internal/app/tools"
	"github.com/PabloGalante/farum-companion/internal/cache"
	"github.com/PabloGalante/farum-companion/internal/domain"
	"github.com/PabloGalante/farum-companion/internal/observability"
)

const (
	maxGoalRunes   = 280
	maxKeyRunes    = 200
	journalSummary = "Protocolo %s completado."
)

// ResponseKey is the response-cache key of a message under a reading.
func ResponseKey(message string, emotion domain.Emotion, intent, topic string) string {
	norm := []rune(classify.Normalize(message))
	if len(norm) > maxKeyRunes {
		norm = norm[:maxKeyRunes]
	}
	return "response:" + cache.Digest(string(norm), string(emotion), intent, topic)
}

// afterReply runs the side effects of a finished turn. They go to the task
// queue when there is one and run inline otherwise; either way a failure is
// only logged.
func (o *Orchestrator) afterReply(ctx context.Context, t *turn, reply cachedReply) {
	log := observability.LoggerFromContext(ctx)
	var technique string
	if reply.Therapeutic != nil {
		technique = reply.Therapeutic.Technique
	}
	now := o.now().UTC()

	var jobs []namedJob
	if o.sentiment != nil {
		jobs = append(jobs, namedJob{"record_sentiment", func(ctx context.Context) error {
			return o.sentiment.RecordSentiment(ctx, domain.SentimentRecord{
				UserID:         t.msg.UserID,
				ConversationID: t.msg.ConversationID,
				Emotion:        t.emotional.MainEmotion,
				Intensity:      t.emotional.Intensity,
				Category:       t.emotional.Category,
				Topic:          t.emotional.Topic,
				Protocol:       protocolName(t.protocol),
				CreatedAt:      now,
			})
		}})
	}
	if o.profiles != nil {
		jobs = append(jobs, namedJob{"update_record", func(ctx context.Context) error {
			return o.updateRecord(ctx, t, technique, now)
		}})
		if t.contextual.Intent == classify.IntentGoalSetting {
			jobs = append(jobs, namedJob{"capture_goal", func(ctx context.Context) error {
				_, err := o.profiles.UpsertGoal(ctx, &domain.Goal{
					UserID:      t.msg.UserID,
					Description: goalText(t.msg.Content),
					Status:      domain.GoalActive,
					CreatedAt:   now,
					UpdatedAt:   now,
				})
				return err
			}})
		}
	}
	if o.journal != nil && t.completed != "" {
		jobs = append(jobs, namedJob{"journal_protocol", func(ctx context.Context) error {
			_, err := o.journal.Call(ctx, tools.ToolContext{
				UserID:         t.msg.UserID,
				ConversationID: t.msg.ConversationID,
				RequestID:      observability.RequestIDFromContext(ctx),
			}, o.journalInput(t))
			return err
		}})
	}

	for _, j := range jobs {
		if o.tasks != nil {
			o.tasks.Go(ctx, j.name, j.run)
			continue
		}
		if err := j.run(context.WithoutCancel(ctx)); err != nil {
			log.Warn("side effect failed", "task", j.name, "error", err)
		}
	}
}

type namedJob struct {
	name string
	run  func(ctx context.Context) error
}

// updateRecord folds the turn into the stored therapeutic record and
// refreshes the context cache with the result.
func (o *Orchestrator) updateRecord(ctx context.Context, t *turn, technique string, now time.Time) error {
	uid := t.msg.UserID
	rec, err := o.profiles.GetTherapeuticRecord(ctx, uid)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		rec = &domain.TherapeuticRecord{UserID: uid}
	case err != nil:
		return fmt.Errorf("load record: %w", err)
	}

	rec.Apply(t.emotional, technique, t.completed, now)
	saved, err := o.profiles.UpsertTherapeuticRecord(ctx, rec)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	o.recordCache.Set(recordKey(uid), saved, o.opts.ContextTTL)
	return nil
}

func (o *Orchestrator) journalInput(t *turn) map[string]any {
	in := map[string]any{
		"protocol":        t.completed,
		"problem_summary": fmt.Sprintf(journalSummary, t.completed),
		"reflection":      t.msg.Content,
		"mood_after":      string(t.emotional.MainEmotion),
	}
	if t.record != nil && t.record.LastEmotion != "" {
		in["mood_before"] = string(t.record.LastEmotion)
	}
	return in
}

func goalText(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxGoalRunes {
		return string(r[:maxGoalRunes])
	}
	return s
}
