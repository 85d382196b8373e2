package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// Profiles, therapeutic records and goals live under users/{id}; sentiment
// and journal entries are subcollections of the same document.

func (s *Store) userDoc(userID domain.UserID) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(string(userID))
}

func (s *Store) recordDoc(userID domain.UserID) *firestore.DocumentRef {
	return s.userDoc(userID).Collection("records").Doc("therapeutic")
}

func (s *Store) goalsCol(userID domain.UserID) *firestore.CollectionRef {
	return s.userDoc(userID).Collection("goals")
}

func (s *Store) GetProfile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	snap, err := s.userDoc(userID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("firestore GetProfile: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("firestore GetProfile: %w", err)
	}
	var p domain.UserProfile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("firestore GetProfile decode: %w", err)
	}
	p.UserID = userID
	return &p, nil
}

// UpsertProfile writes the profile inside a transaction so the original
// creation time survives.
func (s *Store) UpsertProfile(ctx context.Context, profile *domain.UserProfile) (*domain.UserProfile, error) {
	cp := *profile
	ref := s.userDoc(cp.UserID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var prev domain.UserProfile
			if err := snap.DataTo(&prev); err == nil && !prev.CreatedAt.IsZero() {
				cp.CreatedAt = prev.CreatedAt
			}
		case isNotFound(err):
			if cp.CreatedAt.IsZero() {
				cp.CreatedAt = now
			}
		default:
			return err
		}
		cp.UpdatedAt = now
		return tx.Set(ref, cp)
	})
	if err != nil {
		return nil, fmt.Errorf("firestore UpsertProfile: %w", err)
	}
	return &cp, nil
}

func (s *Store) GetTherapeuticRecord(ctx context.Context, userID domain.UserID) (*domain.TherapeuticRecord, error) {
	snap, err := s.recordDoc(userID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("firestore GetTherapeuticRecord: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("firestore GetTherapeuticRecord: %w", err)
	}
	var r domain.TherapeuticRecord
	if err := snap.DataTo(&r); err != nil {
		return nil, fmt.Errorf("firestore GetTherapeuticRecord decode: %w", err)
	}
	r.UserID = userID
	return &r, nil
}

func (s *Store) UpsertTherapeuticRecord(ctx context.Context, record *domain.TherapeuticRecord) (*domain.TherapeuticRecord, error) {
	cp := *record
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	if _, err := s.recordDoc(cp.UserID).Set(ctx, cp); err != nil {
		return nil, fmt.Errorf("firestore UpsertTherapeuticRecord: %w", err)
	}
	return &cp, nil
}

func (s *Store) UpsertGoal(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	cp := *goal
	now := time.Now().UTC()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = domain.GoalActive
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if _, err := s.goalsCol(cp.UserID).Doc(cp.ID).Set(ctx, cp); err != nil {
		return nil, fmt.Errorf("firestore UpsertGoal: %w", err)
	}
	return &cp, nil
}

func (s *Store) ListGoals(ctx context.Context, userID domain.UserID) ([]*domain.Goal, error) {
	iter := s.goalsCol(userID).OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Goal
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListGoals: %w", err)
		}
		var g domain.Goal
		if err := snap.DataTo(&g); err != nil {
			return nil, fmt.Errorf("decode goal: %w", err)
		}
		out = append(out, &g)
	}
	return out, nil
}

type sentimentDoc struct {
	ConversationID string    `firestore:"conversation_id"`
	Emotion        string    `firestore:"emotion"`
	Intensity      int       `firestore:"intensity"`
	Category       string    `firestore:"category"`
	Topic          string    `firestore:"topic"`
	Protocol       string    `firestore:"protocol"`
	CreatedAt      time.Time `firestore:"created_at"`
}

// RecordSentiment implements domain.SentimentLog.
func (s *Store) RecordSentiment(ctx context.Context, rec domain.SentimentRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	col := s.userDoc(rec.UserID).Collection("sentiment")
	ref := col.NewDoc()
	if rec.ID != "" {
		ref = col.Doc(rec.ID)
	}
	_, err := ref.Set(ctx, sentimentDoc{
		ConversationID: string(rec.ConversationID),
		Emotion:        string(rec.Emotion),
		Intensity:      rec.Intensity,
		Category:       string(rec.Category),
		Topic:          rec.Topic,
		Protocol:       rec.Protocol,
		CreatedAt:      rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("firestore RecordSentiment: %w", err)
	}
	return nil
}

type journalDoc struct {
	SessionID      string                 `firestore:"session_id"`
	Protocol       string                 `firestore:"protocol"`
	ProblemSummary string                 `firestore:"problem_summary"`
	ActionPlan     []domain.JournalAction `firestore:"action_plan"`
	Reflection     string                 `firestore:"reflection"`
	MoodBefore     string                 `firestore:"mood_before"`
	MoodAfter      string                 `firestore:"mood_after"`
	CreatedAt      time.Time              `firestore:"created_at"`
	UpdatedAt      time.Time              `firestore:"updated_at"`
}

// AppendJournalEntry implements domain.JournalStore.
func (s *Store) AppendJournalEntry(ctx context.Context, entry *domain.JournalEntry) error {
	if entry == nil {
		return nil
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	col := s.userDoc(entry.UserID).Collection("journal")
	ref := col.NewDoc()
	if entry.ID != "" {
		ref = col.Doc(string(entry.ID))
	} else {
		entry.ID = domain.JournalEntryID(ref.ID)
	}

	_, err := ref.Set(ctx, journalDoc{
		SessionID:      string(entry.SessionID),
		Protocol:       entry.Protocol,
		ProblemSummary: entry.ProblemSummary,
		ActionPlan:     entry.ActionPlan,
		Reflection:     entry.Reflection,
		MoodBefore:     entry.MoodBefore,
		MoodAfter:      entry.MoodAfter,
		CreatedAt:      entry.CreatedAt,
		UpdatedAt:      entry.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("firestore AppendJournalEntry: %w", err)
	}
	return nil
}

// ListJournalEntriesByUser returns the last limit entries in chronological
// order. If limit <= 0, returns all.
func (s *Store) ListJournalEntriesByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.JournalEntry, error) {
	q := s.userDoc(userID).Collection("journal").OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.LimitToLast(limit)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore ListJournalEntriesByUser: %w", err)
	}

	out := make([]*domain.JournalEntry, 0, len(snaps))
	for _, snap := range snaps {
		var doc journalDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode journalDoc: %w", err)
		}
		out = append(out, &domain.JournalEntry{
			ID:             domain.JournalEntryID(snap.Ref.ID),
			SessionID:      domain.SessionID(doc.SessionID),
			UserID:         userID,
			Protocol:       doc.Protocol,
			ProblemSummary: doc.ProblemSummary,
			ActionPlan:     doc.ActionPlan,
			Reflection:     doc.Reflection,
			MoodBefore:     doc.MoodBefore,
			MoodAfter:      doc.MoodAfter,
			CreatedAt:      doc.CreatedAt,
			UpdatedAt:      doc.UpdatedAt,
		})
	}
	return out, nil
}
