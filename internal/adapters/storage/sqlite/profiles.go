package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

func (s *Store) GetProfile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, preferred_style, preferred_mode, language, created_at, updated_at
		FROM profiles WHERE user_id = ?`, string(userID))
	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get profile: %w", err)
	}
	return p, nil
}

// UpsertProfile inserts or replaces a profile, keeping the original
// creation time.
func (s *Store) UpsertProfile(ctx context.Context, profile *domain.UserProfile) (*domain.UserProfile, error) {
	now := toMillis(s.now())
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, display_name, preferred_style, preferred_mode, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		  display_name = excluded.display_name,
		  preferred_style = excluded.preferred_style,
		  preferred_mode = excluded.preferred_mode,
		  language = excluded.language,
		  updated_at = excluded.updated_at
		RETURNING user_id, display_name, preferred_style, preferred_mode, language, created_at, updated_at`,
		string(profile.UserID), profile.DisplayName, string(profile.PreferredStyle),
		string(profile.PreferredMode), profile.Language, now, now)
	p, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: upsert profile: %w", err)
	}
	return p, nil
}

func scanProfile(row *sql.Row) (*domain.UserProfile, error) {
	var (
		p                  domain.UserProfile
		userID, style, mod string
		created, updated   int64
	)
	err := row.Scan(&userID, &p.DisplayName, &style, &mod, &p.Language, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.UserID = domain.UserID(userID)
	p.PreferredStyle = domain.ResponseStyle(style)
	p.PreferredMode = domain.InteractionMode(mod)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func (s *Store) GetTherapeuticRecord(ctx context.Context, userID domain.UserID) (*domain.TherapeuticRecord, error) {
	var (
		r                         domain.TherapeuticRecord
		emotion                   string
		counts, techniques, proto string
		updated                   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT last_emotion, last_intensity, emotion_counts_json, techniques_json, protocols_json, interactions, updated_at
		FROM therapeutic_records WHERE user_id = ?`, string(userID)).
		Scan(&emotion, &r.LastIntensity, &counts, &techniques, &proto, &r.Interactions, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: get therapeutic record: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get therapeutic record: %w", err)
	}

	r.UserID = userID
	r.LastEmotion = domain.Emotion(emotion)
	r.UpdatedAt = fromMillis(updated)
	if err := json.Unmarshal([]byte(counts), &r.EmotionCounts); err != nil {
		return nil, fmt.Errorf("sqlite: decode emotion counts: %w", err)
	}
	if err := json.Unmarshal([]byte(techniques), &r.TechniquesUsed); err != nil {
		return nil, fmt.Errorf("sqlite: decode techniques: %w", err)
	}
	if err := json.Unmarshal([]byte(proto), &r.CompletedProtocols); err != nil {
		return nil, fmt.Errorf("sqlite: decode protocols: %w", err)
	}
	return &r, nil
}

func (s *Store) UpsertTherapeuticRecord(ctx context.Context, record *domain.TherapeuticRecord) (*domain.TherapeuticRecord, error) {
	cp := *record
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	if cp.EmotionCounts == nil {
		cp.EmotionCounts = map[string]int{}
	}
	counts, err := json.Marshal(cp.EmotionCounts)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode emotion counts: %w", err)
	}
	techniques, err := json.Marshal(nonNil(cp.TechniquesUsed))
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode techniques: %w", err)
	}
	protocols, err := json.Marshal(nonNil(cp.CompletedProtocols))
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode protocols: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO therapeutic_records
		  (user_id, last_emotion, last_intensity, emotion_counts_json, techniques_json, protocols_json, interactions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		  last_emotion = excluded.last_emotion,
		  last_intensity = excluded.last_intensity,
		  emotion_counts_json = excluded.emotion_counts_json,
		  techniques_json = excluded.techniques_json,
		  protocols_json = excluded.protocols_json,
		  interactions = excluded.interactions,
		  updated_at = excluded.updated_at`,
		string(cp.UserID), string(cp.LastEmotion), cp.LastIntensity,
		string(counts), string(techniques), string(protocols), cp.Interactions, toMillis(cp.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("sqlite: upsert therapeutic record: %w", err)
	}
	return &cp, nil
}

// UpsertGoal stores goal, assigning a ULID to new goals.
func (s *Store) UpsertGoal(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	cp := *goal
	if cp.ID == "" {
		cp.ID = s.newID()
	}
	if cp.Status == "" {
		cp.Status = domain.GoalActive
	}
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	var created int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO goals (id, user_id, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  description = excluded.description,
		  status = excluded.status,
		  updated_at = excluded.updated_at
		RETURNING created_at`,
		cp.ID, string(cp.UserID), cp.Description, string(cp.Status),
		toMillis(cp.CreatedAt), toMillis(cp.UpdatedAt)).Scan(&created)
	if err != nil {
		return nil, fmt.Errorf("sqlite: upsert goal: %w", err)
	}
	cp.CreatedAt = fromMillis(created)
	return &cp, nil
}

// ListGoals returns the user's goals, oldest first.
func (s *Store) ListGoals(ctx context.Context, userID domain.UserID) ([]*domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, status, created_at, updated_at
		FROM goals WHERE user_id = ? ORDER BY created_at, id`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list goals: %w", err)
	}
	defer rows.Close()

	var out []*domain.Goal
	for rows.Next() {
		var (
			g                domain.Goal
			status           string
			created, updated int64
		)
		if err := rows.Scan(&g.ID, &g.Description, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan goal: %w", err)
		}
		g.UserID = userID
		g.Status = domain.GoalStatus(status)
		g.CreatedAt = fromMillis(created)
		g.UpdatedAt = fromMillis(updated)
		out = append(out, &g)
	}
	return out, rows.Err()
}

// RecordSentiment implements domain.SentimentLog.
func (s *Store) RecordSentiment(ctx context.Context, rec domain.SentimentRecord) error {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sentiment_log (id, user_id, conversation_id, emotion, intensity, category, topic, protocol, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.UserID), string(rec.ConversationID), string(rec.Emotion), rec.Intensity,
		string(rec.Category), rec.Topic, rec.Protocol, toMillis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: record sentiment: %w", err)
	}
	return nil
}

// ListSentiment returns the most recent sentiment records of a user, newest
// first.
func (s *Store) ListSentiment(ctx context.Context, userID domain.UserID, limit int) ([]domain.SentimentRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, emotion, intensity, category, topic, protocol, created_at
		FROM sentiment_log WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sentiment: %w", err)
	}
	defer rows.Close()

	var out []domain.SentimentRecord
	for rows.Next() {
		var (
			r                       domain.SentimentRecord
			conv, emotion, category string
			created                 int64
		)
		if err := rows.Scan(&r.ID, &conv, &emotion, &r.Intensity, &category, &r.Topic, &r.Protocol, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan sentiment: %w", err)
		}
		r.UserID = userID
		r.ConversationID = domain.ConversationID(conv)
		r.Emotion = domain.Emotion(emotion)
		r.Category = domain.Category(category)
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
