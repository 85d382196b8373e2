// Package postgres provides the PostgreSQL storage layer: profiles,
// therapeutic records, goals, the sentiment log and journal entries.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema files.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Store wraps a pgxpool.Pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store with a connection pool and applies pending
// migrations.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping pool: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.RunMigrations(ctx, Migrations()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks connectivity to the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RunMigrations executes unapplied SQL files in name order, tracking them
// in schema_migrations.
func (s *Store) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("postgres: create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("postgres: load applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("postgres: load applied migrations: %w", err)
	}
	for _, v := range versions {
		applied[v] = true
	}

	names, err := migrationNames(migrationsFS)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", name, err)
		}

		s.logger.Info("running migration", "file", name)
		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("postgres: execute migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name,
		); err != nil {
			return fmt.Errorf("postgres: record migration %s: %w", name, err)
		}
	}
	return nil
}

func migrationNames(migrationsFS fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) GetProfile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	var p domain.UserProfile
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, display_name, preferred_style, preferred_mode, language, created_at, updated_at
		FROM profiles WHERE user_id = $1`, string(userID)).
		Scan(&p.UserID, &p.DisplayName, &p.PreferredStyle, &p.PreferredMode, &p.Language, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: get profile: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile inserts or updates a profile, keeping its creation time.
func (s *Store) UpsertProfile(ctx context.Context, profile *domain.UserProfile) (*domain.UserProfile, error) {
	var p domain.UserProfile
	err := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (user_id, display_name, preferred_style, preferred_mode, language)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			preferred_style = EXCLUDED.preferred_style,
			preferred_mode = EXCLUDED.preferred_mode,
			language = EXCLUDED.language,
			updated_at = now()
		RETURNING user_id, display_name, preferred_style, preferred_mode, language, created_at, updated_at`,
		string(profile.UserID), profile.DisplayName, string(profile.PreferredStyle),
		string(profile.PreferredMode), profile.Language).
		Scan(&p.UserID, &p.DisplayName, &p.PreferredStyle, &p.PreferredMode, &p.Language, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert profile: %w", err)
	}
	return &p, nil
}

func (s *Store) GetTherapeuticRecord(ctx context.Context, userID domain.UserID) (*domain.TherapeuticRecord, error) {
	r := domain.TherapeuticRecord{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		SELECT last_emotion, last_intensity, emotion_counts, techniques_used, completed_protocols, interactions, updated_at
		FROM therapeutic_records WHERE user_id = $1`, string(userID)).
		Scan(&r.LastEmotion, &r.LastIntensity, &r.EmotionCounts, &r.TechniquesUsed, &r.CompletedProtocols, &r.Interactions, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: get therapeutic record: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get therapeutic record: %w", err)
	}
	return &r, nil
}

func (s *Store) UpsertTherapeuticRecord(ctx context.Context, record *domain.TherapeuticRecord) (*domain.TherapeuticRecord, error) {
	cp := *record
	if cp.EmotionCounts == nil {
		cp.EmotionCounts = map[string]int{}
	}
	if cp.TechniquesUsed == nil {
		cp.TechniquesUsed = []string{}
	}
	if cp.CompletedProtocols == nil {
		cp.CompletedProtocols = []string{}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO therapeutic_records
			(user_id, last_emotion, last_intensity, emotion_counts, techniques_used, completed_protocols, interactions, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id) DO UPDATE SET
			last_emotion = EXCLUDED.last_emotion,
			last_intensity = EXCLUDED.last_intensity,
			emotion_counts = EXCLUDED.emotion_counts,
			techniques_used = EXCLUDED.techniques_used,
			completed_protocols = EXCLUDED.completed_protocols,
			interactions = EXCLUDED.interactions,
			updated_at = now()
		RETURNING updated_at`,
		string(cp.UserID), string(cp.LastEmotion), cp.LastIntensity, cp.EmotionCounts,
		cp.TechniquesUsed, cp.CompletedProtocols, cp.Interactions).Scan(&cp.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert therapeutic record: %w", err)
	}
	return &cp, nil
}

// UpsertGoal stores goal, assigning a UUID to new goals.
func (s *Store) UpsertGoal(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	cp := *goal
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = domain.GoalActive
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO goals (id, user_id, description, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			updated_at = now()
		RETURNING created_at, updated_at`,
		cp.ID, string(cp.UserID), cp.Description, string(cp.Status)).Scan(&cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: upsert goal: %w", err)
	}
	return &cp, nil
}

// ListGoals returns the user's goals, oldest first.
func (s *Store) ListGoals(ctx context.Context, userID domain.UserID) ([]*domain.Goal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, user_id, description, status, created_at, updated_at
		FROM goals WHERE user_id = $1 ORDER BY created_at, id`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list goals: %w", err)
	}
	goals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Goal, error) {
		var g domain.Goal
		err := row.Scan(&g.ID, &g.UserID, &g.Description, &g.Status, &g.CreatedAt, &g.UpdatedAt)
		return &g, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list goals: %w", err)
	}
	return goals, nil
}

// RecordSentiment implements domain.SentimentLog.
func (s *Store) RecordSentiment(ctx context.Context, rec domain.SentimentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sentiment_log (id, user_id, conversation_id, emotion, intensity, category, topic, protocol)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, string(rec.UserID), string(rec.ConversationID), string(rec.Emotion), rec.Intensity,
		string(rec.Category), rec.Topic, rec.Protocol)
	if err != nil {
		return fmt.Errorf("postgres: record sentiment: %w", err)
	}
	return nil
}

// AppendJournalEntry implements domain.JournalStore.
func (s *Store) AppendJournalEntry(ctx context.Context, entry *domain.JournalEntry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = domain.JournalEntryID(uuid.NewString())
	}
	plan := entry.ActionPlan
	if plan == nil {
		plan = []domain.JournalAction{}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO journal_entries
			(id, user_id, session_id, protocol, problem_summary, action_plan, reflection, mood_before, mood_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		string(entry.ID), string(entry.UserID), string(entry.SessionID), entry.Protocol,
		entry.ProblemSummary, plan, entry.Reflection, entry.MoodBefore, entry.MoodAfter).
		Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append journal entry: %w", err)
	}
	return nil
}

// ListJournalEntriesByUser returns the last limit entries of a user in
// chronological order. If limit <= 0, returns all.
func (s *Store) ListJournalEntriesByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.JournalEntry, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, protocol, problem_summary, action_plan, reflection, mood_before, mood_after, created_at, updated_at
		FROM (
			SELECT id::text, session_id, protocol, problem_summary, action_plan, reflection, mood_before, mood_after, created_at, updated_at
			FROM journal_entries WHERE user_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at`, string(userID), lim)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.JournalEntry, error) {
		e := domain.JournalEntry{UserID: userID}
		err := row.Scan(&e.ID, &e.SessionID, &e.Protocol, &e.ProblemSummary, &e.ActionPlan,
			&e.Reflection, &e.MoodBefore, &e.MoodAfter, &e.CreatedAt, &e.UpdatedAt)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal entries: %w", err)
	}
	if entries == nil {
		entries = []*domain.JournalEntry{}
	}
	return entries, nil
}
