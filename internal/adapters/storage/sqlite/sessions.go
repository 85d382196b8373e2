package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, preferred_mode, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(session.ID), string(session.UserID), string(session.PreferredMode), session.Title,
		toMillis(session.CreatedAt), toMillis(session.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: create session: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET preferred_mode = ?, title = ?, updated_at = ? WHERE id = ?`,
		string(session.PreferredMode), session.Title, toMillis(session.UpdatedAt), string(session.ID))
	if err != nil {
		return fmt.Errorf("sqlite: update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: update session %s: %w", session.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, preferred_mode, title, created_at, updated_at
		FROM sessions WHERE id = ?`, string(id))
	sess, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: get session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get session: %w", err)
	}
	return sess, nil
}

// ListSessionsByUser returns the user's sessions, newest first.
func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, preferred_mode, title, created_at, updated_at
		FROM sessions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(scan func(dest ...any) error) (*domain.Session, error) {
	var (
		sess                 domain.Session
		id, userID, modeName string
		created, updated     int64
	)
	if err := scan(&id, &userID, &modeName, &sess.Title, &created, &updated); err != nil {
		return nil, err
	}
	sess.ID = domain.SessionID(id)
	sess.UserID = domain.UserID(userID)
	sess.PreferredMode = domain.InteractionMode(modeName)
	sess.CreatedAt = fromMillis(created)
	sess.UpdatedAt = fromMillis(updated)
	return &sess, nil
}

// AppendMessage stores a message, assigning a ULID when it has no ID.
func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = domain.MessageID(s.newID())
	}
	tags := msg.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("sqlite: encode tags: %w", err)
	}
	var replyTo sql.NullString
	if msg.ReplyTo != nil {
		replyTo = sql.NullString{String: string(*msg.ReplyTo), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, author, text, mode, content_type, tags_json, reply_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.SessionID), string(msg.Author), msg.Text, string(msg.Mode),
		msg.ContentType, string(tagsJSON), replyTo, toMillis(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: append message: %w", err)
	}
	return nil
}

// GetMessagesBySession returns the last limit messages in order, or all of
// them when limit <= 0.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author, text, mode, content_type, tags_json, reply_to, created_at
		FROM (
		  SELECT * FROM messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`, string(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var (
			m                    domain.Message
			id, author, modeName string
			tagsRaw              string
			replyTo              sql.NullString
			created              int64
		)
		if err := rows.Scan(&id, &author, &m.Text, &modeName, &m.ContentType, &tagsRaw, &replyTo, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsRaw), &m.Tags); err != nil {
			return nil, fmt.Errorf("sqlite: decode tags: %w", err)
		}
		m.ID = domain.MessageID(id)
		m.SessionID = sessionID
		m.Author = domain.Role(author)
		m.Mode = domain.InteractionMode(modeName)
		m.CreatedAt = fromMillis(created)
		if replyTo.Valid {
			ref := domain.MessageID(replyTo.String)
			m.ReplyTo = &ref
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
