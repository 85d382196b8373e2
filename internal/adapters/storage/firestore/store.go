package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (FARUM_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// Close releases the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	UserID        string    `firestore:"user_id"`
	Title         string    `firestore:"title"`
	PreferredMode string    `firestore:"preferred_mode"`
	CreatedAt     time.Time `firestore:"created_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	SessionID   string    `firestore:"session_id"`
	Author      string    `firestore:"author"`
	Text        string    `firestore:"text"`
	Mode        string    `firestore:"mode"`
	CreatedAt   time.Time `firestore:"created_at"`
	Tags        []string  `firestore:"tags"`
	ReplyTo     *string   `firestore:"reply_to"`
	ContentType string    `firestore:"content_type"`
}

func toSessionDoc(session *domain.Session) sessionDoc {
	return sessionDoc{
		UserID:        string(session.UserID),
		Title:         session.Title,
		PreferredMode: string(session.PreferredMode),
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}
}

func (d sessionDoc) toDomain(id domain.SessionID) *domain.Session {
	return &domain.Session{
		ID:            id,
		UserID:        domain.UserID(d.UserID),
		Title:         d.Title,
		PreferredMode: domain.InteractionMode(d.PreferredMode),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func toMessageDoc(msg *domain.Message) messageDoc {
	var replyTo *string
	if msg.ReplyTo != nil {
		v := string(*msg.ReplyTo)
		replyTo = &v
	}
	return messageDoc{
		SessionID:   string(msg.SessionID),
		Author:      string(msg.Author),
		Text:        msg.Text,
		Mode:        string(msg.Mode),
		CreatedAt:   msg.CreatedAt,
		Tags:        msg.Tags,
		ReplyTo:     replyTo,
		ContentType: msg.ContentType,
	}
}

func (d messageDoc) toDomain(id domain.MessageID) *domain.Message {
	var replyTo *domain.MessageID
	if d.ReplyTo != nil {
		ref := domain.MessageID(*d.ReplyTo)
		replyTo = &ref
	}
	return &domain.Message{
		ID:          id,
		SessionID:   domain.SessionID(d.SessionID),
		Author:      domain.Role(d.Author),
		Text:        d.Text,
		Mode:        domain.InteractionMode(d.Mode),
		CreatedAt:   d.CreatedAt,
		Tags:        d.Tags,
		ReplyTo:     replyTo,
		ContentType: d.ContentType,
	}
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	if _, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session)); err != nil {
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.sessionDoc(session.ID).Update(ctx, []firestore.Update{
		{Path: "title", Value: session.Title},
		{Path: "preferred_mode", Value: string(session.PreferredMode)},
		{Path: "updated_at", Value: session.UpdatedAt},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("firestore UpdateSession: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("firestore GetSession: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return doc.toDomain(id), nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	q := s.sessionsCol().Where("user_id", "==", string(userID)).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListSessionsByUser: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		out = append(out, doc.toDomain(domain.SessionID(snap.Ref.ID)))
	}
	return out, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	ref := s.messagesCol(msg.SessionID).NewDoc()
	if msg.ID != "" {
		ref = s.messagesCol(msg.SessionID).Doc(string(msg.ID))
	} else {
		msg.ID = domain.MessageID(ref.ID)
	}

	if _, err := ref.Set(ctx, toMessageDoc(msg)); err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

// GetMessagesBySession returns the last limit messages in chronological
// order, or all of them when limit <= 0.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := s.messagesCol(sessionID).OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.LimitToLast(limit)
	}

	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
	}

	out := make([]*domain.Message, 0, len(snaps))
	for _, snap := range snaps {
		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}
		m := doc.toDomain(domain.MessageID(snap.Ref.ID))
		m.SessionID = sessionID
		out = append(out, m)
	}
	return out, nil
}
