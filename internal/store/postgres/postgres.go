// Package postgres backs the store interfaces with PostgreSQL via the pgx
// stdlib driver. Schema migrations are managed outside this module; the
// tables are conversations, conversation_messages (indexed on
// (conversation_id, timestamp)) and numerology_interpretations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/trieuvy/aria/backend/internal/model/conversation"
	"github.com/trieuvy/aria/backend/internal/store"
)

// Open opens a PostgreSQL connection pool and verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres-backed store from an existing handle.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Conversations() store.Conversations     { return &conversations{db: s.db} }
func (s *pgStore) Messages() store.Messages               { return &messages{db: s.db} }
func (s *pgStore) Interpretations() store.Interpretations { return &interpretations{db: s.db} }

// HealthPing reports storage reachability for the health endpoint.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type conversations struct{ db *sql.DB }

func (c *conversations) Create(ctx context.Context, userID string) (conversation.Conversation, error) {
	out := conversation.Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
	}
	row := c.db.QueryRowContext(ctx, `
        INSERT INTO conversations (id, user_id, started_at)
        VALUES ($1, $2, now())
        RETURNING started_at
    `, out.ID, userID)
	if err := row.Scan(&out.StartedAt); err != nil {
		return conversation.Conversation{}, err
	}
	return out, nil
}

func (c *conversations) Get(ctx context.Context, id string) (conversation.Conversation, error) {
	var out conversation.Conversation
	var room sql.NullString
	row := c.db.QueryRowContext(ctx, `
        SELECT id, user_id, room_id, started_at, ended_at, duration_seconds,
               main_topic, key_insights, numbers_discussed
        FROM conversations WHERE id = $1
    `, id)
	err := row.Scan(&out.ID, &out.UserID, &room, &out.StartedAt, &out.EndedAt,
		&out.DurationSeconds, &out.MainTopic, &out.KeyInsights, &out.NumbersDiscussed)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, store.ErrConversationNotFound
	}
	if err != nil {
		return conversation.Conversation{}, err
	}
	if room.Valid {
		out.RoomID = room.String
	}
	return out, nil
}

func (c *conversations) SetRoom(ctx context.Context, id, roomID string) error {
	res, err := c.db.ExecContext(ctx, `
        UPDATE conversations SET room_id = $2 WHERE id = $1 AND room_id IS NULL
    `, id, roomID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or already assigned; read back to tell them apart.
		existing, getErr := c.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing.RoomID != "" {
			return store.ErrRoomAlreadySet
		}
		return store.ErrConversationNotFound
	}
	return nil
}

func (c *conversations) End(ctx context.Context, id string, p store.EndParams) (conversation.Conversation, error) {
	// The ended_at IS NULL guard makes the transition single-shot.
	row := c.db.QueryRowContext(ctx, `
        UPDATE conversations
        SET ended_at = $2,
            duration_seconds = EXTRACT(EPOCH FROM ($2 - started_at))::int,
            main_topic = COALESCE($3, main_topic),
            key_insights = COALESCE($4, key_insights),
            numbers_discussed = COALESCE($5, numbers_discussed)
        WHERE id = $1 AND ended_at IS NULL
        RETURNING id, user_id, room_id, started_at, ended_at, duration_seconds,
                  main_topic, key_insights, numbers_discussed
    `, id, p.EndedAt.UTC(), p.MainTopic, p.KeyInsights, p.NumbersDiscussed)

	var out conversation.Conversation
	var room sql.NullString
	err := row.Scan(&out.ID, &out.UserID, &room, &out.StartedAt, &out.EndedAt,
		&out.DurationSeconds, &out.MainTopic, &out.KeyInsights, &out.NumbersDiscussed)
	if errors.Is(err, sql.ErrNoRows) {
		// Either missing or already ended; read back to tell them apart.
		existing, getErr := c.Get(ctx, id)
		if getErr != nil {
			return conversation.Conversation{}, getErr
		}
		if existing.Ended() {
			return conversation.Conversation{}, store.ErrConversationEnded
		}
		return conversation.Conversation{}, store.ErrConversationNotFound
	}
	if err != nil {
		return conversation.Conversation{}, err
	}
	if room.Valid {
		out.RoomID = room.String
	}
	return out, nil
}

func (c *conversations) RecentCompleted(ctx context.Context, userID string, limit int) ([]conversation.Summary, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT id, started_at, COALESCE(main_topic, ''), COALESCE(key_insights, ''),
               COALESCE(numbers_discussed, '')
        FROM conversations
        WHERE user_id = $1 AND ended_at IS NOT NULL
        ORDER BY started_at DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conversation.Summary
	for rows.Next() {
		var s conversation.Summary
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.MainTopic, &s.KeyInsights, &s.NumbersDiscussed); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type messages struct{ db *sql.DB }

func (m *messages) Append(ctx context.Context, msg conversation.Message) error {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta := msg.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = m.db.ExecContext(ctx, `
        INSERT INTO conversation_messages (id, conversation_id, role, content, timestamp, metadata)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, id, msg.ConversationID, string(msg.Role), msg.Content, ts.UTC(), raw)
	return err
}

func (m *messages) List(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, content, timestamp, metadata
        FROM conversation_messages
        WHERE conversation_id = $1
        ORDER BY timestamp ASC
    `, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []conversation.Message
	for rows.Next() {
		var msg conversation.Message
		var role string
		var raw []byte
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.Timestamp, &raw); err != nil {
			return nil, err
		}
		msg.Role = conversation.Role(role)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type interpretations struct{ db *sql.DB }

func (i *interpretations) Lookup(ctx context.Context, numberType string, numberValue int, category string) ([]store.Interpretation, error) {
	query := `
        SELECT number_type, number_value, category, content
        FROM numerology_interpretations
        WHERE number_type = $1 AND number_value = $2
    `
	args := []any{numberType, numberValue}
	if category != "" {
		query += " AND category = $3"
		args = append(args, category)
	}
	query += " ORDER BY category"

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Interpretation
	for rows.Next() {
		var it store.Interpretation
		if err := rows.Scan(&it.NumberType, &it.NumberValue, &it.Category, &it.Content); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
