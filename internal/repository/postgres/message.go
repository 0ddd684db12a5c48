package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/service/send"
)

// MessageRepo implements send.Repository and ingest.Repository against
// PostgreSQL. Events are append-only; message status is the only mutable
// projection.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed message repository.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = `id, project_id, identity_id, COALESCE(provider_message_id,''),
	       from_address, to_address, subject, COALESCE(text_body,''), COALESCE(html_body,''),
	       status, created_at, updated_at`

// Create inserts the message and its initial event in one transaction so
// no message ever exists without an event stream.
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message, initial *domain.Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages
			(id, project_id, identity_id, from_address, to_address, subject,
			 text_body, html_body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, msg.ID, msg.ProjectID, msg.IdentityID, msg.From, msg.To, msg.Subject,
		msg.TextBody, msg.HTMLBody, msg.Status); err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message_events
			(id, message_id, recipient, type, timestamp, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, initial.ID, initial.MessageID, initial.Recipient, initial.Type,
		initial.Timestamp, nullableJSON(initial.Payload)); err != nil {
		return fmt.Errorf("create initial event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *MessageRepo) Get(ctx context.Context, projectID, id string) (*domain.Message, error) {
	msg := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1 AND project_id = $2
	`, id, projectID).Scan(
		&msg.ID, &msg.ProjectID, &msg.IdentityID, &msg.ProviderMessageID,
		&msg.From, &msg.To, &msg.Subject, &msg.TextBody, &msg.HTMLBody,
		&msg.Status, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, send.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (r *MessageRepo) List(ctx context.Context, projectID string, limit, offset int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID, &msg.ProjectID, &msg.IdentityID, &msg.ProviderMessageID,
			&msg.From, &msg.To, &msg.Subject, &msg.TextBody, &msg.HTMLBody,
			&msg.Status, &msg.CreatedAt, &msg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// FindByProviderID resolves a message by the provider's message id and
// recipient address, the key feedback notifications carry.
func (r *MessageRepo) FindByProviderID(ctx context.Context, providerMessageID, recipient string) (*domain.Message, error) {
	msg := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE provider_message_id = $1 AND to_address = $2
	`, providerMessageID, recipient).Scan(
		&msg.ID, &msg.ProjectID, &msg.IdentityID, &msg.ProviderMessageID,
		&msg.From, &msg.To, &msg.Subject, &msg.TextBody, &msg.HTMLBody,
		&msg.Status, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, send.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message by provider id: %w", err)
	}
	return msg, nil
}

// SetProviderMessageID records the provider's id once, right after accept.
// The guard keeps a redelivered accept from overwriting it.
func (r *MessageRepo) SetProviderMessageID(ctx context.Context, id, providerMessageID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET provider_message_id = $1, updated_at = NOW()
		WHERE id = $2 AND provider_message_id IS NULL
	`, providerMessageID, id)
	if err != nil {
		return fmt.Errorf("set provider message id: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return send.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepo) UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return send.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepo) AppendEvent(ctx context.Context, ev *domain.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_events
			(id, message_id, recipient, type, timestamp, payload,
			 user_agent, ip_address, link_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, ev.ID, ev.MessageID, ev.Recipient, ev.Type, ev.Timestamp,
		nullableJSON(ev.Payload), nullable(ev.UserAgent), nullable(ev.IPAddress), nullable(ev.LinkURL))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListEvents(ctx context.Context, projectID, messageID string) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.message_id, e.recipient, e.type, e.timestamp,
		       COALESCE(e.payload, 'null'::jsonb), COALESCE(e.user_agent,''),
		       COALESCE(e.ip_address,''), COALESCE(e.link_url,''), e.created_at
		FROM message_events e
		JOIN messages m ON m.id = e.message_id
		WHERE e.message_id = $1 AND m.project_id = $2
		ORDER BY e.created_at ASC
	`, messageID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var payload []byte
		if err := rows.Scan(
			&ev.ID, &ev.MessageID, &ev.Recipient, &ev.Type, &ev.Timestamp,
			&payload, &ev.UserAgent, &ev.IPAddress, &ev.LinkURL, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(payload) > 0 && string(payload) != "null" {
			ev.Payload = payload
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
