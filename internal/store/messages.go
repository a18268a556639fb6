package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"caaasearch/internal/logging"
)

// UpsertMessage stores a scraped message keyed by its upstream id and returns
// the canonical row id. When the message was already seen, metadata fields are
// refreshed but the stored body is only replaced by a strictly longer one, so
// a rescrape that fails to load the full text never erases content we already
// have.
func (s *Store) UpsertMessage(ctx context.Context, m *Message) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := nowUTC()
	bodyLength := len(m.Body)

	q := s.db.Rebind(`
		INSERT INTO messages (
			id, upstream_id, subject, from_name, from_email, listserv,
			posted_date, has_attachment, body, body_length, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (upstream_id) DO UPDATE SET
			subject = excluded.subject,
			from_name = excluded.from_name,
			from_email = excluded.from_email,
			listserv = excluded.listserv,
			posted_date = excluded.posted_date,
			has_attachment = excluded.has_attachment,
			body = CASE
				WHEN COALESCE(LENGTH(excluded.body), 0) > COALESCE(LENGTH(messages.body), 0)
				THEN excluded.body
				ELSE messages.body
			END,
			body_length = CASE
				WHEN COALESCE(LENGTH(excluded.body), 0) > COALESCE(LENGTH(messages.body), 0)
				THEN excluded.body_length
				ELSE messages.body_length
			END,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, q,
		m.ID, m.UpstreamID, m.Subject, m.FromName, m.FromEmail, m.Listserv,
		m.PostedDate, m.HasAttachment, m.Body, bodyLength, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to upsert message %d: %w", m.UpstreamID, err)
	}

	// The conflict path keeps the original row id, so read it back.
	var id string
	sel := s.db.Rebind(`SELECT id FROM messages WHERE upstream_id = ?`)
	if err := s.db.GetContext(ctx, &id, sel, m.UpstreamID); err != nil {
		return "", fmt.Errorf("failed to resolve message id for %d: %w", m.UpstreamID, err)
	}
	m.ID = id
	return id, nil
}

// GetMessage loads one message by row id.
func (s *Store) GetMessage(ctx context.Context, id string) (*Message, error) {
	var row Message
	q := s.db.Rebind(`SELECT * FROM messages WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return &row, nil
}

// GetMessageByUpstreamID loads one message by its listserv id.
func (s *Store) GetMessageByUpstreamID(ctx context.Context, upstreamID int64) (*Message, error) {
	var row Message
	q := s.db.Rebind(`SELECT * FROM messages WHERE upstream_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, upstreamID); err != nil {
		return nil, fmt.Errorf("message %d: %w", upstreamID, ErrNotFound)
	}
	return &row, nil
}

// MessageBodyLength reports the stored body length for an upstream id, with
// ok=false when the message has never been seen. Retrieval uses this to skip
// refetching bodies it already has.
func (s *Store) MessageBodyLength(ctx context.Context, upstreamID int64) (int, bool) {
	var length int
	q := s.db.Rebind(`SELECT body_length FROM messages WHERE upstream_id = ?`)
	if err := s.db.GetContext(ctx, &length, q, upstreamID); err != nil {
		return 0, false
	}
	return length, true
}

// LinkResult associates a message with a search at a given result position.
// Relinking the same pair is a no-op so rescrapes stay idempotent.
func (s *Store) LinkResult(ctx context.Context, searchID, messageID string, position, page int) error {
	q := s.db.Rebind(`
		INSERT INTO search_results (search_id, message_id, result_position, result_page, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (search_id, message_id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, q, searchID, messageID, position, page, nowUTC()); err != nil {
		return fmt.Errorf("failed to link result: %w", err)
	}
	return nil
}

// Results returns every message linked to a search, joined with its analysis
// when one exists, ordered by result position.
func (s *Store) Results(ctx context.Context, searchID string) ([]ResultRow, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Results")
	defer timer.Stop()

	var rows []ResultRow
	q := s.db.Rebind(`
		SELECT m.*,
		       sr.result_position, sr.result_page,
		       COALESCE(a.is_relevant, FALSE) AS is_relevant,
		       COALESCE(a.confidence, 0) AS confidence,
		       COALESCE(a.ai_reasoning, '') AS ai_reasoning
		FROM search_results sr
		JOIN messages m ON m.id = sr.message_id
		LEFT JOIN analyses a ON a.search_id = sr.search_id AND a.message_id = sr.message_id
		WHERE sr.search_id = ?
		ORDER BY sr.result_position ASC`)
	if err := s.db.SelectContext(ctx, &rows, q, searchID); err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	return rows, nil
}
