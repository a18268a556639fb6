package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SaveSynthesisFeedback records a thumbs up/down on a search's synthesis.
func (s *Store) SaveSynthesisFeedback(ctx context.Context, f *SynthesisFeedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	q := s.db.Rebind(`
		INSERT INTO synthesis_feedback (id, search_id, is_positive, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, f.ID, f.SearchID, f.IsPositive, f.Comment, nowUTC()); err != nil {
		return fmt.Errorf("failed to save synthesis feedback: %w", err)
	}
	return nil
}

// SaveMessageFeedback records a thumbs up/down on one scored message.
func (s *Store) SaveMessageFeedback(ctx context.Context, f *MessageFeedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	q := s.db.Rebind(`
		INSERT INTO message_feedback (id, search_id, message_id, is_positive, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, f.ID, f.SearchID, f.MessageID, f.IsPositive, f.Comment, nowUTC()); err != nil {
		return fmt.Errorf("failed to save message feedback: %w", err)
	}
	return nil
}

// ListSynthesisFeedback returns synthesis feedback for a search, newest first.
func (s *Store) ListSynthesisFeedback(ctx context.Context, searchID string) ([]SynthesisFeedback, error) {
	var rows []SynthesisFeedback
	q := s.db.Rebind(`SELECT * FROM synthesis_feedback WHERE search_id = ? ORDER BY created_at DESC`)
	if err := s.db.SelectContext(ctx, &rows, q, searchID); err != nil {
		return nil, fmt.Errorf("failed to list synthesis feedback: %w", err)
	}
	return rows, nil
}

// ListMessageFeedback returns message feedback for a search, newest first.
func (s *Store) ListMessageFeedback(ctx context.Context, searchID string) ([]MessageFeedback, error) {
	var rows []MessageFeedback
	q := s.db.Rebind(`SELECT * FROM message_feedback WHERE search_id = ? ORDER BY created_at DESC`)
	if err := s.db.SelectContext(ctx, &rows, q, searchID); err != nil {
		return nil, fmt.Errorf("failed to list message feedback: %w", err)
	}
	return rows, nil
}
