package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveSynthesis stores the aggregate verdict for an evaluation search. Each
// search holds at most one synthesis; rerunning replaces it.
func (s *Store) SaveSynthesis(ctx context.Context, syn *Synthesis) error {
	q := s.db.Rebind(`
		INSERT INTO synthesis_results (search_id, score, evaluation, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (search_id) DO UPDATE SET
			score = excluded.score,
			evaluation = excluded.evaluation,
			reasoning = excluded.reasoning,
			created_at = excluded.created_at`)

	_, err := s.db.ExecContext(ctx, q,
		syn.SearchID, syn.Score, syn.Evaluation, syn.Reasoning, nowUTC())
	if err != nil {
		return fmt.Errorf("failed to save synthesis: %w", err)
	}
	return nil
}

// GetSynthesis loads the aggregate verdict for a search.
func (s *Store) GetSynthesis(ctx context.Context, searchID string) (*Synthesis, error) {
	var row Synthesis
	q := s.db.Rebind(`SELECT * FROM synthesis_results WHERE search_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, searchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("synthesis for %s: %w", searchID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load synthesis: %w", err)
	}
	return &row, nil
}
