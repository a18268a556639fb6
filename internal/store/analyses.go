package store

import (
	"context"
	"fmt"
)

// SaveAnalysis records the relevance verdict for one message within one
// search. Re-analyzing the same pair overwrites the prior verdict.
func (s *Store) SaveAnalysis(ctx context.Context, a *Analysis) error {
	q := s.db.Rebind(`
		INSERT INTO analyses (
			search_id, message_id, is_relevant, confidence,
			ai_reasoning, ai_model, ai_tokens_used, ai_cost_usd, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (search_id, message_id) DO UPDATE SET
			is_relevant = excluded.is_relevant,
			confidence = excluded.confidence,
			ai_reasoning = excluded.ai_reasoning,
			ai_model = excluded.ai_model,
			ai_tokens_used = excluded.ai_tokens_used,
			ai_cost_usd = excluded.ai_cost_usd,
			analyzed_at = excluded.analyzed_at`)

	_, err := s.db.ExecContext(ctx, q,
		a.SearchID, a.MessageID, a.IsRelevant, a.Confidence,
		a.AIReasoning, a.AIModel, a.AITokensUsed, a.AICostUSD, nowUTC())
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// AnalysisExists reports whether a message has already been scored for a
// search, so reruns can skip spending tokens on it again.
func (s *Store) AnalysisExists(ctx context.Context, searchID, messageID string) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM analyses WHERE search_id = ? AND message_id = ?`)
	if err := s.db.GetContext(ctx, &n, q, searchID, messageID); err != nil {
		return false, fmt.Errorf("failed to check analysis: %w", err)
	}
	return n > 0, nil
}

// CountRelevant counts the relevant analyses for a search. The searches
// table's relevant_count is set from this, so skipped re-scores still count.
func (s *Store) CountRelevant(ctx context.Context, searchID string) (int, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM analyses WHERE search_id = ? AND is_relevant = TRUE`)
	if err := s.db.GetContext(ctx, &n, q, searchID); err != nil {
		return 0, fmt.Errorf("failed to count relevant analyses: %w", err)
	}
	return n, nil
}

// RelevantResults returns the messages scored relevant for a search, ordered
// by result position. This is the synthesizer's input set.
func (s *Store) RelevantResults(ctx context.Context, searchID string) ([]ResultRow, error) {
	var rows []ResultRow
	q := s.db.Rebind(`
		SELECT m.*,
		       sr.result_position, sr.result_page,
		       a.is_relevant, a.confidence, a.ai_reasoning
		FROM analyses a
		JOIN search_results sr ON sr.search_id = a.search_id AND sr.message_id = a.message_id
		JOIN messages m ON m.id = a.message_id
		WHERE a.search_id = ? AND a.is_relevant = TRUE
		ORDER BY sr.result_position ASC`)
	if err := s.db.SelectContext(ctx, &rows, q, searchID); err != nil {
		return nil, fmt.Errorf("failed to load relevant results: %w", err)
	}
	return rows, nil
}
