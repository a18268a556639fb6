package store

import (
	"context"
	"fmt"
)

// Stats aggregates per-search analysis figures: how many messages were
// scored, how many were relevant, the mean confidence among relevant hits,
// and the token/cost totals spent on the search.
func (s *Store) Stats(ctx context.Context, searchID string) (*SearchStats, error) {
	search, err := s.GetSearch(ctx, searchID)
	if err != nil {
		return nil, err
	}

	stats := &SearchStats{
		SearchID:      search.ID,
		Status:        search.Status,
		MessagesFound: search.MessagesFound,
		RelevantCount: search.RelevantCount,
	}

	q := s.db.Rebind(`
		SELECT COUNT(*),
		       COALESCE(AVG(CASE WHEN is_relevant = TRUE THEN confidence END), 0),
		       COALESCE(SUM(ai_tokens_used), 0),
		       COALESCE(SUM(ai_cost_usd), 0)
		FROM analyses WHERE search_id = ?`)
	row := s.db.QueryRowContext(ctx, q, searchID)
	if err := row.Scan(&stats.AnalyzedCount, &stats.AvgConfidence, &stats.TotalTokens, &stats.TotalCostUSD); err != nil {
		return nil, fmt.Errorf("failed to aggregate analyses: %w", err)
	}
	return stats, nil
}

// Platform aggregates figures across the whole database for the status view.
func (s *Store) Platform(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{}

	q := s.db.Rebind(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM searches`)
	row := s.db.QueryRowContext(ctx, q)
	if err := row.Scan(&stats.TotalSearches, &stats.CompletedSearches, &stats.FailedSearches); err != nil {
		return nil, fmt.Errorf("failed to aggregate searches: %w", err)
	}

	if err := s.db.GetContext(ctx, &stats.TotalMessages, `SELECT COUNT(*) FROM messages`); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	q = `SELECT COUNT(*), COALESCE(SUM(ai_cost_usd), 0) FROM analyses`
	row = s.db.QueryRowContext(ctx, q)
	if err := row.Scan(&stats.TotalAnalyses, &stats.TotalCostUSD); err != nil {
		return nil, fmt.Errorf("failed to aggregate analyses: %w", err)
	}
	return stats, nil
}
