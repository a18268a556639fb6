package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"caaasearch/internal/logging"
	"caaasearch/internal/searchspec"
)

// CreateSearch inserts a new pending search and assigns it the next search
// number. The number subquery can collide under concurrent submits, so the
// insert retries on unique violations.
func (s *Store) CreateSearch(ctx context.Context, userQuery, realQuestion string, queryType searchspec.QueryType, params Params) (*Search, error) {
	timer := logging.StartTimer(logging.CategoryStore, "CreateSearch")
	defer timer.Stop()

	encoded, err := params.Encode()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := nowUTC()

	q := s.db.Rebind(`
		INSERT INTO searches (
			id, search_number, user_query, real_question, query_type,
			search_params, status, created_at
		) VALUES (
			?, (SELECT COALESCE(MAX(search_number), 0) + 1 FROM searches),
			?, ?, ?, ?, ?, ?
		)`)

	var insertErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, insertErr = s.db.ExecContext(ctx, q,
			id, userQuery, realQuestion, string(queryType), encoded,
			string(searchspec.StatusPending), now)
		if insertErr == nil {
			break
		}
		if !isUniqueViolation(insertErr) {
			return nil, fmt.Errorf("failed to create search: %w", insertErr)
		}
		logging.StoreDebug("Search number collision, retrying (attempt %d)", attempt+1)
	}
	if insertErr != nil {
		return nil, fmt.Errorf("failed to create search: %w", insertErr)
	}

	created, err := s.GetSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.Store("Created search #%d (%s) type=%s", created.SearchNumber, id, queryType)
	return created, nil
}

// GetSearch loads one search by id.
func (s *Store) GetSearch(ctx context.Context, id string) (*Search, error) {
	var row Search
	q := s.db.Rebind(`SELECT * FROM searches WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("search %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load search: %w", err)
	}
	return &row, nil
}

// GetSearchByNumber loads one search by its short number.
func (s *Store) GetSearchByNumber(ctx context.Context, number int64) (*Search, error) {
	var row Search
	q := s.db.Rebind(`SELECT * FROM searches WHERE search_number = ?`)
	if err := s.db.GetContext(ctx, &row, q, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("search #%d: %w", number, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load search: %w", err)
	}
	return &row, nil
}

// SetStatus transitions a search's lifecycle state. Moving to running stamps
// started_at; reaching a terminal state stamps completed_at. The error
// message is recorded only for failures.
func (s *Store) SetStatus(ctx context.Context, id string, status searchspec.Status, errorMessage string) error {
	now := nowUTC()

	var q string
	args := []interface{}{string(status)}

	switch status {
	case searchspec.StatusRunning:
		q = `UPDATE searches SET status = ?, started_at = ?, error_message = '' WHERE id = ?`
		args = append(args, now, id)
	case searchspec.StatusCompleted:
		q = `UPDATE searches SET status = ?, completed_at = ? WHERE id = ?`
		args = append(args, now, id)
	case searchspec.StatusFailed:
		q = `UPDATE searches SET status = ?, completed_at = ?, error_message = ? WHERE id = ?`
		args = append(args, now, errorMessage, id)
	default:
		q = `UPDATE searches SET status = ? WHERE id = ?`
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return fmt.Errorf("failed to set search status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("search %s: %w", id, ErrNotFound)
	}
	logging.Store("Search %s -> %s", id, status)
	return nil
}

// SetMessagesFound records how many messages retrieval produced.
func (s *Store) SetMessagesFound(ctx context.Context, id string, n int) error {
	q := s.db.Rebind(`UPDATE searches SET messages_found = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, n, id); err != nil {
		return fmt.Errorf("failed to update messages_found: %w", err)
	}
	return nil
}

// SetRelevantCount records how many messages scoring marked relevant.
func (s *Store) SetRelevantCount(ctx context.Context, id string, n int) error {
	q := s.db.Rebind(`UPDATE searches SET relevant_count = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, n, id); err != nil {
		return fmt.Errorf("failed to update relevant_count: %w", err)
	}
	return nil
}

// RecentSearches returns the newest searches first.
func (s *Store) RecentSearches(ctx context.Context, limit int) ([]Search, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []Search
	q := s.db.Rebind(`SELECT * FROM searches ORDER BY search_number DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}
	return rows, nil
}

// PendingSearches returns all searches awaiting a worker, oldest first.
func (s *Store) PendingSearches(ctx context.Context) ([]Search, error) {
	var rows []Search
	q := s.db.Rebind(`SELECT * FROM searches WHERE status = ? ORDER BY search_number ASC`)
	if err := s.db.SelectContext(ctx, &rows, q, string(searchspec.StatusPending)); err != nil {
		return nil, fmt.Errorf("failed to list pending searches: %w", err)
	}
	return rows, nil
}
