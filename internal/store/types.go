package store

import (
	"database/sql"
	"errors"
	"time"

	"caaasearch/internal/searchspec"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Search is one row of the searches table.
type Search struct {
	ID            string         `db:"id"`
	SearchNumber  int64          `db:"search_number"`
	UserQuery     string         `db:"user_query"`
	RealQuestion  string         `db:"real_question"`
	QueryType     string         `db:"query_type"`
	SearchParams  string         `db:"search_params"`
	Status        string         `db:"status"`
	ErrorMessage  string         `db:"error_message"`
	MessagesFound int            `db:"messages_found"`
	RelevantCount int            `db:"relevant_count"`
	CreatedAt     string         `db:"created_at"`
	StartedAt     sql.NullString `db:"started_at"`
	CompletedAt   sql.NullString `db:"completed_at"`
}

// Params decodes the stored search parameters.
func (s *Search) Params() (Params, error) {
	return DecodeParams(s.SearchParams)
}

// Type returns the query type as a typed value.
func (s *Search) Type() searchspec.QueryType {
	return searchspec.QueryType(s.QueryType)
}

// Duration returns the wall-clock runtime for finished searches, zero
// otherwise.
func (s *Search) Duration() time.Duration {
	if !s.StartedAt.Valid || !s.CompletedAt.Valid {
		return 0
	}
	start, err1 := time.Parse(time.RFC3339, s.StartedAt.String)
	end, err2 := time.Parse(time.RFC3339, s.CompletedAt.String)
	if err1 != nil || err2 != nil || end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// Message is one row of the messages table. UpstreamID is the archive's own
// numeric message id and the deduplication key.
type Message struct {
	ID            string `db:"id"`
	UpstreamID    int64  `db:"upstream_id"`
	Subject       string `db:"subject"`
	FromName      string `db:"from_name"`
	FromEmail     string `db:"from_email"`
	Listserv      string `db:"listserv"`
	PostedDate    string `db:"posted_date"`
	HasAttachment bool   `db:"has_attachment"`
	Body          string `db:"body"`
	BodyLength    int    `db:"body_length"`
	CreatedAt     string `db:"created_at"`
	UpdatedAt     string `db:"updated_at"`
}

// Analysis is one relevance verdict for a (search, message) pair.
type Analysis struct {
	SearchID     string  `db:"search_id"`
	MessageID    string  `db:"message_id"`
	IsRelevant   bool    `db:"is_relevant"`
	Confidence   float64 `db:"confidence"`
	AIReasoning  string  `db:"ai_reasoning"`
	AIModel      string  `db:"ai_model"`
	AITokensUsed int     `db:"ai_tokens_used"`
	AICostUSD    float64 `db:"ai_cost_usd"`
	AnalyzedAt   string  `db:"analyzed_at"`
}

// ResultRow is a message joined with its search membership and verdict.
type ResultRow struct {
	Message
	ResultPosition int     `db:"result_position"`
	ResultPage     int     `db:"result_page"`
	IsRelevant     bool    `db:"is_relevant"`
	Confidence     float64 `db:"confidence"`
	AIReasoning    string  `db:"ai_reasoning"`
}

// Synthesis is the final verdict row for an evaluation search.
type Synthesis struct {
	SearchID   string `db:"search_id"`
	Score      int    `db:"score"`
	Evaluation string `db:"evaluation"`
	Reasoning  string `db:"reasoning"`
	CreatedAt  string `db:"created_at"`
}

// SynthesisFeedback is a user's thumbs verdict on a search's aggregate answer.
type SynthesisFeedback struct {
	ID         string `db:"id"`
	SearchID   string `db:"search_id"`
	IsPositive bool   `db:"is_positive"`
	Comment    string `db:"comment"`
	CreatedAt  string `db:"created_at"`
}

// MessageFeedback is a user's thumbs verdict on a single scored message.
type MessageFeedback struct {
	ID         string `db:"id"`
	SearchID   string `db:"search_id"`
	MessageID  string `db:"message_id"`
	IsPositive bool   `db:"is_positive"`
	Comment    string `db:"comment"`
	CreatedAt  string `db:"created_at"`
}

// SearchStats aggregates analysis outcomes for one search.
type SearchStats struct {
	SearchID      string
	Status        string
	MessagesFound int
	RelevantCount int
	AnalyzedCount int
	AvgConfidence float64
	TotalTokens   int
	TotalCostUSD  float64
}

// PlatformStats aggregates across all searches.
type PlatformStats struct {
	TotalSearches     int
	CompletedSearches int
	FailedSearches    int
	TotalMessages     int
	TotalAnalyses     int
	TotalCostUSD      float64
}
