package usage

import "time"

// Ledger is the root structure persisted to usage.json.
type Ledger struct {
	Version   string          `json:"version"`
	Events    []Event         `json:"events,omitempty"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// Event records a single reasoning-service transaction.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Stage        string    `json:"stage"` // plan, score, synthesize
	SearchID     string    `json:"search_id"`
}

// AggregatedStats holds token counters broken down by dimension.
type AggregatedStats struct {
	Total      TokenCounts            `json:"total"`
	ByProvider map[string]TokenCounts `json:"by_provider"`
	ByModel    map[string]TokenCounts `json:"by_model"`
	ByStage    map[string]TokenCounts `json:"by_stage"`
	BySearch   map[string]TokenCounts `json:"by_search"`
}

// TokenCounts holds input/output sums and an estimated dollar cost.
type TokenCounts struct {
	Input  int64   `json:"input"`
	Output int64   `json:"output"`
	Total  int64   `json:"total"`
	Cost   float64 `json:"cost_est_usd,omitempty"`
}

func (tc *TokenCounts) Add(input, output int, cost float64) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
	tc.Cost += cost
}
