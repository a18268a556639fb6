// Package usage keeps a persistent ledger of reasoning-service token
// spend, aggregated by provider, model, pipeline stage, and search.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"caaasearch/internal/llm"
)

type contextKey struct{}
type searchKey struct{}

// Tracker records token usage and persists it to disk.
type Tracker struct {
	mu       sync.Mutex
	data     Ledger
	filePath string
	dirty    bool
}

// NewTracker creates a tracker persisting to dir/usage.json.
func NewTracker(dir string) (*Tracker, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, "usage.json"),
		data: Ledger{
			Version: "1.0",
			Aggregate: AggregatedStats{
				ByProvider: make(map[string]TokenCounts),
				ByModel:    make(map[string]TokenCounts),
				ByStage:    make(map[string]TokenCounts),
				BySearch:   make(map[string]TokenCounts),
			},
		},
	}

	// A missing or unreadable ledger starts empty.
	_ = t.Load()

	return t, nil
}

// Load reads the ledger from disk.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}

	// Re-initialize maps dropped by an empty or partial file.
	if t.data.Aggregate.ByProvider == nil {
		t.data.Aggregate.ByProvider = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByModel == nil {
		t.data.Aggregate.ByModel = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.ByStage == nil {
		t.data.Aggregate.ByStage = make(map[string]TokenCounts)
	}
	if t.data.Aggregate.BySearch == nil {
		t.data.Aggregate.BySearch = make(map[string]TokenCounts)
	}

	return nil
}

// Save writes the ledger to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Track records a reasoning transaction. The owning search, if any, is
// read from the context (see WithSearch).
func (t *Tracker) Track(ctx context.Context, model, provider string, input, output int, stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	searchID := "unattributed"
	if val := ctx.Value(searchKey{}); val != nil {
		searchID = val.(string)
	}

	cost := llm.EstimateCost(model, input+output)

	t.data.Aggregate.Total.Add(input, output, cost)
	addToMap(t.data.Aggregate.ByProvider, provider, input, output, cost)
	addToMap(t.data.Aggregate.ByModel, model, input, output, cost)
	addToMap(t.data.Aggregate.ByStage, stage, input, output, cost)
	addToMap(t.data.Aggregate.BySearch, searchID, input, output, cost)

	t.data.Events = append(t.data.Events, Event{
		Timestamp:    time.Now().UTC(),
		Model:        model,
		Provider:     provider,
		InputTokens:  input,
		OutputTokens: output,
		Stage:        stage,
		SearchID:     searchID,
	})

	// Debounced auto-save.
	if !t.dirty {
		t.dirty = true
		time.AfterFunc(5*time.Second, func() {
			_ = t.Save()
			t.mu.Lock()
			t.dirty = false
			t.mu.Unlock()
		})
	}
}

// TrackClient records a client's accumulated usage snapshot under stage.
// A client that made no requests records nothing.
func (t *Tracker) TrackClient(ctx context.Context, c llm.Client, provider, stage string) {
	u := c.Usage()
	if u.Requests == 0 {
		return
	}
	t.Track(ctx, c.Model(), provider, u.PromptTokens, u.CompletionTokens, stage)
}

// Stats returns a copy of the aggregated counters.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByStage = copyTokenCountsMap(stats.ByStage)
	stats.BySearch = copyTokenCountsMap(stats.BySearch)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int, cost float64) {
	entry := m[key]
	entry.Add(input, output, cost)
	m[key] = entry
}

// Context Helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	val := ctx.Value(contextKey{})
	if val == nil {
		return nil
	}
	return val.(*Tracker)
}

// WithSearch tags the context with the search the spend belongs to.
func WithSearch(ctx context.Context, searchID string) context.Context {
	return context.WithValue(ctx, searchKey{}, searchID)
}
