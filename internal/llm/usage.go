package llm

import "sync"

// Usage is a snapshot of cumulative token consumption.
type Usage struct {
	Requests         int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// usageCounter accumulates usage across concurrent requests.
type usageCounter struct {
	mu sync.Mutex
	u  Usage
}

func (c *usageCounter) record(prompt, completion int) {
	c.mu.Lock()
	c.u.Requests++
	c.u.PromptTokens += prompt
	c.u.CompletionTokens += completion
	c.u.TotalTokens += prompt + completion
	c.mu.Unlock()
}

func (c *usageCounter) snapshot() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.u
}

// costPer1K maps model names to USD per 1000 tokens. Unknown models use
// defaultCostPer1K, so the estimate stays an estimate.
var costPer1K = map[string]float64{
	"gpt-4o":                     0.010,
	"gpt-4o-mini":                0.000375, // $0.375/1M average
	"gpt-3.5-turbo":              0.001,
	"claude-3-5-haiku-20241022":  0.0024, // $2.40/1M average
	"claude-3-5-sonnet-20241022": 0.009,
}

const defaultCostPer1K = 0.001

// EstimateCost returns the approximate USD cost of totalTokens on model.
func EstimateCost(model string, totalTokens int) float64 {
	rate, ok := costPer1K[model]
	if !ok {
		rate = defaultCostPer1K
	}
	return float64(totalTokens) / 1000.0 * rate
}

// EstimatedCost returns the approximate USD cost of this usage on model.
func (u Usage) EstimatedCost(model string) float64 {
	return EstimateCost(model, u.TotalTokens)
}
