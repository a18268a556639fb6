package config

import "time"

// DefaultSearchURL is the archive's search page.
const DefaultSearchURL = "https://www.caaa.org/?pg=search&bid=3305"

// DefaultLoginURL is the member sign-in page the login capture flow opens.
const DefaultLoginURL = "https://www.caaa.org/?pg=login"

// BrowserConfig configures the headless browser session used for retrieval.
type BrowserConfig struct {
	// DevTools websocket of an already-running browser. When set, the
	// retriever attaches instead of launching its own instance.
	ControlURL string `yaml:"control_url"`

	// Headless applies only to launched instances.
	Headless bool `yaml:"headless"`

	// Playwright-format storage state file with the archive session cookies.
	CookieFile string `yaml:"cookie_file"`

	// Navigation timeout for page loads.
	NavTimeout string `yaml:"nav_timeout"`
}

// GetNavTimeout returns the page navigation timeout as a duration.
func (c BrowserConfig) GetNavTimeout() time.Duration {
	d, err := time.ParseDuration(c.NavTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// RetrievalConfig configures how searches run against the archive.
type RetrievalConfig struct {
	SearchURL string `yaml:"search_url" validate:"omitempty,url"`

	// Default caps, overridable per search.
	MaxMessages int `yaml:"max_messages" validate:"min=1"`
	MaxPages    int `yaml:"max_pages" validate:"min=1"`

	// How long to wait for the results table after submitting the form.
	ResultsTimeout string `yaml:"results_timeout"`

	// How long to wait for an individual message to open.
	MessageTimeout string `yaml:"message_timeout"`

	// Pause between page interactions. The archive is a shared member
	// resource; do not lower this aggressively.
	PolitenessDelay string `yaml:"politeness_delay"`
}

// GetResultsTimeout returns the results wait as a duration.
func (c RetrievalConfig) GetResultsTimeout() time.Duration {
	d, err := time.ParseDuration(c.ResultsTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetMessageTimeout returns the per-message wait as a duration.
func (c RetrievalConfig) GetMessageTimeout() time.Duration {
	d, err := time.ParseDuration(c.MessageTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetPolitenessDelay returns the interaction pause as a duration.
func (c RetrievalConfig) GetPolitenessDelay() time.Duration {
	d, err := time.ParseDuration(c.PolitenessDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetWorkerTimeout returns the per-worker wall clock limit.
func (c WorkerConfig) GetWorkerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}
