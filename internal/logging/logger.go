// Package logging provides categorized file-based logging for caaasearch.
// Logs are written to the configured directory with a separate file per
// category. When no directory is configured every call is a silent no-op,
// so library code can log unconditionally.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot      Category = "boot"      // Process startup, config load
	CategoryPipeline  Category = "pipeline"  // Per-search orchestration
	CategoryStore     Category = "store"     // Database operations
	CategoryBrowser   Category = "browser"   // Browser session, cookies
	CategoryRetrieve  Category = "retrieve"  // Form fill, pagination, message fetch
	CategoryPlanner   Category = "planner"   // Query planning
	CategoryClarify   Category = "clarify"   // Vagueness checks
	CategoryLLM       Category = "llm"       // Reasoning service calls
	CategoryScore     Category = "score"     // Relevance scoring
	CategorySynthesis Category = "synthesis" // Evaluation synthesis
)

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	levelMu   sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and level.
// Should be called once at startup. An empty dir disables file logging
// entirely; every Logger becomes a no-op.
func Initialize(dir, level string) error {
	SetLevel(level)

	if dir == "" {
		logsDir = ""
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logsDir = dir

	boot := Get(CategoryBoot)
	boot.Info("=== caaasearch logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", level)

	return nil
}

// SetLevel parses and applies a log level name.
func SetLevel(level string) {
	levelMu.Lock()
	defer levelMu.Unlock()

	switch level {
	case "debug":
		logLevel = LevelDebug
	case "info", "":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
}

func currentLevel() int {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return logLevel
}

// Enabled reports whether file logging is active.
func Enabled() bool {
	return logsDir != ""
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging is disabled.
func Get(category Category) *Logger {
	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// reset clears package state; used by tests.
func reset() {
	CloseAll()
	logsDir = ""
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if logging is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootWarn logs warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Pipeline logs to the pipeline category
func Pipeline(format string, args ...interface{}) {
	Get(CategoryPipeline).Info(format, args...)
}

// PipelineDebug logs debug to the pipeline category
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

// PipelineWarn logs warning to the pipeline category
func PipelineWarn(format string, args ...interface{}) {
	Get(CategoryPipeline).Warn(format, args...)
}

// PipelineError logs error to the pipeline category
func PipelineError(format string, args ...interface{}) {
	Get(CategoryPipeline).Error(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreWarn logs warning to the store category
func StoreWarn(format string, args ...interface{}) {
	Get(CategoryStore).Warn(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Browser logs to the browser category
func Browser(format string, args ...interface{}) {
	Get(CategoryBrowser).Info(format, args...)
}

// BrowserDebug logs debug to the browser category
func BrowserDebug(format string, args ...interface{}) {
	Get(CategoryBrowser).Debug(format, args...)
}

// BrowserWarn logs warning to the browser category
func BrowserWarn(format string, args ...interface{}) {
	Get(CategoryBrowser).Warn(format, args...)
}

// BrowserError logs error to the browser category
func BrowserError(format string, args ...interface{}) {
	Get(CategoryBrowser).Error(format, args...)
}

// Retrieve logs to the retrieve category
func Retrieve(format string, args ...interface{}) {
	Get(CategoryRetrieve).Info(format, args...)
}

// RetrieveDebug logs debug to the retrieve category
func RetrieveDebug(format string, args ...interface{}) {
	Get(CategoryRetrieve).Debug(format, args...)
}

// RetrieveWarn logs warning to the retrieve category
func RetrieveWarn(format string, args ...interface{}) {
	Get(CategoryRetrieve).Warn(format, args...)
}

// RetrieveError logs error to the retrieve category
func RetrieveError(format string, args ...interface{}) {
	Get(CategoryRetrieve).Error(format, args...)
}

// Planner logs to the planner category
func Planner(format string, args ...interface{}) {
	Get(CategoryPlanner).Info(format, args...)
}

// PlannerDebug logs debug to the planner category
func PlannerDebug(format string, args ...interface{}) {
	Get(CategoryPlanner).Debug(format, args...)
}

// PlannerWarn logs warning to the planner category
func PlannerWarn(format string, args ...interface{}) {
	Get(CategoryPlanner).Warn(format, args...)
}

// Clarify logs to the clarify category
func Clarify(format string, args ...interface{}) {
	Get(CategoryClarify).Info(format, args...)
}

// ClarifyDebug logs debug to the clarify category
func ClarifyDebug(format string, args ...interface{}) {
	Get(CategoryClarify).Debug(format, args...)
}

// ClarifyWarn logs warning to the clarify category
func ClarifyWarn(format string, args ...interface{}) {
	Get(CategoryClarify).Warn(format, args...)
}

// LLM logs to the llm category
func LLM(format string, args ...interface{}) {
	Get(CategoryLLM).Info(format, args...)
}

// LLMDebug logs debug to the llm category
func LLMDebug(format string, args ...interface{}) {
	Get(CategoryLLM).Debug(format, args...)
}

// LLMWarn logs warning to the llm category
func LLMWarn(format string, args ...interface{}) {
	Get(CategoryLLM).Warn(format, args...)
}

// LLMError logs error to the llm category
func LLMError(format string, args ...interface{}) {
	Get(CategoryLLM).Error(format, args...)
}

// Score logs to the score category
func Score(format string, args ...interface{}) {
	Get(CategoryScore).Info(format, args...)
}

// ScoreDebug logs debug to the score category
func ScoreDebug(format string, args ...interface{}) {
	Get(CategoryScore).Debug(format, args...)
}

// ScoreWarn logs warning to the score category
func ScoreWarn(format string, args ...interface{}) {
	Get(CategoryScore).Warn(format, args...)
}

// Synthesis logs to the synthesis category
func Synthesis(format string, args ...interface{}) {
	Get(CategorySynthesis).Info(format, args...)
}

// SynthesisDebug logs debug to the synthesis category
func SynthesisDebug(format string, args ...interface{}) {
	Get(CategorySynthesis).Debug(format, args...)
}

// SynthesisWarn logs warning to the synthesis category
func SynthesisWarn(format string, args ...interface{}) {
	Get(CategorySynthesis).Warn(format, args...)
}

// =============================================================================
// SEARCH ID TRACING - correlates one search's log lines across categories
// =============================================================================

// SearchLogger provides search-scoped logging with a correlation id
type SearchLogger struct {
	logger   *Logger
	searchID string
}

// ForSearch creates a search-scoped logger.
func ForSearch(category Category, searchID string) *SearchLogger {
	return &SearchLogger{
		logger:   Get(category),
		searchID: searchID,
	}
}

func (s *SearchLogger) formatMsg(format string, args ...interface{}) string {
	return fmt.Sprintf("[search:%s] %s", s.searchID, fmt.Sprintf(format, args...))
}

func (s *SearchLogger) Debug(format string, args ...interface{}) {
	if s.logger.logger == nil || currentLevel() > LevelDebug {
		return
	}
	s.logger.logger.Printf("[DEBUG] %s", s.formatMsg(format, args...))
}

func (s *SearchLogger) Info(format string, args ...interface{}) {
	if s.logger.logger == nil || currentLevel() > LevelInfo {
		return
	}
	s.logger.logger.Printf("[INFO] %s", s.formatMsg(format, args...))
}

func (s *SearchLogger) Warn(format string, args ...interface{}) {
	if s.logger.logger == nil || currentLevel() > LevelWarn {
		return
	}
	s.logger.logger.Printf("[WARN] %s", s.formatMsg(format, args...))
}

func (s *SearchLogger) Error(format string, args ...interface{}) {
	if s.logger.logger == nil {
		return
	}
	s.logger.logger.Printf("[ERROR] %s", s.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
