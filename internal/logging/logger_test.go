package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestAllCategoriesLog tests that every category creates its log file.
func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	reset()
	if err := Initialize(tempDir, "debug"); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer reset()

	if !Enabled() {
		t.Error("Expected logging to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryPipeline,
		CategoryStore,
		CategoryBrowser,
		CategoryRetrieve,
		CategoryPlanner,
		CategoryClarify,
		CategoryLLM,
		CategoryScore,
		CategorySynthesis,
	}

	for _, cat := range categories {
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	date := time.Now().Format("2006-01-02")
	for _, cat := range categories {
		logPath := filepath.Join(tempDir, date+"_"+string(cat)+".log")
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Errorf("Expected log file for category %s: %v", cat, err)
			continue
		}
		content := string(data)
		for _, level := range []string{"[INFO]", "[DEBUG]", "[WARN]", "[ERROR]"} {
			if !strings.Contains(content, level) {
				t.Errorf("Category %s log missing %s entry", cat, level)
			}
		}
	}
}

// TestDisabledLoggingIsNoop verifies that logging with no directory never
// writes or panics.
func TestDisabledLoggingIsNoop(t *testing.T) {
	reset()
	if err := Initialize("", "debug"); err != nil {
		t.Fatalf("Initialize with empty dir should not fail: %v", err)
	}

	if Enabled() {
		t.Error("Expected logging to be disabled")
	}

	// None of these should panic or create files.
	Get(CategoryStore).Info("ignored %d", 1)
	Store("ignored")
	StoreError("ignored")
	Browser("ignored")
	StartTimer(CategoryBrowser, "op").Stop()
}

// TestLevelFiltering verifies debug entries are dropped at info level.
func TestLevelFiltering(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_level_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	reset()
	if err := Initialize(tempDir, "info"); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer reset()

	logger := Get(CategoryPipeline)
	logger.Debug("should be filtered")
	logger.Info("should appear")

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(tempDir, date+"_pipeline.log"))
	if err != nil {
		t.Fatalf("Expected pipeline log file: %v", err)
	}

	content := string(data)
	if strings.Contains(content, "should be filtered") {
		t.Error("Debug entry should have been filtered at info level")
	}
	if !strings.Contains(content, "should appear") {
		t.Error("Info entry missing")
	}
}

// TestConcurrentGet ensures Get is safe under concurrent first access.
func TestConcurrentGet(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_concurrent_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	reset()
	if err := Initialize(tempDir, "debug"); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer reset()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Get(CategoryRetrieve).Info("concurrent write %d", n)
		}(i)
	}
	wg.Wait()
}

// TestSearchLogger verifies the correlation id appears on each line.
func TestSearchLogger(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_search_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	reset()
	if err := Initialize(tempDir, "debug"); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	defer reset()

	sl := ForSearch(CategoryPipeline, "abc-123")
	sl.Info("retrieval finished")
	sl.Warn("slow page")

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(tempDir, date+"_pipeline.log"))
	if err != nil {
		t.Fatalf("Expected pipeline log file: %v", err)
	}
	if !strings.Contains(string(data), "[search:abc-123]") {
		t.Error("Search correlation id missing from log output")
	}
}
