package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"caaasearch/internal/usage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show platform status and token spend",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println(styleTitle.Render("caaasearch status"))
	fmt.Println()

	// Reasoning service
	if cfg.LLM.APIKey != "" {
		fmt.Printf("✓ Reasoning: %s / %s\n", cfg.LLM.Provider, cfg.LLM.Model)
	} else {
		fmt.Println("✗ Reasoning: API key not configured")
	}

	// Cookie jar
	if _, err := os.Stat(cfg.Browser.CookieFile); err == nil {
		fmt.Printf("✓ Cookie jar: %s\n", cfg.Browser.CookieFile)
	} else {
		fmt.Printf("✗ Cookie jar: %s (missing; run 'caaasearch login')\n", cfg.Browser.CookieFile)
	}

	// Store
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := openStore()
	if err != nil {
		fmt.Printf("✗ Store: %v\n", err)
		return nil
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		fmt.Printf("✗ Store: %v\n", err)
		return nil
	}
	fmt.Printf("✓ Store: %s\n", cfg.Store.DSN)

	platform, err := st.Platform(ctx)
	if err != nil {
		return fmt.Errorf("failed to load platform stats: %w", err)
	}
	fmt.Println()
	fmt.Printf("  Searches:  %d total, %d completed, %d failed\n",
		platform.TotalSearches, platform.CompletedSearches, platform.FailedSearches)
	fmt.Printf("  Messages:  %d archived, %d relevance calls\n",
		platform.TotalMessages, platform.TotalAnalyses)
	fmt.Printf("  Est. cost: $%.4f (from analysis rows)\n", platform.TotalCostUSD)

	// Token ledger
	tracker, err := usage.NewTracker(cfg.Logging.Dir)
	if err != nil {
		return nil
	}
	stats := tracker.Stats()
	if stats.Total.Total == 0 {
		return nil
	}

	fmt.Println()
	fmt.Println(styleHeader.Render("Token spend"))
	fmt.Printf("  Total: %d in / %d out (est. $%.4f)\n",
		stats.Total.Input, stats.Total.Output, stats.Total.Cost)
	for _, model := range sortedKeys(stats.ByModel) {
		counts := stats.ByModel[model]
		fmt.Printf("  %-24s %8d tokens  $%.4f\n", model, counts.Total, counts.Cost)
	}
	for _, stage := range sortedKeys(stats.ByStage) {
		counts := stats.ByStage[stage]
		fmt.Println(styleMuted.Render(fmt.Sprintf("  stage %-18s %8d tokens", stage, counts.Total)))
	}
	return nil
}

func sortedKeys(m map[string]usage.TokenCounts) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
