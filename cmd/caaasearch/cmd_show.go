package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"caaasearch/internal/store"
)

var showResults int

var showCmd = &cobra.Command{
	Use:   "show [search]",
	Short: "Show one search's progress, results and verdict",
	Long: `Shows a search identified by its number (from 'list') or full UUID:
the planned parameters, progress counters, the relevant messages found so
far, and for finished evaluation searches the synthesized verdict.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().IntVar(&showResults, "results", 10, "Max relevant messages to list")
}

func runShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	search, err := findSearch(ctx, st, args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no search %q", args[0])
		}
		return err
	}

	fmt.Println(summaryLine(search))
	fmt.Printf("  ID:       %s\n", search.ID)
	fmt.Printf("  Question: %s\n", search.RealQuestion)
	fmt.Printf("  Created:  %s\n", search.CreatedAt)
	if d := search.Duration(); d > 0 {
		fmt.Printf("  Duration: %s\n", d.Round(time.Second))
	}
	if search.ErrorMessage != "" {
		fmt.Printf("  Error:    %s\n", styleFailed.Render(search.ErrorMessage))
	}

	if params, err := search.Params(); err == nil {
		spec := params.Spec()
		fmt.Printf("  Params:   %s\n", spec.String())
		if params.Reasoning != "" {
			fmt.Printf("  Plan:     %s\n", params.Reasoning)
		}
	}

	stats, err := st.Stats(ctx, search.ID)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	fmt.Printf("  Found %d, analyzed %d, relevant %d", stats.MessagesFound, stats.AnalyzedCount, stats.RelevantCount)
	if stats.AnalyzedCount > 0 {
		fmt.Printf(" (avg confidence %.2f, %d tokens, $%.4f)", stats.AvgConfidence, stats.TotalTokens, stats.TotalCostUSD)
	}
	fmt.Println()

	if syn, err := st.GetSynthesis(ctx, search.ID); err == nil {
		fmt.Println()
		fmt.Print(renderMarkdown(synthesisMarkdown(syn)))
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load synthesis: %w", err)
	}

	relevant, err := st.RelevantResults(ctx, search.ID)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}
	if len(relevant) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Println(styleHeader.Render("Relevant messages"))
	shown := relevant
	if len(shown) > showResults {
		shown = shown[:showResults]
	}
	for _, r := range shown {
		fmt.Printf("  [%.2f] %s\n", r.Confidence, truncate(r.Subject, 70))
		fmt.Println(styleMuted.Render(fmt.Sprintf("         %s  %s  msg %s", r.FromName, r.PostedDate, r.Message.ID)))
	}
	if len(relevant) > len(shown) {
		fmt.Println(styleMuted.Render(fmt.Sprintf("  ... and %d more", len(relevant)-len(shown))))
	}
	return nil
}

// synthesisMarkdown lays out the stored verdict as markdown for terminal
// rendering. Ranked-examiner reasoning is already formatted text and is
// passed through untouched.
func synthesisMarkdown(syn *store.Synthesis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Verdict: %s\n\n", strings.ReplaceAll(syn.Evaluation, "_", " "))
	fmt.Fprintf(&b, "**Score:** %d/100\n\n", syn.Score)
	b.WriteString(syn.Reasoning)
	b.WriteString("\n")
	return b.String()
}

// renderMarkdown renders markdown for the terminal, falling back to the
// raw text when the renderer cannot be built.
func renderMarkdown(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
