package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"caaasearch/internal/searchspec"
	"caaasearch/internal/store"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent searches",
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Max searches to show")
}

// Dashboard palette.
var (
	styleHeader    = lipgloss.NewStyle().Bold(true)
	styleCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	styleFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
	styleRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
	stylePending   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	styleMuted     = lipgloss.NewStyle().Faint(true)
	styleTitle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
)

func statusStyle(status string) lipgloss.Style {
	switch searchspec.Status(status) {
	case searchspec.StatusCompleted:
		return styleCompleted
	case searchspec.StatusFailed:
		return styleFailed
	case searchspec.StatusRunning:
		return styleRunning
	default:
		return stylePending
	}
}

func runList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	searches, err := st.RecentSearches(ctx, listLimit)
	if err != nil {
		return fmt.Errorf("failed to list searches: %w", err)
	}
	if len(searches) == 0 {
		fmt.Println("No searches yet. Start one with 'caaasearch submit'.")
		return nil
	}

	header := fmt.Sprintf("%-5s %-10s %-23s %-9s %6s %5s  %s",
		"#", "STATUS", "TYPE", "AGE", "FOUND", "REL", "QUERY")
	fmt.Println(styleHeader.Render(header))

	for _, s := range searches {
		row := fmt.Sprintf("%-5d %s %-23s %-9s %6d %5d  %s",
			s.SearchNumber,
			statusStyle(s.Status).Render(fmt.Sprintf("%-10s", s.Status)),
			s.QueryType,
			age(s.CreatedAt),
			s.MessagesFound,
			s.RelevantCount,
			truncate(s.UserQuery, 48))
		fmt.Println(row)
	}

	fmt.Println(styleMuted.Render(fmt.Sprintf("%d search(es); 'caaasearch show <number>' for details", len(searches))))
	return nil
}

// age renders an RFC3339 timestamp as a short relative duration.
func age(created string) string {
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return "?"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// summaryLine renders the one-line form used by list and show headers.
func summaryLine(s *store.Search) string {
	return fmt.Sprintf("#%d %s %s %q",
		s.SearchNumber,
		statusStyle(s.Status).Render(s.Status),
		s.QueryType,
		truncate(s.UserQuery, 60))
}
