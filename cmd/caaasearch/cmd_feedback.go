package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"caaasearch/internal/store"
)

var (
	feedbackSearch   string
	feedbackMessage  string
	feedbackPositive bool
	feedbackNegative bool
	feedbackComment  string
)

// feedbackCmd records thumbs up/down on a search's verdict or on a single
// scored message. The stored feedback feeds prompt tuning.
var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record feedback on a verdict or a scored message",
	Long: `Records a thumbs up or down for a search's synthesized verdict, or with
--message for one scored message's relevance call.

  caaasearch feedback --search 12 --positive
  caaasearch feedback --search 12 --message <uuid> --negative -c "not about this judge"`,
	RunE: runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackSearch, "search", "", "Search number or UUID (required)")
	feedbackCmd.Flags().StringVar(&feedbackMessage, "message", "", "Message UUID for per-message feedback")
	feedbackCmd.Flags().BoolVar(&feedbackPositive, "positive", false, "The call was right")
	feedbackCmd.Flags().BoolVar(&feedbackNegative, "negative", false, "The call was wrong")
	feedbackCmd.Flags().StringVarP(&feedbackComment, "comment", "c", "", "Optional comment")
	_ = feedbackCmd.MarkFlagRequired("search")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	if feedbackPositive == feedbackNegative {
		return fmt.Errorf("exactly one of --positive or --negative is required")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	search, err := findSearch(ctx, st, feedbackSearch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no search %q", feedbackSearch)
		}
		return err
	}

	if feedbackMessage != "" {
		f := &store.MessageFeedback{
			SearchID:   search.ID,
			MessageID:  feedbackMessage,
			IsPositive: feedbackPositive,
			Comment:    feedbackComment,
		}
		if err := st.SaveMessageFeedback(ctx, f); err != nil {
			return err
		}
		fmt.Printf("Feedback recorded for message %s on search #%d\n", feedbackMessage, search.SearchNumber)
		return nil
	}

	f := &store.SynthesisFeedback{
		SearchID:   search.ID,
		IsPositive: feedbackPositive,
		Comment:    feedbackComment,
	}
	if err := st.SaveSynthesisFeedback(ctx, f); err != nil {
		return err
	}
	fmt.Printf("Feedback recorded for search #%d\n", search.SearchNumber)
	return nil
}
