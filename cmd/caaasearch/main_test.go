package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caaasearch/internal/config"
	"caaasearch/internal/searchspec"
	"caaasearch/internal/store"
)

// testConfig points the CLI globals at a throwaway store.
func testConfig(t *testing.T) {
	t.Helper()
	cfg = config.DefaultConfig()
	cfg.Store.DSN = filepath.Join(t.TempDir(), "cli_test.db")
	cfg.Store.MaxOpenConns = 1
	cfg.Logging.Dir = t.TempDir()
	logger = zap.NewNop()
}

func seedSearch(t *testing.T, userQuery, realQuestion string, qt searchspec.QueryType) *store.Search {
	t.Helper()
	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer st.Close()

	spec := searchspec.SearchSpec{Keyword: "apportionment"}.Normalize()
	search, err := st.CreateSearch(context.Background(), userQuery, realQuestion, qt, store.ParamsFromSpec(spec, "keyword plan"))
	if err != nil {
		t.Fatalf("CreateSearch: %v", err)
	}
	return search
}

func TestJoinArgs(t *testing.T) {
	if got := joinArgs([]string{"one", "two", "three"}); got != "one two three" {
		t.Fatalf("joinArgs = %q, want 'one two three'", got)
	}
	if got := joinArgs(nil); got != "" {
		t.Fatalf("joinArgs(nil) = %q, want empty", got)
	}
}

func TestFindSearchByNumberAndID(t *testing.T) {
	testConfig(t)
	created := seedSearch(t, "apportionment", "apportionment", searchspec.QueryGeneral)

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	byNumber, err := findSearch(ctx, st, "1")
	if err != nil {
		t.Fatalf("findSearch by number: %v", err)
	}
	if byNumber.ID != created.ID {
		t.Fatalf("by number resolved %s, want %s", byNumber.ID, created.ID)
	}

	byID, err := findSearch(ctx, st, created.ID)
	if err != nil {
		t.Fatalf("findSearch by id: %v", err)
	}
	if byID.SearchNumber != created.SearchNumber {
		t.Fatalf("by id resolved #%d, want #%d", byID.SearchNumber, created.SearchNumber)
	}

	if _, err := findSearch(ctx, st, "999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing number error = %v, want ErrNotFound", err)
	}
}

func TestRunListEmpty(t *testing.T) {
	testConfig(t)

	output := captureOutput(t, func() {
		if err := runList(&cobra.Command{}, nil); err != nil {
			t.Errorf("runList returned error: %v", err)
		}
	})

	if !strings.Contains(output, "No searches yet") {
		t.Fatalf("expected empty notice, got: %s", output)
	}
}

func TestRunListShowsSearches(t *testing.T) {
	testConfig(t)
	seedSearch(t, "messages about apportionment", "messages about apportionment", searchspec.QueryGeneral)
	seedSearch(t, "Garcia", "Evaluate judge: Garcia", searchspec.QueryJudgeEval)

	output := captureOutput(t, func() {
		if err := runList(&cobra.Command{}, nil); err != nil {
			t.Errorf("runList returned error: %v", err)
		}
	})

	for _, want := range []string{"messages about apportionment", "judge_eval", "pending", "QUERY"} {
		if !strings.Contains(output, want) {
			t.Errorf("list output missing %q:\n%s", want, output)
		}
	}
}

func TestRunShowNotFound(t *testing.T) {
	testConfig(t)

	err := runShow(&cobra.Command{}, []string{"42"})
	if err == nil || !strings.Contains(err.Error(), "no search") {
		t.Fatalf("expected missing-search error, got %v", err)
	}
}

func TestRunShowRendersSearchAndVerdict(t *testing.T) {
	testConfig(t)
	created := seedSearch(t, "Garcia", "Evaluate judge: Garcia", searchspec.QueryJudgeEval)

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	ctx := context.Background()
	err = st.SaveSynthesis(ctx, &store.Synthesis{
		SearchID:   created.ID,
		Score:      82,
		Evaluation: "good",
		Reasoning:  "Consistently praised across the relevant threads.",
	})
	st.Close()
	if err != nil {
		t.Fatalf("SaveSynthesis: %v", err)
	}

	output := captureOutput(t, func() {
		if err := runShow(&cobra.Command{}, []string{"1"}); err != nil {
			t.Errorf("runShow returned error: %v", err)
		}
	})

	for _, want := range []string{"Evaluate judge: Garcia", created.ID, "Verdict", "82", "praised"} {
		if !strings.Contains(output, want) {
			t.Errorf("show output missing %q:\n%s", want, output)
		}
	}
}

func TestRunFeedbackRequiresOneDirection(t *testing.T) {
	testConfig(t)
	feedbackSearch = "1"
	feedbackPositive = false
	feedbackNegative = false
	defer resetFeedbackFlags()

	err := runFeedback(&cobra.Command{}, nil)
	if err == nil || !strings.Contains(err.Error(), "--positive or --negative") {
		t.Fatalf("expected direction error, got %v", err)
	}
}

func TestRunFeedbackOnSynthesis(t *testing.T) {
	testConfig(t)
	created := seedSearch(t, "Garcia", "Evaluate judge: Garcia", searchspec.QueryJudgeEval)

	feedbackSearch = "1"
	feedbackPositive = true
	feedbackComment = "matched our experience"
	defer resetFeedbackFlags()

	output := captureOutput(t, func() {
		if err := runFeedback(&cobra.Command{}, nil); err != nil {
			t.Errorf("runFeedback returned error: %v", err)
		}
	})
	if !strings.Contains(output, "Feedback recorded for search #1") {
		t.Fatalf("unexpected feedback output: %s", output)
	}

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer st.Close()
	rows, err := st.ListSynthesisFeedback(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("ListSynthesisFeedback: %v", err)
	}
	if len(rows) != 1 || !rows[0].IsPositive || rows[0].Comment != "matched our experience" {
		t.Fatalf("stored feedback = %+v, want one positive row with comment", rows)
	}
}

func TestRunFeedbackOnMessage(t *testing.T) {
	testConfig(t)
	created := seedSearch(t, "Garcia", "Evaluate judge: Garcia", searchspec.QueryJudgeEval)

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	ctx := context.Background()
	msgID, err := st.UpsertMessage(ctx, &store.Message{
		UpstreamID: 9001,
		Subject:    "Re: Judge Garcia continuance",
		FromName:   "Jane Doe",
		Body:       "He granted it without a fight.",
	})
	st.Close()
	if err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}

	feedbackSearch = created.ID
	feedbackMessage = msgID
	feedbackNegative = true
	defer resetFeedbackFlags()

	output := captureOutput(t, func() {
		if err := runFeedback(&cobra.Command{}, nil); err != nil {
			t.Errorf("runFeedback returned error: %v", err)
		}
	})
	if !strings.Contains(output, msgID) {
		t.Fatalf("expected message id in output, got: %s", output)
	}

	st2, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer st2.Close()
	rows, err := st2.ListMessageFeedback(ctx, created.ID)
	if err != nil {
		t.Fatalf("ListMessageFeedback: %v", err)
	}
	if len(rows) != 1 || rows[0].IsPositive || rows[0].MessageID != msgID {
		t.Fatalf("stored feedback = %+v, want one negative row for %s", rows, msgID)
	}
}

func resetFeedbackFlags() {
	feedbackSearch = ""
	feedbackMessage = ""
	feedbackPositive = false
	feedbackNegative = false
	feedbackComment = ""
}

func TestAge(t *testing.T) {
	if got := age("not-a-time"); got != "?" {
		t.Fatalf("age(garbage) = %q, want ?", got)
	}
	if got := age(nowMinus(30 * time.Minute)); got != "30m ago" {
		t.Fatalf("age(30m) = %q", got)
	}
	if got := age(nowMinus(3 * time.Hour)); got != "3h ago" {
		t.Fatalf("age(3h) = %q", got)
	}
	if got := age(nowMinus(49 * time.Hour)); got != "2d ago" {
		t.Fatalf("age(49h) = %q", got)
	}
}

func nowMinus(d time.Duration) string {
	return time.Now().Add(-d).UTC().Format(time.RFC3339)
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate(short) = %q", got)
	}
	if got := truncate("a very long subject line here", 10); got != "a very ..." {
		t.Fatalf("truncate(long) = %q", got)
	}
	if got := truncate("ñññññ", 4); got != "ñ..." {
		t.Fatalf("truncate(runes) = %q", got)
	}
}

func TestSynthesisMarkdown(t *testing.T) {
	md := synthesisMarkdown(&store.Synthesis{
		Score:      40,
		Evaluation: "insufficient_data",
		Reasoning:  "Only 2 relevant messages.",
	})
	for _, want := range []string{"insufficient data", "40/100", "Only 2 relevant messages."} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
