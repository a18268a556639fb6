package synthesize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"caaasearch/internal/llm"
)

type fakeClient struct {
	response   string
	err        error
	calls      int
	lastSystem string
	lastUser   string
	lastOpts   llm.Options
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithOptions(ctx, "", prompt, llm.DefaultOptions())
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return f.CompleteWithOptions(ctx, system, user, llm.DefaultOptions())
}

func (f *fakeClient) CompleteWithOptions(ctx context.Context, system, user string, opts llm.Options) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastUser = user
	f.lastOpts = opts
	return f.response, f.err
}

func (f *fakeClient) Model() string    { return "fake" }
func (f *fakeClient) Usage() llm.Usage { return llm.Usage{} }

func relevantMessages(n int) []RelevantMessage {
	msgs := make([]RelevantMessage, n)
	for i := range msgs {
		msgs[i] = RelevantMessage{
			Subject:  fmt.Sprintf("Experience with Dr. Roe %d", i+1),
			FromName: fmt.Sprintf("Attorney %d", i+1),
			Body:     fmt.Sprintf("Dr. Roe wrote a thorough report in case %d.", i+1),
		}
	}
	return msgs
}

func TestSynthesizeBypassBelowThreshold(t *testing.T) {
	fake := &fakeClient{response: `{"score": 90, "evaluation": "good", "reasoning": "should not be used"}`}
	s := New(fake)

	got := s.Synthesize(context.Background(), "Evaluate doctor: Dr. Jane Roe", relevantMessages(2))

	if fake.calls != 0 {
		t.Errorf("model called %d times, want 0", fake.calls)
	}
	if got.Score != 0 || got.Evaluation != EvalInsufficientData {
		t.Errorf("Synthesize = %+v, want insufficient_data", got)
	}
	want := "Only found 2 relevant messages about Dr. Jane Roe. Need at least 3 messages to make a reliable evaluation."
	if got.Reasoning != want {
		t.Errorf("reasoning = %q, want %q", got.Reasoning, want)
	}
}

func TestSynthesizeBypassNoneRelevant(t *testing.T) {
	fake := &fakeClient{}
	got := New(fake).Synthesize(context.Background(), "Evaluate doctor: Dr. Jane Roe", nil)

	if fake.calls != 0 {
		t.Errorf("model called %d times, want 0", fake.calls)
	}
	want := "Only found 0 relevant messages about Dr. Jane Roe. Need at least 3 messages to make a reliable evaluation."
	if got.Reasoning != want {
		t.Errorf("reasoning = %q, want %q", got.Reasoning, want)
	}
}

func TestNoMessages(t *testing.T) {
	got := NoMessages("Evaluate doctor: Dr. Jane Roe")
	if got.Evaluation != EvalInsufficientData || got.Reasoning != "No messages found about this doctor." {
		t.Errorf("NoMessages = %+v", got)
	}

	got = NoMessages("Evaluate judge: Hon. Sam Lee")
	if got.Reasoning != "No messages found about this judge." {
		t.Errorf("judge reasoning = %q", got.Reasoning)
	}

	got = NoMessages("Find best AME: orthopedic")
	if got.Reasoning != "No messages found about this doctor." {
		t.Errorf("examiner reasoning = %q", got.Reasoning)
	}
}

func TestSynthesizeDoctor(t *testing.T) {
	fake := &fakeClient{response: `{"score": 78, "evaluation": "good", "reasoning": "Consistently praised for thorough reports."}`}
	s := New(fake)

	got := s.Synthesize(context.Background(), "Evaluate doctor: Dr. Jane Roe", relevantMessages(3))

	if got.Score != 78 || got.Evaluation != EvalGood {
		t.Errorf("Synthesize = %+v", got)
	}
	if !strings.Contains(got.Reasoning, "thorough reports") {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
	if !strings.Contains(fake.lastUser, `DOCTOR: "Dr. Jane Roe"`) {
		t.Error("prompt missing the subject line")
	}
	if !strings.Contains(fake.lastUser, "--- Message 3 ---") {
		t.Error("prompt missing the third message")
	}
	if fake.lastOpts.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", fake.lastOpts.Temperature)
	}
	if !strings.Contains(fake.lastSystem, "synthesizing feedback") {
		t.Errorf("system prompt = %q", fake.lastSystem)
	}
}

func TestSynthesizeDefenseAttorneyLabels(t *testing.T) {
	cases := []struct {
		emitted string
		want    string
	}{
		{"easy_to_deal_with", EvalEasy},
		{"good", EvalEasy},
		{"mixed", EvalModerate},
		{"bad", EvalDifficult},
		{"hostile", EvalModerate},
	}
	for _, tc := range cases {
		fake := &fakeClient{response: fmt.Sprintf(`{"score": 50, "evaluation": %q, "reasoning": "r"}`, tc.emitted)}
		got := New(fake).Synthesize(context.Background(), "Evaluate defense attorney: Lee & Chang", relevantMessages(3))
		if got.Evaluation != tc.want {
			t.Errorf("label %q: evaluation = %q, want %q", tc.emitted, got.Evaluation, tc.want)
		}
	}
}

func TestSynthesizeNormalizesUnknownLabel(t *testing.T) {
	fake := &fakeClient{response: `{"score": 55, "evaluation": "Excellent!", "reasoning": "r"}`}
	got := New(fake).Synthesize(context.Background(), "Evaluate judge: Hon. Sam Lee", relevantMessages(3))
	if got.Evaluation != EvalMixed {
		t.Errorf("evaluation = %q, want mixed", got.Evaluation)
	}

	fake = &fakeClient{response: `{"score": 55, "evaluation": " Bad ", "reasoning": "r"}`}
	got = New(fake).Synthesize(context.Background(), "Evaluate judge: Hon. Sam Lee", relevantMessages(3))
	if got.Evaluation != EvalBad {
		t.Errorf("evaluation = %q, want bad", got.Evaluation)
	}
}

func TestSynthesizeClampsScore(t *testing.T) {
	cases := []struct {
		response string
		want     int
	}{
		{`{"score": 140, "evaluation": "good", "reasoning": "r"}`, 100},
		{`{"score": -5, "evaluation": "bad", "reasoning": "r"}`, 0},
	}
	for _, tc := range cases {
		fake := &fakeClient{response: tc.response}
		got := New(fake).Synthesize(context.Background(), "Evaluate doctor: Dr. Roe", relevantMessages(3))
		if got.Score != tc.want {
			t.Errorf("response %s: score = %d, want %d", tc.response, got.Score, tc.want)
		}
	}
}

func TestSynthesizeTruncatesBodies(t *testing.T) {
	fake := &fakeClient{response: `{"score": 50, "evaluation": "mixed", "reasoning": "r"}`}
	msgs := relevantMessages(3)
	msgs[1].Body = strings.Repeat("x", 1200) + "END-SENTINEL"

	New(fake).Synthesize(context.Background(), "Evaluate doctor: Dr. Roe", msgs)

	if !strings.Contains(fake.lastUser, truncationMarker) {
		t.Error("prompt missing the truncation marker")
	}
	if strings.Contains(fake.lastUser, "END-SENTINEL") {
		t.Error("prompt carries a body past the per-message cap")
	}
}

func TestSynthesizeCapsMessageCount(t *testing.T) {
	fake := &fakeClient{response: `{"score": 50, "evaluation": "mixed", "reasoning": "r"}`}
	New(fake).Synthesize(context.Background(), "Evaluate doctor: Dr. Roe", relevantMessages(60))

	if !strings.Contains(fake.lastUser, "--- Message 50 ---") {
		t.Error("prompt missing message 50")
	}
	if strings.Contains(fake.lastUser, "--- Message 51 ---") {
		t.Error("prompt carries messages past the cap")
	}
}

func TestSynthesizeModelError(t *testing.T) {
	fake := &fakeClient{err: errors.New("connection refused")}
	got := New(fake).Synthesize(context.Background(), "Evaluate doctor: Dr. Roe", relevantMessages(3))

	if got.Score != 0 || got.Evaluation != EvalError {
		t.Errorf("Synthesize = %+v, want error verdict", got)
	}
	if got.Reasoning != "Error during synthesis: connection refused" {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestSynthesizeParseFailure(t *testing.T) {
	fake := &fakeClient{response: "The doctor seems fine overall."}
	got := New(fake).Synthesize(context.Background(), "Evaluate doctor: Dr. Roe", relevantMessages(3))

	if got.Evaluation != EvalError {
		t.Errorf("evaluation = %q, want error", got.Evaluation)
	}
	if !strings.Contains(got.Reasoning, "Error during synthesis:") {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestSynthesizeNilClient(t *testing.T) {
	got := New(nil).Synthesize(context.Background(), "Evaluate doctor: Dr. Roe", relevantMessages(3))
	if got.Evaluation != EvalError {
		t.Errorf("evaluation = %q, want error", got.Evaluation)
	}
}

func TestSynthesizeExaminerRanking(t *testing.T) {
	// Model emits doctors out of order with a wrong net for Dr. B; the
	// ranking must recompute nets and sort descending.
	fake := &fakeClient{response: `{
        "doctors": [
            {"name": "Dr. A", "positive_mentions": 2, "negative_mentions": 1, "net_score": 9, "sample_quotes": ["solid reports"], "warnings": []},
            {"name": "Dr. B", "positive_mentions": 5, "negative_mentions": 0, "net_score": 0, "sample_quotes": ["gold standard"], "warnings": ["long scheduling delays"]}
        ],
        "total_mentions": 0,
        "reasoning": "Two orthopedic examiners came up repeatedly."
    }`}
	s := New(fake)

	got := s.Synthesize(context.Background(), "Find best AME: orthopedic", relevantMessages(4))

	if got.Evaluation != EvalRankedDoctors {
		t.Fatalf("evaluation = %q, want ranked_doctors", got.Evaluation)
	}
	if got.Score != 8 {
		t.Errorf("score = %d, want 8 total mentions", got.Score)
	}
	first := strings.Index(got.Reasoning, "1. Dr. B")
	second := strings.Index(got.Reasoning, "2. Dr. A")
	if first < 0 || second < 0 || first > second {
		t.Errorf("ranking order wrong:\n%s", got.Reasoning)
	}
	if !strings.Contains(got.Reasoning, "net +5") {
		t.Errorf("recomputed net missing:\n%s", got.Reasoning)
	}
	if !strings.Contains(got.Reasoning, "Warning: long scheduling delays") {
		t.Errorf("warning missing:\n%s", got.Reasoning)
	}
	if !strings.Contains(got.Reasoning, "Two orthopedic examiners") {
		t.Errorf("model reasoning missing:\n%s", got.Reasoning)
	}
	if !strings.Contains(fake.lastUser, "SPECIALTY: orthopedic") {
		t.Error("prompt missing the specialty")
	}
	if !strings.Contains(fake.lastUser, "AME doctors") {
		t.Error("prompt missing the examiner type")
	}
	if fake.lastOpts.MaxTokens != 2000 {
		t.Errorf("max tokens = %d, want 2000", fake.lastOpts.MaxTokens)
	}
}

func TestSynthesizeExaminerBothDisplay(t *testing.T) {
	fake := &fakeClient{response: `{"doctors": [], "total_mentions": 0, "reasoning": "Nothing concrete."}`}
	got := New(fake).Synthesize(context.Background(), "Find best Both: spine", relevantMessages(3))

	if !strings.Contains(fake.lastUser, "AME or QME doctors") {
		t.Error("prompt missing the combined examiner label")
	}
	if !strings.Contains(got.Reasoning, "No specific AME or QME doctors were named") {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestSynthesizeExaminerBypassNames(t *testing.T) {
	got := New(&fakeClient{}).Synthesize(context.Background(), "Find best QME: pain management", relevantMessages(1))
	want := "Only found 1 relevant messages about QME doctors for pain management. Need at least 3 messages to make a reliable evaluation."
	if got.Reasoning != want {
		t.Errorf("reasoning = %q, want %q", got.Reasoning, want)
	}
}
