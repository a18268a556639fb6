package score

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"caaasearch/internal/llm"
)

type fakeClient struct {
	response      string
	err           error
	tokensPerCall int
	calls         int
	lastSystem    string
	lastUser      string
	lastOpts      llm.Options
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithOptions(ctx, "", prompt, llm.DefaultOptions())
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return f.CompleteWithOptions(ctx, system, user, llm.DefaultOptions())
}

func (f *fakeClient) CompleteWithOptions(ctx context.Context, system, user string, opts llm.Options) (string, error) {
	f.lastSystem = system
	f.lastUser = user
	f.lastOpts = opts
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	return f.response, nil
}

func (f *fakeClient) Model() string { return "fake" }

func (f *fakeClient) Usage() llm.Usage {
	return llm.Usage{Requests: f.calls, TotalTokens: f.calls * f.tokensPerCall}
}

func sampleMessage() Message {
	return Message{
		Subject:  "Expedited hearing for MPN dispute",
		FromName: "Jane Smith <jsmith@smithlaw.com>",
		Body:     "I had a similar MPN dispute last month. The expedited hearing was granted within two weeks.",
	}
}

func TestScoreRelevant(t *testing.T) {
	fake := &fakeClient{
		response:      `{"is_relevant": true, "confidence": 0.92, "reasoning": "Directly discusses an expedited hearing for an MPN dispute."}`,
		tokensPerCall: 120,
	}
	s := New(fake)

	got := s.Score(context.Background(), sampleMessage(), "How do expedited hearings work for MPN disputes?")
	if !got.IsRelevant {
		t.Fatalf("Score = %+v, want relevant", got)
	}
	if got.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", got.Confidence)
	}
	if got.Model != "fake" {
		t.Errorf("model = %q, want fake", got.Model)
	}
	if got.TokensUsed != 120 {
		t.Errorf("tokens = %d, want 120", got.TokensUsed)
	}
	if want := llm.EstimateCost("fake", 120); got.CostUSD != want {
		t.Errorf("cost = %v, want %v", got.CostUSD, want)
	}
	if fake.lastOpts.Temperature != 0.3 || fake.lastOpts.MaxTokens != 500 {
		t.Errorf("options = %+v, want temperature 0.3 max tokens 500", fake.lastOpts)
	}
	if !strings.Contains(fake.lastSystem, "expert legal assistant") {
		t.Errorf("system prompt = %q", fake.lastSystem)
	}
}

func TestScoreGeneralPromptIsAnchoredToRealQuestion(t *testing.T) {
	fake := &fakeClient{response: `{"is_relevant": false, "confidence": 0.1, "reasoning": "Off topic."}`}
	s := New(fake)

	s.Score(context.Background(), sampleMessage(), "Find ALL messages from posted by: Chris Johnson. Any message from this person is relevant regardless of content.")

	if !strings.Contains(fake.lastUser, `REAL QUESTION: "Find ALL messages from posted by: Chris Johnson.`) {
		t.Error("prompt does not quote the real question")
	}
	if !strings.Contains(fake.lastUser, "confidence 0.95") || !strings.Contains(fake.lastUser, "confidence 0.85") {
		t.Error("prompt is missing the author special-case confidences")
	}
	if !strings.Contains(fake.lastUser, "Never base it on the raw search keywords") {
		t.Error("prompt is missing the keyword warning")
	}
}

func TestScorePromptFamilies(t *testing.T) {
	cases := []struct {
		question string
		marker   string
	}{
		{"Evaluate doctor: Dr. Jane Roe", `DOCTOR BEING EVALUATED: "Dr. Jane Roe"`},
		{"Evaluate doctor: Dr. Jane Roe", "medical-legal reports"},
		{"Evaluate judge: Hon. Sam Lee", `JUDGE BEING EVALUATED: "Hon. Sam Lee"`},
		{"Evaluate judge: Hon. Sam Lee", "rulings, temperament"},
		{"Evaluate adjuster: Pat Kim", `ADJUSTER BEING EVALUATED: "Pat Kim"`},
		{"Evaluate defense attorney: Lee & Chang", `DEFENSE ATTORNEY BEING EVALUATED: "Lee & Chang"`},
		{"Evaluate insurance company: Acme Insurance", `INSURANCE COMPANY BEING EVALUATED: "Acme Insurance"`},
		{"Find best AME: orthopedic", "LOOKING FOR: AME doctors, specialty: orthopedic"},
		{"Find best QME: pain management", "LOOKING FOR: QME doctors, specialty: pain management"},
		{"Find best Both: spine", "LOOKING FOR: AME or QME doctors, specialty: spine"},
		{"anything else entirely", "REAL QUESTION:"},
	}
	for _, tc := range cases {
		fake := &fakeClient{response: `{"is_relevant": true, "confidence": 0.8, "reasoning": "ok"}`}
		New(fake).Score(context.Background(), sampleMessage(), tc.question)
		if !strings.Contains(fake.lastUser, tc.marker) {
			t.Errorf("question %q: prompt missing %q\nprompt:\n%s", tc.question, tc.marker, fake.lastUser)
		}
	}
}

func TestScoreTruncatesLongBody(t *testing.T) {
	fake := &fakeClient{response: `{"is_relevant": true, "confidence": 0.5, "reasoning": "ok"}`}
	msg := sampleMessage()
	msg.Body = strings.Repeat("x", 2100) + "END-SENTINEL"

	New(fake).Score(context.Background(), msg, "anything")

	if !strings.Contains(fake.lastUser, truncationMarker) {
		t.Error("prompt missing the truncation marker")
	}
	if strings.Contains(fake.lastUser, "END-SENTINEL") {
		t.Error("prompt still carries the body tail past the cap")
	}
}

func TestTruncateBody(t *testing.T) {
	short := "short body"
	if got := truncateBody(short); got != short {
		t.Errorf("truncateBody(short) = %q", got)
	}

	long := strings.Repeat("a", maxBodyChars+5)
	got := truncateBody(long)
	if len(got) != maxBodyChars+len(truncationMarker) {
		t.Errorf("len = %d, want %d", len(got), maxBodyChars+len(truncationMarker))
	}

	// A rune straddling the cap must not be split.
	straddle := strings.Repeat("a", maxBodyChars-1) + "日本語テスト"
	got = truncateBody(straddle)
	if !utf8.ValidString(got) {
		t.Error("truncation split a multibyte rune")
	}
	if !strings.HasSuffix(got, truncationMarker) {
		t.Errorf("missing marker: %q", got[len(got)-30:])
	}
}

func TestScoreParseFailure(t *testing.T) {
	fake := &fakeClient{response: "I think this message is relevant to the question."}
	got := New(fake).Score(context.Background(), sampleMessage(), "anything")

	if got.IsRelevant || got.Confidence != 0 {
		t.Errorf("Score = %+v, want not-relevant default", got)
	}
	if got.Reasoning != "Failed to parse AI response" {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestScoreClientError(t *testing.T) {
	fake := &fakeClient{err: errors.New("connection refused")}
	got := New(fake).Score(context.Background(), sampleMessage(), "anything")

	if got.IsRelevant || got.Confidence != 0 {
		t.Errorf("Score = %+v, want not-relevant default", got)
	}
	if got.Reasoning != "Error analyzing message: connection refused" {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestScoreNilClient(t *testing.T) {
	got := New(nil).Score(context.Background(), sampleMessage(), "anything")
	if got.IsRelevant || got.Confidence != 0 {
		t.Errorf("Score = %+v, want not-relevant default", got)
	}
	if !strings.Contains(got.Reasoning, "no model client configured") {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}

func TestScoreClampsConfidence(t *testing.T) {
	cases := []struct {
		response string
		want     float64
	}{
		{`{"is_relevant": true, "confidence": 1.7, "reasoning": "over"}`, 1},
		{`{"is_relevant": false, "confidence": -0.3, "reasoning": "under"}`, 0},
	}
	for _, tc := range cases {
		fake := &fakeClient{response: tc.response}
		got := New(fake).Score(context.Background(), sampleMessage(), "anything")
		if got.Confidence != tc.want {
			t.Errorf("response %s: confidence = %v, want %v", tc.response, got.Confidence, tc.want)
		}
	}
}

func TestScoreDefaultsEmptyReasoning(t *testing.T) {
	fake := &fakeClient{response: `{"is_relevant": true, "confidence": 0.6}`}
	got := New(fake).Score(context.Background(), sampleMessage(), "anything")
	if got.Reasoning != "No reasoning provided" {
		t.Errorf("reasoning = %q", got.Reasoning)
	}
}
