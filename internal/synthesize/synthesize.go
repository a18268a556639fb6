// Package synthesize turns a pile of relevant listserv messages into a
// single verdict: a 0-100 score and a label for subject evaluations, or
// a ranked doctor list for AME/QME searches.
//
// The synthesizer only runs when there is enough evidence. Below the
// message threshold it writes an insufficient_data verdict without
// calling the model at all, and any model failure is absorbed into an
// error verdict so the search itself still completes.
package synthesize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"caaasearch/internal/llm"
	"caaasearch/internal/logging"
	"caaasearch/internal/searchspec"
)

// MinRelevantMessages is how much evidence a synthesis needs. Below
// this the verdict is insufficient_data and the model is never called.
const MinRelevantMessages = 3

// maxMessages caps how many relevant messages are shown to the model.
const maxMessages = 50

// maxBodyChars caps each message body inside the synthesis prompt.
const maxBodyChars = 1000

const truncationMarker = "... [truncated]"

// Evaluation labels persisted to synthesis results.
const (
	EvalGood             = "good"
	EvalMixed            = "mixed"
	EvalBad              = "bad"
	EvalEasy             = "easy_to_deal_with"
	EvalModerate         = "moderate"
	EvalDifficult        = "difficult_to_deal_with"
	EvalInsufficientData = "insufficient_data"
	EvalError            = "error"
	EvalRankedDoctors    = "ranked_doctors"
)

const systemPrompt = "You are an expert legal assistant synthesizing feedback from workers' compensation listserv messages. You weigh attorneys' firsthand experiences fairly and answer in strict JSON."

// RelevantMessage is the slice of a scored message the synthesizer reads.
type RelevantMessage struct {
	Subject  string
	FromName string
	Body     string
}

// Outcome is the persisted synthesis verdict.
type Outcome struct {
	Score      int
	Evaluation string
	Reasoning  string
}

// RankedDoctor is one entry in an AME/QME recommendation ranking.
type RankedDoctor struct {
	Name             string   `json:"name"`
	PositiveMentions int      `json:"positive_mentions"`
	NegativeMentions int      `json:"negative_mentions"`
	NetScore         int      `json:"net_score"`
	SampleQuotes     []string `json:"sample_quotes"`
	Warnings         []string `json:"warnings"`
}

// Ranking is the model's answer for an AME/QME search.
type Ranking struct {
	Doctors       []RankedDoctor `json:"doctors"`
	TotalMentions int            `json:"total_mentions"`
	Reasoning     string         `json:"reasoning"`
}

type subjectVerdict struct {
	Score      int    `json:"score"`
	Evaluation string `json:"evaluation"`
	Reasoning  string `json:"reasoning"`
}

// Synthesizer builds the aggregate verdict for an evaluation search.
type Synthesizer struct {
	client llm.Client
}

// New returns a Synthesizer backed by the given model client.
func New(client llm.Client) *Synthesizer {
	return &Synthesizer{client: client}
}

// Synthesize produces the final verdict for an evaluation search from
// its relevant messages. It never returns an error: too little evidence
// yields insufficient_data, and model failures yield an error verdict.
func (s *Synthesizer) Synthesize(ctx context.Context, realQuestion string, msgs []RelevantMessage) Outcome {
	kind, subject := searchspec.QuestionKind(realQuestion)

	if len(msgs) < MinRelevantMessages {
		logging.SynthesisWarn("Only %d relevant messages, skipping model synthesis", len(msgs))
		return insufficient(kind, realQuestion, subject, len(msgs))
	}
	if s.client == nil {
		return errorOutcome(fmt.Errorf("no model client configured"))
	}

	if len(msgs) > maxMessages {
		msgs = msgs[:maxMessages]
	}

	if kind == searchspec.QueryAMEQMESearch {
		return s.synthesizeRanking(ctx, searchspec.ExaminerKind(realQuestion), subject, msgs)
	}
	return s.synthesizeSubject(ctx, kind, subject, msgs)
}

func (s *Synthesizer) synthesizeSubject(ctx context.Context, kind searchspec.QueryType, subject string, msgs []RelevantMessage) Outcome {
	role := roleNoun(kind)
	logging.Synthesis("Synthesizing %s evaluation for %q from %d messages", role, subject, len(msgs))

	text, err := s.client.CompleteWithOptions(ctx, systemPrompt,
		subjectPrompt(kind, role, subject, msgs), llm.DefaultOptions())
	if err != nil {
		logging.SynthesisWarn("Model synthesis failed for %q: %v", subject, err)
		return errorOutcome(err)
	}

	var v subjectVerdict
	if err := llm.Decode(text, &v); err != nil {
		logging.SynthesisWarn("Unparseable synthesis for %q: %v", subject, err)
		return errorOutcome(err)
	}

	out := Outcome{
		Score:      clampScore(v.Score),
		Evaluation: normalizeLabel(kind, v.Evaluation),
		Reasoning:  v.Reasoning,
	}
	logging.Synthesis("Synthesis for %q: %d/100 (%s)", subject, out.Score, out.Evaluation)
	return out
}

func (s *Synthesizer) synthesizeRanking(ctx context.Context, examiner, specialty string, msgs []RelevantMessage) Outcome {
	display := examinerDisplay(examiner)
	logging.Synthesis("Ranking %s doctors for %q from %d messages", display, specialty, len(msgs))

	opts := llm.Options{Temperature: 0.3, MaxTokens: 2000}
	text, err := s.client.CompleteWithOptions(ctx, systemPrompt,
		rankingPrompt(display, specialty, msgs), opts)
	if err != nil {
		logging.SynthesisWarn("Model ranking failed for %q: %v", specialty, err)
		return errorOutcome(err)
	}

	var r Ranking
	if err := llm.Decode(text, &r); err != nil {
		logging.SynthesisWarn("Unparseable ranking for %q: %v", specialty, err)
		return errorOutcome(err)
	}

	// Recompute the arithmetic rather than trusting the model's.
	for i := range r.Doctors {
		r.Doctors[i].NetScore = r.Doctors[i].PositiveMentions - r.Doctors[i].NegativeMentions
	}
	sort.SliceStable(r.Doctors, func(i, j int) bool {
		return r.Doctors[i].NetScore > r.Doctors[j].NetScore
	})
	if r.TotalMentions == 0 {
		for _, d := range r.Doctors {
			r.TotalMentions += d.PositiveMentions + d.NegativeMentions
		}
	}

	out := Outcome{
		Score:      clampScore(r.TotalMentions),
		Evaluation: EvalRankedDoctors,
		Reasoning:  formatRanking(display, specialty, r, len(msgs)),
	}
	logging.Synthesis("Ranked %d %s doctors for %q", len(r.Doctors), display, specialty)
	return out
}

// NoMessages is the verdict persisted when retrieval found nothing at
// all for an evaluation search. Scoring never ran, so this is distinct
// from having messages that all scored irrelevant.
func NoMessages(realQuestion string) Outcome {
	kind, _ := searchspec.QuestionKind(realQuestion)
	return Outcome{
		Evaluation: EvalInsufficientData,
		Reasoning:  fmt.Sprintf("No messages found about this %s.", roleNoun(kind)),
	}
}

// insufficient is the bypass verdict when there is too little evidence.
func insufficient(kind searchspec.QueryType, realQuestion, subject string, relevant int) Outcome {
	label := subject
	if kind == searchspec.QueryAMEQMESearch {
		label = fmt.Sprintf("%s doctors for %s", examinerDisplay(searchspec.ExaminerKind(realQuestion)), subject)
	}
	return Outcome{
		Evaluation: EvalInsufficientData,
		Reasoning: fmt.Sprintf("Only found %d relevant messages about %s. Need at least 3 messages to make a reliable evaluation.",
			relevant, label),
	}
}

func errorOutcome(err error) Outcome {
	return Outcome{Evaluation: EvalError, Reasoning: fmt.Sprintf("Error during synthesis: %v", err)}
}

func subjectPrompt(kind searchspec.QueryType, role, subject string, msgs []RelevantMessage) string {
	labels := `"good", "mixed", or "bad"`
	scale := "how attorneys' experiences with them went overall"
	if kind == searchspec.QueryDefenseAttorneyEval {
		labels = `"easy_to_deal_with", "moderate", or "difficult_to_deal_with"`
		scale = "how they are to deal with across negotiation, discovery, and settlement"
	}
	return fmt.Sprintf(`Synthesize what California workers' compensation attorneys say about this %s.

%s: %q

MESSAGES (%d relevant):
%s

Your task:
1. Weigh the positive and negative experiences described, ignoring anything about a different %s
2. Produce an overall score from 0 (terrible) to 100 (excellent) reflecting %s
3. Label the result as %s
4. Summarize the consensus in a few sentences, noting real disagreement where it exists

Respond in JSON format:
{
    "score": 0-100,
    "evaluation": %s,
    "reasoning": "Summary of the consensus (3-5 sentences)"
}`, role, strings.ToUpper(role), subject, len(msgs), messageBlock(msgs), role, scale, labels, labels)
}

func rankingPrompt(display, specialty string, msgs []RelevantMessage) string {
	return fmt.Sprintf(`Rank the %s doctors that California workers' compensation attorneys recommend in these listserv messages.

SPECIALTY: %s

MESSAGES (%d relevant):
%s

Your task:
1. Identify every %s doctor named in the messages
2. Count the positive and negative mentions for each
3. Pull one or two short representative quotes per doctor
4. Note any warnings attorneys raised about a doctor

Respond in JSON format:
{
    "doctors": [
        {
            "name": "Dr. ...",
            "positive_mentions": 0,
            "negative_mentions": 0,
            "net_score": 0,
            "sample_quotes": ["..."],
            "warnings": ["..."]
        }
    ],
    "total_mentions": 0,
    "reasoning": "Brief summary of the overall picture (2-3 sentences)"
}`, display, specialty, len(msgs), messageBlock(msgs), display)
}

// messageBlock renders the relevant messages for a synthesis prompt.
func messageBlock(msgs []RelevantMessage) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Message %d ---\nFrom: %s\nSubject: %s\n%s",
			i+1, m.FromName, m.Subject, truncateBody(m.Body))
	}
	return b.String()
}

// formatRanking renders a Ranking as the text persisted for the search.
// The reasoning column is plain text, so the structure is flattened into
// a readable numbered list.
func formatRanking(display, specialty string, r Ranking, msgCount int) string {
	var b strings.Builder
	if len(r.Doctors) == 0 {
		fmt.Fprintf(&b, "No specific %s doctors were named in the relevant messages.", display)
	} else {
		fmt.Fprintf(&b, "Top %s doctors for %s:\n", display, specialty)
		for i, d := range r.Doctors {
			fmt.Fprintf(&b, "\n%d. %s: %d positive, %d negative (net %+d)",
				i+1, d.Name, d.PositiveMentions, d.NegativeMentions, d.NetScore)
			for _, q := range d.SampleQuotes {
				fmt.Fprintf(&b, "\n   \"%s\"", q)
			}
			for _, w := range d.Warnings {
				fmt.Fprintf(&b, "\n   Warning: %s", w)
			}
		}
	}
	if r.Reasoning != "" {
		fmt.Fprintf(&b, "\n\n%s", r.Reasoning)
	}
	fmt.Fprintf(&b, "\n\nBased on %d mentions across %d relevant messages.", r.TotalMentions, msgCount)
	return b.String()
}

func roleNoun(kind searchspec.QueryType) string {
	switch kind {
	case searchspec.QueryJudgeEval:
		return "judge"
	case searchspec.QueryAdjusterEval:
		return "adjuster"
	case searchspec.QueryDefenseAttorneyEval:
		return "defense attorney"
	case searchspec.QueryInsuranceCompanyEval:
		return "insurance company"
	default:
		return "doctor"
	}
}

func examinerDisplay(examiner string) string {
	if examiner == "Both" {
		return "AME or QME"
	}
	return examiner
}

// normalizeLabel forces a model-emitted evaluation label into the
// allowed set for the mode. Defense attorney evaluations use the
// deal-with scale and map the generic labels onto it.
func normalizeLabel(kind searchspec.QueryType, label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if kind == searchspec.QueryDefenseAttorneyEval {
		switch l {
		case EvalEasy, EvalModerate, EvalDifficult, EvalInsufficientData:
			return l
		case EvalGood:
			return EvalEasy
		case EvalMixed:
			return EvalModerate
		case EvalBad:
			return EvalDifficult
		default:
			return EvalModerate
		}
	}
	switch l {
	case EvalGood, EvalMixed, EvalBad, EvalInsufficientData:
		return l
	default:
		return EvalMixed
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func truncateBody(body string) string {
	if len(body) <= maxBodyChars {
		return body
	}
	cut := maxBodyChars
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + truncationMarker
}
