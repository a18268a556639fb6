// Package score decides, one message at a time, whether a retrieved
// listserv post actually answers the question the user asked. The raw
// keywords that pulled a message out of the archive are often much
// broader than the user's intent, so every verdict is judged against
// the real question, not the keywords.
//
// Scoring degrades instead of failing: a model error or an unparseable
// reply produces a not-relevant verdict with zero confidence, and the
// search carries on.
package score

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"caaasearch/internal/llm"
	"caaasearch/internal/logging"
	"caaasearch/internal/searchspec"
)

// maxBodyChars caps how much of a message body is shown to the model.
// Listserv posts trail off into quoted history and signatures; the
// substance is almost always up front.
const maxBodyChars = 2000

const truncationMarker = "... [truncated]"

const systemPrompt = "You are an expert legal assistant analyzing workers' compensation case law and listserv messages. Your job is to determine if a message is genuinely relevant to a user's search query."

// scoreOptions pins the sampling behavior for relevance verdicts. Low
// temperature keeps verdicts stable across reruns of the same search.
var scoreOptions = llm.Options{Temperature: 0.3, MaxTokens: 500}

// Message is the slice of a stored message the scorer needs.
type Message struct {
	Subject  string
	FromName string
	Body     string
}

// Verdict is the model's relevance decision for one message.
type Verdict struct {
	IsRelevant bool    `json:"is_relevant"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Result is a verdict plus the accounting needed to persist it.
type Result struct {
	Verdict
	Model      string
	TokensUsed int
	CostUSD    float64
}

// Scorer turns (real question, message) pairs into relevance verdicts.
type Scorer struct {
	client llm.Client
}

// New returns a Scorer backed by the given model client. A nil client
// is tolerated; every verdict then degrades to not-relevant.
func New(client llm.Client) *Scorer {
	return &Scorer{client: client}
}

// Score judges one message against the real question. It never returns
// an error: model failures and garbled replies are absorbed into a
// not-relevant verdict so one bad call cannot sink a search.
func (s *Scorer) Score(ctx context.Context, msg Message, realQuestion string) Result {
	if s.client == nil {
		logging.ScoreWarn("No model client configured, marking message not relevant")
		return Result{Verdict: Verdict{Reasoning: "Error analyzing message: no model client configured"}}
	}

	prompt := buildPrompt(msg, realQuestion)
	before := s.client.Usage().TotalTokens

	text, err := s.client.CompleteWithOptions(ctx, systemPrompt, prompt, scoreOptions)

	res := Result{Model: s.client.Model()}
	res.TokensUsed = s.client.Usage().TotalTokens - before
	res.CostUSD = llm.EstimateCost(res.Model, res.TokensUsed)

	if err != nil {
		logging.ScoreWarn("Model call failed for %q: %v", msg.Subject, err)
		res.Verdict = Verdict{Reasoning: fmt.Sprintf("Error analyzing message: %v", err)}
		return res
	}

	var v Verdict
	if err := llm.Decode(text, &v); err != nil {
		logging.ScoreWarn("Unparseable verdict for %q: %v", msg.Subject, err)
		res.Verdict = Verdict{Reasoning: "Failed to parse AI response"}
		return res
	}

	if v.Confidence < 0 {
		v.Confidence = 0
	} else if v.Confidence > 1 {
		v.Confidence = 1
	}
	if v.Reasoning == "" {
		v.Reasoning = "No reasoning provided"
	}
	res.Verdict = v

	logging.ScoreDebug("Scored %q: relevant=%v confidence=%.2f", msg.Subject, v.IsRelevant, v.Confidence)
	return res
}

// buildPrompt picks the prompt family from the real question's shape.
// Evaluation questions get a prompt about judging a named person or
// company; examiner searches get a recommendation-hunting prompt;
// everything else gets the general relevance prompt.
func buildPrompt(msg Message, realQuestion string) string {
	kind, subject := searchspec.QuestionKind(realQuestion)
	switch kind {
	case searchspec.QueryDoctorEval:
		return evaluationPrompt(msg, "doctor", subject,
			"their medical-legal reports, exam conduct, ratings, credibility with judges, or how injured workers fared with them")
	case searchspec.QueryJudgeEval:
		return evaluationPrompt(msg, "judge", subject,
			"their rulings, temperament, procedural preferences, how they run hearings, or outcomes attorneys had before them")
	case searchspec.QueryAdjusterEval:
		return evaluationPrompt(msg, "adjuster", subject,
			"their responsiveness, authorization patterns, settlement behavior, or how they handle claims")
	case searchspec.QueryDefenseAttorneyEval:
		return evaluationPrompt(msg, "defense attorney", subject,
			"their negotiation style, litigation tactics, reasonableness in settlement, or conduct in depositions")
	case searchspec.QueryInsuranceCompanyEval:
		return evaluationPrompt(msg, "insurance company", subject,
			"their claims handling, authorization and denial patterns, settlement practices, or litigation posture")
	case searchspec.QueryAMEQMESearch:
		return examinerPrompt(msg, searchspec.ExaminerKind(realQuestion), subject)
	default:
		return generalPrompt(msg, realQuestion)
	}
}

func generalPrompt(msg Message, realQuestion string) string {
	return fmt.Sprintf(`Analyze if this listserv message is relevant to what the user is really looking for.

REAL QUESTION: %q

MESSAGE:
From: %s
Subject: %s
Body: %s

Your task:
1. Determine if this message genuinely helps answer the REAL QUESTION
2. Consider:
   - Does it directly discuss what the user asked about?
   - Does it contain substantive information (not just a passing mention)?
   - Would it be useful to someone asking this question?
3. Provide a confidence score (0.0 to 1.0)
4. Explain your reasoning briefly

SPECIAL CASE: If the REAL QUESTION asks to find ALL messages FROM a specific person, then any message actually written by that person is relevant with confidence 0.95, and any message clearly discussing or mentioning that person is relevant with confidence 0.85, regardless of how substantive the content is.

IMPORTANT: Your reasoning must address the REAL QUESTION above. Never base it on the raw search keywords that happened to retrieve this message.

Respond in JSON format:
{
    "is_relevant": true/false,
    "confidence": 0.0-1.0,
    "reasoning": "Brief explanation (1-2 sentences)"
}`, realQuestion, msg.FromName, msg.Subject, truncateBody(msg.Body))
}

func evaluationPrompt(msg Message, role, subject, criteria string) string {
	return fmt.Sprintf(`Analyze if this listserv message helps evaluate a %s for a California workers' compensation practice.

%s BEING EVALUATED: %q

MESSAGE:
From: %s
Subject: %s
Body: %s

Your task:
1. Determine if this message contains substantive information about this %s: %s
2. The message is relevant only if it is actually about this %s, not someone else with a similar name
3. Provide a confidence score (0.0 to 1.0)
4. Explain your reasoning briefly

IMPORTANT: Your reasoning must address whether the message helps evaluate %q. Never base it on the raw search keywords that happened to retrieve this message.

Respond in JSON format:
{
    "is_relevant": true/false,
    "confidence": 0.0-1.0,
    "reasoning": "Brief explanation (1-2 sentences)"
}`, role, strings.ToUpper(role), subject, msg.FromName, msg.Subject, truncateBody(msg.Body),
		role, criteria, role, subject)
}

func examinerPrompt(msg Message, examiner, specialty string) string {
	if examiner == "Both" {
		examiner = "AME or QME"
	}
	return fmt.Sprintf(`Analyze if this listserv message helps identify good %s doctors.

LOOKING FOR: %s doctors, specialty: %s

MESSAGE:
From: %s
Subject: %s
Body: %s

Your task:
1. Determine if this message recommends, praises, criticizes, or substantively discusses one or more named %s doctors, ideally in this specialty
2. General talk about the %s process with no named doctors is not relevant
3. Provide a confidence score (0.0 to 1.0)
4. Explain your reasoning briefly

IMPORTANT: Your reasoning must address whether the message helps find good %s doctors for this specialty. Never base it on the raw search keywords that happened to retrieve this message.

Respond in JSON format:
{
    "is_relevant": true/false,
    "confidence": 0.0-1.0,
    "reasoning": "Brief explanation (1-2 sentences)"
}`, examiner, examiner, specialty, msg.FromName, msg.Subject, truncateBody(msg.Body),
		examiner, examiner, examiner)
}

// truncateBody cuts a body down to maxBodyChars, backing up to a rune
// boundary so a multibyte character is never split.
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
