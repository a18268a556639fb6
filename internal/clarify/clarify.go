// Package clarify decides whether a typed search intent carries enough
// information to plan a useful search, and produces the REAL question the
// rest of the pipeline scores against.
//
// The check is a single LLM call. It fails open: if the model is
// unreachable or returns garbage, the intent is treated as specific so the
// user is never blocked on a clarity gate.
package clarify

import (
	"context"
	"fmt"
	"strings"

	"caaasearch/internal/llm"
	"caaasearch/internal/logging"
	"caaasearch/internal/searchspec"
)

// Result is the clarifier's verdict on a typed intent.
type Result struct {
	Vague            bool
	FollowUpQuestion string
}

// Clarifier runs the vagueness check.
type Clarifier struct {
	client llm.Client
}

// New returns a Clarifier backed by the given model client.
func New(client llm.Client) *Clarifier {
	return &Clarifier{client: client}
}

const vaguenessPrompt = `Analyze this query and determine if it has enough information to search effectively.

Query: %q

A query is VAGUE if:
1. Multiple interpretations exist that would lead to VERY DIFFERENT searches
2. Key information is missing that would significantly change what we search for
3. The query is so broad that any search would return too many irrelevant results

A query is SPECIFIC if:
1. We can confidently determine what to search for
2. The search intent is unambiguous (or ambiguity doesn't matter much)
3. We have enough information to create targeted search parameters

CRITICAL DISTINCTIONS TO CHECK:
- Person name WITHOUT context -> VAGUE (could mean BY them or ABOUT them)
  - "Chris Johnson" -> VAGUE
  - "messages BY Chris Johnson" -> SPECIFIC
  - "messages MENTIONING Chris Johnson" -> SPECIFIC

- Topic without WHAT aspect -> Often VAGUE
  - Just a case name -> VAGUE (which aspect?)
  - "Case X's impact on Y" -> SPECIFIC (clear aspect)

- Overly broad -> May be VAGUE
  - "recent changes" -> VAGUE (changes to what?)
  - "recent changes to settlement procedures" -> SPECIFIC

Standard workers' compensation abbreviations (QME, AME, IMR, PD, TD, LC, WCAB, SIBTF, MPN) are NOT vague on their own. When in doubt, treat the query as SPECIFIC.

When VAGUE, craft ONE clarifying question, written professionally as one attorney to another, that:
1. Identifies the ambiguity or missing info
2. Offers 2-3 specific alternatives
3. Helps narrow the search effectively

Return JSON:
{
  "is_vague": true/false,
  "follow_up_question": "clarifying question" OR null
}`

type vaguenessVerdict struct {
	IsVague          bool   `json:"is_vague"`
	FollowUpQuestion string `json:"follow_up_question"`
}

// Check decides whether the intent needs one clarifying round. Any model or
// parse failure is absorbed and reported as specific.
func (c *Clarifier) Check(ctx context.Context, intent string) Result {
	timer := logging.StartTimer(logging.CategoryClarify, "Check")
	defer timer.Stop()

	if c.client == nil {
		return Result{}
	}

	prompt := fmt.Sprintf(vaguenessPrompt, intent)
	raw, err := c.client.CompleteWithOptions(ctx, "", prompt, llm.Options{
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		logging.ClarifyWarn("Vagueness check unavailable, proceeding as specific: %v", err)
		return Result{}
	}

	var verdict vaguenessVerdict
	if err := llm.Decode(raw, &verdict); err != nil {
		logging.ClarifyWarn("Vagueness check returned unparseable JSON, proceeding as specific: %v", err)
		return Result{}
	}

	if !verdict.IsVague {
		logging.Clarify("Intent is specific: %q", intent)
		return Result{}
	}

	question := strings.TrimSpace(verdict.FollowUpQuestion)
	if question == "" {
		// Vague with no question to ask is useless; proceed.
		logging.ClarifyWarn("Model flagged intent vague but offered no follow-up, proceeding")
		return Result{}
	}

	logging.Clarify("Intent is vague, follow-up: %q", question)
	return Result{Vague: true, FollowUpQuestion: question}
}

// Refine folds the user's answer to a follow-up question back into the
// original intent. Only one round is ever used, so the result is final.
func Refine(original, answer string) string {
	return fmt.Sprintf("%s. Specifically: %s", strings.TrimSpace(original), strings.TrimSpace(answer))
}

// AutoIntent builds a REAL question from a hand-filled form when the user
// never typed one. Author-only criteria get an explicit everything-from-this-
// person framing so the scorer does not demand topical relevance.
func AutoIntent(spec searchspec.SearchSpec) string {
	var intentParts []string
	hasContentCriteria := false

	if spec.KeywordsAll != "" {
		intentParts = append(intentParts, fmt.Sprintf("messages containing all: %s", spec.KeywordsAll))
		hasContentCriteria = true
	}
	if spec.KeywordsPhrase != "" {
		intentParts = append(intentParts, fmt.Sprintf("exact phrase: %s", spec.KeywordsPhrase))
		hasContentCriteria = true
	}
	if spec.KeywordsAny != "" {
		intentParts = append(intentParts, fmt.Sprintf("containing: %s", spec.KeywordsAny))
		hasContentCriteria = true
	}

	var authorCriteria []string
	if spec.AuthorLastName != "" {
		authorCriteria = append(authorCriteria, fmt.Sprintf("author: %s", spec.AuthorLastName))
	}
	if spec.PostedBy != "" {
		authorCriteria = append(authorCriteria, fmt.Sprintf("posted by: %s", spec.PostedBy))
	}

	switch {
	case len(authorCriteria) > 0 && !hasContentCriteria:
		return fmt.Sprintf("Find ALL messages from %s. Any message from this person is relevant regardless of content.",
			strings.Join(authorCriteria, ", "))
	case len(intentParts) > 0 || len(authorCriteria) > 0:
		return "Looking for " + strings.Join(append(intentParts, authorCriteria...), ", ")
	default:
		return "all messages matching search criteria"
	}
}
