// Package planner translates a REAL question into the SearchSpec the
// retriever will submit upstream. General questions go through an LLM;
// evaluation modes that target a named subject use deterministic rules so
// the same subject always produces the same search.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"caaasearch/internal/llm"
	"caaasearch/internal/logging"
	"caaasearch/internal/searchspec"
)

// Planner builds SearchSpecs from REAL questions.
type Planner struct {
	client llm.Client
	now    func() time.Time
}

// New returns a Planner backed by the given model client.
func New(client llm.Client) *Planner {
	return &Planner{client: client, now: time.Now}
}

const plannerSystem = "You are an expert at California workers' compensation law and legal research. Your job is to translate plain English queries into optimized search parameters for a legal listserv database."

const plannerPromptFormat = `The user wants to search a California workers' compensation legal listserv.

TODAY'S DATE: %s

USER QUERY: %q

Your task: Analyze this query and determine the BEST search parameters to find relevant messages.

Available search fields:
1. keyword - Simple keyword search (searches subject + body)
2. keywords_all - Must contain ALL these keywords (comma-separated: "word1, word2, word3")
3. keywords_phrase - Exact phrase match (e.g., "permanent disability rating")
4. keywords_any - Must contain at least ONE of these (comma-separated: "term1, term2, term3")
5. keywords_exclude - Must NOT contain these keywords (comma-separated)
6. listserv - Which list: "all", "lawnet", "lavaaa", "lamaaa", "scaaa"
   - lawnet: Applicant attorneys (workers' side)
   - lavaaa: Defense attorneys (employer/insurance side)
7. date_from - Start date (YYYY-MM-DD)
8. date_to - End date (YYYY-MM-DD)
9. search_in - "subject_and_body" or "subject_only"
10. posted_by - Full name of the listserv member whose posts the user wants (messages BY a person)
11. author_first_name - First name of a doctor/expert discussed in messages
12. author_last_name - Last name of a doctor/expert discussed in messages
13. attachment_filter - "all", "with_attachments", or "without_attachments"

CRITICAL FORMATTING RULES - MUST FOLLOW:
- For keywords_all, keywords_any, keywords_exclude: ALWAYS USE COMMAS to separate each term
- CORRECT: "expedited, hearing, IMR, appeal"
- WRONG: "expedited hearing IMR appeal" (NO SPACES WITHOUT COMMAS)
- WRONG: "expedited vs regular hearing" (NO connecting words like "vs", "or", "and")
- Each term should be a single word or short phrase, separated by commas
- If you want "IMR appeal" as one term, write it as one: "IMR appeal, expedited, hearing"
- ALWAYS put commas between different concepts

Guidelines:
- Prefer keywords_any (broad) over keywords_all (narrow); use keywords_all only when multiple concepts must appear together
- Use keywords_any for synonyms or related terms (comma-separated!)
- NEVER use keywords_phrase unless the user asks for an exact phrase
- Temporal cues ("recent", "latest", "new") -> set date_from to TODAY minus 6 months, leave date_to null. Otherwise DO NOT use date filters - searches work better without date restrictions
- If the user wants messages BY a person, use posted_by with the full name. If the query names a doctor or expert being discussed, use author_first_name/author_last_name. When it is unclear, prefer broad content keywords over author fields
- Topics the user wants excluded go in keywords_exclude
- Choose listserv "lawnet" when context suggests the applicant/worker side, "lavaaa" for the defense/employer side
- Think about legal synonyms and abbreviations (PD = permanent disability, TD = temporary disability, etc.)

Respond in JSON format:
{
  "reasoning": "Brief explanation of search strategy",
  "parameters": {
    "keyword": "string or null",
    "keywords_all": "comma-separated terms or null (EXAMPLE: \"IMR, appeal, decision\")",
    "keywords_phrase": "exact phrase or null (EXAMPLE: \"permanent disability rating\")",
    "keywords_any": "comma-separated terms or null (EXAMPLE: \"expedited, regular, hearing\")",
    "keywords_exclude": "comma-separated terms or null",
    "listserv": "all/lawnet/lavaaa/lamaaa/scaaa",
    "date_from": "YYYY-MM-DD or null",
    "date_to": "YYYY-MM-DD or null",
    "search_in": "subject_and_body or subject_only",
    "posted_by": "full name or null",
    "author_first_name": "string or null",
    "author_last_name": "string or null",
    "attachment_filter": "all/with_attachments/without_attachments"
  }
}

REMEMBER: Always use commas between different keywords in keywords_all, keywords_any, and keywords_exclude!`

// flexString tolerates the model returning null, a string, or an array of
// strings where a comma-separated string was asked for.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = flexString(strings.Join(list, ", "))
		return nil
	}
	return fmt.Errorf("unexpected value %s", string(data))
}

type planParams struct {
	Keyword          flexString `json:"keyword"`
	KeywordsAll      flexString `json:"keywords_all"`
	KeywordsPhrase   flexString `json:"keywords_phrase"`
	KeywordsAny      flexString `json:"keywords_any"`
	KeywordsExclude  flexString `json:"keywords_exclude"`
	Listserv         flexString `json:"listserv"`
	DateFrom         flexString `json:"date_from"`
	DateTo           flexString `json:"date_to"`
	SearchIn         flexString `json:"search_in"`
	PostedBy         flexString `json:"posted_by"`
	AuthorFirstName  flexString `json:"author_first_name"`
	AuthorLastName   flexString `json:"author_last_name"`
	AttachmentFilter flexString `json:"attachment_filter"`
}

type planResponse struct {
	Reasoning  string     `json:"reasoning"`
	Parameters planParams `json:"parameters"`
}

// Plan produces the SearchSpec for a (query type, REAL question) pair along
// with the model's stated strategy. Planning never fails outright: any model
// or parse error falls back to a simple keyword search on the question text.
func (p *Planner) Plan(ctx context.Context, queryType searchspec.QueryType, realQuestion string) (searchspec.SearchSpec, string) {
	timer := logging.StartTimer(logging.CategoryPlanner, "Plan")
	defer timer.Stop()

	subject := p.subjectFor(queryType, realQuestion)

	switch queryType {
	case searchspec.QueryJudgeEval:
		if spec, reasoning, ok := JudgeSpec(subject); ok {
			return spec, reasoning
		}
		return p.fallback(realQuestion, "judge name missing")
	case searchspec.QueryDefenseAttorneyEval:
		if spec, reasoning, ok := DefenseAttorneySpec(subject); ok {
			return spec, reasoning
		}
		return p.fallback(realQuestion, "attorney name missing")
	case searchspec.QueryInsuranceCompanyEval:
		return p.insuranceSpec(ctx, subject)
	case searchspec.QueryDoctorEval:
		return p.general(ctx, fmt.Sprintf("Find all messages mentioning the doctor %s", subject))
	case searchspec.QueryAdjusterEval:
		return p.general(ctx, fmt.Sprintf("Find all messages mentioning the adjuster %s", subject))
	case searchspec.QueryAMEQMESearch:
		examiner := searchspec.ExaminerKind(realQuestion)
		if examiner == "Both" {
			examiner = "AME or QME"
		}
		return p.general(ctx, fmt.Sprintf("Find messages recommending %s doctors with specialty: %s", examiner, subject))
	default:
		return p.general(ctx, realQuestion)
	}
}

// subjectFor pulls the named subject out of an evaluation question. When the
// question does not carry the expected prefix the whole text stands in.
func (p *Planner) subjectFor(queryType searchspec.QueryType, realQuestion string) string {
	if kind, subject := searchspec.QuestionKind(realQuestion); kind == queryType && subject != "" {
		return subject
	}
	return strings.TrimSpace(realQuestion)
}

func (p *Planner) general(ctx context.Context, question string) (searchspec.SearchSpec, string) {
	if p.client == nil {
		return p.fallback(question, "no model configured")
	}

	prompt := fmt.Sprintf(plannerPromptFormat, p.now().Format("2006-01-02"), question)
	raw, err := p.client.CompleteWithOptions(ctx, plannerSystem, prompt, llm.Options{
		Temperature: 0.3,
		MaxTokens:   800,
	})
	if err != nil {
		return p.fallback(question, err.Error())
	}

	var resp planResponse
	if err := llm.Decode(raw, &resp); err != nil {
		return p.fallback(question, err.Error())
	}

	spec := p.toSpec(resp.Parameters, question)
	if err := spec.Validate(); err != nil {
		logging.PlannerWarn("Planned spec failed validation (%v), using keyword fallback", err)
		return p.fallback(question, err.Error())
	}

	logging.Planner("Planned %s", spec.String())
	return spec, strings.TrimSpace(resp.Reasoning)
}

func (p *Planner) toSpec(params planParams, question string) searchspec.SearchSpec {
	spec := searchspec.SearchSpec{
		Keyword:          string(params.Keyword),
		KeywordsAll:      string(params.KeywordsAll),
		KeywordsPhrase:   string(params.KeywordsPhrase),
		KeywordsAny:      string(params.KeywordsAny),
		KeywordsExclude:  string(params.KeywordsExclude),
		PostedBy:         string(params.PostedBy),
		AuthorFirstName:  string(params.AuthorFirstName),
		AuthorLastName:   string(params.AuthorLastName),
		DateFrom:         validDate(string(params.DateFrom)),
		DateTo:           validDate(string(params.DateTo)),
		Listserv:         string(params.Listserv),
		SearchIn:         string(params.SearchIn),
		AttachmentFilter: string(params.AttachmentFilter),
	}

	switch spec.Listserv {
	case searchspec.ListservLawnet, searchspec.ListservLavaaa,
		searchspec.ListservLamaaa, searchspec.ListservScaaa:
	default:
		spec.Listserv = searchspec.ListservAll
	}
	if spec.SearchIn != searchspec.SearchSubjectOnly {
		spec.SearchIn = searchspec.SearchSubjectAndBody
	}
	switch spec.AttachmentFilter {
	case searchspec.AttachmentsWith, searchspec.AttachmentsWithout:
	default:
		spec.AttachmentFilter = searchspec.AttachmentsAll
	}

	spec = spec.Normalize()
	spec = applyTemporalCue(spec, question, p.now())
	return spec
}

var temporalCueRe = regexp.MustCompile(`(?i)\b(recent|recently|latest|new)\b`)

// applyTemporalCue backstops the prompt heuristic: a question asking for
// recent traffic gets a six month window even when the model left the dates
// empty.
func applyTemporalCue(spec searchspec.SearchSpec, question string, now time.Time) searchspec.SearchSpec {
	if spec.DateFrom != "" || !temporalCueRe.MatchString(question) {
		return spec
	}
	spec.DateFrom = now.AddDate(0, -6, 0).Format("2006-01-02")
	return spec
}

func validDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		logging.PlannerWarn("Dropping unparseable date %q", s)
		return ""
	}
	return s
}

func (p *Planner) fallback(question, cause string) (searchspec.SearchSpec, string) {
	logging.PlannerWarn("Planning failed (%s), falling back to simple keyword search", cause)
	spec := searchspec.SearchSpec{Keyword: strings.TrimSpace(question)}.Normalize()
	return spec, "Fallback: simple keyword search on the question text"
}
