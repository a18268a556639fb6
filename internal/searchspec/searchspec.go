// Package searchspec defines the immutable search parameter value type and
// its mapping to the upstream archive's search form. A SearchSpec is produced
// by the planner, persisted with the search row, and consumed by the
// retriever; it is never mutated after creation.
package searchspec

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// QueryType classifies what a search is for. Evaluation types change the
// scoring prompts and enable the synthesis stage.
type QueryType string

const (
	QueryGeneral              QueryType = "general"
	QueryDoctorEval           QueryType = "doctor_eval"
	QueryJudgeEval            QueryType = "judge_eval"
	QueryAdjusterEval         QueryType = "adjuster_eval"
	QueryDefenseAttorneyEval  QueryType = "defense_attorney_eval"
	QueryInsuranceCompanyEval QueryType = "insurance_company_eval"
	QueryAMEQMESearch         QueryType = "ame_qme_search"
)

// Valid reports whether t is a known query type.
func (t QueryType) Valid() bool {
	switch t {
	case QueryGeneral, QueryDoctorEval, QueryJudgeEval, QueryAdjusterEval,
		QueryDefenseAttorneyEval, QueryInsuranceCompanyEval, QueryAMEQMESearch:
		return true
	}
	return false
}

// IsEvaluation reports whether t evaluates a single named subject.
func (t QueryType) IsEvaluation() bool {
	switch t {
	case QueryDoctorEval, QueryJudgeEval, QueryAdjusterEval,
		QueryDefenseAttorneyEval, QueryInsuranceCompanyEval:
		return true
	}
	return false
}

// Synthesizes reports whether a completed search of this type gets a
// synthesis verdict (all non-general types).
func (t QueryType) Synthesizes() bool {
	return t != QueryGeneral && t.Valid()
}

// Status is the lifecycle state of a search.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether a search in this status never transitions again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Listserv values accepted by the upstream form.
const (
	ListservAll    = "all"
	ListservLawnet = "lawnet"
	ListservLavaaa = "lavaaa"
	ListservLamaaa = "lamaaa"
	ListservScaaa  = "scaaa"
)

// SearchIn values.
const (
	SearchSubjectAndBody = "subject_and_body"
	SearchSubjectOnly    = "subject_only"
)

// Attachment filter values.
const (
	AttachmentsAll     = "all"
	AttachmentsWith    = "with_attachments"
	AttachmentsWithout = "without_attachments"
)

// Default caps.
const (
	DefaultMaxMessages = 100
	DefaultMaxPages    = 10
)

// isoDate is the storage layout for spec dates; the upstream form wants
// MM/DD/YYYY instead.
const (
	isoDate  = "2006-01-02"
	formDate = "01/02/2006"
)

// SearchSpec holds every retrieval parameter for one search. All fields are
// optional; the zero value means "search everything" with default caps.
// Multi-term keyword fields are comma-delimited strings.
type SearchSpec struct {
	// Simple keyword search (subject + body), the upstream's basic input.
	Keyword string `json:"keyword,omitempty"`

	// Advanced keyword families.
	KeywordsAll     string `json:"keywords_all,omitempty"`
	KeywordsPhrase  string `json:"keywords_phrase,omitempty"`
	KeywordsAny     string `json:"keywords_any,omitempty"`
	KeywordsExclude string `json:"keywords_exclude,omitempty"`

	// Author filters. posted_by matches senders; the author_* pair feeds the
	// archive's expert/witness name fields.
	AuthorFirstName string `json:"author_first_name,omitempty"`
	AuthorLastName  string `json:"author_last_name,omitempty"`
	PostedBy        string `json:"posted_by,omitempty"`

	// Inclusive date range, ISO YYYY-MM-DD.
	DateFrom string `json:"date_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `json:"date_to,omitempty" validate:"omitempty,datetime=2006-01-02"`

	// Scope.
	Listserv string `json:"listserv,omitempty" validate:"omitempty,oneof=all lawnet lavaaa lamaaa scaaa"`
	SearchIn string `json:"search_in,omitempty" validate:"omitempty,oneof=subject_and_body subject_only"`

	AttachmentFilter string `json:"attachment_filter,omitempty" validate:"omitempty,oneof=all with_attachments without_attachments"`

	// Retrieval caps, not sent to the upstream form.
	MaxMessages int `json:"max_messages,omitempty" validate:"omitempty,min=1"`
	MaxPages    int `json:"max_pages,omitempty" validate:"omitempty,min=1"`
}

var validate = validator.New()

// Normalize returns a copy with canonical keyword lists, default scope
// values, and default caps applied. The receiver is not modified.
func (s SearchSpec) Normalize() SearchSpec {
	s.Keyword = strings.TrimSpace(s.Keyword)
	s.KeywordsAll = CanonicalizeList(s.KeywordsAll)
	s.KeywordsAny = CanonicalizeList(s.KeywordsAny)
	s.KeywordsExclude = CanonicalizeList(s.KeywordsExclude)
	s.KeywordsPhrase = strings.TrimSpace(s.KeywordsPhrase)
	s.AuthorFirstName = strings.TrimSpace(s.AuthorFirstName)
	s.AuthorLastName = strings.TrimSpace(s.AuthorLastName)
	s.PostedBy = strings.TrimSpace(s.PostedBy)

	if s.Listserv == "" {
		s.Listserv = ListservAll
	}
	if s.SearchIn == "" {
		s.SearchIn = SearchSubjectAndBody
	}
	if s.AttachmentFilter == "" {
		s.AttachmentFilter = AttachmentsAll
	}
	if s.MaxMessages <= 0 {
		s.MaxMessages = DefaultMaxMessages
	}
	if s.MaxPages <= 0 {
		s.MaxPages = DefaultMaxPages
	}
	return s
}

// Validate checks field values after normalization.
func (s SearchSpec) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid search spec: %w", err)
	}
	if s.DateFrom != "" && s.DateTo != "" {
		from, _ := time.Parse(isoDate, s.DateFrom)
		to, _ := time.Parse(isoDate, s.DateTo)
		if to.Before(from) {
			return fmt.Errorf("invalid search spec: date_to %s before date_from %s", s.DateTo, s.DateFrom)
		}
	}
	return nil
}

// IsAuthorOnly reports whether the spec filters purely by author identity,
// with no content keywords and no date range. Such searches get the
// "any message from this person is relevant" intent.
func (s SearchSpec) IsAuthorOnly() bool {
	hasAuthor := s.PostedBy != "" || s.AuthorFirstName != "" || s.AuthorLastName != ""
	hasContent := s.Keyword != "" || s.KeywordsAll != "" || s.KeywordsPhrase != "" ||
		s.KeywordsAny != "" || s.KeywordsExclude != ""
	return hasAuthor && !hasContent && s.DateFrom == "" && s.DateTo == ""
}

// AuthorName returns the best display name for an author-filtered spec.
func (s SearchSpec) AuthorName() string {
	if s.PostedBy != "" {
		return s.PostedBy
	}
	return strings.TrimSpace(s.AuthorFirstName + " " + s.AuthorLastName)
}

// ToUpstreamForm produces the named form fields for the upstream search
// page. Only non-default fields are emitted. The simple keyword rides in
// s_fname; when an expert last name is present, s_fname carries the expert
// first name instead.
func (s SearchSpec) ToUpstreamForm() map[string]string {
	form := make(map[string]string)

	if s.Keyword != "" {
		form["s_fname"] = s.Keyword
	}

	if s.AuthorFirstName != "" {
		form["s_fname"] = s.AuthorFirstName
	}
	if s.AuthorLastName != "" {
		form["s_lname"] = s.AuthorLastName
	}
	if s.PostedBy != "" {
		form["s_postedby"] = s.PostedBy
	}

	if s.DateFrom != "" {
		if d, err := time.Parse(isoDate, s.DateFrom); err == nil {
			form["s_postdatefrom"] = d.Format(formDate)
		}
	}
	if s.DateTo != "" {
		if d, err := time.Parse(isoDate, s.DateTo); err == nil {
			form["s_postdateto"] = d.Format(formDate)
		}
	}

	if s.KeywordsAll != "" {
		form["s_key_all"] = s.KeywordsAll
	}
	if s.KeywordsPhrase != "" {
		form["s_key_phrase"] = s.KeywordsPhrase
	}
	if s.KeywordsAny != "" {
		form["s_key_one"] = s.KeywordsAny
	}
	if s.KeywordsExclude != "" {
		form["s_key_x"] = s.KeywordsExclude
	}

	if s.Listserv != "" && s.Listserv != ListservAll {
		form["s_list"] = s.Listserv
	}

	if s.SearchIn == SearchSubjectOnly {
		form["s_cat"] = "1"
	}

	switch s.AttachmentFilter {
	case AttachmentsWith:
		form["s_attachment"] = "1"
	case AttachmentsWithout:
		form["s_attachment"] = "0"
	}

	return form
}

// FromUpstreamForm reconstructs a SearchSpec from a stored form-field map.
// The s_fname field is ambiguous by design: with s_lname present it is the
// expert first name, otherwise the simple keyword. Caps are not part of the
// form and come back as defaults.
func FromUpstreamForm(form map[string]string) SearchSpec {
	s := SearchSpec{
		KeywordsAll:     form["s_key_all"],
		KeywordsPhrase:  form["s_key_phrase"],
		KeywordsAny:     form["s_key_one"],
		KeywordsExclude: form["s_key_x"],
		PostedBy:        form["s_postedby"],
		AuthorLastName:  form["s_lname"],
	}

	if fname := form["s_fname"]; fname != "" {
		if s.AuthorLastName != "" {
			s.AuthorFirstName = fname
		} else {
			s.Keyword = fname
		}
	}

	if v := form["s_postdatefrom"]; v != "" {
		if d, err := time.Parse(formDate, v); err == nil {
			s.DateFrom = d.Format(isoDate)
		}
	}
	if v := form["s_postdateto"]; v != "" {
		if d, err := time.Parse(formDate, v); err == nil {
			s.DateTo = d.Format(isoDate)
		}
	}

	if v := form["s_list"]; v != "" {
		s.Listserv = v
	}
	if form["s_cat"] == "1" {
		s.SearchIn = SearchSubjectOnly
	}
	switch form["s_attachment"] {
	case "1":
		s.AttachmentFilter = AttachmentsWith
	case "0":
		s.AttachmentFilter = AttachmentsWithout
	}

	return s.Normalize()
}

// CanonicalizeList normalizes a comma-delimited term list: terms are
// trimmed, empties dropped, order preserved, output joined with ", ".
// A value with spaces but no commas is treated as a space-separated list
// (models sometimes forget the commas).
func CanonicalizeList(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var parts []string
	if strings.Contains(raw, ",") {
		parts = strings.Split(raw, ",")
	} else if strings.Contains(raw, " ") {
		parts = strings.Fields(raw)
	} else {
		return raw
	}

	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			terms = append(terms, t)
		}
	}
	return strings.Join(terms, ", ")
}

// SplitList returns the individual terms of a canonical comma list.
func SplitList(canonical string) []string {
	if canonical == "" {
		return nil
	}
	parts := strings.Split(canonical, ",")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// String gives a compact human-readable description for logs.
func (s SearchSpec) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("keyword", s.Keyword)
	add("all", s.KeywordsAll)
	add("phrase", s.KeywordsPhrase)
	add("any", s.KeywordsAny)
	add("exclude", s.KeywordsExclude)
	add("posted_by", s.PostedBy)
	if s.AuthorFirstName != "" || s.AuthorLastName != "" {
		add("author", strings.TrimSpace(s.AuthorFirstName+" "+s.AuthorLastName))
	}
	if s.DateFrom != "" || s.DateTo != "" {
		from := s.DateFrom
		if from == "" {
			from = "start"
		}
		to := s.DateTo
		if to == "" {
			to = "now"
		}
		parts = append(parts, "dates="+from+".."+to)
	}
	if s.Listserv != "" && s.Listserv != ListservAll {
		add("list", s.Listserv)
	}
	if len(parts) == 0 {
		return "SearchSpec(unfiltered)"
	}
	return "SearchSpec(" + strings.Join(parts, ", ") + ")"
}
