package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"caaasearch/internal/llm"
	"caaasearch/internal/logging"
	"caaasearch/internal/searchspec"
)

// Context terms biasing the "any" slot toward evaluative discussion. The
// "all" slot pins the subject; these widen recall around it.
const (
	defenseContextTerms   = "defense, defendant, opposing, counsel, attorney, negotiate, settlement, deposition, lien"
	insuranceContextTerms = "insurance, carrier, insurer, claim, adjuster, authorization, denial, coverage, settlement, premium"
)

// judgeTitleRe strips judicial titles wherever they appear in the input.
// The multiword form must come before the bare "judge" alternative.
var judgeTitleRe = regexp.MustCompile(`(?i)\b(workers'? compensation judge|judge|honorable|wcj|hon\.?)(\s+|$)`)

// JudgeSpec builds the search for a judge evaluation without consulting a
// model: known title variants of the name matter more than phrasing, and the
// same judge must always produce the same search. ok is false when no name
// survives title stripping.
func JudgeSpec(subject string) (searchspec.SearchSpec, string, bool) {
	cleaned := judgeTitleRe.ReplaceAllString(subject, " ")
	parts := strings.Fields(cleaned)
	if len(parts) == 0 {
		return searchspec.SearchSpec{}, "", false
	}

	lastName := parts[len(parts)-1]
	fullName := strings.Join(parts, " ")

	var variants []string
	seen := make(map[string]bool)
	add := func(v string) {
		if !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}
	for _, name := range []string{fullName, lastName} {
		add("Judge " + name)
		add(name)
		add("Hon. " + name)
		add("Hon " + name)
		add("WCJ " + name)
		add("Honorable " + name)
		add(name + " WCJ")
	}

	spec := searchspec.SearchSpec{
		KeywordsAny: strings.Join(variants, ", "),
	}.Normalize()

	reasoning := fmt.Sprintf("Deterministic judge search: matching any known title variant of %q", fullName)
	logging.Planner("Judge variants for %q: %s", subject, spec.KeywordsAny)
	return spec, reasoning, true
}

// DefenseAttorneySpec pins the attorney's last name in the "all" slot and
// biases the "any" slot toward dealings-with-opposing-counsel context.
func DefenseAttorneySpec(subject string) (searchspec.SearchSpec, string, bool) {
	parts := strings.Fields(strings.TrimSpace(subject))
	if len(parts) == 0 {
		return searchspec.SearchSpec{}, "", false
	}
	lastName := strings.Trim(parts[len(parts)-1], ".,")
	if lastName == "" {
		return searchspec.SearchSpec{}, "", false
	}

	spec := searchspec.SearchSpec{
		KeywordsAll: lastName,
		KeywordsAny: defenseContextTerms,
	}.Normalize()

	reasoning := fmt.Sprintf("Deterministic defense attorney search: last name %q plus opposing-counsel context terms", lastName)
	return spec, reasoning, true
}

const abbreviationPromptFormat = `What is the most common colloquial abbreviation or short name California workers' compensation attorneys use for the insurance carrier %q? For example, "State Compensation Insurance Fund" is called "SCIF". Respond with ONLY the abbreviation or short name, nothing else.`

// insuranceSpec asks the model one question (the carrier's street name) and
// builds the rest deterministically. A bad or missing answer falls back to
// the first token of the carrier name.
func (p *Planner) insuranceSpec(ctx context.Context, subject string) (searchspec.SearchSpec, string) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return p.fallback(subject, "carrier name missing")
	}

	abbrev := ""
	if p.client != nil {
		raw, err := p.client.CompleteWithOptions(ctx, "",
			fmt.Sprintf(abbreviationPromptFormat, subject),
			llm.Options{Temperature: 0, MaxTokens: 20})
		if err != nil {
			logging.PlannerWarn("Abbreviation lookup failed for %q: %v", subject, err)
		} else {
			abbrev = cleanAbbreviation(raw)
		}
	}
	if abbrev == "" {
		abbrev = strings.Fields(subject)[0]
		logging.Planner("Using first token %q as abbreviation for %q", abbrev, subject)
	}

	spec := searchspec.SearchSpec{
		KeywordsAll: abbrev,
		KeywordsAny: insuranceContextTerms,
	}.Normalize()

	reasoning := fmt.Sprintf("Insurance carrier search: abbreviation %q plus carrier context terms", abbrev)
	return spec, reasoning
}

// cleanAbbreviation extracts a usable short name from the model's reply,
// rejecting anything that looks like a sentence.
func cleanAbbreviation(raw string) string {
	line := raw
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.Trim(strings.TrimSpace(line), `"'.`)
	if line == "" || len(line) > 20 || len(strings.Fields(line)) > 3 {
		return ""
	}
	return line
}
