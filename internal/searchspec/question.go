package searchspec

import "strings"

// Subject-evaluation question prefixes. Planner output uses these verbatim
// so the scoring stage can recover the subject without another model call.
const (
	PrefixDoctor          = "Evaluate doctor:"
	PrefixJudge           = "Evaluate judge:"
	PrefixAdjuster        = "Evaluate adjuster:"
	PrefixDefenseAttorney = "Evaluate defense attorney:"
	PrefixInsurance       = "Evaluate insurance company:"
	PrefixBestAME         = "Find best AME:"
	PrefixBestQME         = "Find best QME:"
	PrefixBestBoth        = "Find best Both:"
)

// QuestionKind maps a REAL question back to its query type and subject.
// "Evaluate judge: Smith" yields (QueryJudgeEval, "Smith"); anything without
// a recognized prefix is (QueryGeneral, question).
func QuestionKind(question string) (QueryType, string) {
	question = strings.TrimSpace(question)
	for _, pk := range []struct {
		prefix string
		qt     QueryType
	}{
		{PrefixDoctor, QueryDoctorEval},
		{PrefixJudge, QueryJudgeEval},
		{PrefixAdjuster, QueryAdjusterEval},
		{PrefixDefenseAttorney, QueryDefenseAttorneyEval},
		{PrefixInsurance, QueryInsuranceCompanyEval},
		{PrefixBestAME, QueryAMEQMESearch},
		{PrefixBestQME, QueryAMEQMESearch},
		{PrefixBestBoth, QueryAMEQMESearch},
	} {
		if strings.HasPrefix(question, pk.prefix) {
			return pk.qt, strings.TrimSpace(strings.TrimPrefix(question, pk.prefix))
		}
	}
	return QueryGeneral, question
}

// RealQuestion builds the REAL question the pipeline scores against from a
// typed intent. Evaluation types wrap the intent in their prefix; general
// intents pass through unchanged. An intent that already carries the right
// prefix is returned as-is. For examiner searches the examiner must be
// "AME", "QME" or "Both"; anything else means Both.
func RealQuestion(queryType QueryType, intent, examiner string) string {
	intent = strings.TrimSpace(intent)
	if kind, _ := QuestionKind(intent); kind == queryType && queryType != QueryGeneral {
		return intent
	}

	switch queryType {
	case QueryDoctorEval:
		return PrefixDoctor + " " + intent
	case QueryJudgeEval:
		return PrefixJudge + " " + intent
	case QueryAdjusterEval:
		return PrefixAdjuster + " " + intent
	case QueryDefenseAttorneyEval:
		return PrefixDefenseAttorney + " " + intent
	case QueryInsuranceCompanyEval:
		return PrefixInsurance + " " + intent
	case QueryAMEQMESearch:
		switch examiner {
		case "AME":
			return PrefixBestAME + " " + intent
		case "QME":
			return PrefixBestQME + " " + intent
		default:
			return PrefixBestBoth + " " + intent
		}
	default:
		return intent
	}
}

// ExaminerKind returns "AME", "QME" or "Both" for an examiner-search
// question, defaulting to "Both" when the prefix is absent.
func ExaminerKind(question string) string {
	question = strings.TrimSpace(question)
	switch {
	case strings.HasPrefix(question, PrefixBestAME):
		return "AME"
	case strings.HasPrefix(question, PrefixBestQME):
		return "QME"
	default:
		return "Both"
	}
}
