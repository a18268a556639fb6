package searchspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAppliesDefaults(t *testing.T) {
	s := SearchSpec{}.Normalize()

	assert.Equal(t, ListservAll, s.Listserv)
	assert.Equal(t, SearchSubjectAndBody, s.SearchIn)
	assert.Equal(t, AttachmentsAll, s.AttachmentFilter)
	assert.Equal(t, DefaultMaxMessages, s.MaxMessages)
	assert.Equal(t, DefaultMaxPages, s.MaxPages)
}

func TestNormalizeDoesNotMutateReceiver(t *testing.T) {
	orig := SearchSpec{KeywordsAny: "a , b"}
	_ = orig.Normalize()
	assert.Equal(t, "a , b", orig.KeywordsAny)
}

func TestCanonicalizeList(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"single term", "psyche", "psyche"},
		{"already canonical", "back injury, settlement", "back injury, settlement"},
		{"ragged commas", " back injury ,settlement,, lien ", "back injury, settlement, lien"},
		{"spaces without commas", "expedited hearing IMR", "expedited, hearing, IMR"},
		{"trailing comma", "apportionment,", "apportionment"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanonicalizeList(tc.in))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a", "b c", "d"}, SplitList("a, b c, d"))
}

func TestToUpstreamFormSimpleKeyword(t *testing.T) {
	form := SearchSpec{Keyword: "apportionment"}.Normalize().ToUpstreamForm()

	assert.Equal(t, "apportionment", form["s_fname"])
	assert.NotContains(t, form, "s_lname")
	assert.NotContains(t, form, "s_list")
	assert.NotContains(t, form, "s_cat")
	assert.NotContains(t, form, "s_attachment")
}

func TestToUpstreamFormAuthorOverridesKeywordSlot(t *testing.T) {
	s := SearchSpec{
		Keyword:         "ignored",
		AuthorFirstName: "John",
		AuthorLastName:  "Smith",
	}
	form := s.ToUpstreamForm()

	assert.Equal(t, "John", form["s_fname"])
	assert.Equal(t, "Smith", form["s_lname"])
}

func TestToUpstreamFormDatesAndScope(t *testing.T) {
	s := SearchSpec{
		KeywordsAll:      "Smith",
		KeywordsAny:      "defense, counsel",
		KeywordsExclude:  "lien",
		KeywordsPhrase:   "permanent disability",
		PostedBy:         "Jane Doe",
		DateFrom:         "2024-02-25",
		DateTo:           "2024-08-25",
		Listserv:         ListservLawnet,
		SearchIn:         SearchSubjectOnly,
		AttachmentFilter: AttachmentsWith,
	}
	form := s.ToUpstreamForm()

	assert.Equal(t, "Smith", form["s_key_all"])
	assert.Equal(t, "defense, counsel", form["s_key_one"])
	assert.Equal(t, "lien", form["s_key_x"])
	assert.Equal(t, "permanent disability", form["s_key_phrase"])
	assert.Equal(t, "Jane Doe", form["s_postedby"])
	assert.Equal(t, "02/25/2024", form["s_postdatefrom"])
	assert.Equal(t, "08/25/2024", form["s_postdateto"])
	assert.Equal(t, "lawnet", form["s_list"])
	assert.Equal(t, "1", form["s_cat"])
	assert.Equal(t, "1", form["s_attachment"])
}

func TestToUpstreamFormWithoutAttachments(t *testing.T) {
	form := SearchSpec{AttachmentFilter: AttachmentsWithout}.ToUpstreamForm()
	assert.Equal(t, "0", form["s_attachment"])
}

func TestFormRoundTrip(t *testing.T) {
	specs := []SearchSpec{
		{Keyword: "apportionment"},
		{AuthorFirstName: "John", AuthorLastName: "Smith"},
		{PostedBy: "Jane Doe", DateFrom: "2023-01-15", DateTo: "2023-06-30"},
		{
			KeywordsAll:      "CopperPoint",
			KeywordsAny:      "insurance, carrier, claim",
			KeywordsExclude:  "lien",
			KeywordsPhrase:   "utilization review",
			Listserv:         ListservScaaa,
			SearchIn:         SearchSubjectOnly,
			AttachmentFilter: AttachmentsWithout,
		},
	}
	for _, orig := range specs {
		orig = orig.Normalize()
		got := FromUpstreamForm(orig.ToUpstreamForm())
		assert.Equal(t, orig, got, "round trip changed %s", orig)
	}
}

func TestFromUpstreamFormAmbiguousFirstName(t *testing.T) {
	// s_fname alone is the simple keyword.
	s := FromUpstreamForm(map[string]string{"s_fname": "apportionment"})
	assert.Equal(t, "apportionment", s.Keyword)
	assert.Empty(t, s.AuthorFirstName)

	// With s_lname it becomes the expert first name.
	s = FromUpstreamForm(map[string]string{"s_fname": "John", "s_lname": "Smith"})
	assert.Empty(t, s.Keyword)
	assert.Equal(t, "John", s.AuthorFirstName)
	assert.Equal(t, "Smith", s.AuthorLastName)
}

func TestValidate(t *testing.T) {
	ok := SearchSpec{Keyword: "psyche"}.Normalize()
	require.NoError(t, ok.Validate())

	badList := SearchSpec{Listserv: "norcal"}.Normalize()
	assert.Error(t, badList.Validate())

	badDate := SearchSpec{DateFrom: "02/25/2024"}.Normalize()
	assert.Error(t, badDate.Validate())

	inverted := SearchSpec{DateFrom: "2024-06-01", DateTo: "2024-01-01"}.Normalize()
	assert.Error(t, inverted.Validate())
}

func TestIsAuthorOnly(t *testing.T) {
	assert.True(t, SearchSpec{PostedBy: "Jane Doe"}.IsAuthorOnly())
	assert.True(t, SearchSpec{AuthorFirstName: "John", AuthorLastName: "Smith"}.IsAuthorOnly())
	assert.False(t, SearchSpec{PostedBy: "Jane Doe", Keyword: "lien"}.IsAuthorOnly())
	assert.False(t, SearchSpec{PostedBy: "Jane Doe", DateFrom: "2024-01-01"}.IsAuthorOnly())
	assert.False(t, SearchSpec{Keyword: "lien"}.IsAuthorOnly())
}

func TestQueryTypePredicates(t *testing.T) {
	assert.True(t, QueryJudgeEval.Valid())
	assert.False(t, QueryType("judge").Valid())

	assert.True(t, QueryDoctorEval.IsEvaluation())
	assert.False(t, QueryAMEQMESearch.IsEvaluation())
	assert.False(t, QueryGeneral.IsEvaluation())

	assert.True(t, QueryAMEQMESearch.Synthesizes())
	assert.True(t, QueryInsuranceCompanyEval.Synthesizes())
	assert.False(t, QueryGeneral.Synthesizes())
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, Status("done").Valid())
}

func TestQuestionKind(t *testing.T) {
	cases := []struct {
		question string
		wantType QueryType
		wantSubj string
	}{
		{"Evaluate doctor: Dr. John Smith", QueryDoctorEval, "Dr. John Smith"},
		{"Evaluate judge: Garcia", QueryJudgeEval, "Garcia"},
		{"Evaluate adjuster: Mary Jones", QueryAdjusterEval, "Mary Jones"},
		{"Evaluate defense attorney: Bob Lee", QueryDefenseAttorneyEval, "Bob Lee"},
		{"Evaluate insurance company: SCIF", QueryInsuranceCompanyEval, "SCIF"},
		{"Find best AME: orthopedic", QueryAMEQMESearch, "orthopedic"},
		{"Find best QME: psyche", QueryAMEQMESearch, "psyche"},
		{"Find best Both: pain management", QueryAMEQMESearch, "pain management"},
		{"messages about apportionment", QueryGeneral, "messages about apportionment"},
	}
	for _, tc := range cases {
		qt, subj := QuestionKind(tc.question)
		assert.Equal(t, tc.wantType, qt, tc.question)
		assert.Equal(t, tc.wantSubj, subj, tc.question)
	}
}

func TestExaminerKind(t *testing.T) {
	assert.Equal(t, "AME", ExaminerKind("Find best AME: orthopedic"))
	assert.Equal(t, "QME", ExaminerKind("Find best QME: psyche"))
	assert.Equal(t, "Both", ExaminerKind("Find best Both: pain"))
	assert.Equal(t, "Both", ExaminerKind("anything else"))
}

func TestRealQuestion(t *testing.T) {
	cases := []struct {
		queryType QueryType
		intent    string
		examiner  string
		want      string
	}{
		{QueryGeneral, "messages about apportionment", "", "messages about apportionment"},
		{QueryDoctorEval, "Dr. John Smith", "", "Evaluate doctor: Dr. John Smith"},
		{QueryJudgeEval, "Garcia", "", "Evaluate judge: Garcia"},
		{QueryAdjusterEval, "Mary Jones", "", "Evaluate adjuster: Mary Jones"},
		{QueryDefenseAttorneyEval, "Bob Lee", "", "Evaluate defense attorney: Bob Lee"},
		{QueryInsuranceCompanyEval, "SCIF", "", "Evaluate insurance company: SCIF"},
		{QueryAMEQMESearch, "orthopedic", "AME", "Find best AME: orthopedic"},
		{QueryAMEQMESearch, "psyche", "QME", "Find best QME: psyche"},
		{QueryAMEQMESearch, "pain management", "Both", "Find best Both: pain management"},
		{QueryAMEQMESearch, "pain management", "", "Find best Both: pain management"},
	}
	for _, tc := range cases {
		got := RealQuestion(tc.queryType, tc.intent, tc.examiner)
		assert.Equal(t, tc.want, got, "%s %q", tc.queryType, tc.intent)
	}
}

func TestRealQuestionKeepsExistingPrefix(t *testing.T) {
	got := RealQuestion(QueryJudgeEval, "Evaluate judge: Garcia", "")
	assert.Equal(t, "Evaluate judge: Garcia", got)

	// Round-trip: the built question maps back to its type and subject.
	qt, subj := QuestionKind(RealQuestion(QueryDoctorEval, "Dr. Smith", ""))
	assert.Equal(t, QueryDoctorEval, qt)
	assert.Equal(t, "Dr. Smith", subj)
}
