package retrieve

import (
	"errors"
	"testing"
)

const resultsPageFixture = `<html><body>
<div class="s_search_header">57 messages found</div>
<table class="table table-striped">
  <tbody>
    <tr>
      <td><b>Date</b></td><td><b>From</b></td><td><b>List</b></td><td><b>Att</b></td><td><b>Subject</b></td>
    </tr>
    <tr>
      <td>10/29/25</td>
      <td>Jane Smith &lt;jsmith@smithlaw.com&gt;</td>
      <td>lawnet</td>
      <td></td>
      <td><a href="javascript:b_loadmsgjson(21777803,'','responsive')">Expedited hearing for MPN dispute</a></td>
    </tr>
    <tr>
      <td>9/3/25</td>
      <td>Bob Alvarez</td>
      <td>lavaaa</td>
      <td>Y</td>
      <td><a href="javascript:b_loadmsgjson('','responsive')">Row with no message id</a></td>
    </tr>
    <tr>
      <td>8/15/25</td>
      <td>Carol Ng &lt;cng@ngfirm.com&gt;</td>
      <td>lawnet</td>
      <td>Y</td>
      <td><a href="javascript:b_loadmsgjson(21650001,'','responsive')">QME panel strategy after IMR denial</a></td>
    </tr>
    <tr>
      <td>8/1/25</td>
      <td>Short Row</td>
      <td>lawnet</td>
    </tr>
    <tr>
      <td>7/20/25</td>
      <td>Dan Oh</td>
      <td>scaaa</td>
      <td></td>
      <td>No anchor in this cell</td>
    </tr>
  </tbody>
</table>
<div id="seachResultsPaginationBar"><a href="javascript:b_search(2)">2</a></div>
</body></html>`

func TestParseResultRows(t *testing.T) {
	rows, err := parseResultRows(resultsPageFixture)
	if err != nil {
		t.Fatalf("Failed to parse results page: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 usable rows, got %d: %+v", len(rows), rows)
	}

	first := rows[0]
	if first.UpstreamID != 21777803 {
		t.Errorf("Expected upstream id 21777803, got %d", first.UpstreamID)
	}
	if first.PostedDate != "2025-10-29" {
		t.Errorf("Expected ISO date 2025-10-29, got %q", first.PostedDate)
	}
	if first.FromName != "Jane Smith <jsmith@smithlaw.com>" {
		t.Errorf("Unexpected from display: %q", first.FromName)
	}
	if first.FromEmail != "jsmith@smithlaw.com" {
		t.Errorf("Expected extracted email, got %q", first.FromEmail)
	}
	if first.Listserv != "lawnet" {
		t.Errorf("Unexpected listserv: %q", first.Listserv)
	}
	if first.HasAttachment {
		t.Error("Empty attachment cell should mean no attachment")
	}
	if first.Subject != "Expedited hearing for MPN dispute" {
		t.Errorf("Unexpected subject: %q", first.Subject)
	}

	second := rows[1]
	if second.UpstreamID != 21650001 {
		t.Errorf("Expected upstream id 21650001, got %d", second.UpstreamID)
	}
	if second.PostedDate != "2025-08-15" {
		t.Errorf("Expected ISO date 2025-08-15, got %q", second.PostedDate)
	}
	if !second.HasAttachment {
		t.Error("Non-empty attachment cell should mean attachment present")
	}
}

func TestParseResultRowsNoTable(t *testing.T) {
	_, err := parseResultRows(`<html><body><p>No messages found.</p></body></html>`)
	if err == nil {
		t.Fatal("Expected shape error when the table is missing")
	}
	var shape *ShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("Expected ShapeError, got %T", err)
	}
	if shape.Step != StepParseRows {
		t.Errorf("Unexpected step: %s", shape.Step)
	}
}

func TestParseUpstreamID(t *testing.T) {
	tests := []struct {
		href string
		id   int64
		ok   bool
	}{
		{"javascript:b_loadmsgjson(21777803,'','responsive')", 21777803, true},
		{"javascript:b_loadmsgjson( 42, '', 'responsive')", 42, true},
		{"javascript:b_somethingelse(21777803)", 0, false},
		{"", 0, false},
		{"javascript:b_loadmsgjson('abc')", 0, false},
	}
	for _, tt := range tests {
		id, ok := parseUpstreamID(tt.href)
		if ok != tt.ok || id != tt.id {
			t.Errorf("parseUpstreamID(%q) = (%d, %v), want (%d, %v)", tt.href, id, ok, tt.id, tt.ok)
		}
	}
}

func TestParseResultDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10/29/25", "2025-10-29"},
		{"1/5/25", "2025-01-05"},
		{"10/29/2025", "2025-10-29"},
		{" 12/31/24 ", "2024-12-31"},
		{"13/01/25", ""},
		{"10/40/25", ""},
		{"not a date", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseResultDate(tt.in); got != tt.want {
			t.Errorf("parseResultDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractEmail(t *testing.T) {
	if got := extractEmail("Jane Smith <jsmith@smithlaw.com>"); got != "jsmith@smithlaw.com" {
		t.Errorf("Expected extracted email, got %q", got)
	}
	if got := extractEmail("Jane Smith"); got != "" {
		t.Errorf("Expected empty email, got %q", got)
	}
}

const messageWindowFixture = `<div id="s_lyris_messagewindow">
  <span>From: Jane Smith &lt;jsmith@smithlaw.com&gt;</span><br>
  <span>Date: 10/29/25</span><br>
  <span>Subject: Expedited hearing for MPN dispute</span>
  <div dir="ltr">I had a similar MPN dispute last month.
    <div>The expedited hearing was granted within two weeks.</div>
    <blockquote>On Tue, Oct 28, 2025 John Doe wrote: can anyone share experience?</blockquote>
    <div>This text after the quote must not appear.</div>
  </div>
  <blockquote><div dir="ltr">Quoted reply body that must be ignored.</div></blockquote>
</div>`

func TestExtractMessageContent(t *testing.T) {
	mc := extractMessageContent(messageWindowFixture)

	if mc.From != "Jane Smith <jsmith@smithlaw.com>" {
		t.Errorf("Unexpected From: %q", mc.From)
	}
	if mc.Date != "10/29/25" {
		t.Errorf("Unexpected Date: %q", mc.Date)
	}
	if mc.Subject != "Expedited hearing for MPN dispute" {
		t.Errorf("Unexpected Subject: %q", mc.Subject)
	}

	want := "I had a similar MPN dispute last month. The expedited hearing was granted within two weeks."
	if mc.Body != want {
		t.Errorf("Body = %q, want %q", mc.Body, want)
	}
}

func TestExtractMessageContentSkipsQuotedDivs(t *testing.T) {
	window := `<div id="s_lyris_messagewindow">
	  <blockquote><div dir="ltr">Only a quoted reply here.</div></blockquote>
	  <div dir="ltr">The actual new text.</div>
	</div>`
	mc := extractMessageContent(window)
	if mc.Body != "The actual new text." {
		t.Errorf("Body = %q, want the unquoted div's text", mc.Body)
	}
}

func TestExtractMessageContentFallback(t *testing.T) {
	window := `<div id="s_lyris_messagewindow">
	  <span>From: Bob Alvarez</span><br>
	  <span>Date: 9/3/25</span><br>
	  <span>Subject: Odd formatting</span><br>
	  <p>First paragraph of an oddly formatted message.</p>
	  <p>Second paragraph.</p>
	</div>`
	mc := extractMessageContent(window)
	want := "First paragraph of an oddly formatted message. Second paragraph."
	if mc.Body != want {
		t.Errorf("Fallback body = %q, want %q", mc.Body, want)
	}
	if mc.From != "Bob Alvarez" {
		t.Errorf("Unexpected From: %q", mc.From)
	}
}

func TestExtractMessageContentEmptyWindow(t *testing.T) {
	mc := extractMessageContent(`<div id="s_lyris_messagewindow"></div>`)
	if mc.Body != "" || mc.From != "" || mc.Subject != "" {
		t.Errorf("Expected empty content, got %+v", mc)
	}
}
