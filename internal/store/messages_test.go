package store

import (
	"context"
	"testing"

	"caaasearch/internal/searchspec"
)

func TestUpsertMessageKeepsLongerBody(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	full := &Message{
		UpstreamID: 4471023,
		Subject:    "Expedited hearing on MPN dispute",
		FromName:   "Jane Smith",
		FromEmail:  "jsmith@example.com",
		Listserv:   "lawnet",
		PostedDate: "2024-03-15",
		Body:       "This is the full body of the message with plenty of detail about the hearing.",
	}
	id1, err := s.UpsertMessage(ctx, full)
	if err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}

	// A rescrape that only got a truncated body must not clobber the stored one.
	truncated := &Message{
		UpstreamID: 4471023,
		Subject:    "Expedited hearing on MPN dispute (re-seen)",
		FromName:   "Jane Smith",
		FromEmail:  "jsmith@example.com",
		Listserv:   "lawnet",
		PostedDate: "2024-03-15",
		Body:       "short",
	}
	id2, err := s.UpsertMessage(ctx, truncated)
	if err != nil {
		t.Fatalf("UpsertMessage rescrape: %v", err)
	}
	if id1 != id2 {
		t.Errorf("rescrape produced a new row id: %q vs %q", id1, id2)
	}

	stored, err := s.GetMessageByUpstreamID(ctx, 4471023)
	if err != nil {
		t.Fatalf("GetMessageByUpstreamID: %v", err)
	}
	if stored.Body != full.Body {
		t.Errorf("body was replaced by shorter text: %q", stored.Body)
	}
	if stored.BodyLength != len(full.Body) {
		t.Errorf("body_length = %d, want %d", stored.BodyLength, len(full.Body))
	}
	if stored.Subject != "Expedited hearing on MPN dispute (re-seen)" {
		t.Errorf("metadata not refreshed: subject = %q", stored.Subject)
	}

	// A longer body does replace the stored one.
	longer := &Message{
		UpstreamID: 4471023,
		Subject:    stored.Subject,
		Body:       full.Body + " Plus a follow-up paragraph that was below the fold on the first scrape.",
	}
	if _, err := s.UpsertMessage(ctx, longer); err != nil {
		t.Fatalf("UpsertMessage longer: %v", err)
	}
	stored, _ = s.GetMessageByUpstreamID(ctx, 4471023)
	if stored.Body != longer.Body {
		t.Error("longer body did not replace stored body")
	}
}

func TestMessageBodyLength(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, ok := s.MessageBodyLength(ctx, 12345); ok {
		t.Error("MessageBodyLength reported a message that was never stored")
	}

	m := &Message{UpstreamID: 12345, Subject: "s", Body: "ten chars!"}
	if _, err := s.UpsertMessage(ctx, m); err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}
	length, ok := s.MessageBodyLength(ctx, 12345)
	if !ok || length != 10 {
		t.Errorf("MessageBodyLength = (%d, %v), want (10, true)", length, ok)
	}
}

func TestLinkResultIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	search, err := s.CreateSearch(ctx, "uq", "rq", searchspec.QueryGeneral, testParams(t))
	if err != nil {
		t.Fatalf("CreateSearch: %v", err)
	}
	msgID, err := s.UpsertMessage(ctx, &Message{UpstreamID: 99, Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}

	if err := s.LinkResult(ctx, search.ID, msgID, 1, 1); err != nil {
		t.Fatalf("LinkResult: %v", err)
	}
	if err := s.LinkResult(ctx, search.ID, msgID, 1, 1); err != nil {
		t.Fatalf("LinkResult repeat: %v", err)
	}

	rows, err := s.Results(ctx, search.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("results = %d rows, want 1", len(rows))
	}
	if rows[0].ResultPosition != 1 || rows[0].UpstreamID != 99 {
		t.Errorf("row = position %d upstream %d", rows[0].ResultPosition, rows[0].UpstreamID)
	}
}

func TestResultsOrderedByPositionWithAnalysisJoin(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	search, err := s.CreateSearch(ctx, "uq", "rq", searchspec.QueryGeneral, testParams(t))
	if err != nil {
		t.Fatalf("CreateSearch: %v", err)
	}

	var ids []string
	for i, upstream := range []int64{301, 302, 303} {
		id, err := s.UpsertMessage(ctx, &Message{UpstreamID: upstream, Subject: "s", Body: "b"})
		if err != nil {
			t.Fatalf("UpsertMessage: %v", err)
		}
		// Insert out of order to prove the query sorts.
		if err := s.LinkResult(ctx, search.ID, id, 3-i, 1); err != nil {
			t.Fatalf("LinkResult: %v", err)
		}
		ids = append(ids, id)
	}

	// Score only the first-positioned message.
	if err := s.SaveAnalysis(ctx, &Analysis{
		SearchID: search.ID, MessageID: ids[2],
		IsRelevant: true, Confidence: 0.9, AIReasoning: "on point",
	}); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	rows, err := s.Results(ctx, search.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("results = %d rows, want 3", len(rows))
	}
	for i, row := range rows {
		if row.ResultPosition != i+1 {
			t.Errorf("row %d position = %d", i, row.ResultPosition)
		}
	}
	if !rows[0].IsRelevant || rows[0].Confidence != 0.9 {
		t.Error("analysis join missing on scored row")
	}
	if rows[1].IsRelevant || rows[1].AIReasoning != "" {
		t.Error("unscored row should carry zero-valued analysis fields")
	}
}
