// Package retrieve turns a SearchSpec into a bounded, ordered stream of
// fully-populated message records by driving the archive's search form in an
// authenticated browser session. The archive is a members-only Lyris front
// end with several quirks (duplicated field names, a misspelled pagination
// id, JS-href pagination controls); each one is handled at the step where
// it bites.
package retrieve

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"caaasearch/internal/browser"
	"caaasearch/internal/config"
	"caaasearch/internal/logging"
	"caaasearch/internal/searchspec"
)

// Upstream selectors.
const (
	resultsRowSel = "table.table-striped tbody tr"
	// The id misspelling is the archive's own.
	paginationSel    = "#seachResultsPaginationBar"
	messageWindowSel = "#s_lyris_messagewindow"
)

// Body-text markers the results page shows instead of a table, as JS
// regexes for the in-page matcher.
const (
	noResultsRe = `/no messages found|no results|0 messages/i`
	bannerRe    = `/messages found/i`
)

// submitSelectors are tried in order; the archive has shipped all three
// variants of its search button.
var submitSelectors = []string{"#s_btn", `input[name="s_btn"]`, `button[type="submit"]`}

// formFieldOrder fixes the fill order to match the form's visual layout.
var formFieldOrder = []string{
	"s_fname", "s_lname", "s_postedby",
	"s_key_all", "s_key_phrase", "s_key_one", "s_key_x",
	"s_list", "s_cat", "s_attachment",
	"s_postdatefrom", "s_postdateto",
}

// Record is one fully-populated message in upstream result order. Position
// is the 1-based rank across all pages; a skipped fetch leaves a gap.
type Record struct {
	UpstreamID    int64
	Subject       string
	FromName      string
	FromEmail     string
	Listserv      string
	PostedDate    string
	HasAttachment bool
	Body          string
	Position      int
	Page          int
}

// BodyLookup reports the stored body length for an upstream id. When a body
// is already on hand the per-message fetch is skipped and the record is
// emitted without one; the store keeps its longer copy.
type BodyLookup func(ctx context.Context, upstreamID int64) (int, bool)

// EmitFunc receives each record as soon as it is complete. An error aborts
// the search.
type EmitFunc func(Record) error

// Retriever drives one search at a time through a shared browser session.
// It is not safe for concurrent use; the browser context is single-threaded.
type Retriever struct {
	mgr        *browser.Manager
	cfg        config.RetrievalConfig
	bodyLookup BodyLookup

	sleep func(ctx context.Context, d time.Duration)
}

// New returns a Retriever bound to a browser manager.
func New(mgr *browser.Manager, cfg config.RetrievalConfig) *Retriever {
	return &Retriever{mgr: mgr, cfg: cfg, sleep: sleepCtx}
}

// SetBodyLookup installs a stored-body probe, used to avoid re-fetching
// bodies the store already holds.
func (r *Retriever) SetBodyLookup(fn BodyLookup) {
	r.bodyLookup = fn
}

// Run executes one search end to end: fill the form, paginate the results,
// fetch each message body, and hand every record to emit in upstream order.
// Returns the number of records emitted. Per-page and per-message problems
// are absorbed and logged; only login expiry, navigation failure, and emit
// errors abort the search.
func (r *Retriever) Run(ctx context.Context, spec searchspec.SearchSpec, emit EmitFunc) (int, error) {
	spec = spec.Normalize()

	page, err := r.mgr.OpenPage(ctx, r.searchURL())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", StepNavigate, err)
	}
	defer func() { _ = page.Close() }()

	if err := checkAuthenticated(page); err != nil {
		return 0, err
	}

	// Let the form's own scripts finish wiring up.
	r.sleep(ctx, r.cfg.GetPolitenessDelay())

	r.fillForm(ctx, page, spec.ToUpstreamForm())

	if err := r.submit(ctx, page); err != nil {
		return 0, err
	}

	switch r.waitResults(ctx, page) {
	case outcomeEmpty:
		logging.Retrieve("Search returned no results")
		return 0, nil
	case outcomeTimeout:
		logging.RetrieveWarn("Results did not appear within %s, treating as empty", r.cfg.GetResultsTimeout())
		return 0, nil
	}

	// Submitting can also bounce an expired session to the login page.
	if err := checkAuthenticated(page); err != nil {
		return 0, err
	}

	rows := r.collectRows(ctx, page, spec)
	logging.Retrieve("Collected %d result rows", len(rows))

	return r.fetchAndEmit(ctx, page, rows, emit)
}

func (r *Retriever) searchURL() string {
	if r.cfg.SearchURL != "" {
		return r.cfg.SearchURL
	}
	return config.DefaultSearchURL
}

// checkAuthenticated detects the archive's login redirect.
func checkAuthenticated(page *rod.Page) error {
	info, err := page.Info()
	if err != nil {
		return nil
	}
	if isLoginURL(info.URL) {
		return ErrCookieExpired
	}
	return nil
}

func isLoginURL(url string) bool {
	return strings.Contains(url, "pg=login")
}

// fillForm writes every populated spec field into the search form. A field
// that cannot be set is skipped with a warning; it never fails the search.
func (r *Retriever) fillForm(ctx context.Context, page *rod.Page, form map[string]string) {
	for _, name := range formFieldOrder {
		value, ok := form[name]
		if !ok {
			continue
		}
		if err := r.setField(ctx, page, name, value); err != nil {
			logging.RetrieveWarn("Could not set %s: %v", name, err)
		} else {
			logging.RetrieveDebug("Set %s = %q", name, value)
		}
	}
}

// setField writes one form field. Date inputs reject focus-driven typing,
// so their values are assigned from the page's script context. Input names
// that exist twice (basic panel plus hidden advanced panel) are written via
// the visible occurrence.
func (r *Retriever) setField(ctx context.Context, page *rod.Page, name, value string) error {
	inputSel := fmt.Sprintf(`input[name=%q]`, name)

	if strings.Contains(name, "date") {
		res, err := page.Context(ctx).Eval(`(sel, val) => {
			const el = document.querySelector(sel);
			if (!el) return false;
			el.value = val;
			return true;
		}`, inputSel, value)
		if err != nil {
			return err
		}
		if !res.Value.Bool() {
			return fmt.Errorf("no input named %s", name)
		}
		return nil
	}

	has, _, err := page.Context(ctx).Has(inputSel)
	if err != nil {
		return err
	}
	if has {
		els, err := page.Context(ctx).Elements(inputSel)
		if err != nil {
			return err
		}
		for _, el := range els {
			visible, err := el.Visible()
			if err != nil || !visible {
				continue
			}
			return el.Input(value)
		}
		return fmt.Errorf("no visible input named %s", name)
	}

	selectSel := fmt.Sprintf(`select[name=%q]`, name)
	hasSelect, sel, err := page.Context(ctx).Has(selectSel)
	if err != nil {
		return err
	}
	if hasSelect {
		return sel.Select([]string{fmt.Sprintf(`[value=%q]`, value)}, true, rod.SelectorTypeCSSSector)
	}
	return fmt.Errorf("field not present")
}

// submit clicks the search button, trying each known selector.
func (r *Retriever) submit(ctx context.Context, page *rod.Page) error {
	for _, selector := range submitSelectors {
		has, el, err := page.Context(ctx).Has(selector)
		if err != nil || !has {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			logging.RetrieveWarn("Click on %s failed: %v", selector, err)
			continue
		}
		logging.RetrieveDebug("Submitted via %s", selector)
		return nil
	}
	return &ShapeError{Step: StepSubmit, Detail: "search button not found"}
}

type waitOutcome int

const (
	outcomeRows waitOutcome = iota
	outcomeEmpty
	outcomeTimeout
)

// waitResults waits for whichever renders first: result rows, an explicit
// empty-result message, or the result-count banner. Some searches are
// genuinely slow, hence the long deadline. When only the banner has
// rendered, the rows get a short grace period before the page is treated
// as empty.
func (r *Retriever) waitResults(ctx context.Context, page *rod.Page) waitOutcome {
	outcome := outcomeTimeout
	_, err := page.Context(ctx).Timeout(r.cfg.GetResultsTimeout()).Race().
		Element(resultsRowSel).Handle(func(*rod.Element) error {
			outcome = outcomeRows
			return nil
		}).
		ElementR("body", noResultsRe).Handle(func(*rod.Element) error {
			outcome = outcomeEmpty
			return nil
		}).
		ElementR("body", bannerRe).Handle(func(*rod.Element) error {
			if _, err := page.Context(ctx).Timeout(5 * time.Second).Element(resultsRowSel); err == nil {
				outcome = outcomeRows
			} else {
				outcome = outcomeEmpty
			}
			return nil
		}).
		Do()
	if err != nil && outcome == outcomeTimeout {
		logging.RetrieveDebug("Results wait ended without a match: %v", err)
	}
	return outcome
}

// pagedRow is a collected row plus the pagination page it came from.
type pagedRow struct {
	row
	page int
}

// collectRows walks the paginated results and gathers row metadata up to
// the spec's caps. A page that cannot be read or parsed aborts pagination;
// rows collected so far are kept.
func (r *Retriever) collectRows(ctx context.Context, page *rod.Page, spec searchspec.SearchSpec) []pagedRow {
	var collected []pagedRow
	seen := make(map[int64]bool)

	for pageNum := 1; ; pageNum++ {
		if ctx.Err() != nil {
			break
		}

		pageHTML, err := page.Context(ctx).HTML()
		if err != nil {
			logging.RetrieveWarn("Could not read results page %d: %v", pageNum, err)
			break
		}
		rows, err := parseResultRows(pageHTML)
		if err != nil {
			logging.RetrieveWarn("Page %d: %v", pageNum, err)
			break
		}

		added := 0
		for _, rw := range rows {
			// A row repeated across page boundaries would double-link.
			if seen[rw.UpstreamID] {
				continue
			}
			seen[rw.UpstreamID] = true
			collected = append(collected, pagedRow{row: rw, page: pageNum})
			added++
		}
		logging.Retrieve("Page %d: %d rows", pageNum, added)

		if len(collected) >= spec.MaxMessages {
			collected = collected[:spec.MaxMessages]
			logging.Retrieve("Reached max_messages (%d)", spec.MaxMessages)
			break
		}
		if pageNum >= spec.MaxPages {
			logging.Retrieve("Reached max_pages (%d)", spec.MaxPages)
			break
		}

		if !r.nextPage(ctx, page, pageNum) {
			break
		}
		r.sleep(ctx, r.cfg.GetPolitenessDelay())
		if _, err := page.Context(ctx).Timeout(r.cfg.GetResultsTimeout()).Element(resultsRowSel); err != nil {
			logging.RetrieveWarn("Page %d did not render, stopping pagination", pageNum+1)
			break
		}
	}
	return collected
}

// nextPage advances to page current+1. The control is quirky: sometimes a
// numeric link, sometimes a titled next control with a javascript: href,
// sometimes a bare "Next" anchor.
func (r *Retriever) nextPage(ctx context.Context, page *rod.Page, current int) bool {
	has, bar, err := page.Context(ctx).Has(paginationSel)
	if err != nil || !has {
		return false
	}
	anchors, err := bar.Elements("a")
	if err != nil {
		return false
	}

	next := strconv.Itoa(current + 1)
	for _, a := range anchors {
		if text, err := a.Text(); err == nil && strings.TrimSpace(text) == next {
			return r.followPaginationLink(ctx, page, a)
		}
	}
	for _, a := range anchors {
		if title, _ := a.Attribute("title"); title != nil && *title == "Next Page" {
			return r.followPaginationLink(ctx, page, a)
		}
	}
	for _, a := range anchors {
		if text, err := a.Text(); err == nil && strings.Contains(text, "Next") {
			return r.followPaginationLink(ctx, page, a)
		}
	}
	return false
}

// followPaginationLink activates a pagination anchor. javascript: hrefs do
// not always fire on a synthetic click, so they run in the page directly.
func (r *Retriever) followPaginationLink(ctx context.Context, page *rod.Page, a *rod.Element) bool {
	if href, _ := a.Attribute("href"); href != nil && strings.HasPrefix(*href, "javascript:") {
		js := strings.TrimPrefix(*href, "javascript:")
		if _, err := page.Context(ctx).Eval(fmt.Sprintf("() => { %s }", js)); err != nil {
			logging.RetrieveWarn("Pagination script failed: %v", err)
			return false
		}
		return true
	}
	if err := a.Click(proto.InputMouseButtonLeft, 1); err != nil {
		logging.RetrieveWarn("Pagination click failed: %v", err)
		return false
	}
	return true
}

// fetchAndEmit opens each collected message, merges the window's header
// fields over the row metadata, and emits the record. Fetch failures skip
// the message; emit failures abort.
func (r *Retriever) fetchAndEmit(ctx context.Context, page *rod.Page, rows []pagedRow, emit EmitFunc) (int, error) {
	emitted := 0
	for i, pr := range rows {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}

		rec := Record{
			UpstreamID:    pr.UpstreamID,
			Subject:       pr.Subject,
			FromName:      pr.FromName,
			FromEmail:     pr.FromEmail,
			Listserv:      pr.Listserv,
			PostedDate:    pr.PostedDate,
			HasAttachment: pr.HasAttachment,
			Position:      i + 1,
			Page:          pr.page,
		}

		if known, ok := r.knownBodyLength(ctx, pr.UpstreamID); ok && known > 0 {
			logging.Retrieve("Message %d already stored (%d chars), skipping fetch", pr.UpstreamID, known)
		} else {
			content, err := r.fetchMessage(ctx, page, pr.UpstreamID)
			if err != nil {
				logging.RetrieveWarn("Skipping message %d: %v", pr.UpstreamID, err)
				continue
			}
			rec.Body = content.Body
			if content.From != "" {
				rec.FromName = content.From
				if email := extractEmail(content.From); email != "" {
					rec.FromEmail = email
				}
			}
			if content.Subject != "" {
				rec.Subject = content.Subject
			}
		}

		if err := emit(rec); err != nil {
			return emitted, fmt.Errorf("%s: %w", StepEmit, err)
		}
		emitted++
	}
	return emitted, nil
}

func (r *Retriever) knownBodyLength(ctx context.Context, upstreamID int64) (int, bool) {
	if r.bodyLookup == nil {
		return 0, false
	}
	return r.bodyLookup(ctx, upstreamID)
}

// fetchMessage loads one message into the archive's message window and
// extracts its cleaned content. The pause after invoking the loader doubles
// as the between-fetch politeness delay; the window element persists across
// loads, so the content needs the pause to settle before it is read.
func (r *Retriever) fetchMessage(ctx context.Context, page *rod.Page, id int64) (messageContent, error) {
	if err := r.openMessage(ctx, page, id); err != nil {
		return messageContent{}, err
	}
	r.sleep(ctx, r.cfg.GetPolitenessDelay())

	el, err := page.Context(ctx).Timeout(r.cfg.GetMessageTimeout()).Element(messageWindowSel)
	if err != nil {
		return messageContent{}, &StepTimeoutError{Step: StepMessage, Err: err}
	}
	windowHTML, err := el.HTML()
	if err != nil {
		return messageContent{}, &ShapeError{Step: StepMessage, Detail: err.Error()}
	}

	content := extractMessageContent(windowHTML)
	if len(content.Body) < 10 {
		logging.RetrieveWarn("Message %d body is only %d chars", id, len(content.Body))
	}
	return content, nil
}

// openMessage invokes the archive's message loader, falling back to clicking
// the subject anchor, then to a direct URL.
func (r *Retriever) openMessage(ctx context.Context, page *rod.Page, id int64) error {
	_, err := page.Context(ctx).Eval(`(id) => { b_loadmsgjson(id, '', 'responsive'); }`, id)
	if err == nil {
		return nil
	}
	logging.RetrieveDebug("b_loadmsgjson(%d) failed: %v", id, err)

	anchorSel := fmt.Sprintf(`a[href*="b_loadmsgjson(%d"]`, id)
	if has, el, err := page.Context(ctx).Has(anchorSel); err == nil && has {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			return nil
		}
	}

	url := fmt.Sprintf("%s&msgid=%d", r.searchURL(), id)
	if err := page.Context(ctx).Timeout(r.cfg.GetMessageTimeout()).Navigate(url); err != nil {
		return &StepTimeoutError{Step: StepMessage, Err: err}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
