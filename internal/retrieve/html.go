package retrieve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// row is one entry from the upstream results table, before the full body
// has been fetched.
type row struct {
	UpstreamID    int64
	PostedDate    string
	FromName      string
	FromEmail     string
	Listserv      string
	HasAttachment bool
	Subject       string
}

// messageContent is the cleaned output of the message window.
type messageContent struct {
	From    string
	Date    string
	Subject string
	Body    string
}

var (
	// The subject anchor carries the message id inside its JS handler:
	// javascript:b_loadmsgjson(21777803,'','responsive')
	handlerIDRe = regexp.MustCompile(`b_loadmsgjson\(\s*(\d+)`)

	// "Name <email@host>" display form in the From column.
	emailRe = regexp.MustCompile(`<([^>]+)>`)
)

// parseResultRows extracts result rows from a full results-page HTML dump.
// Header rows (bold cells) and rows without a message id are skipped.
func parseResultRows(pageHTML string) ([]row, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, &ShapeError{Step: StepParseRows, Detail: fmt.Sprintf("unparseable page: %v", err)}
	}

	table := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "table" && hasClass(n, "table-striped")
	})
	if table == nil {
		return nil, &ShapeError{Step: StepParseRows, Detail: "results table not found"}
	}

	var rows []row
	for _, tr := range findAll(table, elementMatcher("tr")) {
		if findFirst(tr, elementMatcher("b")) != nil {
			// Column header row.
			continue
		}
		cells := childElements(tr, "td")
		if len(cells) < 5 {
			continue
		}

		anchor := findFirst(cells[4], elementMatcher("a"))
		if anchor == nil {
			continue
		}
		id, ok := parseUpstreamID(attrVal(anchor, "href"))
		if !ok {
			continue
		}

		display := strings.TrimSpace(nodeText(cells[1]))
		rows = append(rows, row{
			UpstreamID:    id,
			PostedDate:    parseResultDate(nodeText(cells[0])),
			FromName:      display,
			FromEmail:     extractEmail(display),
			Listserv:      strings.TrimSpace(nodeText(cells[2])),
			HasAttachment: strings.TrimSpace(nodeText(cells[3])) != "",
			Subject:       strings.TrimSpace(nodeText(anchor)),
		})
	}
	return rows, nil
}

// parseUpstreamID pulls the message id out of the subject anchor's handler
// href.
func parseUpstreamID(href string) (int64, bool) {
	m := handlerIDRe.FindStringSubmatch(href)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseResultDate converts the table's MM/DD/YY (or MM/DD/YYYY) date to ISO
// YYYY-MM-DD. Two-digit years are in the 2000s. Returns "" when the cell
// does not look like a date.
func parseResultDate(s string) string {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return ""
	}
	year := parts[2]
	if len(year) == 2 {
		year = "20" + year
	}
	m, err1 := strconv.Atoi(parts[0])
	d, err2 := strconv.Atoi(parts[1])
	y, err3 := strconv.Atoi(year)
	if err1 != nil || err2 != nil || err3 != nil {
		return ""
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// extractEmail pulls the address out of a "Name <email>" display string.
func extractEmail(display string) string {
	m := emailRe.FindStringSubmatch(display)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractMessageContent cleans the message window HTML. Header fields come
// from the first three spans; the body is the first top-level div that is
// not part of a quoted reply, cut off at the first nested blockquote. When
// no such div exists the full window text minus the header lines is used.
func extractMessageContent(windowHTML string) messageContent {
	doc, err := html.Parse(strings.NewReader(windowHTML))
	if err != nil {
		return messageContent{}
	}

	var mc messageContent
	spans := findAll(doc, elementMatcher("span"))
	if len(spans) > 3 {
		spans = spans[:3]
	}
	for _, span := range spans {
		text := strings.TrimSpace(nodeText(span))
		switch {
		case strings.HasPrefix(text, "From:"):
			mc.From = strings.TrimSpace(strings.TrimPrefix(text, "From:"))
		case strings.HasPrefix(text, "Date:"):
			mc.Date = strings.TrimSpace(strings.TrimPrefix(text, "Date:"))
		case strings.HasPrefix(text, "Subject:"):
			mc.Subject = strings.TrimSpace(strings.TrimPrefix(text, "Subject:"))
		}
	}

	mc.Body = extractBody(doc)
	if mc.Body == "" {
		mc.Body = fallbackBody(doc)
	}
	return mc
}

// extractBody finds the first div[dir=ltr] outside any blockquote and joins
// the text of its children, stopping at the first blockquote child. Quoted
// thread context below the author's own text is kept only up to that point.
func extractBody(doc *html.Node) string {
	divs := findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" && attrVal(n, "dir") == "ltr"
	})
	for _, div := range divs {
		if hasAncestor(div, "blockquote") {
			continue
		}
		var parts []string
		for child := div.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.ElementNode && child.Data == "blockquote" {
				break
			}
			if t := strings.TrimSpace(nodeText(child)); t != "" {
				parts = append(parts, t)
			}
		}
		if body := strings.Join(parts, " "); body != "" {
			return body
		}
	}
	return ""
}

// fallbackBody renders the whole window as text lines and drops the header
// lines.
func fallbackBody(doc *html.Node) string {
	var b strings.Builder
	renderText(doc, &b)

	var kept []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "From:") ||
			strings.HasPrefix(line, "Date:") ||
			strings.HasPrefix(line, "Subject:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

var blockTags = map[string]bool{
	"div": true, "p": true, "br": true, "li": true,
	"tr": true, "table": true, "blockquote": true,
}

func renderText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, b)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		b.WriteString("\n")
	}
}

// Node walking helpers.

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if match(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func elementMatcher(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func childElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	}
	return out
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func hasAncestor(n *html.Node, tag string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
