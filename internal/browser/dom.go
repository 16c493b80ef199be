package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Document snapshots the page markup for read-only querying
func Document(ctx context.Context, p Page) (*goquery.Document, error) {
	html, err := p.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	return doc, nil
}

// PollInterval is the spacing between Poll checks
const PollInterval = 250 * time.Millisecond

// Poll re-reads the page until cond holds or timeout worth of checks ran out.
// The bound is a number of checks, so a page whose Pause returns at once
// still terminates.
func Poll(ctx context.Context, p Page, timeout time.Duration, cond func(*goquery.Document) bool) bool {
	checks := int(timeout/PollInterval) + 1
	for i := 0; i < checks; i++ {
		if ctx.Err() != nil {
			return false
		}
		if doc, err := Document(ctx, p); err == nil && cond(doc) {
			return true
		}
		if i < checks-1 {
			if err := p.Pause(ctx, PollInterval); err != nil {
				return false
			}
		}
	}
	return false
}

// Text returns the whitespace-trimmed text of a selection
func Text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}

// HasClass reports whether any class token of s contains part
func HasClass(s *goquery.Selection, part string) bool {
	for _, c := range strings.Fields(s.AttrOr("class", "")) {
		if strings.Contains(strings.ToLower(c), part) {
			return true
		}
	}
	return false
}

// HasClassToken reports whether s carries the class name exactly
func HasClassToken(s *goquery.Selection, name string) bool {
	for _, c := range strings.Fields(s.AttrOr("class", "")) {
		if c == name {
			return true
		}
	}
	return false
}

// IDSelector returns a selector for an element id, quoting ids that are
// not valid CSS identifiers such as "20261020_10".
func IDSelector(id string) string {
	return fmt.Sprintf(`[id="%s"]`, strings.ReplaceAll(id, `"`, `\"`))
}

// FirstByText returns the first element matched by sel whose text or value
// contains any of the needles
func FirstByText(doc *goquery.Document, sel string, needles ...string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := Text(s) + " " + s.AttrOr("value", "")
		for _, n := range needles {
			if strings.Contains(text, n) {
				found = s
				return false
			}
		}
		return true
	})
	return found
}
