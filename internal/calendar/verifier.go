package calendar

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"tennisScrapper/internal/browser"
)

const availableIcon = `img[src*="calendar_available_outline.svg"]`

// Check is one selection signal. The site exposes several indicators and
// none of them is reliable on its own, so checks are heuristics tried in
// order of decreasing reliability; the first positive one wins.
type Check struct {
	Name string
	Test func(ctx context.Context, p browser.Page, doc *goquery.Document, cell *goquery.Selection, cellID string) bool
}

// DefaultChecks returns the selection signals in the order they are trusted
func DefaultChecks() []Check {
	return []Check{
		{Name: "marker", Test: markerCheck},
		{Name: "icon", Test: iconCheck},
		{Name: "relative", Test: relativeCheck},
		{Name: "script-registry", Test: scriptRegistryCheck},
		{Name: "hidden-input", Test: hiddenInputCheck},
	}
}

// Verifier decides whether a clicked cell registered as a selection
type Verifier struct {
	checks []Check
	log    *zap.Logger
}

// NewVerifier creates a verifier using DefaultChecks
func NewVerifier(log *zap.Logger) *Verifier {
	return &Verifier{checks: DefaultChecks(), log: log}
}

// Verify reports whether cellID is selected. It never fails: a page that
// cannot be read counts as not selected.
func (v *Verifier) Verify(ctx context.Context, p browser.Page, cellID string) (selected bool) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("❌ Panic while verifying selection", zap.String("cell", cellID), zap.Any("panic", r))
			selected = false
		}
	}()

	doc, err := browser.Document(ctx, p)
	if err != nil {
		v.log.Warn("verify: page unreadable", zap.String("cell", cellID), zap.Error(err))
		return false
	}
	cell := doc.Find(browser.IDSelector(cellID)).First()
	if cell.Length() == 0 {
		v.log.Debug("verify: cell not found", zap.String("cell", cellID))
		return false
	}

	for _, c := range v.checks {
		if c.Test(ctx, p, doc, cell, cellID) {
			v.log.Debug("✓ Selection verified", zap.String("cell", cellID), zap.String("signal", c.Name))
			return true
		}
	}
	return false
}

// IconSelected is the icon signal alone: a cell is selected once the site
// has removed its "available" outline icon.
func IconSelected(cell *goquery.Selection) bool {
	return cell.Find(availableIcon).Length() == 0
}

func hasMarker(s *goquery.Selection) bool {
	return s.AttrOr("data-selected", "") == "1" ||
		s.AttrOr("aria-selected", "") == "true" ||
		browser.HasClassToken(s, "selected") ||
		browser.HasClassToken(s, "active")
}

func markerCheck(_ context.Context, _ browser.Page, _ *goquery.Document, cell *goquery.Selection, _ string) bool {
	return cell.AttrOr("data-selected", "") == "1" ||
		browser.HasClassToken(cell, "selected") ||
		browser.HasClassToken(cell, "active")
}

func iconCheck(_ context.Context, _ browser.Page, _ *goquery.Document, cell *goquery.Selection, _ string) bool {
	return IconSelected(cell)
}

// relativeCheck looks at the enclosing row of the week table and at
// siblings that reference the cell by id
func relativeCheck(_ context.Context, _ browser.Page, _ *goquery.Document, cell *goquery.Selection, cellID string) bool {
	parents := cell.ParentsUntil("table").Filter("tr, td")
	if parents.FilterFunction(func(_ int, s *goquery.Selection) bool { return hasMarker(s) }).Length() > 0 {
		return true
	}
	return cell.Siblings().FilterFunction(func(_ int, s *goquery.Selection) bool {
		ref := s.AttrOr("data-cell-id", s.AttrOr("for", ""))
		return ref == cellID && hasMarker(s)
	}).Length() > 0
}

func scriptRegistryCheck(ctx context.Context, p browser.Page, _ *goquery.Document, _ *goquery.Selection, cellID string) bool {
	var found bool
	expr := fmt.Sprintf(`(() => {
		const id = %q;
		const has = v => { try { return !!v && JSON.stringify(v).includes(id); } catch (e) { return false; } };
		if (has(window.selectedCells) || has(document.selectedReservations) || has(window.reservationData)) return true;
		for (const form of document.querySelectorAll("form")) {
			for (const [, v] of new FormData(form).entries()) {
				if (String(v).includes(id)) return true;
			}
		}
		return false;
	})()`, cellID)
	if err := p.Evaluate(ctx, expr, &found); err != nil {
		return false
	}
	return found
}

func hiddenInputCheck(_ context.Context, _ browser.Page, doc *goquery.Document, _ *goquery.Selection, cellID string) bool {
	datePrefix, _, _ := strings.Cut(cellID, "_")
	return doc.Find(`input[type="hidden"]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.AttrOr("value", ""), cellID) ||
			(datePrefix != "" && strings.Contains(s.AttrOr("name", ""), datePrefix))
	}).Length() > 0
}
