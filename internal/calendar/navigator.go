package calendar

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"tennisScrapper/internal/browser"
)

// Weeks is how far ahead the site lets the calendar navigate
const Weeks = 6

const (
	weekTable      = "table#week-info"
	loadingWeek    = "#loadingweek"
	weeklyPanel    = "#weekly"
	weeklyToggle   = `#weekly button[data-toggle="collapse"]`
	nextWeekButton = "#next-week"
	prevWeekButton = "#last-week"
)

var (
	nextWeekSelectors = []string{nextWeekButton, `[onclick*="getWeekInfoAjax(4)"]`}
	prevWeekSelectors = []string{prevWeekButton, `[onclick*="getWeekInfoAjax(3)"]`}
)

// ErrTableNotReady means the week table did not render in time
var ErrTableNotReady = errors.New("week table not ready")

// Navigator drives the week controls. The calendar has no URL state, so
// position is always re-read from the DOM.
type Navigator struct {
	log *zap.Logger
	// Now supplies today's date in the site's timezone
	Now func() time.Time

	LoadingTimeout time.Duration
	TableTimeout   time.Duration
	Settle         time.Duration
}

// NewNavigator creates a navigator with the site's usual wait bounds
func NewNavigator(log *zap.Logger, now func() time.Time) *Navigator {
	return &Navigator{
		log:            log,
		Now:            now,
		LoadingTimeout: 30 * time.Second,
		TableTimeout:   15 * time.Second,
		Settle:         2 * time.Second,
	}
}

// IsOnWeekOne reports whether today's date is among the rendered cell ids.
// No table means no evidence, which is false.
func (n *Navigator) IsOnWeekOne(ctx context.Context, p browser.Page) bool {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		n.log.Debug("week check: page unreadable", zap.Error(err))
		return false
	}
	return n.weekOne(doc)
}

func (n *Navigator) weekOne(doc *goquery.Document) bool {
	table := doc.Find(weekTable)
	if table.Length() == 0 {
		return false
	}
	today := n.Now().Format("20060102")
	found := false
	table.Find("td[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prefix, _, _ := strings.Cut(s.AttrOr("id", ""), "_")
		found = prefix == today
		return !found
	})
	return found
}

// Next moves one week forward. False means the control is disabled or
// missing, i.e. the last available week is shown.
func (n *Navigator) Next(ctx context.Context, p browser.Page) bool {
	return n.move(ctx, p, "next", nextWeekSelectors)
}

// Previous moves one week back. False means the first week is shown.
func (n *Navigator) Previous(ctx context.Context, p browser.Page) bool {
	return n.move(ctx, p, "previous", prevWeekSelectors)
}

func (n *Navigator) move(ctx context.Context, p browser.Page, dir string, selectors []string) bool {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		n.log.Warn("week navigation: page unreadable", zap.String("direction", dir), zap.Error(err))
		return false
	}

	sel := ""
	for _, s := range selectors {
		if doc.Find(s).Length() > 0 {
			sel = s
			break
		}
	}
	if sel == "" {
		n.log.Debug("week control missing", zap.String("direction", dir))
		return false
	}
	if _, disabled := doc.Find(sel).First().Attr("disabled"); disabled {
		n.log.Debug("week control disabled", zap.String("direction", dir))
		return false
	}
	if visible, err := p.Visible(ctx, sel); err != nil || !visible {
		n.log.Debug("week control hidden", zap.String("direction", dir), zap.Error(err))
		return false
	}

	if err := p.Click(ctx, sel); err != nil {
		n.log.Warn("week control click failed", zap.String("direction", dir), zap.Error(err))
		return false
	}
	if err := n.WaitWeek(ctx, p); err != nil {
		// The traversal treats the unloaded week as empty
		n.log.Warn("week did not settle after navigation", zap.String("direction", dir), zap.Error(err))
	}
	return true
}

// WaitWeek waits for the AJAX loader to clear and the week table to have rows
func (n *Navigator) WaitWeek(ctx context.Context, p browser.Page) error {
	if err := p.WaitHidden(ctx, loadingWeek, n.LoadingTimeout); err != nil {
		n.log.Debug("loading indicator still shown", zap.Error(err))
	}
	if err := p.Pause(ctx, n.Settle); err != nil {
		return err
	}
	if err := p.WaitVisible(ctx, weekTable, n.TableTimeout); err != nil {
		return errors.Join(ErrTableNotReady, err)
	}
	populated := browser.Poll(ctx, p, 10*time.Second, func(doc *goquery.Document) bool {
		return doc.Find(weekTable + " tbody tr").Length() > 0
	})
	if !populated {
		return ErrTableNotReady
	}
	return nil
}

// BackToWeekOne clicks "previous week" until week one is confirmed, at most
// Weeks times. A disabled or missing control means week one is shown.
func (n *Navigator) BackToWeekOne(ctx context.Context, p browser.Page) bool {
	if n.IsOnWeekOne(ctx, p) {
		return true
	}
	for i := 0; i < Weeks; i++ {
		if !n.Previous(ctx, p) {
			if !n.IsOnWeekOne(ctx, p) {
				n.log.Warn("⚠️ Previous week unavailable but today is not shown, assuming first week")
			}
			return true
		}
		if n.IsOnWeekOne(ctx, p) {
			n.log.Debug("back on week one", zap.Int("clicks", i+1))
			return true
		}
	}
	return n.IsOnWeekOne(ctx, p)
}

// ExpandWeekly opens the weekly panel when the site rendered it collapsed
func (n *Navigator) ExpandWeekly(ctx context.Context, p browser.Page) {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return
	}
	panel := doc.Find(weeklyPanel).First()
	if panel.Length() == 0 || !browser.HasClass(panel, "collapse") || browser.HasClass(panel, "show") {
		return
	}
	n.log.Info("📂 Expanding weekly calendar")
	if err := p.Click(ctx, weeklyToggle); err != nil {
		n.log.Warn("expand weekly calendar", zap.Error(err))
		return
	}
	_ = p.Pause(ctx, n.Settle)
}
