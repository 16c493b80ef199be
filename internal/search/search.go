// Package search drives the vacancy search form and the results page
// controls that sit above the calendar.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"tennisScrapper/internal/browser"
	"tennisScrapper/pkg/config"
)

const (
	searchPanel     = "#free-search-cond"
	changeCondition = "#change-condition"
	monthOption     = `label[for="thismonth"]`
	venueSelect     = "#bname"
	facilityField   = "#iname"
	purposeSelect   = "#purpose"
	searchButton    = "#btn-search"

	facilityTab    = "#tab-facility"
	facilitySelect = "#facility-select"
	loadMoreButton = "#unreserved-moreBtn"
	notFoundBox    = "#unreserved-notfound"
	resultsBox     = "#unreserved-list"
	loadingWeek    = "#loadingweek"
)

// Pages the search form can be filled on
var searchPages = []string{"index.jsp", "UserAttestation", "rsvWOpeHome", "UnreservedDaily", "InstSrchVacant"}

var (
	ErrNotSearchPage  = errors.New("search form not available on this page")
	ErrResultsMissing = errors.New("search results did not render")
)

// Facility is one court of a venue as listed by the results page
type Facility struct {
	ID   string
	Name string
}

// DefaultFacility is used when the results page lists no courts
func DefaultFacility(venueID string) Facility {
	return Facility{ID: venueID + "0010", Name: "庭球場Ａ"}
}

// Driver fills the search form on the main page
type Driver struct {
	log *zap.Logger

	ResultsTimeout time.Duration
	Settle         time.Duration
	// MaxLoadMore bounds clicks on the load more control
	MaxLoadMore int
}

// NewDriver creates a search driver
func NewDriver(log *zap.Logger) *Driver {
	return &Driver{
		log:            log,
		ResultsTimeout: 30 * time.Second,
		Settle:         time.Second,
		MaxLoadMore:    5,
	}
}

// Search submits the full form for venue and waits for the results. The
// field order follows the site's dependencies: date range, park, court,
// activity. facilityID may be empty to let the site pick the first court.
func (d *Driver) Search(ctx context.Context, p browser.Page, venue config.Venue, facilityID string) error {
	log := d.log.With(zap.String("venue", venue.Name))
	if err := d.ensureSearchPage(ctx, p); err != nil {
		return err
	}
	d.expandForm(ctx, p)

	log.Info("🔍 Searching vacancies", zap.String("facility", facilityID))
	if err := p.Click(ctx, monthOption); err != nil {
		return fmt.Errorf("pick date range: %w", err)
	}
	if err := p.Select(ctx, venueSelect, venue.AreaCode); err != nil {
		return fmt.Errorf("pick venue %s: %w", venue.AreaCode, err)
	}
	_ = p.Pause(ctx, d.Settle)
	if facilityID != "" {
		// The court list is filled by the park change, it may lag behind
		if err := p.Select(ctx, facilityField, facilityID); err != nil {
			log.Warn("court not selectable, searching whole venue", zap.String("facility", facilityID), zap.Error(err))
		}
	}
	if err := p.Select(ctx, purposeSelect, config.TennisPurpose); err != nil {
		return fmt.Errorf("pick activity: %w", err)
	}
	if err := p.Click(ctx, searchButton); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}

	if err := p.WaitReady(ctx, d.ResultsTimeout); err != nil {
		log.Debug("results page not ready", zap.Error(err))
	}
	rendered := browser.Poll(ctx, p, d.ResultsTimeout, func(doc *goquery.Document) bool {
		return doc.Find(resultsBox+", "+notFoundBox).Length() > 0
	})
	if !rendered {
		return ErrResultsMissing
	}

	d.EnsureFacilityTab(ctx, p)
	d.LoadMore(ctx, p)
	return nil
}

// ensureSearchPage reloads the current page when it does not carry the form.
// The main page is never navigated, that would drop the site's flow state.
func (d *Driver) ensureSearchPage(ctx context.Context, p browser.Page) error {
	url, err := p.Location(ctx)
	if err != nil {
		return fmt.Errorf("read location: %w", err)
	}
	if isSearchPage(url) {
		return nil
	}
	d.log.Warn("not on a search page, reloading", zap.String("url", url))
	if err := p.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	_ = p.Pause(ctx, d.Settle)
	if url, err = p.Location(ctx); err != nil || !isSearchPage(url) {
		return fmt.Errorf("%w: %s", ErrNotSearchPage, url)
	}
	return nil
}

func isSearchPage(url string) bool {
	for _, s := range searchPages {
		if strings.Contains(url, s) {
			return true
		}
	}
	return false
}

// expandForm opens the search panel the results page keeps collapsed
func (d *Driver) expandForm(ctx context.Context, p browser.Page) {
	visible, err := p.Visible(ctx, searchPanel)
	if err != nil || visible {
		return
	}
	d.log.Debug("expanding search conditions")
	if err := p.Click(ctx, changeCondition); err != nil {
		d.log.Warn("expand search conditions", zap.Error(err))
		return
	}
	_ = p.Pause(ctx, d.Settle)
}

// EnsureFacilityTab switches the results to the by-facility view. It
// reports whether that view is active afterwards.
func (d *Driver) EnsureFacilityTab(ctx context.Context, p browser.Page) bool {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return false
	}
	tab := doc.Find(facilityTab).First()
	if tab.Length() == 0 {
		tab = browser.FirstByText(doc, "#free-info-nav a", "施設ごと")
	}
	if tab == nil || tab.Length() == 0 {
		d.log.Debug("facility tab not found")
		return false
	}
	if browser.HasClass(tab, "active") {
		return true
	}

	sel := facilityTab
	if id := tab.AttrOr("id", ""); id != "" {
		sel = browser.IDSelector(id)
	}
	d.log.Info("📑 Switching results to facility view")
	if err := p.Click(ctx, sel); err != nil {
		d.log.Warn("switch to facility view", zap.Error(err))
		return false
	}
	_ = p.Pause(ctx, d.Settle)
	return true
}

// LoadMore clicks the load more control until it disappears, at most
// MaxLoadMore times, and returns the number of clicks.
func (d *Driver) LoadMore(ctx context.Context, p browser.Page) int {
	clicks := 0
	for clicks < d.MaxLoadMore {
		visible, err := p.Visible(ctx, loadMoreButton)
		if err != nil || !visible {
			break
		}
		if err := p.Click(ctx, loadMoreButton); err != nil {
			d.log.Warn("load more dates", zap.Error(err))
			break
		}
		clicks++
		_ = p.Pause(ctx, d.Settle)
	}
	if clicks > 0 {
		d.log.Debug("loaded more dates", zap.Int("clicks", clicks))
	}
	return clicks
}

// SwitchFacility changes the court on an already rendered results page
// without resubmitting the form.
func (d *Driver) SwitchFacility(ctx context.Context, p browser.Page, facilityID string) error {
	d.log.Info("🔄 Switching facility", zap.String("facility", facilityID))
	if err := p.Select(ctx, facilitySelect, facilityID); err != nil {
		return fmt.Errorf("switch facility %s: %w", facilityID, err)
	}
	if err := p.WaitHidden(ctx, loadingWeek, d.ResultsTimeout); err != nil {
		d.log.Debug("loading indicator still shown", zap.Error(err))
	}
	return p.Pause(ctx, d.Settle)
}

// HasResults reports whether the search found vacancies. The site fills
// both containers and hides one of them, so visibility decides. When both
// or neither are shown, the number of result controls decides.
func (d *Driver) HasResults(ctx context.Context, p browser.Page) (bool, error) {
	notFound, err := p.Visible(ctx, notFoundBox)
	if err != nil {
		return false, err
	}
	list, err := p.Visible(ctx, resultsBox)
	if err != nil {
		return false, err
	}
	switch {
	case list && !notFound:
		return true, nil
	case notFound && !list:
		return false, nil
	}

	doc, err := browser.Document(ctx, p)
	if err != nil {
		return false, err
	}
	n := doc.Find(resultsBox + " button, td.available").Length()
	d.log.Debug("ambiguous result containers", zap.Int("controls", n))
	return n > 0, nil
}

// Facilities lists the tennis courts offered on the current page, falling
// back to the venue's first court.
func (d *Driver) Facilities(ctx context.Context, p browser.Page, venueID string) []Facility {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		d.log.Warn("read facility list", zap.Error(err))
		return []Facility{DefaultFacility(venueID)}
	}
	facilities := ListFacilities(doc)
	if len(facilities) == 0 {
		d.log.Warn("no courts listed, using default", zap.String("venue", venueID))
		return []Facility{DefaultFacility(venueID)}
	}
	return facilities
}

// ListFacilities reads the court options of the results or search form dropdown
func ListFacilities(doc *goquery.Document) []Facility {
	options := doc.Find(facilitySelect + " option")
	if options.Length() == 0 {
		options = doc.Find(facilityField + " option")
	}
	var out []Facility
	options.Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("value", "")
		name := browser.Text(s)
		if id == "" || id == "0" || !strings.Contains(name, "庭球場") {
			return
		}
		out = append(out, Facility{ID: id, Name: name})
	})
	return out
}

// CurrentFacility returns the court the calendar shows, or "". The live
// dropdown value is preferred since selecting an option does not rewrite the
// selected attribute in the markup.
func (d *Driver) CurrentFacility(ctx context.Context, p browser.Page) string {
	var value string
	expr := fmt.Sprintf(`(() => { const el = document.querySelector(%q); return el ? el.value : ""; })()`, facilitySelect)
	if err := p.Evaluate(ctx, expr, &value); err == nil && value != "" {
		return value
	}
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return ""
	}
	return doc.Find(facilitySelect + " option[selected]").First().AttrOr("value", "")
}
