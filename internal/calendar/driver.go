package calendar

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"tennisScrapper/internal/browser"
	"tennisScrapper/pkg/scraper"
)

const (
	cellSelector    = `#weekly td.available, table.calendar td.available, table#week-info td.available`
	captionSelector = `table#week-info caption, table.calendar caption`
)

// setReserv(this, "bcd", "icd", useYmd, start, end, n)
var reserveCall = regexp.MustCompile(`setReserv\([^,]+,\s*"(\d+)"\s*,\s*"(\d+)"\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)`)

// ErrNotOnWeekOne aborts a facility whose calendar cannot be reset
var ErrNotOnWeekOne = errors.New("calendar could not return to week one")

// Direction of a calendar traversal
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Outcome of visiting one eligible cell
type Outcome int

const (
	NotAttempted Outcome = iota
	Verified
	Unverified
	AlreadySelected
	KnownCancelled
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "clicked-verified"
	case Unverified:
		return "clicked-unverified"
	case AlreadySelected:
		return "already-selected"
	case KnownCancelled:
		return "known-cancelled"
	}
	return "not-attempted"
}

// Clicked reports whether the outcome counts towards the click flag
func (o Outcome) Clicked() bool {
	return o == Verified || o == Unverified
}

// Attempt records what happened to one cell on one visit
type Attempt struct {
	CellID    string
	Week      int
	Direction Direction
	Outcome   Outcome
	Method    string
}

// Visit records one week shown during a traversal
type Visit struct {
	Week      int
	Direction Direction
	Cells     int
	Loaded    bool
}

// Result of scanning one facility calendar
type Result struct {
	// Slots seen across both passes, duplicates included
	Slots    []scraper.Slot
	Attempts []Attempt
	Visits   []Visit
	// Clicked is true iff any cell was clicked in either pass
	Clicked bool
	// LastWeek is the furthest week reached going forward
	LastWeek int
}

// Selected returns the ids of cells whose latest attempt left them selected
func (r Result) Selected() []string {
	latest := map[string]Outcome{}
	var order []string
	for _, a := range r.Attempts {
		if _, ok := latest[a.CellID]; !ok {
			order = append(order, a.CellID)
		}
		latest[a.CellID] = a.Outcome
	}
	var ids []string
	for _, id := range order {
		if o := latest[id]; o == Verified || o == AlreadySelected {
			ids = append(ids, id)
		}
	}
	return ids
}

// KnownFunc reports whether a slot is already recorded elsewhere, meaning
// the user cancelled it on the site and it must not be selected again
type KnownFunc func(ctx context.Context, slot scraper.Slot) bool

// cell is an available calendar cell read from a week snapshot
type cell struct {
	id       string
	onclick  string
	selected bool
}

// visitor handles one cell; the return value says whether its slot is emitted
type visitor func(ctx context.Context, p browser.Page, week int, c cell, slot scraper.Slot) bool

// Driver runs the two-pass selection over a facility's weekly calendar
type Driver struct {
	nav    *Navigator
	verify *Verifier
	log    *zap.Logger

	// Known is optional
	Known       KnownFunc
	ClickSettle time.Duration
}

// NewDriver creates a driver
func NewDriver(nav *Navigator, verifier *Verifier, log *zap.Logger) *Driver {
	return &Driver{
		nav:         nav,
		verify:      verifier,
		log:         log,
		ClickSettle: 500 * time.Millisecond,
	}
}

type scan struct {
	res     Result
	clicked map[string]bool
}

func (s *scan) record(a Attempt) {
	s.res.Attempts = append(s.res.Attempts, a)
	if a.Outcome.Clicked() {
		s.res.Clicked = true
	}
}

// Scan selects every eligible cell of the facility shown on p going forward
// through the weeks, then walks back to re-select cells the site dropped.
// Per-week failures are logged and skipped; an error is returned only when
// the calendar could not be brought to week one.
func (d *Driver) Scan(ctx context.Context, p browser.Page) (Result, error) {
	start := time.Now()
	st := &scan{clicked: map[string]bool{}}

	d.nav.ExpandWeekly(ctx, p)
	if !d.nav.BackToWeekOne(ctx, p) {
		return st.res, ErrNotOnWeekOne
	}

	last := d.traverse(ctx, p, st, Forward, 0, d.selectVisitor(st))
	st.res.LastWeek = last
	d.traverse(ctx, p, st, Backward, last, d.repairVisitor(st))

	d.log.Info("✓ Calendar scan complete",
		zap.Int("slots", len(st.res.Slots)),
		zap.Int("selected", len(st.res.Selected())),
		zap.Bool("clicked", st.res.Clicked),
		zap.Int("last_week", last+1),
		zap.Duration("took", time.Since(start)))
	return st.res, ctx.Err()
}

// traverse visits weeks from start in dir until the sixth (or first) week
// or until the navigation control reports the boundary. It returns the
// week it stopped on.
func (d *Driver) traverse(ctx context.Context, p browser.Page, st *scan, dir Direction, start int, visit visitor) int {
	week := start
	for {
		if ctx.Err() != nil {
			return week
		}
		d.visitWeek(ctx, p, st, dir, week, visit)

		if dir == Forward {
			if week >= Weeks-1 {
				return week
			}
			if !d.nav.Next(ctx, p) {
				d.log.Info("⏹ Next week unavailable", zap.Int("week", week+1))
				return week
			}
			week++
			continue
		}
		if week <= 0 {
			return week
		}
		if !d.nav.Previous(ctx, p) {
			d.log.Info("⏹ Previous week unavailable", zap.Int("week", week+1))
			return week
		}
		week--
	}
}

func (d *Driver) visitWeek(ctx context.Context, p browser.Page, st *scan, dir Direction, week int, visit visitor) {
	log := d.log.With(zap.Int("week", week+1), zap.Stringer("direction", dir))

	if err := d.nav.WaitWeek(ctx, p); err != nil {
		log.Warn("⚠️ Week not loaded, skipping", zap.Error(err))
		st.res.Visits = append(st.res.Visits, Visit{Week: week, Direction: dir})
		return
	}
	doc, err := browser.Document(ctx, p)
	if err != nil {
		log.Warn("⚠️ Week unreadable, skipping", zap.Error(err))
		st.res.Visits = append(st.res.Visits, Visit{Week: week, Direction: dir})
		return
	}

	venueName, facilityName := parseCaption(doc)
	cells := readCells(doc)
	st.res.Visits = append(st.res.Visits, Visit{Week: week, Direction: dir, Cells: len(cells), Loaded: true})
	log.Debug("week loaded", zap.Int("available", len(cells)))

	for _, c := range cells {
		slot, ok := parseSlot(c, venueName, facilityName)
		if !ok {
			log.Debug("cell without reserve action", zap.String("cell", c.id))
			continue
		}
		if visit(ctx, p, week, c, slot) {
			st.res.Slots = append(st.res.Slots, slot)
		}
	}
}

// selectVisitor clicks every eligible cell that is not already selected.
// Clicking a selected cell would unselect it.
func (d *Driver) selectVisitor(st *scan) visitor {
	return func(ctx context.Context, p browser.Page, week int, c cell, slot scraper.Slot) bool {
		a := Attempt{CellID: c.id, Week: week, Direction: Forward}
		switch {
		case d.known(ctx, slot):
			a.Outcome = KnownCancelled
			st.record(a)
			d.log.Info("⏭ Skipping slot cancelled by user", zap.String("cell", c.id))
			return false
		case c.selected:
			a.Outcome = AlreadySelected
		case ctx.Err() != nil:
			a.Outcome = NotAttempted
		default:
			a.Outcome, a.Method = d.clickAndVerify(ctx, p, c.id)
			st.clicked[c.id] = true
		}
		st.record(a)
		d.log.Info("🎾 Cell visited", zap.String("cell", c.id), zap.Stringer("outcome", a.Outcome), zap.String("method", a.Method))
		return true
	}
}

// repairVisitor re-clicks cells clicked going forward that came back
// unselected. Everything else is only extracted.
func (d *Driver) repairVisitor(st *scan) visitor {
	return func(ctx context.Context, p browser.Page, week int, c cell, slot scraper.Slot) bool {
		if d.known(ctx, slot) {
			return false
		}
		if !st.clicked[c.id] || c.selected {
			return true
		}
		if d.iconSelected(ctx, p, c.id) {
			return true
		}

		d.log.Warn("🔁 Selection lost during navigation, re-clicking", zap.String("cell", c.id))
		a := Attempt{CellID: c.id, Week: week, Direction: Backward, Outcome: Unverified, Method: "click"}
		clickCtx := context.WithoutCancel(ctx)
		if err := p.Click(clickCtx, browser.IDSelector(c.id)); err != nil {
			d.log.Warn("re-click failed", zap.String("cell", c.id), zap.Error(err))
		} else {
			_ = p.Pause(clickCtx, d.ClickSettle)
			if d.verify.Verify(clickCtx, p, c.id) {
				a.Outcome = Verified
			}
		}
		st.record(a)
		return true
	}
}

// clickAndVerify escalates from a mouse click to a script click to the
// cell's own handler, stopping at the first one that verifies. It runs to
// completion even if ctx is cancelled.
func (d *Driver) clickAndVerify(ctx context.Context, p browser.Page, cellID string) (Outcome, string) {
	ctx = context.WithoutCancel(ctx)
	sel := browser.IDSelector(cellID)
	methods := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"click", p.Click},
		{"script", p.ClickScript},
		{"handler", p.CallHandler},
	}

	for _, m := range methods {
		if err := m.fn(ctx, sel); err != nil {
			d.log.Debug("click method failed", zap.String("cell", cellID), zap.String("method", m.name), zap.Error(err))
			continue
		}
		_ = p.Pause(ctx, d.ClickSettle)
		if d.verify.Verify(ctx, p, cellID) {
			return Verified, m.name
		}
	}
	// An attempted click may still have registered
	return Unverified, ""
}

func (d *Driver) iconSelected(ctx context.Context, p browser.Page, cellID string) bool {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return false
	}
	c := doc.Find(browser.IDSelector(cellID)).First()
	return c.Length() > 0 && IconSelected(c)
}

func (d *Driver) known(ctx context.Context, slot scraper.Slot) bool {
	return d.Known != nil && d.Known(ctx, slot)
}

func readCells(doc *goquery.Document) []cell {
	var cells []cell
	doc.Find(cellSelector).Each(func(_ int, s *goquery.Selection) {
		id := s.AttrOr("id", "")
		if id == "" {
			return
		}
		cells = append(cells, cell{
			id:       id,
			onclick:  s.AttrOr("onclick", ""),
			selected: IconSelected(s),
		})
	})
	return cells
}

func parseCaption(doc *goquery.Document) (venue, facility string) {
	fields := strings.Fields(browser.Text(doc.Find(captionSelector).First()))
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// parseSlot decodes the reserve call of a cell. Cells without one are not slots.
func parseSlot(c cell, venueName, facilityName string) (scraper.Slot, bool) {
	date, timeSlot, ok := scraper.SplitCellID(c.id)
	if !ok {
		return scraper.Slot{}, false
	}
	m := reserveCall.FindStringSubmatch(c.onclick)
	if m == nil {
		return scraper.Slot{}, false
	}
	start, err1 := strconv.Atoi(m[4])
	end, err2 := strconv.Atoi(m[5])
	if err1 != nil || err2 != nil {
		return scraper.Slot{}, false
	}

	venueID, facilityID := m[1], m[2]
	if venueName == "" {
		venueName = fmt.Sprintf("公園%s", venueID)
	}
	if facilityName == "" {
		facilityName = fmt.Sprintf("施設%s", facilityID)
	}
	return scraper.Slot{
		Date:         date,
		VenueID:      venueID,
		VenueName:    venueName,
		FacilityID:   facilityID,
		FacilityName: facilityName,
		StartTime:    start,
		EndTime:      end,
		StartDisplay: scraper.FormatTime(start),
		EndDisplay:   scraper.FormatTime(end),
		PurposeCode:  scraper.PurposeCode,
		PurposeClass: scraper.PurposeClassCode,
		CellID:       c.id,
		TimeSlot:     timeSlot,
	}, true
}
