// Package browsertest provides an in-memory reservation site that
// implements browser.Page, for driving the booking components in tests.
//
// The site renders the same markup shapes as the live system and resolves
// every selector against its own rendered html with goquery, so a component
// only works against it if its selectors would also match the real page.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"tennisScrapper/internal/browser"
)

// ErrUnsupported is returned for operations the site cannot simulate
var ErrUnsupported = errors.New("not supported by simulated site")

// Weeks is the number of navigable calendar weeks
const Weeks = 6

// DialogMessage is the native confirm shown before the final booking
const DialogMessage = "予約申込処理を行います。よろしいですか？"

// Cell is one calendar entry of a facility
type Cell struct {
	Week      int // 0..5
	Day       int // 0..6 from the first day of the week
	TimeCode  string
	Start     int // HHMM
	End       int // HHMM
	Available bool
	Selected  bool

	// RawOnclick replaces the generated setReserv call when set
	RawOnclick string
	// Unresponsive swallows this many clicks before one takes effect
	Unresponsive int
	// DropOnLeave loses the selection once when the calendar leaves its week
	DropOnLeave bool

	booked bool
}

// Facility is one court
type Facility struct {
	ID    string
	Name  string
	Cells []*Cell
	// LastWeek is the last week index the next control reaches
	LastWeek int
}

// AddCell adds an available cell and returns it for further tuning
func (f *Facility) AddCell(week, day int, timeCode string, start, end int) *Cell {
	c := &Cell{Week: week, Day: day, TimeCode: timeCode, Start: start, End: end, Available: true}
	f.Cells = append(f.Cells, c)
	return c
}

// Venue is one park
type Venue struct {
	ID         string
	Name       string
	AreaCode   string
	Facilities []*Facility
}

// AddFacility adds a facility reaching all six weeks
func (v *Venue) AddFacility(id, name string) *Facility {
	f := &Facility{ID: id, Name: name, LastWeek: Weeks - 1}
	v.Facilities = append(v.Facilities, f)
	return f
}

type staticPage struct {
	url, title, body string
}

// Site is the simulated reservation system. It implements browser.Page and
// browser.PageSource; the site is its own single main page.
type Site struct {
	mu sync.Mutex

	BaseURL           string
	Today             time.Time
	UserID            string
	Password          string
	Venues            []*Venue
	ReservationNumber string

	// MarkSelected renders class and data-selected markers on selected cells
	MarkSelected bool
	// HiddenInputs renders a hidden input per selected cell
	HiddenInputs bool
	// IgnoreSubmit leaves the confirmation page unchanged on the final click
	IgnoreSubmit bool
	// NumberInTable renders the reservation number in a header/value table
	NumberInTable bool
	// BrokenDialogListener makes AcceptDialogs ineffective
	BrokenDialogListener bool
	// TimeoutOnSwitch shows the session timeout page the first time the
	// facility dropdown selects one of these facility ids
	TimeoutOnSwitch map[string]bool
	// RejectLogin fails every credential submission
	RejectLogin bool
	// DroppedWeekClicks ignores this many week navigation clicks
	DroppedWeekClicks int
	// OpenOnDateTab opens results on the by-date tab
	OpenOnDateTab bool
	// MoreDates is how many times the load-more control stays visible
	MoreDates int
	// NoCalendar renders results without the weekly table
	NoCalendar bool
	// KeepWeekOnSwitch leaves the calendar week unchanged on facility switch
	KeepWeekOnSwitch bool
	// CollapsedCalendar renders the weekly panel collapsed after a search
	CollapsedCalendar bool

	page        string
	url         string
	loggedIn    bool
	venue       *Venue
	facility    *Facility
	week        int
	dateTab     bool
	moreLeft    int
	weeklyOpen  bool
	formOpen    bool
	form        map[string]string
	termsAgreed bool
	loginError  bool
	dialog      string
	autoAccept  bool
	static      *staticPage
	closed      bool

	Events []string
	Logins int
}

// NewSite returns a logged-out site showing a blank page
func NewSite(today time.Time) *Site {
	return &Site{
		BaseURL:           "https://reserve.example.jp/web",
		Today:             time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()),
		UserID:            "12345678",
		Password:          "secret",
		ReservationNumber: "2026101900",
		TimeoutOnSwitch:   map[string]bool{},
		page:              "blank",
		url:               "about:blank",
		form:              map[string]string{},
	}
}

// AddVenue adds a park
func (s *Site) AddVenue(id, name, areaCode string) *Venue {
	v := &Venue{ID: id, Name: name, AreaCode: areaCode}
	s.Venues = append(s.Venues, v)
	return v
}

// StartLoggedIn puts the site on the home page with a live session
func (s *Site) StartLoggedIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = true
	s.goHome("rsvWUserAttestationLoginAction.do")
}

// ShowResults logs in and renders the results for a venue and facility,
// as if a search had been submitted
func (s *Site) ShowResults(venueID, facilityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = true
	for _, v := range s.Venues {
		if v.ID != venueID {
			continue
		}
		s.venue = v
		s.facility = v.Facilities[0]
		for _, f := range v.Facilities {
			if f.ID == facilityID {
				s.facility = f
			}
		}
	}
	s.openResults()
}

// Show replaces the rendered page with fixed content
func (s *Site) Show(url, title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.static = &staticPage{url: url, title: title, body: body}
}

// Week returns the calendar week currently displayed
func (s *Site) Week() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.week
}

// CurrentPage returns the simulated page kind, e.g. "results" or "complete"
func (s *Site) CurrentPage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// LoggedIn reports the server side session state
func (s *Site) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// SetWeek moves the calendar without going through the controls
func (s *Site) SetWeek(w int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.week = w
}

// ExpireSession drops the server side session; the next action shows the
// timeout page
func (s *Site) ExpireSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.showTimeout()
}

// Count returns how many recorded events equal ev
func (s *Site) Count(ev string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.Events {
		if e == ev {
			n++
		}
	}
	return n
}

// CountPrefix returns how many recorded events start with prefix
func (s *Site) CountPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.Events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// CellID returns the DOM id the site renders for c
func (s *Site) CellID(c *Cell) string {
	return fmt.Sprintf("%s_%s", s.cellDate(c).Format("20060102"), c.TimeCode)
}

func (s *Site) cellDate(c *Cell) time.Time {
	return s.Today.AddDate(0, 0, c.Week*7+c.Day)
}

func (s *Site) record(format string, args ...any) {
	s.Events = append(s.Events, fmt.Sprintf(format, args...))
}

// MainPage implements browser.PageSource. A closed page is reopened blank
// with the session cookies intact.
func (s *Site) MainPage(ctx context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.closed = false
		s.page, s.url, s.static = "blank", "about:blank", nil
	}
	return s, nil
}

var _ browser.Page = (*Site)(nil)
var _ browser.PageSource = (*Site)(nil)

func (s *Site) Location(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", browser.ErrPageClosed
	}
	if s.static != nil {
		return s.static.url, nil
	}
	return s.url, nil
}

func (s *Site) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", browser.ErrPageClosed
	}
	if s.static != nil {
		return s.static.title, nil
	}
	return s.title(), nil
}

func (s *Site) HTML(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", browser.ErrPageClosed
	}
	return s.render(), nil
}

func (s *Site) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrPageClosed
	}
	s.static = nil
	s.record("navigate:%s", url)
	if url == s.BaseURL+"/index.jsp" {
		s.goHome("index.jsp")
		return nil
	}
	// Deep links lose the server side flow
	s.page, s.url = "error", url
	return nil
}

func (s *Site) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrPageClosed
	}
	s.record("reload")
	return nil
}

func (s *Site) Visible(ctx context.Context, sel string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, browser.ErrPageClosed
	}
	node, err := s.find(sel)
	if err != nil {
		return false, nil
	}
	return displayed(node), nil
}

func (s *Site) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	ok, err := s.Visible(ctx, sel)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wait visible %s: %w", sel, context.DeadlineExceeded)
	}
	return nil
}

func (s *Site) WaitHidden(ctx context.Context, sel string, timeout time.Duration) error {
	ok, err := s.Visible(ctx, sel)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("wait hidden %s: %w", sel, context.DeadlineExceeded)
	}
	return nil
}

func (s *Site) WaitReady(ctx context.Context, timeout time.Duration) error {
	if s.Closed() {
		return browser.ErrPageClosed
	}
	return nil
}

func (s *Site) Click(ctx context.Context, sel string) error {
	return s.activate(sel, "click")
}

func (s *Site) ClickScript(ctx context.Context, sel string) error {
	return s.activate(sel, "jsclick")
}

func (s *Site) CallHandler(ctx context.Context, sel string) error {
	return s.activate(sel, "handler")
}

func (s *Site) Fill(ctx context.Context, sel, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.find(sel)
	if err != nil {
		return err
	}
	if goquery.NodeName(node) != "input" {
		return fmt.Errorf("fill %s: not an input", sel)
	}
	key := node.AttrOr("id", node.AttrOr("name", ""))
	s.form[key] = value
	s.record("fill:%s", key)
	return nil
}

func (s *Site) Select(ctx context.Context, sel, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, err := s.find(sel)
	if err != nil {
		return err
	}
	if goquery.NodeName(node) != "select" {
		return fmt.Errorf("select %s: not a select", sel)
	}
	if node.Find(fmt.Sprintf(`option[value="%s"]`, value)).Length() == 0 {
		return fmt.Errorf("select %s: no option %q", sel, value)
	}
	id := node.AttrOr("id", "")
	s.record("select:%s=%s", id, value)
	s.onSelect(id, value)
	return nil
}

func (s *Site) Evaluate(ctx context.Context, expr string, res any) error {
	return ErrUnsupported
}

func (s *Site) AcceptDialogs(ctx context.Context) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.BrokenDialogListener {
		s.autoAccept = true
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.autoAccept = false
	}
}

func (s *Site) WaitDialog(ctx context.Context, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dialog == "" {
		return "", fmt.Errorf("no dialog within %s", timeout)
	}
	msg := s.dialog
	s.dialog = ""
	s.record("dialog:accepted")
	s.completeBooking()
	return msg, nil
}

func (s *Site) Pause(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func (s *Site) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func (s *Site) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Site) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// find resolves sel against the rendered page
func (s *Site) find(sel string) (*goquery.Selection, error) {
	if s.closed {
		return nil, browser.ErrPageClosed
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.render()))
	if err != nil {
		return nil, err
	}
	node := doc.Find(sel).First()
	if node.Length() == 0 {
		return nil, fmt.Errorf("no element matches %s", sel)
	}
	return node, nil
}

func displayed(node *goquery.Selection) bool {
	hidden := false
	node.AddSelection(node.Parents()).Each(func(_ int, n *goquery.Selection) {
		style := strings.ReplaceAll(n.AttrOr("style", ""), " ", "")
		if strings.Contains(style, "display:none") {
			hidden = true
		}
	})
	return !hidden
}
