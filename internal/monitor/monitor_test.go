package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tennisScrapper/internal/booking"
	"tennisScrapper/internal/browser/browsertest"
	"tennisScrapper/internal/calendar"
	"tennisScrapper/internal/login"
	"tennisScrapper/internal/search"
	"tennisScrapper/internal/status"
	"tennisScrapper/internal/store"
	"tennisScrapper/pkg/config"
	"tennisScrapper/pkg/scraper"
)

var (
	today = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	park  = config.Venue{ID: "1040", Name: "しながわ区民公園", AreaCode: "1200_1040", Priority: 1}
)

type notification struct {
	venue, number string
	slots         []scraper.Slot
}

type recorder struct {
	mu    sync.Mutex
	sent  []notification
	event []status.Event
}

func (r *recorder) NotifyReservation(ctx context.Context, venue, number string, slots []scraper.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{venue, number, slots})
	return nil
}

func (r *recorder) record(ev status.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.event = append(r.event, ev)
}

func (r *recorder) kinds(k status.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.event {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

// newSite has one park with courts A (open cell in week one) and B (open
// cell in week three) plus a non tennis facility
func newSite(t *testing.T) (*browsertest.Site, *browsertest.Facility, *browsertest.Facility) {
	t.Helper()
	site := browsertest.NewSite(today)
	v := site.AddVenue(park.ID, park.Name, park.AreaCode)
	a := v.AddFacility("10400010", "庭球場Ａ")
	a.AddCell(0, 2, "10", 900, 1100)
	b := v.AddFacility("10400020", "庭球場Ｂ")
	b.AddCell(2, 3, "40", 1500, 1700)
	v.AddFacility("10400090", "多目的広場")
	return site, a, b
}

func newScanner(t *testing.T, site *browsertest.Site, st store.Store, rec *recorder) *Scanner {
	t.Helper()
	log := zaptest.NewLogger(t)

	lh := login.NewHandler(site, site.BaseURL, login.Credentials{UserID: site.UserID, Password: site.Password}, log)
	lh.Settle = 0
	sd := search.NewDriver(log)
	sd.Settle = 0
	sd.ResultsTimeout = time.Second
	nav := calendar.NewNavigator(log, func() time.Time { return today })
	nav.Settle = 0
	cd := calendar.NewDriver(nav, calendar.NewVerifier(log), log)
	cd.ClickSettle = 0
	bk := booking.NewBooker(log, 2)
	bk.Settle = 0
	bk.PageTimeout = time.Second
	bk.DialogTimeout = time.Second

	deps := Deps{Login: lh, Search: sd, Calendar: cd, Booker: bk, Store: st}
	if rec != nil {
		deps.Notifier = rec
	}
	s := New(deps, []config.Venue{park}, log)
	s.Policy = login.RetryPolicy{MaxAttempts: 2, Interval: time.Millisecond}
	s.Interval = time.Millisecond
	if rec != nil {
		s.OnStatus = rec.record
	}
	return s
}

func TestScanAllBooksSelection(t *testing.T) {
	site, _, _ := newSite(t)
	site.StartLoggedIn()
	st := store.NewMemory()
	rec := &recorder{}
	s := newScanner(t, site, st, rec)

	rep, err := s.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Venues, 1)
	assert.NotEmpty(t, rep.RunID)

	vr := rep.Venues[0]
	require.NoError(t, vr.Err)
	require.Len(t, vr.Facilities, 2, "only tennis courts are scanned")
	assert.Equal(t, "10400010", vr.Facilities[0].Facility.ID)
	assert.True(t, vr.Clicked)
	assert.Len(t, vr.Slots, 2)

	require.NotNil(t, vr.Booking)
	assert.Equal(t, "2026101900", vr.Booking.ReservationNumber)
	assert.Len(t, vr.Booked, 2)
	assert.Equal(t, 1, site.Count("click:btn-search"), "courts after the first are switched, not searched")

	records, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.Len(t, rec.sent, 1)
	assert.Equal(t, "2026101900", rec.sent[0].number)
	assert.Equal(t, 1, rec.kinds(status.ScanStarted))
	assert.Equal(t, 1, rec.kinds(status.Booked))
	assert.Equal(t, 2, rec.kinds(status.SlotsFound))
}

func TestScanAllWithoutOpenings(t *testing.T) {
	site := browsertest.NewSite(today)
	v := site.AddVenue(park.ID, park.Name, park.AreaCode)
	v.AddFacility("10400010", "庭球場Ａ")
	site.StartLoggedIn()
	rec := &recorder{}

	rep, err := newScanner(t, site, store.NewMemory(), rec).ScanAll(context.Background())
	require.NoError(t, err)
	vr := rep.Venues[0]
	assert.False(t, vr.Clicked)
	assert.Empty(t, vr.Slots)
	assert.Nil(t, vr.Booking, "booking is gated on the click flag")
	assert.Equal(t, 0, site.CountPrefix("click:btn-go"))
	assert.Empty(t, rec.sent)
}

func TestScanAllRecoversTimeoutWithOneLogin(t *testing.T) {
	site, _, _ := newSite(t)
	site.StartLoggedIn()
	site.TimeoutOnSwitch["10400020"] = true
	s := newScanner(t, site, store.NewMemory(), nil)
	s.BookingEnabled = false

	rep, err := s.ScanAll(context.Background())
	require.NoError(t, err)
	vr := rep.Venues[0]
	require.Len(t, vr.Facilities, 3, "court A is scanned again after the re-login")

	b := vr.Facilities[1]
	assert.NoError(t, b.Err)
	assert.True(t, b.Retried)
	require.Len(t, scraper.Dedupe(b.Slots), 1)
	assert.Equal(t, 1500, b.Slots[0].StartTime)
	assert.Equal(t, 1, site.Logins, "exactly one login before the court is retried")
	assert.Equal(t, 1, site.Count("select:iname=10400020"), "the court is retried with a full search")
}

func TestScanAllReselectsCourtsDroppedByRelogin(t *testing.T) {
	site, a, b := newSite(t)
	site.StartLoggedIn()
	site.TimeoutOnSwitch["10400020"] = true
	st := store.NewMemory()
	rec := &recorder{}
	s := newScanner(t, site, st, rec)

	rep, err := s.ScanAll(context.Background())
	require.NoError(t, err)
	vr := rep.Venues[0]
	require.NoError(t, vr.Err)
	require.Len(t, vr.Facilities, 3)
	assert.Equal(t, 1, site.Count("login:dropped:20261021_10"), "the re-login cleared court A")

	first := vr.Facilities[0]
	assert.True(t, first.Lost)
	assert.False(t, first.Clicked)
	assert.Empty(t, first.Selected)

	again := vr.Facilities[2]
	assert.Equal(t, "10400010", again.Facility.ID)
	assert.True(t, again.Clicked)
	assert.Equal(t, []string{"20261021_10"}, again.Selected)

	require.NotNil(t, vr.Booking)
	require.Len(t, vr.Booked, 2)
	assert.Equal(t, 2, vr.Booking.Lines)
	for _, c := range append(a.Cells, b.Cells...) {
		assert.False(t, c.Available, "%s is booked on the site", site.CellID(c))
	}

	records, err := st.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	require.Len(t, rec.sent, 1)
	assert.Len(t, rec.sent[0].slots, 2)
}

func TestScanAllSelectionMatchesSiteAfterRelogin(t *testing.T) {
	site, a, _ := newSite(t)
	site.StartLoggedIn()
	site.TimeoutOnSwitch["10400020"] = true
	st := store.NewMemory()
	s := newScanner(t, site, st, nil)
	s.BookingEnabled = false

	rep, err := s.ScanAll(context.Background())
	require.NoError(t, err)
	vr := rep.Venues[0]

	// court A holds a selection only from its second pass
	var selectedA int
	for _, fr := range vr.Facilities {
		if fr.Facility.ID == a.ID {
			selectedA += len(fr.Selected)
		}
	}
	assert.Equal(t, 1, selectedA)
	assert.Len(t, selectedSlots(vr.Facilities), 2)
	assert.True(t, a.Cells[0].Selected)
}

func TestDropSelections(t *testing.T) {
	s := &Scanner{log: zaptest.NewLogger(t)}
	done := []FacilityResult{
		{Facility: search.Facility{ID: "10400010"}, Clicked: true, Selected: []string{"20261021_10"}},
		{Facility: search.Facility{ID: "10400020"}},
	}

	lost := s.dropSelections(done, s.log)
	require.Len(t, lost, 1)
	assert.Equal(t, "10400010", lost[0].ID)
	assert.True(t, done[0].Lost)
	assert.False(t, done[0].Clicked)
	assert.Empty(t, done[0].Selected)
	assert.False(t, done[1].Lost)
	assert.Empty(t, selectedSlots(done))
}

func TestScanAllSkipsKnownSlots(t *testing.T) {
	site, _, _ := newSite(t)
	site.StartLoggedIn()
	st := store.NewMemory()
	cancelled := scraper.Slot{Date: 20261021, VenueID: park.ID, FacilityID: "10400010", StartTime: 900, EndTime: 1100}
	require.NoError(t, st.Save(context.Background(), store.Reserved([]scraper.Slot{cancelled}, "2026100100")))
	s := newScanner(t, site, st, nil)
	s.BookingEnabled = false

	rep, err := s.ScanAll(context.Background())
	require.NoError(t, err)
	a := rep.Venues[0].Facilities[0]
	assert.False(t, a.Clicked)
	assert.Empty(t, a.Slots)
	assert.Equal(t, 0, site.Count("click:20261021_10"))
	assert.True(t, rep.Venues[0].Clicked, "court B is still selected")
}

func TestScanAllLoginFailure(t *testing.T) {
	site, _, _ := newSite(t)
	site.RejectLogin = true
	rec := &recorder{}
	s := newScanner(t, site, nil, rec)

	rep, err := s.ScanAll(context.Background())
	assert.ErrorIs(t, err, ErrAllVenuesFailed)
	assert.ErrorIs(t, err, login.ErrLoginFailed)
	require.Len(t, rep.Venues, 1)
	assert.Empty(t, rep.Venues[0].Facilities)
	assert.Equal(t, 2, site.Count("login:rejected"))
	assert.Equal(t, 1, rec.kinds(status.Failed))
}

func TestScanAllPriorityOrder(t *testing.T) {
	site, _, _ := newSite(t)
	site.AddVenue("1010", "しながわ中央公園", "1400_1010").AddFacility("10100010", "庭球場Ａ")
	site.StartLoggedIn()
	log := zaptest.NewLogger(t)
	s := newScanner(t, site, nil, nil)
	s = New(s.deps, []config.Venue{
		{ID: "1010", Name: "しながわ中央公園", AreaCode: "1400_1010", Priority: 2},
		park,
	}, log)
	s.BookingEnabled = false

	rep, err := s.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Venues, 2)
	assert.Equal(t, park.ID, rep.Venues[0].Venue.ID)
	assert.Equal(t, "1010", rep.Venues[1].Venue.ID)
}

func TestRunStopsWithContext(t *testing.T) {
	site, _, _ := newSite(t)
	site.StartLoggedIn()
	rec := &recorder{}
	s := newScanner(t, site, store.NewMemory(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.OnStatus = func(ev status.Event) {
		rec.record(ev)
		if ev.Kind == status.ScanFinished && rec.kinds(status.ScanFinished) == 2 {
			cancel()
		}
	}

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 2, rec.kinds(status.ScanFinished))
	assert.Len(t, rec.sent, 1, "booked cells are gone on the second cycle")
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(1))
	assert.Equal(t, 9*time.Second, Backoff(3))
	assert.Equal(t, MaxBackoff, Backoff(20))
	assert.Equal(t, MaxBackoff, Backoff(1<<20))
}

func TestKnownTreatsLookupErrorsAsUnknown(t *testing.T) {
	s := &Scanner{deps: Deps{Store: failingStore{}}, log: zaptest.NewLogger(t)}
	assert.False(t, s.known(context.Background(), scraper.Slot{Date: 20261021}))
}

type failingStore struct{ store.Store }

func (failingStore) Exists(context.Context, store.Key) (bool, error) {
	return false, errors.New("db down")
}
