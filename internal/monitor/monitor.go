// Package monitor runs scan cycles over the target venues: search each
// court, select its open cells, then book what was selected.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tennisScrapper/internal/booking"
	"tennisScrapper/internal/browser"
	"tennisScrapper/internal/calendar"
	"tennisScrapper/internal/login"
	"tennisScrapper/internal/search"
	"tennisScrapper/internal/status"
	"tennisScrapper/internal/store"
	"tennisScrapper/pkg/config"
	"tennisScrapper/pkg/scraper"
)

var (
	ErrSessionLost     = errors.New("session lost again after re-login")
	ErrAllVenuesFailed = errors.New("every venue failed")
)

// MaxBackoff caps the wait after consecutive failed cycles
const MaxBackoff = 5 * time.Minute

// Notifier reports completed reservations
type Notifier interface {
	NotifyReservation(ctx context.Context, venue, number string, slots []scraper.Slot) error
}

// Deps are the components a Scanner drives. Store and Notifier are optional.
type Deps struct {
	Login    *login.Handler
	Search   *search.Driver
	Calendar *calendar.Driver
	Booker   *booking.Booker
	Store    store.Store
	Notifier Notifier
}

// FacilityResult is the outcome of one court
type FacilityResult struct {
	Facility search.Facility
	Slots    []scraper.Slot
	Clicked  bool
	Selected []string
	Retried  bool
	// Lost is set when a later re-login dropped this court's selection
	Lost bool
	Err  error
}

// VenueResult is the outcome of one park
type VenueResult struct {
	Venue      config.Venue
	Facilities []FacilityResult
	// Slots seen across all courts, deduplicated
	Slots   []scraper.Slot
	Clicked bool
	Booking *booking.Result
	Booked  []scraper.Slot
	Err     error
}

// Report is the outcome of one cycle
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Venues   []VenueResult
}

// Scanner runs scan cycles on the main page
type Scanner struct {
	deps   Deps
	venues []config.Venue
	log    *zap.Logger

	Policy login.RetryPolicy
	// BookingEnabled gates the booking flow; the click flag still decides
	BookingEnabled bool
	Interval       time.Duration
	// OnStatus receives progress events when set
	OnStatus func(status.Event)
}

// New creates a scanner over venues, booking enabled
func New(deps Deps, venues []config.Venue, log *zap.Logger) *Scanner {
	s := &Scanner{
		deps:           deps,
		venues:         append([]config.Venue(nil), venues...),
		log:            log,
		Policy:         login.DefaultRetryPolicy(),
		BookingEnabled: true,
		Interval:       30 * time.Minute,
	}
	sort.SliceStable(s.venues, func(i, j int) bool { return s.venues[i].Priority < s.venues[j].Priority })
	if deps.Store != nil && deps.Calendar != nil {
		deps.Calendar.Known = s.known
	}
	return s
}

// Run repeats cycles until ctx is done. Failed cycles are retried after a
// quadratic backoff instead of the poll interval.
func (s *Scanner) Run(ctx context.Context) error {
	failures := 0
	for {
		_, err := s.ScanAll(ctx)
		if ctx.Err() != nil {
			return nil
		}

		wait := s.Interval
		if err != nil {
			failures++
			wait = Backoff(failures)
			s.log.Warn("⚠️ Scan cycle failed",
				zap.Error(err),
				zap.Int("consecutive_errors", failures),
				zap.Duration("retry_in", wait))
		} else {
			failures = 0
			s.log.Info("✓ Check complete", zap.Time("next_check", time.Now().Add(wait)))
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Backoff returns the wait after n consecutive failures
func Backoff(n int) time.Duration {
	d := time.Duration(n*n) * time.Second
	if d > MaxBackoff || d <= 0 {
		return MaxBackoff
	}
	return d
}

// ScanAll scans every venue in priority order. It fails only when no venue
// could be scanned.
func (s *Scanner) ScanAll(ctx context.Context) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Started: time.Now()}
	log := s.log.With(zap.String("run_id", rep.RunID))
	log.Info("🚀 Starting scan", zap.Int("venues", len(s.venues)))
	s.emit(status.Event{Kind: status.ScanStarted, RunID: rep.RunID})

	var errs []error
	for _, v := range s.venues {
		if ctx.Err() != nil {
			break
		}
		vr := s.ScanVenue(ctx, v)
		vr.Venue = v
		rep.Venues = append(rep.Venues, vr)
		if vr.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.Name, vr.Err))
		}
	}
	rep.Finished = time.Now()

	s.emit(status.Event{Kind: status.ScanFinished, RunID: rep.RunID})
	log.Info("🏁 Scan finished", zap.Duration("took", rep.Finished.Sub(rep.Started)), zap.Int("failed_venues", len(errs)))

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if len(errs) > 0 && len(errs) == len(rep.Venues) {
		return rep, errors.Join(append([]error{ErrAllVenuesFailed}, errs...)...)
	}
	return rep, nil
}

// ScanVenue scans every court of venue, then books the selection when any
// court had a cell clicked.
func (s *Scanner) ScanVenue(ctx context.Context, venue config.Venue) VenueResult {
	vr := VenueResult{Venue: venue}
	log := s.log.With(zap.String("venue", venue.Name))
	log.Info("🏟 Scanning venue", zap.Int("priority", venue.Priority))
	s.emit(status.Event{Kind: status.VenueStarted, Venue: venue.Name})

	p, err := s.deps.Login.EnsureLoggedIn(ctx, s.Policy)
	if err != nil {
		return s.venueFailed(vr, fmt.Errorf("login: %w", err))
	}
	if p, err = s.openResults(ctx, p, venue, ""); err != nil {
		return s.venueFailed(vr, fmt.Errorf("search: %w", err))
	}

	facilities := s.deps.Search.Facilities(ctx, p, venue.ID)
	facilities = currentFirst(facilities, s.deps.Search.CurrentFacility(ctx, p))
	log.Info("🎾 Courts found", zap.Int("count", len(facilities)))

	var all []scraper.Slot
	rescanned := map[string]bool{}
	for i := 0; i < len(facilities); i++ {
		if ctx.Err() != nil {
			break
		}
		var fr FacilityResult
		fr, p = s.scanFacility(ctx, p, venue, facilities[i], i > 0)
		if fr.Retried {
			// a new login starts without the selections made on earlier courts
			for _, f := range s.dropSelections(vr.Facilities, log) {
				if fr.Err == nil && !rescanned[f.ID] {
					rescanned[f.ID] = true
					facilities = append(facilities, f)
				}
			}
		}
		vr.Facilities = append(vr.Facilities, fr)
		all = append(all, fr.Slots...)
	}
	vr.Slots = scraper.Dedupe(all)
	for _, fr := range vr.Facilities {
		vr.Clicked = vr.Clicked || fr.Clicked
	}

	if vr.Clicked && s.BookingEnabled && ctx.Err() == nil {
		s.book(ctx, p, &vr)
	} else if vr.Clicked {
		log.Info("⏸ Booking disabled, leaving selection", zap.Int("slots", len(vr.Slots)))
	}
	return vr
}

// openResults runs the full search. A timeout page is recovered with one
// login; any other failure goes back home once before retrying.
func (s *Scanner) openResults(ctx context.Context, p browser.Page, venue config.Venue, facilityID string) (browser.Page, error) {
	err := s.deps.Search.Search(ctx, p, venue, facilityID)
	if err == nil {
		return p, nil
	}
	if ctx.Err() != nil {
		return p, err
	}
	s.log.Warn("search failed, retrying", zap.String("venue", venue.Name), zap.Error(err))

	if login.IsSessionTimeout(ctx, p) {
		p, err = s.deps.Login.Recover(ctx, p, s.Policy)
	} else {
		p, err = s.deps.Login.Login(ctx)
	}
	if err != nil {
		return p, err
	}
	return p, s.deps.Search.Search(ctx, p, venue, facilityID)
}

// scanFacility traverses one court. When the site times the session out
// during the switch or the traversal, it logs in once and retries the court
// with a full search.
func (s *Scanner) scanFacility(ctx context.Context, p browser.Page, venue config.Venue, f search.Facility, switchTo bool) (FacilityResult, browser.Page) {
	fr := FacilityResult{Facility: f}
	log := s.log.With(zap.String("venue", venue.Name), zap.String("facility", f.Name))
	s.emit(status.Event{Kind: status.Facility, Venue: venue.Name, Facility: f.Name})

	for attempt := 1; ; attempt++ {
		var err error
		switch {
		case attempt > 1:
			err = s.deps.Search.Search(ctx, p, venue, f.ID)
		case switchTo:
			err = s.deps.Search.SwitchFacility(ctx, p, f.ID)
		}

		if err == nil && !login.IsSessionTimeout(ctx, p) {
			var res calendar.Result
			res, err = s.deps.Calendar.Scan(ctx, p)
			fr.Slots, fr.Clicked, fr.Selected = res.Slots, res.Clicked, res.Selected()
		}

		if !login.IsSessionTimeout(ctx, p) {
			if err != nil {
				log.Warn("⚠️ Court scan failed", zap.Error(err))
				s.emit(status.Event{Kind: status.Failed, Venue: venue.Name, Facility: f.Name, Message: err.Error()})
			} else {
				s.emit(status.Event{Kind: status.SlotsFound, Venue: venue.Name, Facility: f.Name, Slots: len(fr.Slots)})
			}
			fr.Err = err
			return fr, p
		}

		if attempt > 1 {
			fr.Err = ErrSessionLost
			s.emit(status.Event{Kind: status.Failed, Venue: venue.Name, Facility: f.Name, Message: fr.Err.Error()})
			return fr, p
		}
		log.Warn("⏰ Session timed out, logging in again")
		fr.Retried = true
		page, err := s.deps.Login.Recover(ctx, p, s.Policy)
		if err != nil {
			fr.Err = fmt.Errorf("recover session: %w", err)
			s.emit(status.Event{Kind: status.Failed, Venue: venue.Name, Facility: f.Name, Message: fr.Err.Error()})
			return fr, p
		}
		p = page
	}
}

func (s *Scanner) book(ctx context.Context, p browser.Page, vr *VenueResult) {
	log := s.log.With(zap.String("venue", vr.Venue.Name))
	res, err := s.deps.Booker.Book(ctx, p, vr.Clicked)
	vr.Booking = &res
	if err != nil {
		log.Error("❌ Booking failed", zap.String("stage", string(res.Stage)), zap.Error(err))
		s.emit(status.Event{Kind: status.Failed, Venue: vr.Venue.Name, Message: err.Error()})
		vr.Err = fmt.Errorf("booking: %w", err)
		return
	}

	vr.Booked = selectedSlots(vr.Facilities)
	if res.Lines > 0 && res.Lines != len(vr.Booked) {
		log.Warn("reservation lines differ from selected cells", zap.Int("lines", res.Lines), zap.Int("selected", len(vr.Booked)))
	}
	s.emit(status.Event{Kind: status.Booked, Venue: vr.Venue.Name, Slots: len(vr.Booked), ReservationNumber: res.ReservationNumber})

	if s.deps.Store != nil && len(vr.Booked) > 0 {
		if err := s.deps.Store.Save(ctx, store.Reserved(vr.Booked, res.ReservationNumber)); err != nil {
			log.Error("failed to record reservation", zap.Error(err))
		}
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyReservation(ctx, vr.Venue.Name, res.ReservationNumber, vr.Booked); err != nil {
			log.Error("Error sending notification", zap.Error(err))
		}
	}
}

// dropSelections clears the selection state of courts whose cells were
// lost with the session and returns them for another pass
func (s *Scanner) dropSelections(done []FacilityResult, log *zap.Logger) []search.Facility {
	var lost []search.Facility
	for i := range done {
		fr := &done[i]
		if !fr.Clicked && len(fr.Selected) == 0 {
			continue
		}
		log.Warn("🔁 Selection lost with the session", zap.String("facility", fr.Facility.Name), zap.Int("cells", len(fr.Selected)))
		fr.Clicked, fr.Selected, fr.Lost = false, nil, true
		lost = append(lost, fr.Facility)
	}
	return lost
}

func (s *Scanner) venueFailed(vr VenueResult, err error) VenueResult {
	s.log.Error("❌ Venue skipped", zap.String("venue", vr.Venue.Name), zap.Error(err))
	s.emit(status.Event{Kind: status.Failed, Venue: vr.Venue.Name, Message: err.Error()})
	vr.Err = err
	return vr
}

// known adapts the store for the calendar driver. A failed lookup counts
// as unknown.
func (s *Scanner) known(ctx context.Context, slot scraper.Slot) bool {
	ok, err := s.deps.Store.Exists(ctx, store.KeyOf(slot))
	if err != nil {
		s.log.Warn("store lookup failed", zap.String("cell", slot.CellID), zap.Error(err))
		return false
	}
	return ok
}

func (s *Scanner) emit(ev status.Event) {
	if s.OnStatus == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.OnStatus(ev)
}

// selectedSlots returns the slots of cells left selected on every court
func selectedSlots(facilities []FacilityResult) []scraper.Slot {
	var out []scraper.Slot
	for _, fr := range facilities {
		ids := make(map[string]bool, len(fr.Selected))
		for _, id := range fr.Selected {
			ids[id] = true
		}
		for _, sl := range scraper.Dedupe(fr.Slots) {
			if ids[sl.CellID] {
				out = append(out, sl)
			}
		}
	}
	return out
}

func currentFirst(facilities []search.Facility, current string) []search.Facility {
	for i, f := range facilities {
		if f.ID == current && i > 0 {
			out := append([]search.Facility{f}, facilities[:i]...)
			return append(out, facilities[i+1:]...)
		}
	}
	return facilities
}
