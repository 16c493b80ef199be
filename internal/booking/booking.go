// Package booking finalizes a reservation for the cells selected on the
// results page.
package booking

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
)

// Stage is the furthest step the booking flow reached
type Stage string

const (
	StageNone     Stage = "none"
	StageReserve  Stage = "reserve"
	StageTerms    Stage = "terms"
	StageConfirm  Stage = "confirm"
	StageComplete Stage = "complete"
	StagePayment  Stage = "payment"
	StageHome     Stage = "home"
)

var (
	ErrNothingSelected  = errors.New("no cell was selected")
	ErrNoReserveControl = errors.New("reservation control not found")
	ErrFlowStalled      = errors.New("booking flow did not advance")
	ErrNoConfirmation   = errors.New("reservation number not found")
)

var (
	reserveSelectors = []string{`[onclick*="gRsvWOpeReservedApplyAction"]`, `#btn-go`}
	termsAgree       = []string{`label[for="ruleFg_1"]`, `#ruleFg_1`, `input[name="ruleFg"][value="1"]`}
	termsSubmit      = []string{`[onclick*="gRsvWInstUseruleRsvApplyAction"]`, `#btn-go`}
	finalSubmit      = []string{`[onclick*="gRsvWInstRsvApplyAction"]`, `#btn-go`}
	paymentLink      = []string{`[onclick*="gRsvCreditInitListAction"]`}
	backButton       = []string{`button.btn-back`, `.btn-back`}
)

const headcountField = `input[name="applyNum"]`

var (
	numberAfterLabel = regexp.MustCompile(`予約番号\s*[：:]\s*(\d{10})`)
	numberOnly       = regexp.MustCompile(`^(\d{10})$`)
)

// Result of one booking run
type Result struct {
	ReservationNumber string
	Stage             Stage
	// Lines is how many reservation lines the confirmation page listed
	Lines int
}

// Booker walks the reservation pages after the calendar pass
type Booker struct {
	log *zap.Logger
	// Headcount is entered on every reservation line
	Headcount int
	DebugDir  string

	Settle        time.Duration
	PageTimeout   time.Duration
	DialogTimeout time.Duration
}

// NewBooker creates a booker entering headcount people per line
func NewBooker(log *zap.Logger, headcount int) *Booker {
	return &Booker{
		log:           log,
		Headcount:     headcount,
		Settle:        2 * time.Second,
		PageTimeout:   30 * time.Second,
		DialogTimeout: 5 * time.Second,
	}
}

// Book reserves the selected cells. clicked is the flag from the calendar
// pass; without it nothing is touched. A reservation number is returned
// only once the completion page shows one.
func (b *Booker) Book(ctx context.Context, p browser.Page, clicked bool) (Result, error) {
	res := Result{Stage: StageNone}
	if !clicked {
		return res, ErrNothingSelected
	}

	b.log.Info("📝 Starting reservation")
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return res, fmt.Errorf("read results page: %w", err)
	}
	sel := firstPresent(doc, reserveSelectors)
	if sel == "" {
		return res, b.abort(ctx, p, "booking_no_reserve", ErrNoReserveControl)
	}
	if err := p.Click(ctx, sel); err != nil {
		return res, b.abort(ctx, p, "booking_no_reserve", fmt.Errorf("%w: %w", ErrNoReserveControl, err))
	}
	res.Stage = StageReserve
	b.settle(ctx, p)

	advanced := false
	if b.acceptTerms(ctx, p) {
		res.Stage = StageTerms
		advanced = true
	}
	if n := b.fillHeadcount(ctx, p); n > 0 {
		res.Stage = StageConfirm
		res.Lines = n
		advanced = true
	}
	if !advanced {
		return res, b.abort(ctx, p, "booking_stalled", fmt.Errorf("%w after %s", ErrFlowStalled, res.Stage))
	}

	if err := b.submit(ctx, p); err != nil {
		return res, b.abort(ctx, p, "booking_submit", err)
	}

	number, err := b.reservationNumber(ctx, p)
	if err != nil {
		return res, b.abort(ctx, p, "booking_no_number", err)
	}
	res.ReservationNumber = number
	res.Stage = StageComplete
	b.log.Info("🎉 Reservation completed", zap.String("reservation_number", number))

	res.Stage = b.returnHome(ctx, p, res.Stage)
	return res, nil
}

// acceptTerms agrees to the terms of use when that page is shown
func (b *Booker) acceptTerms(ctx context.Context, p browser.Page) bool {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return false
	}
	agree := firstPresent(doc, termsAgree)
	if agree == "" {
		b.log.Debug("terms page not shown")
		return false
	}
	b.log.Info("📜 Accepting terms of use")
	if err := p.Click(ctx, agree); err != nil {
		b.log.Warn("agree to terms", zap.Error(err))
		return false
	}
	next := firstPresent(doc, termsSubmit)
	if next == "" {
		b.log.Warn("terms confirm control not found")
		return false
	}
	if err := p.Click(ctx, next); err != nil {
		b.log.Warn("confirm terms", zap.Error(err))
		return false
	}
	b.settle(ctx, p)
	return true
}

// fillHeadcount enters the headcount on every reservation line and
// returns how many lines were filled
func (b *Booker) fillHeadcount(ctx context.Context, p browser.Page) int {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return 0
	}
	value := strconv.Itoa(b.Headcount)
	filled := 0
	doc.Find(headcountField).Each(func(i int, s *goquery.Selection) {
		id := s.AttrOr("id", "")
		if id == "" {
			b.log.Warn("headcount field without id", zap.Int("line", i+1))
			return
		}
		if err := p.Fill(ctx, browser.IDSelector(id), value); err != nil {
			b.log.Warn("fill headcount", zap.String("field", id), zap.Error(err))
			return
		}
		filled++
	})
	if filled > 0 {
		b.log.Info("👥 Entered headcount", zap.Int("lines", filled), zap.Int("people", b.Headcount))
	}
	return filled
}

// submit clicks the final control. The native confirm it raises is
// accepted by a listener armed before the click, with an explicit wait
// as fallback.
func (b *Booker) submit(ctx context.Context, p browser.Page) error {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return err
	}
	sel := firstPresent(doc, finalSubmit)
	if sel == "" {
		return fmt.Errorf("%w: final confirm control missing", ErrFlowStalled)
	}

	stop := p.AcceptDialogs(ctx)
	defer stop()

	if err := p.Click(ctx, sel); err != nil {
		return fmt.Errorf("final confirm: %w", err)
	}
	b.settle(ctx, p)
	if b.completed(ctx, p) {
		return nil
	}

	msg, err := p.WaitDialog(ctx, b.DialogTimeout)
	if err != nil {
		b.log.Warn("no confirmation dialog", zap.Error(err))
		return nil
	}
	b.log.Info("💬 Accepted confirmation dialog", zap.String("message", msg))
	b.settle(ctx, p)
	return nil
}

func (b *Booker) completed(ctx context.Context, p browser.Page) bool {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return false
	}
	return findNumber(doc) != ""
}

func (b *Booker) reservationNumber(ctx context.Context, p browser.Page) (string, error) {
	var number string
	browser.Poll(ctx, p, b.PageTimeout, func(doc *goquery.Document) bool {
		number = findNumber(doc)
		return number != ""
	})
	if number == "" {
		return "", ErrNoConfirmation
	}
	return number, nil
}

// parseNumber extracts the ten digit number written after the 予約番号 label
func parseNumber(text string) string {
	if m := numberAfterLabel.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// findNumber reads the reservation number from the completion page, either
// as labelled text or from the cell next to a 予約番号 header. Other numbers
// on the page never count.
func findNumber(doc *goquery.Document) string {
	if n := parseNumber(doc.Text()); n != "" {
		return n
	}
	var number string
	doc.Find("th, td, dt, span, label").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimRight(browser.Text(s), "：: ") != "予約番号" {
			return true
		}
		if m := numberOnly.FindStringSubmatch(browser.Text(s.Next())); m != nil {
			number = m[1]
			return false
		}
		return true
	})
	return number
}

// returnHome leaves through the payment deferral page back to home. Both
// steps are optional.
func (b *Booker) returnHome(ctx context.Context, p browser.Page, stage Stage) Stage {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return stage
	}
	sel := firstPresent(doc, paymentLink)
	if sel == "" {
		if s := browser.FirstByText(doc, "button, a", "未入金予約の確認・支払へ"); s != nil && s.AttrOr("id", "") != "" {
			sel = browser.IDSelector(s.AttrOr("id", ""))
		}
	}
	if sel == "" {
		return stage
	}
	if err := p.Click(ctx, sel); err != nil {
		b.log.Warn("open payment page", zap.Error(err))
		return stage
	}
	stage = StagePayment
	b.settle(ctx, p)

	if doc, err = browser.Document(ctx, p); err != nil {
		return stage
	}
	back := firstPresent(doc, backButton)
	if back == "" {
		b.log.Debug("back control not found on payment page")
		return stage
	}
	if err := p.Click(ctx, back); err != nil {
		b.log.Warn("leave payment page", zap.Error(err))
		return stage
	}
	b.settle(ctx, p)
	return StageHome
}

func (b *Booker) abort(ctx context.Context, p browser.Page, snapshot string, err error) error {
	b.log.Error("❌ Reservation aborted", zap.Error(err))
	browser.Snapshot(ctx, p, b.DebugDir, snapshot, b.log)
	return err
}

func (b *Booker) settle(ctx context.Context, p browser.Page) {
	if err := p.WaitReady(ctx, b.PageTimeout); err != nil {
		b.log.Debug("page not ready", zap.Error(err))
	}
	_ = p.Pause(ctx, b.Settle)
}

func firstPresent(doc *goquery.Document, selectors []string) string {
	for _, s := range selectors {
		if doc.Find(s).Length() > 0 {
			return s
		}
	}
	return ""
}
