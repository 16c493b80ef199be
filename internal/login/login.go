package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"tennisScrapper/internal/browser"
)

var (
	ErrLoginFailed = errors.New("login failed")
	ErrErrorPage   = errors.New("site returned an error page")
)

// State of the login sequence
type State int

const (
	LoggedOut State = iota
	LoginPageReached
	CredentialsSubmitted
	LoggedIn
	Error
)

func (s State) String() string {
	switch s {
	case LoginPageReached:
		return "login-page-reached"
	case CredentialsSubmitted:
		return "credentials-submitted"
	case LoggedIn:
		return "logged-in"
	case Error:
		return "error"
	}
	return "logged-out"
}

// Credentials of the site account
type Credentials struct {
	UserID   string
	Password string
}

// Handler logs the main page into the site
type Handler struct {
	pages   browser.PageSource
	baseURL string
	creds   Credentials
	log     *zap.Logger
	state   State

	// DebugDir receives page snapshots of failed logins
	DebugDir    string
	FormTimeout time.Duration
	Settle      time.Duration
}

// NewHandler creates a login handler for the site at baseURL
func NewHandler(pages browser.PageSource, baseURL string, creds Credentials, log *zap.Logger) *Handler {
	return &Handler{
		pages:       pages,
		baseURL:     strings.TrimRight(baseURL, "/"),
		creds:       creds,
		log:         log,
		FormTimeout: 10 * time.Second,
		Settle:      time.Second,
	}
}

// State returns where the last login sequence ended
func (h *Handler) State() State {
	return h.state
}

func (h *Handler) homeURL() string {
	return h.baseURL + "/index.jsp"
}

func (h *Handler) fail(ctx context.Context, p browser.Page, snapshot string, err error) error {
	h.state = Error
	h.log.Error("❌ Login failed", zap.Error(err))
	browser.Snapshot(ctx, p, h.DebugDir, snapshot, h.log)
	return err
}

// Login walks home, login link, credential form and back home on the main
// page. The site rejects direct visits to the login url, so the sequence
// always starts from the home page. An existing session is kept as is.
func (h *Handler) Login(ctx context.Context) (browser.Page, error) {
	h.state = LoggedOut
	p, err := h.pages.MainPage(ctx)
	if err != nil {
		h.state = Error
		return nil, fmt.Errorf("main page: %w", err)
	}

	h.log.Info("🔑 Logging in")
	if err := p.Navigate(ctx, h.homeURL()); err != nil {
		return nil, h.fail(ctx, p, "home_page", fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}
	h.settle(ctx, p)

	doc, title, err := h.read(ctx, p)
	if err != nil {
		return nil, h.fail(ctx, p, "home_page", fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}
	if IsErrorPage(title, docHTML(doc)) {
		return nil, h.fail(ctx, p, "home_page", fmt.Errorf("home page: %w", ErrErrorPage))
	}
	if IsLoggedIn(ctx, p) {
		h.state = LoggedIn
		h.log.Info("✓ Session still valid")
		return p, nil
	}

	sel := loginControl(doc)
	if sel == "" {
		return nil, h.fail(ctx, p, "home_page", fmt.Errorf("%w: login control not found", ErrLoginFailed))
	}
	if err := p.Click(ctx, sel); err != nil {
		return nil, h.fail(ctx, p, "home_page", fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}
	h.settle(ctx, p)

	if url, err := p.Location(ctx); err == nil && !strings.Contains(url, "rsvWTransUserLoginAction") {
		h.log.Warn("unexpected login page url", zap.String("url", url))
	}
	if doc, title, err := h.read(ctx, p); err == nil && IsErrorPage(title, docHTML(doc)) {
		return nil, h.fail(ctx, p, "login_page", fmt.Errorf("login page: %w", ErrErrorPage))
	}
	for _, field := range []string{"#userId", "#password", "#btn-go"} {
		if err := p.WaitVisible(ctx, field, h.FormTimeout); err != nil {
			return nil, h.fail(ctx, p, "login_form", fmt.Errorf("%w: %w", ErrLoginFailed, err))
		}
	}
	h.state = LoginPageReached

	if err := p.Fill(ctx, "#userId", h.creds.UserID); err != nil {
		return nil, h.fail(ctx, p, "login_form", fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}
	if err := p.Fill(ctx, "#password", h.creds.Password); err != nil {
		return nil, h.fail(ctx, p, "login_form", fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}
	if err := p.Click(ctx, "#btn-go"); err != nil {
		return nil, h.fail(ctx, p, "login_form", fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}
	h.state = CredentialsSubmitted
	h.settle(ctx, p)

	url, _ := p.Location(ctx)
	doc, title, err = h.read(ctx, p)
	if err != nil {
		return nil, h.fail(ctx, p, "login_failed", fmt.Errorf("%w: %w", ErrLoginFailed, err))
	}
	if !loginSucceeded(url, title, doc) {
		return nil, h.fail(ctx, p, "login_failed", fmt.Errorf("%w: still logged out at %s", ErrLoginFailed, url))
	}

	h.state = LoggedIn
	h.log.Info("✓ Logged in", zap.String("url", url))
	return p, nil
}

// loginSucceeded checks the page right after submitting credentials
func loginSucceeded(url, title string, doc *goquery.Document) bool {
	html := docHTML(doc)
	hasLogout := strings.Contains(html, "ログアウト") || strings.Contains(strings.ToLower(html), "logout")
	onHome := hasAny(url, "UserAttestation", "index.jsp", "pawab2000") &&
		(strings.Contains(title, "ホーム") || hasLogout)
	return (onHome || hasLogout) && doc.Find("#userId").Length() == 0
}

// loginControl returns a selector for the home page login link, or ""
func loginControl(doc *goquery.Document) string {
	if doc.Find(`a[href*="UserLogin"]`).Length() > 0 {
		if id := doc.Find(`a[href*="UserLogin"]`).First().AttrOr("id", ""); id != "" {
			return browser.IDSelector(id)
		}
		return `a[href*="UserLogin"]`
	}
	s := browser.FirstByText(doc, `a, button`, "ログイン")
	if s == nil || strings.Contains(browser.Text(s), "ログアウト") {
		if doc.Find(`input[value*="ログイン"]`).Length() > 0 {
			return `input[value*="ログイン"]`
		}
		return ""
	}
	if id := s.AttrOr("id", ""); id != "" {
		return browser.IDSelector(id)
	}
	return ""
}

// EnsureLoggedIn returns the main page once it carries a live session,
// logging in under policy when the probe says otherwise.
func (h *Handler) EnsureLoggedIn(ctx context.Context, policy RetryPolicy) (browser.Page, error) {
	p, err := h.pages.MainPage(ctx)
	if err == nil {
		if IsLoggedIn(ctx, p) {
			h.state = LoggedIn
			return p, nil
		}
		// The probe can catch a page mid-render
		_ = p.Pause(ctx, time.Second)
		if IsLoggedIn(ctx, p) {
			h.state = LoggedIn
			return p, nil
		}
	}

	h.log.Info("🔒 Session not active, logging in")
	var page browser.Page
	err = policy.Do(ctx, h.log, func(ctx context.Context) error {
		pg, err := h.Login(ctx)
		if err != nil {
			return err
		}
		page = pg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Recover leaves a session timeout page through its home control and logs in again
func (h *Handler) Recover(ctx context.Context, p browser.Page, policy RetryPolicy) (browser.Page, error) {
	if IsSessionTimeout(ctx, p) {
		h.log.Warn("⏰ Session timeout page detected")
		h.clickHome(ctx, p)
	}
	return h.EnsureLoggedIn(ctx, policy)
}

func (h *Handler) clickHome(ctx context.Context, p browser.Page) {
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return
	}
	sel := ""
	switch {
	case doc.Find("#btn-light").Length() > 0:
		sel = "#btn-light"
	case doc.Find(`[onclick*="index.jsp"]`).Length() > 0:
		sel = `[onclick*="index.jsp"]`
	default:
		if s := browser.FirstByText(doc, "button, a, input", "ホームへ", "Home"); s != nil {
			if id := s.AttrOr("id", ""); id != "" {
				sel = browser.IDSelector(id)
			}
		}
	}
	if sel == "" {
		h.log.Warn("home control not found on timeout page")
		return
	}
	if err := p.Click(ctx, sel); err != nil {
		h.log.Warn("click home", zap.Error(err))
		return
	}
	h.settle(ctx, p)
}

func (h *Handler) settle(ctx context.Context, p browser.Page) {
	if err := p.WaitReady(ctx, 30*time.Second); err != nil {
		h.log.Debug("page not ready", zap.Error(err))
	}
	_ = p.Pause(ctx, h.Settle)
}

func (h *Handler) read(ctx context.Context, p browser.Page) (*goquery.Document, string, error) {
	title, err := p.Title(ctx)
	if err != nil {
		return nil, "", err
	}
	doc, err := browser.Document(ctx, p)
	if err != nil {
		return nil, "", err
	}
	return doc, title, nil
}

func docHTML(doc *goquery.Document) string {
	html, _ := doc.Html()
	return html
}
