package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configures the browser to look like a desktop Chrome in Tokyo
type Options struct {
	Headless  bool
	Timeout   time.Duration
	UserAgent string
	Locale    string
	Timezone  string
	Width     int
	Height    int
}

// DefaultOptions returns the settings used against the reservation site
func DefaultOptions() Options {
	return Options{
		Headless:  true,
		Timeout:   120 * time.Second,
		UserAgent: defaultUserAgent,
		Locale:    "ja-JP",
		Timezone:  "Asia/Tokyo",
		Width:     1920,
		Height:    1080,
	}
}

// Session owns one browser and the main page used for every operation
type Session struct {
	opts Options
	log  *zap.Logger

	mu            sync.Mutex
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	main          *Tab
}

// NewSession creates a session; the browser is launched by Start
func NewSession(opts Options, log *zap.Logger) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Session{opts: opts, log: log}
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(s.opts.Width, s.opts.Height),
		chromedp.UserAgent(s.opts.UserAgent),
		chromedp.NoSandbox,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", s.opts.Locale),
	)
	if !s.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// chromeLogf keeps only chromedp messages that point at real failures
func (s *Session) chromeLogf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if (strings.Contains(msg, "error") || strings.Contains(msg, "failed")) &&
		!strings.Contains(msg, "cookiePart") &&
		!strings.Contains(msg, "unmarshal event") {
		s.log.Warn("🌐 "+msg, zap.String("source", "chromedp"))
	}
}

// Start launches the browser. It is a no-op while a connected browser
// exists; a disconnected one is torn down and relaunched.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.browserCtx != nil {
		if s.connectedLocked(ctx) {
			return nil
		}
		s.log.Warn("⚠️ Browser disconnected, relaunching")
		if err := s.stopLocked(); err != nil {
			s.log.Warn("teardown of disconnected browser", zap.Error(err))
		}
	}

	s.allocCtx, s.cancelAlloc = chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	s.browserCtx, s.cancelBrowser = chromedp.NewContext(s.allocCtx, chromedp.WithLogf(s.chromeLogf))

	// The first Run allocates the browser and binds it to the context it
	// is given, so it must not run under a timeout
	if err := chromedp.Run(s.browserCtx); err != nil {
		_ = s.stopLocked()
		return fmt.Errorf("launch browser: %w", err)
	}
	s.log.Info("✓ Browser started", zap.Bool("headless", s.opts.Headless))
	return nil
}

// Connected reports whether the browser process still answers
func (s *Session) Connected(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedLocked(ctx)
}

func (s *Session) connectedLocked(ctx context.Context) bool {
	if s.browserCtx == nil || s.browserCtx.Err() != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(s.browserCtx, 5*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	_, err := chromedp.Targets(probeCtx)
	return err == nil
}

// NewPage opens a fresh tab in the running browser
func (s *Session) NewPage(ctx context.Context) (*Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newPageLocked(ctx)
}

func (s *Session) newPageLocked(ctx context.Context) (*Tab, error) {
	if s.browserCtx == nil {
		return nil, errors.New("browser not started")
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	// Creates the target; same no-timeout rule as the browser launch
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	tab := newTab(tabCtx, cancel, s.opts.Timeout, s.log)

	if err := tab.run(ctx, s.opts.Timeout,
		network.Enable(),
		network.SetExtraHTTPHeaders(s.extraHeaders()),
		emulation.SetTimezoneOverride(s.opts.Timezone),
		emulation.SetLocaleOverride().WithLocale(s.opts.Locale),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("prepare tab: %w", err)
	}
	return tab, nil
}

func (s *Session) extraHeaders() network.Headers {
	return network.Headers{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7",
		"Cache-Control":             "max-age=0",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	}
}

// MainPage returns the long-lived page, starting the browser and opening
// the page only when there is none.
func (s *Session) MainPage(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.main != nil && !s.main.Closed() && s.browserCtx != nil && s.browserCtx.Err() == nil {
		return s.main, nil
	}
	if err := s.startLocked(ctx); err != nil {
		return nil, err
	}
	tab, err := s.newPageLocked(ctx)
	if err != nil {
		return nil, err
	}
	s.main = tab
	s.log.Info("📄 Main page created")
	return tab, nil
}

// Stop closes the main page, the browser and the allocator. Every resource
// is closed even when an earlier one fails.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	var errs []error
	if s.main != nil {
		if err := s.main.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close main page: %w", err))
		}
		s.main = nil
	}
	if s.browserCtx != nil {
		if err := chromedp.Cancel(s.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.cancelBrowser()
		s.browserCtx, s.cancelBrowser = nil, nil
	}
	if s.cancelAlloc != nil {
		s.cancelAlloc()
		s.allocCtx, s.cancelAlloc = nil, nil
	}
	return errors.Join(errs...)
}
