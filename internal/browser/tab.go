package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Tab is a chromedp-backed Page
type Tab struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	log     *zap.Logger

	autoAccept atomic.Bool
	dialogs    chan string
}

func newTab(ctx context.Context, cancel context.CancelFunc, timeout time.Duration, log *zap.Logger) *Tab {
	t := &Tab{
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		log:     log,
		dialogs: make(chan string, 4),
	}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		t.log.Info("💬 Dialog opened", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		select {
		case t.dialogs <- e.Message:
		default:
		}
		if t.autoAccept.Load() {
			// Handling the dialog from inside the listener would deadlock the event loop
			go func() {
				if err := chromedp.Run(t.ctx, page.HandleJavaScriptDialog(true)); err != nil {
					t.log.Debug("auto-accept dialog", zap.Error(err))
				}
			}()
		}
	})
	return t
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx
func (t *Tab) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if t.Closed() {
		return ErrPageClosed
	}
	if timeout <= 0 {
		timeout = t.timeout
	}
	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (t *Tab) Location(ctx context.Context) (string, error) {
	var u string
	err := t.run(ctx, 0, chromedp.Location(&u))
	return u, err
}

func (t *Tab) Title(ctx context.Context) (string, error) {
	var title string
	err := t.run(ctx, 0, chromedp.Title(&title))
	return title, err
}

func (t *Tab) HTML(ctx context.Context) (string, error) {
	var html string
	err := t.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (t *Tab) Navigate(ctx context.Context, url string) error {
	if err := t.run(ctx, 0, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (t *Tab) Reload(ctx context.Context) error {
	return t.run(ctx, 0, chromedp.Reload())
}

func (t *Tab) Visible(ctx context.Context, sel string) (bool, error) {
	var ok bool
	err := t.Evaluate(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const st = window.getComputedStyle(el);
		return st.display !== "none" && st.visibility !== "hidden";
	})()`, jsString(sel)), &ok)
	return ok, err
}

func (t *Tab) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if err := t.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %s: %w", sel, err)
	}
	return nil
}

func (t *Tab) WaitHidden(ctx context.Context, sel string, timeout time.Duration) error {
	return t.waitTrue(ctx, timeout, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return !el || window.getComputedStyle(el).display === "none";
	})()`, jsString(sel)))
}

func (t *Tab) WaitReady(ctx context.Context, timeout time.Duration) error {
	return t.waitTrue(ctx, timeout, `document.readyState === "complete"`)
}

// waitTrue polls expr until it evaluates to true
func (t *Tab) waitTrue(ctx context.Context, timeout time.Duration, expr string) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		var ok bool
		if err := t.Evaluate(ctx, expr, &ok); err == nil && ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for %q", timeout, expr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Tab) Click(ctx context.Context, sel string) error {
	if err := t.run(ctx, 0, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (t *Tab) ClickScript(ctx context.Context, sel string) error {
	return t.callElement(ctx, sel, `el.click(); return true;`)
}

func (t *Tab) CallHandler(ctx context.Context, sel string) error {
	return t.callElement(ctx, sel, `
		if (typeof el.onclick !== "function") return false;
		el.onclick.call(el, new MouseEvent("click", {bubbles: true}));
		return true;`)
}

func (t *Tab) callElement(ctx context.Context, sel, body string) error {
	var ok bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		%s
	})()`, jsString(sel), body)
	if err := t.Evaluate(ctx, expr, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element %s not found or not clickable", sel)
	}
	return nil
}

func (t *Tab) Fill(ctx context.Context, sel, value string) error {
	if err := t.run(ctx, 0,
		chromedp.WaitVisible(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill %s: %w", sel, err)
	}
	return nil
}

func (t *Tab) Select(ctx context.Context, sel, value string) error {
	var problem string
	err := t.Evaluate(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%[1]s);
		if (!el) return "missing";
		if (!Array.from(el.options || []).some(o => o.value === %[2]s)) return "no option";
		el.value = %[2]s;
		el.dispatchEvent(new Event("change", {bubbles: true}));
		return "";
	})()`, jsString(sel), jsString(value)), &problem)
	if err != nil {
		return fmt.Errorf("select %s=%s: %w", sel, value, err)
	}
	if problem != "" {
		return fmt.Errorf("select %s=%s: %s", sel, value, problem)
	}
	return nil
}

func (t *Tab) Evaluate(ctx context.Context, expr string, res any) error {
	return t.run(ctx, 0, chromedp.Evaluate(expr, res))
}

func (t *Tab) AcceptDialogs(ctx context.Context) func() {
	for len(t.dialogs) > 0 {
		<-t.dialogs
	}
	t.autoAccept.Store(true)
	return func() { t.autoAccept.Store(false) }
}

func (t *Tab) WaitDialog(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-t.dialogs:
		// Already handled when the listener is active
		if err := t.run(ctx, 5*time.Second, page.HandleJavaScriptDialog(true)); err != nil &&
			!strings.Contains(err.Error(), "No dialog") {
			return msg, fmt.Errorf("accept dialog: %w", err)
		}
		return msg, nil
	case <-timer.C:
		return "", fmt.Errorf("no dialog within %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Tab) Pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := t.run(ctx, 30*time.Second, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (t *Tab) Closed() bool {
	return t.ctx.Err() != nil
}

// Close closes the tab. Cancelling the chromedp context detaches and closes the target.
func (t *Tab) Close() error {
	if t.Closed() {
		return nil
	}
	err := chromedp.Cancel(t.ctx)
	t.cancel()
	return err
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
