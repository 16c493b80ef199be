package browser

import (
	"context"
	"errors"
	"time"
)

// ErrPageClosed is returned when driving a page whose tab is gone
var ErrPageClosed = errors.New("page closed")

// Page is one browser tab. All selectors are CSS selectors.
//
// Implementations read the live DOM; callers that need to inspect markup
// take an HTML snapshot and query it with goquery (see Document).
type Page interface {
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	// Visible reports whether sel exists and its computed display is not none
	Visible(ctx context.Context, sel string) (bool, error)
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	// WaitHidden waits until sel is absent or not displayed
	WaitHidden(ctx context.Context, sel string, timeout time.Duration) error
	WaitReady(ctx context.Context, timeout time.Duration) error

	// Click dispatches a trusted mouse click on the element
	Click(ctx context.Context, sel string) error
	// ClickScript calls element.click() inside the page
	ClickScript(ctx context.Context, sel string) error
	// CallHandler invokes the element's own onclick handler
	CallHandler(ctx context.Context, sel string) error

	Fill(ctx context.Context, sel, value string) error
	// Select picks an option by value and fires change
	Select(ctx context.Context, sel, value string) error
	Evaluate(ctx context.Context, expr string, res any) error

	// AcceptDialogs auto-accepts native dialogs until the returned func is called
	AcceptDialogs(ctx context.Context) (stop func())
	// WaitDialog waits for a native dialog, accepts it and returns its message
	WaitDialog(ctx context.Context, timeout time.Duration) (string, error)

	Pause(ctx context.Context, d time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)

	Closed() bool
	Close() error
}

// PageSource hands out the long-lived main page
type PageSource interface {
	MainPage(ctx context.Context) (Page, error)
}
