// Package capture renders pages in a headless browser and produces the
// screenshot and rendered markup the diff pipeline compares.
package capture

import "context"

// ScrollPosition selects where Session.Scroll moves the viewport.
type ScrollPosition int

const (
	ScrollTop ScrollPosition = iota
	ScrollBottom
)

// SessionOptions configures one isolated browser session.
type SessionOptions struct {
	ViewportWidth  int
	ViewportHeight int
	BlockAds       bool
	ExtraHeaders   map[string]string
}

// ScreenshotOptions configures Session.Screenshot.
type ScreenshotOptions struct {
	Format   string // "jpeg", "png" or "webp"
	Quality  int    // ignored for png
	FullPage bool
}

// Browser opens isolated sessions. Sessions never share cookies, storage
// or cache with each other.
type Browser interface {
	OpenSession(ctx context.Context, opts SessionOptions) (Session, error)
	Close() error
}

// Session is one isolated tab. Close must be called on every path.
type Session interface {
	Navigate(ctx context.Context, url string) error
	InjectStyle(ctx context.Context, css string) error

	// Scroll moves the viewport and returns the document height in CSS
	// pixels, measured before scrolling.
	Scroll(ctx context.Context, pos ScrollPosition) (int, error)

	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	RenderedMarkup(ctx context.Context) (string, error)
	Close() error
}
