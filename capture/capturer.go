package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/pagediff/config"
	"github.com/use-agent/pagediff/models"
)

// Page is the raw result of one capture. Image holds the encoded
// full-page screenshot and Markup the post-JavaScript document.
type Page struct {
	URL    string
	Image  []byte
	Markup string
	Height int
}

// Release drops the page's buffers so they can be reclaimed.
func (p *Page) Release() {
	if p == nil {
		return
	}
	p.Image = nil
	p.Markup = ""
}

// Capturer renders URLs into Pages. It bounds the number of concurrently
// open sessions and is safe for concurrent use.
type Capturer struct {
	browser Browser
	cfg     config.CaptureConfig
	style   string
	sem     chan struct{}
	active  atomic.Int32
	logger  *slog.Logger
}

// NewCapturer creates a Capturer that opens at most maxSessions sessions at
// a time. A nil logger means slog.Default().
func NewCapturer(b Browser, cfg config.CaptureConfig, maxSessions int, logger *slog.Logger) *Capturer {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		browser: b,
		cfg:     cfg,
		style:   StabilizingStyle(cfg.HiddenSelectors),
		sem:     make(chan struct{}, maxSessions),
		logger:  logger,
	}
}

// Stats reports session utilisation.
func (c *Capturer) Stats() models.SessionStats {
	return models.SessionStats{
		MaxSessions:    cap(c.sem),
		ActiveSessions: int(c.active.Load()),
	}
}

// SettleDuration is how long to wait at the bottom of a page of the given
// height for lazy content: proportional to height, never below MinSettle and,
// when MaxSettle is set, never above it.
func (c *Capturer) SettleDuration(height int) time.Duration {
	d := time.Duration(height) * c.cfg.SettlePerPixel
	if d < c.cfg.MinSettle {
		d = c.cfg.MinSettle
	}
	if c.cfg.MaxSettle > 0 && d > c.cfg.MaxSettle {
		d = c.cfg.MaxSettle
	}
	return d
}

// Capture loads url in a fresh isolated session and returns its screenshot
// and rendered markup.
//
// Lifecycle:
//
//  1. Timeout guard   – hard deadline on the whole capture
//  2. Acquire slot    – bounded by maxSessions
//  3. Open session    – incognito context, fixed viewport
//  4. DEFER: close    – on every path, including errors and timeouts
//  5. Navigate        – wait for the load event
//  6. Stabilize       – freeze animations, hide consent banners
//  7. Settle          – scroll to bottom, wait, scroll back to top
//  8. Screenshot      – full page
//  9. Markup          – document HTML after scripts ran
func (c *Capturer) Capture(ctx context.Context, url string) (*Page, error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	// ── 2. Acquire slot ───────────────────────────────────────────────
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, categorizeError(ctx, ctx.Err(), "timed out waiting for a browser session", url)
	}
	defer func() { <-c.sem }()

	c.active.Add(1)
	defer c.active.Add(-1)

	// ── 3. Open session ───────────────────────────────────────────────
	sess, err := c.browser.OpenSession(ctx, SessionOptions{
		ViewportWidth:  c.cfg.ViewportWidth,
		ViewportHeight: c.cfg.ViewportHeight,
		BlockAds:       c.cfg.BlockAds,
		ExtraHeaders:   c.cfg.ExtraHeaders,
	})
	if err != nil {
		return nil, categorizeError(ctx, err, "failed to open browser session", url)
	}

	// ── 4. Guaranteed teardown ────────────────────────────────────────
	defer func() {
		if err := sess.Close(); err != nil {
			c.logger.Warn("failed to close browser session", "url", url, "error", err)
		}
	}()

	// ── 5. Navigate ───────────────────────────────────────────────────
	navCtx := ctx
	if c.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, c.cfg.NavigationTimeout)
		defer cancel()
	}
	if err := sess.Navigate(navCtx, url); err != nil {
		return nil, categorizeError(navCtx, err, "navigation failed", url)
	}

	// ── 6. Stabilize ──────────────────────────────────────────────────
	if err := sess.InjectStyle(ctx, c.style); err != nil {
		return nil, categorizeError(ctx, err, "failed to inject stabilizing style", url)
	}

	// ── 7. Settle ─────────────────────────────────────────────────────
	height, err := sess.Scroll(ctx, ScrollBottom)
	if err != nil {
		return nil, categorizeError(ctx, err, "failed to scroll to bottom", url)
	}
	settle := c.SettleDuration(height)
	c.logger.Debug("waiting for page to settle", "url", url, "height", height, "settle", settle)
	if err := sleep(ctx, settle); err != nil {
		return nil, categorizeError(ctx, err, "page did not settle in time", url)
	}
	if _, err := sess.Scroll(ctx, ScrollTop); err != nil {
		return nil, categorizeError(ctx, err, "failed to scroll to top", url)
	}

	// ── 8. Screenshot ─────────────────────────────────────────────────
	img, err := sess.Screenshot(ctx, ScreenshotOptions{
		Format:   c.cfg.ImageFormat,
		Quality:  c.cfg.ImageQuality,
		FullPage: true,
	})
	if err != nil {
		return nil, categorizeError(ctx, err, "failed to capture screenshot", url)
	}

	// ── 9. Markup ─────────────────────────────────────────────────────
	markup, err := sess.RenderedMarkup(ctx)
	if err != nil {
		return nil, categorizeError(ctx, err, "failed to read rendered markup", url)
	}

	return &Page{URL: url, Image: img, Markup: markup, Height: height}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// categorizeError maps a capture failure to CAPTURE_TIMEOUT when a deadline
// caused it and CAPTURE_FAILED otherwise.
func categorizeError(ctx context.Context, err error, msg, url string) *models.DiffError {
	code := models.ErrCodeCapture
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = models.ErrCodeTimeout
	}
	return models.NewDiffError(code, msg, err).WithStage(models.StageCapture, url)
}
