package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/pagediff/config"
)

// RodBrowser is the Browser backed by a single local Chrome process.
// Every session runs in its own incognito browser context.
type RodBrowser struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	stealth bool
	once    sync.Once
}

// NewRodBrowser launches Chrome and connects to it.
func NewRodBrowser(cfg config.BrowserConfig) (*RodBrowser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("hide-scrollbars"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("capture: launch browser: %w", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("capture: connect browser: %w", err)
	}

	return &RodBrowser{browser: browser, lnch: l, stealth: cfg.Stealth}, nil
}

// OpenSession creates a fresh incognito context with one page in it.
func (b *RodBrowser) OpenSession(ctx context.Context, opts SessionOptions) (Session, error) {
	incognito, err := b.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("capture: open incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("capture: create page: %w", err)
	}

	s := &rodSession{incognito: incognito, page: page}

	if b.stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.ViewportWidth,
		Height:            opts.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("capture: set viewport: %w", err)
	}

	if len(opts.ExtraHeaders) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(opts.ExtraHeaders),
		}).Call(page); err != nil {
			slog.Warn("failed to set extra headers", "error", err)
		}
	}

	if opts.BlockAds {
		s.router = blockAds(page)
	}

	return s, nil
}

// Close kills the browser process. It is safe to call more than once.
func (b *RodBrowser) Close() error {
	var err error
	b.once.Do(func() {
		slog.Info("browser shutting down")
		err = b.browser.Close()
		b.lnch.Kill()
		b.lnch.Cleanup()
	})
	return err
}

type rodSession struct {
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *rodSession) InjectStyle(ctx context.Context, css string) error {
	return s.page.Context(ctx).AddStyleTag("", css)
}

const scrollJS = `(bottom) => {
	const h = Math.max(
		document.body ? document.body.scrollHeight : 0,
		document.documentElement ? document.documentElement.scrollHeight : 0,
	);
	window.scrollTo(0, bottom ? h : 0);
	return h;
}`

func (s *rodSession) Scroll(ctx context.Context, pos ScrollPosition) (int, error) {
	res, err := s.page.Context(ctx).Eval(scrollJS, pos == ScrollBottom)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (s *rodSession) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{}
	switch opts.Format {
	case "png":
		req.Format = proto.PageCaptureScreenshotFormatPng
	case "webp":
		req.Format = proto.PageCaptureScreenshotFormatWebp
		req.Quality = gson.Int(opts.Quality)
	default:
		req.Format = proto.PageCaptureScreenshotFormatJpeg
		req.Quality = gson.Int(opts.Quality)
	}
	return s.page.Context(ctx).Screenshot(opts.FullPage, req)
}

func (s *rodSession) RenderedMarkup(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Close stops request interception, closes the page and disposes of the
// incognito context. It does not depend on any request context, so it
// succeeds after a capture deadline has passed.
func (s *rodSession) Close() error {
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Stop())
	}
	errs = append(errs, s.page.Close(), s.incognito.Close())
	return errors.Join(errs...)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
