package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/pagediff/imgdiff"
	"github.com/use-agent/pagediff/normalizer"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Capture   CaptureConfig
	Compare   CompareConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Webhook   WebhookConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the shared Chrome process.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// Stealth masks navigator.webdriver and friends on every page.
	Stealth bool // default: true

	// MaxSessions caps concurrently open capture sessions.
	MaxSessions int // default: 4
}

// CaptureConfig controls how a single page is rendered.
type CaptureConfig struct {
	ViewportWidth  int // default: 1280
	ViewportHeight int // default: 720

	// Timeout bounds one whole capture, settle time included.
	Timeout time.Duration // default: 60s

	// NavigationTimeout bounds navigation up to the load event.
	NavigationTimeout time.Duration // default: 30s

	// The settle wait at the bottom of the page is height*SettlePerPixel,
	// clamped to [MinSettle, MaxSettle]. MaxSettle 0 means no cap.
	MinSettle      time.Duration // default: 3s
	SettlePerPixel time.Duration // default: 200µs (height/5 ms)
	MaxSettle      time.Duration // default: 15s

	// ImageFormat is "jpeg", "png" or "webp".
	ImageFormat  string // default: "jpeg"
	ImageQuality int    // default: 90

	// HiddenSelectors are hidden with display:none before capture.
	HiddenSelectors []string

	// BlockAds fails requests to known ad and tracking hosts.
	BlockAds bool // default: true

	// ExtraHeaders are sent with every request the page makes.
	ExtraHeaders map[string]string
}

// CompareConfig controls the three comparisons.
type CompareConfig struct {
	// Tolerance is the CIEDE2000 colour distance under which pixels match.
	Tolerance float64 // default: 5.0

	// AntialiasingTolerance is the luma delta treated as "same" during
	// anti-aliasing detection.
	AntialiasingTolerance float64 // default: 0

	IgnoreAntialiasing bool // default: true
	IgnoreCaret        bool // default: true

	// HighlightColor paints differing pixels in the diff image.
	HighlightColor string // default: "#ff00ff"

	// SeparateDiffAsset stores the diff overlay as its own asset instead of
	// replacing the after screenshot.
	SeparateDiffAsset bool // default: false

	// ConcurrentCapture renders before and after in parallel.
	ConcurrentCapture bool // default: true

	// IgnoreSelectors are removed from the markup before body comparison.
	IgnoreSelectors []string
}

// StoreConfig selects and configures the snapshot store.
type StoreConfig struct {
	// Driver is "sqlite", "memory" or "redis".
	Driver string // default: "sqlite"

	// Path is the SQLite database file.
	Path string // default: "pagediff.db"

	RedisAddr     string // default: "localhost:6379"
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // default: "pagediff:"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the snapshot record cache.
type CacheConfig struct {
	// TTL is how long a fetched record stays cached. 0 disables the cache.
	TTL time.Duration // default: 10m

	// MaxEntries caps the number of cached records.
	MaxEntries int // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// WebhookConfig controls completion notifications.
type WebhookConfig struct {
	// URL receives snapshot.completed and snapshot.failed events. Empty
	// disables notifications.
	URL string

	// Secret signs payloads with HMAC-SHA256.
	Secret string
}

// DefaultHiddenSelectors hide consent banners that appear nondeterministically.
var DefaultHiddenSelectors = []string{
	`[class*="osano"]`,
	`#onetrust-consent-sdk`,
	`#CybotCookiebotDialog`,
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PAGEDIFF_HOST", "0.0.0.0"),
			Port: envIntOr("PAGEDIFF_PORT", 8080),
			Mode: envOr("PAGEDIFF_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:    envBoolOr("PAGEDIFF_HEADLESS", true),
			NoSandbox:   envBoolOr("PAGEDIFF_NO_SANDBOX", false),
			BrowserBin:  os.Getenv("PAGEDIFF_BROWSER_BIN"),
			Proxy:       os.Getenv("PAGEDIFF_PROXY"),
			Stealth:     envBoolOr("PAGEDIFF_STEALTH", true),
			MaxSessions: envIntOr("PAGEDIFF_MAX_SESSIONS", 4),
		},
		Capture: CaptureConfig{
			ViewportWidth:     envIntOr("PAGEDIFF_VIEWPORT_WIDTH", 1280),
			ViewportHeight:    envIntOr("PAGEDIFF_VIEWPORT_HEIGHT", 720),
			Timeout:           envDurationOr("PAGEDIFF_CAPTURE_TIMEOUT", 60*time.Second),
			NavigationTimeout: envDurationOr("PAGEDIFF_NAV_TIMEOUT", 30*time.Second),
			MinSettle:         envDurationOr("PAGEDIFF_MIN_SETTLE", 3*time.Second),
			SettlePerPixel:    envDurationOr("PAGEDIFF_SETTLE_PER_PIXEL", 200*time.Microsecond),
			MaxSettle:         envDurationOr("PAGEDIFF_MAX_SETTLE", 15*time.Second),
			ImageFormat:       envOr("PAGEDIFF_IMAGE_FORMAT", "jpeg"),
			ImageQuality:      envIntOr("PAGEDIFF_IMAGE_QUALITY", 90),
			HiddenSelectors:   envSliceSepOr("PAGEDIFF_HIDDEN_SELECTORS", ";", DefaultHiddenSelectors),
			BlockAds:          envBoolOr("PAGEDIFF_BLOCK_ADS", true),
			ExtraHeaders:      envMapOr("PAGEDIFF_EXTRA_HEADERS", nil),
		},
		Compare: CompareConfig{
			Tolerance:             envFloatOr("PAGEDIFF_TOLERANCE", 5.0),
			AntialiasingTolerance: envFloatOr("PAGEDIFF_AA_TOLERANCE", 0),
			IgnoreAntialiasing:    envBoolOr("PAGEDIFF_IGNORE_ANTIALIASING", true),
			IgnoreCaret:           envBoolOr("PAGEDIFF_IGNORE_CARET", true),
			HighlightColor:        envOr("PAGEDIFF_HIGHLIGHT_COLOR", "#ff00ff"),
			SeparateDiffAsset:     envBoolOr("PAGEDIFF_SEPARATE_DIFF_ASSET", false),
			ConcurrentCapture:     envBoolOr("PAGEDIFF_CONCURRENT_CAPTURE", true),
			IgnoreSelectors:       envSliceSepOr("PAGEDIFF_IGNORE_SELECTORS", ";", nil),
		},
		Store: StoreConfig{
			Driver:        envOr("PAGEDIFF_STORE", "sqlite"),
			Path:          envOr("PAGEDIFF_DB_PATH", "pagediff.db"),
			RedisAddr:     envOr("PAGEDIFF_REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("PAGEDIFF_REDIS_PASSWORD"),
			RedisDB:       envIntOr("PAGEDIFF_REDIS_DB", 0),
			RedisPrefix:   envOr("PAGEDIFF_REDIS_PREFIX", "pagediff:"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PAGEDIFF_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PAGEDIFF_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PAGEDIFF_RATE_RPS", 1.0),
			Burst:             envIntOr("PAGEDIFF_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			TTL:        envDurationOr("PAGEDIFF_CACHE_TTL", 10*time.Minute),
			MaxEntries: envIntOr("PAGEDIFF_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("PAGEDIFF_LOG_LEVEL", "info"),
			Format: envOr("PAGEDIFF_LOG_FORMAT", "json"),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("PAGEDIFF_WEBHOOK_URL"),
			Secret: os.Getenv("PAGEDIFF_WEBHOOK_SECRET"),
		},
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Capture.ViewportWidth <= 0 || c.Capture.ViewportHeight <= 0 {
		errs = append(errs, fmt.Errorf("viewport must be positive, got %dx%d",
			c.Capture.ViewportWidth, c.Capture.ViewportHeight))
	}
	switch c.Capture.ImageFormat {
	case "jpeg", "png", "webp":
	default:
		errs = append(errs, fmt.Errorf("unknown image format %q", c.Capture.ImageFormat))
	}
	if c.Capture.ImageFormat != "png" && (c.Capture.ImageQuality < 1 || c.Capture.ImageQuality > 100) {
		errs = append(errs, fmt.Errorf("image quality must be in 1..100, got %d", c.Capture.ImageQuality))
	}
	if c.Capture.MaxSettle > 0 && c.Capture.MaxSettle < c.Capture.MinSettle {
		errs = append(errs, fmt.Errorf("max settle %v is below min settle %v",
			c.Capture.MaxSettle, c.Capture.MinSettle))
	}
	if _, err := normalizer.CompileSelectors(c.Capture.HiddenSelectors); err != nil {
		errs = append(errs, fmt.Errorf("hidden selectors: %w", err))
	}
	if c.Browser.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("max sessions must be positive, got %d", c.Browser.MaxSessions))
	}
	if _, err := c.Compare.ImageOptions(); err != nil {
		errs = append(errs, err)
	}
	if _, err := normalizer.CompileSelectors(c.Compare.IgnoreSelectors); err != nil {
		errs = append(errs, fmt.Errorf("ignore selectors: %w", err))
	}
	switch c.Store.Driver {
	case "sqlite", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

// ImageOptions converts the comparison settings to imgdiff options.
func (c CompareConfig) ImageOptions() (imgdiff.Options, error) {
	if c.Tolerance < 0 || c.AntialiasingTolerance < 0 {
		return imgdiff.Options{}, fmt.Errorf("tolerances must not be negative")
	}
	hl, err := imgdiff.ParseHexColor(c.HighlightColor)
	if err != nil {
		return imgdiff.Options{}, fmt.Errorf("highlight color: %w", err)
	}
	return imgdiff.Options{
		Tolerance:             c.Tolerance,
		AntialiasingTolerance: c.AntialiasingTolerance,
		IgnoreAntialiasing:    c.IgnoreAntialiasing,
		IgnoreCaret:           c.IgnoreCaret,
		HighlightColor:        hl,
	}, nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	return envSliceSepOr(key, ",", fallback)
}

// envSliceSepOr splits on sep; CSS selector lists use ";" because
// selectors themselves contain commas.
func envSliceSepOr(key, sep string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, sep)
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

// envMapOr parses "Key=Value,Key2=Value2".
func envMapOr(key string, fallback map[string]string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	m := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return m
}
