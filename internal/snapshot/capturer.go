// Package snapshot renders the source page in headless Chrome and saves a
// full-page screenshot for audit.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

// ContentType of the saved screenshot.
const ContentType = "image/png"

const defaultTimeout = 60 * time.Second

// Config controls the browser used for captures.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	ExecPath  string
	Width     int
	Height    int
}

// Launcher starts a browser and returns a tab context plus the function that
// tears the browser down.
type Launcher func(parent context.Context, cfg Config) (context.Context, context.CancelFunc, error)

// Shooter navigates the tab to url and returns PNG bytes with the HTTP
// status of the main document (0 when unknown).
type Shooter func(ctx context.Context, url string) ([]byte, int, error)

// Capturer implements scraper.Capturer.
type Capturer struct {
	cfg    Config
	files  scraper.BlobStore
	mirror scraper.BlobStore
	launch Launcher
	shoot  Shooter
	logger *zap.Logger
}

// Option customizes a Capturer.
type Option func(*Capturer)

// WithMirror copies each screenshot to an additional blob store.
func WithMirror(mirror scraper.BlobStore) Option {
	return func(c *Capturer) { c.mirror = mirror }
}

// WithLauncher overrides how the browser is started.
func WithLauncher(l Launcher) Option {
	return func(c *Capturer) { c.launch = l }
}

// WithShooter overrides the navigation and screenshot actions.
func WithShooter(s Shooter) Option {
	return func(c *Capturer) { c.shoot = s }
}

// New creates a Capturer that writes screenshots into files.
func New(cfg Config, files scraper.BlobStore, logger *zap.Logger, opts ...Option) (*Capturer, error) {
	if files == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 1920, 1080
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Capturer{
		cfg:    cfg,
		files:  files,
		launch: ChromedpLauncher,
		shoot:  chromedpShooter,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Capture renders url, saves the screenshot at path, and returns its URI.
// The browser is released on every return path.
func (c *Capturer) Capture(ctx context.Context, url string, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	tabCtx, release, err := c.launch(ctx, c.cfg)
	if err != nil {
		return "", &scraper.RenderError{URL: url, Err: fmt.Errorf("launch browser: %w", err)}
	}
	defer release()

	img, status, err := c.shoot(tabCtx, url)
	if err != nil {
		return "", classify(url, status, err)
	}
	if status >= http.StatusBadRequest {
		return "", &scraper.NetworkError{URL: url, StatusCode: status, Err: errors.New("unexpected status")}
	}

	uri, err := c.files.PutObject(ctx, path, ContentType, bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	if c.mirror != nil {
		if _, err := c.mirror.PutObject(ctx, path, ContentType, bytes.NewReader(img)); err != nil {
			c.logger.Warn("screenshot mirror failed", zap.String("path", path), zap.Error(err))
		}
	}
	return uri, nil
}

// Navigation failures reported by Chrome carry a net::ERR_ code.
func classify(url string, status int, err error) error {
	if strings.Contains(err.Error(), "net::ERR_") {
		return &scraper.NetworkError{URL: url, StatusCode: status, Err: err}
	}
	return &scraper.RenderError{URL: url, Err: err}
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// ChromedpLauncher starts a dedicated Chrome process for one capture.
func ChromedpLauncher(parent context.Context, cfg Config) (context.Context, context.CancelFunc, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	return tabCtx, func() {
		tabCancel()
		allocCancel()
	}, nil
}

func chromedpShooter(ctx context.Context, url string) ([]byte, int, error) {
	meta := &documentStatus{}
	chromedp.ListenTarget(ctx, meta.captureEvent)

	var buf []byte
	err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, meta.get(), fmt.Errorf("chromedp run: %w", err)
	}
	return buf, meta.get(), nil
}

// documentStatus remembers the status of the last main-document response.
type documentStatus struct {
	mu     sync.Mutex
	status int
}

func (d *documentStatus) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	d.status = int(resp.Response.Status)
	d.mu.Unlock()
}

func (d *documentStatus) get() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}
