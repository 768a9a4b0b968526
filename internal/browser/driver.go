// File: internal/browser/driver.go
// Package browser drives a Chromium instance for recipe steps that cross
// into web surfaces. One driver owns one browser process; recipe handlers
// talk to it through the schemas.BrowserDriver interface.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
)

const (
	defaultNavigationTimeout = 90 * time.Second
	downloadSettleTimeout    = 5 * time.Minute
)

// ErrNotLaunched reports a page operation before Launch.
var ErrNotLaunched = errors.New("browser: not launched")

// Driver is the chromedp-backed implementation of schemas.BrowserDriver.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu          sync.Mutex
	browserCtx  context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
}

var _ schemas.BrowserDriver = (*Driver)(nil)

// NewDriver builds an unlaunched driver.
func NewDriver(cfg config.Interface, logger *zap.Logger) *Driver {
	return &Driver{
		cfg:    cfg.Browser(),
		logger: logger.Named("BrowserDriver"),
	}
}

// Launch starts the browser process. Launching twice is an error.
func (d *Driver) Launch(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx != nil {
		return errors.New("browser: already launched")
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	// Stability flags for containerized and headless hosts.
	opts = append(opts,
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	// Force the browser process up now so Launch fails loudly instead of
	// deferring the error to the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return fmt.Errorf("browser: failed to launch: %w", err)
	}

	d.browserCtx = browserCtx
	d.cancelCtx = cancelCtx
	d.cancelAlloc = cancelAlloc
	d.logger.Info("Browser launched.",
		zap.Bool("headless", d.cfg.Headless),
		zap.String("exec_path", d.cfg.ExecPath))
	return nil
}

func (d *Driver) page(ctx context.Context) (context.Context, context.CancelFunc, error) {
	d.mu.Lock()
	browserCtx := d.browserCtx
	d.mu.Unlock()
	if browserCtx == nil {
		return nil, nil, ErrNotLaunched
	}

	timeout := d.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	pageCtx, cancel := context.WithTimeout(browserCtx, timeout)

	// Tie the page deadline to the caller's context too.
	stop := context.AfterFunc(ctx, cancel)
	return pageCtx, func() { stop(); cancel() }, nil
}

// Goto navigates the page and waits for the document body.
func (d *Driver) Goto(ctx context.Context, url string) error {
	pageCtx, cancel, err := d.page(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	d.logger.Debug("Navigating.", zap.String("url", url))
	if err := chromedp.Run(pageCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// Click waits for the selector to become visible and clicks it.
func (d *Driver) Click(ctx context.Context, selector string) error {
	pageCtx, cancel, err := d.page(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(pageCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

// Type clears the matched element and sends the text as keystrokes.
func (d *Driver) Type(ctx context.Context, selector, text string) error {
	pageCtx, cancel, err := d.page(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(pageCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("browser: type into %q: %w", selector, err)
	}
	return nil
}

// SaveDownload navigates to a URL that triggers a download and moves the
// completed file to dest. The browser writes into a scratch directory under
// a GUID name; the rename happens only after the download reports complete.
func (d *Driver) SaveDownload(ctx context.Context, url, dest string) error {
	d.mu.Lock()
	browserCtx := d.browserCtx
	d.mu.Unlock()
	if browserCtx == nil {
		return ErrNotLaunched
	}

	scratch, err := os.MkdirTemp("", "deskpilot-download-*")
	if err != nil {
		return fmt.Errorf("browser: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	timeout := d.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = downloadSettleTimeout
	}
	dlCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	done := make(chan string, 1)
	chromedp.ListenTarget(dlCtx, func(ev interface{}) {
		if progress, ok := ev.(*cdpbrowser.EventDownloadProgress); ok {
			if progress.State == cdpbrowser.DownloadProgressStateCompleted {
				select {
				case done <- progress.GUID:
				default:
				}
			}
		}
	})

	err = chromedp.Run(dlCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(scratch).
			WithEventsEnabled(true),
		chromedp.Navigate(url),
	)
	// Navigations that turn into downloads abort the page load. That is the
	// expected signal here, not a failure.
	if err != nil && !strings.Contains(err.Error(), "net::ERR_ABORTED") {
		return fmt.Errorf("browser: start download %s: %w", url, err)
	}

	select {
	case guid := <-done:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("browser: prepare destination: %w", err)
		}
		if err := moveFile(filepath.Join(scratch, guid), dest); err != nil {
			return fmt.Errorf("browser: store download: %w", err)
		}
		d.logger.Info("Download saved.", zap.String("url", url), zap.String("dest", dest))
		return nil
	case <-dlCtx.Done():
		return fmt.Errorf("browser: download %s did not complete: %w", url, dlCtx.Err())
	}
}

// moveFile renames when possible and falls back to copy+remove across
// filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}

// Close tears the browser process down. Safe to call without Launch and
// safe to call twice.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx == nil {
		return nil
	}
	d.cancelCtx()
	d.cancelAlloc()
	d.browserCtx = nil
	d.cancelCtx = nil
	d.cancelAlloc = nil
	d.logger.Info("Browser closed.")
	return nil
}
