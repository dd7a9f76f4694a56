// Package capture screenshots the rendered day page with headless Chromium.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"dayplan/internal/fsutil"
	appLog "dayplan/internal/log"
)

const (
	DefaultWidth   = 400
	DefaultHeight  = 900
	DefaultTimeout = 30 * time.Second

	readySelector = `[data-ready="true"]`
)

// Options configures one capture.
type Options struct {
	// URL of the day page, e.g. "http://127.0.0.1:8080/day?date=2025-03-14".
	URL string
	// OutputPath, if set, receives the PNG.
	OutputPath string
	// Width and Height set the viewport; zero means the defaults.
	Width, Height int
	Timeout       time.Duration
	// NoSandbox is needed when running as root, e.g. in containers.
	NoSandbox bool
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// CaptureDayPNG loads opts.URL, waits until the page marks itself
// data-ready and returns a full-page PNG. With OutputPath set the PNG is
// also written there atomically.
func CaptureDayPNG(parent context.Context, opts Options) ([]byte, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	defer cancelAlloc()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, opts.Timeout)
	defer cancelTimeout()

	var png []byte
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if opts.OutputPath != "" {
		if err := fsutil.WriteFileAtomic(opts.OutputPath, png); err != nil {
			return nil, fmt.Errorf("capture: write %s: %w", opts.OutputPath, err)
		}
		appLog.Info("day preview captured", "path", opts.OutputPath, "bytes", len(png))
	}
	return png, nil
}
