// Package browser drives Chrome over the DevTools protocol.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"rightblock/internal/config"
)

// Browser owns one Chrome instance. Each Page is a tab in it.
type Browser struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	rootCtx     context.Context
	cancelRoot  context.CancelFunc
	log         *zap.Logger
}

// New launches Chrome, or attaches to a running one when cfg.RemoteURL is set
func New(ctx context.Context, cfg config.BrowserConfig, log *zap.Logger) (*Browser, error) {
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc

	if cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", cfg.Headless),
			chromedp.Flag("disable-dev-shm-usage", true), // Prevents /dev/shm issues
			chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		)
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		// a persistent profile keeps the host login between runs
		if cfg.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}

	rootCtx, cancelRoot := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(rootCtx); err != nil {
		cancelRoot()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Browser{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		rootCtx:     rootCtx,
		cancelRoot:  cancelRoot,
		log:         log,
	}, nil
}

// First returns the tab the browser started with
func (b *Browser) First() (*Page, error) {
	return newPage(b.rootCtx, b.cancelRoot, b.log.Named("tab"))
}

// NewTab opens a new blank tab
func (b *Browser) NewTab() (*Page, error) {
	ctx, cancel := chromedp.NewContext(b.rootCtx)
	// Run allocates the target
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return newPage(ctx, cancel, b.log.Named("tab"))
}

// Close shuts down Chrome, or detaches from a remote one
func (b *Browser) Close() {
	b.cancelRoot()
	b.cancelAlloc()
}
