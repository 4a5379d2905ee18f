package main

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"rightblock/internal/browser"
	"rightblock/internal/config"
	"rightblock/internal/engine"
	"rightblock/internal/logger"
	"rightblock/internal/metrics"
	"rightblock/internal/models"
	"rightblock/internal/queue"
	"rightblock/internal/ratelimit"
	"rightblock/internal/site"
)

// runWorker drains the Active Queue on page until it halts. A cooldown is
// raised through alert.
func runWorker(ctx context.Context, page engine.Navigator, st *queue.State, cfg *config.Config, alert engine.Alerter, log *zap.Logger) error {
	wlog := logger.WithBroadcast(log.Named("worker"), func(msg string) {
		st.Store().Broadcast(context.WithoutCancel(ctx), msg)
	})
	pacer := ratelimit.NewPacer(config.Ms(cfg.Engine.NavigateBaseMs), config.Ms(cfg.Engine.NavigateJitterMs))
	w := engine.NewWorker(page, st, engine.TimingFromConfig(cfg.Engine), pacer, cfg.Browser.BaseURL, wlog)
	w.SetRecorder(metrics.Recorder{})
	w.SetAlerter(alert)
	wlog.Info("worker started", zap.String("id", w.ID()))
	return w.Run(ctx)
}

// tabLauncher opens every worker in a new tab of the same browser
type tabLauncher struct {
	ctx     context.Context
	browser *browser.Browser
	st      *queue.State
	cfg     *config.Config
	alert   engine.Alerter
	log     *zap.Logger
	wg      sync.WaitGroup
}

func (l *tabLauncher) Launch(ctx context.Context) error {
	page, err := l.browser.NewTab()
	if err != nil {
		return err
	}
	if err := page.Navigate(ctx, site.WorkerURL(l.cfg.Browser.BaseURL)); err != nil {
		_ = page.Close(context.Background())
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := runWorker(l.ctx, page, l.st, l.cfg, l.alert, l.log); err != nil {
			l.log.Warn("worker ended", zap.Error(err))
		}
	}()
	return nil
}

func (l *tabLauncher) Wait() {
	l.wg.Wait()
}

// sameTabLauncher runs the worker in the controller's own tab. The scanner
// is paused while it runs and the worker navigates back when it halts.
type sameTabLauncher struct {
	ctx   context.Context
	page  *browser.Page
	st    *queue.State
	cfg   *config.Config
	alert engine.Alerter
	log   *zap.Logger
	busy  *atomic.Bool
	wg    sync.WaitGroup
}

func (l *sameTabLauncher) Launch(ctx context.Context) error {
	if !l.busy.CompareAndSwap(false, true) {
		return nil
	}
	here, err := l.page.Location(ctx)
	if err != nil {
		l.busy.Store(false)
		return err
	}
	if err := l.st.SetReturnURL(ctx, here); err != nil {
		l.busy.Store(false)
		return err
	}
	if err := l.page.Navigate(ctx, site.WorkerURL(l.cfg.Browser.BaseURL)); err != nil {
		l.busy.Store(false)
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.busy.Store(false)
		if err := runWorker(l.ctx, l.page, l.st, l.cfg, l.alert, l.log); err != nil {
			l.log.Warn("worker ended", zap.Error(err))
		}
	}()
	return nil
}

func (l *sameTabLauncher) Wait() {
	l.wg.Wait()
}

// gatedScanner skips scans while the tab is lent to the worker
type gatedScanner struct {
	scan func(ctx context.Context) (int, error)
	busy *atomic.Bool
}

func (g gatedScanner) Scan(ctx context.Context) (int, error) {
	if g.busy.Load() {
		return 0, nil
	}
	n, err := g.scan(ctx)
	metrics.MarkersInjected.Add(float64(n))
	return n, err
}

// gateEvents forwards page events unless the tab is lent to the worker
func gateEvents(ctx context.Context, in <-chan models.PageEvent, busy *atomic.Bool) <-chan models.PageEvent {
	out := make(chan models.PageEvent, cap(in))
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				if busy.Load() {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out
}
