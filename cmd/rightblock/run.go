package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rightblock/internal/browser"
	"rightblock/internal/controller"
	"rightblock/internal/engine"
	"rightblock/internal/handlers"
	"rightblock/internal/metrics"
	"rightblock/internal/models"
	"rightblock/internal/queue"
	"rightblock/internal/ratelimit"
	"rightblock/internal/scanner"
	"rightblock/internal/scheduler"
	"rightblock/internal/search"
)

const (
	questionTimeout = 2 * time.Minute
	shutdownTimeout = 5 * time.Second
)

func runCommand(a *app) *cobra.Command {
	var startURL string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the feed as the controller and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if startURL == "" {
				startURL = a.cfg.Browser.BaseURL
			}
			return a.runController(ctx, startURL)
		},
	}
	cmd.Flags().StringVar(&startURL, "url", "", "page to open (default browser.base_url)")
	return cmd
}

func (a *app) runController(ctx context.Context, startURL string) error {
	log := a.log
	st, idx, err := a.openState(ctx, false)
	if err != nil {
		return err
	}
	defer st.Store().Close()

	if st.Store().Get(ctx, models.KeyMode, "") == "" && a.cfg.Mode != "" {
		if err := st.SetMode(ctx, models.DesktopMode(a.cfg.Mode)); err != nil {
			return err
		}
	}

	b, err := browser.New(ctx, a.cfg.Browser, log.Named("browser"))
	if err != nil {
		return err
	}
	defer b.Close()

	page, err := b.First()
	if err != nil {
		return err
	}
	if err := page.Navigate(ctx, startURL); err != nil {
		return err
	}

	var busy atomic.Bool
	inbox := controller.NewInbox(questionTimeout)
	sc := scanner.New(page, st, log.Named("scanner"))
	fg := engine.NewForeground(page, st, engine.TimingFromConfig(a.cfg.Engine), log.Named("foreground"))
	fg.SetRecorder(metrics.Recorder{})

	var launcher interface {
		controller.Launcher
		Wait()
	}
	if a.cfg.Browser.SameTabWorker {
		launcher = &sameTabLauncher{ctx: ctx, page: page, st: st, cfg: a.cfg, alert: inbox, log: log, busy: &busy}
	} else {
		launcher = &tabLauncher{ctx: ctx, browser: b, st: st, cfg: a.cfg, alert: inbox, log: log}
	}
	defer launcher.Wait()

	session := controller.NewSession(st, sc, fg, inbox, launcher, a.cfg.Scanner.GetRefreshThrottle(), log.Named("session"))

	var searcher handlers.Searcher
	if idx != nil {
		searcher = idx
	}
	limiter := ratelimit.NewRateLimiter(a.cfg.RateLimit.RequestsPerMinute, a.cfg.RateLimit.Enabled)
	h := handlers.NewAdminHandler(ctx, session, inbox, searcher, limiter, log.Named("api"))
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           h.Router(a.cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// the API must be up before Boot so the disclaimer can be answered
	go func() {
		log.Info("control API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("control API stopped", zap.Error(err))
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
		h.Wait()
	}()

	here, err := page.Location(ctx)
	if err != nil {
		return err
	}
	res, err := controller.Boot(ctx, st, inbox, here, log.Named("boot"))
	if err != nil {
		return err
	}
	log.Info("page booted", zap.Stringer("role", res.Role), zap.Bool("upgraded", res.Upgraded))

	if res.Role == controller.RoleWorker {
		return runWorker(ctx, page, st, a.cfg, inbox, log)
	}
	if !res.ScannerEnabled {
		log.Warn("disclaimer not accepted, selection is disabled")
		<-ctx.Done()
		return nil
	}

	sched, err := a.controllerJobs(st, sc, session, &busy)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	if err := st.Store().Follow(ctx, models.SharedKeys, func(string) { session.RequestRefresh(ctx) }); err != nil {
		log.Info("store has no change notifications, relying on the invalidate poll", zap.Error(err))
	}

	go sc.Run(ctx, gateEvents(ctx, page.Events(), &busy))
	if _, err := sc.Scan(ctx); err != nil {
		log.Warn("initial scan failed", zap.Error(err))
	}
	if err := session.Refresh(ctx); err != nil {
		log.Warn("initial refresh failed", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

// controllerJobs registers the fallback scan, the cache invalidate poll and
// the gauge refresh
func (a *app) controllerJobs(st *queue.State, sc *scanner.Scanner, session *controller.Session, busy *atomic.Bool) (*scheduler.Scheduler, error) {
	log := a.log.Named("scheduler")
	sched := scheduler.NewScheduler(log)

	scan := gatedScanner{scan: sc.Scan, busy: busy}
	if err := sched.Add("fallback-scan", a.cfg.Scanner.FallbackInterval, scheduler.ScanJob(scan, log)); err != nil {
		return nil, err
	}
	refresh := func() { session.RequestRefresh(context.Background()) }
	if err := sched.Add("invalidate", a.cfg.Scanner.InvalidateInterval, scheduler.InvalidateJob(st.Store(), refresh)); err != nil {
		return nil, err
	}
	if err := sched.Add("metrics", "@every 10s", func(ctx context.Context) error {
		metrics.ObserveState(ctx, st)
		return nil
	}); err != nil {
		return nil, err
	}
	return sched, nil
}

var _ handlers.Searcher = (*search.HistoryIndex)(nil)
