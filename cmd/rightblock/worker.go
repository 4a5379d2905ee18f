package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rightblock/internal/browser"
	"rightblock/internal/controller"
	"rightblock/internal/engine"
	"rightblock/internal/queue"
	"rightblock/internal/site"
)

func workerCommand(a *app) *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Drain the Active Queue in a separate process sharing the store",
		Long: `Runs the background worker against the shared durable store. With
--watch the process stays up and opens a new worker tab whenever users are
queued and no other worker is running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runWorkerProcess(ctx, watch)
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "poll interval for new work (0 runs once)")
	return cmd
}

func (a *app) runWorkerProcess(ctx context.Context, watch time.Duration) error {
	st, _, err := a.openState(ctx, true)
	if err != nil {
		return err
	}
	defer st.Store().Close()

	b, err := browser.New(ctx, a.cfg.Browser, a.log.Named("browser"))
	if err != nil {
		return err
	}
	defer b.Close()

	if err := a.workerPass(ctx, b, st); err != nil || watch <= 0 {
		return err
	}

	ticker := time.NewTicker(watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if len(st.Queue(ctx)) == 0 || st.WorkerRunning(ctx) || st.InCooldown(ctx) {
				continue
			}
			if err := a.workerPass(ctx, b, st); err != nil {
				a.log.Warn("worker pass failed", zap.Error(err))
			}
		}
	}
}

// workerPass opens a worker tab, boots it and drains the queue once
func (a *app) workerPass(ctx context.Context, b *browser.Browser, st *queue.State) error {
	if err := st.ClearCommand(ctx); err != nil {
		return err
	}
	page, err := b.NewTab()
	if err != nil {
		return err
	}
	if err := page.Navigate(ctx, site.WorkerURL(a.cfg.Browser.BaseURL)); err != nil {
		_ = page.Close(context.Background())
		return err
	}
	here, err := page.Location(ctx)
	if err != nil {
		return err
	}
	notifier := controller.NewLogNotifier(a.log, false)
	res, err := controller.Boot(ctx, st, notifier, here, a.log.Named("boot"))
	if err != nil {
		return err
	}
	if res.Role != controller.RoleWorker {
		_ = page.Close(context.Background())
		return fmt.Errorf("worker tab booted as %s", res.Role)
	}

	err = runWorker(ctx, page, st, a.cfg, notifier, a.log)
	if errors.Is(err, engine.ErrCooldown) {
		a.log.Warn("worker paused for cooldown", zap.Time("until", st.CooldownUntil(ctx)))
		return nil
	}
	return err
}
