package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rightblock/internal/dom"
	"rightblock/internal/models"
	"rightblock/internal/poll"
	"rightblock/internal/queue"
)

// Summary reports a finished foreground run
type Summary struct {
	Success     int
	Failed      int
	FailedUsers []string
	// Halted is set when the run stopped early for a cooldown
	Halted bool
}

// Foreground blocks the selected posts of the feed page the user is looking at
type Foreground struct {
	page     Page
	st       *queue.State
	t        Timing
	log      *zap.Logger
	rec      Recorder
	progress func(done, total int)
	finished func(ref string)
}

// NewForeground creates a foreground runner
func NewForeground(page Page, st *queue.State, t Timing, log *zap.Logger) *Foreground {
	if log == nil {
		log = zap.NewNop()
	}
	return &Foreground{page: page, st: st, t: t, log: log, rec: nopRecorder{}}
}

// SetRecorder sets the outcome recorder
func (f *Foreground) SetRecorder(r Recorder) {
	if r != nil {
		f.rec = r
	}
}

// OnProgress registers a callback run after each target
func (f *Foreground) OnProgress(fn func(done, total int)) {
	f.progress = fn
}

// OnFinished registers a callback run with the ref of each blocked target
func (f *Foreground) OnFinished(fn func(ref string)) {
	f.finished = fn
}

// Run attempts every target in order. Failures never stop the run; an active
// cooldown does.
func (f *Foreground) Run(ctx context.Context, targets []models.Target) (Summary, error) {
	var sum Summary
	if len(targets) == 0 {
		return sum, ErrNoTargets
	}
	if f.st.InCooldown(ctx) {
		return sum, ErrCooldown
	}

	f.log.Info("foreground run started", zap.Int("targets", len(targets)))
	for i, tgt := range targets {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if f.st.InCooldown(ctx) {
			sum.Halted = true
			break
		}

		outcome := f.blockOne(ctx, tgt)
		f.rec.Outcome(string(models.ModeForeground), outcome)

		if outcome.Done() {
			sum.Success++
			if tgt.Username != "" {
				if err := f.st.MarkBlocked(ctx, tgt.Username); err != nil {
					f.log.Warn("failed to record block", zap.String("user", tgt.Username), zap.Error(err))
				}
			}
			if err := f.page.HidePost(ctx, tgt.Ref, hideLevels); err != nil {
				f.log.Debug("hide post failed", zap.String("ref", tgt.Ref), zap.Error(err))
			}
			if f.finished != nil {
				f.finished(tgt.Ref)
			}
		} else {
			sum.Failed++
			if tgt.Username != "" {
				sum.FailedUsers = append(sum.FailedUsers, tgt.Username)
				if err := f.st.AddFailed(ctx, tgt.Username); err != nil {
					f.log.Warn("failed to record failure", zap.String("user", tgt.Username), zap.Error(err))
				}
			}
		}

		if f.progress != nil {
			f.progress(i+1, len(targets))
		}
		if err := poll.Sleep(ctx, f.t.ItemDelay); err != nil {
			return sum, err
		}
	}

	f.log.Info("foreground run finished",
		zap.Int("success", sum.Success),
		zap.Int("failed", sum.Failed),
		zap.Bool("halted", sum.Halted))
	return sum, nil
}

func (f *Foreground) blockOne(ctx context.Context, tgt models.Target) (outcome models.Outcome) {
	log := f.log.With(zap.String("ref", tgt.Ref), zap.String("user", tgt.Username))
	defer func() {
		if r := recover(); r != nil {
			log.Error("foreground attempt panicked", zap.Any("panic", r))
			outcome = models.OutcomeFailed
		}
	}()

	outcome, err := f.block(ctx, tgt.Ref)
	if err != nil {
		log.Warn("foreground attempt failed", zap.Error(err))
	}
	return outcome
}

func (f *Foreground) block(ctx context.Context, ref string) (models.Outcome, error) {
	if err := f.page.ScrollIntoView(ctx, ref); err != nil {
		return models.OutcomeFailed, fmt.Errorf("scroll: %w", err)
	}
	if err := poll.Sleep(ctx, f.t.ScrollSettle); err != nil {
		return models.OutcomeFailed, err
	}
	if err := f.page.Activate(ctx, ref); err != nil {
		return models.OutcomeFailed, fmt.Errorf("open menu: %w", err)
	}
	if err := poll.Sleep(ctx, f.t.MenuRender); err != nil {
		return models.OutcomeFailed, err
	}

	snap, err := f.page.Snapshot(ctx)
	if err != nil {
		return models.OutcomeFailed, err
	}
	items := snap.MenuItems()
	clicked := false
	// the block item sits at the end of the menu
	for i := len(items) - 1; i >= 0 && !clicked; i-- {
		switch dom.Classify(items[i].Text) {
		case dom.IntentUnblock:
			f.dismiss(ctx)
			return models.OutcomeAlreadyBlocked, nil
		case dom.IntentBlock:
			if err := f.page.Activate(ctx, items[i].Ref); err != nil {
				return models.OutcomeFailed, fmt.Errorf("click block: %w", err)
			}
			// the label span handles the tap on some layouts
			_ = f.page.ActivateNested(ctx, items[i].Ref, "span")
			clicked = true
		}
	}
	if !clicked {
		f.dismiss(ctx)
		return models.OutcomeFailed, errors.New("block menu item not found")
	}

	if err := poll.Sleep(ctx, f.t.ConfirmWait); err != nil {
		return models.OutcomeFailed, err
	}
	snap, err = f.page.Snapshot(ctx)
	if err != nil {
		return models.OutcomeFailed, err
	}
	confirm, ok := snap.ConfirmButton()
	if !ok {
		buttons := snap.DialogButtons()
		if len(buttons) == 0 {
			f.dismiss(ctx)
			return models.OutcomeFailed, errors.New("confirm button not found")
		}
		confirm = buttons[len(buttons)-1]
	}
	if err := f.page.Activate(ctx, confirm.Ref); err != nil {
		return models.OutcomeFailed, fmt.Errorf("confirm: %w", err)
	}

	if err := poll.Sleep(ctx, f.t.DialogWait); err != nil {
		return models.OutcomeFailed, err
	}
	snap, err = f.page.Snapshot(ctx)
	if err != nil {
		return models.OutcomeFailed, err
	}
	if snap.DialogOpen() {
		f.dismiss(ctx)
		if err := poll.Sleep(ctx, f.t.ScrollSettle); err != nil {
			return models.OutcomeFailed, err
		}
		snap, err = f.page.Snapshot(ctx)
		if err != nil {
			return models.OutcomeFailed, fmt.Errorf("check dialog after dismiss: %w", err)
		}
		if snap.DialogOpen() {
			return models.OutcomeFailed, errors.New("dialog stuck open")
		}
	}
	return models.OutcomeSuccess, nil
}

func (f *Foreground) dismiss(ctx context.Context) {
	if err := f.page.DismissOverlay(ctx); err != nil {
		f.log.Debug("dismiss failed", zap.Error(err))
	}
}
