package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rightblock/internal/dom"
	"rightblock/internal/models"
	"rightblock/internal/poll"
)

var errRestricted = errors.New("restriction notice shown")

// Step names reported while an attempt runs
const (
	StepLoading    = "loading"
	StepOpenMenu   = "opening menu"
	StepFindBlock  = "finding block"
	StepClickBlock = "clicking block"
	StepConfirm    = "confirming"
	StepVerify     = "verifying"
)

// Attempt blocks the account whose profile page is loaded in page. report is
// called with a short step name as the attempt advances and may be nil.
// Every error is classified as a failed outcome, never returned.
func Attempt(ctx context.Context, page Page, t Timing, log *zap.Logger, report func(step string)) (outcome models.Outcome) {
	if log == nil {
		log = zap.NewNop()
	}
	if report == nil {
		report = func(string) {}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("block attempt panicked", zap.Any("panic", r))
			outcome = models.OutcomeFailed
		}
	}()

	outcome, err := attempt(ctx, page, t, report)
	if err != nil {
		log.Warn("block attempt failed", zap.Error(err))
	}
	return outcome
}

func attempt(ctx context.Context, page Page, t Timing, report func(string)) (models.Outcome, error) {
	report(StepLoading)
	if err := poll.Sleep(ctx, t.Settle); err != nil {
		return models.OutcomeFailed, err
	}

	// the header button has the four-shape icon; a single-shape one is a fallback
	var strictRef, looseRef string
	_, err := poll.Until(ctx, poll.Options{Attempts: t.MoreButtonAttempts, Interval: t.PollInterval},
		func(ctx context.Context) (bool, error) {
			snap, err := page.Snapshot(ctx)
			if err != nil {
				return false, nil
			}
			ref, strict, ok := snap.ProfileMoreButton()
			if !ok {
				return false, nil
			}
			if strict {
				strictRef = ref
				return true, nil
			}
			if looseRef == "" {
				looseRef = ref
			}
			return false, nil
		})
	if err != nil {
		return models.OutcomeFailed, err
	}
	target := strictRef
	if target == "" {
		target = looseRef
	}
	if target == "" {
		return models.OutcomeFailed, errors.New("more button not found")
	}

	report(StepOpenMenu)
	if err := poll.Sleep(ctx, t.ScrollSettle); err != nil {
		return models.OutcomeFailed, err
	}
	if err := page.ScrollIntoView(ctx, target); err != nil {
		return models.OutcomeFailed, fmt.Errorf("scroll to more button: %w", err)
	}
	if err := poll.Sleep(ctx, t.ScrollSettle); err != nil {
		return models.OutcomeFailed, err
	}
	if err := page.Activate(ctx, target); err != nil {
		return models.OutcomeFailed, fmt.Errorf("open menu: %w", err)
	}

	report(StepFindBlock)
	var blockRef string
	already := false
	_, err = poll.Until(ctx, poll.Options{Attempts: t.MenuAttempts, Interval: t.PollInterval, WaitFirst: true},
		func(ctx context.Context) (bool, error) {
			snap, err := page.Snapshot(ctx)
			if err != nil {
				return false, nil
			}
			found := ""
			for _, item := range snap.MenuItems() {
				switch dom.Classify(item.Text) {
				case dom.IntentUnblock:
					already = true
					return true, nil
				case dom.IntentBlock:
					if found == "" {
						found = item.Ref
					}
				}
			}
			blockRef = found
			return found != "", nil
		})
	if err != nil {
		return models.OutcomeFailed, err
	}
	if already {
		return models.OutcomeAlreadyBlocked, nil
	}
	if blockRef == "" {
		// the unblock item sometimes renders late
		if snap, err := page.Snapshot(ctx); err == nil {
			for _, item := range snap.MenuItems() {
				if dom.Classify(item.Text) == dom.IntentUnblock {
					return models.OutcomeAlreadyBlocked, nil
				}
			}
		}
		return models.OutcomeFailed, errors.New("block menu item not found")
	}

	report(StepClickBlock)
	if err := poll.Sleep(ctx, t.ClickDelay); err != nil {
		return models.OutcomeFailed, err
	}
	if err := page.Click(ctx, blockRef); err != nil {
		return models.OutcomeFailed, fmt.Errorf("click block: %w", err)
	}

	report(StepConfirm)
	var confirmRef string
	_, err = poll.Until(ctx, poll.Options{Attempts: t.ConfirmAttempts, Interval: t.PollInterval, WaitFirst: true},
		func(ctx context.Context) (bool, error) {
			snap, err := page.Snapshot(ctx)
			if err != nil {
				return false, nil
			}
			if snap.RestrictionShown() {
				return false, errRestricted
			}
			if b, ok := snap.ConfirmButton(); ok {
				confirmRef = b.Ref
				return true, nil
			}
			return false, nil
		})
	if errors.Is(err, errRestricted) {
		return models.OutcomeCooldown, nil
	}
	if err != nil {
		return models.OutcomeFailed, err
	}
	if confirmRef == "" {
		confirmRef = dialogConfirm(ctx, page)
	}
	if confirmRef == "" {
		return models.OutcomeFailed, errors.New("confirm button not found")
	}
	if err := poll.Sleep(ctx, t.ClickDelay); err != nil {
		return models.OutcomeFailed, err
	}
	if err := page.Click(ctx, confirmRef); err != nil {
		return models.OutcomeFailed, fmt.Errorf("click confirm: %w", err)
	}

	report(StepVerify)
	closed, err := poll.Until(ctx, poll.Options{Attempts: t.CloseAttempts, Interval: t.CloseInterval, WaitFirst: true},
		func(ctx context.Context) (bool, error) {
			snap, err := page.Snapshot(ctx)
			if err != nil {
				return false, nil
			}
			if snap.RestrictionShown() {
				return false, errRestricted
			}
			return !snap.DialogOpen(), nil
		})
	if errors.Is(err, errRestricted) {
		return models.OutcomeCooldown, nil
	}
	if err != nil {
		return models.OutcomeFailed, err
	}
	if closed {
		return models.OutcomeSuccess, nil
	}
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return models.OutcomeFailed, err
	}
	if snap.DialogOpen() {
		return models.OutcomeFailed, errors.New("confirm dialog did not close")
	}
	return models.OutcomeSuccess, nil
}

// dialogConfirm picks the destructive button of the first dialog, scanning
// from the end, regardless of visibility
func dialogConfirm(ctx context.Context, page Page) string {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return ""
	}
	buttons := snap.DialogButtons()
	for i := len(buttons) - 1; i >= 0; i-- {
		if dom.IsConfirm(buttons[i]) {
			return buttons[i].Ref
		}
	}
	return ""
}
