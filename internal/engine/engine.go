// Package engine performs block attempts against the host UI, either in the
// foreground on a feed page or as the background worker walking the queue.
package engine

import (
	"context"
	"errors"
	"time"

	"rightblock/internal/config"
	"rightblock/internal/dom"
	"rightblock/internal/models"
)

var (
	// ErrNoTargets is returned when a foreground run has nothing selected
	ErrNoTargets = errors.New("no targets selected")
	// ErrCooldown is returned when the host has restricted the account
	ErrCooldown = errors.New("account restricted, cooling down")
)

// Page is the set of tab actions a block attempt uses
type Page interface {
	Snapshot(ctx context.Context) (*dom.Snapshot, error)
	Activate(ctx context.Context, ref string) error
	ActivateNested(ctx context.Context, ref, selector string) error
	Click(ctx context.Context, ref string) error
	ScrollIntoView(ctx context.Context, ref string) error
	DismissOverlay(ctx context.Context) error
	HidePost(ctx context.Context, ref string, levels int) error
}

// Navigator is a tab the worker fully controls
type Navigator interface {
	Page
	Location(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	ShowStatus(ctx context.Context, title, line string) error
	Close(ctx context.Context) error
}

// Pacer delays navigations
type Pacer interface {
	Wait(ctx context.Context) error
}

// Recorder observes attempt outcomes
type Recorder interface {
	Outcome(mode string, o models.Outcome)
}

type nopRecorder struct{}

func (nopRecorder) Outcome(string, models.Outcome) {}

// Alerter shows a message the user has to acknowledge
type Alerter interface {
	Message(ctx context.Context, text string)
}

// Timing holds every wait of both execution paths
type Timing struct {
	Settle             time.Duration
	PollInterval       time.Duration
	MoreButtonAttempts uint
	MenuAttempts       uint
	ConfirmAttempts    uint
	CloseAttempts      uint
	CloseInterval      time.Duration
	ClickDelay         time.Duration
	ScrollSettle       time.Duration
	MenuRender         time.Duration
	ConfirmWait        time.Duration
	DialogWait         time.Duration
	ItemDelay          time.Duration
	SkipDelay          time.Duration
	ReturnDelay        time.Duration
	Cooldown           time.Duration
}

// TimingFromConfig converts the millisecond settings
func TimingFromConfig(c config.EngineConfig) Timing {
	return Timing{
		Settle:             config.Ms(c.SettleMs),
		PollInterval:       config.Ms(c.PollIntervalMs),
		MoreButtonAttempts: uint(c.MoreButtonAttempts),
		MenuAttempts:       uint(c.MenuAttempts),
		ConfirmAttempts:    uint(c.ConfirmAttempts),
		CloseAttempts:      uint(c.CloseAttempts),
		CloseInterval:      config.Ms(c.CloseIntervalMs),
		ClickDelay:         config.Ms(c.ClickDelayMs),
		ScrollSettle:       config.Ms(c.ScrollSettleMs),
		MenuRender:         config.Ms(c.MenuRenderMs),
		ConfirmWait:        config.Ms(c.ConfirmWaitMs),
		DialogWait:         config.Ms(c.DialogWaitMs),
		ItemDelay:          config.Ms(c.ItemDelayMs),
		SkipDelay:          config.Ms(c.SkipDelayMs),
		ReturnDelay:        config.Ms(c.ReturnDelayMs),
		Cooldown:           c.GetCooldown(),
	}
}

// DefaultTiming returns the stock timings
func DefaultTiming() Timing {
	return TimingFromConfig(config.DefaultConfig().Engine)
}

// hideLevels is how many ancestors above a feed button make up its post
const hideLevels = 6
