package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"rightblock/internal/dom"
	"rightblock/internal/models"
)

// ErrGone is returned when an element was removed before it could be acted on
var ErrGone = errors.New("element no longer on page")

// Page is one tab. The scanner, the scheduler, the session and the API all
// drive the same tab, so every CDP call takes the tab in turn.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan models.PageEvent
	log    *zap.Logger
	turn   chan struct{}
}

func newPage(ctx context.Context, cancel context.CancelFunc, log *zap.Logger) (*Page, error) {
	p := &Page{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan models.PageEvent, 64),
		log:    log,
		turn:   make(chan struct{}, 1),
	}

	chromedp.ListenTarget(ctx, func(ev interface{}) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok || e.Name != bindingName {
			return
		}
		var pe models.PageEvent
		if err := json.Unmarshal([]byte(e.Payload), &pe); err != nil {
			p.log.Debug("bad binding payload", zap.String("payload", e.Payload), zap.Error(err))
			return
		}
		// mutation bursts are coalesced by dropping
		select {
		case p.events <- pe:
		default:
		}
	})

	err := chromedp.Run(ctx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(observerScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to install page hooks: %w", err)
	}
	return p, nil
}

// Events delivers mutation, marker and visibility events from the page
func (p *Page) Events() <-chan models.PageEvent {
	return p.events
}

// run waits for its turn on the tab, giving up when ctx ends first
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	select {
	case p.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.turn }()
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, actions...)
}

func (p *Page) eval(ctx context.Context, js string, res interface{}) error {
	return p.run(ctx, chromedp.Evaluate(js, res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true).WithSilent(true)
	}))
}

func (p *Page) evalOK(ctx context.Context, js string) error {
	var ok bool
	if err := p.eval(ctx, js, &ok); err != nil {
		return err
	}
	if !ok {
		return ErrGone
	}
	return nil
}

// Snapshot tags the page and parses its HTML
func (p *Page) Snapshot(ctx context.Context) (*dom.Snapshot, error) {
	var html string
	if err := p.eval(ctx, snapshotScript, &html); err != nil {
		return nil, fmt.Errorf("failed to capture page: %w", err)
	}
	return dom.Parse(html)
}

// Activate dispatches touch, mouse and click events on the element
func (p *Page) Activate(ctx context.Context, ref string) error {
	return p.evalOK(ctx, script(activateScript, jsString(ref), "null"))
}

// ActivateNested activates the first descendant of ref matching selector
func (p *Page) ActivateNested(ctx context.Context, ref, selector string) error {
	return p.evalOK(ctx, script(activateScript, jsString(ref), jsString(selector)))
}

// Click calls the element's plain click()
func (p *Page) Click(ctx context.Context, ref string) error {
	return p.evalOK(ctx, script(clickScript, jsString(ref)))
}

// ScrollIntoView centres the element and clears the marker offset
func (p *Page) ScrollIntoView(ctx context.Context, ref string) error {
	return p.evalOK(ctx, script(scrollScript, jsString(ref)))
}

// DismissOverlay clicks the page body to close menus and dialogs
func (p *Page) DismissOverlay(ctx context.Context) error {
	return p.evalOK(ctx, dismissScript)
}

// HidePost hides the ancestor levels above the element's parent
func (p *Page) HidePost(ctx context.Context, ref string, levels int) error {
	return p.evalOK(ctx, script(hidePostScript, jsString(ref), levels))
}

// InjectMarker places a checkbox marker before the button and tags it as seen
func (p *Page) InjectMarker(ctx context.Context, ref, username string, state models.MarkerState) error {
	return p.evalOK(ctx, script(injectMarkerScript, jsString(ref), jsString(username), jsString(string(state))))
}

// SetMarkerState updates the marker attached to a button
func (p *Page) SetMarkerState(ctx context.Context, ref string, state models.MarkerState) error {
	return p.evalOK(ctx, script(setMarkerStateScript, jsString(ref), jsString(string(state))))
}

// Location returns the current URL
func (p *Page) Location(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Navigate loads url and waits for the body
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// ShowStatus sets the tab title and the status overlay line
func (p *Page) ShowStatus(ctx context.Context, title, line string) error {
	return p.evalOK(ctx, script(statusScript, jsString(title), jsString(line)))
}

// Close closes the tab
func (p *Page) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}
