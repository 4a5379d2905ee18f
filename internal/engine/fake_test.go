package engine

import (
	"context"
	"errors"
	"sync"

	"rightblock/internal/dom"
	"rightblock/internal/models"
)

var errMissing = errors.New("no such element")

// scriptedPage serves one HTML document per phase and moves between phases
// when a ref with a transition is activated or clicked.
type scriptedPage struct {
	mu          sync.Mutex
	phases      map[string]string
	transitions map[string]string
	phase       string

	url       string
	actions   []string
	hidden    []string
	statuses  []string
	navigated []string
	closed    bool
	dismissed int

	// snapshots fail with this once the overlay was dismissed
	errAfterDismiss error
}

func newScriptedPage(start string, phases, transitions map[string]string) *scriptedPage {
	return &scriptedPage{phases: phases, transitions: transitions, phase: start}
}

func (p *scriptedPage) setPhase(phase string) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

func (p *scriptedPage) act(kind, ref string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, kind+":"+ref)
	if next, ok := p.transitions[ref]; ok {
		p.phase = next
	}
	return nil
}

func (p *scriptedPage) Snapshot(context.Context) (*dom.Snapshot, error) {
	p.mu.Lock()
	html := p.phases[p.phase]
	if p.dismissed > 0 && p.errAfterDismiss != nil {
		p.mu.Unlock()
		return nil, p.errAfterDismiss
	}
	p.mu.Unlock()
	return dom.Parse(html)
}

func (p *scriptedPage) Activate(_ context.Context, ref string) error { return p.act("activate", ref) }

func (p *scriptedPage) ActivateNested(context.Context, string, string) error { return errMissing }

func (p *scriptedPage) Click(_ context.Context, ref string) error { return p.act("click", ref) }

func (p *scriptedPage) ScrollIntoView(context.Context, string) error { return nil }

func (p *scriptedPage) DismissOverlay(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed++
	if next, ok := p.transitions["dismiss"]; ok {
		p.phase = next
	}
	return nil
}

func (p *scriptedPage) HidePost(_ context.Context, ref string, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hidden = append(p.hidden, ref)
	return nil
}

func (p *scriptedPage) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *scriptedPage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.navigated = append(p.navigated, url)
	p.phase = "profile"
	return nil
}

func (p *scriptedPage) ShowStatus(_ context.Context, _, line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, line)
	return nil
}

func (p *scriptedPage) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type countingPacer struct{ waits int }

func (c *countingPacer) Wait(context.Context) error {
	c.waits++
	return nil
}

type outcomeLog struct {
	mu   sync.Mutex
	seen []string
}

func (o *outcomeLog) Outcome(mode string, out models.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, mode+":"+string(out))
}

const (
	profileHTML = `<html><body>
<div><div role="button" data-rb-ref="m1"><svg aria-label="More"><circle/><path/><path/><path/></svg></div></div>
</body></html>`
	looseProfileHTML = `<html><body>
<div><div role="button" data-rb-ref="m1"><svg aria-label="More"><path/></svg></div></div>
</body></html>`
	menuHTML = `<html><body>
<div role="menuitem" data-rb-ref="i1">Mute</div>
<div role="menuitem" data-rb-ref="i2">Block</div>
</body></html>`
	unblockMenuHTML = `<html><body>
<div role="menuitem" data-rb-ref="i1">Mute</div>
<div role="menuitem" data-rb-ref="i3">Unblock</div>
</body></html>`
	confirmHTML = `<html><body>
<div role="dialog">
  <span>Block this profile?</span>
  <div role="button" data-rb-ref="c1">Cancel</div>
  <div role="button" data-rb-ref="c2" data-rb-color="rgb(255, 59, 48)">Block</div>
</div>
</body></html>`
	restrictedHTML = `<html><body>
<div role="dialog">
  <span>Try again later</span>
  <div role="button" data-rb-ref="ok">OK</div>
</div>
</body></html>`
	emptyHTML = `<html><body><div>nothing here</div></body></html>`
)

// profilePhases is a profile page whose block flow ends in final
func profilePhases(final string) (map[string]string, map[string]string) {
	phases := map[string]string{
		"profile":    profileHTML,
		"loose":      looseProfileHTML,
		"menu":       menuHTML,
		"unblock":    unblockMenuHTML,
		"confirm":    confirmHTML,
		"restricted": restrictedHTML,
		"done":       profileHTML,
		"empty":      emptyHTML,
	}
	transitions := map[string]string{
		"m1": "menu",
		"i2": "confirm",
		"c2": final,
	}
	return phases, transitions
}
