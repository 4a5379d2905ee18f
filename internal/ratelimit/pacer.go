package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer pauses before every worker navigation for baseDelay plus a random
// share of jitter. Time spent elsewhere since the last navigation does not count.
type Pacer struct {
	baseDelay time.Duration // Minimum pause
	jitter    time.Duration // Random extra pause
	mutex     sync.Mutex
	rnd       *rand.Rand
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer
func NewPacer(baseDelay, jitter time.Duration) *Pacer {
	return &Pacer{
		baseDelay: baseDelay,
		jitter:    jitter,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:     sleepCtx,
	}
}

// Delay draws the pause for the next navigation
func (p *Pacer) Delay() time.Duration {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.delayLocked()
}

func (p *Pacer) delayLocked() time.Duration {
	d := p.baseDelay
	if p.jitter > 0 {
		d += time.Duration(p.rnd.Int63n(int64(p.jitter)))
	}
	return d
}

// Wait blocks for a freshly drawn pause
func (p *Pacer) Wait(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.sleep(ctx, p.delayLocked())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
