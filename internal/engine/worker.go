package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rightblock/internal/models"
	"rightblock/internal/poll"
	"rightblock/internal/queue"
	"rightblock/internal/site"
)

// StepResult tells the run loop what a step did
type StepResult int

// StepResult constants
const (
	StepContinue StepResult = iota
	StepSkipped
	StepNavigated
	StepHalted
	StepCooldown
)

func (r StepResult) String() string {
	switch r {
	case StepContinue:
		return "continue"
	case StepSkipped:
		return "skipped"
	case StepNavigated:
		return "navigated"
	case StepHalted:
		return "halted"
	case StepCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// HeartbeatInterval keeps a running status fresh during long attempts
const HeartbeatInterval = 3 * time.Second

// Worker drains the shared queue from its own tab, one user per step
type Worker struct {
	page  Navigator
	st    *queue.State
	t     Timing
	pacer Pacer
	base  string
	id    string
	log   *zap.Logger
	rec   Recorder
	alert Alerter

	processed int

	// last is the status this worker published most recently
	mu   sync.Mutex
	last models.BackgroundStatus
}

// NewWorker creates a worker driving page against the host at base
func NewWorker(page Navigator, st *queue.State, t Timing, pacer Pacer, base string, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Worker{
		page:  page,
		st:    st,
		t:     t,
		pacer: pacer,
		base:  base,
		id:    id,
		log:   log.With(zap.String("worker_id", id)),
		rec:   nopRecorder{},
	}
}

// SetRecorder sets the outcome recorder
func (w *Worker) SetRecorder(r Recorder) {
	if r != nil {
		w.rec = r
	}
}

// SetAlerter sets where the cooldown alert goes. Without one it is only logged.
func (w *Worker) SetAlerter(a Alerter) {
	w.alert = a
}

// ID identifies this worker in published status
func (w *Worker) ID() string {
	return w.id
}

// Run steps until the queue is empty, a stop is requested, or a cooldown
// starts. A cooldown returns ErrCooldown.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started", zap.Int("queued", len(w.st.Queue(ctx))))
	for {
		res, err := w.Step(ctx)
		if err != nil {
			w.log.Error("worker step failed", zap.Error(err))
			_ = w.publish(ctx, models.StateError, err.Error(), 0)
			return err
		}
		switch res {
		case StepHalted:
			w.log.Info("worker halted", zap.Int("processed", w.processed))
			return nil
		case StepCooldown:
			w.cooldown(ctx)
			return ErrCooldown
		case StepSkipped:
			if err := poll.Sleep(ctx, w.t.SkipDelay); err != nil {
				return err
			}
		}
	}
}

// Step does one unit of work: honour a stop, finish on an empty queue, skip a
// user already blocked, navigate to the head's profile, or attempt the block.
func (w *Worker) Step(ctx context.Context) (StepResult, error) {
	// the controller and the CLI write these from other contexts
	w.st.Store().InvalidateAll(models.SharedKeys)

	stop, err := w.st.ConsumeStop(ctx)
	if err != nil {
		return StepHalted, fmt.Errorf("failed to read command: %w", err)
	}
	if stop {
		_ = w.publish(ctx, models.StateStopped, "stopped by user", 0)
		w.halt(ctx)
		return StepHalted, nil
	}

	q := w.st.Queue(ctx)
	if len(q) == 0 {
		_ = w.publish(ctx, models.StateIdle, "done", 0)
		w.halt(ctx)
		return StepHalted, nil
	}
	user := q[0]
	remaining := len(q)

	if w.st.HistorySet(ctx)[user] {
		_ = w.publish(ctx, models.StateRunning, "skipped: "+user, remaining)
		if err := w.st.PopHead(ctx, user); err != nil {
			return StepSkipped, err
		}
		return StepSkipped, nil
	}

	loc, err := w.page.Location(ctx)
	if err != nil {
		return StepHalted, fmt.Errorf("failed to read location: %w", err)
	}
	if !site.OnProfile(loc, user) {
		_ = w.publish(ctx, models.StateRunning, "navigating: "+user, remaining)
		if err := w.pacer.Wait(ctx); err != nil {
			return StepHalted, err
		}
		if err := w.page.Navigate(ctx, site.ProfileURL(w.base, user)); err != nil {
			return StepHalted, err
		}
		return StepNavigated, nil
	}

	_ = w.publish(ctx, models.StateRunning, user+": start", remaining)
	outcome := w.attempt(ctx, user, remaining)
	w.rec.Outcome(string(models.ModeBackground), outcome)
	w.log.Info("block attempt finished", zap.String("user", user), zap.String("outcome", string(outcome)))

	switch {
	case outcome == models.OutcomeCooldown:
		until := w.st.Now().Add(w.t.Cooldown)
		if err := w.st.SetCooldownUntil(ctx, until); err != nil {
			w.log.Warn("failed to record cooldown", zap.Error(err))
		}
		_ = w.publish(ctx, models.StateError, "cooldown until "+until.Format(time.RFC3339), remaining)
		w.log.Error("account restricted by host", zap.String("user", user), zap.Time("until", until))
		return StepCooldown, nil
	case outcome.Done():
		if err := w.st.AddHistory(ctx, user); err != nil {
			return StepHalted, err
		}
	default:
		if err := w.st.AddFailed(ctx, user); err != nil {
			return StepHalted, err
		}
	}
	w.processed++
	if err := w.st.PopHead(ctx, user); err != nil {
		return StepHalted, err
	}
	return StepContinue, nil
}

// attempt runs one block with a heartbeat keeping the status fresh
func (w *Worker) attempt(ctx context.Context, user string, remaining int) models.Outcome {
	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := w.beat(hbCtx); err != nil {
					w.log.Debug("heartbeat failed", zap.Error(err))
				}
			}
		}
	}()

	outcome := Attempt(ctx, w.page, w.t, w.log.With(zap.String("user", user)), func(step string) {
		_ = w.publish(ctx, models.StateRunning, user+": "+step, remaining)
	})
	cancel()
	wg.Wait()
	return outcome
}

// publish writes the shared status and mirrors it on the worker tab
func (w *Worker) publish(ctx context.Context, state models.RunState, current string, remaining int) error {
	status := models.BackgroundStatus{
		State:    state,
		Current:  current,
		Progress: w.processed,
		Total:    w.processed + remaining,
		WorkerID: w.id,
	}
	w.mu.Lock()
	w.last = status
	err := w.st.PublishStatus(ctx, status)
	w.mu.Unlock()
	if err != nil {
		w.log.Warn("failed to publish status", zap.Error(err))
		return err
	}
	title := "rightblock"
	if state == models.StateRunning {
		title = fmt.Sprintf("%d/%d rightblock", status.Progress, status.Total)
	}
	if err := w.page.ShowStatus(ctx, title, StatusLine(status)); err != nil {
		w.log.Debug("status overlay failed", zap.Error(err))
	}
	return nil
}

// beat republishes the last status with a fresh timestamp
func (w *Worker) beat(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.st.PublishStatus(ctx, w.last)
}

// StatusLine renders a status as "[STATE] current (progress/total)"
func StatusLine(s models.BackgroundStatus) string {
	state := s.State
	if state == "" {
		state = models.StateIdle
	}
	return fmt.Sprintf("[%s] %s (%d/%d)", strings.ToUpper(string(state)), s.Current, s.Progress, s.Total)
}

// cooldown alerts the user and goes back to the return URL if there is one.
// Without one the tab stays on the restriction notice.
func (w *Worker) cooldown(ctx context.Context) {
	until := w.st.CooldownUntil(ctx)
	text := fmt.Sprintf("Threads restricted blocking. The run stopped with %d users still queued; "+
		"start again after %s once it looks safe.", len(w.st.Queue(ctx)), until.Format(time.Kitchen))
	if w.alert != nil {
		w.alert.Message(ctx, text)
	}
	url, err := w.st.TakeReturnURL(ctx)
	if err != nil {
		w.log.Warn("failed to read return url", zap.Error(err))
		return
	}
	if url == "" {
		return
	}
	if err := w.page.Navigate(ctx, url); err != nil {
		w.log.Warn("failed to leave worker tab", zap.Error(err))
	}
}

// halt returns the tab to where the user started the run, or closes it
func (w *Worker) halt(ctx context.Context) {
	if err := poll.Sleep(ctx, w.t.ReturnDelay); err != nil {
		return
	}
	url, err := w.st.TakeReturnURL(ctx)
	if err != nil {
		w.log.Warn("failed to read return url", zap.Error(err))
	}
	if url != "" {
		err = w.page.Navigate(ctx, url)
	} else {
		err = w.page.Close(ctx)
	}
	if err != nil {
		w.log.Warn("failed to leave worker tab", zap.Error(err))
	}
}
