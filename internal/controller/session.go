// Package controller holds the session of the controller tab and the callback
// operations the panel invokes.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rightblock/internal/engine"
	"rightblock/internal/models"
	"rightblock/internal/queue"
	"rightblock/internal/scanner"
)

// ErrAlreadyRunning is returned when a foreground run is in progress
var ErrAlreadyRunning = errors.New("a run is already in progress")

// Launcher opens a worker context
type Launcher interface {
	Launch(ctx context.Context) error
}

// View is what the panel shows
type View struct {
	Selected      int                     `json:"selected"`
	Queued        int                     `json:"queued"`
	Failed        int                     `json:"failed"`
	History       int                     `json:"history"`
	Running       bool                    `json:"running"`
	Foreground    bool                    `json:"foreground"`
	Mode          models.DesktopMode      `json:"mode"`
	Status        models.BackgroundStatus `json:"status"`
	StatusLine    string                  `json:"status_line"`
	CooldownUntil *time.Time              `json:"cooldown_until,omitempty"`
	Minimized     bool                    `json:"minimized"`
}

// Session is the controller tab's state. The worker context never has one.
type Session struct {
	st       *queue.State
	scanner  *scanner.Scanner
	fg       *engine.Foreground
	notifier Notifier
	launcher Launcher
	log      *zap.Logger

	running atomic.Bool

	throttle    time.Duration
	mu          sync.Mutex
	lastRefresh time.Time
	refreshing  *time.Timer
}

// NewSession wires a controller session. The scanner's marker toggles
// trigger a throttled refresh.
func NewSession(st *queue.State, sc *scanner.Scanner, fg *engine.Foreground, n Notifier, l Launcher, throttle time.Duration, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		st:       st,
		scanner:  sc,
		fg:       fg,
		notifier: n,
		launcher: l,
		log:      log,
		throttle: throttle,
	}
	sc.OnChange(func() { s.RequestRefresh(context.Background()) })
	fg.OnFinished(sc.Done)
	return s
}

// Running reports whether a foreground run is in progress
func (s *Session) Running() bool {
	return s.running.Load()
}

// Start submits the selection. In foreground mode the checked posts are
// blocked here; otherwise the selection goes to the Active Queue and a worker
// is opened unless one is already running.
func (s *Session) Start(ctx context.Context) error {
	if s.st.InCooldown(ctx) {
		until := s.st.CooldownUntil(ctx)
		if !s.notifier.Confirm(ctx, fmt.Sprintf("The account was restricted until %s. Start anyway?", until.Format(time.Kitchen))) {
			return nil
		}
		if err := s.st.SetCooldownUntil(ctx, time.Time{}); err != nil {
			return err
		}
	}

	if s.st.Mode(ctx) == models.ModeForeground {
		return s.runForeground(ctx)
	}

	if len(s.st.Pending(ctx)) == 0 {
		s.notifier.Message(ctx, "Select users first")
		return nil
	}
	added, err := s.st.SubmitPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to submit selection: %w", err)
	}
	s.scanner.ClearChecked(ctx)
	s.notifier.Message(ctx, fmt.Sprintf("Submitted %d users to the background queue", len(added)))
	s.log.Info("selection submitted", zap.Int("added", len(added)))
	s.RequestRefresh(ctx)
	return s.ensureWorker(ctx)
}

// ensureWorker opens a worker unless a fresh running status exists
func (s *Session) ensureWorker(ctx context.Context) error {
	if s.st.WorkerRunning(ctx) {
		return nil
	}
	if err := s.st.ClearCommand(ctx); err != nil {
		return err
	}
	if err := s.launcher.Launch(ctx); err != nil {
		return fmt.Errorf("failed to open worker: %w", err)
	}
	return nil
}

func (s *Session) runForeground(ctx context.Context) error {
	targets := s.scanner.Targets()
	if len(targets) == 0 {
		s.notifier.Message(ctx, "Select users first")
		return nil
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.fg.OnProgress(func(done, total int) {
		s.notifier.Message(ctx, fmt.Sprintf("Blocking %d/%d", done, total))
		s.RequestRefresh(ctx)
	})
	sum, err := s.fg.Run(ctx, targets)
	if errors.Is(err, engine.ErrCooldown) {
		s.notifier.Message(ctx, "The account is cooling down after a restriction")
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("refresh after run failed", zap.Error(err))
	}

	s.notifier.Message(ctx, fmt.Sprintf("Done. Blocked: %d, failed: %d", sum.Success, sum.Failed))
	if len(sum.FailedUsers) > 0 &&
		s.notifier.Confirm(ctx, fmt.Sprintf("%d users could not be blocked. Retry them in the background?", len(sum.FailedUsers))) {
		if _, err := s.st.RetryFailed(ctx); err != nil {
			return err
		}
		return s.ensureWorker(ctx)
	}
	return nil
}

// ClearSelection drops the selection and both queues. History stays.
func (s *Session) ClearSelection(ctx context.Context) error {
	if !s.notifier.Confirm(ctx, "Clear the selection and every queued user? Block history is kept.") {
		return nil
	}
	if err := s.st.ClearSelection(ctx); err != nil {
		return err
	}
	s.scanner.ClearChecked(ctx)
	s.notifier.Message(ctx, "Selection and queues cleared")
	return s.Refresh(ctx)
}

// ClearAll also forgets the block history
func (s *Session) ClearAll(ctx context.Context) error {
	if !s.notifier.Confirm(ctx, "Clear the selection, the queues and the whole block history?") {
		return nil
	}
	if err := s.st.ClearSelection(ctx); err != nil {
		return err
	}
	if err := s.st.ClearHistory(ctx); err != nil {
		return err
	}
	s.scanner.ClearChecked(ctx)
	return s.Refresh(ctx)
}

// ClearHistory forgets every recorded block
func (s *Session) ClearHistory(ctx context.Context) error {
	if !s.notifier.Confirm(ctx, "Clear the block history?") {
		return nil
	}
	if err := s.st.ClearHistory(ctx); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Import queues a pasted username list. An empty raw asks for one.
func (s *Session) Import(ctx context.Context, raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		var ok bool
		raw, ok = s.notifier.Prompt(ctx, "Paste usernames", "")
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, nil
		}
	}
	added, err := s.st.Import(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to import: %w", err)
	}
	if len(added) == 0 {
		s.notifier.Message(ctx, "Nothing new to import: every user is already blocked or queued")
		return nil, nil
	}
	s.notifier.Message(ctx, fmt.Sprintf("Imported %d users to the background queue", len(added)))
	s.RequestRefresh(ctx)

	if s.st.WorkerRunning(ctx) {
		s.notifier.Message(ctx, "Merged into the running background task")
		return added, nil
	}
	if s.notifier.Confirm(ctx, fmt.Sprintf("Imported %d users. Start the background run now?", len(added))) {
		return added, s.ensureWorker(ctx)
	}
	return added, nil
}

// ExportHistory copies the history, one username per line. Without a
// clipboard the list is shown for manual copying.
func (s *Session) ExportHistory(ctx context.Context) (string, error) {
	history := s.st.History(ctx)
	if len(history) == 0 {
		s.notifier.Message(ctx, "The block history is empty")
		return "", nil
	}
	list := strings.Join(history, "\n")
	if err := s.notifier.Copy(ctx, list); err != nil {
		s.notifier.Prompt(ctx, "Copy the list manually", list)
		return list, nil
	}
	s.notifier.Message(ctx, fmt.Sprintf("Copied %d users", len(history)))
	return list, nil
}

// RetryFailed moves the Failed Queue back to the Active Queue
func (s *Session) RetryFailed(ctx context.Context) (int, error) {
	failed := s.st.Failed(ctx)
	if len(failed) == 0 {
		s.notifier.Message(ctx, "No failed users to retry")
		return 0, nil
	}
	if !s.notifier.Confirm(ctx, fmt.Sprintf("%d users failed earlier. Queue them again?", len(failed))) {
		return 0, nil
	}
	n, err := s.st.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}
	s.notifier.Message(ctx, fmt.Sprintf("Re-queued %d users", n))
	s.RequestRefresh(ctx)
	return n, s.ensureWorker(ctx)
}

// Stop asks the worker to halt at its next step
func (s *Session) Stop(ctx context.Context) error {
	if !s.notifier.Confirm(ctx, "Stop the background run?") {
		return nil
	}
	return s.st.RequestStop(ctx)
}

// ToggleMode flips between background and foreground execution
func (s *Session) ToggleMode(ctx context.Context) (models.DesktopMode, error) {
	m, err := s.st.ToggleMode(ctx)
	if err != nil {
		return "", err
	}
	s.notifier.Message(ctx, "Mode: "+string(m))
	s.RequestRefresh(ctx)
	return m, nil
}

// SetMinimized stores the panel state
func (s *Session) SetMinimized(ctx context.Context, minimized bool) error {
	v := "expanded"
	if minimized {
		v = "minimized"
	}
	return s.st.Store().Set(ctx, models.KeyPanelState, v)
}

// BlockAllInDialog selects every new user of the open likes or reposts
// dialog. A running worker also receives them right away.
func (s *Session) BlockAllInDialog(ctx context.Context) ([]string, error) {
	users, err := s.scanner.DialogCandidates(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		s.notifier.Message(ctx, "No new users in this dialog")
		return nil, nil
	}
	if !s.notifier.Confirm(ctx, fmt.Sprintf("Select all %d users in this dialog?", len(users))) {
		return nil, nil
	}
	if err := s.st.AddPending(ctx, users...); err != nil {
		return nil, err
	}
	if s.st.WorkerRunning(ctx) {
		if _, err := s.st.Submit(ctx, users); err != nil {
			return nil, err
		}
	}
	s.notifier.Message(ctx, fmt.Sprintf("Selected %d users", len(users)))
	s.RequestRefresh(ctx)
	return users, nil
}

// View collects the panel counts
func (s *Session) View(ctx context.Context) View {
	status := s.st.Status(ctx)
	v := View{
		Selected:   len(s.st.Pending(ctx)),
		Queued:     len(s.st.Queue(ctx)),
		Failed:     len(s.st.Failed(ctx)),
		History:    len(s.st.History(ctx)),
		Running:    s.st.WorkerRunning(ctx),
		Foreground: s.Running(),
		Mode:       s.st.Mode(ctx),
		Status:     status,
		Minimized:  s.st.Store().Get(ctx, models.KeyPanelState, "") == "minimized",
	}
	if status.State != "" {
		v.StatusLine = engine.StatusLine(status)
	}
	if s.st.InCooldown(ctx) {
		until := s.st.CooldownUntil(ctx)
		v.CooldownUntil = &until
	}
	return v
}

// Refresh syncs the markers with History and renders the panel
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	if err := s.scanner.Refresh(ctx); err != nil {
		return err
	}
	s.notifier.Render(ctx, s.View(ctx))
	return nil
}

// RequestRefresh refreshes at most once per throttle window. A request
// inside the window is deferred to its end, never dropped.
func (s *Session) RequestRefresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing != nil {
		return
	}
	wait := s.throttle - time.Since(s.lastRefresh)
	if wait < 0 {
		wait = 0
	}
	s.refreshing = time.AfterFunc(wait, func() {
		s.mu.Lock()
		s.refreshing = nil
		s.mu.Unlock()
		if err := s.Refresh(context.WithoutCancel(ctx)); err != nil {
			s.log.Debug("refresh failed", zap.Error(err))
		}
	})
}
