// Package queue holds the typed block-tool state kept in the store: history,
// pending selection, the active and failed queues, worker status and commands.
//
// The store has no compare-and-swap. Every operation here is a
// read-modify-write over separate calls, so two contexts mutating the same
// key in the same moment can lose one update.
package queue

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"rightblock/internal/models"
	"rightblock/internal/site"
	"rightblock/internal/store"
)

// HistoryObserver is told about History changes, e.g. to keep a search index
type HistoryObserver interface {
	HistoryAdded(ctx context.Context, users []string)
	HistoryRemoved(ctx context.Context, user string)
	HistoryCleared(ctx context.Context)
}

// State is the typed view over one context's store
type State struct {
	s        *store.Store
	log      *zap.Logger
	observer HistoryObserver
	now      func() time.Time
}

// New wraps s. log may be nil.
func New(s *store.Store, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	return &State{s: s, log: log, now: time.Now}
}

// SetObserver registers the History observer
func (st *State) SetObserver(o HistoryObserver) {
	st.observer = o
}

// SetClock replaces time.Now, for tests
func (st *State) SetClock(now func() time.Time) {
	st.now = now
}

// Now returns the state's clock reading
func (st *State) Now() time.Time {
	return st.now()
}

// Store returns the underlying store
func (st *State) Store() *store.Store {
	return st.s
}

// merge appends add to base, dropping empties and repeats; first occurrence wins
func merge(base []string, add ...string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, u := range list {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func without(list []string, drop func(string) bool) []string {
	out := make([]string, 0, len(list))
	for _, u := range list {
		if !drop(u) {
			out = append(out, u)
		}
	}
	return out
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, u := range list {
		set[u] = true
	}
	return set
}

// History returns the confirmed-blocked usernames
func (st *State) History(ctx context.Context) []string {
	return store.GetJSON(ctx, st.s, models.KeyHistory, []string{})
}

// HistorySet returns History as a set
func (st *State) HistorySet(ctx context.Context) map[string]bool {
	return toSet(st.History(ctx))
}

// AddHistory records users as blocked
func (st *State) AddHistory(ctx context.Context, users ...string) error {
	cur := st.History(ctx)
	next := merge(cur, users...)
	if len(next) == len(cur) {
		return nil
	}
	if err := store.SetJSON(ctx, st.s, models.KeyHistory, next); err != nil {
		return err
	}
	if st.observer != nil {
		st.observer.HistoryAdded(ctx, next[len(cur):])
	}
	return nil
}

// RemoveHistory forgets one blocked user
func (st *State) RemoveHistory(ctx context.Context, user string) error {
	cur := st.History(ctx)
	next := without(cur, func(u string) bool { return u == user })
	if len(next) == len(cur) {
		return nil
	}
	if err := store.SetJSON(ctx, st.s, models.KeyHistory, next); err != nil {
		return err
	}
	if st.observer != nil {
		st.observer.HistoryRemoved(ctx, user)
	}
	return nil
}

// ClearHistory empties History
func (st *State) ClearHistory(ctx context.Context) error {
	if err := store.SetJSON(ctx, st.s, models.KeyHistory, []string{}); err != nil {
		return err
	}
	if st.observer != nil {
		st.observer.HistoryCleared(ctx)
	}
	return nil
}

// Pending returns this tab's selection
func (st *State) Pending(ctx context.Context) []string {
	return store.GetSessionJSON(ctx, st.s, models.KeyPending, []string{})
}

// SetPending replaces the selection
func (st *State) SetPending(ctx context.Context, users []string) error {
	return store.SetSessionJSON(ctx, st.s, models.KeyPending, merge(nil, users...))
}

// AddPending selects users
func (st *State) AddPending(ctx context.Context, users ...string) error {
	return st.SetPending(ctx, merge(st.Pending(ctx), users...))
}

// RemovePending deselects user
func (st *State) RemovePending(ctx context.Context, user string) error {
	cur := st.Pending(ctx)
	next := without(cur, func(u string) bool { return u == user })
	if len(next) == len(cur) {
		return nil
	}
	return st.SetPending(ctx, next)
}

// Queue returns the Active Queue in processing order
func (st *State) Queue(ctx context.Context) []string {
	return store.GetJSON(ctx, st.s, models.KeyQueue, []string{})
}

// SetQueue replaces the Active Queue
func (st *State) SetQueue(ctx context.Context, users []string) error {
	return store.SetJSON(ctx, st.s, models.KeyQueue, merge(nil, users...))
}

// Failed returns the Failed Queue
func (st *State) Failed(ctx context.Context) []string {
	return store.GetJSON(ctx, st.s, models.KeyFailed, []string{})
}

// AddFailed records user as failed. It never touches History.
func (st *State) AddFailed(ctx context.Context, user string) error {
	return store.SetJSON(ctx, st.s, models.KeyFailed, merge(st.Failed(ctx), user))
}

// Submit appends users to the Active Queue, skipping anyone already queued or
// blocked. It returns the users actually added.
func (st *State) Submit(ctx context.Context, users []string) ([]string, error) {
	history := st.HistorySet(ctx)
	cur := st.Queue(ctx)
	queued := toSet(cur)

	var added []string
	for _, u := range merge(nil, users...) {
		if history[u] || queued[u] {
			continue
		}
		added = append(added, u)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := st.SetQueue(ctx, append(cur, added...)); err != nil {
		return nil, err
	}
	return added, nil
}

// SubmitPending moves the selection into the Active Queue and clears it
func (st *State) SubmitPending(ctx context.Context) ([]string, error) {
	added, err := st.Submit(ctx, st.Pending(ctx))
	if err != nil {
		return nil, err
	}
	return added, st.SetPending(ctx, nil)
}

// Import parses a pasted list and queues the new names
func (st *State) Import(ctx context.Context, raw string) ([]string, error) {
	return st.Submit(ctx, site.ParseImportList(raw))
}

// RetryFailed appends the Failed Queue to the Active Queue and clears it.
// It returns how many failed users there were.
func (st *State) RetryFailed(ctx context.Context) (int, error) {
	failed := st.Failed(ctx)
	if len(failed) == 0 {
		return 0, nil
	}
	if err := st.SetQueue(ctx, merge(st.Queue(ctx), failed...)); err != nil {
		return 0, err
	}
	if err := store.SetJSON(ctx, st.s, models.KeyFailed, []string{}); err != nil {
		return 0, err
	}
	return len(failed), nil
}

// Prune drops blocked users from the Active Queue and the selection
func (st *State) Prune(ctx context.Context) (int, error) {
	history := st.HistorySet(ctx)
	if len(history) == 0 {
		return 0, nil
	}
	blocked := func(u string) bool { return history[u] }
	removed := 0

	q := st.Queue(ctx)
	if next := without(q, blocked); len(next) != len(q) {
		removed += len(q) - len(next)
		if err := st.SetQueue(ctx, next); err != nil {
			return removed, err
		}
	}
	p := st.Pending(ctx)
	if next := without(p, blocked); len(next) != len(p) {
		removed += len(p) - len(next)
		if err := st.SetPending(ctx, next); err != nil {
			return removed, err
		}
	}
	if removed > 0 {
		st.log.Debug("pruned blocked users", zap.Int("removed", removed))
	}
	return removed, nil
}

// PopHead removes the queue head if it is still user. Another context may have
// changed the queue meanwhile; then nothing is popped.
func (st *State) PopHead(ctx context.Context, user string) error {
	q := st.Queue(ctx)
	if len(q) == 0 || q[0] != user {
		return nil
	}
	return st.SetQueue(ctx, q[1:])
}

// MarkBlocked records user in History and deselects it
func (st *State) MarkBlocked(ctx context.Context, user string) error {
	if err := st.AddHistory(ctx, user); err != nil {
		return err
	}
	return st.RemovePending(ctx, user)
}

// ClearSelection drops the selection, both queues and the worker status
func (st *State) ClearSelection(ctx context.Context) error {
	if err := st.SetPending(ctx, nil); err != nil {
		return err
	}
	if err := st.SetQueue(ctx, nil); err != nil {
		return err
	}
	if err := store.SetJSON(ctx, st.s, models.KeyFailed, []string{}); err != nil {
		return err
	}
	return store.SetJSON(ctx, st.s, models.KeyStatus, struct{}{})
}

// Status returns the last published worker status
func (st *State) Status(ctx context.Context) models.BackgroundStatus {
	return store.GetJSON(ctx, st.s, models.KeyStatus, models.BackgroundStatus{})
}

// PublishStatus stamps and writes the worker status
func (st *State) PublishStatus(ctx context.Context, status models.BackgroundStatus) error {
	status.LastUpdate = st.now().UnixMilli()
	return store.SetJSON(ctx, st.s, models.KeyStatus, status)
}

// WorkerRunning reports whether a fresh running status exists
func (st *State) WorkerRunning(ctx context.Context) bool {
	return st.Status(ctx).IsRunning(st.now())
}

// RequestStop leaves a stop command for the worker
func (st *State) RequestStop(ctx context.Context) error {
	return st.s.Set(ctx, models.KeyCommand, string(models.CommandStop))
}

// ClearCommand drops any pending command
func (st *State) ClearCommand(ctx context.Context) error {
	return st.s.Remove(ctx, models.KeyCommand)
}

// ConsumeStop reads and deletes a pending stop command. The read always goes
// to the backend since the stop is usually written by another context.
func (st *State) ConsumeStop(ctx context.Context) (bool, error) {
	st.s.Invalidate(models.KeyCommand)
	if models.Command(st.s.Get(ctx, models.KeyCommand, "")) != models.CommandStop {
		return false, nil
	}
	return true, st.s.Remove(ctx, models.KeyCommand)
}

// Mode returns the desktop execution mode, background by default
func (st *State) Mode(ctx context.Context) models.DesktopMode {
	if models.DesktopMode(st.s.Get(ctx, models.KeyMode, "")) == models.ModeForeground {
		return models.ModeForeground
	}
	return models.ModeBackground
}

// SetMode stores the desktop execution mode
func (st *State) SetMode(ctx context.Context, m models.DesktopMode) error {
	return st.s.Set(ctx, models.KeyMode, string(m))
}

// ToggleMode flips and stores the mode
func (st *State) ToggleMode(ctx context.Context) (models.DesktopMode, error) {
	next := st.Mode(ctx).Toggle()
	return next, st.SetMode(ctx, next)
}

// SetReturnURL remembers where a same-tab worker goes when it halts
func (st *State) SetReturnURL(ctx context.Context, url string) error {
	return st.s.Set(ctx, models.KeyReturnURL, url)
}

// TakeReturnURL reads and deletes the return URL
func (st *State) TakeReturnURL(ctx context.Context) (string, error) {
	url := st.s.Get(ctx, models.KeyReturnURL, "")
	if url == "" {
		return "", nil
	}
	return url, st.s.Remove(ctx, models.KeyReturnURL)
}

// CooldownUntil returns when a restriction cooldown ends; zero if none
func (st *State) CooldownUntil(ctx context.Context) time.Time {
	ms, err := strconv.ParseInt(st.s.Get(ctx, models.KeyCooldownUntil, "0"), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SetCooldownUntil records the end of a restriction cooldown
func (st *State) SetCooldownUntil(ctx context.Context, t time.Time) error {
	return st.s.Set(ctx, models.KeyCooldownUntil, strconv.FormatInt(t.UnixMilli(), 10))
}

// InCooldown reports whether a recorded cooldown is still running
func (st *State) InCooldown(ctx context.Context) bool {
	return st.now().Before(st.CooldownUntil(ctx))
}
