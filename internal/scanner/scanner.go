// Package scanner keeps a checkbox marker next to every post's "more options"
// control and maintains the pending selection those markers drive.
package scanner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"rightblock/internal/dom"
	"rightblock/internal/models"
	"rightblock/internal/queue"
)

// Page is the part of a browser tab the scanner needs
type Page interface {
	Snapshot(ctx context.Context) (*dom.Snapshot, error)
	InjectMarker(ctx context.Context, ref, username string, state models.MarkerState) error
	SetMarkerState(ctx context.Context, ref string, state models.MarkerState) error
}

type marker struct {
	username string
	state    models.MarkerState
}

// Scanner owns the markers of one controller tab
type Scanner struct {
	page Page
	st   *queue.State
	log  *zap.Logger

	mu      sync.Mutex
	me      string
	markers map[string]*marker
	// targets are checked markers in the order they were checked
	targets  []models.Target
	onChange func()
}

// New creates a scanner for page
func New(page Page, st *queue.State, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		page:    page,
		st:      st,
		log:     log,
		markers: make(map[string]*marker),
	}
}

// OnChange registers a callback run after every marker toggle
func (s *Scanner) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Scanner) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Me returns the logged-in username once a scan has seen it
func (s *Scanner) Me() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.me
}

// Scan annotates every new actionable control. It does nothing while the tab
// is hidden and returns the number of markers injected.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	snap, err := s.page.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if snap.Hidden() {
		return 0, nil
	}
	buttons := snap.MoreButtons()
	if len(buttons) == 0 {
		return 0, nil
	}

	history := s.st.HistorySet(ctx)
	pending := make(map[string]bool)
	for _, u := range s.st.Pending(ctx) {
		pending[u] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.me == "" {
		s.me = snap.MyUsername()
	}

	injected := 0
	for _, b := range buttons {
		if b.Ref == "" || b.Annotated {
			continue
		}
		if b.HasSiblingMarker {
			// tag only; the existing marker stays
			if err := s.page.InjectMarker(ctx, b.Ref, "", models.MarkerUnchecked); err != nil {
				s.log.Debug("tagging annotated button failed", zap.String("ref", b.Ref), zap.Error(err))
			}
			continue
		}
		if !b.PassesIconFilter() {
			continue
		}
		if s.me != "" && b.Username == s.me {
			continue
		}

		state := models.MarkerUnchecked
		switch {
		case b.Username == "":
		case history[b.Username]:
			state = models.MarkerFinished
		case pending[b.Username]:
			state = models.MarkerChecked
		}

		if err := s.page.InjectMarker(ctx, b.Ref, b.Username, state); err != nil {
			s.log.Debug("marker injection failed", zap.String("ref", b.Ref), zap.Error(err))
			continue
		}
		s.markers[b.Ref] = &marker{username: b.Username, state: state}
		if state == models.MarkerChecked {
			s.addTarget(b.Ref, b.Username)
		}
		injected++
	}
	if injected > 0 {
		s.log.Debug("markers injected", zap.Int("count", injected))
	}
	return injected, nil
}

// Toggle cycles a marker after a click: finished re-queues the user,
// checked deselects, unchecked selects.
func (s *Scanner) Toggle(ctx context.Context, ref, username string) (models.MarkerState, error) {
	s.mu.Lock()
	m, ok := s.markers[ref]
	if !ok {
		m = &marker{username: username, state: models.MarkerUnchecked}
		s.markers[ref] = m
	}
	if m.username == "" {
		m.username = username
	}
	user := m.username

	var err error
	switch m.state {
	case models.MarkerFinished:
		if user == "" {
			s.mu.Unlock()
			return m.state, nil
		}
		if err = s.st.RemoveHistory(ctx, user); err == nil {
			err = s.st.AddPending(ctx, user)
		}
		m.state = models.MarkerChecked
		s.addTarget(ref, user)
	case models.MarkerChecked:
		m.state = models.MarkerUnchecked
		s.removeTarget(ref)
		if user != "" {
			err = s.st.RemovePending(ctx, user)
		}
	default:
		m.state = models.MarkerChecked
		s.addTarget(ref, user)
		if user != "" {
			err = s.st.AddPending(ctx, user)
		}
	}
	state := m.state
	s.mu.Unlock()

	if perr := s.page.SetMarkerState(ctx, ref, state); perr != nil {
		s.log.Debug("marker update failed", zap.String("ref", ref), zap.Error(perr))
	}
	s.changed()
	if err != nil {
		return state, fmt.Errorf("failed to persist selection: %w", err)
	}
	return state, nil
}

// Refresh re-derives marker state from History and prunes blocked users
// from the selection and the queue.
func (s *Scanner) Refresh(ctx context.Context) error {
	if _, err := s.st.Prune(ctx); err != nil {
		return err
	}
	history := s.st.HistorySet(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, m := range s.markers {
		var next models.MarkerState
		switch {
		case m.username != "" && history[m.username] && m.state != models.MarkerFinished:
			next = models.MarkerFinished
			s.removeTarget(ref)
		case m.username != "" && !history[m.username] && m.state == models.MarkerFinished:
			next = models.MarkerUnchecked
		default:
			continue
		}
		if err := s.page.SetMarkerState(ctx, ref, next); err != nil {
			// the host removed the post
			delete(s.markers, ref)
			s.removeTarget(ref)
			continue
		}
		m.state = next
	}
	return nil
}

// ClearChecked unchecks every checked marker and empties the target list
func (s *Scanner) ClearChecked(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, m := range s.markers {
		if m.state != models.MarkerChecked {
			continue
		}
		m.state = models.MarkerUnchecked
		if err := s.page.SetMarkerState(ctx, ref, models.MarkerUnchecked); err != nil {
			delete(s.markers, ref)
		}
	}
	s.targets = nil
}

// Targets returns the checked controls in selection order
func (s *Scanner) Targets() []models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Target, len(s.targets))
	copy(out, s.targets)
	return out
}

// Done drops a processed control from the target list
func (s *Scanner) Done(ref string) {
	s.mu.Lock()
	s.removeTarget(ref)
	s.mu.Unlock()
}

// State returns a marker's current state
func (s *Scanner) State(ref string) (models.MarkerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[ref]
	if !ok {
		return "", false
	}
	return m.state, true
}

func (s *Scanner) addTarget(ref, user string) {
	for _, t := range s.targets {
		if t.Ref == ref {
			return
		}
	}
	s.targets = append(s.targets, models.Target{Ref: ref, Username: user})
}

func (s *Scanner) removeTarget(ref string) {
	for i, t := range s.targets {
		if t.Ref == ref {
			s.targets = append(s.targets[:i], s.targets[i+1:]...)
			return
		}
	}
}

// DialogCandidates lists the users of an open likes/reposts dialog that are
// not yet blocked, queued, selected, or the logged-in account.
func (s *Scanner) DialogCandidates(ctx context.Context) ([]string, error) {
	snap, err := s.page.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	skip := s.st.HistorySet(ctx)
	for _, u := range s.st.Queue(ctx) {
		skip[u] = true
	}
	for _, u := range s.st.Pending(ctx) {
		skip[u] = true
	}
	me := s.Me()
	if me == "" {
		me = snap.MyUsername()
	}

	var out []string
	for _, u := range snap.DialogUsernames() {
		if skip[u] || u == me {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// Run handles page events until ctx is done or events closes
func (s *Scanner) Run(ctx context.Context, events <-chan models.PageEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Scanner) handle(ctx context.Context, ev models.PageEvent) {
	var err error
	switch ev.Type {
	case models.EventMutation:
		_, err = s.Scan(ctx)
	case models.EventVisibility:
		if !ev.Hidden {
			_, err = s.Scan(ctx)
		}
	case models.EventMarker:
		_, err = s.Toggle(ctx, ev.Ref, ev.Username)
	}
	if err != nil {
		s.log.Debug("page event failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
