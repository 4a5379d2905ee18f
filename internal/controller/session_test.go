package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rightblock/internal/dom"
	"rightblock/internal/engine"
	"rightblock/internal/models"
	"rightblock/internal/queue"
	"rightblock/internal/scanner"
	"rightblock/internal/store"
)

const feedHTML = `<html><body><main>
<div><a href="/@alice">alice</a>
  <div><div role="button" data-rb-ref="3"><svg aria-label="More" viewBox="0 0 24 24"><path/></svg></div></div>
</div>
</main></body></html>`

const dialogHTML = `<html><body>
<nav><a href="/@me"><svg></svg></a></nav>
<div role="dialog">
  <a href="/@dave">dave</a>
  <a href="/@erin">erin</a>
  <a href="/@me">me</a>
</div></body></html>`

// staticPage always renders the same document and accepts every action
type staticPage struct{ html string }

func (p staticPage) Snapshot(context.Context) (*dom.Snapshot, error) { return dom.Parse(p.html) }
func (staticPage) InjectMarker(context.Context, string, string, models.MarkerState) error {
	return nil
}
func (staticPage) SetMarkerState(context.Context, string, models.MarkerState) error { return nil }
func (staticPage) Activate(context.Context, string) error                          { return nil }
func (staticPage) ActivateNested(context.Context, string, string) error            { return nil }
func (staticPage) Click(context.Context, string) error                             { return nil }
func (staticPage) ScrollIntoView(context.Context, string) error                    { return nil }
func (staticPage) DismissOverlay(context.Context) error                            { return nil }
func (staticPage) HidePost(context.Context, string, int) error                     { return nil }

type fakeNotifier struct {
	mu       sync.Mutex
	answer   bool
	prompt   string
	copyErr  error
	messages []string
	asked    []string
	prompted []string
	copied   []string
	renders  int
}

func (n *fakeNotifier) Message(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *fakeNotifier) Confirm(_ context.Context, q string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.asked = append(n.asked, q)
	return n.answer
}

func (n *fakeNotifier) Prompt(_ context.Context, q, value string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prompted = append(n.prompted, value)
	return n.prompt, n.prompt != ""
}

func (n *fakeNotifier) Copy(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.copyErr != nil {
		return n.copyErr
	}
	n.copied = append(n.copied, text)
	return nil
}

func (n *fakeNotifier) Render(context.Context, View) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.renders++
}

func (n *fakeNotifier) renderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.renders
}

type countingLauncher struct {
	mu       sync.Mutex
	launches int
}

func (l *countingLauncher) Launch(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	return nil
}

type fixture struct {
	st       *queue.State
	sc       *scanner.Scanner
	notifier *fakeNotifier
	launcher *countingLauncher
	session  *Session
}

func newFixture(t *testing.T, html string) *fixture {
	t.Helper()
	st := queue.New(store.New(store.NewMemory(), nil, nil), nil)
	page := staticPage{html: html}
	sc := scanner.New(page, st, nil)
	fg := engine.NewForeground(page, st, engine.Timing{}, nil)
	f := &fixture{
		st:       st,
		sc:       sc,
		notifier: &fakeNotifier{answer: true},
		launcher: &countingLauncher{},
	}
	f.session = NewSession(st, sc, fg, f.notifier, f.launcher, time.Millisecond, nil)
	return f
}

func TestStart_BackgroundSubmitsAndLaunchesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	require.NoError(t, f.st.AddPending(ctx, "alice", "bob"))

	require.NoError(t, f.session.Start(ctx))
	assert.Equal(t, []string{"alice", "bob"}, f.st.Queue(ctx))
	assert.Empty(t, f.st.Pending(ctx))
	assert.Equal(t, 1, f.launcher.launches)
}

func TestStart_RunningWorkerIsNotRelaunched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	require.NoError(t, f.st.PublishStatus(ctx, models.BackgroundStatus{State: models.StateRunning}))
	require.NoError(t, f.st.AddPending(ctx, "alice"))

	require.NoError(t, f.session.Start(ctx))
	assert.Equal(t, []string{"alice"}, f.st.Queue(ctx))
	assert.Zero(t, f.launcher.launches)
}

func TestStart_ClearsLeftoverStopCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	require.NoError(t, f.st.RequestStop(ctx))
	require.NoError(t, f.st.AddPending(ctx, "alice"))

	require.NoError(t, f.session.Start(ctx))
	stop, err := f.st.ConsumeStop(ctx)
	require.NoError(t, err)
	assert.False(t, stop)
}

func TestStart_NothingSelected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)

	require.NoError(t, f.session.Start(ctx))
	assert.Zero(t, f.launcher.launches)
	assert.Equal(t, []string{"Select users first"}, f.notifier.messages)
}

func TestStart_CooldownDeclined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	f.notifier.answer = false
	require.NoError(t, f.st.SetCooldownUntil(ctx, time.Now().Add(time.Hour)))
	require.NoError(t, f.st.AddPending(ctx, "alice"))

	require.NoError(t, f.session.Start(ctx))
	assert.Empty(t, f.st.Queue(ctx))
	assert.Len(t, f.notifier.asked, 1)
}

func TestStart_ForegroundFailureOffersRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	_, err := f.st.ToggleMode(ctx)
	require.NoError(t, err)
	_, err = f.sc.Toggle(ctx, "3", "alice")
	require.NoError(t, err)

	require.NoError(t, f.session.Start(ctx))
	assert.False(t, f.session.Running())
	assert.Equal(t, []string{"alice"}, f.st.Queue(ctx), "failed user re-queued")
	assert.Empty(t, f.st.Failed(ctx))
	assert.Equal(t, 1, f.launcher.launches)
	assert.Contains(t, f.notifier.messages, "Done. Blocked: 0, failed: 1")
}

func TestClearSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	require.NoError(t, f.st.AddPending(ctx, "alice"))
	require.NoError(t, f.st.SetQueue(ctx, []string{"bob"}))
	require.NoError(t, f.st.AddHistory(ctx, "carol"))

	require.NoError(t, f.session.ClearSelection(ctx))
	assert.Empty(t, f.st.Pending(ctx))
	assert.Empty(t, f.st.Queue(ctx))
	assert.Equal(t, []string{"carol"}, f.st.History(ctx))
}

func TestClearHistory_Declined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	f.notifier.answer = false
	require.NoError(t, f.st.AddHistory(ctx, "carol"))

	require.NoError(t, f.session.ClearHistory(ctx))
	assert.Equal(t, []string{"carol"}, f.st.History(ctx))
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	require.NoError(t, f.st.AddHistory(ctx, "carol"))
	require.NoError(t, f.st.SetQueue(ctx, []string{"bob"}))

	require.NoError(t, f.session.ClearAll(ctx))
	assert.Empty(t, f.st.History(ctx))
	assert.Empty(t, f.st.Queue(ctx))
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)

	added, err := f.session.Import(ctx, "@dave, https://site/@erin?x=1\nfrank")
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "erin", "frank"}, added)
	assert.Equal(t, 1, f.launcher.launches)

	added, err = f.session.Import(ctx, "dave")
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, 1, f.launcher.launches)
}

func TestImport_PromptsWhenEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	f.notifier.prompt = "gail"

	added, err := f.session.Import(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"gail"}, added)
}

func TestExportHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	require.NoError(t, f.st.AddHistory(ctx, "alice", "bob"))

	list, err := f.session.ExportHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice\nbob", list)
	assert.Equal(t, []string{"alice\nbob"}, f.notifier.copied)

	f.notifier.copyErr = ErrNoClipboard
	_, err = f.session.ExportHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice\nbob"}, f.notifier.prompted, "falls back to manual copy")
}

func TestRetryFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	require.NoError(t, f.st.AddFailed(ctx, "carol"))
	require.NoError(t, f.st.SetQueue(ctx, []string{"gail"}))

	n, err := f.session.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"gail", "carol"}, f.st.Queue(ctx))
	assert.Empty(t, f.st.Failed(ctx))
	assert.Equal(t, 1, f.launcher.launches)
}

func TestStopAndToggleMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)

	require.NoError(t, f.session.Stop(ctx))
	stop, err := f.st.ConsumeStop(ctx)
	require.NoError(t, err)
	assert.True(t, stop)

	m, err := f.session.ToggleMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ModeForeground, m)
	assert.Equal(t, models.ModeForeground, f.session.View(ctx).Mode)
}

func TestBlockAllInDialog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, dialogHTML)
	require.NoError(t, f.st.AddHistory(ctx, "erin"))

	users, err := f.session.BlockAllInDialog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dave"}, users)
	assert.Equal(t, []string{"dave"}, f.st.Pending(ctx))
	assert.Empty(t, f.st.Queue(ctx), "no worker running")

	require.NoError(t, f.st.PublishStatus(ctx, models.BackgroundStatus{State: models.StateRunning}))
	require.NoError(t, f.st.SetPending(ctx, nil))
	users, err = f.session.BlockAllInDialog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dave"}, users)
	assert.Equal(t, []string{"dave"}, f.st.Queue(ctx))
}

func TestView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)
	require.NoError(t, f.st.AddPending(ctx, "a"))
	require.NoError(t, f.st.SetQueue(ctx, []string{"b", "c"}))
	require.NoError(t, f.st.AddFailed(ctx, "d"))
	require.NoError(t, f.st.AddHistory(ctx, "e"))
	require.NoError(t, f.st.PublishStatus(ctx, models.BackgroundStatus{State: models.StateRunning, Current: "b: loading", Total: 2}))
	require.NoError(t, f.session.SetMinimized(ctx, true))

	v := f.session.View(ctx)
	assert.Equal(t, 1, v.Selected)
	assert.Equal(t, 2, v.Queued)
	assert.Equal(t, 1, v.Failed)
	assert.Equal(t, 1, v.History)
	assert.True(t, v.Running)
	assert.True(t, v.Minimized)
	assert.Equal(t, "[RUNNING] b: loading (0/2)", v.StatusLine)
	assert.Nil(t, v.CooldownUntil)
}

func TestRequestRefresh_Throttled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, feedHTML)

	f.session.RequestRefresh(ctx)
	f.session.RequestRefresh(ctx)
	f.session.RequestRefresh(ctx)

	require.Eventually(t, func() bool { return f.notifier.renderCount() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, f.notifier.renderCount(), 2)
}
