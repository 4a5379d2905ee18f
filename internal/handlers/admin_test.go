package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rightblock/internal/controller"
	"rightblock/internal/dom"
	"rightblock/internal/engine"
	"rightblock/internal/models"
	"rightblock/internal/queue"
	"rightblock/internal/ratelimit"
	"rightblock/internal/scanner"
	"rightblock/internal/search"
	"rightblock/internal/store"
)

const emptyFeed = `<html><body><main></main></body></html>`

type blankPage struct{}

func (blankPage) Snapshot(context.Context) (*dom.Snapshot, error) { return dom.Parse(emptyFeed) }
func (blankPage) InjectMarker(context.Context, string, string, models.MarkerState) error {
	return nil
}
func (blankPage) SetMarkerState(context.Context, string, models.MarkerState) error { return nil }
func (blankPage) Activate(context.Context, string) error                          { return nil }
func (blankPage) ActivateNested(context.Context, string, string) error            { return nil }
func (blankPage) Click(context.Context, string) error                             { return nil }
func (blankPage) ScrollIntoView(context.Context, string) error                    { return nil }
func (blankPage) DismissOverlay(context.Context) error                            { return nil }
func (blankPage) HidePost(context.Context, string, int) error                     { return nil }

type nopLauncher struct{ launched chan struct{} }

func (l nopLauncher) Launch(context.Context) error {
	l.launched <- struct{}{}
	return nil
}

type fakeSearcher struct {
	hits []search.Hit
	err  error
}

func (f fakeSearcher) Search(string, int64) ([]search.Hit, int64, error) {
	return f.hits, int64(len(f.hits)), f.err
}

type fixture struct {
	st       *queue.State
	inbox    *controller.Inbox
	handler  *AdminHandler
	router   *gin.Engine
	launched chan struct{}
}

func newFixture(t *testing.T, searcher Searcher, limiter *ratelimit.RateLimiter) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := queue.New(store.New(store.NewMemory(), nil, nil), nil)
	sc := scanner.New(blankPage{}, st, nil)
	fg := engine.NewForeground(blankPage{}, st, engine.Timing{}, nil)
	inbox := controller.NewInbox(time.Second)
	launched := make(chan struct{}, 4)
	session := controller.NewSession(st, sc, fg, inbox, nopLauncher{launched}, time.Millisecond, nil)

	h := NewAdminHandler(context.Background(), session, inbox, searcher, limiter, nil)
	return &fixture{st: st, inbox: inbox, handler: h, router: h.Router(nil), launched: launched}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) question(t *testing.T) controller.Notice {
	t.Helper()
	var q controller.Notice
	require.Eventually(t, func() bool {
		for _, n := range f.inbox.Notices() {
			if n.Kind == controller.NoticeConfirm || n.Kind == controller.NoticePrompt {
				q = n
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return q
}

func TestGetView(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.st.AddPending(ctx, "alice", "bob"))
	require.NoError(t, f.st.AddHistory(ctx, "carol"))

	w := f.do(http.MethodGet, "/api/view", "")
	require.Equal(t, http.StatusOK, w.Code)

	var v controller.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, 2, v.Selected)
	assert.Equal(t, 1, v.History)
	assert.Equal(t, models.ModeBackground, v.Mode)
}

func TestStart_SubmitsInBackground(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, f.st.AddPending(ctx, "alice"))

	w := f.do(http.MethodPost, "/api/start", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	f.handler.Wait()

	assert.Equal(t, []string{"alice"}, f.st.Queue(ctx))
	assert.Len(t, f.launched, 1)
}

func TestImport_ConfirmedThroughNotices(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	w := f.do(http.MethodPost, "/api/import", `{"usernames":"@alice, bob"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	q := f.question(t)
	assert.Equal(t, controller.NoticeConfirm, q.Kind)
	w = f.do(http.MethodPost, "/api/notices/"+q.ID+"/answer", `{"accept":true}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	f.handler.Wait()

	assert.Equal(t, []string{"alice", "bob"}, f.st.Queue(ctx))
	assert.Len(t, f.launched, 1)
}

func TestAnswerNotice_Errors(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/notices/nope/answer", `{"accept":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/notices/nope/answer", `{`).Code)
}

func TestNotices_ListAndDismiss(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.inbox.Message(context.Background(), "hello")

	w := f.do(http.MethodGet, "/api/notices", "")
	var body struct {
		Notices []controller.Notice `json:"notices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Notices, 1)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/notices/"+body.Notices[0].ID, "").Code)
	assert.Empty(t, f.inbox.Notices())
}

func TestExport(t *testing.T) {
	f := newFixture(t, nil, nil)
	require.NoError(t, f.st.AddHistory(context.Background(), "alice", "bob"))

	w := f.do(http.MethodPost, "/api/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"usernames":"alice\nbob"}`, w.Body.String())

	notices := f.inbox.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, controller.NoticeCopy, notices[0].Kind)
}

func TestToggleModeAndPanel(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	w := f.do(http.MethodPost, "/api/mode", "")
	assert.JSONEq(t, `{"mode":"foreground"}`, w.Body.String())
	assert.Equal(t, models.ModeForeground, f.st.Mode(ctx))

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/panel", `{"minimized":true}`).Code)
	assert.Equal(t, "minimized", f.st.Store().Get(ctx, models.KeyPanelState, ""))
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/panel", "nope").Code)
}

func TestSearchHistory(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/history/search?q=a", "").Code)

	f = newFixture(t, fakeSearcher{hits: []search.Hit{{Username: "alice"}}}, nil)
	w := f.do(http.MethodGet, "/api/history/search?q=ali", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"alice"`)

	f = newFixture(t, fakeSearcher{err: errors.New("down")}, nil)
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/history/search", "").Code)
}

func TestActionsAreRateLimited(t *testing.T) {
	f := newFixture(t, nil, ratelimit.NewRateLimiter(1, true))

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/mode", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/mode", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/view", "").Code, "reads are not limited")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil, nil)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "").Code)
}
