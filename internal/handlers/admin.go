package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"rightblock/internal/controller"
	"rightblock/internal/ratelimit"
	"rightblock/internal/search"
)

// Searcher looks up blocked accounts
type Searcher interface {
	Search(query string, limit int64) ([]search.Hit, int64, error)
}

// AdminHandler serves the control panel API of one controller session
type AdminHandler struct {
	session  *controller.Session
	inbox    *controller.Inbox
	searcher Searcher
	limiter  *ratelimit.RateLimiter
	log      *zap.Logger
	base     context.Context
	wg       sync.WaitGroup
}

// NewAdminHandler creates a new admin handler. searcher may be nil.
// Actions started over HTTP run under base, not the request context.
func NewAdminHandler(base context.Context, session *controller.Session, inbox *controller.Inbox, searcher Searcher, limiter *ratelimit.RateLimiter, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.NewRateLimiter(0, false)
	}
	return &AdminHandler{
		session:  session,
		inbox:    inbox,
		searcher: searcher,
		limiter:  limiter,
		log:      log,
		base:     base,
	}
}

// Router builds the gin engine with CORS for origins
func (h *AdminHandler) Router(origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "DELETE"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/view", h.GetView)
		api.GET("/notices", h.GetNotices)
		api.POST("/notices/:id/answer", h.AnswerNotice)
		api.DELETE("/notices/:id", h.DismissNotice)
		api.GET("/history/search", h.SearchHistory)
		api.GET("/ratelimit/stats", h.GetRateLimitStats)

		actions := api.Group("", h.limiter.Middleware())
		actions.POST("/start", h.Start)
		actions.POST("/stop", h.Stop)
		actions.POST("/clear-selection", h.ClearSelection)
		actions.POST("/clear-all", h.ClearAll)
		actions.POST("/clear-history", h.ClearHistory)
		actions.POST("/import", h.Import)
		actions.POST("/export", h.Export)
		actions.POST("/retry-failed", h.RetryFailed)
		actions.POST("/block-dialog", h.BlockDialog)
		actions.POST("/mode", h.ToggleMode)
		actions.POST("/panel", h.SetPanel)
	}
	return r
}

// Wait blocks until every action started over HTTP has returned
func (h *AdminHandler) Wait() {
	h.wg.Wait()
}

// async runs an action that may wait on a confirmation. The answer comes in
// through a later request, so the call returns 202 right away.
func (h *AdminHandler) async(c *gin.Context, name string, fn func(ctx context.Context) error) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(h.base); err != nil {
			h.log.Warn("action failed", zap.String("action", name), zap.Error(err))
			h.inbox.Message(h.base, name+" failed: "+err.Error())
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"accepted": name})
}

// GetView returns the panel counts
func (h *AdminHandler) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.View(c.Request.Context()))
}

// GetNotices returns unread messages and open questions
func (h *AdminHandler) GetNotices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notices": h.inbox.Notices()})
}

// AnswerNotice resolves a confirm or prompt
func (h *AdminHandler) AnswerNotice(c *gin.Context) {
	var a controller.Answer
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.inbox.Answer(c.Param("id"), a); err != nil {
		if errors.Is(err, controller.ErrUnknownNotice) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// DismissNotice removes a read message
func (h *AdminHandler) DismissNotice(c *gin.Context) {
	h.inbox.Dismiss(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// SearchHistory looks up blocked accounts by name
func (h *AdminHandler) SearchHistory(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is not configured"})
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	hits, total, err := h.searcher.Search(c.Query("q"), limit)
	if err != nil {
		h.log.Warn("history search failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits, "total": total})
}

// GetRateLimitStats returns the action limiter counters
func (h *AdminHandler) GetRateLimitStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.limiter.GetStats())
}

// Start submits or runs the selection
func (h *AdminHandler) Start(c *gin.Context) {
	h.async(c, "start", h.session.Start)
}

// Stop asks the worker to halt
func (h *AdminHandler) Stop(c *gin.Context) {
	h.async(c, "stop", h.session.Stop)
}

// ClearSelection drops the selection and the queues
func (h *AdminHandler) ClearSelection(c *gin.Context) {
	h.async(c, "clear selection", h.session.ClearSelection)
}

// ClearAll drops everything including history
func (h *AdminHandler) ClearAll(c *gin.Context) {
	h.async(c, "clear all", h.session.ClearAll)
}

// ClearHistory forgets every recorded block
func (h *AdminHandler) ClearHistory(c *gin.Context) {
	h.async(c, "clear history", h.session.ClearHistory)
}

type importRequest struct {
	Usernames string `json:"usernames"`
}

// Import queues a username list. An empty list asks for one.
func (h *AdminHandler) Import(c *gin.Context) {
	var req importRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	h.async(c, "import", func(ctx context.Context) error {
		_, err := h.session.Import(ctx, req.Usernames)
		return err
	})
}

// Export returns the history list and offers it for copying
func (h *AdminHandler) Export(c *gin.Context) {
	list, err := h.session.ExportHistory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usernames": list})
}

// RetryFailed re-queues the Failed Queue
func (h *AdminHandler) RetryFailed(c *gin.Context) {
	h.async(c, "retry failed", func(ctx context.Context) error {
		_, err := h.session.RetryFailed(ctx)
		return err
	})
}

// BlockDialog selects every new user in the open dialog
func (h *AdminHandler) BlockDialog(c *gin.Context) {
	h.async(c, "block dialog", func(ctx context.Context) error {
		_, err := h.session.BlockAllInDialog(ctx)
		return err
	})
}

// ToggleMode flips the desktop mode
func (h *AdminHandler) ToggleMode(c *gin.Context) {
	m, err := h.session.ToggleMode(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": m})
}

type panelRequest struct {
	Minimized bool `json:"minimized"`
}

// SetPanel stores whether the panel is minimized
func (h *AdminHandler) SetPanel(c *gin.Context) {
	var req panelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.session.SetMinimized(c.Request.Context(), req.Minimized); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
