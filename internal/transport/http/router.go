package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"

	"open-trivia-rounds/internal/app"
	"open-trivia-rounds/internal/domain"
)

// RouterConfig tunes the HTTP surface.
type RouterConfig struct {
	// Gatherer backs /metrics, prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
	// CategoriesMaxAge is the public cache age of the full catalog.
	CategoriesMaxAge time.Duration
	WS               WSConfig
}

type categoriesResponse struct {
	// Random is offered while at least one category remains.
	Random     bool              `json:"random"`
	Categories []domain.Category `json:"categories"`
}

// NewRouter wires the REST reads, the websocket endpoint and the operational routes.
func NewRouter(svc *app.GameService, c RouterConfig) *gin.Engine {
	if c.Gatherer == nil {
		c.Gatherer = prometheus.DefaultGatherer
	}
	if c.CategoriesMaxAge <= 0 {
		c.CategoriesMaxAge = 5 * time.Minute
	}

	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(requestIDMiddleware())
	e.Use(accessLogMiddleware())

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{})))
	pprof.Register(e, "/debug/pprof")

	ws := NewWSHandler(svc, c.WS)
	e.GET("/ws", gin.WrapF(ws.ServeWS))
	e.GET("/ws/watch", gin.WrapF(ws.ServeWatch))

	h := &restHandler{svc: svc}
	api := e.Group("/api", gzip.Gzip(gzip.DefaultCompression))
	api.GET("/categories", cachecontrol.New(cachecontrol.Config{
		Public: true,
		MaxAge: cachecontrol.Duration(c.CategoriesMaxAge),
	}), h.catalog)

	sessions := api.Group("/sessions/:id", cachecontrol.New(cachecontrol.Config{
		NoStore:        true,
		NoCache:        true,
		MustRevalidate: true,
	}))
	sessions.GET("", h.snapshot)
	sessions.GET("/categories", h.remainingCategories)
	sessions.GET("/questions", h.questions)
	sessions.GET("/summary", h.summary)
	return e
}

type restHandler struct {
	svc *app.GameService
}

func (h *restHandler) catalog(c *gin.Context) {
	cats, err := h.svc.Categories(c.Request.Context(), "")
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, categoriesResponse{Random: len(cats) > 0, Categories: cats})
}

func (h *restHandler) snapshot(c *gin.Context) {
	u, err := h.svc.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *restHandler) remainingCategories(c *gin.Context) {
	cats, err := h.svc.Categories(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, categoriesResponse{Random: len(cats) > 0, Categories: cats})
}

func (h *restHandler) questions(c *gin.Context) {
	qs, err := h.svc.Questions(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": presentQuestions(qs)})
}

func (h *restHandler) summary(c *gin.Context) {
	s, err := h.svc.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func abort(c *gin.Context, err error) {
	_, status := classify(err)
	c.AbortWithStatusJSON(status, toErrorPayload(err))
}

// questionView is a question with its answers in display order.
type questionView struct {
	domain.Question
	Answers []string `json:"answers"`
}

func presentQuestions(qs []domain.Question) []questionView {
	out := make([]questionView, 0, len(qs))
	for _, q := range qs {
		out = append(out, questionView{Question: q, Answers: q.ShuffledAnswers()})
	}
	return out
}
