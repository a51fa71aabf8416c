package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/linesage/linesage/internal/monitoring"
	"github.com/linesage/linesage/internal/retrieval"
	"github.com/linesage/linesage/internal/services"
	"github.com/linesage/linesage/internal/session"
)

// Router wires every HTTP surface of the service.
type Router struct {
	chat      *services.ChatService
	store     session.Store
	retrieval *retrieval.Provider
	monitor   *monitoring.Monitor
	gatherer  prometheus.Gatherer
	log       *logrus.Logger
}

func NewRouter(chat *services.ChatService, store session.Store, provider *retrieval.Provider, monitor *monitoring.Monitor, gatherer prometheus.Gatherer, log *logrus.Logger) *Router {
	return &Router{
		chat:      chat,
		store:     store,
		retrieval: provider,
		monitor:   monitor,
		gatherer:  gatherer,
		log:       log,
	}
}

// Setup builds the gin engine with all routes and middleware attached.
func (r *Router) Setup() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), r.metricsMiddleware())

	chatHandler := NewChatHandler(r.chat, r.log)
	sessionHandler := NewSessionHandler(r.store, r.log)
	knowledgeHandler := NewKnowledgeHandler(r.retrieval, r.log)

	engine.GET("/health", r.health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/chat", chatHandler.Chat)

		v1.POST("/sessions", sessionHandler.Create)
		v1.GET("/sessions/:id", sessionHandler.Get)
		v1.GET("/sessions/:id/history", sessionHandler.History)
		v1.POST("/sessions/:id/end", sessionHandler.End)
		v1.DELETE("/sessions/:id", sessionHandler.Delete)

		v1.POST("/documents", knowledgeHandler.AddDocuments)
		v1.GET("/issues/:code", knowledgeHandler.GetIssue)
	}
	return engine
}

// health godoc
// @Summary Service health snapshot
// @Tags health
// @Produce json
// @Success 200 {object} monitoring.Health
// @Router /health [get]
func (r *Router) health(c *gin.Context) {
	active, err := r.store.ActiveCount(c.Request.Context())
	if err != nil {
		r.log.WithError(err).Warn("active session count unavailable")
	}
	c.JSON(http.StatusOK, r.monitor.Snapshot(active))
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		r.monitor.RequestReceived()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.monitor.ObserveRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
