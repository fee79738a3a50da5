package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/designer"
	"github.com/vitebski/schema-designer/internal/store"
)

// Server exposes the schema designer over HTTP
type Server struct {
	Manager *designer.Manager
	// Presence is nil when no realtime layer is configured
	Presence store.Presence
	// SampleTables is the size of schemas created from the sample template
	SampleTables int
	Logger       *logrus.Logger

	router *gin.Engine
}

// NewServer creates the server and registers its routes
func NewServer(manager *designer.Manager, presence store.Presence, logger *logrus.Logger) *Server {
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Manager:      manager,
		Presence:     presence,
		SampleTables: 5,
		Logger:       logger,
		router:       gin.New(),
	}

	s.router.Use(gin.Recovery(), RequestLogger(logger))
	s.router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", UserHeader},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": s.Manager.OpenSessions(),
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	api.POST("/export", s.exportGraph)

	authed := api.Group("", RequireUser)
	authed.GET("/dashboard", s.dashboard)

	schemas := authed.Group("/schemas")
	schemas.GET("", s.listSchemas)
	schemas.POST("", s.createSchema)
	schemas.GET("/:id", s.getSchema)
	schemas.PATCH("/:id", s.renameSchema)
	schemas.DELETE("/:id", s.deleteSchema)
	schemas.POST("/:id/actions", s.dispatchAction)
	schemas.POST("/:id/undo", s.undo)
	schemas.POST("/:id/redo", s.redo)
	schemas.POST("/:id/save", s.save)
	schemas.POST("/:id/close", s.closeSchema)
	schemas.GET("/:id/history", s.history)
	schemas.GET("/:id/notifications", s.notifications)
	schemas.GET("/:id/export", s.exportSchema)
	schemas.GET("/:id/analysis", s.analysis)
	schemas.POST("/:id/presence", s.touchPresence)
	schemas.GET("/:id/presence", s.presence)
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the handler in an http.Server listening on port
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
