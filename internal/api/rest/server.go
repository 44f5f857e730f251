package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldops/OpenFieldAgent/internal/api/websocket"
	"github.com/fieldops/OpenFieldAgent/internal/config"
	"github.com/fieldops/OpenFieldAgent/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server is the local HTTP surface the technician UI drives. It binds to
// the loopback interface; upstream authentication stays with the backend
// bearer token.
type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting local API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("Local API server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down local API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.GET("/:id", s.getJob)
			jobs.GET("/:id/progress", s.getProgress)
			jobs.POST("/:id/checklist/toggle", s.toggleChecklistItem)
			jobs.POST("/:id/command", s.executeCommand)
			jobs.GET("/:id/elapsed", s.getElapsed)
			jobs.GET("/:id/back-allowed", s.backAllowed)

			jobs.POST("/:id/captures/photo", s.capturePhoto)
			jobs.POST("/:id/captures/signature", s.captureSignature)
			jobs.GET("/:id/captures", s.listCaptures)
		}

		systemGroup := v1.Group("/system")
		{
			systemGroup.GET("/status", s.getSystemStatus)
			systemGroup.POST("/shutdown", s.shutdown)
		}

		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
