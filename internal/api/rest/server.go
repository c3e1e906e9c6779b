package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/api/websocket"
	"github.com/KevinKickass/PumpFleet/internal/auth"
	"github.com/KevinKickass/PumpFleet/internal/catalog"
	"github.com/KevinKickass/PumpFleet/internal/collection"
	"github.com/KevinKickass/PumpFleet/internal/config"
	"github.com/KevinKickass/PumpFleet/internal/interfaces"
	"github.com/KevinKickass/PumpFleet/internal/validation"
)

// Dependencies are the services the REST API serves.
type Dependencies struct {
	Lifecycle interfaces.LifecycleManager
	Auth      *auth.Service
	Registry  *collection.Registry
	Source    catalog.Source
	Hub       *websocket.Hub
	Logger    *zap.Logger
}

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.Service
	registry    *collection.Registry
	source      catalog.Source
	pageSize    int
	origins     []string
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)

	// bind errors report JSON field names
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validation.Register(v)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router:      gin.New(),
		lm:          deps.Lifecycle,
		logger:      logger,
		wsHub:       deps.Hub,
		authService: deps.Auth,
		registry:    deps.Registry,
		source:      deps.Source,
		pageSize:    cfg.Collection.DefaultPageSize,
		origins:     cfg.Server.AllowedOrigins,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("Starting REST API server", zap.String("address", lis.Addr().String()))
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(MetricsMiddleware())
	s.router.Use(CORSMiddleware(s.origins))

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := s.authService.AuthMiddleware()

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ====================
		v1.POST("/auth/login", s.login)

		authProtected := v1.Group("/auth", requireAuth)
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== PUMPS ====================
		pumps := v1.Group("/pumps", requireAuth)
		{
			pumps.GET("", s.listPumps)
			pumps.POST("", s.createPump)
			pumps.GET("/state", s.getPumpState)

			pumps.POST("/search", s.searchPumps)
			pumps.DELETE("/search", s.clearSearch)
			pumps.POST("/search/toggle", s.toggleSearch)
			pumps.POST("/sort", s.sortPumps)
			pumps.POST("/edit-mode/toggle", s.toggleEditMode)

			pumps.PUT("/selection", s.selectAll)
			pumps.PUT("/selection/:id", s.selectPump)

			pumps.POST("/delete/request", s.requestDelete)
			pumps.POST("/delete/confirm", s.confirmDelete)
			pumps.POST("/delete/cancel", s.cancelDelete)

			pumps.GET("/:id", s.getPump)
			pumps.PATCH("/:id", s.updatePump)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system", requireAuth)
		{
			system.GET("/status", s.getSystemStatus)
		}

		// ==================== WEBSOCKET (auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", requireAuth, s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	s.wsHub.Handler(s.origins)(c.Writer, c.Request)
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
