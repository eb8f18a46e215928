package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mt5-signal-bot/config"
	"mt5-signal-bot/internal/auth"
	"mt5-signal-bot/internal/events"
	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/review"
	"mt5-signal-bot/internal/rules"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server is the operator HTTP API. It exposes the rule catalog, the
// review queue and the signal-group ledger. It never places trades.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	log        zerolog.Logger

	catalog  *rules.Holder
	rulePath string
	reviews  review.Repository
	groups   ledger.Repository
	eventBus *events.EventBus

	authn       *auth.Authenticator
	jwtManager  *auth.JWTManager
	authEnabled bool
}

// Deps bundles everything the server serves.
type Deps struct {
	Catalog  *rules.Holder
	RulePath string
	Reviews  review.Repository
	Groups   ledger.Repository
	EventBus *events.EventBus

	// Authn and JWTManager may be nil when operator auth is disabled.
	Authn      *auth.Authenticator
	JWTManager *auth.JWTManager
}

// NewServer creates the operator API server
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	switch {
	case len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*":
		corsConfig.AllowAllOrigins = true
	case len(cfg.AllowOrigins) > 0:
		corsConfig.AllowOrigins = cfg.AllowOrigins
		corsConfig.AllowCredentials = true
	default:
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      cfg,
		log:         logger.With().Str("component", "api").Logger(),
		catalog:     deps.Catalog,
		rulePath:    deps.RulePath,
		reviews:     deps.Reviews,
		groups:      deps.Groups,
		eventBus:    deps.EventBus,
		authn:       deps.Authn,
		jwtManager:  deps.JWTManager,
		authEnabled: deps.Authn != nil && deps.JWTManager != nil,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authEnabled})
	})

	if s.authEnabled {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	if s.authEnabled {
		api.Use(auth.Middleware(s.jwtManager))
	}

	api.GET("/rules/version", s.handleRulesVersion)
	api.POST("/rules/reload", s.handleRulesReload)

	api.GET("/review", s.handleListReview)
	api.POST("/review/:id/resolve", s.handleResolveReview)

	api.GET("/groups", s.handleListGroups)
	api.GET("/groups/:key", s.handleGetGroup)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the HTTP server until Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("starting operator API")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
