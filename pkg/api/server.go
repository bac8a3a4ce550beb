// Package api provides the HTTP API of the closure service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/catalog"
	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/formfill"
	"github.com/yourorg/fire-closure/pkg/record"
	"github.com/yourorg/fire-closure/pkg/template"
)

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	Debug           bool          `json:"debug" yaml:"debug"`
	TrustedProxies  []string      `json:"trusted_proxies" yaml:"trusted_proxies"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server represents the HTTP server
type Server struct {
	config   *ServerConfig
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
	handlers *Handlers
	auth     *auth.Middleware
	metrics  *Metrics
}

// Dependencies contains all dependencies needed by the server
type Dependencies struct {
	DB              *db.Connection
	Logger          *zap.Logger
	Auth            *auth.Middleware
	Metrics         *Metrics
	TemplateManager *template.Manager
	RecordManager   *record.Manager
	CatalogManager  *catalog.Manager
	FormFillManager *formfill.Manager
}

// NewServer creates a new HTTP server
func NewServer(config *ServerConfig, deps *Dependencies) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}

	if len(config.TrustedProxies) > 0 {
		if err := router.SetTrustedProxies(config.TrustedProxies); err != nil {
			logger.Warn("invalid trusted proxies", zap.Error(err))
		}
	}

	s := &Server{
		config:   config,
		logger:   logger,
		router:   router,
		handlers: NewHandlers(logger, deps),
		auth:     deps.Auth,
		metrics:  deps.Metrics,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health checks (no auth)
	s.router.GET("/health", s.handlers.HealthCheck)
	s.router.GET("/ready", s.handlers.Readiness)
	if s.metrics != nil {
		s.router.GET("/metrics", s.metrics.Handler())
	}

	v1 := s.router.Group("/api/v1")
	v1.Use(s.auth.Authenticate())
	{
		v1.GET("/auth/me", s.handlers.Me)

		cierre := v1.Group("/cierre")
		{
			cierre.POST("/init", s.require(auth.ObjectCierre, auth.ActionEdit), s.handlers.InitCierre)
			cierre.GET("/:incident_id", s.require(auth.ObjectCierre, auth.ActionRead), s.handlers.GetCierre)
			cierre.PATCH("/:incident_id", s.require(auth.ObjectCierre, auth.ActionEdit), s.handlers.PatchCierre)
			cierre.POST("/:incident_id/finalizar", s.require(auth.ObjectCierre, auth.ActionFinalize), s.handlers.FinalizarCierre)
			cierre.POST("/:incident_id/reabrir", s.require(auth.ObjectCierre, auth.ActionReopen), s.handlers.ReabrirCierre)
		}

		catalogos := v1.Group("/catalogos")
		{
			catalogos.GET("/:catalog", s.require(auth.ObjectCatalogo, auth.ActionRead), s.handlers.ListCatalogo)
			catalogos.POST("/:catalog", s.require(auth.ObjectCatalogo, auth.ActionManage), s.handlers.CreateCatalogoItem)
			catalogos.DELETE("/:catalog/:item_id", s.require(auth.ObjectCatalogo, auth.ActionManage), s.handlers.DeleteCatalogoItem)
		}

		incendios := v1.Group("/incendios/:incident_id")
		{
			incendios.GET("/formulario-cierre", s.require(auth.ObjectFormulario, auth.ActionRead), s.handlers.GetFormularioCierre)
			incendios.POST("/formulario-cierre/respuestas", s.require(auth.ObjectFormulario, auth.ActionEdit), s.handlers.SaveRespuestas)
			incendios.POST("/finalizar", s.require(auth.ObjectFormulario, auth.ActionFinalize), s.handlers.FinalizarIncendio)
		}

		// Template authoring (admin only)
		admin := v1.Group("")
		admin.Use(s.require(auth.ObjectPlantilla, auth.ActionManage))
		{
			admin.GET("/plantillas", s.handlers.ListTemplates)
			admin.POST("/plantillas", s.handlers.CreateTemplate)
			admin.GET("/plantillas/:template_id", s.handlers.GetTemplate)
			admin.PUT("/plantillas/:template_id", s.handlers.UpdateTemplate)
			admin.DELETE("/plantillas/:template_id", s.handlers.DeleteTemplate)
			admin.POST("/plantillas/:template_id/activar", s.handlers.ActivateTemplate)
			admin.POST("/plantillas/:template_id/secciones", s.handlers.AddSection)
			admin.PUT("/secciones/:section_id", s.handlers.UpdateSection)
			admin.DELETE("/secciones/:section_id", s.handlers.DeleteSection)
			admin.POST("/secciones/:section_id/campos", s.handlers.AddField)
			admin.PUT("/campos/:field_id", s.handlers.UpdateField)
			admin.DELETE("/campos/:field_id", s.handlers.DeleteField)
		}
	}
}

func (s *Server) require(object, action string) gin.HandlerFunc {
	return s.auth.RequirePermission(object, action)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", zap.String("address", addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// RequestLogger returns a gin middleware for logging requests
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if tenantID := auth.GetTenantIDFromGin(c); tenantID != "" {
			fields = append(fields, zap.String("tenant_id", tenantID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}
