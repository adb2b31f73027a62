// Package server wires the gin router: middleware chain, route groups
// and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sitewise/platform/internal/config"
	"github.com/sitewise/platform/internal/domain/audit"
	"github.com/sitewise/platform/internal/domain/ratelimit"
	"github.com/sitewise/platform/internal/domain/rbac"
	"github.com/sitewise/platform/internal/handlers"
	"github.com/sitewise/platform/internal/metrics"
	"github.com/sitewise/platform/internal/middleware"
)

// Server interface - following Interface Segregation Principle
type Server interface {
	Setup()
	Start() error
	Router() *gin.Engine
}

// Services holds all service dependencies - Dependency Inversion Principle
type Services struct {
	RBACService  rbac.Service
	AuditService audit.Service
	RateLimiter  ratelimit.Limiter
}

// HTTPServer implements the Server interface
type HTTPServer struct {
	router   *gin.Engine
	config   *config.Config
	logger   *zap.Logger
	services *Services

	startTime time.Time
}

// New creates a new server instance - Factory pattern
func New(cfg *config.Config, svcs *Services, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{
		config:    cfg,
		services:  svcs,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Setup initializes the router - Single Responsibility Principle
func (s *HTTPServer) Setup() {
	if s.config.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
}

func (s *HTTPServer) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestID())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID, middleware.HeaderUserID, middleware.HeaderCompanyID},
		ExposeHeaders:    []string{middleware.HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

func (s *HTTPServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	rbacHandler := handlers.NewRBACHandler(s.services.RBACService, s.logger)
	auditHandler := handlers.NewAuditHandler(s.services.AuditService, s.logger)
	platformHandler := handlers.NewPlatformHandler(s.services.RBACService, s.logger)
	guard := middleware.NewPermissionGuard(s.services.RBACService)

	v1 := s.router.Group("/v1")
	v1.Use(middleware.RequireIdentity())
	if s.config.RateLimit.Enabled && s.services.RateLimiter != nil {
		v1.Use(middleware.RateLimit(s.services.RateLimiter, s.config.RateLimit.Limits()))
	}

	companies := v1.Group("/companies")
	{
		companies.POST("", guard.Require("companies", "create"), rbacHandler.CreateCompany)
		companies.GET("", guard.Require("companies", "read"), rbacHandler.ListCompanies)
		companies.GET("/:company_id", guard.Require("companies", "read"), rbacHandler.GetCompany)

		companies.GET("/:company_id/roles", guard.Require("roles", "read"), rbacHandler.ListRoles)
		companies.POST("/:company_id/roles", guard.Require("roles", "create"), rbacHandler.CreateRole)

		companies.POST("/:company_id/users", guard.Require("team", "invite"), rbacHandler.AssignUserToCompany)
		companies.DELETE("/:company_id/users/:user_id/roles/:role_id", guard.Require("team", "remove"), rbacHandler.RevokeUserFromCompany)

		companies.POST("/:company_id/projects/:project_id/users", guard.Require("projects", "update"), rbacHandler.AssignUserToProject)
		companies.DELETE("/:company_id/projects/:project_id/users/:user_id", guard.Require("projects", "update"), rbacHandler.RevokeUserFromProject)

		// Effective-permission queries carry no guard: any
		// authenticated caller may ask, the answer itself is the
		// access control.
		companies.GET("/:company_id/users/:user_id/permissions", rbacHandler.GetEffectivePermissions)
		companies.POST("/:company_id/users/:user_id/permissions/check", rbacHandler.CheckPermissions)
		companies.POST("/:company_id/users/:user_id/permissions/invalidate", guard.Require("companies", "update"), rbacHandler.InvalidatePermissions)
		companies.GET("/:company_id/users/:user_id/context", rbacHandler.GetUserContext)

		companies.GET("/:company_id/audit-logs", guard.Require("audit", "read"), auditHandler.ListLogs)
	}

	permissions := v1.Group("/permissions")
	{
		permissions.POST("", guard.Require("catalog", "manage"), rbacHandler.CreatePermission)
		permissions.GET("", rbacHandler.ListPermissions)
		permissions.GET("/:permission_id", rbacHandler.GetPermission)
	}

	templates := v1.Group("/role-templates")
	{
		templates.POST("", guard.Require("catalog", "manage"), rbacHandler.CreateRoleTemplate)
		templates.GET("", rbacHandler.ListRoleTemplates)
		templates.GET("/:template_id", rbacHandler.GetRoleTemplate)
		templates.POST("/:template_id/instantiate", guard.Require("roles", "create"), rbacHandler.InstantiateTemplate)
	}

	roles := v1.Group("/roles")
	{
		roles.GET("/:role_id", guard.Require("roles", "read"), rbacHandler.GetRole)
		roles.PUT("/:role_id", guard.Require("roles", "update"), rbacHandler.UpdateRole)
		roles.DELETE("/:role_id", guard.Require("roles", "delete"), rbacHandler.DeleteRole)
		roles.POST("/:role_id/permissions", guard.Require("roles", "grant"), rbacHandler.GrantPermission)
		roles.DELETE("/:role_id/permissions/:permission_id", guard.Require("roles", "grant"), rbacHandler.RevokePermission)
	}

	platform := v1.Group("/platform")
	platform.Use(s.requirePlatform())
	{
		platform.GET("/users", platformHandler.ListPlatformUsers)
		platform.GET("/users/:user_id", platformHandler.CheckPlatformUser)
		platform.POST("/users/:user_id/promote", platformHandler.PromoteToPlatform)
	}
}

// requirePlatform restricts a group to platform-company members. The
// first promotion bootstraps through the service, not this route.
func (s *HTTPServer) requirePlatform() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "MISSING_IDENTITY", "message": "Missing caller identity"},
			})
			c.Abort()
			return
		}

		platform, err := s.services.RBACService.IsPlatformUser(c.Request.Context(), identity.UserID)
		if err != nil {
			s.logger.Error("platform membership check failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   gin.H{"code": "PERMISSION_CHECK_FAILED", "message": "Failed to check permissions"},
			})
			c.Abort()
			return
		}
		if !platform {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   gin.H{"code": "PLATFORM_ONLY", "message": "Platform membership required"},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (s *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).Seconds(),
	})
}

// Start starts the HTTP server with graceful shutdown
func (s *HTTPServer) Start() error {
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:        s.router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		s.logger.Info("Starting server",
			zap.Int("port", s.config.Server.Port),
			zap.String("environment", s.config.Server.Environment),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("Server exited")
	return nil
}

// Router returns the gin router for testing
func (s *HTTPServer) Router() *gin.Engine {
	return s.router
}
