package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/tracing"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
}

// HealthChecker reports whether backing stores are reachable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Auth is what the route middlewares need from the auth service.
type Auth interface {
	middleware.TokenValidator
	middleware.LoginChecker
}

var _ Auth = (*service.AuthService)(nil)

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth Auth,
	handlers *Handlers,
	cfg *config.Config,
	authLimiter *middleware.RateLimiter,
	health HealthChecker,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware())
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health.Check(ctx); err != nil {
				response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
				return
			}
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authAPI := router.Group("/api/v1/auth")
	if authLimiter != nil {
		authAPI.Use(authLimiter.Middleware())
	}
	{
		authAPI.POST("/student/login", handlers.Auth.StudentLogin)

		// Authenticated profile routes
		authAPI.POST("/student/logout", middleware.RequireStudentJWT(auth), handlers.Auth.StudentLogout)
		authAPI.GET("/student/me", middleware.RequireStudentJWT(auth), handlers.Auth.GetStudentProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(auth),
		middleware.CheckSingleDeviceSession(auth),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/subjects", middleware.CacheControl(60), handlers.StudentPortal.ListSubjects)
		studentAPI.POST("/subjects/:subject_id/sessions", handlers.StudentPortal.StartSession)
		studentAPI.GET("/subjects/:subject_id/leaderboard", handlers.StudentPortal.GetLeaderboard)

		studentAPI.GET("/sessions", handlers.StudentPortal.ListHistory)
		studentAPI.GET("/sessions/:session_id", handlers.StudentPortal.LoadSession)
		studentAPI.PATCH("/sessions/:session_id/answers/:question_id", handlers.StudentPortal.RecordAnswer)
		studentAPI.POST("/sessions/:session_id/submit", handlers.StudentPortal.SubmitSession)
		studentAPI.GET("/sessions/:session_id/result", handlers.StudentPortal.GetResult)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentWSAuth(auth),
		middleware.CheckSingleDeviceSession(auth),
	)
	{
		ws.GET("/student/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
