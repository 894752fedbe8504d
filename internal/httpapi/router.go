package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"smartattend/internal/auth"
	"smartattend/internal/broadcast"
	"smartattend/internal/config"
	"smartattend/internal/httpmiddleware"
)

// HealthProbe reports whether a dependency is reachable.
type HealthProbe func(ctx context.Context) bool

// Deps carries everything the router needs.
type Deps struct {
	Handlers     *Handlers
	Broadcaster  broadcast.Broadcaster
	Log          *zap.Logger
	DBHealthy    HealthProbe
	RedisHealthy HealthProbe
}

// NewRouter builds the gin engine with the full middleware chain and all
// routes.
func NewRouter(cfg config.App, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(cfg.CORSAllowedOrigin))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		dbOK := deps.DBHealthy(c.Request.Context())
		redisOK := deps.RedisHealthy(c.Request.Context())
		status := http.StatusOK
		if !dbOK || !redisOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "db": dbOK, "redis": redisOK})
	})

	h := deps.Handlers
	r.POST("/api/auth/register", h.register)
	r.POST("/api/auth/login", h.login)

	authed := r.Group("/api", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	authed.GET("/auth/me", h.me)

	teacher := authed.Group("", auth.RequireRole(auth.RoleTeacher, auth.RoleAdmin))
	teacher.POST("/qr/generate", h.generateQR)
	teacher.POST("/qr/deactivate", h.deactivateQR)
	teacher.GET("/qr/active", h.activeSessions)
	teacher.POST("/attendance/manual", h.markManually)
	teacher.GET("/attendance/class/:classId", h.classAttendance)

	student := authed.Group("", auth.RequireRole(auth.RoleStudent))
	student.POST("/attendance/mark", h.markAttendance)
	student.GET("/attendance/me", h.myAttendance)

	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/admin/overview", h.adminOverview)

	live := &liveHandler{bc: deps.Broadcaster, log: deps.Log}
	r.GET("/ws", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer), live.serve)

	return r
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := allowedOrigin
		if origin == "*" {
			if o := c.Request.Header.Get("Origin"); o != "" {
				origin = o
			}
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
