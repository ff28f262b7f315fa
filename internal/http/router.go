// Package httpapi wires the HTTP sidecar: health and metrics endpoints, the
// verification callback and the operator API over admissions, balances and
// stored files. It owns the middleware chain; handlers stay transport-thin.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/filegate-bot/docs"
	"github.com/tbourn/filegate-bot/internal/config"
	"github.com/tbourn/filegate-bot/internal/http/handlers"
	"github.com/tbourn/filegate-bot/internal/http/middleware"
)

// maxBodyBytes caps request bodies. No endpoint accepts one today.
const maxBodyBytes = 64 << 10

// Deps are the services behind the routes.
type Deps struct {
	Ledger   handlers.Ledger
	Registry handlers.Registry
	// DeepLink renders t.me links for listed files; optional.
	DeepLink func(id string) string
}

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger (redacting)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//  7. Requester (X-User-ID) and the rate limiter keyed by client IP
//  8. CORS, security headers and gzip
//
// The verification callback is mounted only in callback admission mode. The
// user and file routes sit behind RequireAPIKey and are not mounted when no
// operator key is configured.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.LogOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Requester())
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP()).Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Ledger, deps.Registry, handlers.Options{
		CallbackSecret: cfg.Admission.CallbackSecret,
		DeepLink:       deps.DeepLink,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	if !cfg.Admission.Optimistic() {
		api.GET("/verify/callback", h.VerifyCallback)
	}

	// Without an operator key the operator API is not mounted at all.
	if cfg.Security.AdminAPIKey == "" {
		log.Warn().Msg("ADMIN_API_KEY is empty; operator API disabled")
		return
	}
	admin := api.Group("", middleware.RequireAPIKey(cfg.Security.AdminAPIKey))
	{
		admin.GET("/users/:id/admission", h.GetAdmission)
		admin.GET("/users/:id/balance", h.GetBalance)
		admin.GET("/users/:id/files", h.ListFiles)
		admin.DELETE("/files/:id", h.DeleteFile)
	}
}

// corsMiddleware allows every origin when none is configured, otherwise it
// echoes allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderAPIKey, middleware.HeaderUserID},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Set ACAO even without an Origin header so simple clients see it.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body at maxBytes.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
