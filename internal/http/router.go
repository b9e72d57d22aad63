// Package httpapi wires the operations surface (Gin) of the dispatch engine:
// the bot webhook, the internal notify trigger, health and metrics.
//
// Middleware order:
//  1. OpenTelemetry tracing
//  2. RequestID
//  3. RedactingLogger (bot token in the webhook path, secret headers)
//  4. Recovery
//  5. Body size limit
//  6. Metrics
//
// Rate limiting applies to the notify trigger only; the webhook is driven by
// the platform and throttling it would only cause redeliveries.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-chat-dispatch/internal/config"
	"github.com/tbourn/go-chat-dispatch/internal/http/handlers"
	"github.com/tbourn/go-chat-dispatch/internal/http/middleware"
)

// Route prefixes.
const (
	WebhookPrefix = "/telegram/webhook/"
	NotifyPrefix  = "/internal/notify/"
)

// Deps are the handlers mounted by RegisterRoutes. A nil handler leaves its
// route unmounted.
type Deps struct {
	Config  config.Config
	Webhook *handlers.Webhook
	Notify  *handlers.NotifyTrigger
}

// RegisterRoutes attaches middleware and endpoints to r.
func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	r.HandleMethodNotAllowed = true

	service := cfg.OTEL.ServiceName
	if service == "" {
		service = "chat-dispatch"
	}
	r.Use(otelgin.Middleware(service))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:   []string{middleware.HeaderNotifyToken},
		MaskPathAfter: []string{WebhookPrefix},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	if d.Webhook != nil {
		r.POST(WebhookPrefix+":token", d.Webhook.Receive)
	}

	if d.Notify != nil && cfg.Dispatch.NotifyToken != "" {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByRoute())
		r.POST(NotifyPrefix+":id",
			middleware.RequireHeader(middleware.HeaderNotifyToken, cfg.Dispatch.NotifyToken, http.StatusUnauthorized),
			rl.Handler(),
			d.Notify.Trigger,
		)
	}
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
