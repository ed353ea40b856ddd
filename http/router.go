package http

import (
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// SetupRouter registers the API routes. Analysis creation is rate limited
// per client IP. Forwarded headers are only honoured from trustedProxies.
func SetupRouter(handler *AnalysisHandler, limiter *RateLimiter, trustedProxies []string) (*gin.Engine, error) {
	server := gin.New()
	if err := server.SetTrustedProxies(trustedProxies); err != nil {
		return nil, errors.Wrap(err, "invalid trusted proxies")
	}
	server.Use(gin.Recovery(), RequestID(), RequestLogger())

	server.GET("/health", HealthCheck)

	api := server.Group("/api")
	api.GET("/analyses/recent", handler.RecentAnalyses)
	api.GET("/analyses/:id", handler.GetAnalysis)
	api.POST("/analyses", RateLimitMiddleware(limiter), handler.CreateAnalysis)
	api.GET("/loans/:id/risk", handler.LoanRisk)

	return server, nil
}
