package handler

import (
	"agropay/internal/adapter/http/middleware"
	redisStore "agropay/internal/adapter/storage/redis"
	"agropay/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL and Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Provider-facing route (no auth; the provider cannot send tokens) ---
	callbackHandler := NewCallbackHandler(deps.PaymentSvc, deps.Logger)
	v1.POST("/payments/mpesa/callback", rl("callback"), callbackHandler.MpesaCallback)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	paymentHandler := NewPaymentHandler(deps.PaymentSvc)

	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("/deposit", rl("payments"), paymentHandler.Deposit)
		payments.POST("/withdraw", rl("payments"), paymentHandler.Withdraw)
	}

	transactions := v1.Group("/transactions", jwtAuth)
	{
		transactions.GET("", rl("queries"), paymentHandler.ListTransactions)
		transactions.GET("/:id", rl("queries"), paymentHandler.GetTransaction)
	}

	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("/balance", rl("queries"), paymentHandler.GetBalance)
	}

	// --- Admin routes ---
	admin := v1.Group("/admin", jwtAuth, middleware.AdminOnly())
	{
		admin.PUT("/transactions/:id/status", rl("admin"), paymentHandler.UpdateStatus)
	}

	return r
}
