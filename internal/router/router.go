package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/careflow-api/internal/middleware"
	"github.com/jwalitptl/careflow-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(gin.IRouter)
}

// Handlers groups the route owners. Staff is the roster listing.
type Handlers struct {
	Health   Handler
	Auth     Handler
	Staff    Handler
	Patients Handler
	FollowUp Handler
	Live     Handler
}

type RouterConfig struct {
	Mode             string
	RequestTimeout   time.Duration
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSOrigins      []string
	MaxBodyBytes     int64
	HSTS             bool
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	config   RouterConfig
	gatherer prometheus.Gatherer
}

func NewRouter(config RouterConfig, auth *middleware.AuthMiddleware, handlers Handlers,
	m *metrics.Metrics, gatherer prometheus.Gatherer) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.Metrics(m),
		middleware.ErrorHandler(),
		middleware.CORS(config.CORSOrigins),
		middleware.SecurityHeaders(config.HSTS),
		middleware.BodyLimit(config.MaxBodyBytes),
	)
	if config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	return &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		config:   config,
		gatherer: gatherer,
	}, nil
}

func (r *Router) Setup() {
	r.handlers.Health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	api := r.engine.Group("/api/v1")

	// Live streams outlive any request timeout.
	live := api.Group("", r.auth.Authenticate())
	r.handlers.Live.RegisterRoutes(live)

	timed := api.Group("", middleware.Timeout(middleware.TimeoutConfig{Duration: r.config.RequestTimeout}))
	r.handlers.Auth.RegisterRoutes(timed)

	protected := timed.Group("", r.auth.Authenticate())
	r.handlers.Staff.RegisterRoutes(protected)
	r.handlers.Patients.RegisterRoutes(protected)
	r.handlers.FollowUp.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// RoutesFunc adapts a registration function to Handler.
type RoutesFunc func(gin.IRouter)

func (f RoutesFunc) RegisterRoutes(r gin.IRouter) { f(r) }
