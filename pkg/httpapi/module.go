package httpapi

import (
	"strconv"
	"time"

	"adcampaign-controlplane/pkg/config"
	"adcampaign-controlplane/pkg/errutil"
	"adcampaign-controlplane/pkg/featureflags"
	"adcampaign-controlplane/pkg/health"
	"adcampaign-controlplane/pkg/logger"
	"adcampaign-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		middleware.NewVerifier,
		NewEngine,
		NewRouter,
	),
	fx.Invoke(registerHealthEndpoint),
)

// Router is the authenticated /v1 group services mount their routes on.
type Router struct {
	*gin.RouterGroup
}

func NewEngine(cfg *config.Config, ff featureflags.FeatureFlag) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), tracing(), requestLog(), middleware.Error(ff))
	r.NoRoute(middleware.NoRoute)
	return r
}

func NewRouter(r *gin.Engine, v *middleware.Verifier) Router {
	return Router{RouterGroup: r.Group("/v1", middleware.Identity(v))}
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.FromContext(c.Request.Context()).Info("http.request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// tracing opens a server span per request, continuing an incoming
// traceparent header.
func tracing() gin.HandlerFunc {
	tracer := otel.Tracer("adcampaign-controlplane/httpapi")
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		if c.Writer.Status() >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}

// ParamID reads a numeric path parameter.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errutil.BadRequest("invalid "+name, err,
			errutil.WithDetails(errutil.Detail{Field: name, Message: "must be a positive integer"}))
	}
	return id, nil
}

// Bind decodes the JSON body into req.
func Bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errutil.BadRequest("invalid request body", err)
	}
	return nil
}

// BindQuery decodes query parameters into req.
func BindQuery(c *gin.Context, req any) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return errutil.BadRequest("invalid query", err)
	}
	return nil
}
