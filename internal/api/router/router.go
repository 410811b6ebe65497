package router

import (
	"net/http"
	"regexp"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/attribution/internal/api/handler"
	"github.com/d60-Lab/attribution/internal/api/middleware"
	"github.com/d60-Lab/attribution/internal/config"
)

// 事件类别是开放集合：未知类型要能进入流水线走默认计费分支，
// 这里只校验格式，不收窄取值
var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// RegisterValidations 注册自定义参数校验
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("eventcategory", func(fl validator.FieldLevel) bool {
			return categoryPattern.MatchString(fl.Field().String())
		})
	}
}

// New 组装路由
func New(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	RegisterValidations()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	r.Use(otelgin.Middleware("attribution"))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/track", h.Track)
		v1.POST("/queue/sync", h.SyncCallback)
	}

	admin := v1.Group("/admin", middleware.AdminAuth(cfg.Admin.JWTSecret, cfg.Admin.KeyHash))
	{
		admin.GET("/dlq", h.ListDeadLetters)
		admin.GET("/dlq/:id", h.GetDeadLetter)
		admin.POST("/dlq/:id/replay", h.ReplayDeadLetter)
		admin.GET("/reports/:tenant_id/daily", h.DailyReport)
		admin.POST("/jobs/sweep-fallback", h.SweepFallback)
	}

	return r
}
