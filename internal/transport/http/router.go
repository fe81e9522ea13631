package httptransport

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"yiscore-server-go/internal/domain/auth"
	"yiscore-server-go/internal/platform/config"
	"yiscore-server-go/internal/platform/errors"
	"yiscore-server-go/internal/platform/logging"
	"yiscore-server-go/internal/transport/http/envelope"
)

// Options configures the HTTP router builder.
type Options struct {
	Config *config.Config
	Logger *logging.Logger
}

// Router bundles together the gin engine and the versioned API group.
type Router struct {
	Engine *gin.Engine
	API    *gin.RouterGroup
}

// Build constructs a gin engine pre-configured with request identification,
// logging, panic recovery, CORS and optional JWT authentication.
func Build(opts Options) (*Router, error) {
	if opts.Config == nil {
		return nil, errors.New(errors.KindConfig, "http.router.build", "http router requires config")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindConfig, "http.router.build", "http router requires logger")
	}
	cfg := opts.Config
	logger := opts.Logger

	if strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(requestIDMiddleware())
	engine.Use(recoveryMiddleware(cfg, logger))
	engine.Use(loggingMiddleware(logger))

	engine.SetTrustedProxies([]string{"0.0.0.0"})

	engine.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"X-Request-Id",
		},
		ExposeHeaders:    []string{"Content-Length", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	engine.NoRoute(func(c *gin.Context) {
		envelope.WriteHTTPError(c, http.StatusNotFound, "请求的资源不存在")
	})
	engine.NoMethod(func(c *gin.Context) {
		envelope.WriteHTTPError(c, http.StatusMethodNotAllowed, "不支持的请求方法")
	})

	registerRootRoutes(engine, cfg)

	api := engine.Group(cfg.Server.APIPrefix)
	if cfg.Auth.Enabled {
		api.Use(authMiddleware(auth.NewAuthToken(cfg.Auth.SecretKey)))
	}

	return &Router{
		Engine: engine,
		API:    api,
	}, nil
}

// registerRootRoutes 注册欢迎页与健康检查端点
func registerRootRoutes(engine *gin.Engine, cfg *config.Config) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "欢迎使用" + cfg.Server.Name,
			"version": cfg.Server.Version,
		})
	})
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.Server.Name,
		})
	})
}

// requestIDMiddleware 为每个请求分配ID，透传调用方自带的X-Request-Id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(envelope.RequestIDKey, requestID)
		c.Header("X-Request-Id", requestID)
		c.Next()
	}
}

// recoveryMiddleware 捕获处理器panic并写出统一错误信封
func recoveryMiddleware(cfg *config.Config, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err, ok := recovered.(error)
				if !ok {
					err = errors.New(errors.KindTransport, "http.recover", "处理器异常退出")
				}
				envelope.WriteUnexpectedError(c, err, cfg.Server.IsDevelopment(), logger)
			}
		}()
		c.Next()
	}
}

func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		logger.InfoTag("HTTP", "%s %s -> %d (%s)",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			duration,
		)
	}
}

// authMiddleware 校验Authorization头中的Bearer令牌
func authMiddleware(token *auth.AuthToken) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			envelope.WriteBusinessError(c, envelope.NewAuthenticationError("请先登录"))
			c.Abort()
			return
		}

		valid, doctorID, err := token.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil || !valid {
			envelope.WriteBusinessError(c, envelope.NewAuthenticationError("登录状态已失效，请重新登录"))
			c.Abort()
			return
		}

		c.Set("doctor_id", doctorID)
		c.Next()
	}
}
