// routes.go - Route registration helpers
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sheetscrape/console/internal/session"
	"github.com/sheetscrape/console/internal/storage"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	BaseContext context.Context
	Sessions    *session.Manager
	Store       storage.Store
	History     RunHistory
	ServiceURL  string
	Version     string
	Logger      *zap.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Session SessionHandler
	Socket  SocketHandler
	History HistoryHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.ServiceURL),
		Session: NewSessionHandler(deps.BaseContext, deps.Sessions, deps.Store, deps.Logger),
		Socket:  NewWebSocketHandler(deps.Sessions, deps.Logger),
		History: NewHistoryHandler(deps.History),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)

	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Session.HandleCreateSession)
	sessionGroup.GET("/:id", handlers.Session.HandleGetSession)
	sessionGroup.GET("/:id/msgpack", handlers.Session.HandleGetSessionMsgpack)
	sessionGroup.DELETE("/:id", handlers.Session.HandleDeleteSession)
	sessionGroup.POST("/:id/file", handlers.Session.HandleSelectFile)
	sessionGroup.POST("/:id/submit", handlers.Session.HandleSubmit)
	sessionGroup.GET("/:id/ws", handlers.Socket.HandleSessionSocket)

	apiGroup.GET("/runs/recent", handlers.History.HandleRecentRuns)
}

// MiddlewareOptions configures SetupMiddleware
type MiddlewareOptions struct {
	Logger         *zap.Logger
	RequestLogging bool
	BodyLimit      string
	EnableCORS     bool
	AllowOrigins   []string
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	e.HTTPErrorHandler = ErrorHandler

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !opts.RequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/ws") || path == "/api/health"
		},
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if opts.EnableCORS {
		origins := opts.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}

// StartCleanup sweeps idle sessions every interval until ctx is done
func StartCleanup(ctx context.Context, sessions *session.Manager, interval, maxAge time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sessions.CleanupOldSessions(maxAge); n > 0 {
					logger.Info("session cleanup", zap.Int("removed", n), zap.Int("active", sessions.Count()))
				}
			}
		}
	}()
}
