package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sheetscrape/console/internal/api"
	"github.com/sheetscrape/console/internal/config"
	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/history"
	"github.com/sheetscrape/console/internal/logging"
	"github.com/sheetscrape/console/internal/remote"
	"github.com/sheetscrape/console/internal/session"
	"github.com/sheetscrape/console/internal/storage"
	"github.com/sheetscrape/console/internal/web"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath, err := config.DefaultPath()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Fatal("failed to create directories", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Staged picks live only as long as their session
	staging, err := storage.NewLocalStore(cfg.Storage.StagingDirectory)
	if err != nil {
		logger.Fatal("failed to initialize staging storage", zap.Error(err))
	}

	runs, err := history.NewRunStore(cfg.Storage.HistoryDatabase, history.Options{
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		Threads:     cfg.Advanced.DuckDBThreads,
	})
	if err != nil {
		logger.Fatal("failed to open run history", zap.String("path", cfg.Storage.HistoryDatabase), zap.Error(err))
	}

	client := remote.NewClient(cfg.Service.BaseURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.ServiceTimeout()}),
		remote.WithFieldName(cfg.Upload.FieldName),
		remote.WithLogger(logger.Named("remote")),
	)

	sessions := session.NewManager(func(id string) *controller.Controller {
		return controller.New(client, controller.Options{
			SessionID:  id,
			Extensions: cfg.Upload.AllowedExtensions,
			Logger:     logger.Named("controller"),
			Recorder:   runs,
		})
	}, cfg.Sessions.MaxSessions, logger.Named("session"))

	api.StartCleanup(ctx, sessions, cfg.CleanupInterval(), cfg.SessionTimeout(), logger.Named("session"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	origins := strings.Split(cfg.Server.AllowOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	api.SetupMiddleware(e, api.MiddlewareOptions{
		Logger:         logger.Named("http"),
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		BodyLimit:      cfg.Server.BodyLimit,
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   origins,
	})

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		BaseContext: ctx,
		Sessions:    sessions,
		Store:       staging,
		History:     runs,
		ServiceURL:  client.BaseURL(),
		Version:     Version,
		Logger:      logger.Named("api"),
	}))

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", zap.Error(err))
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	logger.Info("sheetscrape console starting",
		zap.String("version", Version),
		zap.String("buildTime", BuildTime),
		zap.String("config", configPath),
		zap.String("listen", "http://"+cfg.GetServerAddr()),
		zap.String("service", client.BaseURL()),
		zap.String("dataDir", cfg.Storage.DataDirectory),
		zap.Bool("embeddedUI", embeddedMode),
	)

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	// Runs record themselves when they finish; the history store must outlive them.
	if err := sessions.Drain(shutdownCtx); err != nil {
		logger.Warn("runs still in flight at shutdown", zap.Error(err))
	}
	if err := runs.Close(); err != nil {
		logger.Warn("failed to close run history", zap.Error(err))
	}
}
