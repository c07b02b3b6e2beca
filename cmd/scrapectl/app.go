package main

import (
	"fmt"
	"net/http"

	"github.com/sheetscrape/console/internal/config"
	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/history"
	"github.com/sheetscrape/console/internal/logging"
	"github.com/sheetscrape/console/internal/remote"
	"github.com/sheetscrape/console/internal/storage"
	"go.uber.org/zap"
)

// app holds everything a subcommand needs, built from the config file and global flags.
type app struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	client  *remote.Client
	history *history.RunStore
}

// newApp loads config and builds the client. toFile sends logs to the configured log
// file instead of stderr, for the interactive form.
func newApp(toFile bool) (*app, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if serviceURL != "" {
		cfg.Service.BaseURL = serviceURL
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	var logger *zap.Logger
	if toFile {
		logger, err = logging.NewFile(cfg.Advanced.LogLevel, cfg.Storage.LogFile)
	} else {
		logger, err = logging.New(cfg.Advanced.LogLevel)
	}
	if err != nil {
		return nil, err
	}

	client := remote.NewClient(cfg.Service.BaseURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.ServiceTimeout()}),
		remote.WithFieldName(cfg.Upload.FieldName),
		remote.WithLogger(logger),
	)

	a := &app{cfg: cfg, logger: logger, client: client}

	// The server may hold the database open; history is optional for the CLI.
	store, err := history.NewRunStore(cfg.Storage.HistoryDatabase, history.Options{
		MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
		Threads:     cfg.Advanced.DuckDBThreads,
	})
	if err != nil {
		logger.Warn("run history unavailable", zap.String("path", cfg.Storage.HistoryDatabase), zap.Error(err))
	} else {
		a.history = store
	}
	return a, nil
}

func (a *app) newController() *controller.Controller {
	opts := controller.Options{
		Extensions: a.cfg.Upload.AllowedExtensions,
		Logger:     a.logger,
	}
	if a.history != nil {
		opts.Recorder = a.history
	}
	return controller.New(a.client, opts)
}

func (a *app) downloads() (*storage.LocalStore, error) {
	return storage.NewLocalStore(a.cfg.Storage.DownloadsDirectory)
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("failed to close run history", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
