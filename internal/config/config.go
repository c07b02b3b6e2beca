// Package config provides YAML-based configuration for the web console and the terminal client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up next to the executable.
const FileName = "sheetscrape.yaml"

// DefaultServiceURL is the scraping service the clients talk to unless the config file says otherwise.
const DefaultServiceURL = "http://127.0.0.1:5000"

// AppConfig represents the root configuration structure
type AppConfig struct {
	Service  ServiceConfig  `yaml:"service"`
	Upload   UploadConfig   `yaml:"upload"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Sessions SessionsConfig `yaml:"sessions"`
	Advanced AdvancedConfig `yaml:"advanced"`
}

// ServiceConfig points at the remote scraping service
type ServiceConfig struct {
	BaseURL string `yaml:"baseURL"`
	// RequestTimeoutSeconds of 0 means no client timeout.
	RequestTimeoutSeconds int `yaml:"requestTimeoutSeconds"`
}

// UploadConfig controls file selection and the upload request
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowedExtensions"`
	FieldName         string   `yaml:"fieldName"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCORS"`
	AllowOrigins string `yaml:"allowOrigins"`
	ReadTimeout  int    `yaml:"readTimeoutSeconds"`
	WriteTimeout int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `yaml:"idleTimeoutSeconds"`
	BodyLimit    string `yaml:"bodyLimit"`
}

// StorageConfig contains local file locations
type StorageConfig struct {
	DataDirectory      string `yaml:"dataDirectory"`
	StagingDirectory   string `yaml:"stagingDirectory"`
	DownloadsDirectory string `yaml:"downloadsDirectory"`
	HistoryDatabase    string `yaml:"historyDatabase"`
	LogFile            string `yaml:"logFile"`
}

// SessionsConfig controls browser session lifetime
type SessionsConfig struct {
	TimeoutMinutes         int `yaml:"timeoutMinutes"`
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`
	MaxSessions            int `yaml:"maxSessions"`
}

// AdvancedConfig contains tuning options
type AdvancedConfig struct {
	LogLevel             string `yaml:"logLevel"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
	DuckDBThreads        int    `yaml:"duckDBThreads"`
	DuckDBMemoryLimit    string `yaml:"duckDBMemoryLimit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Service: ServiceConfig{
			BaseURL:               DefaultServiceURL,
			RequestTimeoutSeconds: 0,
		},
		Upload: UploadConfig{
			AllowedExtensions: []string{"xlsx", "xls"},
			FieldName:         "file",
		},
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "127.0.0.1",
			EnableCORS:   false,
			AllowOrigins: "*",
			ReadTimeout:  0,
			WriteTimeout: 0,
			IdleTimeout:  120,
			BodyLimit:    "100M",
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			StagingDirectory:   "./data/staging",
			DownloadsDirectory: "./data/downloads",
			HistoryDatabase:    "./data/history.duckdb",
			LogFile:            "./data/scrapectl.log",
		},
		Sessions: SessionsConfig{
			TimeoutMinutes:         30,
			CleanupIntervalMinutes: 5,
			MaxSessions:            50,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			DuckDBThreads:        2,
			DuckDBMemoryLimit:    "256MB",
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults if it does not exist.
// Fields missing from an existing file keep their default values.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# sheetscrape configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail later in confusing ways
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Service.BaseURL) == "" {
		return errors.New("service.baseURL must not be empty")
	}
	if c.Service.RequestTimeoutSeconds < 0 {
		return errors.New("service.requestTimeoutSeconds must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowedExtensions must list at least one extension")
	}
	return nil
}

// applyEnvironmentOverrides lets PORT and DATA_DIR override the file. The service URL is never
// taken from the environment.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.StagingDirectory,
		&c.Storage.DownloadsDirectory,
		&c.Storage.HistoryDatabase,
		&c.Storage.LogFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// ServiceTimeout returns the remote request timeout; zero means none.
func (c *AppConfig) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.RequestTimeoutSeconds) * time.Second
}

// SessionTimeout returns how long an idle browser session is kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Sessions.TimeoutMinutes) * time.Minute
}

// CleanupInterval returns the session sweep period, at least one minute.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Sessions.CleanupIntervalMinutes <= 0 {
		return time.Minute
	}
	return time.Duration(c.Sessions.CleanupIntervalMinutes) * time.Minute
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.StagingDirectory,
		c.Storage.DownloadsDirectory,
		filepath.Dir(c.Storage.HistoryDatabase),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DefaultPath returns the config path next to the running executable.
func DefaultPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), FileName), nil
}
