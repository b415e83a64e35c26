// Package config provides environment-based configuration management and the
// DB-backed system settings manager.
package config

import (
	"fmt"
	"shiftclock/internal/types"
	"shiftclock/internal/utils"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Constants holds validation boundaries for configuration values.
type Constants struct {
	MinPort    int
	MaxPort    int
	MinTimeout int
}

// DefaultConstants defines the configuration boundaries.
var DefaultConstants = Constants{
	MinPort:    1,
	MaxPort:    65535,
	MinTimeout: 1,
}

// Manager implements types.ConfigManager backed by environment variables.
type Manager struct {
	config          *Config
	settingsManager *SystemSettingsManager
}

// Config aggregates all environment-derived configuration sections.
type Config struct {
	Server      types.ServerConfig      `json:"server"`
	Auth        types.AuthConfig        `json:"auth"`
	CORS        types.CORSConfig        `json:"cors"`
	Performance types.PerformanceConfig `json:"performance"`
	Log         types.LogConfig         `json:"log"`
	Database    types.DatabaseConfig    `json:"database"`
	Media       types.MediaConfig       `json:"media"`
	Geocoding   types.GeocodingConfig   `json:"geocoding"`
	RedisDSN    string                  `json:"redis_dsn"`
}

// NewManager creates a new configuration manager, loading .env when present.
func NewManager(settingsManager *SystemSettingsManager) (types.ConfigManager, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	manager := &Manager{settingsManager: settingsManager}
	if err := manager.ReloadConfig(); err != nil {
		return nil, err
	}
	return manager, nil
}

// ReloadConfig re-reads configuration from the environment and validates it.
func (m *Manager) ReloadConfig() error {
	config := &Config{
		Server: types.ServerConfig{
			Port:                    utils.ParseInteger(utils.GetEnvOrDefault("PORT", "3002"), 3002),
			Host:                    utils.GetEnvOrDefault("HOST", "0.0.0.0"),
			IsMaster:                !utils.ParseBoolean(utils.GetEnvOrDefault("IS_SLAVE", "false"), false),
			ReadTimeout:             utils.ParseInteger(utils.GetEnvOrDefault("SERVER_READ_TIMEOUT", "60"), 60),
			WriteTimeout:            utils.ParseInteger(utils.GetEnvOrDefault("SERVER_WRITE_TIMEOUT", "60"), 60),
			IdleTimeout:             utils.ParseInteger(utils.GetEnvOrDefault("SERVER_IDLE_TIMEOUT", "120"), 120),
			GracefulShutdownTimeout: utils.ParseInteger(utils.GetEnvOrDefault("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT", "10"), 10),
		},
		Auth: types.AuthConfig{
			Key: utils.GetEnvOrDefault("AUTH_KEY", ""),
		},
		CORS: types.CORSConfig{
			Enabled:          utils.ParseBoolean(utils.GetEnvOrDefault("ENABLE_CORS", "true"), true),
			AllowedOrigins:   utils.ParseArray(utils.GetEnvOrDefault("ALLOWED_ORIGINS", "*"), []string{"*"}),
			AllowedMethods:   utils.ParseArray(utils.GetEnvOrDefault("ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"), []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   utils.ParseArray(utils.GetEnvOrDefault("ALLOWED_HEADERS", "*"), []string{"*"}),
			AllowCredentials: utils.ParseBoolean(utils.GetEnvOrDefault("ALLOW_CREDENTIALS", "false"), false),
		},
		Performance: types.PerformanceConfig{
			MaxConcurrentRequests: utils.ParseInteger(utils.GetEnvOrDefault("MAX_CONCURRENT_REQUESTS", "100"), 100),
		},
		Log: types.LogConfig{
			Level:      utils.GetEnvOrDefault("LOG_LEVEL", "info"),
			Format:     utils.GetEnvOrDefault("LOG_FORMAT", "text"),
			EnableFile: utils.ParseBoolean(utils.GetEnvOrDefault("LOG_ENABLE_FILE", "false"), false),
			FilePath:   utils.GetEnvOrDefault("LOG_FILE_PATH", "./data/logs/app.log"),
		},
		Database: types.DatabaseConfig{
			DSN: utils.GetEnvOrDefault("DATABASE_DSN", "./data/shiftclock.db"),
		},
		Media: types.MediaConfig{
			Dir:     utils.GetEnvOrDefault("MEDIA_DIR", "./data/media"),
			BaseURL: utils.GetEnvOrDefault("MEDIA_BASE_URL", "/media"),
		},
		Geocoding: types.GeocodingConfig{
			Endpoint: utils.GetEnvOrDefault("GEOCODE_ENDPOINT", ""),
		},
		RedisDSN: utils.GetEnvOrDefault("REDIS_DSN", ""),
	}

	m.config = config
	return m.Validate()
}

// Validate checks the loaded configuration for errors.
func (m *Manager) Validate() error {
	var errs []string

	if m.config.Server.Port < DefaultConstants.MinPort || m.config.Server.Port > DefaultConstants.MaxPort {
		errs = append(errs, fmt.Sprintf("port must be between %d and %d", DefaultConstants.MinPort, DefaultConstants.MaxPort))
	}

	if m.config.Auth.Key == "" {
		errs = append(errs, "AUTH_KEY is required")
	}

	if m.config.Performance.MaxConcurrentRequests < 1 {
		errs = append(errs, "max concurrent requests cannot be less than 1")
	}

	if m.config.Database.DSN == "" {
		errs = append(errs, "DATABASE_DSN is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %v", errs)
	}
	return nil
}

// IsMaster returns whether this node runs the background services.
func (m *Manager) IsMaster() bool {
	return m.config.Server.IsMaster
}

// GetAuthConfig returns authentication configuration
func (m *Manager) GetAuthConfig() types.AuthConfig {
	return m.config.Auth
}

// GetCORSConfig returns CORS configuration
func (m *Manager) GetCORSConfig() types.CORSConfig {
	return m.config.CORS
}

// GetPerformanceConfig returns performance configuration
func (m *Manager) GetPerformanceConfig() types.PerformanceConfig {
	return m.config.Performance
}

// GetLogConfig returns logging configuration
func (m *Manager) GetLogConfig() types.LogConfig {
	return m.config.Log
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() types.DatabaseConfig {
	return m.config.Database
}

// GetMediaConfig returns media storage configuration
func (m *Manager) GetMediaConfig() types.MediaConfig {
	return m.config.Media
}

// GetGeocodingConfig returns reverse geocoding configuration
func (m *Manager) GetGeocodingConfig() types.GeocodingConfig {
	return m.config.Geocoding
}

// GetRedisDSN returns the Redis connection string, empty for memory store.
func (m *Manager) GetRedisDSN() string {
	return m.config.RedisDSN
}

// GetEffectiveServerConfig returns the server configuration.
func (m *Manager) GetEffectiveServerConfig() types.ServerConfig {
	return m.config.Server
}

// DisplayServerConfig logs the effective startup configuration.
func (m *Manager) DisplayServerConfig() {
	server := m.config.Server

	storageType := "memory"
	if m.config.RedisDSN != "" {
		storageType = "redis"
	}

	logrus.Info("")
	logrus.Info("======= Server Configuration =======")
	logrus.Infof("  Listen address:   %s:%d", server.Host, server.Port)
	logrus.Infof("  Master node:      %t", server.IsMaster)
	logrus.Infof("  Database DSN:     %s", m.config.Database.DSN)
	logrus.Infof("  Store:            %s", storageType)
	logrus.Infof("  CORS enabled:     %t", m.config.CORS.Enabled)
	logrus.Infof("  Log level:        %s", m.config.Log.Level)
	logrus.Info("====================================")
	logrus.Info("")
}
