package types

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	IsMaster() bool
	GetAuthConfig() AuthConfig
	GetCORSConfig() CORSConfig
	GetPerformanceConfig() PerformanceConfig
	GetLogConfig() LogConfig
	GetDatabaseConfig() DatabaseConfig
	GetMediaConfig() MediaConfig
	GetGeocodingConfig() GeocodingConfig
	GetEffectiveServerConfig() ServerConfig
	GetRedisDSN() string
	Validate() error
	DisplayServerConfig()
	ReloadConfig() error
}

// SystemSettings holds the DB-backed tunables of the attendance engine.
// Defaults come from the struct tags and are written to the system_settings
// table on first startup.
type SystemSettings struct {
	DefaultTimezone       string `json:"default_timezone" default:"UTC" name:"Default timezone" category:"attendance" desc:"Fallback IANA timezone for users without a captured timezone when their organization has none" validate:"required"`
	SweepIntervalMinutes  int    `json:"sweep_interval_minutes" default:"60" name:"Sweep interval" category:"attendance" desc:"Minutes between daily reconciliation sweep runs" validate:"required,min=1"`
	EventQueueSize        int    `json:"event_queue_size" default:"256" name:"Event queue size" category:"attendance" desc:"Bounded capacity of the outbound notification/audit queue" validate:"required,min=1"`
	GeocodeTimeoutSeconds int    `json:"geocode_timeout_seconds" default:"5" name:"Geocode timeout" category:"attendance" desc:"Timeout for reverse geocoding lookups" validate:"required,min=1"`
	SessionLockTTLSeconds int    `json:"session_lock_ttl_seconds" default:"10" name:"Session lock TTL" category:"attendance" desc:"TTL of the per-user check-in/out lock held in the store" validate:"required,min=1"`
	DailyListMaxRangeDays int    `json:"daily_list_max_range_days" default:"92" name:"Daily listing range" category:"attendance" desc:"Maximum date range accepted by the daily attendance listing endpoint" validate:"required,min=1"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port                    int    `json:"port"`
	Host                    string `json:"host"`
	IsMaster                bool   `json:"is_master"`
	ReadTimeout             int    `json:"read_timeout"`
	WriteTimeout            int    `json:"write_timeout"`
	IdleTimeout             int    `json:"idle_timeout"`
	GracefulShutdownTimeout int    `json:"graceful_shutdown_timeout"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Key string `json:"key"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// PerformanceConfig represents performance configuration
type PerformanceConfig struct {
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	EnableFile bool   `json:"enable_file"`
	FilePath   string `json:"file_path"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// MediaConfig represents capture image storage configuration
type MediaConfig struct {
	Dir     string `json:"dir"`
	BaseURL string `json:"base_url"`
}

// GeocodingConfig represents reverse geocoding configuration.
// An empty endpoint disables geocoding; addresses then stay blank.
type GeocodingConfig struct {
	Endpoint string `json:"endpoint"`
}
