package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sensor backends.
const (
	SensorClient = "client"
	SensorGoogle = "google"
	SensorGPS    = "gps"
	SensorFixed  = "fixed"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Valkey      ValkeyConfig      `mapstructure:"valkey"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Regions     RegionsConfig     `mapstructure:"regions"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Sensor      SensorConfig      `mapstructure:"sensor"`
	Viewport    ViewportConfig    `mapstructure:"viewport"`
	Presence    PresenceConfig    `mapstructure:"presence"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// RegionsConfig points at the region centroid table (YAML, JSON or GeoJSON).
type RegionsConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

type ProfileConfig struct {
	HighAccuracy bool          `mapstructure:"high_accuracy"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxCacheAge  time.Duration `mapstructure:"max_cache_age"`
}

type AcquisitionConfig struct {
	Fast    ProfileConfig `mapstructure:"fast"`
	Precise ProfileConfig `mapstructure:"precise"`
}

type SensorConfig struct {
	Backend     string  `mapstructure:"backend"`
	MapsAPIKey  string  `mapstructure:"maps_api_key"`
	ModemIndex  int     `mapstructure:"modem_index"`
	GPSPort     string  `mapstructure:"gps_port"`
	GPSBaudRate int     `mapstructure:"gps_baud_rate"`
	FixedLat    float64 `mapstructure:"fixed_lat"`
	FixedLng    float64 `mapstructure:"fixed_lng"`
}

type ViewportConfig struct {
	DefaultLat           float64       `mapstructure:"default_lat"`
	DefaultLng           float64       `mapstructure:"default_lng"`
	ZoomClose            int           `mapstructure:"zoom_close"`
	ZoomMedium           int           `mapstructure:"zoom_medium"`
	ZoomWide             int           `mapstructure:"zoom_wide"`
	ZoomWorld            int           `mapstructure:"zoom_world"`
	SeveralMax           int           `mapstructure:"several_max"`
	ApplyMaxRetries      uint64        `mapstructure:"apply_max_retries"`
	ApplyInitialInterval time.Duration `mapstructure:"apply_initial_interval"`
	ApplyMaxInterval     time.Duration `mapstructure:"apply_max_interval"`
	ApplyMaxElapsed      time.Duration `mapstructure:"apply_max_elapsed"`
}

// PresenceConfig tunes the presence worker. Providers silent for longer
// than TTL are marked offline.
type PresenceConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: PROXIMA_DATABASE_HOST → database.host
	v.SetEnvPrefix("PROXIMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "proxima")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "proxima")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.password", "")
	v.SetDefault("valkey.db", 0)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)

	v.SetDefault("regions.file", "configs/regions.yaml")
	v.SetDefault("regions.watch", true)

	v.SetDefault("acquisition.fast.high_accuracy", false)
	v.SetDefault("acquisition.fast.timeout", "5s")
	v.SetDefault("acquisition.fast.max_cache_age", "1h")
	v.SetDefault("acquisition.precise.high_accuracy", true)
	v.SetDefault("acquisition.precise.timeout", "10s")
	v.SetDefault("acquisition.precise.max_cache_age", "0s")

	v.SetDefault("sensor.backend", SensorClient)
	v.SetDefault("sensor.maps_api_key", "")
	v.SetDefault("sensor.modem_index", 0)
	v.SetDefault("sensor.gps_port", "/dev/ttyUSB0")
	v.SetDefault("sensor.gps_baud_rate", 9600)
	v.SetDefault("sensor.fixed_lat", 0.0)
	v.SetDefault("sensor.fixed_lng", 0.0)

	v.SetDefault("viewport.default_lat", 20.0)
	v.SetDefault("viewport.default_lng", 0.0)
	v.SetDefault("viewport.zoom_close", 14)
	v.SetDefault("viewport.zoom_medium", 11)
	v.SetDefault("viewport.zoom_wide", 5)
	v.SetDefault("viewport.zoom_world", 2)
	v.SetDefault("viewport.several_max", 10)
	v.SetDefault("viewport.apply_max_retries", 8)
	v.SetDefault("viewport.apply_initial_interval", "50ms")
	v.SetDefault("viewport.apply_max_interval", "1s")
	v.SetDefault("viewport.apply_max_elapsed", "10s")

	v.SetDefault("presence.ttl", "2m")
	v.SetDefault("presence.flush_interval", "5s")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	if c.Acquisition.Fast.Timeout <= 0 {
		errs = append(errs, "acquisition.fast.timeout must be positive")
	}
	if c.Acquisition.Precise.Timeout <= 0 {
		errs = append(errs, "acquisition.precise.timeout must be positive")
	}
	if c.Presence.FlushInterval <= 0 {
		errs = append(errs, "presence.flush_interval must be positive")
	}
	if c.Presence.TTL < 0 {
		errs = append(errs, "presence.ttl must not be negative")
	}
	if c.Acquisition.Fast.MaxCacheAge < 0 || c.Acquisition.Precise.MaxCacheAge < 0 {
		errs = append(errs, "acquisition max_cache_age must not be negative")
	}

	switch c.Sensor.Backend {
	case SensorClient:
	case SensorGoogle:
		if c.Sensor.MapsAPIKey == "" {
			errs = append(errs, "sensor.maps_api_key is required for the google backend")
		}
	case SensorGPS:
		if c.Sensor.GPSPort == "" {
			errs = append(errs, "sensor.gps_port is required for the gps backend")
		}
		if c.Sensor.GPSBaudRate <= 0 {
			errs = append(errs, "sensor.gps_baud_rate must be positive")
		}
	case SensorFixed:
		if c.Sensor.FixedLat < -90 || c.Sensor.FixedLat > 90 || c.Sensor.FixedLng < -180 || c.Sensor.FixedLng > 180 {
			errs = append(errs, fmt.Sprintf("sensor fixed coordinate (%v, %v) is out of range", c.Sensor.FixedLat, c.Sensor.FixedLng))
		}
	default:
		errs = append(errs, fmt.Sprintf("sensor.backend must be one of client, google, gps, fixed; got %q", c.Sensor.Backend))
	}

	vp := c.Viewport
	if vp.DefaultLat < -90 || vp.DefaultLat > 90 || vp.DefaultLng < -180 || vp.DefaultLng > 180 {
		errs = append(errs, "viewport default center is out of range")
	}
	if !(vp.ZoomClose >= vp.ZoomMedium && vp.ZoomMedium >= vp.ZoomWide && vp.ZoomWide >= vp.ZoomWorld && vp.ZoomWorld >= 0) {
		errs = append(errs, "viewport zooms must satisfy zoom_close >= zoom_medium >= zoom_wide >= zoom_world >= 0")
	}
	if vp.SeveralMax < 2 {
		errs = append(errs, "viewport.several_max must be at least 2")
	}
	if vp.ApplyInitialInterval <= 0 || vp.ApplyMaxInterval < vp.ApplyInitialInterval {
		errs = append(errs, "viewport apply intervals must be positive and apply_max_interval >= apply_initial_interval")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
