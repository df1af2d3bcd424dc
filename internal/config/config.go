package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// this is a pointer so that if someone attempts to use it before loading it will
// panic and force them to load it first.
// it is also private so that it cannot be modified after loading.
var _loaded *Config

// Config is the main configuration structure
type Config struct {
	Common Common `yaml:"common"`
}

// Load loads the configuration following proper precedence: defaults → config file → environment variables
func Load() {
	// Start with defaults
	LoadDefault()

	configFile := os.Getenv("PAIRSHARE_CONFIG_FILE")
	if configFile == "" {
		configFile = "pairshare.yaml"
	}

	if err := LoadFromFile(configFile); err != nil {
		log.Printf("Failed to load config file: %v, using defaults", err)
	} else {
		log.Printf("Successfully loaded config from file: %s", configFile)
	}

	// Apply environment variable overrides (highest priority)
	if err := ApplyEnvOverrides(); err != nil {
		log.Printf("Ignoring invalid environment override: %v", err)
	}
}

func LoadDefault() {
	config := defaultConfig
	_loaded = &config
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Merge YAML values over defaults
	cfg := defaultConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	_loaded = &cfg
	return nil
}

// ApplyEnvOverrides decodes PAIRSHARE_* environment variables over the loaded
// configuration. Unset variables leave their field untouched.
func ApplyEnvOverrides() error {
	if _loaded == nil {
		return nil
	}

	cfg := *_loaded
	if err := envdecode.Decode(&cfg); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return err
	}

	_loaded = &cfg
	return nil
}

// set sane defaults for all of the config options. when loading the config from
// the file, any options that are not set will be set to these defaults.
var defaultConfig = Config{
	Common: Common{
		Log: logConfig{
			Level:  "info",
			Format: "json",
		},
		Http: httpConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			CORSAllowAll: true,
		},
		Relay: relayConfig{
			IdleTimeout:      3 * time.Hour,
			ReapInterval:     5 * time.Minute,
			MaxMessageLength: 10000,
			DisplayTimezone:  "Europe/Moscow",
		},
		Transport: transportConfig{
			PingInterval:  30 * time.Second,
			PongWait:      60 * time.Second,
			MaxFrameBytes: 64 * 1024,
			SendQueue:     256,
		},
		Blobs: blobsConfig{
			Backend:        "disk",
			Dir:            "uploads",
			MaxUploadBytes: 500 * 1024 * 1024,
		},
		Redis: redisConfig{
			Host:      "localhost",
			Port:      6379,
			Password:  "",
			Database:  0,
			KeyPrefix: "pairshare:blobs:",
		},
		Postgres: postgresConfig{
			Enabled:            false,
			User:               "postgres",
			Password:           "postgres",
			Host:               "localhost",
			Port:               5432,
			Database:           "pairshare",
			MaxOpenConnections: 10,
		},
		Audit: auditConfig{
			Retention: 720 * time.Hour,
			Buffer:    10000,
		},
	},
}

type Common struct {
	Log       logConfig       `yaml:"log"`
	Http      httpConfig      `yaml:"http"`
	Relay     relayConfig     `yaml:"relay"`
	Transport transportConfig `yaml:"transport"`
	Blobs     blobsConfig     `yaml:"blobs"`
	Redis     redisConfig     `yaml:"redis"`
	Postgres  postgresConfig  `yaml:"postgres"`
	Audit     auditConfig     `yaml:"audit"`
}

type logConfig struct {
	Level  string `yaml:"level" env:"PAIRSHARE_LOG_LEVEL"`
	Format string `yaml:"format" env:"PAIRSHARE_LOG_FORMAT"` // "json" or "console"
}

type httpConfig struct {
	Host         string `yaml:"host" env:"PAIRSHARE_HTTP_HOST"`
	Port         int    `yaml:"port" env:"PAIRSHARE_HTTP_PORT"`
	StaticDir    string `yaml:"static_dir" env:"PAIRSHARE_STATIC_DIR"` // built web client, served with SPA fallback
	CORSAllowAll bool   `yaml:"cors_allow_all" env:"PAIRSHARE_CORS_ALLOW_ALL"`
}

func (c httpConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type relayConfig struct {
	IdleTimeout      time.Duration `yaml:"idle_timeout" env:"PAIRSHARE_IDLE_TIMEOUT"`
	ReapInterval     time.Duration `yaml:"reap_interval" env:"PAIRSHARE_REAP_INTERVAL"`
	MaxMessageLength int           `yaml:"max_message_length" env:"PAIRSHARE_MAX_MESSAGE_LENGTH"`
	DisplayTimezone  string        `yaml:"display_timezone" env:"PAIRSHARE_DISPLAY_TIMEZONE"`
}

// Location resolves DisplayTimezone, falling back to UTC when the zone is
// unknown on this host.
func (c relayConfig) Location() (*time.Location, error) {
	if c.DisplayTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC, fmt.Errorf("unknown display timezone %q: %w", c.DisplayTimezone, err)
	}
	return loc, nil
}

type transportConfig struct {
	PingInterval  time.Duration `yaml:"ping_interval" env:"PAIRSHARE_WS_PING_INTERVAL"`
	PongWait      time.Duration `yaml:"pong_wait" env:"PAIRSHARE_WS_PONG_WAIT"`
	MaxFrameBytes int64         `yaml:"max_frame_bytes" env:"PAIRSHARE_WS_MAX_FRAME_BYTES"`
	SendQueue     int           `yaml:"send_queue" env:"PAIRSHARE_WS_SEND_QUEUE"`
}

type blobsConfig struct {
	Backend        string `yaml:"backend" env:"PAIRSHARE_BLOBS_BACKEND"` // "disk" or "redis"
	Dir            string `yaml:"dir" env:"PAIRSHARE_BLOBS_DIR"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"PAIRSHARE_MAX_UPLOAD_BYTES"`
}

type redisConfig struct {
	Host      string `yaml:"host" env:"PAIRSHARE_REDIS_HOST"`
	Port      int    `yaml:"port" env:"PAIRSHARE_REDIS_PORT"`
	Password  string `yaml:"password" env:"PAIRSHARE_REDIS_PASSWORD"`
	Database  int    `yaml:"database" env:"PAIRSHARE_REDIS_DATABASE"`
	KeyPrefix string `yaml:"key_prefix" env:"PAIRSHARE_REDIS_KEY_PREFIX"`
}

func (c redisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN renders the connection URL understood by redis.ParseURL
func (c redisConfig) DSN() string {
	u := url.URL{
		Scheme: "redis",
		Host:   c.Addr(),
		Path:   fmt.Sprintf("/%d", c.Database),
	}
	if c.Password != "" {
		u.User = url.UserPassword("", c.Password)
	}
	return u.String()
}

type postgresConfig struct {
	// audit events go to postgres only when enabled; otherwise they stay in memory
	Enabled            bool   `yaml:"enabled" env:"PAIRSHARE_DB_ENABLED"`
	User               string `yaml:"user" env:"PAIRSHARE_DB_USER"`
	Password           string `yaml:"password" env:"PAIRSHARE_DB_PASSWORD"`
	Host               string `yaml:"host" env:"PAIRSHARE_DB_HOST"`
	Port               int    `yaml:"port" env:"PAIRSHARE_DB_PORT"`
	Database           string `yaml:"database" env:"PAIRSHARE_DB_NAME"`
	MaxOpenConnections int    `yaml:"max_open_connections" env:"PAIRSHARE_DB_MAX_OPEN_CONNECTIONS"`
}

func (c postgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
	)
}

type auditConfig struct {
	Retention time.Duration `yaml:"retention" env:"PAIRSHARE_AUDIT_RETENTION"`
	Buffer    int           `yaml:"buffer" env:"PAIRSHARE_AUDIT_BUFFER"` // in-memory capacity
}

// there should be a getter for each top level field in the config struct.
// these getters will panic if the config has not been loaded.

func Logger() logConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Log
}

func Http() httpConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Http
}

func Relay() relayConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Relay
}

func Transport() transportConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Transport
}

func Blobs() blobsConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Blobs
}

func Redis() redisConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Redis
}

func Postgres() postgresConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Postgres
}

func Audit() auditConfig {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded.Common.Audit
}

// Get returns the full configuration
func Get() *Config {
	if _loaded == nil {
		panic("config not loaded - call Load() first")
	}
	return _loaded
}
