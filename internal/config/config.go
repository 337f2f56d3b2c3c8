package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Storage drivers.
const (
	DriverJSON     = "json"
	DriverPostgres = "postgres"
)

// Upload drivers.
const (
	UploadDisk  = "disk"
	UploadMinio = "minio"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StorageDriver string `yaml:"storageDriver"` // json | postgres
	DataDir       string `yaml:"dataDir"`       // json driver
	DatabaseURL   string `yaml:"databaseURL"`   // postgres driver

	RedisAddr     string `yaml:"redisAddr"` // optional: sessions + rate limit
	RedisPassword string `yaml:"redisPassword"`

	AuthCookieName      string `yaml:"authCookieName"`
	CookieSecure        bool   `yaml:"cookieSecure"`
	SessionMaxAgeSecond int    `yaml:"sessionMaxAgeSeconds"`

	UploadDriver    string `yaml:"uploadDriver"` // disk | minio
	UploadsDir      string `yaml:"uploadsDir"`
	UploadsURL      string `yaml:"uploadsURL"`
	MinioEndpoint   string `yaml:"minioEndpoint"`
	MinioAccessKey  string `yaml:"minioAccessKey"`
	MinioSecretKey  string `yaml:"minioSecretKey"`
	MinioBucket     string `yaml:"minioBucket"`
	MinioUseSSL     bool   `yaml:"minioUseSSL"`
	MinioPublicURL  string `yaml:"minioPublicURL"`
	MaxUploadBytes  int64  `yaml:"maxUploadBytes"`
	DefaultPageSize int    `yaml:"defaultPageSize"`

	LoginRateLimitPerMinute int    `yaml:"loginRateLimitPerMinute"`
	CORSOrigin              string `yaml:"corsOrigin"`
	TrustProxy              bool   `yaml:"trustProxy"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("BOOKSHOP_STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKSHOP_DATA_DIR"); v != "" {
		cfg.DataDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKSHOP_UPLOADS_DIR"); v != "" {
		cfg.UploadsDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKSHOP_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("BOOKSHOP_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = DriverJSON
	}
	if cfg.UploadDriver == "" {
		cfg.UploadDriver = UploadDisk
	}
	if cfg.AuthCookieName == "" {
		cfg.AuthCookieName = "auth"
	}
	if cfg.SessionMaxAgeSecond <= 0 {
		cfg.SessionMaxAgeSecond = 60 * 60 * 24 * 7
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 * 1024 * 1024
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 12
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StorageDriver {
	case DriverJSON:
		if cfg.DataDir == "" {
			return errors.New("config: dataDir is required for the json storage driver")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres storage driver (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown storageDriver %q", cfg.StorageDriver)
	}
	switch cfg.UploadDriver {
	case UploadDisk:
		if cfg.UploadsDir == "" {
			return errors.New("config: uploadsDir is required for the disk upload driver")
		}
	case UploadMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint, minioAccessKey, minioSecretKey and minioBucket are required for the minio upload driver")
		}
	default:
		return fmt.Errorf("config: unknown uploadDriver %q", cfg.UploadDriver)
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	if cfg.LoginRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when loginRateLimitPerMinute is set")
	}
	return nil
}
