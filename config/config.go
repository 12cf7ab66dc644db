package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileEnv = "GALLERY_CONFIG_FILE"

type Config struct {
	BindAddress string `yaml:"bind_address"`
	TLSDomains  string `yaml:"tls_domains"` // e.g. "example.com,example2.com"
	DebugMode   bool   `yaml:"debug_mode"`
	BaseURL     string `yaml:"base_url"` // used in login links

	// Database: "sqlite", "mysql" or "postgres"
	DatabaseDriver string `yaml:"database_driver"`
	MySQLDSN       string `yaml:"mysql_dsn"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	SQLiteFile     string `yaml:"sqlite_file"`

	SessionSecret string `yaml:"session_secret"`
	SessionMaxAge int    `yaml:"session_max_age"` // seconds

	// Storage: "disk", "s3" or "minio"
	StorageType     string `yaml:"storage_type"`
	StoragePath     string `yaml:"storage_path"` // directory for disk, key prefix for s3/minio
	StorageBucket   string `yaml:"storage_bucket"`
	StorageRegion   string `yaml:"storage_region"`
	StorageEndpoint string `yaml:"storage_endpoint"`
	StorageKey      string `yaml:"storage_key"`
	StorageSecret   string `yaml:"storage_secret"`
	StorageUseSSL   bool   `yaml:"storage_use_ssl"`

	// Images
	CachePrefix      string `yaml:"cache_prefix"`
	MaxUploadSize    int64  `yaml:"max_upload_size"`
	IngestMaxEdge    int    `yaml:"ingest_max_edge"`
	PreviewEdge      int    `yaml:"preview_edge"`
	OutputFormat     string `yaml:"output_format"`
	OutputQuality    int    `yaml:"output_quality"`
	TransformEnabled bool   `yaml:"transform_enabled"`
	DefaultPageSize  int    `yaml:"default_page_size"`
	MaxPageSize      int    `yaml:"max_page_size"`

	// Mail. SMTPHost empty means links are only logged.
	MailFrom     string        `yaml:"mail_from"`
	SMTPHost     string        `yaml:"smtp_host"`
	SMTPPort     int           `yaml:"smtp_port"`
	SMTPUser     string        `yaml:"smtp_user"`
	SMTPPassword string        `yaml:"smtp_password"`
	LoginLinkTTL time.Duration `yaml:"login_link_ttl"`

	// Rate limiting of login link requests. RedisAddr empty disables it.
	RedisAddr         string        `yaml:"redis_addr"`
	RedisPassword     string        `yaml:"redis_password"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`

	// Created at startup if no user with this email exists
	AdminEmail    string `yaml:"admin_email"`
	AdminName     string `yaml:"admin_name"`
	AdminPassword string `yaml:"admin_password"`
}

func Default() Config {
	return Config{
		BindAddress:       "0.0.0.0:8080",
		DebugMode:         false,
		BaseURL:           "http://localhost:8080",
		DatabaseDriver:    "sqlite",
		SQLiteFile:        "gallery.db",
		SessionMaxAge:     30 * 86400,
		StorageType:       "disk",
		StoragePath:       "data",
		StorageRegion:     "us-east-1",
		CachePrefix:       "resized",
		MaxUploadSize:     32 << 20,
		IngestMaxEdge:     4096,
		PreviewEdge:       300,
		OutputFormat:      "jpeg",
		OutputQuality:     85,
		TransformEnabled:  true,
		DefaultPageSize:   10,
		MaxPageSize:       100,
		MailFrom:          "Photo Gallery <noreply@example.com>",
		SMTPPort:          587,
		LoginLinkTTL:      15 * time.Minute,
		RateLimitRequests: 5,
		RateLimitWindow:   time.Minute,
		AdminName:         "Admin",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// GALLERY_CONFIG_FILE and finally the environment.
func Load() (Config, error) {
	cfg := Default()
	if file := os.Getenv(configFileEnv); file != "" {
		if err := cfg.readFile(file); err != nil {
			return cfg, err
		}
	}
	cfg.readEnv()
	return cfg, cfg.Validate()
}

func (c *Config) readFile(name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", name, err)
	}
	return nil
}

func (c *Config) readEnv() {
	readEnvString("BIND_ADDRESS", &c.BindAddress)
	readEnvString("TLS_DOMAINS", &c.TLSDomains)
	readEnvBool("DEBUG_MODE", &c.DebugMode)
	readEnvString("BASE_URL", &c.BaseURL)
	readEnvString("DATABASE_DRIVER", &c.DatabaseDriver)
	readEnvString("MYSQL_DSN", &c.MySQLDSN)
	readEnvString("POSTGRES_DSN", &c.PostgresDSN)
	readEnvString("SQLITE_FILE", &c.SQLiteFile)
	readEnvString("SESSION_SECRET", &c.SessionSecret)
	readEnvInt("SESSION_MAX_AGE", &c.SessionMaxAge)
	readEnvString("STORAGE_TYPE", &c.StorageType)
	readEnvString("STORAGE_PATH", &c.StoragePath)
	readEnvString("STORAGE_BUCKET", &c.StorageBucket)
	readEnvString("STORAGE_REGION", &c.StorageRegion)
	readEnvString("STORAGE_ENDPOINT", &c.StorageEndpoint)
	readEnvString("STORAGE_KEY", &c.StorageKey)
	readEnvString("STORAGE_SECRET", &c.StorageSecret)
	readEnvBool("STORAGE_USE_SSL", &c.StorageUseSSL)
	readEnvString("CACHE_PREFIX", &c.CachePrefix)
	readEnvInt64("MAX_UPLOAD_SIZE", &c.MaxUploadSize)
	readEnvInt("INGEST_MAX_EDGE", &c.IngestMaxEdge)
	readEnvInt("PREVIEW_EDGE", &c.PreviewEdge)
	readEnvString("OUTPUT_FORMAT", &c.OutputFormat)
	readEnvInt("OUTPUT_QUALITY", &c.OutputQuality)
	readEnvBool("TRANSFORM_ENABLED", &c.TransformEnabled)
	readEnvInt("DEFAULT_PAGE_SIZE", &c.DefaultPageSize)
	readEnvInt("MAX_PAGE_SIZE", &c.MaxPageSize)
	readEnvString("MAIL_FROM", &c.MailFrom)
	readEnvString("SMTP_HOST", &c.SMTPHost)
	readEnvInt("SMTP_PORT", &c.SMTPPort)
	readEnvString("SMTP_USER", &c.SMTPUser)
	readEnvString("SMTP_PASSWORD", &c.SMTPPassword)
	readEnvDuration("LOGIN_LINK_TTL", &c.LoginLinkTTL)
	readEnvString("REDIS_ADDR", &c.RedisAddr)
	readEnvString("REDIS_PASSWORD", &c.RedisPassword)
	readEnvInt("RATE_LIMIT_REQUESTS", &c.RateLimitRequests)
	readEnvDuration("RATE_LIMIT_WINDOW", &c.RateLimitWindow)
	readEnvString("ADMIN_EMAIL", &c.AdminEmail)
	readEnvString("ADMIN_NAME", &c.AdminName)
	readEnvString("ADMIN_PASSWORD", &c.AdminPassword)
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE is required for the sqlite driver")
		}
	case "mysql":
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is required for the mysql driver")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}
	switch c.StorageType {
	case "disk":
		if c.StoragePath == "" {
			return errors.New("STORAGE_PATH is required for disk storage")
		}
	case "s3", "minio":
		if c.StorageBucket == "" {
			return fmt.Errorf("STORAGE_BUCKET is required for %s storage", c.StorageType)
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}
	if c.SessionSecret == "" && !c.DebugMode {
		return errors.New("SESSION_SECRET is required outside debug mode")
	}
	if c.CachePrefix == "" || strings.Contains(c.CachePrefix, "/") {
		return fmt.Errorf("CACHE_PREFIX must be a single path segment, got %q", c.CachePrefix)
	}
	if c.MaxUploadSize <= 0 || c.IngestMaxEdge <= 0 || c.PreviewEdge <= 0 {
		return errors.New("upload size and image edges must be positive")
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		return errors.New("page sizes must be positive and MAX_PAGE_SIZE >= DEFAULT_PAGE_SIZE")
	}
	if c.RedisAddr != "" && (c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0) {
		return errors.New("rate limit requires positive requests and window")
	}
	return nil
}

func readEnvString(name string, value *string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	*value = v
}

func readEnvBool(name string, value *bool) {
	v := strings.ToLower(os.Getenv(name))
	if v == "true" || v == "1" || v == "yes" || v == "on" {
		*value = true
	} else if v == "false" || v == "0" || v == "no" || v == "off" {
		*value = false
	}
}

func readEnvInt(name string, value *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*value = f
}

func readEnvInt64(name string, value *int64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return
	}
	*value = f
}

func readEnvDuration(name string, value *time.Duration) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return
	}
	*value = d
}
