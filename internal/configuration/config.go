package configuration

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env       string          `yaml:"env"`
	LogLevel  string          `yaml:"log_level"`
	Database  DatabaseConfig  `yaml:"database"`
	MinIO     MinIOConfig     `yaml:"minio"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Retention RetentionConfig `yaml:"retention"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Tracing   TracingConfig   `yaml:"tracing"`
	NATSURL   string          `yaml:"nats_url"`
	CLAMAVURL string          `yaml:"clamav_url"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type MinIOConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	BucketName string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	// MaxMultipartMemory is the in-memory part of a multipart body; the rest
	// spills to temp files.
	MaxMultipartMemory int64 `yaml:"max_multipart_memory"`
}

// StorageConfig selects the byte store and the metadata store.
type StorageConfig struct {
	Backend   string `yaml:"backend"` // local | minio
	LocalRoot string `yaml:"local_root"`
	// Metadata is postgres, file (JSON snapshot) or memory.
	Metadata         string `yaml:"metadata"`
	MetadataFile     string `yaml:"metadata_file"`
	VerifyOnDownload bool   `yaml:"verify_on_download"`
}

type UploadConfig struct {
	MaxSizeBytes     int64    `yaml:"max_size_bytes"`
	AllowedMimeTypes []string `yaml:"allowed_mime_types"`
	BatchParallelism int      `yaml:"batch_parallelism"`
}

type ThumbnailConfig struct {
	Box       int    `yaml:"box"`
	Quality   int    `yaml:"quality"`
	Mode      string `yaml:"mode"` // sync | pool | nats
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	MaxPixels int    `yaml:"max_pixels"`
}

type RetentionConfig struct {
	Period        time.Duration `yaml:"period"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type AuthConfig struct {
	IssuerURL      string `yaml:"issuer_url"`
	ClientID       string `yaml:"client_id"`
	IdentityHeader string `yaml:"identity_header"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Load builds the configuration from defaults and the environment (after an
// optional .env file), then overlays CONFIG_FILE when set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "assetuser"),
			Password: getEnv("DB_PASSWORD", "assetpassword"),
			DBName:   getEnv("DB_NAME", "assets"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
			BucketName: getEnv("MINIO_BUCKET", "assets"),
			UseSSL:     getEnvBool("MINIO_USE_SSL", false),
		},
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8080"),
			MaxMultipartMemory: getEnvInt64("SERVER_MAX_MULTIPART_MEMORY", 32<<20),
		},
		Storage: StorageConfig{
			Backend:          getEnv("STORAGE_BACKEND", "local"),
			LocalRoot:        getEnv("STORAGE_LOCAL_ROOT", "./data"),
			Metadata:         getEnv("METADATA_BACKEND", "postgres"),
			MetadataFile:     getEnv("METADATA_FILE", "./data/asset_metadata.json"),
			VerifyOnDownload: getEnvBool("VERIFY_ON_DOWNLOAD", false),
		},
		Upload: UploadConfig{
			MaxSizeBytes:     getEnvInt64("UPLOAD_MAX_SIZE_BYTES", 100<<20),
			AllowedMimeTypes: getEnvList("UPLOAD_ALLOWED_MIME_TYPES", nil),
			BatchParallelism: int(getEnvInt64("UPLOAD_BATCH_PARALLELISM", 4)),
		},
		Thumbnail: ThumbnailConfig{
			Box:       int(getEnvInt64("THUMBNAIL_BOX", 200)),
			Quality:   int(getEnvInt64("THUMBNAIL_QUALITY", 80)),
			Mode:      getEnv("THUMBNAIL_MODE", "sync"),
			Workers:   int(getEnvInt64("THUMBNAIL_WORKERS", 2)),
			QueueSize: int(getEnvInt64("THUMBNAIL_QUEUE_SIZE", 64)),
			MaxPixels: int(getEnvInt64("THUMBNAIL_MAX_PIXELS", 50_000_000)),
		},
		Retention: RetentionConfig{
			Period:        getEnvDuration("RETENTION_PERIOD", 0),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", 0),
			BatchSize:     int(getEnvInt64("SWEEP_BATCH_SIZE", 100)),
		},
		RateLimit: RateLimitConfig{
			Requests: int(getEnvInt64("RATE_LIMIT_REQUESTS", 0)),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Auth: AuthConfig{
			IssuerURL:      getEnv("OIDC_ISSUER_URL", ""),
			ClientID:       getEnv("OIDC_CLIENT_ID", ""),
			IdentityHeader: getEnv("IDENTITY_HEADER", "X-User-ID"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("DD_TRACE_ENABLED", false),
			ServiceName: getEnv("DD_SERVICE", "asset-service"),
		},
		NATSURL:   getEnv("NATS_URL", ""),
		CLAMAVURL: getEnv("CLAMAV_URL", ""),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayFile decodes a YAML file on top of the current values; keys absent
// from the file keep their env/default value.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local", "minio":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Storage.Metadata {
	case "postgres", "file", "memory":
	default:
		return fmt.Errorf("unknown metadata backend %q", c.Storage.Metadata)
	}
	switch c.Thumbnail.Mode {
	case "sync", "pool", "nats":
	default:
		return fmt.Errorf("unknown thumbnail mode %q", c.Thumbnail.Mode)
	}
	if c.Thumbnail.Mode == "nats" && c.NATSURL == "" {
		return fmt.Errorf("thumbnail mode nats requires NATS_URL")
	}
	if c.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("invalid boolean for %s=%q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("invalid integer for %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("invalid duration for %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
