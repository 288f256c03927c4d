package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds runtime configuration for the catalog server and worker.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":3000"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	StorageDriver  string        `envconfig:"STORAGE_DRIVER" default:"postgres"`
	StorageTimeout time.Duration `envconfig:"STORAGE_TIMEOUT" default:"5s"`

	PGDSN string `envconfig:"PG_DSN"`

	MongoURI        string `envconfig:"MONGO_URI"`
	MongoDatabase   string `envconfig:"MONGO_DATABASE" default:"ben-supplier"`
	MongoCollection string `envconfig:"MONGO_COLLECTION" default:"products"`

	MediaRoot        string        `envconfig:"MEDIA_ROOT" default:"uploads"`
	MediaURLPrefix   string        `envconfig:"MEDIA_URL_PREFIX" default:"/uploads"`
	MediaMaxFileSize int64         `envconfig:"MEDIA_MAX_FILE_SIZE" default:"5242880"`
	MediaOrphanGrace time.Duration `envconfig:"MEDIA_ORPHAN_GRACE" default:"24h"`
	MediaReapCron    string        `envconfig:"MEDIA_REAP_CRON" default:"@hourly"`

	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	AdminUsername     string `envconfig:"ADMIN_USERNAME" default:"admin"`
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`
	AdminAPIToken     string `envconfig:"ADMIN_API_TOKEN"`

	IdempotencyTTL     time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
}

// LoadConfig reads configuration from an optional .env file and the environment.
func LoadConfig() (*Config, error) {
	// Missing .env files are normal outside local development.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if c.AdminPasswordHash == "" {
		return errors.New("admin password hash must be provided")
	}
	switch c.StorageDriver {
	case DriverPostgres:
		if c.PGDSN == "" {
			return errors.New("PG_DSN must be provided for the postgres driver")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI must be provided for the mongo driver")
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			return errors.New("mongo database and collection must be provided")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.MediaMaxFileSize <= 0 {
		return errors.New("media max file size must be positive")
	}
	if c.StorageTimeout <= 0 {
		return errors.New("storage timeout must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
