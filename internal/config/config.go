package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"intakeservice/internal/errdefs"
)

type Config struct {
	HTTPPort        int           `env:"HTTP_PORT" env-default:"8080"`
	MaxRequestBytes int64         `env:"MAX_REQUEST_BYTES" env-default:"104857600"`
	StageTimeout    time.Duration `env:"STAGE_TIMEOUT" env-default:"30s"`

	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID" env-required:"true"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" env-required:"true"`
	S3Endpoint        string `env:"S3_ENDPOINT" env-required:"true"`
	S3Bucket          string `env:"S3_BUCKET" env-required:"true"`
	S3Region          string `env:"S3_REGION" env-default:"us-east-1"`

	// PublicBaseURL is used instead of the S3 endpoint when building the
	// attachment URLs stored in records, for deployments where the bucket
	// is reachable through a public host the internal endpoint is not.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" env-default:""`

	PostgresURL    string `env:"POSTGRES_URL" env-required:"true"`
	MigrationsPath string `env:"MIGRATIONS_PATH" env-default:"file://migrations"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" env-required:"true"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" env-default:"submission-notifications"`

	RedisURL string        `env:"REDIS_URL" env-default:"localhost:6379"`
	CacheTTL time.Duration `env:"CACHE_TTL" env-default:"5m"`
}

// AttachmentURLBase returns the base URL under which stored attachments are
// addressed: the public override when configured, the S3 endpoint otherwise.
func (c *Config) AttachmentURLBase() string {
	if c.PublicBaseURL != "" {
		return c.PublicBaseURL
	}
	return c.S3Endpoint
}

// New reads ./config/.env when present, otherwise the process environment.
// Missing required values abort startup, not individual requests.
func New() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig("./config/.env", &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := cleanenv.ReadEnv(&cfg); err != nil {
				return nil, fmt.Errorf("%w: %w", errdefs.ErrConfigMissing, err)
			}
			return &cfg, nil
		}
		return nil, fmt.Errorf("%w: %w", errdefs.ErrConfigMissing, err)
	}
	return &cfg, nil
}
