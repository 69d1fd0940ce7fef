package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quiz-uploader"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Canvas    Canvas
	Submit    Submit
	Upload    Upload
	Converter Converter
	Postgres  Postgres
	Redis     Redis
	Security  Security
}

// Canvas identifies the Canvas instance and the token used for every call.
type Canvas struct {
	Domain      string        `env:"CANVAS_DOMAIN,notEmpty"`
	AccessToken string        `env:"CANVAS_ACCESS_TOKEN,notEmpty"`
	HTTPTimeout time.Duration `env:"CANVAS_HTTP_TIMEOUT" envDefault:"60s"`
}

// Submit tunes item submission retries.
type Submit struct {
	RetryDelays []time.Duration `env:"SUBMIT_RETRY_DELAYS" envSeparator:"," envDefault:"1s,2s,3s,5s,8s"`
	Encodings   []string        `env:"SUBMIT_ENCODINGS" envSeparator:"," envDefault:"form,json"`
}

// Upload governs run policy.
type Upload struct {
	BlockOnInvalid  bool          `env:"UPLOAD_BLOCK_ON_INVALID" envDefault:"false"`
	Publish         bool          `env:"UPLOAD_PUBLISH" envDefault:"true"`
	StrictTrueFalse bool          `env:"UPLOAD_STRICT_TRUE_FALSE" envDefault:"false"`
	DefaultTitle    string        `env:"UPLOAD_DEFAULT_TITLE" envDefault:"New Quiz"`
	QueueSize       int           `env:"UPLOAD_QUEUE_SIZE" envDefault:"16"`
	RunTimeout      time.Duration `env:"UPLOAD_RUN_TIMEOUT" envDefault:"15m"`
	PreviewTTL      time.Duration `env:"UPLOAD_PREVIEW_TTL" envDefault:"10m"`
}

// Converter points at the optional free-text to question service.
type Converter struct {
	URL     string        `env:"CONVERTER_URL" envDefault:""`
	APIKey  string        `env:"CONVERTER_API_KEY" envDefault:""`
	Timeout time.Duration `env:"CONVERTER_TIMEOUT" envDefault:"30s"`
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// DSN renders a libpq style connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Redis holds preview cache and progress pub/sub configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores secrets for the access-code gate and session tokens.
type Security struct {
	AccessCodeHash  string        `env:"ACCESS_CODE_HASH,notEmpty"`
	JWTSecret       string        `env:"JWT_SECRET,notEmpty"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"8h"`
	MaxLoginFailure int64         `env:"LOGIN_MAX_FAILURES" envDefault:"5"`
	LockoutWindow   time.Duration `env:"LOGIN_LOCKOUT_WINDOW" envDefault:"15m"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// CLI is the subset the command-line uploader needs: Canvas access and
// run policy, no database or Redis.
type CLI struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Canvas    Canvas
	Submit    Submit
	Upload    Upload
	Converter Converter
}

// LoadCLI parses the uploader configuration.
func LoadCLI() (*CLI, error) {
	cfg := &CLI{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Migrator needs only the database.
type Migrator struct {
	Postgres Postgres
}

// LoadMigrator parses the migrator configuration.
func LoadMigrator() (*Migrator, error) {
	cfg := &Migrator{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
