package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

const minSecretLength = 32

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Store    StoreConfig    `env:",prefix=STORE_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Mongo    MongoConfig    `env:",prefix=MONGODB_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	Tokens   TokensConfig   `env:",prefix="`
	Security SecurityConfig `env:",prefix="`
	Reaper   ReaperConfig   `env:",prefix="`
	Mail     MailConfig     `env:",prefix="`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Env      string         `env:"ENV,default=development"`
	// ClientURL is the frontend base URL embedded in emailed links
	ClientURL string `env:"CLIENT_URL,default=http://localhost:3000"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type StoreConfig struct {
	Driver string `env:"DRIVER,default=postgres"`
}

type PostgresConfig struct {
	Host        string `env:"HOST,default=localhost"`
	Port        string `env:"PORT,default=5432"`
	User        string `env:"USER,default=portfolio"`
	Password    string `env:"PASSWORD,default=portfolio_password"`
	DBName      string `env:"DB,default=portfolio_db"`
	SSLMode     string `env:"SSLMODE,default=disable"`
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=true"`
}

type MongoConfig struct {
	URI      string `env:"URI,default=mongodb://localhost:27017"`
	Database string `env:"DATABASE,default=portfolio"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

// TokensConfig holds one secret and lifetime per token kind
type TokensConfig struct {
	AccessSecret           string   `env:"ACCESS_TOKEN_SECRET,required"`
	AccessExpiresIn        Duration `env:"ACCESS_TOKEN_EXPIRES_IN,default=1d"`
	RefreshSecret          string   `env:"REFRESH_TOKEN_SECRET,required"`
	RefreshExpiresIn       Duration `env:"REFRESH_TOKEN_EXPIRES_IN,default=7d"`
	EmailVerifySecret      string   `env:"EMAIL_VERIFY_SECRET,required"`
	EmailVerifyExpiresIn   Duration `env:"EMAIL_VERIFY_EXPIRES_IN,default=10m"`
	ResetPasswordSecret    string   `env:"RESET_PASSWORD_SECRET,required"`
	ResetPasswordExpiresIn Duration `env:"RESET_PASSWORD_EXPIRES_IN,default=15m"`
	CookieMaxAge           Duration `env:"COOKIE_MAX_AGE,default=7d"`
}

type SecurityConfig struct {
	BCryptCost        int      `env:"BCRYPT_COST,default=10"`
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

// ReaperConfig controls deletion of accounts that never verified their email
type ReaperConfig struct {
	UnverifiedTTL Duration `env:"UNVERIFIED_ACCOUNT_TTL,default=10m"`
	PollInterval  Duration `env:"REAPER_POLL_INTERVAL,default=15s"`
	BatchSize     int      `env:"REAPER_BATCH_SIZE,default=100"`
}

// MailConfig holds SMTP settings; an empty host disables delivery
type MailConfig struct {
	Host        string   `env:"SMTP_HOST,default="`
	Port        int      `env:"SMTP_PORT,default=587"`
	Username    string   `env:"SMTP_USERNAME,default="`
	Password    string   `env:"SMTP_PASSWORD,default="`
	From        string   `env:"SMTP_FROM,default="`
	SendTimeout Duration `env:"MAIL_SEND_TIMEOUT,default=30s"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Enabled reports whether an SMTP server is configured
func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	secrets := map[string]string{
		"ACCESS_TOKEN_SECRET":   c.Tokens.AccessSecret,
		"REFRESH_TOKEN_SECRET":  c.Tokens.RefreshSecret,
		"EMAIL_VERIFY_SECRET":   c.Tokens.EmailVerifySecret,
		"RESET_PASSWORD_SECRET": c.Tokens.ResetPasswordSecret,
	}
	for name, secret := range secrets {
		if len(secret) < minSecretLength {
			return fmt.Errorf("%s must be at least %d characters long", name, minSecretLength)
		}
	}

	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMongo:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Reaper.UnverifiedTTL.Duration <= 0 {
		return fmt.Errorf("UNVERIFIED_ACCOUNT_TTL must be positive")
	}
	if c.Reaper.PollInterval.Duration <= 0 {
		return fmt.Errorf("REAPER_POLL_INTERVAL must be positive")
	}
	if c.Reaper.BatchSize <= 0 {
		return fmt.Errorf("REAPER_BATCH_SIZE must be positive")
	}

	if c.Mail.Enabled() && c.Mail.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	return nil
}
