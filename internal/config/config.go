package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBSource       string        `env:"DB_SOURCE"`
	Port           string        `env:"SERVER_PORT" envDefault:"8080"`
	Env            string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	MigrationsPath string        `env:"MIGRATIONS_PATH" envDefault:"file://db/migrations"`
	PublicBaseURL  string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	JWTSecret      string        `env:"JWT_SECRET"`
	JWTTTL         time.Duration `env:"JWT_TTL" envDefault:"24h"`

	Commission CommissionConfig
	PayPal     PayPalConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	SMTP       SMTPConfig
}

// CommissionConfig holds the flat per-signup payout rule.
type CommissionConfig struct {
	PerSignupUSD    decimal.Decimal `env:"COMMISSION_PER_SIGNUP_USD" envDefault:"5"`
	FXRate          decimal.Decimal `env:"COMMISSION_FX_RATE" envDefault:"85"`
	DisplayCurrency string          `env:"DISPLAY_CURRENCY" envDefault:"INR"`
}

type PayPalConfig struct {
	ClientID     string `env:"PAYPAL_CLIENT_ID"`
	ClientSecret string `env:"PAYPAL_CLIENT_SECRET"`
	APIBase      string `env:"PAYPAL_API_BASE" envDefault:"https://api-m.sandbox.paypal.com"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"ledger_events"`
}

type RedisConfig struct {
	URL            string        `env:"REDIS_URL"`
	LeaderboardTTL time.Duration `env:"LEADERBOARD_TTL" envDefault:"5m"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     string `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"MAIL_FROM"`
}

// Enabled reports whether enough settings exist to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

func (c PayPalConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DBSource == "" {
		return fmt.Errorf("DB_SOURCE environment variable is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Commission.PerSignupUSD.IsNegative() || c.Commission.FXRate.IsNegative() {
		return fmt.Errorf("commission settings must not be negative")
	}
	return nil
}

func (c *Config) Production() bool {
	return c.Env == "production"
}
