package config

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Payments      PaymentsConfig
	Checkout      CheckoutConfig
	RateLimit     RateLimitConfig
	Notifications NotificationsConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver       string // postgres or memory
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	Schema       string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port for go-redis.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

type PaymentsConfig struct {
	Driver         string // stripe or fake
	SecretKey      string
	WebhookSecret  string
	Currency       string
	GatewayTimeout time.Duration
}

type CheckoutConfig struct {
	TaxRate         decimal.Decimal
	ShippingCost    decimal.Decimal
	AmountTolerance decimal.Decimal
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

type NotificationsConfig struct {
	Driver   string // redis or log
	QueueKey string
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

func Load() *Config {
	// A local .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: Could not load .env: %v", err)
	}

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("PAYMENT_DRIVER", "fake")
	viper.SetDefault("PAYMENT_CURRENCY", "usd")
	viper.SetDefault("PAYMENT_GATEWAY_TIMEOUT", "10s")
	viper.SetDefault("CHECKOUT_TAX_RATE", "0.10")
	viper.SetDefault("CHECKOUT_SHIPPING_COST", "10.00")
	viper.SetDefault("CHECKOUT_AMOUNT_TOLERANCE", "0.01")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")
	viper.SetDefault("NOTIFY_DRIVER", "log")
	viper.SetDefault("NOTIFY_QUEUE_KEY", "storefront:notifications")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Driver:       viper.GetString("DB_DRIVER"),
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetString("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     viper.GetString("DB_PASSWORD"),
			Database:     viper.GetString("DB_DATABASE"),
			Schema:       viper.GetString("DB_SCHEMA"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Payments: PaymentsConfig{
			Driver:         viper.GetString("PAYMENT_DRIVER"),
			SecretKey:      viper.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret:  viper.GetString("STRIPE_WEBHOOK_SECRET"),
			Currency:       strings.ToLower(viper.GetString("PAYMENT_CURRENCY")),
			GatewayTimeout: viper.GetDuration("PAYMENT_GATEWAY_TIMEOUT"),
		},
		Checkout: CheckoutConfig{
			TaxRate:         decimalSetting("CHECKOUT_TAX_RATE", "0.10"),
			ShippingCost:    decimalSetting("CHECKOUT_SHIPPING_COST", "10.00"),
			AmountTolerance: decimalSetting("CHECKOUT_AMOUNT_TOLERANCE", "0.01"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("RATE_LIMIT_ENABLED"),
			Requests: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Notifications: NotificationsConfig{
			Driver:   viper.GetString("NOTIFY_DRIVER"),
			QueueKey: viper.GetString("NOTIFY_QUEUE_KEY"),
		},
	}
}

// decimalSetting parses a money or rate setting, falling back to def when the value is malformed.
func decimalSetting(key, def string) decimal.Decimal {
	raw := strings.TrimSpace(viper.GetString(key))
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		log.Printf("Warning: invalid %s %q, using %s", key, raw, def)
		return decimal.RequireFromString(def)
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
