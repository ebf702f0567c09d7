package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is applied by envconfig to every variable name below.
const EnvPrefix = "CMS"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "CMS_APP_ENV"
	EnvDBDSN  = "CMS_DB_DSN"
	EnvDBHost = "CMS_DB_HOST"
	EnvDBUser = "CMS_DB_USER"
	EnvDBName = "CMS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

// Config is the full environment-driven configuration tree.
type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Checkout     CheckoutConfig
	Renewal      RenewalConfig
	Stripe       StripeConfig
	PayPal       PayPalConfig
	Braintree    BraintreeConfig
	Email        EmailConfig
	FeatureFlags FeatureFlagsConfig
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CMS_APP_ENV" required:"true"`
	Port         string `envconfig:"CMS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CMS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CMS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CMS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CMS_DB_DSN"`
	Driver string `envconfig:"CMS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CMS_DB_HOST"`
	LegacyPort     int    `envconfig:"CMS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CMS_DB_USER"`
	LegacyPassword string `envconfig:"CMS_DB_PASSWORD"`
	LegacyName     string `envconfig:"CMS_DB_NAME"`
	LegacySSLMode  string `envconfig:"CMS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CMS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CMS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CMS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CMS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	Address      string        `envconfig:"CMS_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"CMS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CMS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CMS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CMS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CMS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CMS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CMS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CheckoutConfig tunes order materialization.
type CheckoutConfig struct {
	OrderNumberSeed int64  `envconfig:"CMS_ORDER_NUMBER_SEED" default:"100000"`
	OrderNumberPad  int    `envconfig:"CMS_ORDER_NUMBER_PAD" default:"6"`
	DefaultCurrency string `envconfig:"CMS_DEFAULT_CURRENCY" default:"USD"`
}

// RenewalConfig tunes the renewal worker and pricing floor.
type RenewalConfig struct {
	PollInterval     time.Duration `envconfig:"CMS_RENEWAL_POLL_INTERVAL" default:"15m"`
	RetryBackoff     time.Duration `envconfig:"CMS_RENEWAL_RETRY_BACKOFF" default:"24h"`
	BatchSize        int           `envconfig:"CMS_RENEWAL_BATCH_SIZE" default:"50"`
	MinChargeAmount  string        `envconfig:"CMS_RENEWAL_MIN_CHARGE" default:"0.50"`
	LockTTL          time.Duration `envconfig:"CMS_RENEWAL_LOCK_TTL" default:"20m"`
	MaxAttemptsAlert int           `envconfig:"CMS_RENEWAL_MAX_ATTEMPTS_ALERT" default:"5"`
}

type StripeConfig struct {
	APIKey string `envconfig:"CMS_STRIPE_API_KEY"`
}

type PayPalConfig struct {
	ClientID string `envconfig:"CMS_PAYPAL_CLIENT_ID"`
	Secret   string `envconfig:"CMS_PAYPAL_SECRET"`
	BaseURL  string `envconfig:"CMS_PAYPAL_BASE_URL" default:"https://api-m.paypal.com"`
}

type BraintreeConfig struct {
	MerchantID string `envconfig:"CMS_BRAINTREE_MERCHANT_ID"`
	PublicKey  string `envconfig:"CMS_BRAINTREE_PUBLIC_KEY"`
	PrivateKey string `envconfig:"CMS_BRAINTREE_PRIVATE_KEY"`
}

type EmailConfig struct {
	APIKey      string `envconfig:"CMS_EMAIL_API_KEY"`
	BaseURL     string `envconfig:"CMS_EMAIL_BASE_URL"`
	FromAddress string `envconfig:"CMS_EMAIL_FROM" default:"orders@cyberitex.com"`
	FromName    string `envconfig:"CMS_EMAIL_FROM_NAME" default:"CyberITEX Orders"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CMS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, name := range legacyDBEnvVars {
		if legacyValues[name] == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
