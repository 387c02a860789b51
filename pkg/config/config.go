package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Payouts      PayoutsConfig
	Tracing      TracingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PARTNERLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"PARTNERLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PARTNERLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PARTNERLEDGER_LOG_WARN_STACK" default:"false"`
}

type HTTPConfig struct {
	CORSOrigins       []string      `envconfig:"PARTNERLEDGER_HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow   time.Duration `envconfig:"PARTNERLEDGER_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitRequests int64         `envconfig:"PARTNERLEDGER_HTTP_RATE_LIMIT_REQUESTS" default:"120"`
	WebhookRateLimit  int64         `envconfig:"PARTNERLEDGER_HTTP_WEBHOOK_RATE_LIMIT" default:"600"`
	ShutdownTimeout   time.Duration `envconfig:"PARTNERLEDGER_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
	ReadHeaderTimeout time.Duration `envconfig:"PARTNERLEDGER_HTTP_READ_HEADER_TIMEOUT" default:"5s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PARTNERLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PARTNERLEDGER_DB_DSN"`
	Driver string `envconfig:"PARTNERLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PARTNERLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"PARTNERLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PARTNERLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"PARTNERLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"PARTNERLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"PARTNERLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PARTNERLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PARTNERLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PARTNERLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PARTNERLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"PARTNERLEDGER_DB_SLOW_QUERY" default:"500ms"`
	TxRetries       int           `envconfig:"PARTNERLEDGER_DB_TX_RETRIES" default:"3"`
}

// IsSQLite reports whether the local sqlite driver was requested.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PARTNERLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PARTNERLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"PARTNERLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"PARTNERLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PARTNERLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PARTNERLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PARTNERLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PARTNERLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PARTNERLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"PARTNERLEDGER_REDIS_KEY_PREFIX" default:"pl"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PARTNERLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PARTNERLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PARTNERLEDGER_JWT_EXPIRATION_MINUTES" required:"true"`
	RequireSession    bool   `envconfig:"PARTNERLEDGER_JWT_REQUIRE_SESSION" default:"false"`

	// PreviousSecret still verifies tokens during a secret rotation.
	PreviousSecret string        `envconfig:"PARTNERLEDGER_JWT_PREVIOUS_SECRET"`
	Leeway         time.Duration `envconfig:"PARTNERLEDGER_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate       bool `envconfig:"PARTNERLEDGER_AUTO_MIGRATE" default:"false"`
	StripeDisbursals  bool `envconfig:"PARTNERLEDGER_FEATURE_STRIPE_DISBURSALS" default:"false"`
	AccrueOnWebhook   bool `envconfig:"PARTNERLEDGER_FEATURE_ACCRUE_ON_WEBHOOK" default:"true"`
	PublishOutboxLogs bool `envconfig:"PARTNERLEDGER_FEATURE_PUBLISH_OUTBOX_LOGS" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"PARTNERLEDGER_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	HTTPIdempotencyTTL    time.Duration `envconfig:"PARTNERLEDGER_EVENTING_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PARTNERLEDGER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PARTNERLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PARTNERLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic        string `envconfig:"PARTNERLEDGER_PUBSUB_LEDGER_TOPIC" default:"pl-ledger-events"`
	LedgerSubscription string `envconfig:"PARTNERLEDGER_PUBSUB_LEDGER_SUBSCRIPTION"`

	// CreateMissing provisions the topic and subscription instead of
	// failing when they are absent. Meant for the emulator and dev projects.
	CreateMissing bool `envconfig:"PARTNERLEDGER_PUBSUB_CREATE_MISSING" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PARTNERLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PARTNERLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PARTNERLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`

	Retention       time.Duration `envconfig:"PARTNERLEDGER_OUTBOX_RETENTION" default:"720h"`
	ParkedRetention time.Duration `envconfig:"PARTNERLEDGER_OUTBOX_PARKED_RETENTION" default:"2160h"`

	// OrderByAffiliate publishes with the affiliate id as ordering key.
	OrderByAffiliate bool `envconfig:"PARTNERLEDGER_OUTBOX_ORDER_BY_AFFILIATE" default:"true"`
}

type StripeConfig struct {
	APIKey string `envconfig:"PARTNERLEDGER_STRIPE_API_KEY"`
	Secret string `envconfig:"PARTNERLEDGER_STRIPE_SECRET"`
	Env    string `envconfig:"PARTNERLEDGER_STRIPE_ENV" default:"test"`

	// WebhookTolerance is the oldest signature timestamp still accepted.
	WebhookTolerance time.Duration `envconfig:"PARTNERLEDGER_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

type PayoutsConfig struct {
	MinimumPayableCents int64         `envconfig:"PARTNERLEDGER_PAYOUTS_MINIMUM_PAYABLE_CENTS" default:"1000"`
	DefaultCurrency     string        `envconfig:"PARTNERLEDGER_PAYOUTS_DEFAULT_CURRENCY" default:"USD"`
	CronInterval        time.Duration `envconfig:"PARTNERLEDGER_PAYOUTS_CRON_INTERVAL" default:"1h"`
	BackfillLookback    time.Duration `envconfig:"PARTNERLEDGER_PAYOUTS_BACKFILL_LOOKBACK" default:"72h"`
	BatchSize           int           `envconfig:"PARTNERLEDGER_PAYOUTS_BATCH_SIZE" default:"200"`
}

type TracingConfig struct {
	OTLPEndpoint string `envconfig:"PARTNERLEDGER_OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// ensureDSN assembles a postgres URL from the discrete DB_* variables when
// no DSN was given.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	parts := [...]struct{ env, value string }{
		{EnvDBHost, db.LegacyHost},
		{EnvDBUser, db.LegacyUser},
		{EnvDBName, db.LegacyName},
	}
	var missing []string
	for _, p := range parts {
		if p.value == "" {
			missing = append(missing, p.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		dsn.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}

// validate rejects settings envconfig accepts but the ledger cannot run with.
// Every problem is reported at once.
func (c *Config) validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}
	check(len(c.Payouts.DefaultCurrency) == 3, "payouts default currency %q is not an ISO 4217 code", c.Payouts.DefaultCurrency)
	check(c.Payouts.MinimumPayableCents >= 0, "payouts minimum payable must not be negative")
	check(c.Payouts.BatchSize > 0, "payouts batch size must be positive")
	check(c.Outbox.MaxAttempts > 0, "outbox max attempts must be positive")
	check(c.Outbox.BatchSize > 0, "outbox batch size must be positive")
	check(c.Outbox.ParkedRetention >= c.Outbox.Retention, "outbox parked retention %s is shorter than retention %s", c.Outbox.ParkedRetention, c.Outbox.Retention)
	check(c.JWT.ExpirationMinutes > 0, "jwt expiration must be positive")
	check(c.JWT.Leeway >= 0, "jwt leeway must not be negative")
	check(c.JWT.PreviousSecret == "" || c.JWT.PreviousSecret != c.JWT.Secret, "jwt previous secret equals the current one")
	return errs
}
