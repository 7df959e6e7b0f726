package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Wallet       WalletConfig
	Cron         CronConfig
	Reconcile    ReconcileConfig
	Verification VerificationConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Timeouts     TimeoutsConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"POINTS_APP_ENV" required:"true"`
	Port         string   `envconfig:"POINTS_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"POINTS_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"POINTS_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"POINTS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"POINTS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"POINTS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"POINTS_DB_DSN"`
	Driver string `envconfig:"POINTS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POINTS_DB_HOST"`
	LegacyPort     int    `envconfig:"POINTS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POINTS_DB_USER"`
	LegacyPassword string `envconfig:"POINTS_DB_PASSWORD"`
	LegacyName     string `envconfig:"POINTS_DB_NAME"`
	LegacySSLMode  string `envconfig:"POINTS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POINTS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POINTS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POINTS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POINTS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the store runs on the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"POINTS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POINTS_REDIS_ADDR"`
	Password     string        `envconfig:"POINTS_REDIS_PASSWORD"`
	DB           int           `envconfig:"POINTS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POINTS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POINTS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POINTS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POINTS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POINTS_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"POINTS_REDIS_KEY_PREFIX" default:"pts"`
}

type JWTConfig struct {
	Secret string        `envconfig:"POINTS_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"POINTS_JWT_ISSUER" default:"watchpoints"`
	TTL    time.Duration `envconfig:"POINTS_JWT_TTL" default:"1h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"POINTS_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig holds the accounting constants shared by the earning,
// maturation and redemption paths.
type LedgerConfig struct {
	HoldingPeriod   time.Duration `envconfig:"POINTS_LEDGER_HOLDING_PERIOD" default:"720h"`
	ExpiryWindow    time.Duration `envconfig:"POINTS_LEDGER_EXPIRY_WINDOW" default:"2160h"`
	MinWatchSeconds int64         `envconfig:"POINTS_LEDGER_MIN_WATCH_SECONDS" default:"5"`
	MaxWatchSeconds int64         `envconfig:"POINTS_LEDGER_MAX_WATCH_SECONDS" default:"86400"`
	MinRedemption   int64         `envconfig:"POINTS_LEDGER_MIN_REDEMPTION" default:"100"`
	DedupeWindow    time.Duration `envconfig:"POINTS_LEDGER_DEDUPE_WINDOW" default:"10m"`
	RatesFile       string        `envconfig:"POINTS_LEDGER_RATES_FILE"`
}

func (l LedgerConfig) validate() error {
	if l.HoldingPeriod < 0 {
		return fmt.Errorf("%s must not be negative", EnvLedgerHoldingPeriod)
	}
	if l.ExpiryWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerExpiryWindow)
	}
	if l.MinWatchSeconds < 0 {
		return fmt.Errorf("%s must not be negative", EnvLedgerMinWatchSeconds)
	}
	if l.MaxWatchSeconds < l.MinWatchSeconds || l.MaxWatchSeconds <= 0 {
		return fmt.Errorf("%s must be positive and at least %s", EnvLedgerMaxWatchSeconds, EnvLedgerMinWatchSeconds)
	}
	if l.MinRedemption <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerMinRedemption)
	}
	if l.DedupeWindow <= 0 {
		return fmt.Errorf("%s must be positive", EnvLedgerDedupeWindow)
	}
	return nil
}

type WalletConfig struct {
	CacheTTL time.Duration `envconfig:"POINTS_WALLET_CACHE_TTL" default:"30s"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"POINTS_CRON_INTERVAL" default:"5m"`
	LockTTL    time.Duration `envconfig:"POINTS_CRON_LOCK_TTL" default:"4m"`
	JobTimeout time.Duration `envconfig:"POINTS_CRON_JOB_TIMEOUT" default:"2m"`
	BatchSize  int           `envconfig:"POINTS_CRON_BATCH_SIZE" default:"500"`
}

// LockOutlivesInterval reports a lock TTL that would still be held when the
// next cycle starts, which makes every other cycle skip.
func (c CronConfig) LockOutlivesInterval() bool {
	return c.LockTTL >= c.Interval
}

type ReconcileConfig struct {
	SampleSize int  `envconfig:"POINTS_RECONCILE_SAMPLE_SIZE" default:"200"`
	AutoRepair bool `envconfig:"POINTS_RECONCILE_AUTO_REPAIR" default:"true"`
}

type VerificationConfig struct {
	BaseURL  string        `envconfig:"POINTS_VERIFICATION_BASE_URL"`
	APIKey   string        `envconfig:"POINTS_VERIFICATION_API_KEY"`
	Timeout  time.Duration `envconfig:"POINTS_VERIFICATION_TIMEOUT" default:"2s"`
	CacheTTL time.Duration `envconfig:"POINTS_VERIFICATION_CACHE_TTL" default:"5m"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"POINTS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"POINTS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"POINTS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"POINTS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PayoutsTopic              string `envconfig:"POINTS_PUBSUB_PAYOUTS_TOPIC" default:"points-payout-requests"`
	PayoutResultsSubscription string `envconfig:"POINTS_PUBSUB_PAYOUT_RESULTS_SUBSCRIPTION" default:"points-payout-results-sub"`
	LedgerEventsTopic         string `envconfig:"POINTS_PUBSUB_LEDGER_EVENTS_TOPIC" default:"points-ledger-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"POINTS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"POINTS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"POINTS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"POINTS_OUTBOX_RETENTION_DAYS" default:"30"`
}

type TimeoutsConfig struct {
	Earn   time.Duration `envconfig:"POINTS_TIMEOUTS_EARN" default:"5s"`
	Redeem time.Duration `envconfig:"POINTS_TIMEOUTS_REDEEM" default:"5s"`
}

// RateLimitConfig throttles watch-event submissions per user and per client IP.
// A zero limit disables that dimension.
type RateLimitConfig struct {
	Window         time.Duration `envconfig:"POINTS_RATE_LIMIT_WINDOW" default:"1m"`
	WatchUserLimit int           `envconfig:"POINTS_RATE_LIMIT_WATCH_USER" default:"120"`
	WatchIPLimit   int           `envconfig:"POINTS_RATE_LIMIT_WATCH_IP" default:"600"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:points.db?cache=shared&_busy_timeout=5000"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
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
