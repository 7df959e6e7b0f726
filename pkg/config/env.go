package config

const (
	EnvPrefix = "POINTS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "POINTS_APP_ENV"
	EnvPort         = "POINTS_APP_PORT"
	EnvLogLevel     = "POINTS_LOG_LEVEL"
	EnvLogWarnStack = "POINTS_LOG_WARN_STACK"
	EnvLogFormat    = "POINTS_LOG_FORMAT"
	EnvServiceKind  = "POINTS_SERVICE_KIND"

	EnvDBDSN      = "POINTS_DB_DSN"
	EnvDBDriver   = "POINTS_DB_DRIVER"
	EnvDBHost     = "POINTS_DB_HOST"
	EnvDBPort     = "POINTS_DB_PORT"
	EnvDBUser     = "POINTS_DB_USER"
	EnvDBPassword = "POINTS_DB_PASSWORD"
	EnvDBName     = "POINTS_DB_NAME"
	EnvDBSSLMode  = "POINTS_DB_SSLMODE"

	EnvRedisURL = "POINTS_REDIS_URL"

	EnvJWTSecret = "POINTS_JWT_SECRET"
	EnvJWTIssuer = "POINTS_JWT_ISSUER"
	EnvJWTTTL    = "POINTS_JWT_TTL"

	EnvAutoMigrate = "POINTS_AUTO_MIGRATE"

	EnvLedgerHoldingPeriod   = "POINTS_LEDGER_HOLDING_PERIOD"
	EnvLedgerExpiryWindow    = "POINTS_LEDGER_EXPIRY_WINDOW"
	EnvLedgerMinWatchSeconds = "POINTS_LEDGER_MIN_WATCH_SECONDS"
	EnvLedgerMaxWatchSeconds = "POINTS_LEDGER_MAX_WATCH_SECONDS"
	EnvLedgerMinRedemption   = "POINTS_LEDGER_MIN_REDEMPTION"
	EnvLedgerDedupeWindow    = "POINTS_LEDGER_DEDUPE_WINDOW"
	EnvLedgerRatesFile       = "POINTS_LEDGER_RATES_FILE"

	EnvWalletCacheTTL = "POINTS_WALLET_CACHE_TTL"

	EnvCronInterval   = "POINTS_CRON_INTERVAL"
	EnvCronLockTTL    = "POINTS_CRON_LOCK_TTL"
	EnvCronJobTimeout = "POINTS_CRON_JOB_TIMEOUT"
	EnvCronBatchSize  = "POINTS_CRON_BATCH_SIZE"

	EnvReconcileSampleSize = "POINTS_RECONCILE_SAMPLE_SIZE"
	EnvReconcileAutoRepair = "POINTS_RECONCILE_AUTO_REPAIR"

	EnvVerificationBaseURL  = "POINTS_VERIFICATION_BASE_URL"
	EnvVerificationTimeout  = "POINTS_VERIFICATION_TIMEOUT"
	EnvVerificationCacheTTL = "POINTS_VERIFICATION_CACHE_TTL"

	EnvGCPProjectID = "POINTS_GCP_PROJECT_ID"

	EnvPubSubPayoutsTopic      = "POINTS_PUBSUB_PAYOUTS_TOPIC"
	EnvPubSubPayoutResultsSub  = "POINTS_PUBSUB_PAYOUT_RESULTS_SUBSCRIPTION"
	EnvPubSubLedgerEventsTopic = "POINTS_PUBSUB_LEDGER_EVENTS_TOPIC"

	EnvOutboxPublishBatchSize = "POINTS_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvEventingIdempotencyTTL = "POINTS_EVENTING_IDEMPOTENCY_TTL"

	EnvTimeoutEarn   = "POINTS_TIMEOUTS_EARN"
	EnvTimeoutRedeem = "POINTS_TIMEOUTS_REDEEM"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
