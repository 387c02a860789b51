package config

const (
	EnvPrefix = "PARTNERLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv    = "PARTNERLEDGER_APP_ENV"
	EnvPort      = "PARTNERLEDGER_APP_PORT"
	EnvDBDSN     = "PARTNERLEDGER_DB_DSN"
	EnvDBHost    = "PARTNERLEDGER_DB_HOST"
	EnvDBUser    = "PARTNERLEDGER_DB_USER"
	EnvDBName    = "PARTNERLEDGER_DB_NAME"
	EnvDBDriver  = "PARTNERLEDGER_DB_DRIVER"
	EnvRedisURL  = "PARTNERLEDGER_REDIS_URL"
	EnvJWTSecret = "PARTNERLEDGER_JWT_SECRET"
	EnvJWTIssuer = "PARTNERLEDGER_JWT_ISSUER"
	EnvJWTExp    = "PARTNERLEDGER_JWT_EXPIRATION_MINUTES"

	EnvPayoutsMinimum  = "PARTNERLEDGER_PAYOUTS_MINIMUM_PAYABLE_CENTS"
	EnvPayoutsCurrency = "PARTNERLEDGER_PAYOUTS_DEFAULT_CURRENCY"

	EnvJWTPreviousSecret     = "PARTNERLEDGER_JWT_PREVIOUS_SECRET"
	EnvOutboxRetention       = "PARTNERLEDGER_OUTBOX_RETENTION"
	EnvOutboxParkedRetention = "PARTNERLEDGER_OUTBOX_PARKED_RETENTION"
)
