package config

const (
	EnvPrefix = "LOYALTY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv   = "LOYALTY_APP_ENV"
	EnvPort     = "LOYALTY_APP_PORT"
	EnvLogLevel = "LOYALTY_LOG_LEVEL"
	EnvDBDSN    = "LOYALTY_DB_DSN"
	EnvDBHost   = "LOYALTY_DB_HOST"
	EnvDBUser   = "LOYALTY_DB_USER"
	EnvDBName   = "LOYALTY_DB_NAME"
	EnvDBDriver = "LOYALTY_DB_DRIVER"

	EnvRedisURL  = "LOYALTY_REDIS_URL"
	EnvJWTSecret = "LOYALTY_JWT_SECRET"
	EnvJWTIssuer = "LOYALTY_JWT_ISSUER"

	EnvGCPProjectID           = "LOYALTY_GCP_PROJECT_ID"
	EnvPubSubEventsTopic      = "LOYALTY_PUBSUB_EVENTS_TOPIC"
	EnvPubSubEventsSub        = "LOYALTY_PUBSUB_EVENTS_SUBSCRIPTION"
	EnvHeartbeatInterval      = "LOYALTY_REALTIME_HEARTBEAT_INTERVAL"
	EnvNotificationsBatchSize = "LOYALTY_NOTIFICATIONS_BROADCAST_BATCH_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
