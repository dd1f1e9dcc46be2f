package config

const (
	EnvPrefix = "FOODBRIDGE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "FOODBRIDGE_APP_ENV"
	EnvPort     = "FOODBRIDGE_APP_PORT"
	EnvLogLevel = "FOODBRIDGE_LOG_LEVEL"

	EnvDBDSN  = "FOODBRIDGE_DB_DSN"
	EnvDBHost = "FOODBRIDGE_DB_HOST"
	EnvDBUser = "FOODBRIDGE_DB_USER"
	EnvDBName = "FOODBRIDGE_DB_NAME"

	EnvStoreOperationTimeout = "FOODBRIDGE_STORE_OPERATION_TIMEOUT"

	EnvRedisURL = "FOODBRIDGE_REDIS_URL"

	EnvJWTSecret = "FOODBRIDGE_JWT_SECRET"
	EnvJWTIssuer = "FOODBRIDGE_JWT_ISSUER"

	EnvGCPProjectID = "FOODBRIDGE_GCP_PROJECT_ID"

	EnvPubSubLiveSyncTopic = "FOODBRIDGE_PUBSUB_LIVESYNC_TOPIC"
	EnvPubSubLiveSyncSub   = "FOODBRIDGE_PUBSUB_LIVESYNC_SUBSCRIPTION"
	EnvPubSubAnalyticsSub  = "FOODBRIDGE_PUBSUB_ANALYTICS_SUBSCRIPTION"

	EnvFirebaseCredentials = "FOODBRIDGE_FIREBASE_CREDENTIALS_FILE"
	EnvPushEnabled         = "FOODBRIDGE_PUSH_ENABLED"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
