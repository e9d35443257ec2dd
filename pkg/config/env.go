package config

// EnvPrefix namespaces every environment variable the services read.
const EnvPrefix = "leadcadence"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "LEADCADENCE_APP_ENV"
	EnvPort     = "LEADCADENCE_APP_PORT"
	EnvDBDSN    = "LEADCADENCE_DB_DSN"
	EnvDBHost   = "LEADCADENCE_DB_HOST"
	EnvDBUser   = "LEADCADENCE_DB_USER"
	EnvDBName   = "LEADCADENCE_DB_NAME"
	EnvRedisURL = "LEADCADENCE_REDIS_URL"

	EnvGCPProjectID        = "LEADCADENCE_GCP_PROJECT_ID"
	EnvPubSubOutreachTopic = "LEADCADENCE_PUBSUB_OUTREACH_TOPIC"
	EnvPubSubOutreachSub   = "LEADCADENCE_PUBSUB_OUTREACH_SUBSCRIPTION"

	EnvSecurityEncryptionKey = "LEADCADENCE_SECURITY_ENCRYPTION_KEY"
	EnvBlueskyHandle         = "LEADCADENCE_BLUESKY_HANDLE"
	EnvBlueskyAppPassword    = "LEADCADENCE_BLUESKY_APP_PASSWORD"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
