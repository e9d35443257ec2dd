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
	Engine       EngineConfig
	RateLimit    RateLimitConfig
	Bluesky      BlueskyConfig
	Security     SecurityConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Retention    RetentionConfig
}

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
	Env          string `envconfig:"LEADCADENCE_APP_ENV" required:"true"`
	Port         string `envconfig:"LEADCADENCE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LEADCADENCE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LEADCADENCE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LEADCADENCE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LEADCADENCE_SERVICE_KIND" default:"sequence-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEADCADENCE_DB_DSN"`
	Driver string `envconfig:"LEADCADENCE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LEADCADENCE_DB_HOST"`
	LegacyPort     int    `envconfig:"LEADCADENCE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LEADCADENCE_DB_USER"`
	LegacyPassword string `envconfig:"LEADCADENCE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LEADCADENCE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LEADCADENCE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LEADCADENCE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEADCADENCE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEADCADENCE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEADCADENCE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEADCADENCE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LEADCADENCE_REDIS_ADDR"`
	Password     string        `envconfig:"LEADCADENCE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LEADCADENCE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LEADCADENCE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEADCADENCE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEADCADENCE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEADCADENCE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEADCADENCE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// EngineConfig tunes the sequence execution loop.
type EngineConfig struct {
	TickInterval     time.Duration `envconfig:"LEADCADENCE_ENGINE_TICK_INTERVAL" default:"1m"`
	BatchSize        int           `envconfig:"LEADCADENCE_ENGINE_BATCH_SIZE" default:"50"`
	ConnectorTimeout time.Duration `envconfig:"LEADCADENCE_ENGINE_CONNECTOR_TIMEOUT" default:"30s"`
	LockTTL          time.Duration `envconfig:"LEADCADENCE_ENGINE_LOCK_TTL" default:"90s"`
}

// RateLimitConfig bounds outbound actions per trailing window. The platform
// fields feed the sliding window limiter shared by every connector call.
type RateLimitConfig struct {
	LikeWindow   time.Duration `envconfig:"LEADCADENCE_RATE_LIMIT_LIKE_WINDOW" default:"1h"`
	LikeLimit    int           `envconfig:"LEADCADENCE_RATE_LIMIT_LIKE_LIMIT" default:"30"`
	FollowWindow time.Duration `envconfig:"LEADCADENCE_RATE_LIMIT_FOLLOW_WINDOW" default:"1h"`
	FollowLimit  int           `envconfig:"LEADCADENCE_RATE_LIMIT_FOLLOW_LIMIT" default:"20"`
	ReplyWindow  time.Duration `envconfig:"LEADCADENCE_RATE_LIMIT_REPLY_WINDOW" default:"24h"`
	ReplyLimit   int           `envconfig:"LEADCADENCE_RATE_LIMIT_REPLY_LIMIT" default:"50"`
	DMWindow     time.Duration `envconfig:"LEADCADENCE_RATE_LIMIT_DM_WINDOW" default:"24h"`
	DMLimit      int           `envconfig:"LEADCADENCE_RATE_LIMIT_DM_LIMIT" default:"20"`

	PlatformLimit  int           `envconfig:"LEADCADENCE_RATE_LIMIT_PLATFORM_LIMIT" default:"100"`
	PlatformWindow time.Duration `envconfig:"LEADCADENCE_RATE_LIMIT_PLATFORM_WINDOW" default:"5m"`
	PlatformJitter float64       `envconfig:"LEADCADENCE_RATE_LIMIT_PLATFORM_JITTER" default:"0.2"`
}

type BlueskyConfig struct {
	Host           string        `envconfig:"LEADCADENCE_BLUESKY_HOST" default:"https://bsky.social"`
	Handle         string        `envconfig:"LEADCADENCE_BLUESKY_HANDLE"`
	AppPassword    string        `envconfig:"LEADCADENCE_BLUESKY_APP_PASSWORD"`
	ProjectID      string        `envconfig:"LEADCADENCE_BLUESKY_PROJECT_ID"`
	RequestTimeout time.Duration `envconfig:"LEADCADENCE_BLUESKY_REQUEST_TIMEOUT" default:"30s"`
}

type SecurityConfig struct {
	EncryptionKey    string `envconfig:"LEADCADENCE_SECURITY_ENCRYPTION_KEY" required:"true"`
	ArgonMemoryKB    int    `envconfig:"LEADCADENCE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int    `envconfig:"LEADCADENCE_ARGON_TIME" default:"3"`
	ArgonParallelism int    `envconfig:"LEADCADENCE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int    `envconfig:"LEADCADENCE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int    `envconfig:"LEADCADENCE_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LEADCADENCE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LEADCADENCE_AUTO_MIGRATE" default:"false"`
	DryRun      bool `envconfig:"LEADCADENCE_DRY_RUN" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LEADCADENCE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"LEADCADENCE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LEADCADENCE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OutreachTopic        string `envconfig:"LEADCADENCE_PUBSUB_OUTREACH_TOPIC" required:"true"`
	OutreachSubscription string `envconfig:"LEADCADENCE_PUBSUB_OUTREACH_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"LEADCADENCE_BIGQUERY_DATASET" default:"leadcadence"`
	OutreachEventsTable string `envconfig:"LEADCADENCE_BIGQUERY_OUTREACH_TABLE" default:"outreach_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"LEADCADENCE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"LEADCADENCE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"LEADCADENCE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"LEADCADENCE_OUTBOX_IDEMPOTENCY_TTL" default:"720h"`
}

// RetentionConfig tunes the background pruning jobs. Step executions are an
// audit log and are never pruned.
type RetentionConfig struct {
	CheckInterval      time.Duration `envconfig:"LEADCADENCE_RETENTION_CHECK_INTERVAL" default:"1h"`
	LockTTL            time.Duration `envconfig:"LEADCADENCE_RETENTION_LOCK_TTL" default:"10m"`
	OutboxPublishedTTL time.Duration `envconfig:"LEADCADENCE_RETENTION_OUTBOX_PUBLISHED_TTL" default:"168h"`
	DraftTTL           time.Duration `envconfig:"LEADCADENCE_RETENTION_DRAFT_TTL" default:"720h"`
	PruneBatchSize     int           `envconfig:"LEADCADENCE_RETENTION_PRUNE_BATCH_SIZE" default:"500"`
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
