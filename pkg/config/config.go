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
	Store        StoreConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Firebase     FirebaseConfig
	LiveSync     LiveSyncConfig
	Cron         CronConfig
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
	if cfg.Store.OperationTimeout <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvStoreOperationTimeout)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FOODBRIDGE_APP_ENV" required:"true"`
	Port         string `envconfig:"FOODBRIDGE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FOODBRIDGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FOODBRIDGE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"FOODBRIDGE_LOG_FORMAT" default:"json"`
	// CORSOrigins falls back to the local dev servers when empty.
	CORSOrigins []string `envconfig:"FOODBRIDGE_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FOODBRIDGE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FOODBRIDGE_DB_DSN"`
	Driver string `envconfig:"FOODBRIDGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FOODBRIDGE_DB_HOST"`
	LegacyPort     int    `envconfig:"FOODBRIDGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FOODBRIDGE_DB_USER"`
	LegacyPassword string `envconfig:"FOODBRIDGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FOODBRIDGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FOODBRIDGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FOODBRIDGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FOODBRIDGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FOODBRIDGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FOODBRIDGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// statements slower than this are logged at warn; zero disables
	SlowQuery time.Duration `envconfig:"FOODBRIDGE_DB_SLOW_QUERY" default:"500ms"`
}

// StoreConfig bounds every entity store round trip.
type StoreConfig struct {
	OperationTimeout time.Duration `envconfig:"FOODBRIDGE_STORE_OPERATION_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	// URL wins over Address when both are set.
	URL          string        `envconfig:"FOODBRIDGE_REDIS_URL"`
	Address      string        `envconfig:"FOODBRIDGE_REDIS_ADDR"`
	Password     string        `envconfig:"FOODBRIDGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FOODBRIDGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FOODBRIDGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FOODBRIDGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FOODBRIDGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FOODBRIDGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FOODBRIDGE_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"FOODBRIDGE_REDIS_KEY_PREFIX" default:"fb"`
}

// JWTConfig verifies tokens minted by the identity provider.
type JWTConfig struct {
	Secret string `envconfig:"FOODBRIDGE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"FOODBRIDGE_JWT_ISSUER" required:"true"`
	// Audience is checked only when set.
	Audience string        `envconfig:"FOODBRIDGE_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"FOODBRIDGE_JWT_LEEWAY" default:"30s"`
	// ExpirationMinutes is only used when minting tokens for local tooling and tests.
	ExpirationMinutes int `envconfig:"FOODBRIDGE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FOODBRIDGE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FOODBRIDGE_AUTO_MIGRATE" default:"false"`
	PushEnabled bool `envconfig:"FOODBRIDGE_PUSH_ENABLED" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FOODBRIDGE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FOODBRIDGE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"FOODBRIDGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FOODBRIDGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LiveSyncTopic         string `envconfig:"FOODBRIDGE_PUBSUB_LIVESYNC_TOPIC" default:"fb-livesync-events"`
	LiveSyncSubscription  string `envconfig:"FOODBRIDGE_PUBSUB_LIVESYNC_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription string `envconfig:"FOODBRIDGE_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"FOODBRIDGE_BIGQUERY_DATASET" default:"foodbridge"`
	DonationEventsTable string `envconfig:"FOODBRIDGE_BIGQUERY_DONATION_TABLE" default:"donation_events"`
	Location            string `envconfig:"FOODBRIDGE_BIGQUERY_LOCATION" default:"US"`
	// CreateTables provisions missing tables from their declared schema.
	CreateTables bool `envconfig:"FOODBRIDGE_BIGQUERY_CREATE_TABLES" default:"false"`
	// BatchSize above 1 acknowledges messages before their rows are written.
	BatchSize     int           `envconfig:"FOODBRIDGE_BIGQUERY_BATCH_SIZE" default:"1"`
	FlushInterval time.Duration `envconfig:"FOODBRIDGE_BIGQUERY_FLUSH_INTERVAL" default:"5s"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FOODBRIDGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FOODBRIDGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FOODBRIDGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"FOODBRIDGE_OUTBOX_RETENTION" default:"168h"`
	// RetentionBatch caps rows removed per delete statement.
	RetentionBatch int `envconfig:"FOODBRIDGE_OUTBOX_RETENTION_BATCH" default:"1000"`
}

type FirebaseConfig struct {
	CredentialsFile string `envconfig:"FOODBRIDGE_FIREBASE_CREDENTIALS_FILE"`
}

type LiveSyncConfig struct {
	SubscriberBuffer int           `envconfig:"FOODBRIDGE_LIVESYNC_SUBSCRIBER_BUFFER" default:"64"`
	PingInterval     time.Duration `envconfig:"FOODBRIDGE_LIVESYNC_PING_INTERVAL" default:"54s"`
	PongWait         time.Duration `envconfig:"FOODBRIDGE_LIVESYNC_PONG_WAIT" default:"60s"`
	AllowedOrigins   []string      `envconfig:"FOODBRIDGE_LIVESYNC_ALLOWED_ORIGINS"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"FOODBRIDGE_CRON_INTERVAL" default:"15m"`
	NotificationRetention time.Duration `envconfig:"FOODBRIDGE_NOTIFICATION_RETENTION" default:"720h"`
	JobTimeout            time.Duration `envconfig:"FOODBRIDGE_CRON_JOB_TIMEOUT" default:"5m"`
}

// RateLimitConfig caps writes per user in a fixed window. A zero limit disables it.
type RateLimitConfig struct {
	Window time.Duration `envconfig:"FOODBRIDGE_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"FOODBRIDGE_RATE_LIMIT_WRITES" default:"60"`
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
