package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Notifications NotificationsConfig
	Realtime      RealtimeConfig
	CORS          CORSConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Notifications.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOYALTY_APP_ENV" required:"true"`
	Port         string `envconfig:"LOYALTY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOYALTY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOYALTY_LOG_WARN_STACK" default:"false"`
	// MetricsAddr is where workers expose /metrics. Empty disables it; the
	// API serves /metrics on its own router.
	MetricsAddr string `envconfig:"LOYALTY_WORKER_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LOYALTY_DB_DSN"`
	Driver string `envconfig:"LOYALTY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOYALTY_DB_HOST"`
	LegacyPort     int    `envconfig:"LOYALTY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOYALTY_DB_USER"`
	LegacyPassword string `envconfig:"LOYALTY_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOYALTY_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOYALTY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOYALTY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOYALTY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"LOYALTY_REDIS_URL"`
	Address      string        `envconfig:"LOYALTY_REDIS_ADDR"`
	Password     string        `envconfig:"LOYALTY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOYALTY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOYALTY_REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"LOYALTY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOYALTY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOYALTY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LOYALTY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOYALTY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LOYALTY_JWT_EXPIRATION_MINUTES" default:"60"`
	// RequireSession makes bearer auth also check the Redis access session.
	RequireSession bool `envconfig:"LOYALTY_JWT_REQUIRE_SESSION" default:"false"`
}

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LOYALTY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"LOYALTY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LOYALTY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LOYALTY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LOYALTY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LoyaltyEventsTopic        string `envconfig:"LOYALTY_PUBSUB_EVENTS_TOPIC" default:"loyalty-events"`
	LoyaltyEventsSubscription string `envconfig:"LOYALTY_PUBSUB_EVENTS_SUBSCRIPTION" default:"loyalty-events-notifications"`
}

type NotificationsConfig struct {
	DefaultPageLimit   int           `envconfig:"LOYALTY_NOTIFICATIONS_DEFAULT_LIMIT" default:"20"`
	MaxPageLimit       int           `envconfig:"LOYALTY_NOTIFICATIONS_MAX_LIMIT" default:"50"`
	BroadcastBatchSize int           `envconfig:"LOYALTY_NOTIFICATIONS_BROADCAST_BATCH_SIZE" default:"500"`
	RewardExpiry       time.Duration `envconfig:"LOYALTY_NOTIFICATIONS_REWARD_EXPIRY" default:"720h"`
	TierChangeExpiry   time.Duration `envconfig:"LOYALTY_NOTIFICATIONS_TIER_CHANGE_EXPIRY" default:"2160h"`
}

func (n NotificationsConfig) validate() error {
	if n.BroadcastBatchSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvNotificationsBatchSize)
	}
	if n.RewardExpiry < 0 || n.TierChangeExpiry < 0 {
		return fmt.Errorf("notification expiry windows must be non-negative")
	}
	return nil
}

type RealtimeConfig struct {
	HeartbeatInterval time.Duration `envconfig:"LOYALTY_REALTIME_HEARTBEAT_INTERVAL" default:"30s"`
	// Channel is the Redis pub/sub channel that carries realtime events from
	// workers and peer API instances to every attached stream.
	Channel string `envconfig:"LOYALTY_REALTIME_CHANNEL" default:"loyalty:realtime"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"LOYALTY_CORS_ALLOWED_ORIGINS"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LOYALTY_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"LOYALTY_CRON_LOCK_TTL" default:"55m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
