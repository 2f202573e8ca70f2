package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "TB_DB_DSN"
	EnvDBHost = "TB_DB_HOST"
	EnvDBUser = "TB_DB_USER"
	EnvDBName = "TB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	TikTok       TikTokConfig
	OpenAI       OpenAIConfig
	Eventing     EventingConfig
	Worker       WorkerConfig
	Reply        ReplyConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"TB_APP_ENV" required:"true"`
	Port         string `envconfig:"TB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TB_DB_DSN"`
	Driver string `envconfig:"TB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TB_DB_HOST"`
	LegacyPort     int    `envconfig:"TB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TB_DB_USER"`
	LegacyPassword string `envconfig:"TB_DB_PASSWORD"`
	LegacyName     string `envconfig:"TB_DB_NAME"`
	LegacySSLMode  string `envconfig:"TB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TB_REDIS_ADDR"`
	Password     string        `envconfig:"TB_REDIS_PASSWORD"`
	DB           int           `envconfig:"TB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EventsTopic        string `envconfig:"TB_PUBSUB_EVENTS_TOPIC" required:"true"`
	EventsSubscription string `envconfig:"TB_PUBSUB_EVENTS_SUBSCRIPTION" required:"true"`
}

type TikTokConfig struct {
	ClientKey        string        `envconfig:"TB_TIKTOK_CLIENT_KEY"`
	WebhookSecret    string        `envconfig:"TB_TIKTOK_WEBHOOK_SECRET"`
	AccessToken      string        `envconfig:"TB_TIKTOK_ACCESS_TOKEN"`
	BusinessID       string        `envconfig:"TB_TIKTOK_BUSINESS_ID"`
	MessagingBaseURL string        `envconfig:"TB_TIKTOK_MESSAGING_BASE_URL" default:"https://business-api.tiktok.com/open_api/v1.3/business/message/send/"`
	RequestTimeout   time.Duration `envconfig:"TB_TIKTOK_REQUEST_TIMEOUT" default:"30s"`
	WindowHours      int           `envconfig:"TB_TIKTOK_WINDOW_HOURS" default:"48"`
}

// Window returns the platform messaging-eligibility window.
func (t TikTokConfig) Window() time.Duration {
	if t.WindowHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(t.WindowHours) * time.Hour
}

type OpenAIConfig struct {
	APIKey string `envconfig:"TB_OPENAI_API_KEY"`
	Model  string `envconfig:"TB_OPENAI_MODEL" default:"gpt-4o"`
}

type EventingConfig struct {
	// IdempotencyTTL bounds the fast-path dedupe key; the platform retries
	// failed deliveries within ~5 minutes, so 10 minutes leaves buffer.
	IdempotencyTTL  time.Duration `envconfig:"TB_EVENT_IDEMPOTENCY_TTL" default:"600s"`
	DispatchTimeout time.Duration `envconfig:"TB_EVENT_DISPATCH_TIMEOUT" default:"10s"`
}

type WorkerConfig struct {
	MaxAttempts  int           `envconfig:"TB_WORKER_MAX_ATTEMPTS" default:"3"`
	SoftTimeout  time.Duration `envconfig:"TB_WORKER_SOFT_TIMEOUT" default:"60s"`
	HardTimeout  time.Duration `envconfig:"TB_WORKER_HARD_TIMEOUT" default:"120s"`
	RetryBackoff time.Duration `envconfig:"TB_WORKER_RETRY_BACKOFF" default:"2s"`
}

type ReplyConfig struct {
	SendFallback bool   `envconfig:"TB_REPLY_SEND_FALLBACK" default:"false"`
	FallbackText string `envconfig:"TB_REPLY_FALLBACK_TEXT" default:"Sorry, something went wrong on our side. Please try again."`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TB_AUTO_MIGRATE" default:"false"`
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
