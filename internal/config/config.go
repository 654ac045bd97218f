package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     Server     `yaml:"server"`
	Database   Database   `yaml:"database"`
	Meta       Meta       `yaml:"meta"`
	Completion Completion `yaml:"completion"`
	Gateway    Gateway    `yaml:"gateway"`
	S3         S3         `yaml:"s3"`
	Broker     Broker     `yaml:"broker"`
	Admin      Admin      `yaml:"admin"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Log        Log        `yaml:"log"`
}

// S3 holds S3/MinIO storage configuration for the tenant media library
type S3 struct {
	Enabled         bool   `yaml:"enabled" env:"S3_ENABLED" env-default:"false"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:"http://localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"media"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	PublicURL       string `yaml:"public_url" env:"S3_PUBLIC_URL" env-default:"http://localhost:9000/media"`
}

// Server holds HTTP server configuration
type Server struct {
	Host         string        `yaml:"host" env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port         string        `yaml:"port" env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
}

// Address returns the full server address
func (s Server) Address() string {
	return s.Host + ":" + s.Port
}

// Meta holds Facebook Graph API configuration shared by Messenger and WhatsApp
type Meta struct {
	BaseURL     string `yaml:"base_url" env:"META_BASE_URL" env-default:"https://graph.facebook.com"`
	APIVersion  string `yaml:"api_version" env:"META_API_VERSION" env-default:"v21.0"`
	AppSecret   string `yaml:"app_secret" env:"META_APP_SECRET"`
	VerifyToken string `yaml:"verify_token" env:"META_VERIFY_TOKEN"`
}

// Completion holds configuration of the external text-completion collaborator
type Completion struct {
	BaseURL     string        `yaml:"base_url" env:"COMPLETION_BASE_URL" env-default:"https://api.openai.com/v1"`
	APIKey      string        `yaml:"api_key" env:"COMPLETION_API_KEY"`
	Model       string        `yaml:"model" env:"COMPLETION_MODEL" env-default:"gpt-4.1-mini"`
	Timeout     time.Duration `yaml:"timeout" env:"COMPLETION_TIMEOUT" env-default:"12s"`
	RetryDelay  time.Duration `yaml:"retry_delay" env:"COMPLETION_RETRY_DELAY" env-default:"1s"`
	MaxTokens   int           `yaml:"max_tokens" env:"COMPLETION_MAX_TOKENS" env-default:"512"`
	Temperature float32       `yaml:"temperature" env:"COMPLETION_TEMPERATURE" env-default:"0.4"`
}

// Gateway holds pipeline tuning knobs
type Gateway struct {
	AckWindow        time.Duration `yaml:"ack_window" env:"GATEWAY_ACK_WINDOW" env-default:"5s"`
	PipelineTimeout  time.Duration `yaml:"pipeline_timeout" env:"GATEWAY_PIPELINE_TIMEOUT" env-default:"90s"`
	FinishTimeout    time.Duration `yaml:"finish_timeout" env:"GATEWAY_FINISH_TIMEOUT" env-default:"30s"`
	ContextMessages  int           `yaml:"context_messages" env:"GATEWAY_CONTEXT_MESSAGES" env-default:"20"`
	CatalogItems     int           `yaml:"catalog_items" env:"GATEWAY_CATALOG_ITEMS" env-default:"50"`
	FallbackReply    string        `yaml:"fallback_reply" env:"GATEWAY_FALLBACK_REPLY" env-default:"Thanks for your message! We will get back to you shortly."`
	DeliveryAttempts int           `yaml:"delivery_attempts" env:"GATEWAY_DELIVERY_ATTEMPTS" env-default:"3"`
	DeliveryBackoff  time.Duration `yaml:"delivery_backoff" env:"GATEWAY_DELIVERY_BACKOFF" env-default:"500ms"`
	ResolverCacheTTL time.Duration `yaml:"resolver_cache_ttl" env:"GATEWAY_RESOLVER_CACHE_TTL" env-default:"10m"`
}

// Database holds database configuration
type Database struct {
	// PostgreSQL
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`

	// Connection pool settings
	MaxOpenConns int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnLifetime time.Duration `yaml:"conn_lifetime" env:"DB_CONN_LIFETIME" env-default:"5m"`

	// Apply embedded migrations on startup
	AutoMigrate bool `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"false"`
}

// Broker holds RabbitMQ configuration for the operational alert channel
type Broker struct {
	URL        string `yaml:"url" env:"BROKER_URL"`
	Exchange   string `yaml:"exchange" env:"BROKER_ALERT_EXCHANGE" env-default:"gateway.alerts"`
	RoutingKey string `yaml:"routing_key" env:"BROKER_ALERT_ROUTING_KEY" env-default:"gateway.alert"`
	Producer   string `yaml:"producer" env:"BROKER_PRODUCER" env-default:"neo-gateway"`
}

// Admin holds admin API configuration
type Admin struct {
	Token string `yaml:"token" env:"ADMIN_TOKEN"`
}

// Scheduler holds monitoring digest configuration
type Scheduler struct {
	Enabled  bool   `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"false"`
	Schedule string `yaml:"schedule" env:"SCHEDULER_SCHEDULE" env-default:"*/15 * * * *"`
}

// Log holds logger configuration
type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// SlogLevel maps the configured level name to a slog level
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Load reads config from path when set, falling back to the environment
func Load(path string) (Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
