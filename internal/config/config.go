package config

import "time"

const (
	EnvDev   = "dev"
	EnvProd  = "prod"
	EnvLocal = "local"
)

const (
	OrderingStrategyRenumber = "renumber"
	OrderingStrategySparse   = "sparse"
)

var globalConfig *Config

func Global() *Config {
	return globalConfig
}

func SetGlobal(cfg *Config) {
	globalConfig = cfg
}

type Config struct {
	Env      string `env:"ENV" env-required:"true"`
	HTTP     HTTPConfig
	Postgres PostgresConfig
	JWT      JWTConfig
	Ordering OrderingConfig
	Realtime RealtimeConfig
}

type HTTPConfig struct {
	Host            string        `env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `env:"HTTP_PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
	// Origins allowed by CORS and websocket upgrades. Empty means
	// same-origin only.
	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

type PostgresConfig struct {
	Host           string        `env:"POSTGRES_HOST" env-required:"true"`
	Port           int           `env:"POSTGRES_PORT" env-default:"5432"`
	Username       string        `env:"POSTGRES_USERNAME" env-required:"true"`
	Password       string        `env:"POSTGRES_PASSWORD" env-required:"true"`
	Database       string        `env:"POSTGRES_DATABASE" env-required:"true"`
	SSLMode        string        `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	ConnectTimeout time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" env-default:"10s"`
	PingTimeout    time.Duration `env:"POSTGRES_PING_TIMEOUT" env-default:"10s"`
}

type JWTConfig struct {
	Issuer          string        `env:"JWT_ISSUER" env-default:"go-todo-live"`
	SigningKey      string        `env:"JWT_SIGNING_KEY" env-required:"true"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TOKEN_TTL" env-default:"720h"`
}

type OrderingConfig struct {
	Gap      float64 `env:"ORDERING_GAP" env-default:"1000"`
	Strategy string  `env:"ORDERING_STRATEGY" env-default:"renumber"`
}

type RealtimeConfig struct {
	SendBuffer     int           `env:"REALTIME_SEND_BUFFER" env-default:"32"`
	WriteTimeout   time.Duration `env:"REALTIME_WRITE_TIMEOUT" env-default:"10s"`
	PongTimeout    time.Duration `env:"REALTIME_PONG_TIMEOUT" env-default:"60s"`
	PingInterval   time.Duration `env:"REALTIME_PING_INTERVAL" env-default:"54s"`
	MaxMessageSize int64         `env:"REALTIME_MAX_MESSAGE_SIZE" env-default:"4096"`
}
