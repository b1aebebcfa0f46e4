package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "tasktide"

	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Broker       BrokerConfig
	JWT          JWTConfig
	WS           WSConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TASKTIDE_APP_ENV" required:"true"`
	Port         string `envconfig:"TASKTIDE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TASKTIDE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TASKTIDE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TASKTIDE_DB_DSN" required:"true"`
	Driver string `envconfig:"TASKTIDE_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"TASKTIDE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TASKTIDE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TASKTIDE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TASKTIDE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TASKTIDE_REDIS_URL"`
	Address      string        `envconfig:"TASKTIDE_REDIS_ADDR"`
	Password     string        `envconfig:"TASKTIDE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TASKTIDE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TASKTIDE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TASKTIDE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TASKTIDE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TASKTIDE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TASKTIDE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BrokerConfig drives the AMQP connection, its startup retry budget and the
// supervised reconnect loop.
type BrokerConfig struct {
	URL      string `envconfig:"TASKTIDE_BROKER_URL" required:"true"`
	Exchange string `envconfig:"TASKTIDE_BROKER_EXCHANGE" default:"domain-events"`

	ConnectAttempts int           `envconfig:"TASKTIDE_BROKER_CONNECT_ATTEMPTS" default:"10"`
	ConnectDelay    time.Duration `envconfig:"TASKTIDE_BROKER_CONNECT_DELAY" default:"5s"`

	ReconnectBaseDelay time.Duration `envconfig:"TASKTIDE_BROKER_RECONNECT_BASE_DELAY" default:"1s"`
	ReconnectMaxDelay  time.Duration `envconfig:"TASKTIDE_BROKER_RECONNECT_MAX_DELAY" default:"30s"`

	PublishTimeout time.Duration `envconfig:"TASKTIDE_BROKER_PUBLISH_TIMEOUT" default:"10s"`
}

type JWTConfig struct {
	Secret string `envconfig:"TASKTIDE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"TASKTIDE_JWT_ISSUER" default:"tasktide"`
}

// WSConfig controls the realtime push endpoint.
type WSConfig struct {
	RequireAuth     bool          `envconfig:"TASKTIDE_WS_REQUIRE_AUTH" default:"true"`
	SendBuffer      int           `envconfig:"TASKTIDE_WS_SEND_BUFFER" default:"256"`
	WriteWait       time.Duration `envconfig:"TASKTIDE_WS_WRITE_WAIT" default:"10s"`
	PongWait        time.Duration `envconfig:"TASKTIDE_WS_PONG_WAIT" default:"60s"`
	MaxMessageBytes int64         `envconfig:"TASKTIDE_WS_MAX_MESSAGE_BYTES" default:"4096"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TASKTIDE_FEATURE_AUTO_MIGRATE" default:"false"`
}
