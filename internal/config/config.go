package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type ManagerAPIConfig struct {
	Addr         string        `envconfig:"API_ADDR"          default:":8081"`
	ReadTimeout  time.Duration `envconfig:"API_READ_TIMEOUT"  default:"10s"`
	WriteTimeout time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"API_IDLE_TIMEOUT"  default:"60s"`
}

// Config holds the overall application configuration.
type Config struct {
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	StoreBackend    string        `envconfig:"STORE_BACKEND"    default:"postgres"`
	LogLevel        string        `envconfig:"LOG_LEVEL"        default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	Dispatch        DispatchConfig
	Gateway         GatewayConfig
	Redis           RedisConfig
	AMQP            AMQPConfig
	WorkerConfig    WorkerConfig
	ManagerAPI      ManagerAPIConfig
}

// DispatchConfig tunes every dispatch job started by this process.
type DispatchConfig struct {
	Workers     int           `envconfig:"DISPATCH_WORKERS"      default:"10"`
	BatchSize   int           `envconfig:"DISPATCH_BATCH_SIZE"   default:"500"`
	MaxRetries  int           `envconfig:"DISPATCH_MAX_RETRIES"  default:"3"`
	SendTimeout time.Duration `envconfig:"DISPATCH_SEND_TIMEOUT" default:"15s"`

	DeferBackoff      time.Duration `envconfig:"DISPATCH_DEFER_BACKOFF"       default:"2s"`
	MaxDeferredPasses int           `envconfig:"DISPATCH_MAX_DEFERRED_PASSES" default:"10"`
}

// GatewayConfig selects and configures the outbound SMS gateway.
type GatewayConfig struct {
	Provider string `envconfig:"GATEWAY_PROVIDER"  default:"log"` // log, twilio, smpp, http
	SenderID string `envconfig:"GATEWAY_SENDER_ID" default:"SYA"`

	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `envconfig:"TWILIO_FROM_NUMBER"`

	SMPPHost           string        `envconfig:"SMPP_HOST"`
	SMPPPort           int           `envconfig:"SMPP_PORT"            default:"2775"`
	SMPPSystemID       string        `envconfig:"SMPP_SYSTEM_ID"`
	SMPPPassword       string        `envconfig:"SMPP_PASSWORD"`
	SMPPSystemType     string        `envconfig:"SMPP_SYSTEM_TYPE"`
	SMPPEnquireLink    time.Duration `envconfig:"SMPP_ENQUIRE_LINK"    default:"30s"`
	SMPPRequestTimeout time.Duration `envconfig:"SMPP_REQUEST_TIMEOUT" default:"10s"`
	SMPPWindowSize     int           `envconfig:"SMPP_WINDOW_SIZE"     default:"10"`

	HTTPURL     string        `envconfig:"GATEWAY_HTTP_URL"`
	HTTPAPIKey  string        `envconfig:"GATEWAY_HTTP_API_KEY"`
	HTTPTimeout time.Duration `envconfig:"GATEWAY_HTTP_TIMEOUT" default:"10s"`

	RateLimitRPS   float64 `envconfig:"GATEWAY_RATE_LIMIT_RPS"   default:"50"`
	RateLimitBurst int     `envconfig:"GATEWAY_RATE_LIMIT_BURST" default:"100"`

	BreakerFailureThreshold int           `envconfig:"GATEWAY_BREAKER_FAILURES"  default:"5"`
	BreakerSuccessThreshold int           `envconfig:"GATEWAY_BREAKER_SUCCESSES" default:"3"`
	BreakerTimeout          time.Duration `envconfig:"GATEWAY_BREAKER_TIMEOUT"   default:"30s"`
	BreakerVolumeThreshold  int           `envconfig:"GATEWAY_BREAKER_VOLUME"    default:"10"`
}

type RedisConfig struct {
	Addr        string        `envconfig:"REDIS_ADDR"` // empty keeps the cache in memory
	Password    string        `envconfig:"REDIS_PASSWORD"`
	DB          int           `envconfig:"REDIS_DB"           default:"0"`
	SnapshotTTL time.Duration `envconfig:"REDIS_SNAPSHOT_TTL" default:"168h"`
}

type AMQPConfig struct {
	URL        string `envconfig:"AMQP_URL"` // empty logs notifications instead
	Exchange   string `envconfig:"AMQP_EXCHANGE"    default:"sms.events"`
	RoutingKey string `envconfig:"AMQP_ROUTING_KEY" default:"dispatch"`
}

type WorkerConfig struct {
	LowQuotaInterval   time.Duration `envconfig:"WORKER_LOW_QUOTA_INTERVAL"   default:"5m"`
	LowQuotaBatchSize  int           `envconfig:"WORKER_LOW_QUOTA_BATCH_SIZE" default:"100"`
	StaleSweepInterval time.Duration `envconfig:"WORKER_STALE_SWEEP_INTERVAL" default:"1m"`
	StaleAfter         time.Duration `envconfig:"WORKER_STALE_AFTER"          default:"10m"`
	RunTimeout         time.Duration `envconfig:"WORKER_RUN_TIMEOUT"          default:"1m"`
}

// Validate checks cross-field constraints envconfig tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.Dispatch.Workers < 1 {
		c.Dispatch.Workers = 1
	} else if c.Dispatch.Workers > 64 {
		c.Dispatch.Workers = 64
	}
	if c.Dispatch.BatchSize < 1 {
		return errors.New("DISPATCH_BATCH_SIZE must be positive")
	}
	if c.Dispatch.MaxRetries < 1 {
		return errors.New("DISPATCH_MAX_RETRIES must be at least 1")
	}
	if c.Dispatch.SendTimeout <= 0 {
		return errors.New("DISPATCH_SEND_TIMEOUT must be positive")
	}
	if c.Dispatch.MaxDeferredPasses < 1 {
		return errors.New("DISPATCH_MAX_DEFERRED_PASSES must be at least 1")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	log.Println("Loading configuration from environment variables...")

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, skipping: %v", err)
	} else {
		log.Println(".env loaded")
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Printf("Configuration loaded successfully (API Addr: %s, store: %s, gateway: %s)",
		cfg.ManagerAPI.Addr, cfg.StoreBackend, cfg.Gateway.Provider)
	return &cfg, nil
}
