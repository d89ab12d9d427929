package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "Sabi"
	defaultAppEnv           = "development"
	defaultPort             = "3000"
	defaultLogLevel         = "info"
	defaultDBMaxConns       = 10
	defaultShutdownDelay    = 10 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultCreateRateLimit  = 5
	defaultNodeServiceURL   = "http://localhost:3001"
	defaultNodeServiceRPS   = 20
	defaultNodeServiceBurst = 10
	defaultFirstChannelSats = 200_000
	defaultInviteCodePrefix = "SABI"
)

// NodeMode selects which node provisioning client is built at startup.
type NodeMode string

const (
	// NodeModeRemote provisions nodes through the Breez node microservice.
	NodeModeRemote NodeMode = "remote"
	// NodeModeDevice records that the node is created by the on-device SDK.
	NodeModeDevice NodeMode = "device"
)

// NodeEnv is the Breez environment the node service talks to.
type NodeEnv string

const (
	NodeEnvProduction NodeEnv = "production"
	NodeEnvStaging    NodeEnv = "staging"
)

// NodeConfig holds settings for the node provisioning client.
type NodeConfig struct {
	Mode              NodeMode
	ServiceURL        string
	Env               NodeEnv
	RequestsPerSecond float64
	Burst             int
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName             string
	AppEnv              string
	Port                string
	LogLevel            string
	DatabaseURL         string
	DBMaxConns          int32
	RedisURL            string
	ShutdownPeriod      time.Duration
	RequestTimeout      time.Duration
	IdempotencyTTL      time.Duration
	IdempotencyRequired bool
	CreateRateLimit     int

	Node                    NodeConfig
	FirstChannelSatsDefault int64
	InviteCodePrefix        string
	AuditFingerprintKey     string

	TracingEndpoint string
	TracingInsecure bool
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is applied first when present; variables
// already set in the process environment win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		InviteCodePrefix: getEnv("INVITE_CODE_PREFIX", defaultInviteCodePrefix),
		Node: NodeConfig{
			Mode:       NodeMode(strings.ToLower(getEnv("NODE_MODE", string(NodeModeRemote)))),
			ServiceURL: strings.TrimRight(getEnv("BREEZ_SERVICE_URL", defaultNodeServiceURL), "/"),
			Env:        NodeEnv(strings.ToLower(getEnv("BREEZ_ENV", string(NodeEnvProduction)))),
		},
		AuditFingerprintKey: os.Getenv("AUDIT_FINGERPRINT_KEY"),
		TracingEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.ShutdownPeriod, err = getDuration("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyRequired, err = getBool("IDEMPOTENCY_REQUIRED", false); err != nil {
		return Config{}, err
	}
	if cfg.TracingInsecure, err = getBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return Config{}, err
	}

	if cfg.DBMaxConns, err = getInt32("DB_MAX_CONNS", defaultDBMaxConns); err != nil {
		return Config{}, err
	}

	if cfg.CreateRateLimit, err = getInt("CREATE_RATE_LIMIT_PER_MIN", defaultCreateRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.Node.Burst, err = getInt("NODE_SERVICE_BURST", defaultNodeServiceBurst); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("NODE_SERVICE_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid NODE_SERVICE_RPS: %w", err)
		}
		cfg.Node.RequestsPerSecond = rps
	} else {
		cfg.Node.RequestsPerSecond = defaultNodeServiceRPS
	}

	sats, err := getInt("FIRST_CHANNEL_SATS_DEFAULT", defaultFirstChannelSats)
	if err != nil {
		return Config{}, err
	}
	cfg.FirstChannelSatsDefault = int64(sats)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Node.Mode {
	case NodeModeRemote:
		if c.Node.ServiceURL == "" {
			return fmt.Errorf("BREEZ_SERVICE_URL must be set when NODE_MODE=remote")
		}
	case NodeModeDevice:
	default:
		return fmt.Errorf("invalid NODE_MODE %q: expected remote or device", c.Node.Mode)
	}

	switch c.Node.Env {
	case NodeEnvProduction, NodeEnvStaging:
	default:
		return fmt.Errorf("invalid BREEZ_ENV %q: expected production or staging", c.Node.Env)
	}

	if c.DatabaseURL == "" && !c.IsDevelopment() {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local development environment,
// where in-memory storage is acceptable.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func getInt32(key string, fallback int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int32(i), nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getDuration reads <key>_SECONDS as whole seconds, falling back to <key> as a Go duration.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
