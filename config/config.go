package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the signal bot
type Config struct {
	EngineConfig   EngineConfig   `json:"engine"`
	RulesConfig    RulesConfig    `json:"rules"`
	RiskFreeConfig RiskFreeConfig `json:"risk_free"`
	VenueConfig    VenueConfig    `json:"venue"`
	GatewayConfig  GatewayConfig  `json:"gateway"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	VaultConfig    VaultConfig    `json:"vault"`
	LoggingConfig  LoggingConfig  `json:"logging"`
}

// EngineConfig holds signal parsing and action building configuration
type EngineConfig struct {
	DefaultSymbol       string  `json:"default_symbol"`        // Symbol assumed when the message names none
	DefaultLegVolume    float64 `json:"default_leg_volume"`    // Lots per leg
	MaxLegs             int     `json:"max_legs"`              // Hard cap on legs per group
	MinTextLen          int     `json:"min_text_len"`          // Messages shorter than this are never signals
	RequirePrice        bool    `json:"require_price"`         // Reject OPEN signals without an entry price
	DefaultClosePercent float64 `json:"default_close_percent"` // CLOSE_PARTIAL percentage when unspecified
	FailsafeOnUnparsed  bool    `json:"failsafe_on_unparsed"`  // Record unmatched messages in the review queue
}

// RulesConfig holds rule catalog configuration
type RulesConfig struct {
	Path string `json:"path"` // Path to the YAML rule document
}

// RiskFreeConfig holds break-even / risk-free recomputation configuration
type RiskFreeConfig struct {
	PipOffset     float64            `json:"pip_offset"`     // Pips beyond breakeven for the new stop
	PipOverrides  map[string]float64 `json:"pip_overrides"`  // Per-symbol pip multiplier overrides
	VenueTimeout  time.Duration      `json:"venue_timeout"`  // Timeout for each venue call
	WorkerCount   int                `json:"worker_count"`   // Bounded pool size for venue-touching work
	WorkerBacklog int                `json:"worker_backlog"` // Queued jobs before submissions are refused
}

// VenueConfig holds execution-venue connector configuration
type VenueConfig struct {
	Backend     string        `json:"backend"`      // "bridge" or "mock"
	BridgeURL   string        `json:"bridge_url"`   // Websocket URL of the terminal bridge
	BridgeToken string        `json:"bridge_token"` // Bearer token for the bridge, usually vault-supplied
	CallTimeout time.Duration `json:"call_timeout"` // Per-request timeout on the bridge
}

// GatewayConfig holds messaging-gateway stream configuration
type GatewayConfig struct {
	Enabled       bool          `json:"enabled"`
	URL           string        `json:"url"`            // Websocket URL of the message gateway
	Token         string        `json:"token"`          // Bearer token for the gateway, usually vault-supplied
	ReconnectWait time.Duration `json:"reconnect_wait"` // Base delay between reconnect attempts
	ChatWhitelist []int64       `json:"chat_whitelist"` // Empty means accept all chats
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for action dedup
type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	DedupTTL time.Duration `json:"dedup_ttl"` // How long delivered action ids are remembered
}

// ServerConfig holds the ops/diagnostics HTTP server configuration
type ServerConfig struct {
	Enabled      bool     `json:"enabled"`
	Port         int      `json:"port"`
	AllowOrigins []string `json:"allow_origins"`
}

// AuthConfig holds operator authentication for the ops API
type AuthConfig struct {
	Enabled          bool          `json:"enabled"`
	JWTSecret        string        `json:"jwt_secret"`
	TokenDuration    time.Duration `json:"token_duration"`
	OperatorPassHash string        `json:"operator_pass_hash"` // bcrypt hash of the operator password
}

// VaultConfig holds HashiCorp Vault configuration for credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// LoggingConfig controls structured log output
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or a file path
	JSONFormat bool   `json:"json_format"` // JSON lines instead of console format
}

// Load reads configuration from an optional JSON file and then applies
// environment variable overrides. The file path comes from CONFIG_FILE.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if filename := os.Getenv("CONFIG_FILE"); filename != "" {
		fileCfg, err := loadFromFile(filename)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		EngineConfig: EngineConfig{
			DefaultSymbol:       "XAUUSD",
			DefaultLegVolume:    0.01,
			MaxLegs:             16,
			MinTextLen:          8,
			RequirePrice:        true,
			DefaultClosePercent: 50.0,
			FailsafeOnUnparsed:  true,
		},
		RulesConfig: RulesConfig{
			Path: "config/rules.yaml",
		},
		RiskFreeConfig: RiskFreeConfig{
			PipOffset:     1.0,
			PipOverrides:  map[string]float64{},
			VenueTimeout:  5 * time.Second,
			WorkerCount:   4,
			WorkerBacklog: 64,
		},
		VenueConfig: VenueConfig{
			Backend:     "mock",
			BridgeURL:   "ws://127.0.0.1:9100/bridge",
			CallTimeout: 5 * time.Second,
		},
		GatewayConfig: GatewayConfig{
			Enabled:       false,
			URL:           "ws://127.0.0.1:9200/stream",
			ReconnectWait: 3 * time.Second,
		},
		DatabaseConfig: DatabaseConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     5432,
			User:     "signalbot",
			Database: "signalbot",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DedupTTL: 72 * time.Hour,
		},
		ServerConfig: ServerConfig{
			Enabled:      true,
			Port:         8080,
			AllowOrigins: []string{"*"},
		},
		AuthConfig: AuthConfig{
			Enabled:       false,
			TokenDuration: 12 * time.Hour,
		},
		VaultConfig: VaultConfig{
			Enabled:   false,
			MountPath: "secret",
		},
		LoggingConfig: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Engine
	cfg.EngineConfig.DefaultSymbol = strings.ToUpper(getEnvOrDefault("DEFAULT_SYMBOL", cfg.EngineConfig.DefaultSymbol))
	cfg.EngineConfig.DefaultLegVolume = getEnvFloatOrDefault("DEFAULT_LEG_VOLUME", cfg.EngineConfig.DefaultLegVolume)
	cfg.EngineConfig.MaxLegs = getEnvIntOrDefault("MAX_LEGS", cfg.EngineConfig.MaxLegs)
	cfg.EngineConfig.MinTextLen = getEnvIntOrDefault("SIGNAL_MIN_TEXT_LEN", cfg.EngineConfig.MinTextLen)
	cfg.EngineConfig.RequirePrice = getEnvBoolOrDefault("SIGNAL_REQUIRE_PRICE", cfg.EngineConfig.RequirePrice)
	cfg.EngineConfig.DefaultClosePercent = getEnvFloatOrDefault("DEFAULT_CLOSE_PERCENT", cfg.EngineConfig.DefaultClosePercent)
	cfg.EngineConfig.FailsafeOnUnparsed = getEnvBoolOrDefault("FAILSAFE_ON_UNPARSED", cfg.EngineConfig.FailsafeOnUnparsed)

	// Rules
	cfg.RulesConfig.Path = getEnvOrDefault("RULES_PATH", cfg.RulesConfig.Path)

	// Risk-free
	cfg.RiskFreeConfig.PipOffset = getEnvFloatOrDefault("RISK_FREE_PIP_OFFSET", cfg.RiskFreeConfig.PipOffset)
	cfg.RiskFreeConfig.VenueTimeout = getEnvDurationOrDefault("VENUE_TIMEOUT", cfg.RiskFreeConfig.VenueTimeout)
	cfg.RiskFreeConfig.WorkerCount = getEnvIntOrDefault("VENUE_WORKER_COUNT", cfg.RiskFreeConfig.WorkerCount)
	cfg.RiskFreeConfig.WorkerBacklog = getEnvIntOrDefault("VENUE_WORKER_BACKLOG", cfg.RiskFreeConfig.WorkerBacklog)
	loadPipOverrides(cfg.RiskFreeConfig.PipOverrides)

	// Venue
	cfg.VenueConfig.Backend = getEnvOrDefault("VENUE_BACKEND", cfg.VenueConfig.Backend)
	cfg.VenueConfig.BridgeURL = getEnvOrDefault("VENUE_BRIDGE_URL", cfg.VenueConfig.BridgeURL)
	cfg.VenueConfig.BridgeToken = getEnvOrDefault("VENUE_BRIDGE_TOKEN", cfg.VenueConfig.BridgeToken)
	cfg.VenueConfig.CallTimeout = getEnvDurationOrDefault("VENUE_CALL_TIMEOUT", cfg.VenueConfig.CallTimeout)

	// Gateway
	cfg.GatewayConfig.Enabled = getEnvBoolOrDefault("GATEWAY_ENABLED", cfg.GatewayConfig.Enabled)
	cfg.GatewayConfig.URL = getEnvOrDefault("GATEWAY_URL", cfg.GatewayConfig.URL)
	cfg.GatewayConfig.Token = getEnvOrDefault("GATEWAY_TOKEN", cfg.GatewayConfig.Token)
	cfg.GatewayConfig.ReconnectWait = getEnvDurationOrDefault("GATEWAY_RECONNECT_WAIT", cfg.GatewayConfig.ReconnectWait)
	if raw := os.Getenv("GATEWAY_CHAT_WHITELIST"); raw != "" {
		cfg.GatewayConfig.ChatWhitelist = parseInt64List(raw)
	}

	// Database
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.DedupTTL = getEnvDurationOrDefault("REDIS_DEDUP_TTL", cfg.RedisConfig.DedupTTL)

	// Server
	cfg.ServerConfig.Enabled = getEnvBoolOrDefault("SERVER_ENABLED", cfg.ServerConfig.Enabled)
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	if raw := os.Getenv("SERVER_ALLOW_ORIGINS"); raw != "" {
		cfg.ServerConfig.AllowOrigins = splitAndTrim(raw)
	}

	// Auth
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", cfg.AuthConfig.TokenDuration)
	cfg.AuthConfig.OperatorPassHash = getEnvOrDefault("OPERATOR_PASS_HASH", cfg.AuthConfig.OperatorPassHash)

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
}

// loadPipOverrides collects PIP_MULT_<SYMBOL> environment overrides into the map.
func loadPipOverrides(overrides map[string]float64) {
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, "PIP_MULT_") {
			continue
		}
		symbol := strings.TrimPrefix(key, "PIP_MULT_")
		if symbol == "" {
			continue
		}
		if mult, err := strconv.ParseFloat(value, 64); err == nil && mult > 0 {
			overrides[symbol] = mult
		}
	}
}

func (c *Config) validate() error {
	if c.EngineConfig.DefaultLegVolume <= 0 {
		return fmt.Errorf("invalid config: default_leg_volume must be positive")
	}
	if c.EngineConfig.MaxLegs < 1 {
		return fmt.Errorf("invalid config: max_legs must be at least 1")
	}
	if c.EngineConfig.DefaultClosePercent <= 0 || c.EngineConfig.DefaultClosePercent > 100 {
		return fmt.Errorf("invalid config: default_close_percent must be in (0, 100]")
	}
	if c.RiskFreeConfig.WorkerCount < 1 {
		return fmt.Errorf("invalid config: venue worker count must be at least 1")
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("invalid config: auth enabled but JWT_SECRET is empty")
	}
	switch c.VenueConfig.Backend {
	case "mock", "bridge":
	default:
		return fmt.Errorf("invalid config: unknown venue backend %q", c.VenueConfig.Backend)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInt64List(raw string) []int64 {
	var out []int64
	for _, p := range splitAndTrim(raw) {
		if v, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
