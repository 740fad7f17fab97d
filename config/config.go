package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StartupMode defines how plotvault handles initialization failures
type StartupMode string

const (
	// StartupModeStrict fails fast on any initialization error (default)
	StartupModeStrict StartupMode = "strict"
	// StartupModeGraceful starts with degraded functionality, logging warnings
	StartupModeGraceful StartupMode = "graceful"
)

// Storage backend names
const (
	BackendMongoDB = "mongodb"
	BackendSQLite  = "sqlite"
)

// CSRF registry backend names
const (
	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// DataPaths holds data directory and file path configuration
// These paths can be overridden via environment variables
type DataPaths struct {
	// DataDir is the base data directory (PLOTVAULT_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`
	// SQLitePath is the SQLite database file path (PLOTVAULT_SQLITE_PATH, default: ${DataDir}/plotvault.db)
	SQLitePath string `mapstructure:"sqlite_path"`
}

// Config holds all configuration for the plotvault service
type Config struct {
	// StartupMode controls how initialization failures are handled
	// "strict" (default): Fail fast on any error
	// "graceful": Start with degraded functionality, log warnings
	StartupMode StartupMode `mapstructure:"startup_mode"`

	// DataPaths holds all data directory configuration
	DataPaths DataPaths `mapstructure:"data_paths"`

	Server struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		TLS      bool   `mapstructure:"tls"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"server"`

	Storage struct {
		// Backend selects the system of record: mongodb (default) or sqlite
		Backend string `mapstructure:"backend"`
	} `mapstructure:"storage"`

	MongoDB struct {
		URI         string `mapstructure:"uri"`
		Database    string `mapstructure:"database"`
		Collection  string `mapstructure:"collection"`
		MaxPoolSize uint64 `mapstructure:"max_pool_size"` // 0 = derive (50 for mongodb+srv, 10 otherwise)
		Username    string `mapstructure:"username"`
		Password    string `mapstructure:"password"`
	} `mapstructure:"mongodb"`

	Redis struct {
		Enabled  bool          `mapstructure:"enabled"`
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		PoolSize int           `mapstructure:"pool_size"`
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"redis"`

	CSRF struct {
		CookieName     string        `mapstructure:"cookie_name"`
		HeaderName     string        `mapstructure:"header_name"`
		TokenTTL       time.Duration `mapstructure:"token_ttl"`
		CookiePath     string        `mapstructure:"cookie_path"`
		CookieDomain   string        `mapstructure:"cookie_domain"`
		CookieSecure   bool          `mapstructure:"cookie_secure"`
		CookieSameSite string        `mapstructure:"cookie_same_site"` // lax, strict, none
		// RegistryBackend selects where issued tokens are tracked: memory or redis
		RegistryBackend string        `mapstructure:"registry_backend"`
		SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"csrf"`

	API struct {
		Version              string   `mapstructure:"version"`
		AllowedOrigins       []string `mapstructure:"allowed_origins"`
		TrustedHosts         []string `mapstructure:"trusted_hosts"`
		TrustProxy           bool     `mapstructure:"trust_proxy"`
		TrustedProxyNetworks []string `mapstructure:"trusted_proxy_networks"`
		JSONBodyLimit        int      `mapstructure:"json_body_limit"`
		RateLimit            struct {
			Requests  int           `mapstructure:"requests"`
			Window    time.Duration `mapstructure:"window"`
			Burst     int           `mapstructure:"burst"`
			UseRedis  bool          `mapstructure:"use_redis"`
			ExemptIPs []string      `mapstructure:"exempt_ips"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Cache struct {
		LRUSize int `mapstructure:"lru_size"`
	} `mapstructure:"cache"`

	Secrets struct {
		Provider string `mapstructure:"provider"` // env, vault, aws
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			SecretID  string `mapstructure:"secret_id"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`
}

// setDefaults sets default configuration values
func setDefaults() {
	// Startup mode: strict (fail fast) or graceful (degraded functionality)
	viper.SetDefault("startup_mode", string(StartupModeStrict))

	// Data paths with environment variable overrides
	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "") // Empty = derive from data_dir

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.tls", false)
	viper.SetDefault("server.cert_file", "server.crt")
	viper.SetDefault("server.key_file", "server.key")

	viper.SetDefault("storage.backend", BackendMongoDB)

	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "fastapi_plotly_db")
	viper.SetDefault("mongodb.collection", "plotly_data")
	viper.SetDefault("mongodb.max_pool_size", 0) // 0 = derive from URI scheme

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.cache_ttl", 5*time.Minute)

	viper.SetDefault("csrf.cookie_name", "XSRF-TOKEN")
	viper.SetDefault("csrf.header_name", "X-CSRF-Token")
	viper.SetDefault("csrf.token_ttl", 24*time.Hour)
	viper.SetDefault("csrf.cookie_path", "/")
	viper.SetDefault("csrf.cookie_domain", "")
	viper.SetDefault("csrf.cookie_secure", false)
	viper.SetDefault("csrf.cookie_same_site", "lax")
	viper.SetDefault("csrf.registry_backend", RegistryMemory)
	viper.SetDefault("csrf.sweep_interval", 5*time.Minute)

	viper.SetDefault("api.version", "1.0.0")
	viper.SetDefault("api.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	viper.SetDefault("api.trusted_hosts", []string{"localhost", "127.0.0.1", "*.yourdomain.com"})
	viper.SetDefault("api.trust_proxy", false)
	viper.SetDefault("api.trusted_proxy_networks", []string{})
	viper.SetDefault("api.json_body_limit", 10485760) // 10MB
	viper.SetDefault("api.rate_limit.requests", 100)
	viper.SetDefault("api.rate_limit.window", 1*time.Minute)
	viper.SetDefault("api.rate_limit.burst", 10)
	viper.SetDefault("api.rate_limit.use_redis", false)
	viper.SetDefault("api.rate_limit.exempt_ips", []string{})

	viper.SetDefault("cache.lru_size", 1000)

	viper.SetDefault("secrets.provider", "env")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("PLOTVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicit environment variable bindings for path settings
	_ = viper.BindEnv("startup_mode", "PLOTVAULT_STARTUP_MODE")
	_ = viper.BindEnv("data_paths.data_dir", "PLOTVAULT_DATA_DIR")
	_ = viper.BindEnv("data_paths.sqlite_path", "PLOTVAULT_SQLITE_PATH")

	// Legacy bindings kept for deployments configured against the original
	// backend's .env surface
	_ = viper.BindEnv("mongodb.uri", "PLOTVAULT_MONGODB_URI", "MONGODB_URL")
	_ = viper.BindEnv("mongodb.database", "PLOTVAULT_MONGODB_DATABASE", "DATABASE_NAME")
	_ = viper.BindEnv("mongodb.collection", "PLOTVAULT_MONGODB_COLLECTION", "COLLECTION_NAME")
	_ = viper.BindEnv("server.host", "PLOTVAULT_SERVER_HOST", "HOST")
	_ = viper.BindEnv("server.port", "PLOTVAULT_SERVER_PORT", "PORT")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Resolve derived values (paths, pool size)
	config.ResolveDataPaths()
	config.ResolveMongoPoolSize()

	return &config, nil
}

// ResolveDataPaths resolves all data paths, deriving from DataDir if not
// explicitly set
func (c *Config) ResolveDataPaths() {
	dataDir := c.DataPaths.DataDir
	if dataDir == "" {
		dataDir = "./data"
	}

	if c.DataPaths.SQLitePath == "" {
		c.DataPaths.SQLitePath = filepath.Join(dataDir, "plotvault.db")
	} else if !filepath.IsAbs(c.DataPaths.SQLitePath) {
		// Relative paths resolve against the current directory, not data_dir
		c.DataPaths.SQLitePath = filepath.Clean(c.DataPaths.SQLitePath)
	}

	c.DataPaths.DataDir = dataDir
}

// ResolveMongoPoolSize derives the connection pool size when it is not set
// explicitly. Atlas (mongodb+srv) deployments get the larger pool the
// managed tier expects.
func (c *Config) ResolveMongoPoolSize() {
	if c.MongoDB.MaxPoolSize != 0 {
		return
	}
	if strings.HasPrefix(c.MongoDB.URI, "mongodb+srv://") {
		c.MongoDB.MaxPoolSize = 50
	} else {
		c.MongoDB.MaxPoolSize = 10
	}
}

// GetDataDir returns the resolved base data directory
func (c *Config) GetDataDir() string {
	if c.DataPaths.DataDir == "" {
		return "./data"
	}
	return c.DataPaths.DataDir
}

// GetSQLitePath returns the resolved SQLite database path
func (c *Config) GetSQLitePath() string {
	if c.DataPaths.SQLitePath == "" {
		return filepath.Join(c.GetDataDir(), "plotvault.db")
	}
	return c.DataPaths.SQLitePath
}

// IsGracefulMode returns true if the startup mode is graceful
func (c *Config) IsGracefulMode() bool {
	return c.StartupMode == StartupModeGraceful
}

// validateConfig validates the configuration for security and correctness
func validateConfig(config *Config) error {
	// Validate storage backend selection
	switch config.Storage.Backend {
	case BackendMongoDB, BackendSQLite:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be %s or %s)",
			config.Storage.Backend, BackendMongoDB, BackendSQLite)
	}

	// Validate MongoDB settings when it is the system of record
	if config.Storage.Backend == BackendMongoDB {
		if !strings.HasPrefix(config.MongoDB.URI, "mongodb://") && !strings.HasPrefix(config.MongoDB.URI, "mongodb+srv://") {
			return fmt.Errorf("invalid MongoDB URI: must start with mongodb:// or mongodb+srv://")
		}
		parsed, err := url.Parse(config.MongoDB.URI)
		if err != nil {
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("invalid MongoDB URI: missing host")
		}
		if config.MongoDB.Database == "" {
			return fmt.Errorf("MongoDB database cannot be empty")
		}
		if config.MongoDB.Collection == "" {
			return fmt.Errorf("MongoDB collection cannot be empty")
		}
	}

	// Validate server settings
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", config.Server.Port)
	}
	if config.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if config.Server.TLS {
		if config.Server.CertFile == "" || config.Server.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert_file or key_file not set")
		}
	}

	// Validate CSRF settings
	if config.CSRF.CookieName == "" {
		return fmt.Errorf("csrf.cookie_name cannot be empty")
	}
	if config.CSRF.HeaderName == "" {
		return fmt.Errorf("csrf.header_name cannot be empty")
	}
	if config.CSRF.TokenTTL <= 0 {
		return fmt.Errorf("csrf.token_ttl must be positive, got %v", config.CSRF.TokenTTL)
	}
	if config.CSRF.SweepInterval <= 0 {
		return fmt.Errorf("csrf.sweep_interval must be positive, got %v", config.CSRF.SweepInterval)
	}
	switch config.CSRF.CookieSameSite {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid csrf.cookie_same_site: %s (must be lax, strict, or none)", config.CSRF.CookieSameSite)
	}
	switch config.CSRF.RegistryBackend {
	case RegistryMemory:
	case RegistryRedis:
		if config.Redis.Addr == "" {
			return fmt.Errorf("csrf.registry_backend is redis but redis.addr is not set")
		}
	default:
		return fmt.Errorf("invalid csrf.registry_backend: %s (must be %s or %s)",
			config.CSRF.RegistryBackend, RegistryMemory, RegistryRedis)
	}

	// Validate rate limiting
	if config.API.RateLimit.Requests < 1 {
		return fmt.Errorf("api.rate_limit.requests must be positive, got %d", config.API.RateLimit.Requests)
	}
	if config.API.RateLimit.Window < time.Second {
		return fmt.Errorf("api.rate_limit.window must be at least 1s, got %v", config.API.RateLimit.Window)
	}
	if config.API.RateLimit.Burst < 1 {
		return fmt.Errorf("api.rate_limit.burst must be positive, got %d", config.API.RateLimit.Burst)
	}
	if config.API.RateLimit.UseRedis && config.Redis.Addr == "" {
		return fmt.Errorf("api.rate_limit.use_redis is set but redis.addr is not")
	}
	for _, ip := range config.API.RateLimit.ExemptIPs {
		if net.ParseIP(strings.TrimSpace(ip)) == nil {
			return fmt.Errorf("invalid api.rate_limit.exempt_ips entry: %s", ip)
		}
	}

	// Validate body limit and cache sizing
	if config.API.JSONBodyLimit < 1 {
		return fmt.Errorf("api.json_body_limit must be positive, got %d", config.API.JSONBodyLimit)
	}
	if config.Cache.LRUSize < 1 {
		return fmt.Errorf("cache.lru_size must be positive, got %d", config.Cache.LRUSize)
	}

	// Validate allowed origins are absolute http(s) URLs
	for _, origin := range config.API.AllowedOrigins {
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("invalid api.allowed_origins entry: %s (must be an absolute http(s) origin)", origin)
		}
	}

	// Validate trusted hosts: literal hosts, wildcard subdomains, or "*"
	for _, host := range config.API.TrustedHosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if host == "*" {
			continue
		}
		candidate := strings.TrimPrefix(host, "*.")
		if !isValidHostname(candidate) && net.ParseIP(candidate) == nil {
			return fmt.Errorf("invalid api.trusted_hosts entry: %s", host)
		}
	}

	// Validate trusted proxy networks are CIDRs
	for _, network := range config.API.TrustedProxyNetworks {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(network)); err != nil {
			return fmt.Errorf("invalid api.trusted_proxy_networks entry: %s", network)
		}
	}

	// SECURITY: Enforce transport hardening in production mode
	env := os.Getenv("PLOTVAULT_ENV")
	if env == "production" {
		if !config.Server.TLS {
			return fmt.Errorf("CRITICAL SECURITY ERROR: TLS must be enabled in production (PLOTVAULT_ENV=production, server.tls=false)")
		}
		if !config.CSRF.CookieSecure {
			return fmt.Errorf("CRITICAL SECURITY ERROR: csrf.cookie_secure must be enabled in production (PLOTVAULT_ENV=production)")
		}
	}

	return nil
}

// isValidHostname checks if a string is a valid hostname label sequence.
// Single-label hosts like "localhost" are accepted.
func isValidHostname(host string) bool {
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, r := range host {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-') {
			return false
		}
	}
	for _, part := range strings.Split(host, ".") {
		if len(part) == 0 || len(part) > 63 {
			return false
		}
	}
	return true
}
