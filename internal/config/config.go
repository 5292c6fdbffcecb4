package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token lifetimes, one per token purpose. Issuance and verification both read
// these through TokensConfig so they cannot drift apart.
const (
	DefaultAuthorizationTokenValidity = 5 * time.Minute
	DefaultDelegationTokenMaxLifetime = 15 * time.Minute
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabasesConfig     `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	ConsentBroker ConsentBrokerConfig `mapstructure:"consent_broker"`
	Keys          KeyMaterialConfig   `mapstructure:"keys"`
	Tokens        TokensConfig        `mapstructure:"tokens"`
	Storefront    StorefrontConfig    `mapstructure:"storefront"`
	Delivery      DeliveryConfig      `mapstructure:"delivery"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Cache         CacheConfig         `mapstructure:"cache"`
	CORS          CORSConfig          `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Hostname     string        `mapstructure:"hostname"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabasesConfig holds all database configurations
type DatabasesConfig struct {
	Store DatabaseConfig `mapstructure:"store"`
}

// DatabaseConfig holds individual database configuration
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConsentBrokerConfig holds the Consent Broker endpoints and the origins its
// presentation surface may post messages from.
type ConsentBrokerConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	Origin               string        `mapstructure:"origin"`
	AllowedOrigins       []string      `mapstructure:"allowed_origins"`
	ConsentPath          string        `mapstructure:"consent_path"`
	PreviewPath          string        `mapstructure:"preview_path"`
	StatusEndpoint       string        `mapstructure:"status_endpoint"`
	PartnerTokenEndpoint string        `mapstructure:"partner_token_endpoint"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// KeyMaterialConfig holds the storefront key pair and the API key shared with
// the Consent Broker. Values are either inline PEM or file paths.
type KeyMaterialConfig struct {
	PublicKey      string `mapstructure:"public_key"`
	PrivateKey     string `mapstructure:"private_key"`
	PublicKeyFile  string `mapstructure:"public_key_file"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
	SharedAPIKey   string `mapstructure:"shared_api_key"`
}

// TokensConfig holds token issuance settings
type TokensConfig struct {
	Issuer                string        `mapstructure:"issuer"`
	AuthorizationValidity time.Duration `mapstructure:"authorization_validity"`
	DelegationMaxLifetime time.Duration `mapstructure:"delegation_max_lifetime"`
}

// StorefrontConfig holds merchant identity
type StorefrontConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	MerchantName string `mapstructure:"merchant_name"`
}

// DeliveryConfig holds delivery partner configuration
type DeliveryConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	IntakeEndpoint   string        `mapstructure:"intake_endpoint"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RetainCredential bool          `mapstructure:"retain_credential"`
}

// QueueConfig holds the asynq retry queue configuration
type QueueConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetry    int           `mapstructure:"max_retry"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// CacheConfig holds consent status cache configuration
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

var globalConfig *Config

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath(".")
	}

	// Read from environment variables, e.g. STOREFRONT_KEYS_SHARED_API_KEY
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	globalConfig = &config
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.hostname", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.store.type", "mysql")
	v.SetDefault("database.store.hostname", "localhost")
	v.SetDefault("database.store.port", 3306)
	v.SetDefault("database.store.user", "")
	v.SetDefault("database.store.password", "")
	v.SetDefault("database.store.database", "bookstore")
	v.SetDefault("database.store.max_open_conns", 25)
	v.SetDefault("database.store.max_idle_conns", 5)
	v.SetDefault("database.store.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("consent_broker.base_url", "")
	v.SetDefault("consent_broker.origin", "")
	v.SetDefault("consent_broker.allowed_origins", []string{})
	v.SetDefault("consent_broker.consent_path", "consent")
	v.SetDefault("consent_broker.preview_path", "preview")
	v.SetDefault("consent_broker.status_endpoint", "/consent-status")
	v.SetDefault("consent_broker.partner_token_endpoint", "/issue-partner-jwt")
	v.SetDefault("consent_broker.timeout", 10*time.Second)

	v.SetDefault("keys.public_key", "")
	v.SetDefault("keys.private_key", "")
	v.SetDefault("keys.public_key_file", "")
	v.SetDefault("keys.private_key_file", "")
	v.SetDefault("keys.shared_api_key", "")

	v.SetDefault("tokens.issuer", "bookstore-storefront")
	v.SetDefault("tokens.authorization_validity", DefaultAuthorizationTokenValidity)
	v.SetDefault("tokens.delegation_max_lifetime", DefaultDelegationTokenMaxLifetime)

	v.SetDefault("storefront.tenant_id", "")
	v.SetDefault("storefront.merchant_name", "")

	v.SetDefault("delivery.base_url", "")
	v.SetDefault("delivery.intake_endpoint", "/delivery-requests")
	v.SetDefault("delivery.timeout", 10*time.Second)
	v.SetDefault("delivery.retain_credential", false)

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.max_retry", 8)
	v.SetDefault("queue.retry_delay", time.Minute)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.ttl", 30*time.Minute)

	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Correlation-ID", "X-User-ID", "X-User-Email"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
}

// validateConfig validates the configuration. Key material is deliberately
// not checked here: a missing key fails the code path that needs it.
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Store.Hostname == "" {
		return fmt.Errorf("database hostname is required")
	}

	if config.Database.Store.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if config.ConsentBroker.BaseURL == "" {
		return fmt.Errorf("consent broker base URL is required")
	}

	if config.ConsentBroker.Origin == "" {
		origin, err := OriginOf(config.ConsentBroker.BaseURL)
		if err != nil {
			return fmt.Errorf("consent broker origin could not be derived: %w", err)
		}
		config.ConsentBroker.Origin = origin
	}

	for _, origin := range config.ConsentBroker.AllowedOrigins {
		if _, err := OriginOf(origin); err != nil {
			return fmt.Errorf("invalid consent broker allowed origin %q: %w", origin, err)
		}
	}

	if config.Tokens.AuthorizationValidity <= 0 {
		return fmt.Errorf("authorization token validity must be positive")
	}

	if config.Tokens.DelegationMaxLifetime <= 0 {
		return fmt.Errorf("delegation token max lifetime must be positive")
	}

	if config.Cache.Backend != "memory" && config.Cache.Backend != "redis" {
		return fmt.Errorf("unsupported cache backend: %s", config.Cache.Backend)
	}

	return nil
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// SetGlobal sets the global configuration (for testing purposes)
func SetGlobal(cfg *Config) {
	globalConfig = cfg
}

// GetDSN returns the database connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		d.User,
		d.Password,
		d.Hostname,
		d.Port,
		d.Database,
	)
}

// GetServerAddress returns the server address in host:port format
func (s *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", s.Hostname, s.Port)
}

// GetEndpointURL returns the full URL for a Consent Broker endpoint
func (b *ConsentBrokerConfig) GetEndpointURL(endpoint string) string {
	return strings.TrimRight(b.BaseURL, "/") + endpoint
}

// GetSurfaceURL returns the presentation surface URL for a path such as
// "consent" or "preview"
func (b *ConsentBrokerConfig) GetSurfaceURL(path string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// TargetOrigin returns the broker origin messages are posted to. It falls back
// to the origin of BaseURL when Origin is not configured.
func (b *ConsentBrokerConfig) TargetOrigin() string {
	if b.Origin != "" {
		return b.Origin
	}
	origin, err := OriginOf(b.BaseURL)
	if err != nil {
		return ""
	}
	return origin
}

// TrustedOrigins returns the exact origins accepted for surface messages
func (b *ConsentBrokerConfig) TrustedOrigins() []string {
	origins := make([]string, 0, len(b.AllowedOrigins)+1)
	if target := b.TargetOrigin(); target != "" {
		origins = append(origins, target)
	}
	return append(origins, b.AllowedOrigins...)
}

// GetIntakeURL returns the delivery partner intake URL
func (d *DeliveryConfig) GetIntakeURL() string {
	return strings.TrimRight(d.BaseURL, "/") + d.IntakeEndpoint
}

// OriginOf returns scheme://host[:port] for a URL
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
