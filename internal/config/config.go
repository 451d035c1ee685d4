package config

import (
	"fmt"
	"net"
	"strconv"
)

// Config holds the service's configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Vault    VaultConfig    `mapstructure:"vault"`
	PKCS11   PKCS11Config   `mapstructure:"pkcs11"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	ResolveTimeout int    `mapstructure:"resolve_timeout"` // in seconds
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"`  // in minutes
	MaxConnIdleTime int    `mapstructure:"max_conn_idle_time"` // in minutes
	ConnTimeout     int    `mapstructure:"conn_timeout"`       // in seconds
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
	CacheTTL     int      `mapstructure:"cache_ttl"` // in seconds
}

// FirstHost returns the host portion of the first configured address, or
// "localhost" if none is configured.
func (c *RedisConfig) FirstHost() string {
	host, _ := splitHostPort(c.firstAddress())
	return host
}

// FirstPort returns the port portion of the first configured address, or
// 6379 if none is configured.
func (c *RedisConfig) FirstPort() int {
	_, port := splitHostPort(c.firstAddress())
	return port
}

func (c *RedisConfig) firstAddress() string {
	if len(c.Addresses) == 0 {
		return ""
	}
	return c.Addresses[0]
}

func splitHostPort(addr string) (string, int) {
	if addr == "" {
		return "localhost", 6379
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// VaultConfig configures the HashiCorp Vault-backed HSM vault used when
// hsm_backend is "vault".
type VaultConfig struct {
	Address      string `mapstructure:"address"`
	Token        string `mapstructure:"token"`
	TransitMount string `mapstructure:"transit_mount"`
	KVMount      string `mapstructure:"kv_mount"`
}

// PKCS11Config configures the hardware-backed HSM vault used when
// hsm_backend is "pkcs11".
type PKCS11Config struct {
	LibraryPath string `mapstructure:"library_path"`
	SlotID      uint   `mapstructure:"slot_id"`
	Pin         string `mapstructure:"pin"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// PolicyConfig names which HSM backend mints and wraps the master keys that
// protect every per-reference keypair.
type PolicyConfig struct {
	HSMBackend          string `mapstructure:"hsm_backend"` // "vault" or "pkcs11"
	DefaultValidityDays int    `mapstructure:"default_validity_days"`

	// AuditSigningKey, if set, wraps the configured KeyLifecycleRegistry in
	// a SignedRegistry that HMAC-stamps every event. Empty disables signing.
	AuditSigningKey string `mapstructure:"audit_signing_key"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Policy.HSMBackend != "vault" && c.Policy.HSMBackend != "pkcs11" {
		return fmt.Errorf("policy.hsm_backend must be \"vault\" or \"pkcs11\", got %q", c.Policy.HSMBackend)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host must be set")
	}
	return nil
}
