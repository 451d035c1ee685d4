package config

import (
	"context"
	"strings"

	"github.com/spf13/viper"

	"github.com/turtacn/ckms/pkg/constants"
	"github.com/turtacn/ckms/pkg/errors"
	"github.com/turtacn/ckms/pkg/logger"
)

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(log logger.Logger) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.resolve_timeout", 5)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_timeout", 10)
	v.SetDefault("redis.cache_ttl", 600)
	v.SetDefault("policy.hsm_backend", "vault")
	v.SetDefault("policy.default_validity_days", 365)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/ckms/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("CKMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only consults the environment for keys viper already
	// knows about, so keys without a default are bound explicitly.
	for _, key := range []string{
		"server.host",
		"database.host", "database.port", "database.user", "database.password", "database.database",
		"database.ssl_mode", "database.max_conn_lifetime", "database.max_conn_idle_time",
		"redis.addresses", "redis.password", "redis.db", "redis.pool_size", "redis.min_idle_conns",
		"vault.address", "vault.token", "vault.transit_mount", "vault.kv_mount",
		"pkcs11.library_path", "pkcs11.slot_id", "pkcs11.pin", "kafka.brokers", "kafka.topic",
		"policy.audit_signing_key", "log.output_path",
		"tracing.enabled", "tracing.jaeger_endpoint", "tracing.service_name", "tracing.environment", "tracing.sampling_rate",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to unmarshal configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info(context.Background(), "configuration loaded", logger.Fields{"hsm_backend": cfg.Policy.HSMBackend})
	}

	return &cfg, nil
}
