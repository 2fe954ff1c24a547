// Package config loads runtime configuration for the datastore server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/and161185/socialkeeper/internal/crypto"
)

const (
	envPrefix             = "SOCIALKEEPER"
	defaultGRPCAddress    = ":8443"
	defaultMetricsAddress = ":9090"
	defaultLogLevel       = "info"
	defaultStatusInterval = 15 * time.Second
	defaultFanoutLimit    = 8
	defaultCallGap        = time.Minute
)

// AppConfig captures runtime configuration.
type AppConfig struct {
	// Connection is the PostgreSQL DSN handed to the driver.
	Connection     string
	LogLevel       string
	GRPCAddress    string
	MetricsAddress string // empty disables the metrics listener
	StatusInterval time.Duration
	FanoutLimit    int
	CallGap        time.Duration

	// TLSCert and TLSKey enable TLS on the gRPC listener when both are set.
	TLSCert    string
	TLSKey     string
	Reflection bool

	// CredentialKey seals stored OAuth credentials when set.
	CredentialKey []byte
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("grpc.address", defaultGRPCAddress)
	v.SetDefault("metrics.address", defaultMetricsAddress)
	v.SetDefault("status.interval", defaultStatusInterval)
	v.SetDefault("fanout.limit", defaultFanoutLimit)
	v.SetDefault("limits.call_gap", defaultCallGap)
	v.SetDefault("grpc.tls_cert", "")
	v.SetDefault("grpc.tls_key", "")
	v.SetDefault("grpc.reflection", false)
	v.SetDefault("credentials.key", "")
}

// Load parses runtime configuration from viper.
func Load(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		Connection:     v.GetString("connection"),
		LogLevel:       v.GetString("log.level"),
		GRPCAddress:    v.GetString("grpc.address"),
		MetricsAddress: v.GetString("metrics.address"),
		StatusInterval: v.GetDuration("status.interval"),
		FanoutLimit:    v.GetInt("fanout.limit"),
		CallGap:        v.GetDuration("limits.call_gap"),
		TLSCert:        v.GetString("grpc.tls_cert"),
		TLSKey:         v.GetString("grpc.tls_key"),
		Reflection:     v.GetBool("grpc.reflection"),
	}
	if raw := v.GetString("credentials.key"); raw != "" {
		key, err := crypto.ParseKey(raw)
		if err != nil {
			return AppConfig{}, fmt.Errorf("credentials.key: %w", err)
		}
		cfg.CredentialKey = key
	}
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.Connection) == "" {
		return fmt.Errorf("connection is required")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status.interval must be positive")
	}
	if c.FanoutLimit <= 0 {
		return fmt.Errorf("fanout.limit must be positive")
	}
	if c.CallGap < 0 {
		return fmt.Errorf("limits.call_gap must not be negative")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("grpc.tls_cert and grpc.tls_key must be set together")
	}
	return nil
}
