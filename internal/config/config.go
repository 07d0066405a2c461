package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type LocalStoreConfig struct {
	Path            string `mapstructure:"path"`
	RetentionDays   int    `mapstructure:"retention_days"`
	MaxSyncAttempts int    `mapstructure:"max_sync_attempts"`
}

type NetworkConfig struct {
	ProbeURL     string        `mapstructure:"probe_url"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type SyncConfig struct {
	Backend          string        `mapstructure:"backend"`
	PeriodicInterval time.Duration `mapstructure:"periodic_interval"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	CleanupSchedule  string        `mapstructure:"cleanup_schedule"`
	EmailWaitTimeout time.Duration `mapstructure:"email_wait_timeout"`
	PushTimeout      time.Duration `mapstructure:"push_timeout"`
}

type EmailConfig struct {
	Provider       string        `mapstructure:"provider"`
	Endpoint       string        `mapstructure:"endpoint"`
	ServiceID      string        `mapstructure:"service_id"`
	TemplateID     string        `mapstructure:"template_id"`
	PublicKey      string        `mapstructure:"public_key"`
	Origin         string        `mapstructure:"origin"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	From           string        `mapstructure:"from"`
	SMTPHost       string        `mapstructure:"smtp_host"`
	SMTPPort       int           `mapstructure:"smtp_port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
}

type PushConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

type ContactsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
}

type Config struct {
	DatabaseURL string           `mapstructure:"database_url"`
	ServerPort  string           `mapstructure:"server_port"`
	LogLevel    string           `mapstructure:"log_level"`
	JWTSecret   string           `mapstructure:"jwt_secret"`
	LocalStore  LocalStoreConfig `mapstructure:"local_store"`
	Network     NetworkConfig    `mapstructure:"network"`
	Sync        SyncConfig       `mapstructure:"sync"`
	Email       EmailConfig      `mapstructure:"email"`
	Push        PushConfig       `mapstructure:"push"`
	Contacts    ContactsConfig   `mapstructure:"contacts"`
	Temporal    TemporalConfig   `mapstructure:"temporal"`
}

const (
	BackendLocal    = "local"
	BackendTemporal = "temporal"

	ProviderEmailJS = "emailjs"
	ProviderSMTP    = "smtp"
)

// Load reads config.yaml from the working directory or ./config, applies
// SAFEME_* environment overrides and fills in defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("safeme")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("local_store.path", "safeme.db")
	v.SetDefault("local_store.retention_days", 30)
	v.SetDefault("local_store.max_sync_attempts", 3)

	v.SetDefault("network.probe_timeout", 5*time.Second)
	v.SetDefault("network.poll_interval", 10*time.Second)

	v.SetDefault("sync.backend", BackendLocal)
	v.SetDefault("sync.periodic_interval", 15*time.Minute)
	v.SetDefault("sync.initial_backoff", 10*time.Second)
	v.SetDefault("sync.max_backoff", 5*time.Hour)
	v.SetDefault("sync.cleanup_schedule", "@daily")
	v.SetDefault("sync.email_wait_timeout", 20*time.Second)
	v.SetDefault("sync.push_timeout", 15*time.Second)

	v.SetDefault("email.provider", ProviderEmailJS)
	v.SetDefault("email.endpoint", "https://api.emailjs.com/api/v1.0/email/send")
	v.SetDefault("email.origin", "http://localhost")
	v.SetDefault("email.request_timeout", 15*time.Second)
	v.SetDefault("email.smtp_port", 587)

	v.SetDefault("contacts.cache_ttl", 24*time.Hour)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
}

// bindEnv registers the keys without defaults so Unmarshal sees their
// environment overrides.
func bindEnv(v *viper.Viper) error {
	keys := []string{
		"database_url",
		"jwt_secret",
		"network.probe_url",
		"email.service_id",
		"email.template_id",
		"email.public_key",
		"email.from",
		"email.smtp_host",
		"email.username",
		"email.password",
		"push.enabled",
		"push.project_id",
		"push.topic",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the settings that have no sensible default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt_secret must be set")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database_url must be set")
	}
	if strings.TrimSpace(c.Network.ProbeURL) == "" {
		return fmt.Errorf("network.probe_url must be set")
	}
	if c.LocalStore.MaxSyncAttempts <= 0 {
		return fmt.Errorf("local_store.max_sync_attempts must be positive")
	}
	switch c.Sync.Backend {
	case BackendLocal, BackendTemporal:
	default:
		return fmt.Errorf("unknown sync.backend %q", c.Sync.Backend)
	}
	switch c.Email.Provider {
	case ProviderEmailJS:
		if c.Email.ServiceID == "" || c.Email.TemplateID == "" || c.Email.PublicKey == "" {
			return fmt.Errorf("email.service_id, email.template_id and email.public_key are required for emailjs")
		}
	case ProviderSMTP:
		if strings.TrimSpace(c.Email.SMTPHost) == "" || strings.TrimSpace(c.Email.From) == "" {
			return fmt.Errorf("email.smtp_host and email.from are required for smtp")
		}
	default:
		return fmt.Errorf("unknown email.provider %q", c.Email.Provider)
	}
	return nil
}
