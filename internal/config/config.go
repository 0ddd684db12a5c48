// Package config loads application configuration from a YAML file with
// environment-variable overrides. A .env file is honored when present so
// local development doesn't need exported variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SES      SESConfig      `yaml:"ses"`
	Governor GovernorConfig `yaml:"governor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	host := c.Host
	if h := os.Getenv("SERVER_HOST"); h != "" {
		host = h
	}
	port := c.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the rate/lock store connection settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds platform-level AWS SES settings. Project-level send
// credentials live in the database; these are the platform credentials
// used for identity provisioning and configuration sets.
type SESConfig struct {
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Region         string `yaml:"region"`
	SNSTopicARN    string `yaml:"sns_topic_arn"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call timeout for SES API requests.
func (c SESConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GovernorConfig holds outbound rate-governor settings. The counter key
// is account-wide, not per-project: the SES quota is account-wide.
type GovernorConfig struct {
	CounterKey      string `yaml:"counter_key"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
}

// Key returns the shared counter key, defaulting to "send:wall".
func (c GovernorConfig) Key() string {
	if c.CounterKey == "" {
		return "send:wall"
	}
	return c.CounterKey
}

// Cooldown returns the throttle window, defaulting to one second.
func (c GovernorConfig) Cooldown() time.Duration {
	if c.CooldownSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Load reads the YAML config at path. A missing file is not an error;
// env overrides can supply everything.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads the YAML config and applies environment overrides.
// A .env file in the working directory is loaded first if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("SNS_TOPIC_ARN"); v != "" {
		cfg.SES.SNSTopicARN = v
	}

	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}

	return cfg, nil
}
