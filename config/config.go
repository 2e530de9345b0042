// Package config loads the service configuration from a YAML file with
// ${VAR} environment substitution. Secrets stay in the environment (or a
// .env file loaded at startup) and are referenced from the YAML.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Cache     CacheConfig     `yaml:"cache"`
	Reminders RemindersConfig `yaml:"reminders"`
}

// ListenConfig defines the HTTP bind address and timeouts.
type ListenConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // mongo or memory
	URI     string `yaml:"uri"`
	DBName  string `yaml:"db_name"`
}

// AuthConfig holds the JWT signing key.
type AuthConfig struct {
	SigningKey string `yaml:"signing_key"`
}

// CacheConfig holds the Redis connection URL.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url"`
}

// RemindersConfig parameterizes the reminder queue and its email sender.
// Reminders are disabled when AMQPURL is empty.
type RemindersConfig struct {
	AMQPURL      string        `yaml:"amqp_url"`
	Producers    int           `yaml:"producers"`
	Consumers    int           `yaml:"consumers"`
	ScanInterval time.Duration `yaml:"scan_interval"`
	SMTPServer   string        `yaml:"smtp_server"`
	SMTPSender   string        `yaml:"smtp_sender"`
	SMTPPassword string        `yaml:"smtp_password"`
}

// Enabled reports whether the reminder pipeline should start.
func (r RemindersConfig) Enabled() bool {
	return r.AMQPURL != ""
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables are left as-is so validation can flag them.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// LoadDotenv loads a .env file into the process environment when one exists.
// A missing file is not an error; deployments set real environment variables.
func LoadDotenv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Addr == "" {
		cfg.Listen.Addr = "127.0.0.1:8080"
	}
	if cfg.Listen.ReadTimeout == 0 {
		cfg.Listen.ReadTimeout = 15 * time.Second
	}
	if cfg.Listen.WriteTimeout == 0 {
		cfg.Listen.WriteTimeout = 15 * time.Second
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.DBName == "" {
		cfg.Storage.DBName = "habithive"
	}
	if cfg.Reminders.Producers == 0 {
		cfg.Reminders.Producers = 1
	}
	if cfg.Reminders.Consumers == 0 {
		cfg.Reminders.Consumers = 3
	}
	if cfg.Reminders.ScanInterval == 0 {
		cfg.Reminders.ScanInterval = time.Minute
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "", "memory":
	case "mongo":
		if cfg.Storage.URI == "" {
			return fmt.Errorf("storage: uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("storage: unsupported backend %q (must be mongo or memory)", cfg.Storage.Backend)
	}

	if cfg.Auth.SigningKey == "" {
		return fmt.Errorf("auth: signing_key is required")
	}
	if envVarPattern.MatchString(cfg.Auth.SigningKey) {
		return fmt.Errorf("auth: signing_key references an unset environment variable")
	}

	if cfg.Reminders.Enabled() {
		if cfg.Reminders.SMTPServer == "" || cfg.Reminders.SMTPSender == "" {
			return fmt.Errorf("reminders: smtp_server and smtp_sender are required when amqp_url is set")
		}
	}
	return nil
}
