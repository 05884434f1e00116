// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultAPIURL            = "http://moderate.cleantalk.ru"
	DefaultCleantalkTimeout  = 10000
	DefaultSessionKeyPrefix  = "session"
	DefaultSessionTTLSeconds = 86400
	DefaultSessionCookie     = "ct_session"
	DefaultServerAddress     = ":8080"
)

// envBindings lists the keys that can be supplied purely through the
// environment, without a config file declaring them.
var envBindings = []string{
	"app.environment",
	"app.language",
	"cleantalk.api_key",
	"cleantalk.api_url",
	"cleantalk.response_lang",
	"cleantalk.enable_log",
	"cleantalk.js_challenge_salt",
	"cleantalk.timeout",
	"session.driver",
	"session.redis.address",
	"session.redis.password",
	"session.redis.db",
	"session.redis.pool_size",
	"session.redis.dial_timeout",
	"server.address",
	"server.trusted_proxies",
	"camunda.enabled",
	"camunda.broker_address",
	"logging.level",
	"logging.format",
	"tracing.enabled",
	"tracing.jaeger_endpoint",
}

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range envBindings {
		_ = v.BindEnv(key)
	}
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up from the working directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		// Unset variables expand to "" so required fields fail validation
		// instead of carrying the literal placeholder.
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are conventionally supplied under
// vendor-style env names.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Cleantalk.APIKey == "" {
		if val := os.Getenv("CLEANTALK_AUTH_KEY"); val != "" {
			cfg.Cleantalk.APIKey = val
		}
	}
	if cfg.Session.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Session.Redis.Address = val
		}
	}
	if cfg.Session.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Session.Redis.Password = val
		}
	}
	if cfg.Notifications.AWS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Notifications.AWS.Region = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "cleantalk-antispam"
	}

	if cfg.Cleantalk.APIURL == "" {
		cfg.Cleantalk.APIURL = DefaultAPIURL
	}
	if cfg.Cleantalk.Timeout == 0 {
		cfg.Cleantalk.Timeout = DefaultCleantalkTimeout
	}

	if cfg.Session.Driver == "" {
		if cfg.Session.Redis.Address != "" {
			cfg.Session.Driver = "redis"
		} else {
			cfg.Session.Driver = "memory"
		}
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = DefaultSessionKeyPrefix
	}
	if cfg.Session.TTLSeconds == 0 {
		cfg.Session.TTLSeconds = DefaultSessionTTLSeconds
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = DefaultSessionCookie
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultServerAddress
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Workers inherit the gateway-wide limits unless they set their own.
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = cfg.Camunda.MaxJobsActive
		}
		if worker.Timeout == 0 {
			worker.Timeout = cfg.Camunda.Timeout
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Cleantalk.APIKey == "" {
		return fmt.Errorf("cleantalk.api_key is required")
	}

	switch cfg.Session.Driver {
	case "memory":
	case "redis":
		if cfg.Session.Redis.Address == "" {
			return fmt.Errorf("session.redis.address is required for the redis driver")
		}
	default:
		return fmt.Errorf("session.driver must be redis or memory, got %q", cfg.Session.Driver)
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	if cfg.Tracing.Enabled && cfg.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint is required when tracing is enabled")
	}

	if cfg.Notifications.Email.Enabled && (cfg.Notifications.Email.FromEmail == "" || cfg.Notifications.Email.ToEmail == "") {
		return fmt.Errorf("notifications.email.from_email and to_email are required when email is enabled")
	}
	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
