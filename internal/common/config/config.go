// internal/common/config/config.go
package config

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Cleantalk     CleantalkConfig         `mapstructure:"cleantalk"`
	Session       SessionConfig           `mapstructure:"session"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	// Language is the application locale, e.g. "ru-RU". It seeds the
	// CleanTalk response language when none is configured.
	Language string `mapstructure:"language"`
}

// CleantalkConfig holds the anti-spam service settings.
type CleantalkConfig struct {
	APIKey          string `mapstructure:"api_key"`
	APIURL          string `mapstructure:"api_url"`
	ResponseLang    string `mapstructure:"response_lang"`
	EnableLog       *bool  `mapstructure:"enable_log"`
	JSChallengeSalt string `mapstructure:"js_challenge_salt"`
	Timeout         int    `mapstructure:"timeout"` // milliseconds
}

// LogEnabled resolves the optional enable_log flag (default true).
func (c CleantalkConfig) LogEnabled() bool {
	if c.EnableLog == nil {
		return true
	}
	return *c.EnableLog
}

// SessionConfig selects and configures the end-user session backend.
type SessionConfig struct {
	Driver     string      `mapstructure:"driver"` // "redis" or "memory"
	Redis      RedisConfig `mapstructure:"redis"`
	KeyPrefix  string      `mapstructure:"key_prefix"`
	TTLSeconds int         `mapstructure:"ttl_seconds"`
	CookieName string      `mapstructure:"cookie_name"`
}

type RedisConfig struct {
	Address     string `mapstructure:"address"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	PoolSize    int    `mapstructure:"pool_size"`
	DialTimeout int    `mapstructure:"dial_timeout"` // milliseconds
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	// Addresses or CIDR ranges allowed to set X-Forwarded-For.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig enables span export to a Jaeger collector.
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// NotificationConfig routes ext.cleantalk log lines to AWS targets.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}
