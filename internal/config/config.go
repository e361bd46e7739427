package config

import (
	"bytes"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Images     ImagesConfig     `mapstructure:"images"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	OAuth      OAuthConfig      `mapstructure:"oauth"`
	DataSync   DataSyncConfig   `mapstructure:"datasync"`
	Admin      AdminConfig      `mapstructure:"admin"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	AppURL    string `mapstructure:"app_url"`    // frontend, target of OAuth redirects
	PublicURL string `mapstructure:"public_url"` // this API, used to build OAuth callback URLs
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
	ActivityTopic  string   `mapstructure:"activity_topic"` // consumed by the clickhouse kafka engine
}

type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"` // optional; checked when set
}

type EncryptionConfig struct {
	Key string `mapstructure:"key"`
}

type RateLimitConfig struct {
	AIPerMinute      int `mapstructure:"ai_per_minute"`
	DefaultPerMinute int `mapstructure:"default_per_minute"`
}

type OpenAIConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	ImageModel string        `mapstructure:"image_model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxTokens  int           `mapstructure:"max_tokens"`
}

type ImagesConfig struct {
	DailyLimitFree int    `mapstructure:"daily_limit_free"`
	DailyLimitPro  int    `mapstructure:"daily_limit_pro"`
	DefaultSize    string `mapstructure:"default_size"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	PriceID       string `mapstructure:"price_id"`
}

type OAuthClientConfig struct {
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	DeveloperToken string `mapstructure:"developer_token"` // google ads only
}

type OAuthConfig struct {
	StateTTL  time.Duration                `mapstructure:"state_ttl"`
	Providers map[string]OAuthClientConfig `mapstructure:"providers"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type DataSyncConfig struct {
	Topic       string        `mapstructure:"topic"`
	WorkerCount int           `mapstructure:"worker_count"`
	MaxRows     int           `mapstructure:"max_rows"`
	TimeoutMs   int           `mapstructure:"timeout_ms"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

type AdminConfig struct {
	Emails []string `mapstructure:"emails"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (MOODBOARD_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (MOODBOARD_*), e.g. MOODBOARD_STRIPE_SECRET_KEY
	v.SetEnvPrefix("MOODBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the HTTP server cannot run without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if strings.TrimSpace(c.Encryption.Key) == "" {
		errs = append(errs, errors.New("encryption.key is required"))
	}
	if c.Images.DailyLimitFree < 0 || c.Images.DailyLimitPro < 0 {
		errs = append(errs, errors.New("images daily limits must not be negative"))
	}
	return errors.Join(errs...)
}

// IsAdminEmail reports whether email is listed in admin.emails (case-insensitive).
func (c Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, e := range c.Admin.Emails {
		if strings.ToLower(strings.TrimSpace(e)) == email {
			return true
		}
	}
	return false
}
