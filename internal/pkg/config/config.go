package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

// Config is built once at process start and handed to every component
// that needs settings. Core packages never read the environment themselves.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Cache     CacheConfig
	Auth      AuthConfig
	Mail      MailConfig
	Mpesa     MpesaConfig
	Card      CardConfig
	Paystack  PaystackConfig
	Storage   StorageConfig
	Watermark WatermarkConfig
	Orders    OrdersConfig
	Sweeper   SweeperConfig
	Kafka     KafkaConfig
	OAuth     OAuthConfig
	HCaptcha  HCaptchaConfig
}

type AppConfig struct {
	Env          string `validate:"oneof=dev test prod"`
	Host         string `validate:"required"`
	Port         string `validate:"required,numeric"`
	PublicDomain string
	FrontendURL  string `validate:"required,url"`
	Currency     string `validate:"required,len=3"`
	APIRateMax   int    `validate:"gte=0"`
	MetricsUser  string
	MetricsPass  string
}

type DBConfig struct {
	Driver   string `validate:"oneof=mysql postgres"`
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string
	Password string
	Name     string `validate:"required"`
}

type CacheConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	Password string
}

type AuthConfig struct {
	JWTSecret  string        `validate:"required,min=16"`
	AccessTTL  time.Duration `validate:"gt=0"`
	RefreshTTL time.Duration `validate:"gt=0"`
	VerifyTTL  time.Duration `validate:"gt=0"`
	LoginTTL   time.Duration `validate:"gt=0"`
	ResetTTL   time.Duration `validate:"gt=0"`
}

type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
	Async    bool
}

type MpesaConfig struct {
	BaseURL        string `validate:"required,url"`
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	DefaultPhone   string
}

type CardConfig struct {
	BaseURL   string `validate:"required,url"`
	SecretKey string
}

type PaystackConfig struct {
	BaseURL     string `validate:"required,url"`
	SecretKey   string
	CallbackURL string
}

type StorageConfig struct {
	Driver    string `validate:"oneof=local s3"`
	LocalRoot string
	TempDir   string `validate:"required"`
	S3        S3Config
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
}

type WatermarkConfig struct {
	Enabled  bool
	Template string `validate:"required"`
}

type OrdersConfig struct {
	PendingTTL      time.Duration `validate:"gt=0"`
	GatewayTimeout  time.Duration `validate:"gt=0"`
	GatewayRPS      int           `validate:"gt=0"`
	WebhookDeadline time.Duration `validate:"gt=0"`
}

type SweeperConfig struct {
	Enabled         bool
	Interval        time.Duration `validate:"gt=0"`
	TempMaxAge      time.Duration `validate:"gt=0"`
	CounterInterval time.Duration `validate:"gt=0"`
	MailWorkers     int           `validate:"gte=1"`
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type OAuthConfig struct {
	GoogleKey    string
	GoogleSecret string
}

type HCaptchaConfig struct {
	Secret string
}

// Load reads configuration from the environment (.env first, then OS),
// applying defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Env:          env.GetEnv("APP_ENV", "prod"),
			Host:         env.GetEnv("APP_HOST", "localhost"),
			Port:         env.GetEnv("APP_PORT", "4000"),
			PublicDomain: strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"),
			FrontendURL:  strings.TrimRight(env.GetEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			Currency:     strings.ToLower(env.GetEnv("CURRENCY", "kes")),
			APIRateMax:   env.GetInt("API_RATE_MAX", 120),
			MetricsUser:  env.GetEnv("METRICS_USER", ""),
			MetricsPass:  env.GetEnv("METRICS_PASSWORD", ""),
		},
		DB: DBConfig{
			Driver:   env.GetEnv("DB_DRIVER", "mysql"),
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Name:     env.GetEnv("DB_NAME", "reportfox"),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret:  env.GetEnv("JWT_SECRET", ""),
			AccessTTL:  env.GetDuration("JWT_ACCESS_TTL", 60*time.Minute),
			RefreshTTL: env.GetDuration("JWT_REFRESH_TTL", 24*time.Hour),
			VerifyTTL:  env.GetDuration("AUTH_VERIFY_TTL", 24*time.Hour),
			LoginTTL:   env.GetDuration("AUTH_LOGIN_TTL", 10*time.Minute),
			ResetTTL:   env.GetDuration("AUTH_RESET_TTL", time.Hour),
		},
		Mail: MailConfig{
			Host:     env.GetEnv("SMTP_HOST", ""),
			Port:     env.GetEnv("SMTP_PORT", "587"),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			Sender:   env.GetEnv("SMTP_SENDER", ""),
			Async:    env.GetBool("MAIL_ASYNC", true),
		},
		Mpesa: MpesaConfig{
			BaseURL:        env.GetEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:    env.GetEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: env.GetEnv("MPESA_CONSUMER_SECRET", ""),
			Shortcode:      env.GetEnv("MPESA_SHORTCODE", ""),
			Passkey:        env.GetEnv("MPESA_PASSKEY", ""),
			CallbackURL:    env.GetEnv("MPESA_CALLBACK_URL", ""),
			DefaultPhone:   env.GetEnv("MPESA_DEFAULT_PHONE", "254700000000"),
		},
		Card: CardConfig{
			BaseURL:   env.GetEnv("CARD_API_BASE_URL", "https://api.stripe.com"),
			SecretKey: env.GetEnv("CARD_SECRET_KEY", ""),
		},
		Paystack: PaystackConfig{
			BaseURL:     env.GetEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey:   env.GetEnv("PAYSTACK_SECRET_KEY", ""),
			CallbackURL: env.GetEnv("PAYSTACK_CALLBACK_URL", ""),
		},
		Storage: StorageConfig{
			Driver:    env.GetEnv("STORAGE_DRIVER", "local"),
			LocalRoot: env.GetEnv("STORAGE_LOCAL_ROOT", "./media/reports"),
			TempDir:   env.GetEnv("TEMP_DIR", "./media/temp"),
			S3: S3Config{
				Region:          env.GetEnv("S3_REGION", "eu-central-1"),
				Bucket:          env.GetEnv("S3_BUCKET", ""),
				AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
				Endpoint:        env.GetEnv("S3_ENDPOINT", ""),
				UsePathStyle:    env.GetBool("S3_USE_PATH_STYLE", false),
			},
		},
		Watermark: WatermarkConfig{
			Enabled:  env.GetBool("WATERMARK_ENABLED", true),
			Template: env.GetEnv("WATERMARK_TEXT_TEMPLATE", "Licensed to: {user_name} | {user_email}"),
		},
		Orders: OrdersConfig{
			PendingTTL:      env.GetDuration("ORDER_PENDING_TTL", 30*time.Minute),
			GatewayTimeout:  env.GetDuration("GATEWAY_TIMEOUT", 15*time.Second),
			GatewayRPS:      env.GetInt("GATEWAY_RPS", 10),
			WebhookDeadline: env.GetDuration("WEBHOOK_DEADLINE", 15*time.Second),
		},
		Sweeper: SweeperConfig{
			Enabled:         env.GetBool("SWEEPER_ENABLED", true),
			Interval:        env.GetDuration("SWEEPER_INTERVAL", 5*time.Minute),
			TempMaxAge:      env.GetDuration("TEMP_MAX_AGE", 24*time.Hour),
			CounterInterval: env.GetDuration("COUNTER_FLUSH_INTERVAL", time.Minute),
			MailWorkers:     env.GetInt("MAIL_WORKERS", 2),
		},
		Kafka: KafkaConfig{
			Brokers: env.GetList("KAFKA_BROKERS"),
			Topic:   env.GetEnv("KAFKA_TOPIC", "reportfox.events"),
		},
		OAuth: OAuthConfig{
			GoogleKey:    env.GetEnv("GOOGLE_KEY", ""),
			GoogleSecret: env.GetEnv("GOOGLE_SECRET", ""),
		},
		HCaptcha: HCaptchaConfig{
			Secret: env.GetEnv("HCAPTCHA_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags plus a few cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.Driver == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("invalid configuration: S3_BUCKET is required when STORAGE_DRIVER=s3")
	}
	if c.Storage.Driver == "local" && c.Storage.LocalRoot == "" {
		return fmt.Errorf("invalid configuration: STORAGE_LOCAL_ROOT is required when STORAGE_DRIVER=local")
	}
	return nil
}

// IsDev reports whether the app runs in development mode.
func (c *Config) IsDev() bool {
	return c.App.Env == "dev"
}

// BaseURL is the externally reachable origin of the API.
func (c *Config) BaseURL() string {
	if c.App.PublicDomain != "" {
		return c.App.PublicDomain
	}
	return "http://" + c.App.Host + ":" + c.App.Port
}
