package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	DB          DBConfig          `mapstructure:"db"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Twilio      TwilioConfig      `mapstructure:"twilio"`
	Redis       RedisConfig       `mapstructure:"redis"`
	App         AppConfig         `mapstructure:"app"`
	Debt        DebtConfig        `mapstructure:"debt"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	Paystack    PaystackConfig    `mapstructure:"paystack"`
	Flutterwave FlutterwaveConfig `mapstructure:"flutterwave"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	PayPal      PayPalConfig      `mapstructure:"paypal"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN возвращает строку подключения для драйвера GORM
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL возвращает строку подключения для golang-migrate
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TwilioConfig настраивает SMS. Пустой AccountSID отключает канал.
type TwilioConfig struct {
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	FromNumber string        `mapstructure:"from_number"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RedisConfig настраивает блокировку обработки вебхуков. Пустой Addr отключает Redis.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	UseTLS   bool          `mapstructure:"use_tls"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	FrontendURL string `mapstructure:"frontend_url"`
}

type DebtConfig struct {
	DefaultDeadlineHours  int    `mapstructure:"default_deadline_hours"`
	DefaultNagSensitivity string `mapstructure:"default_nag_sensitivity"`
}

type PaymentConfig struct {
	ReferencePrefix string        `mapstructure:"reference_prefix"`
	DefaultCurrency string        `mapstructure:"default_currency"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
}

type PaystackConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	BaseURL   string `mapstructure:"base_url"`
}

type FlutterwaveConfig struct {
	SecretKey   string `mapstructure:"secret_key"`
	WebhookHash string `mapstructure:"webhook_hash"`
	BaseURL     string `mapstructure:"base_url"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type PayPalConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	WebhookID    string `mapstructure:"webhook_id"`
	BaseURL      string `mapstructure:"base_url"`
}

// SchedulerConfig задает расписания задач в формате cron (минута час день месяц день_недели)
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	OverdueSchedule string `mapstructure:"overdue_schedule"`
	NagSchedule     string `mapstructure:"nag_schedule"`
	Concurrency     int    `mapstructure:"concurrency"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

var defaults = map[string]interface{}{
	"server.port": 8080,

	"db.host":     "localhost",
	"db.port":     5432,
	"db.user":     "postgres",
	"db.password": "postgres",
	"db.name":     "buddiepay",
	"db.sslmode":  "disable",

	"jwt.secret_key": "your-secret-key-here",

	"smtp.host":     "smtp.gmail.com",
	"smtp.port":     587,
	"smtp.username": "",
	"smtp.password": "",
	"smtp.from":     "noreply@buddiepay.app",

	"twilio.account_sid": "",
	"twilio.auth_token":  "",
	"twilio.from_number": "",
	"twilio.base_url":    "https://api.twilio.com",
	"twilio.timeout":     "10s",

	"redis.addr":     "",
	"redis.password": "",
	"redis.db":       0,
	"redis.use_tls":  false,
	"redis.lock_ttl": "30s",

	"app.name":         "BuddiePay",
	"app.frontend_url": "http://localhost:3000",

	"debt.default_deadline_hours":  24,
	"debt.default_nag_sensitivity": "medium",

	"payment.reference_prefix": "MDS",
	"payment.default_currency": "NGN",
	"payment.provider_timeout": "15s",

	"paystack.secret_key": "",
	"paystack.base_url":   "https://api.paystack.co",

	"flutterwave.secret_key":   "",
	"flutterwave.webhook_hash": "",
	"flutterwave.base_url":     "https://api.flutterwave.com/v3",

	"stripe.secret_key":     "",
	"stripe.webhook_secret": "",

	"paypal.client_id":     "",
	"paypal.client_secret": "",
	"paypal.webhook_id":    "",
	"paypal.base_url":      "https://api-m.sandbox.paypal.com",

	"scheduler.enabled":          true,
	"scheduler.overdue_schedule": "0 * * * *",
	"scheduler.nag_schedule":     "15 * * * *",
	"scheduler.concurrency":      8,

	"rate_limit.requests": 100,
	"rate_limit.window":   "15m",

	"log.level": "info",
	"log.dir":   "",
}

// NewConfig загружает конфигурацию: значения по умолчанию, затем файл
// из BUDDIEPAY_CONFIG (если задан), затем переменные окружения (DB_HOST, SMTP_PORT и т.д.)
func NewConfig() (*Config, error) {
	return Load(os.Getenv("BUDDIEPAY_CONFIG"))
}

// Load загружает конфигурацию из указанного yaml-файла. Пустой путь означает только окружение.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, без которых сервис не может работать
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("неверный порт сервера: %d", c.Server.Port)
	}
	if c.Debt.DefaultDeadlineHours <= 0 {
		return fmt.Errorf("debt.default_deadline_hours должен быть положительным")
	}
	switch c.Debt.DefaultNagSensitivity {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("неверная чувствительность напоминаний по умолчанию: %q", c.Debt.DefaultNagSensitivity)
	}
	if len(c.Payment.DefaultCurrency) != 3 {
		return fmt.Errorf("неверная валюта по умолчанию: %q", c.Payment.DefaultCurrency)
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = 1
	}
	if _, err := cron.ParseStandard(c.Scheduler.OverdueSchedule); err != nil {
		return fmt.Errorf("неверное расписание scheduler.overdue_schedule %q: %w", c.Scheduler.OverdueSchedule, err)
	}
	if _, err := cron.ParseStandard(c.Scheduler.NagSchedule); err != nil {
		return fmt.Errorf("неверное расписание scheduler.nag_schedule %q: %w", c.Scheduler.NagSchedule, err)
	}
	return nil
}
