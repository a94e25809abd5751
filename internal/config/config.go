package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port      string `mapstructure:"port"`
	DBDSN     string `mapstructure:"db_dsn"`
	DBMigrate bool   `mapstructure:"db_migrate"`

	RedisAddr       string `mapstructure:"redis_addr"`
	RedisPassword   string `mapstructure:"redis_password"`
	RedisDB         int    `mapstructure:"redis_db"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	RateLimitPerMinute        int `mapstructure:"rate_limit_per_min"`
	RateLimitBurst            int `mapstructure:"rate_limit_burst"`
	BookingRateLimitPerMinute int `mapstructure:"booking_rate_limit_per_min"`
	BookingRateLimitBurst     int `mapstructure:"booking_rate_limit_burst"`
	// TrustedProxies is a comma-separated list of IPs or CIDRs allowed to set
	// X-Forwarded-For.
	TrustedProxies string `mapstructure:"trusted_proxies"`

	AdminIdentity string `mapstructure:"admin_identity"`
	AdminToken    string `mapstructure:"admin_token"`

	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`

	AWSRegion            string `mapstructure:"aws_region"`
	NotifyEmailProvider  string `mapstructure:"notify_email_provider"`
	NotifySMSProvider    string `mapstructure:"notify_sms_provider"`
	NotifyEmailFrom      string `mapstructure:"notify_email_from"`
	NotifyEmailTo        string `mapstructure:"notify_email_to"`
	NotifySMSCountryCode string `mapstructure:"notify_sms_country_code"`

	OutboxPollIntervalSeconds int `mapstructure:"outbox_poll_interval_seconds"`
	OutboxBatchSize           int `mapstructure:"outbox_batch_size"`

	OTLPEndpoint string `mapstructure:"otel_exporter_otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otel_exporter_otlp_insecure"`

	SiteURL string `mapstructure:"site_url"`
}

var defaults = map[string]interface{}{
	"port":                         "8080",
	"db_dsn":                       "",
	"db_migrate":                   true,
	"redis_addr":                   "",
	"redis_password":               "",
	"redis_db":                     0,
	"cache_ttl_seconds":            60,
	"log_level":                    "info",
	"log_format":                   "json",
	"rate_limit_per_min":           120,
	"rate_limit_burst":             30,
	"booking_rate_limit_per_min":   10,
	"booking_rate_limit_burst":     5,
	"trusted_proxies":              "",
	"admin_identity":               "",
	"admin_token":                  "",
	"kafka_brokers":                "",
	"kafka_topic":                  "service-requests",
	"aws_region":                   "ap-south-1",
	"notify_email_provider":        "log",
	"notify_sms_provider":          "log",
	"notify_email_from":            "",
	"notify_email_to":              "",
	"notify_sms_country_code":      "+91",
	"outbox_poll_interval_seconds": 5,
	"outbox_batch_size":            50,
	"otel_exporter_otlp_endpoint":  "",
	"otel_exporter_otlp_insecure":  false,
	"site_url":                     "",
}

// Load reads .env (when present), an optional YAML file named by CONFIG_FILE,
// and the process environment, in increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid port number, got %q", c.Port))
	}
	for name, provider := range map[string]string{"NOTIFY_EMAIL_PROVIDER": c.NotifyEmailProvider, "NOTIFY_SMS_PROVIDER": c.NotifySMSProvider} {
		switch provider {
		case "log", "noop", "ses", "sns":
		default:
			errs = append(errs, fmt.Errorf("%s %q is not supported", name, provider))
		}
	}
	if c.NotifyEmailProvider == "ses" && (c.NotifyEmailFrom == "" || c.NotifyEmailTo == "") {
		errs = append(errs, errors.New("NOTIFY_EMAIL_FROM and NOTIFY_EMAIL_TO are required for the ses provider"))
	}
	if c.AdminToken != "" && c.AdminIdentity == "" {
		errs = append(errs, errors.New("ADMIN_TOKEN requires ADMIN_IDENTITY"))
	}
	return errors.Join(errs...)
}

func (c Config) CacheTTL() time.Duration {
	return seconds(c.CacheTTLSeconds)
}

func (c Config) OutboxPollInterval() time.Duration {
	return seconds(c.OutboxPollIntervalSeconds)
}

func (c Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

func (c Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func seconds(value int) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}
