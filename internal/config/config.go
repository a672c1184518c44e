// Package config loads the scheduling engine's runtime configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the scheduling engine.
type Config struct {
	Environment string   `mapstructure:"environment"`
	Port        int      `mapstructure:"port"`
	LogLevel    string   `mapstructure:"log_level"`
	Database    Database `mapstructure:"database"`
	Redis       Redis    `mapstructure:"redis"`
	NATS        NATS     `mapstructure:"nats"`
	Business    Business `mapstructure:"business"`

	Notifications Notifications `mapstructure:"notifications"`
	Chat          ChatAPI       `mapstructure:"chat"`
}

// Notifications locates the outbound email delivery service and the
// public base URL confirmation links are built on.
type Notifications struct {
	ServiceURL     string `mapstructure:"service_url"`
	ConfirmBaseURL string `mapstructure:"confirm_base_url"`
}

// ChatAPI holds the Meta-style chat provider settings. AccessToken comes
// from the environment, never from a config file.
type ChatAPI struct {
	APIURL             string `mapstructure:"api_url"`
	PhoneNumberID      string `mapstructure:"phone_number_id"`
	AccessToken        string `mapstructure:"access_token"`
	TemplateLanguage   string `mapstructure:"template_language"`
	WebhookVerifyToken string `mapstructure:"webhook_verify_token"`
}

// Database holds database connection settings.
type Database struct {
	URL string `mapstructure:"url"`
}

// Redis holds cache connection settings.
type Redis struct {
	URL string `mapstructure:"url"`
}

// NATS holds event-bus connection settings.
type NATS struct {
	URL string `mapstructure:"url"`
}

// Business holds the domain-specific settings that govern scheduling rules.
type Business struct {
	// TimeZone is the single configured business time zone (IANA name)
	// every local-time computation in the engine is anchored to.
	TimeZone string `mapstructure:"time_zone"`

	// SlotLengthMinutes is the fixed slot length used by the slot
	// generator, uniform across professionals and services.
	SlotLengthMinutes int `mapstructure:"slot_length_minutes"`

	// BookingLeadTimeDays is the minimum number of days between now and
	// the earliest bookable slot date.
	BookingLeadTimeDays int `mapstructure:"booking_lead_time_days"`

	// ConfirmationTTLEmail is how long a WAITING_CLIENT token issued when a
	// new reservation requests client confirmation (the email path) stays
	// valid.
	ConfirmationTTLEmail time.Duration `mapstructure:"confirmation_ttl_email"`

	// ConfirmationTTLChat is the shorter TTL used for links issued by admin
	// approval and delivered over chat.
	ConfirmationTTLChat time.Duration `mapstructure:"confirmation_ttl_chat"`

	// MaxFutureBookingDays bounds how far out a client may request a date,
	// enforced by the chat FSM's SELECT_DATE state.
	MaxFutureBookingDays int `mapstructure:"max_future_booking_days"`

	// PhoneCountryPrefix is prefixed onto bare subscriber numbers during
	// phone normalization (e.g. "56" for Chile).
	PhoneCountryPrefix string `mapstructure:"phone_country_prefix"`
}

// Location parses the configured business time zone, falling back to UTC.
func (b Business) Location() *time.Location {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from ./configs/config.yaml (if present),
// environment variables, and built-in defaults. Environment variables
// override the file, and the file overrides the defaults.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("")
	viper.AutomaticEnv()

	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("nats.url", "NATS_URL")
	viper.BindEnv("environment", "ENVIRONMENT")
	viper.BindEnv("log_level", "LOG_LEVEL")
	viper.BindEnv("business.time_zone", "BUSINESS_TIME_ZONE")
	viper.BindEnv("business.phone_country_prefix", "PHONE_COUNTRY_PREFIX")
	viper.BindEnv("notifications.service_url", "NOTIFICATION_SERVICE_URL")
	viper.BindEnv("chat.api_url", "CHAT_API_URL")
	viper.BindEnv("chat.phone_number_id", "CHAT_PHONE_NUMBER_ID")
	viper.BindEnv("chat.access_token", "CHAT_ACCESS_TOKEN")
	viper.BindEnv("chat.webhook_verify_token", "CHAT_WEBHOOK_VERIFY_TOKEN")
	viper.BindEnv("notifications.confirm_base_url", "CONFIRM_BASE_URL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("port", 8080)
	viper.SetDefault("log_level", "info")

	viper.SetDefault("database.url", "postgres://localhost:5432/revitek_scheduling?sslmode=disable")
	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("nats.url", "nats://localhost:4222")

	viper.SetDefault("business.time_zone", "America/Santiago")
	viper.SetDefault("business.slot_length_minutes", 60)
	viper.SetDefault("business.booking_lead_time_days", 1)
	viper.SetDefault("business.confirmation_ttl_email", "48h")
	viper.SetDefault("business.confirmation_ttl_chat", "2h")
	viper.SetDefault("business.max_future_booking_days", 90)
	viper.SetDefault("business.phone_country_prefix", "56")

	viper.SetDefault("notifications.service_url", "")
	viper.SetDefault("notifications.confirm_base_url", "http://localhost:8080")
	viper.SetDefault("chat.api_url", "https://graph.facebook.com/v18.0")
	viper.SetDefault("chat.template_language", "es")
}
