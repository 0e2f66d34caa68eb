// Package config loads server settings from an optional YAML file and
// INSIGHTS_* environment variables, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Window    WindowConfig
	Log       LogConfig
	Notify    NotifyConfig
	Reminders ReminderConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Path string
}

type AuthConfig struct {
	JWTSecret string
}

type WindowConfig struct {
	Timezone string
}

type LogConfig struct {
	Mode string
}

type NotifyConfig struct {
	GatewayURL    string
	GatewayToken  string
	AdminAddress  string
	WebhookURL    string
	WebhookSecret string
	Timeout       time.Duration
	Currency      string
}

type ReminderConfig struct {
	Enabled  bool
	Interval time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "./data/insights.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("window.timezone", "America/Sao_Paulo")
	v.SetDefault("log.mode", "development")
	v.SetDefault("notify.gateway_url", "")
	v.SetDefault("notify.gateway_token", "")
	v.SetDefault("notify.admin_address", "")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_secret", "")
	v.SetDefault("notify.timeout", "3s")
	v.SetDefault("notify.currency", "R$")
	v.SetDefault("reminders.enabled", false)
	v.SetDefault("reminders.interval", "24h")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
}

// Load reads path if non-empty, otherwise looks for config.yaml in the
// working directory. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("INSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Server:   ServerConfig{Port: v.GetInt("server.port")},
		Database: DatabaseConfig{Path: v.GetString("database.path")},
		Auth:     AuthConfig{JWTSecret: v.GetString("auth.jwt_secret")},
		Window:   WindowConfig{Timezone: v.GetString("window.timezone")},
		Log:      LogConfig{Mode: v.GetString("log.mode")},
		Notify: NotifyConfig{
			GatewayURL:    v.GetString("notify.gateway_url"),
			GatewayToken:  v.GetString("notify.gateway_token"),
			AdminAddress:  v.GetString("notify.admin_address"),
			WebhookURL:    v.GetString("notify.webhook_url"),
			WebhookSecret: v.GetString("notify.webhook_secret"),
			Timeout:       v.GetDuration("notify.timeout"),
			Currency:      v.GetString("notify.currency"),
		},
		Reminders: ReminderConfig{
			Enabled:  v.GetBool("reminders.enabled"),
			Interval: v.GetDuration("reminders.interval"),
		},
		CORS: CORSConfig{AllowedOrigins: v.GetStringSlice("cors.allowed_origins")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Reminders.Enabled && c.Reminders.Interval <= 0 {
		return errors.New("reminders.interval must be positive")
	}
	return nil
}

// Location resolves window.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Window.Timezone)
	if err != nil {
		return nil, fmt.Errorf("window.timezone %q: %w", c.Window.Timezone, err)
	}
	return loc, nil
}
