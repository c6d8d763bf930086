package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Settings is the process configuration. The webhook target and its basic
// auth credentials are required; the process refuses to start without them
// rather than run against an invalid external target.
type Settings struct {
	Addr            string        `mapstructure:"addr"`
	WebhookURL      string        `mapstructure:"webhook_url"`
	WebhookUsername string        `mapstructure:"webhook_username"`
	WebhookPassword string        `mapstructure:"webhook_password"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	StreamDeadline  time.Duration `mapstructure:"stream_deadline"`
	BridgeBuffer    int           `mapstructure:"bridge_buffer"`
}

// ConfigurationError lists required settings that are absent. Fatal at
// startup.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// Load reads settings from an optional marionette.yaml and the environment.
// Environment names keep the legacy N8N_* fallbacks for compatibility with
// older deployments.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("marionette")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/marionette")

	v.SetDefault("addr", ":8000")
	v.SetDefault("request_timeout", 60*time.Second)
	v.SetDefault("stream_deadline", 5*time.Minute)
	v.SetDefault("bridge_buffer", 64)

	_ = v.BindEnv("webhook_url", "WEBHOOK_URL", "N8N_WEBHOOK_URL")
	_ = v.BindEnv("webhook_username", "WEBHOOK_USERNAME", "N8N_USERNAME")
	_ = v.BindEnv("webhook_password", "WEBHOOK_PASSWORD", "N8N_PASSWORD")
	_ = v.BindEnv("addr", "MARIONETTE_ADDR")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "unmarshal settings")
	}
	return s, nil
}

// Validate reports missing required settings as a *ConfigurationError.
func (s *Settings) Validate() error {
	var missing []string
	if s.WebhookURL == "" {
		missing = append(missing, "webhook_url (WEBHOOK_URL or N8N_WEBHOOK_URL)")
	}
	if s.WebhookUsername == "" {
		missing = append(missing, "webhook_username (WEBHOOK_USERNAME or N8N_USERNAME)")
	}
	if s.WebhookPassword == "" {
		missing = append(missing, "webhook_password (WEBHOOK_PASSWORD or N8N_PASSWORD)")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}
