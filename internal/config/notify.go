package config

import "time"

// NotifyConfig configures completion notifications.
type NotifyConfig struct {
	ResendAPIKey     string `env:"RESEND_API_KEY"`
	ResendAPIKeyFile string `env:"RESEND_API_KEY_FILE"`
	ResendAPIURL     string `env:"RESEND_API_URL" envDefault:"https://api.resend.com"`
	FromEmail        string `env:"FROM_EMAIL"     envDefault:"onboarding@resend.dev"`

	// WebhookURL receives job lifecycle and completion events as CloudEvents.
	WebhookURL     string `env:"NOTIFY_WEBHOOK_URL"`
	WebhookKey     string `env:"NOTIFY_WEBHOOK_KEY"`
	WebhookKeyFile string `env:"NOTIFY_WEBHOOK_KEY_FILE"`
}

// EmailEnabled reports whether the email channel is configured.
func (n NotifyConfig) EmailEnabled() bool {
	return n.ResendAPIKey != ""
}

// DispatcherConfig sizes the async webhook dispatcher.
type DispatcherConfig struct {
	BufferSize  int           `env:"BUFFER_SIZE"  envDefault:"1000"`
	Workers     int           `env:"WORKERS"      envDefault:"4"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.BufferSize <= 0 {
		d.BufferSize = 1000
	}
	if d.Workers <= 0 {
		d.Workers = 4
	}
	if d.HTTPTimeout <= 0 {
		d.HTTPTimeout = 10 * time.Second
	}
}
