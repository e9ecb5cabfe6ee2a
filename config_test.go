package authgate

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty device ID", func(c *Config) { c.Token.DeviceID = "" }},
		{"negative persist grace", func(c *Config) { c.Token.PersistGrace = -time.Hour }},
		{"zero watchdog interval", func(c *Config) { c.Watchdog.Interval = 0 }},
		{"zero warn threshold", func(c *Config) { c.Watchdog.WarnBefore = 0 }},
		{"warn threshold below interval", func(c *Config) {
			c.Watchdog.Interval = time.Minute
			c.Watchdog.WarnBefore = time.Second
		}},
		{"zero audit buffer", func(c *Config) { c.Audit.BufferSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestDisabledSectionsSkipValidation(t *testing.T) {
	cfg := defaultConfig()
	cfg.Watchdog = WatchdogConfig{}
	cfg.Audit = AuditConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled sections still validated: %v", err)
	}
}
