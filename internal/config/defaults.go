package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTimezone     = "Europe/Moscow"
	DefaultJitter       = 60 * time.Second
	DefaultReconcileAt  = "00:00"
	DefaultPageSize     = 5
	DefaultDBPath       = "./data/relaybot.db"
	DefaultSessionsPath = "./data/sessions.json"
)

// ApplyDefaults fills zero values in place.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Scheduler.Timezone) == "" {
		cfg.Scheduler.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(cfg.Scheduler.ReconcileAt) == "" {
		cfg.Scheduler.ReconcileAt = DefaultReconcileAt
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultDBPath
	}
	if strings.TrimSpace(cfg.Storage.SessionsPath) == "" {
		cfg.Storage.SessionsPath = DefaultSessionsPath
	}
	if cfg.Dialog.ChatsPerPage <= 0 {
		cfg.Dialog.ChatsPerPage = DefaultPageSize
	}
	if cfg.Dialog.SchedulesPerPage <= 0 {
		cfg.Dialog.SchedulesPerPage = DefaultPageSize
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate reports every problem found, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Gateway.AppID <= 0 {
		errs = append(errs, errors.New("gateway.app_id is required"))
	}
	if strings.TrimSpace(cfg.Gateway.AppHash) == "" {
		errs = append(errs, errors.New("gateway.app_hash is required"))
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}
	if _, err := ParseDurationField("scheduler.jitter", cfg.Scheduler.Jitter); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := validHHMM(cfg.Scheduler.ReconcileAt); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.reconcile_at: %w", err))
	}
	for k, v := range cfg.Auth.Codebook {
		if len([]rune(k)) != 1 {
			errs = append(errs, fmt.Errorf("auth.codebook: key %q must be a single letter", k))
		}
		if len(v) != 1 || v[0] < '0' || v[0] > '9' {
			errs = append(errs, fmt.Errorf("auth.codebook: value %q for %q must be a single digit", v, k))
		}
	}
	return errors.Join(errs...)
}

// JitterOrDefault returns the configured jitter, or DefaultJitter when unset.
func (c SchedulerConfig) JitterOrDefault() time.Duration {
	if strings.TrimSpace(c.Jitter) == "" {
		return DefaultJitter
	}
	d, err := ParseDurationField("scheduler.jitter", c.Jitter)
	if err != nil {
		return DefaultJitter
	}
	return d
}

func validHHMM(s string) error {
	if _, err := time.Parse("15:04", strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return nil
}
