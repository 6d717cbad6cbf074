package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "RELAYBOT"

// envOverrides are secrets that are usually kept out of the config file.
type envOverrides struct {
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	GatewayAppID   int    `envconfig:"GATEWAY_APP_ID"`
	GatewayAppHash string `envconfig:"GATEWAY_APP_HASH"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	DebugToken     string `envconfig:"DEBUG_TOKEN"`
}

// ApplyEnv overlays RELAYBOT_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if o.TelegramToken != "" {
		cfg.Telegram.Token = o.TelegramToken
	}
	if o.GatewayAppID != 0 {
		cfg.Gateway.AppID = o.GatewayAppID
	}
	if o.GatewayAppHash != "" {
		cfg.Gateway.AppHash = o.GatewayAppHash
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.DebugToken != "" {
		cfg.Debug.Token = o.DebugToken
	}
	return nil
}
