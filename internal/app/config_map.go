package app

import (
	"fmt"
	"time"

	"relaybot/internal/auth"
	"relaybot/internal/config"
	"relaybot/internal/dispatch"
	"relaybot/internal/gateway/mtproto"
	"relaybot/internal/observability/pprof"
	"relaybot/internal/storage"
	"relaybot/internal/task/engine"
	logx "relaybot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ChatID:     cfg.Logging.Chat.ChatID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}, nil
}

func mapGatewayConfig(cfg *config.Config) mtproto.Config {
	return mtproto.Config{
		AppID:         cfg.Gateway.AppID,
		AppHash:       cfg.Gateway.AppHash,
		DeviceModel:   cfg.Gateway.DeviceModel,
		SystemVersion: cfg.Gateway.SystemVersion,
		Debug:         cfg.Gateway.Debug,
	}
}

// mapTaskEngineConfig fills engine defaults: 4 workers, a 256 slot queue and
// 200 history items. No default timeout: a dispatch runs until every chat
// has been tried, however long the forwards take.
func mapTaskEngineConfig(cfg *config.Config) engine.Config {
	ec := engine.Config{Workers: 4, QueueSize: 256, HistorySize: 200}
	if te := cfg.TaskEngine; te != nil {
		if te.Workers > 0 {
			ec.Workers = te.Workers
		}
		if te.QueueSize > 0 {
			ec.QueueSize = te.QueueSize
		}
		if te.HistorySize > 0 {
			ec.HistorySize = te.HistorySize
		}
	}
	return ec
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	at, err := storage.ParseClock(cfg.Scheduler.ReconcileAt)
	if err != nil {
		return dispatch.Config{}, fmt.Errorf("scheduler.reconcile_at: %w", err)
	}
	return dispatch.Config{Jitter: cfg.Scheduler.JitterOrDefault(), ReconcileAt: at}, nil
}

func mapCodebook(cfg *config.Config) (auth.Codebook, error) {
	cb, err := auth.CodebookFrom(cfg.Auth.Codebook)
	if err != nil {
		return nil, fmt.Errorf("auth.codebook: %w", err)
	}
	return cb, nil
}

func mapDebugConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}
}
