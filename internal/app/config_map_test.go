package app

import (
	"context"
	"testing"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/storage"
	"relaybot/internal/task/engine"
	logx "relaybot/pkg/logx"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestMapTaskEngineConfigDefaults(t *testing.T) {
	t.Parallel()
	ec := mapTaskEngineConfig(baseConfig())
	if ec.Workers != 4 || ec.QueueSize != 256 || ec.HistorySize != 200 {
		t.Fatalf("engine config = %+v, want 4/256/200", ec)
	}

	cfg := baseConfig()
	cfg.TaskEngine = &config.TaskEngineConfig{Workers: 8}
	ec = mapTaskEngineConfig(cfg)
	if ec.Workers != 8 || ec.QueueSize != 256 {
		t.Fatalf("engine config = %+v, want workers 8 queue 256", ec)
	}
	if ec.DefaultTimeout != 0 {
		t.Fatalf("DefaultTimeout = %v, want 0", ec.DefaultTimeout)
	}
}

func TestMappedEngineGivesDispatchNoDeadline(t *testing.T) {
	t.Parallel()
	eng := engine.New(mapTaskEngineConfig(baseConfig()), logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop(context.Background())

	got := make(chan bool, 1)
	err := eng.Enqueue(engine.Task{Name: "schedule_1", Run: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		got <- ok
		return nil
	}})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case hasDeadline := <-got:
		if hasDeadline {
			t.Fatalf("dispatch context has a deadline, want none")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("task did not run")
	}
}

func TestMapDispatchConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		jitter  string
		at      string
		want    time.Duration
		wantAt  storage.Clock
		wantErr bool
	}{
		{name: "defaults", at: "00:00", want: config.DefaultJitter},
		{name: "custom", jitter: "15s", at: "03:30", want: 15 * time.Second, wantAt: storage.Clock{Hour: 3, Minute: 30}},
		{name: "bad time", at: "25:00", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			cfg.Scheduler.Jitter = tt.jitter
			cfg.Scheduler.ReconcileAt = tt.at
			dc, err := mapDispatchConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if dc.Jitter != tt.want || dc.ReconcileAt != tt.wantAt {
				t.Fatalf("dispatch config = %+v, want jitter %v at %v", dc, tt.want, tt.wantAt)
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		t.Fatalf("mapStorageConfig: %v", err)
	}
	if sc.Path != config.DefaultDBPath || sc.BusyTimeout != 5*time.Second {
		t.Fatalf("storage config = %+v", sc)
	}

	cfg.Storage.BusyTimeout = "soon"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatalf("bad busy_timeout accepted")
	}
}

func TestMapCodebook(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	if _, err := mapCodebook(cfg); err != nil {
		t.Fatalf("default codebook: %v", err)
	}
	cfg.Auth.Codebook = map[string]string{"ab": "1"}
	if _, err := mapCodebook(cfg); err == nil {
		t.Fatalf("two-letter key accepted")
	}
}

func TestMapLogConfig(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Logging.Chat = config.LoggingChat{Enabled: true, ChatID: -100, MinLevel: "warn"}
	lc := mapLogConfig(cfg)
	if !lc.Chat.Enabled || lc.Chat.ChatID != -100 || lc.Level != "info" {
		t.Fatalf("log config = %+v", lc)
	}
}
