package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"relaybot/internal/task/engine"
	logx "relaybot/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Moscow"
}

type Job func(ctx context.Context) error

type def struct {
	name    string
	spec    string
	jitter  time.Duration
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*def

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name   string
	Spec   string
	Jitter time.Duration
	Next   time.Time
	Prev   time.Time
}

type Snapshot struct {
	Timezone  string
	Running   bool
	Schedules []ScheduleInfo
	Engine    engine.Snapshot
}
