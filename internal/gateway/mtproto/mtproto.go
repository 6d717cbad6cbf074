// Package mtproto implements gateway.Gateway on top of gotd/td.
package mtproto

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"relaybot/internal/gateway"
	logx "relaybot/pkg/logx"
)

type Config struct {
	AppID         int
	AppHash       string
	DeviceModel   string
	SystemVersion string
	// Debug enables gotd's own zap logging.
	Debug bool
}

type Gateway struct {
	cfg Config
	log logx.Logger
	zap *zap.Logger
}

func New(cfg Config, log logx.Logger) (*Gateway, error) {
	if cfg.AppID <= 0 || cfg.AppHash == "" {
		return nil, errors.New("mtproto: app_id and app_hash are required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	zl := zap.NewNop()
	if cfg.Debug {
		z, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("mtproto: zap logger: %w", err)
		}
		zl = z.Named("gotd")
	}
	return &Gateway{cfg: cfg, log: log, zap: zl}, nil
}

// Close flushes the gotd logger.
func (g *Gateway) Close() error {
	_ = g.zap.Sync()
	return nil
}

// Connect starts a client and returns once it is connected. The client runs
// until Close.
func (g *Gateway) Connect(ctx context.Context, blob []byte) (gateway.Conn, error) {
	store := &memorySession{}
	if len(blob) > 0 {
		store.data = append([]byte(nil), blob...)
	}
	client := telegram.NewClient(g.cfg.AppID, g.cfg.AppHash, telegram.Options{
		SessionStorage: store,
		Logger:         g.zap,
		Device: telegram.DeviceConfig{
			DeviceModel:   g.cfg.DeviceModel,
			SystemVersion: g.cfg.SystemVersion,
		},
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c := &conn{
		client: client,
		store:  store,
		log:    g.log,
		cancel: cancel,
		done:   make(chan struct{}),
		peers:  map[int64]tg.InputPeerClass{},
	}
	ready := make(chan struct{})
	go func() {
		defer close(c.done)
		c.runErr = client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return nil
		})
	}()

	select {
	case <-ready:
		return c, nil
	case <-c.done:
		cancel()
		if c.runErr == nil {
			c.runErr = errors.New("client stopped")
		}
		return nil, fmt.Errorf("mtproto connect: %w", c.runErr)
	case <-ctx.Done():
		cancel()
		<-c.done
		return nil, ctx.Err()
	}
}

type conn struct {
	client *telegram.Client
	store  *memorySession
	log    logx.Logger

	cancel context.CancelFunc
	done   chan struct{}
	runErr error

	closeOnce sync.Once

	codeHash string
	peers    map[int64]tg.InputPeerClass
}

func (c *conn) api() *tg.Client { return c.client.API() }

func (c *conn) Session(ctx context.Context) ([]byte, error) {
	return c.store.LoadSession(ctx)
}

func (c *conn) LogOut(ctx context.Context) error {
	if _, err := c.api().AuthLogOut(ctx); err != nil {
		return fmt.Errorf("log out: %w", err)
	}
	return nil
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

// memorySession keeps the gotd session in memory; the blob is persisted by
// the caller.
type memorySession struct {
	mu   sync.Mutex
	data []byte
}

func (s *memorySession) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *memorySession) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	return nil
}

func randomID() int64 { return rand.Int64() }
