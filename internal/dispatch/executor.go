package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"relaybot/internal/eventbus"
	"relaybot/internal/gateway"
	logx "relaybot/pkg/logx"
)

// Dispatch is one firing of a schedule.
type Dispatch struct {
	ScheduleID int64
	UserID     int64
	Message    int64
	Chats      []int64
}

// Report lists chat ids by outcome.
type Report struct {
	Delivered []int64
	Denied    []int64
	Failed    []int64
}

// Connector opens a user's gateway connection.
type Connector interface {
	Open(ctx context.Context, userID int64) (gateway.Conn, error)
}

// Notifier sends a plain message to a bot user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Executor forwards a schedule's message to each of its chats and tells the
// user where it went.
type Executor struct {
	conns    Connector
	notifier Notifier
	botID    int64
	log      logx.Logger
	bus      eventbus.Bus
}

func NewExecutor(conns Connector, notifier Notifier, botID int64, log logx.Logger, bus eventbus.Bus) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Executor{conns: conns, notifier: notifier, botID: botID, log: log, bus: bus}
}

// Execute delivers d. Per-chat failures are skipped; the returned error is
// only for failures that stop the whole dispatch.
func (e *Executor) Execute(ctx context.Context, d Dispatch) (Report, error) {
	log := e.log.With(logx.Int64("schedule", d.ScheduleID), logx.Int64("user", d.UserID))
	var rep Report

	conn, err := e.conns.Open(ctx, d.UserID)
	if err != nil {
		return rep, fmt.Errorf("open connection: %w", err)
	}
	defer conn.Close()

	titles := map[int64]string{}
	if chats, err := conn.ListChats(ctx); err == nil {
		for _, c := range chats {
			titles[c.ID] = c.Title
		}
	} else {
		log.Debug("chat titles unavailable", logx.Err(err))
	}

	for _, chat := range d.Chats {
		err := conn.Forward(ctx, e.botID, d.Message, chat)
		switch {
		case err == nil:
			rep.Delivered = append(rep.Delivered, chat)
		case errors.Is(err, gateway.ErrPermissionDenied):
			rep.Denied = append(rep.Denied, chat)
			log.Info("forward skipped: no permission", logx.Int64("chat", chat))
		default:
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Failed = append(rep.Failed, chat)
			log.Warn("forward failed", logx.Int64("chat", chat), logx.Err(err))
		}
	}

	e.bus.Publish(eventbus.Event{Type: eventbus.TypeDelivery, Data: rep})
	if err := e.notifier.Notify(ctx, d.UserID, confirmation(rep, titles)); err != nil {
		log.Warn("confirmation not sent", logx.Err(err))
	}
	log.Info("dispatch finished",
		logx.Int("delivered", len(rep.Delivered)),
		logx.Int("denied", len(rep.Denied)),
		logx.Int("failed", len(rep.Failed)),
	)
	return rep, nil
}

func confirmation(rep Report, titles map[int64]string) string {
	if len(rep.Delivered) == 0 {
		return "Scheduled message could not be delivered to any chat."
	}
	names := make([]string, 0, len(rep.Delivered))
	for _, id := range rep.Delivered {
		if t := strings.TrimSpace(titles[id]); t != "" {
			names = append(names, t)
			continue
		}
		names = append(names, strconv.FormatInt(id, 10))
	}
	return "Scheduled message sent to: " + strings.Join(names, ", ")
}
