// Package bot is the controller behind the operator channel. It routes
// commands, button presses and typed input to the authorization and dialog
// state machines and renders their outcomes.
//
// Updates are handled one at a time per user, in arrival order, by a worker
// goroutine that exists while the user is active. Different users run
// concurrently.
package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"relaybot/internal/action"
	"relaybot/internal/auth"
	"relaybot/internal/dialog"
	"relaybot/internal/gateway"
	rtsup "relaybot/internal/runtime/supervisor"
	"relaybot/internal/session"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

// Channel is the outgoing half of the operator channel.
type Channel interface {
	SendText(ctx context.Context, chatID int64, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

type Accounts interface {
	Linked(ctx context.Context, userID int64) (bool, error)
	Open(ctx context.Context, userID int64) (gateway.Conn, error)
	Unlink(ctx context.Context, userID int64) ([]int64, error)
}

type Store interface {
	Exec(ctx context.Context, cmd storage.Command) error
	Get(ctx context.Context, id int64) (storage.Schedule, error)
	ListByUser(ctx context.Context, userID int64) ([]storage.Schedule, error)
}

// Jobs is the dispatch scheduler as seen by the controller.
type Jobs interface {
	Register(sc storage.Schedule) error
	Cancel(id int64) bool
}

type Config struct {
	// AllowedUserIDs restricts access. Empty allows everyone.
	AllowedUserIDs   []int64
	SchedulesPerPage int
	Location         func() *time.Location
	// HandlerTimeout bounds one update. 0 means 2m.
	HandlerTimeout time.Duration
	// QueueSize is the per-user backlog. 0 means 16.
	QueueSize int
	// IdleAfter retires a user's worker after this long without updates.
	IdleAfter time.Duration
}

type Deps struct {
	Channel  Channel
	Accounts Accounts
	Auth     *auth.Machine
	Wizard   *dialog.Wizard
	Store    Store
	Jobs     Jobs
	Sessions *session.Store
}

type Bot struct {
	cfg Config
	Deps
	log logx.Logger

	actions map[action.Kind]actionFunc
	handle  HandlerFunc

	mu      sync.Mutex
	allowed map[int64]bool
	workers map[int64]chan kit.Update
	sup     *rtsup.Supervisor
}

func New(cfg Config, deps Deps, log logx.Logger) *Bot {
	if cfg.SchedulesPerPage <= 0 {
		cfg.SchedulesPerPage = 5
	}
	if cfg.Location == nil {
		cfg.Location = func() *time.Location { return time.Local }
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 2 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = time.Minute
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{cfg: cfg, Deps: deps, log: log, workers: map[int64]chan kit.Update{}}
	b.SetAllowed(cfg.AllowedUserIDs)
	b.actions = b.actionTable()
	b.handle = Chain(b.route,
		MWPanicRecover(),
		MWRequestLog(),
		MWTimeout(cfg.HandlerTimeout),
	)
	return b
}

// SetAllowed replaces the allow-list. Safe during hot reload.
func (b *Bot) SetAllowed(ids []int64) {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	b.mu.Lock()
	b.allowed = m
	b.mu.Unlock()
}

func (b *Bot) isAllowed(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.allowed) == 0 || b.allowed[userID]
}

// Commands is the menu published to the operator channel.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "start", Description: "Main menu"},
		{Command: "cancel", Description: "Cancel the current action"},
	}
}

// Run consumes updates until ctx ends or updates is closed.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(b.log.With(logx.String("comp", "bot.workers"))),
		rtsup.WithCancelOnError(false),
	)
	b.mu.Lock()
	b.sup = sup
	b.mu.Unlock()
	b.log.Info("update dispatcher started")

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		b.mu.Lock()
		b.sup = nil
		b.workers = map[int64]chan kit.Update{}
		b.mu.Unlock()
		b.log.Info("update dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(sup.Context(), up)
		}
	}
}

// dispatch hands up to its user's worker, starting one if needed.
func (b *Bot) dispatch(ctx context.Context, up kit.Update) {
	uid := up.UserID()
	if uid == 0 {
		return
	}
	b.mu.Lock()
	ch, ok := b.workers[uid]
	if !ok {
		ch = make(chan kit.Update, b.cfg.QueueSize)
		b.workers[uid] = ch
		sup := b.sup
		sup.Go0("user.worker", func(c context.Context) { b.work(c, uid, ch) })
	}
	select {
	case ch <- up:
		b.mu.Unlock()
	default:
		b.mu.Unlock()
		b.log.Warn("user queue full, update dropped", logx.Int64("user", uid))
		if up.Callback != nil {
			_ = b.Channel.AnswerCallback(ctx, up.Callback.ID, textBusy)
		}
	}
}

// work drains one user's queue in order. It retires once idle; the map is
// checked under the lock so no update is lost.
func (b *Bot) work(ctx context.Context, uid int64, ch chan kit.Update) {
	idle := time.NewTimer(b.cfg.IdleAfter)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-ch:
			b.serve(ctx, uid, up)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(b.cfg.IdleAfter)
		case <-idle.C:
			b.mu.Lock()
			if len(ch) > 0 {
				b.mu.Unlock()
				idle.Reset(b.cfg.IdleAfter)
				continue
			}
			delete(b.workers, uid)
			b.mu.Unlock()
			return
		}
	}
}

func (b *Bot) serve(ctx context.Context, uid int64, up kit.Update) {
	req := &Request{Update: up, UserID: uid}
	switch {
	case up.Message != nil:
		req.ChatID = up.Message.ChatID
	case up.Callback != nil:
		req.ChatID = up.Callback.ChatID
	}
	if req.ChatID == 0 {
		req.ChatID = uid
	}
	req.Log = b.log.With(logx.Int64("user", uid), logx.String("kind", string(up.Kind)))
	if !b.isAllowed(uid) {
		b.deny(ctx, req)
		return
	}
	req.Session = b.Sessions.Get(uid)
	if err := b.handle(ctx, req); err != nil {
		b.send(ctx, req, textFailed, nil)
	}
}

func (b *Bot) deny(ctx context.Context, req *Request) {
	if cb := req.Update.Callback; cb != nil {
		_ = b.Channel.AnswerCallback(ctx, cb.ID, textDenied)
		return
	}
	b.send(ctx, req, textDenied, nil)
}

func (b *Bot) route(ctx context.Context, req *Request) error {
	switch req.Update.Kind {
	case kit.UpdateMessage:
		return b.onMessage(ctx, req)
	case kit.UpdateCallback:
		return b.onCallback(ctx, req)
	}
	return nil
}

func (b *Bot) onMessage(ctx context.Context, req *Request) error {
	msg := req.Update.Message
	text := strings.TrimSpace(msg.Text)
	if !msg.HasMedia && strings.HasPrefix(text, "/") {
		return b.onCommand(ctx, req, commandName(text))
	}
	switch s := req.Session; {
	case s.Auth != nil:
		return b.authInput(ctx, req, text)
	case s.Dialog != nil:
		return b.dialogInput(ctx, req, dialog.Input{Text: msg.Text, HasMedia: msg.HasMedia})
	}
	return b.showMenu(ctx, req, textUseButtons)
}

// commandName extracts "start" from "/start@relay_bot arg".
func commandName(text string) string {
	word, _, _ := strings.Cut(text, " ")
	word = strings.TrimPrefix(word, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word)
}

func (b *Bot) onCommand(ctx context.Context, req *Request, name string) error {
	switch name {
	case "start":
		b.clearFlows(req)
		return b.showMenu(ctx, req, "")
	case "cancel":
		b.clearFlows(req)
		return b.showMenu(ctx, req, textCancelled)
	}
	b.send(ctx, req, textUnknownCommand, nil)
	return nil
}

func (b *Bot) onCallback(ctx context.Context, req *Request) error {
	cb := req.Update.Callback
	a, err := action.Decode(cb.Data)
	if err != nil {
		req.Log.Debug("unknown callback", logx.String("data", cb.Data))
		_ = b.Channel.AnswerCallback(ctx, cb.ID, textUnknownAction)
		return nil
	}
	_ = b.Channel.AnswerCallback(ctx, cb.ID, "")
	req.Log = req.Log.With(logx.String("action", a.Kind.String()))
	return b.actions[a.Kind](ctx, req, a)
}

// clearFlows drops the user's session and closes a pending auth connection.
func (b *Bot) clearFlows(req *Request) {
	if old := b.Sessions.Clear(req.UserID); old != nil && old.Auth != nil {
		b.Auth.Cancel(old.Auth)
	}
	req.Session = b.Sessions.Get(req.UserID)
}

// send writes a new message to the request's chat.
func (b *Bot) send(ctx context.Context, req *Request, text string, kb keyboard) {
	opt := &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"}
	if kb != nil {
		opt.Markup = kb.Markup()
	}
	if _, err := b.Channel.SendText(ctx, req.ChatID, text, opt); err != nil {
		req.Log.Warn("send failed", logx.Err(err))
	}
}

// respond edits the message a button belongs to, or sends a new one.
func (b *Bot) respond(ctx context.Context, req *Request, text string, kb keyboard) {
	cb := req.Update.Callback
	if cb == nil || cb.MessageID == 0 {
		b.send(ctx, req, text, kb)
		return
	}
	opt := &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"}
	if kb != nil {
		opt.Markup = kb.Markup()
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := b.Channel.EditText(ctx, ref, text, opt); err != nil {
		req.Log.Debug("edit failed, sending instead", logx.Err(err))
		b.send(ctx, req, text, kb)
	}
}
