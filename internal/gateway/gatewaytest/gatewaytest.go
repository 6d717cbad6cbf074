// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"errors"
	"sync"
	"time"

	"relaybot/internal/gateway"
)

// Forward records one delivered message.
type Forward struct {
	Session string
	BotID   int64
	MsgID   int64
	To      int64
}

// Gateway simulates a single account. Exported fields configure it before
// use; recorded fields are read through accessors.
type Gateway struct {
	Phone    string
	Code     string
	Password string // empty: no second factor

	Chats         []gateway.Chat
	Denied        map[int64]bool
	Broken        map[int64]error
	LatestMessage int64

	// RateLimitOnce makes the next RequestCode fail with a RateLimitError.
	RateLimitOnce time.Duration

	// OnForward runs inside Forward before it is recorded.
	OnForward func(ctx context.Context, to int64) error

	mu        sync.Mutex
	forwards  []Forward
	connects  int
	loggedOut int
	open      int
}

func New(phone, code string) *Gateway {
	return &Gateway{Phone: phone, Code: code, LatestMessage: 1}
}

func (g *Gateway) Connect(_ context.Context, session []byte) (gateway.Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connects++
	g.open++
	return &conn{g: g, session: string(session), authorized: len(session) > 0}, nil
}

func (g *Gateway) Forwards() []Forward {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Forward(nil), g.forwards...)
}

func (g *Gateway) Connects() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connects
}

// Open is the number of connections not yet closed.
func (g *Gateway) Open() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

func (g *Gateway) LoggedOut() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loggedOut
}

// SessionFor is the session blob a successful sign-in produces.
func SessionFor(phone string) []byte { return []byte("session:" + phone) }

var errUnauthorized = errors.New("gatewaytest: connection not authorized")

type conn struct {
	g          *Gateway
	phone      string
	codeSent   bool
	needPass   bool
	authorized bool
	session    string
	closed     bool
}

func (c *conn) RequestCode(_ context.Context, phone string) error {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if w := c.g.RateLimitOnce; w > 0 {
		c.g.RateLimitOnce = 0
		return &gateway.RateLimitError{Wait: w}
	}
	if phone != c.g.Phone {
		return errors.New("PHONE_NUMBER_INVALID")
	}
	c.phone = phone
	c.codeSent = true
	return nil
}

func (c *conn) SignIn(_ context.Context, phone, code string) (gateway.SignInResult, error) {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if !c.codeSent || phone != c.phone {
		return 0, errors.New("PHONE_CODE_EXPIRED")
	}
	if code != c.g.Code {
		return 0, gateway.ErrInvalidCode
	}
	if c.g.Password != "" {
		c.needPass = true
		return gateway.NeedsPassword, nil
	}
	c.signedIn()
	return gateway.SignedIn, nil
}

func (c *conn) SignInPassword(_ context.Context, password string) error {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if !c.needPass {
		return errors.New("PASSWORD_NOT_REQUESTED")
	}
	if password != c.g.Password {
		return gateway.ErrInvalidPassword
	}
	c.signedIn()
	return nil
}

func (c *conn) signedIn() {
	c.authorized = true
	c.session = string(SessionFor(c.phone))
}

func (c *conn) ListChats(context.Context) ([]gateway.Chat, error) {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if !c.authorized {
		return nil, errUnauthorized
	}
	return append([]gateway.Chat(nil), c.g.Chats...), nil
}

func (c *conn) LatestSelfMessageID(context.Context, int64) (int64, error) {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if !c.authorized {
		return 0, errUnauthorized
	}
	if c.g.LatestMessage == 0 {
		return 0, gateway.ErrNoMessage
	}
	return c.g.LatestMessage, nil
}

func (c *conn) Forward(ctx context.Context, botID, msgID, to int64) error {
	c.g.mu.Lock()
	hook := c.g.OnForward
	authorized := c.authorized
	c.g.mu.Unlock()
	if !authorized {
		return errUnauthorized
	}
	if hook != nil {
		if err := hook(ctx, to); err != nil {
			return err
		}
	}

	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if c.g.Denied[to] {
		return gateway.ErrPermissionDenied
	}
	if err := c.g.Broken[to]; err != nil {
		return err
	}
	c.g.forwards = append(c.g.forwards, Forward{Session: c.session, BotID: botID, MsgID: msgID, To: to})
	return nil
}

func (c *conn) LogOut(context.Context) error {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if !c.authorized {
		return errUnauthorized
	}
	c.authorized = false
	c.session = ""
	c.g.loggedOut++
	return nil
}

func (c *conn) Session(context.Context) ([]byte, error) {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if !c.authorized {
		return nil, errUnauthorized
	}
	return []byte(c.session), nil
}

func (c *conn) Close() error {
	c.g.mu.Lock()
	defer c.g.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.g.open--
	}
	return nil
}
