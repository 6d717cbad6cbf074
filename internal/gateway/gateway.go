// Package gateway describes the user-account client the bot acts through:
// authorization, chat listing and message forwarding.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCode      = errors.New("invalid code")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoMessage        = errors.New("no message from user in bot chat")
	ErrPeerUnknown      = errors.New("peer not known to the account")
)

// RateLimitError asks the caller to wait before retrying.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry in %d seconds", int(e.Wait.Seconds()))
}

type SignInResult int

const (
	SignedIn SignInResult = iota
	NeedsPassword
)

// Chat is a dialog the account can post to. IDs use the Bot API convention:
// negative for groups, -100... for channels.
type Chat struct {
	ID    int64
	Title string
}

// Gateway opens connections. A nil session starts an unauthorized one.
type Gateway interface {
	Connect(ctx context.Context, session []byte) (Conn, error)
}

// Conn is one live account connection. It is not safe for concurrent use.
type Conn interface {
	RequestCode(ctx context.Context, phone string) error
	SignIn(ctx context.Context, phone, code string) (SignInResult, error)
	SignInPassword(ctx context.Context, password string) error

	ListChats(ctx context.Context) ([]Chat, error)
	// LatestSelfMessageID returns the newest message the account sent to botID.
	LatestSelfMessageID(ctx context.Context, botID int64) (int64, error)
	// Forward copies message msgID from the chat with botID into chat to.
	Forward(ctx context.Context, botID, msgID, to int64) error

	LogOut(ctx context.Context) error
	// Session returns the serialized authorization for later Connect calls.
	Session(ctx context.Context) ([]byte, error)
	Close() error
}
