package mtproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"relaybot/internal/gateway"
)

func (c *conn) RequestCode(ctx context.Context, phone string) error {
	sent, err := c.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return mapErr("send code", err)
	}
	switch s := sent.(type) {
	case *tg.AuthSentCode:
		c.codeHash = s.PhoneCodeHash
		return nil
	default:
		return fmt.Errorf("send code: unexpected response %T", sent)
	}
}

func (c *conn) SignIn(ctx context.Context, phone, code string) (gateway.SignInResult, error) {
	if c.codeHash == "" {
		return 0, errors.New("sign in: code was not requested")
	}
	_, err := c.client.Auth().SignIn(ctx, phone, code, c.codeHash)
	switch {
	case err == nil:
		return gateway.SignedIn, nil
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		return gateway.NeedsPassword, nil
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EMPTY"):
		return 0, gateway.ErrInvalidCode
	default:
		return 0, mapErr("sign in", err)
	}
}

func (c *conn) SignInPassword(ctx context.Context, password string) error {
	_, err := c.client.Auth().Password(ctx, password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrPasswordInvalid):
		return gateway.ErrInvalidPassword
	default:
		return mapErr("password", err)
	}
}

func mapErr(op string, err error) error {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &gateway.RateLimitError{Wait: d}
	}
	if tgerr.Is(err, "CHAT_ADMIN_REQUIRED", "CHAT_WRITE_FORBIDDEN", "CHAT_SEND_PLAIN_FORBIDDEN", "USER_BANNED_IN_CHANNEL", "CHANNEL_PRIVATE") {
		return fmt.Errorf("%s: %w: %v", op, gateway.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
