// Package auth links a bot user to their messenger account: phone, login
// code typed through a codebook, optional password.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"relaybot/internal/gateway"
	logx "relaybot/pkg/logx"
)

type Step int

const (
	StepPhone Step = iota
	StepCode
	StepPassword
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepPhone:
		return "phone"
	case StepCode:
		return "code"
	case StepPassword:
		return "password"
	case StepDone:
		return "done"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

type Outcome int

const (
	OutcomeAskPhone Outcome = iota
	OutcomeAlreadyLinked
	OutcomeCodeSent
	OutcomeRateLimited
	OutcomeBadSymbol
	OutcomeInvalidCode
	OutcomePasswordNeeded
	OutcomeInvalidPassword
	OutcomeRetry
	OutcomeLinked
)

// Result tells the caller what to show. Wait is set for OutcomeRateLimited,
// Err for OutcomeRetry and OutcomeBadSymbol.
type Result struct {
	Outcome Outcome
	Wait    time.Duration
	Err     error
}

// Flow is one user's pending authorization. It holds an open connection
// until it is done or cancelled.
type Flow struct {
	UserID int64
	Step   Step

	phone string
	conn  gateway.Conn
}

// Accounts is the account registry as seen by the flow.
type Accounts interface {
	Linked(ctx context.Context, userID int64) (bool, error)
	Gateway() gateway.Gateway
	Bind(ctx context.Context, userID int64, conn gateway.Conn) error
}

type Machine struct {
	accounts Accounts
	codebook Codebook
	log      logx.Logger
}

func NewMachine(accounts Accounts, codebook Codebook, log logx.Logger) *Machine {
	if codebook == nil {
		codebook = DefaultCodebook()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Machine{accounts: accounts, codebook: codebook, log: log}
}

func (m *Machine) Codebook() Codebook { return m.codebook }

// Start opens a fresh connection for userID. It returns a nil Flow with
// OutcomeAlreadyLinked when the user is linked.
func (m *Machine) Start(ctx context.Context, userID int64) (*Flow, Result, error) {
	linked, err := m.accounts.Linked(ctx, userID)
	if err != nil {
		return nil, Result{}, err
	}
	if linked {
		return nil, Result{Outcome: OutcomeAlreadyLinked}, nil
	}
	conn, err := m.accounts.Gateway().Connect(ctx, nil)
	if err != nil {
		return nil, Result{}, fmt.Errorf("connect: %w", err)
	}
	return &Flow{UserID: userID, Step: StepPhone, conn: conn}, Result{Outcome: OutcomeAskPhone}, nil
}

// Advance feeds one user input to the flow. Every failure leaves the flow on
// the same step so the user can retry.
func (m *Machine) Advance(ctx context.Context, f *Flow, input string) Result {
	input = strings.TrimSpace(input)
	log := m.log.With(logx.Int64("user", f.UserID), logx.String("step", f.Step.String()))

	switch f.Step {
	case StepPhone:
		err := f.conn.RequestCode(ctx, input)
		if err != nil {
			var rl *gateway.RateLimitError
			if errors.As(err, &rl) {
				return Result{Outcome: OutcomeRateLimited, Wait: rl.Wait}
			}
			log.Warn("request code failed", logx.Err(err))
			return Result{Outcome: OutcomeRetry, Err: err}
		}
		f.phone = input
		f.Step = StepCode
		return Result{Outcome: OutcomeCodeSent}

	case StepCode:
		code, err := m.codebook.Decode(input)
		if err != nil {
			return Result{Outcome: OutcomeBadSymbol, Err: err}
		}
		res, err := f.conn.SignIn(ctx, f.phone, code)
		switch {
		case errors.Is(err, gateway.ErrInvalidCode):
			return Result{Outcome: OutcomeInvalidCode}
		case err != nil:
			var rl *gateway.RateLimitError
			if errors.As(err, &rl) {
				return Result{Outcome: OutcomeRateLimited, Wait: rl.Wait}
			}
			log.Warn("sign in failed", logx.Err(err))
			return Result{Outcome: OutcomeRetry, Err: err}
		case res == gateway.NeedsPassword:
			f.Step = StepPassword
			return Result{Outcome: OutcomePasswordNeeded}
		}
		return m.link(ctx, f)

	case StepPassword:
		err := f.conn.SignInPassword(ctx, input)
		if errors.Is(err, gateway.ErrInvalidPassword) {
			return Result{Outcome: OutcomeInvalidPassword}
		}
		if err != nil {
			log.Warn("password sign in failed", logx.Err(err))
			return Result{Outcome: OutcomeRetry, Err: err}
		}
		return m.link(ctx, f)
	}
	return Result{Outcome: OutcomeRetry, Err: fmt.Errorf("flow is %s", f.Step)}
}

func (m *Machine) link(ctx context.Context, f *Flow) Result {
	if err := m.accounts.Bind(ctx, f.UserID, f.conn); err != nil {
		m.log.Error("link failed", logx.Int64("user", f.UserID), logx.Err(err))
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	f.Step = StepDone
	m.Cancel(f)
	return Result{Outcome: OutcomeLinked}
}

// Cancel closes the flow's connection. It is safe to call more than once.
func (m *Machine) Cancel(f *Flow) {
	if f == nil || f.conn == nil {
		return
	}
	_ = f.conn.Close()
	f.conn = nil
}
