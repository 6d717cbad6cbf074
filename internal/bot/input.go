package bot

import (
	"context"
	"fmt"
	"time"

	"relaybot/internal/action"
	"relaybot/internal/auth"
	"relaybot/internal/dialog"
	logx "relaybot/pkg/logx"
)

// authInput feeds typed text to the pending authorization.
func (b *Bot) authInput(ctx context.Context, req *Request, text string) error {
	f := req.Session.Auth
	res := b.Auth.Advance(ctx, f, text)
	if res.Outcome == auth.OutcomeLinked {
		req.Session.Auth = nil
		req.Log.Info("account linked via bot")
		return b.showMenu(ctx, req, b.authText(res))
	}
	b.send(ctx, req, b.authText(res), nil)
	return nil
}

// dialogInput feeds a typed message to the pending wizard.
func (b *Bot) dialogInput(ctx context.Context, req *Request, in dialog.Input) error {
	st := req.Session.Dialog
	if st.Step == dialog.StepSelectChats {
		b.send(ctx, req, textUseSelector, nil)
		return nil
	}
	res := b.Wizard.Text(ctx, req.UserID, st, in)
	switch res.Outcome {
	case dialog.OutcomeCreated:
		req.Session.Dialog = nil
		return b.showMenu(ctx, req, createdText(res.Schedules, b.cfg.Location()))
	case dialog.OutcomeTimeSaved, dialog.OutcomeMessageSaved:
		req.Session.Dialog = nil
		b.send(ctx, req, dialogText(res.Outcome, *st), nil)
		return b.scheduleDetails(ctx, req, action.WithID(action.ScheduleDetails, st.ScheduleID))
	case dialog.OutcomeNotFound:
		req.Session.Dialog = nil
	case dialog.OutcomeFailed:
		req.Log.Warn("dialog step failed", logx.Err(res.Err))
	}
	b.send(ctx, req, dialogText(res.Outcome, *st), nil)
	return nil
}

func (b *Bot) authText(res auth.Result) string {
	legend := b.Auth.Codebook().Legend()
	switch res.Outcome {
	case auth.OutcomeAskPhone:
		return textAskPhone
	case auth.OutcomeAlreadyLinked:
		return textAlreadyLinked
	case auth.OutcomeCodeSent:
		return fmt.Sprintf(textCodeSent, legend)
	case auth.OutcomeRateLimited:
		return fmt.Sprintf(textRateLimited, res.Wait.Round(time.Second))
	case auth.OutcomeBadSymbol:
		return fmt.Sprintf(textBadSymbol, legend)
	case auth.OutcomeInvalidCode:
		return textInvalidCode
	case auth.OutcomePasswordNeeded:
		return textPasswordNeeded
	case auth.OutcomeInvalidPassword:
		return textInvalidPassword
	case auth.OutcomeLinked:
		return textLinked
	}
	return textFailed
}
