package bot

import (
	"context"
	"errors"
	"fmt"

	"relaybot/internal/action"
	"relaybot/internal/auth"
	"relaybot/internal/dialog"
	"relaybot/internal/storage"
	"relaybot/pkg/tgui"
	logx "relaybot/pkg/logx"
)

type actionFunc func(ctx context.Context, req *Request, a action.Action) error

// actionTable has exactly one handler per action kind.
func (b *Bot) actionTable() map[action.Kind]actionFunc {
	return map[action.Kind]actionFunc{
		action.Authorize:       b.authorize,
		action.Instructions:    b.instructions,
		action.CreateSchedule:  b.linkedOnly(b.createSchedule),
		action.ShowChats:       b.linkedOnly(b.showChats),
		action.ShowSchedules:   b.linkedOnly(b.showSchedules),
		action.SchedulesPrev:   b.linkedOnly(b.pageSchedules(-1)),
		action.SchedulesNext:   b.linkedOnly(b.pageSchedules(+1)),
		action.ScheduleDetails: b.linkedOnly(b.scheduleDetails),
		action.EditTime:        b.linkedOnly(b.startEdit(dialog.KindEditTime)),
		action.EditMessage:     b.linkedOnly(b.startEdit(dialog.KindEditMessage)),
		action.EditChats:       b.linkedOnly(b.startEdit(dialog.KindEditChats)),
		action.DeleteSchedule:  b.linkedOnly(b.deleteSchedule),
		action.SelectChat:      b.selectChat,
		action.ChatsPrev:       b.pageChats(-1),
		action.ChatsNext:       b.pageChats(+1),
		action.DoneSelecting:   b.doneSelecting,
		action.Back:            b.back,
		action.Logout:          b.linkedOnly(b.logout),
		action.ConfirmLogout:   b.linkedOnly(b.confirmLogout),
	}
}

// linkedOnly answers "authorize first" for users without a linked account.
func (b *Bot) linkedOnly(next actionFunc) actionFunc {
	return func(ctx context.Context, req *Request, a action.Action) error {
		linked, err := b.Accounts.Linked(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("check link: %w", err)
		}
		if !linked {
			return b.showMenu(ctx, req, textAuthorizeFirst)
		}
		return next(ctx, req, a)
	}
}

func (b *Bot) authorize(ctx context.Context, req *Request, _ action.Action) error {
	b.clearFlows(req)
	f, res, err := b.Auth.Start(ctx, req.UserID)
	if err != nil {
		req.Log.Warn("auth start failed", logx.Err(err))
		b.send(ctx, req, textFailed, nil)
		return nil
	}
	if res.Outcome == auth.OutcomeAskPhone {
		req.Session.Auth = f
	}
	b.send(ctx, req, b.authText(res), nil)
	return nil
}

func (b *Bot) instructions(ctx context.Context, req *Request, _ action.Action) error {
	b.respond(ctx, req, fmt.Sprintf(textInstructions, b.Auth.Codebook().Legend()), backKeyboard())
	return nil
}

func (b *Bot) createSchedule(ctx context.Context, req *Request, _ action.Action) error {
	b.clearFlows(req)
	st, err := b.Wizard.StartCreate(ctx, req.UserID)
	if err != nil {
		req.Log.Warn("create wizard failed to start", logx.Err(err))
		b.send(ctx, req, textFailed, nil)
		return nil
	}
	if len(st.Candidates) == 0 {
		return b.showMenu(ctx, req, textNoChats)
	}
	req.Session.Dialog = st
	b.respond(ctx, req, b.selectorText(st), b.selectorKeyboard(st))
	return nil
}

func (b *Bot) showChats(ctx context.Context, req *Request, _ action.Action) error {
	conn, err := b.Accounts.Open(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("open account: %w", err)
	}
	defer conn.Close()
	chats, err := conn.ListChats(ctx)
	if err != nil {
		req.Log.Warn("list chats failed", logx.Err(err))
		b.send(ctx, req, textFailed, nil)
		return nil
	}
	b.respond(ctx, req, chatsText(chats), backKeyboard())
	return nil
}

func (b *Bot) showSchedules(ctx context.Context, req *Request, _ action.Action) error {
	list, err := b.Store.ListByUser(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	p := tgui.Paginate(list, req.Session.SchedulePage, b.cfg.SchedulesPerPage)
	req.Session.SchedulePage = p.Index
	b.respond(ctx, req, schedulesText(p), b.schedulesKeyboard(p))
	return nil
}

func (b *Bot) pageSchedules(delta int) actionFunc {
	return func(ctx context.Context, req *Request, a action.Action) error {
		req.Session.SchedulePage += delta
		if req.Session.SchedulePage < 0 {
			req.Session.SchedulePage = 0
		}
		return b.showSchedules(ctx, req, a)
	}
}

func (b *Bot) scheduleDetails(ctx context.Context, req *Request, a action.Action) error {
	sc, err := b.owned(ctx, req.UserID, a.ID)
	if errors.Is(err, storage.ErrNotFound) {
		b.respond(ctx, req, textNotFound, backKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	b.respond(ctx, req, b.detailsText(sc, b.chatTitles(ctx, req)), detailsKeyboard(sc.ID))
	return nil
}

func (b *Bot) startEdit(kind dialog.Kind) actionFunc {
	return func(ctx context.Context, req *Request, a action.Action) error {
		b.clearFlows(req)
		st, res := b.Wizard.StartEdit(ctx, req.UserID, kind, a.ID)
		if st == nil {
			b.respond(ctx, req, dialogText(res.Outcome, dialog.State{Kind: kind}), backKeyboard())
			return nil
		}
		req.Session.Dialog = st
		if res.Outcome == dialog.OutcomeShowChats {
			b.respond(ctx, req, b.selectorText(st), b.selectorKeyboard(st))
			return nil
		}
		b.send(ctx, req, dialogText(res.Outcome, *st), nil)
		return nil
	}
}

func (b *Bot) deleteSchedule(ctx context.Context, req *Request, a action.Action) error {
	if _, err := b.owned(ctx, req.UserID, a.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.respond(ctx, req, textNotFound, backKeyboard())
			return nil
		}
		return err
	}
	err := b.Store.Exec(ctx, &storage.DeleteSchedule{ID: a.ID})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete schedule: %w", err)
	}
	b.Jobs.Cancel(a.ID)
	if err != nil {
		b.respond(ctx, req, textNotFound, backKeyboard())
		return nil
	}
	req.Log.Info("schedule deleted", logx.Int64("schedule", a.ID))
	b.respond(ctx, req, textDeleted, nil)
	return b.showSchedules(ctx, withoutCallback(req), a)
}

// activeSelector returns the dialog waiting on chat selection, if any.
func (b *Bot) activeSelector(req *Request) *dialog.State {
	st := req.Session.Dialog
	if st == nil || st.Step != dialog.StepSelectChats {
		return nil
	}
	return st
}

func (b *Bot) selectChat(ctx context.Context, req *Request, a action.Action) error {
	st := b.activeSelector(req)
	if st == nil {
		b.send(ctx, req, textStale, nil)
		return nil
	}
	if res := b.Wizard.Select(st, a.ID); res.Err != nil {
		req.Log.Debug("chat not selectable", logx.Err(res.Err))
	}
	b.respond(ctx, req, b.selectorText(st), b.selectorKeyboard(st))
	return nil
}

func (b *Bot) pageChats(delta int) actionFunc {
	return func(ctx context.Context, req *Request, _ action.Action) error {
		st := b.activeSelector(req)
		if st == nil {
			b.send(ctx, req, textStale, nil)
			return nil
		}
		if delta < 0 {
			st.PrevPage()
		} else {
			st.NextPage()
		}
		b.respond(ctx, req, b.selectorText(st), b.selectorKeyboard(st))
		return nil
	}
}

func (b *Bot) doneSelecting(ctx context.Context, req *Request, _ action.Action) error {
	st := b.activeSelector(req)
	if st == nil {
		b.send(ctx, req, textStale, nil)
		return nil
	}
	res := b.Wizard.Done(ctx, req.UserID, st)
	switch res.Outcome {
	case dialog.OutcomeEmptySelection:
		b.respond(ctx, req, textSelectAtLeastOne+"\n\n"+b.selectorText(st), b.selectorKeyboard(st))
		return nil
	case dialog.OutcomeChatsSaved:
		req.Session.Dialog = nil
		b.respond(ctx, req, textChatsSaved, nil)
		return b.scheduleDetails(ctx, withoutCallback(req), action.WithID(action.ScheduleDetails, st.ScheduleID))
	case dialog.OutcomeNotFound:
		req.Session.Dialog = nil
	}
	b.respond(ctx, req, dialogText(res.Outcome, *st), nil)
	return nil
}

func (b *Bot) back(ctx context.Context, req *Request, _ action.Action) error {
	b.clearFlows(req)
	return b.showMenu(ctx, req, "")
}

func (b *Bot) logout(ctx context.Context, req *Request, _ action.Action) error {
	b.respond(ctx, req, textLogoutConfirm, logoutKeyboard())
	return nil
}

func (b *Bot) confirmLogout(ctx context.Context, req *Request, _ action.Action) error {
	b.clearFlows(req)
	ids, err := b.Accounts.Unlink(ctx, req.UserID)
	for _, id := range ids {
		b.Jobs.Cancel(id)
	}
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	req.Log.Info("user logged out", logx.Int("schedules", len(ids)))
	return b.showMenu(ctx, withoutCallback(req), textLoggedOut)
}

// owned loads a schedule and hides other users' schedules.
func (b *Bot) owned(ctx context.Context, userID, id int64) (storage.Schedule, error) {
	sc, err := b.Store.Get(ctx, id)
	if err != nil {
		return storage.Schedule{}, err
	}
	if sc.UserID != userID {
		return storage.Schedule{}, storage.ErrNotFound
	}
	return sc, nil
}

// chatTitles maps chat ids to titles. Lookup failures give an empty map and
// the caller falls back to ids.
func (b *Bot) chatTitles(ctx context.Context, req *Request) map[int64]string {
	out := map[int64]string{}
	conn, err := b.Accounts.Open(ctx, req.UserID)
	if err != nil {
		return out
	}
	defer conn.Close()
	chats, err := conn.ListChats(ctx)
	if err != nil {
		req.Log.Debug("chat titles unavailable", logx.Err(err))
		return out
	}
	for _, c := range chats {
		out[c.ID] = c.Title
	}
	return out
}

// withoutCallback makes follow-up output a new message instead of another
// edit of the pressed one.
func withoutCallback(req *Request) *Request {
	cp := *req
	cp.Update.Callback = nil
	return &cp
}
