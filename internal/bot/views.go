package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/action"
	"relaybot/internal/dialog"
	"relaybot/internal/gateway"
	"relaybot/internal/storage"
	"relaybot/pkg/tgui"
)

type keyboard = *tgui.Inline

const (
	textMenu           = "What would you like to do?"
	textMenuUnlinked   = "Link your account to start scheduling messages."
	textUseButtons     = "Please choose an action with the buttons."
	textCancelled      = "Cancelled."
	textUnknownCommand = "Unknown command. Use /start."
	textUnknownAction  = "Unknown action."
	textDenied         = "Access denied."
	textBusy           = "Busy, try again."
	textFailed         = "Something went wrong, try again."
	textAuthorizeFirst = "Please authorize first."
	textStale          = "This button is no longer active. Use /start."

	textAskPhone        = "Send your phone number in international format, e.g. +15551234567."
	textAlreadyLinked   = "You are already authorized."
	textCodeSent        = "A login code was sent to your app. Type it with letters instead of digits:\n<code>%s</code>"
	textRateLimited     = "Too many attempts. Try again in %s."
	textBadSymbol       = "The code may only use these letters:\n<code>%s</code>"
	textInvalidCode     = "Invalid code, try again."
	textPasswordNeeded  = "Your account is protected by a password. Send it."
	textInvalidPassword = "Wrong password, try again."
	textLinked          = "Authorization complete."

	textInstructions = "<b>How to authorize</b>\n" +
		"1. Press Authorize and send your phone number in international format.\n" +
		"2. A login code arrives in your app. Type it with letters instead of digits:\n<code>%s</code>\n" +
		"3. If your account has a password, send it when asked."

	textNoChats          = "No chats found in your account."
	textUseSelector      = "Pick chats with the buttons, then press Done."
	textSelectAtLeastOne = "Select at least one chat."
	textAskTimes         = "Send the times as HH:MM separated by commas, e.g. 09:00, 18:30."
	textBadTimes         = "Invalid time list. Use HH:MM separated by commas, e.g. 09:00, 18:30."
	textAskTime          = "Send the new time as HH:MM."
	textBadTime          = "Invalid time. Send one time as HH:MM."
	textAskMessage       = "Send the message to relay. It is forwarded as is, media included."
	textEmptyMessage     = "The message is empty. Send text or media."
	textTimeSaved        = "Time updated."
	textMessageSaved     = "Message updated."
	textChatsSaved       = "Chats updated."
	textNotFound         = "Schedule not found."
	textDeleted          = "Schedule deleted."
	textNoSchedules      = "You have no schedules."

	textLogoutConfirm = "Log out? All your schedules will be deleted."
	textLoggedOut     = "You have been logged out."
)

// showMenu sends the main menu for the user's link state, with an optional
// note above it.
func (b *Bot) showMenu(ctx context.Context, req *Request, note string) error {
	linked, err := b.Accounts.Linked(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("check link: %w", err)
	}
	text := textMenuUnlinked
	kb := tgui.NewInline().
		Row(action.Button("Authorize", action.New(action.Authorize))).
		Row(action.Button("Authorization instructions", action.New(action.Instructions)))
	if linked {
		text = textMenu
		kb = tgui.NewInline().
			Row(action.Button("Create schedule", action.New(action.CreateSchedule))).
			Row(action.Button("Show chats", action.New(action.ShowChats)),
				action.Button("Show schedules", action.New(action.ShowSchedules))).
			Row(action.Button("Log out", action.New(action.Logout)))
	}
	if note != "" {
		text = note + "\n\n" + text
	}
	b.respond(ctx, req, text, kb)
	return nil
}

func backKeyboard() keyboard {
	return tgui.NewInline().Row(action.Button("« Back", action.New(action.Back)))
}

func logoutKeyboard() keyboard {
	return tgui.Confirm(
		action.Button("Yes, log out", action.New(action.ConfirmLogout)),
		action.Button("Cancel", action.New(action.Back)),
	)
}

func (b *Bot) selectorText(st *dialog.State) string {
	head := tgui.B("Choose the chats to relay to")
	if st.Kind == dialog.KindEditChats {
		head = tgui.B("Choose the new chats")
	}
	body := tgui.H("Nothing selected yet.")
	if len(st.Selected) > 0 {
		titles := make([]string, 0, len(st.Selected))
		for _, id := range st.Selected {
			titles = append(titles, titleOr(st.Title(id), id))
		}
		body = "Selected:\n" + tgui.Bullets(titles...)
	}
	text := head + "\n" + body
	if p := st.ChatPage(b.Wizard.PageSize()); p.Pages > 1 {
		text += "\n\n" + tgui.Esc(tgui.PageLabel(p.Index, p.Pages))
	}
	return text.String()
}

func (b *Bot) selectorKeyboard(st *dialog.State) keyboard {
	p := st.ChatPage(b.Wizard.PageSize())
	kb := tgui.NewInline()
	for _, c := range p.Items {
		kb.Row(action.Button(tgui.TruncRunes(titleOr(c.Title, c.ID), 48), action.WithID(action.SelectChat, c.ID)))
	}
	kb.Row(pager(p.HasPrev, p.HasNext, action.ChatsPrev, action.ChatsNext)...)
	kb.Row(action.Button("Done", action.New(action.DoneSelecting)), action.Button("« Back", action.New(action.Back)))
	return kb
}

func pager(hasPrev, hasNext bool, prev, next action.Kind) []tgui.Button {
	var row []tgui.Button
	if hasPrev {
		row = append(row, action.Button("‹ Prev", action.New(prev)))
	}
	if hasNext {
		row = append(row, action.Button("Next ›", action.New(next)))
	}
	return row
}

func chatsText(chats []gateway.Chat) string {
	if len(chats) == 0 {
		return textNoChats
	}
	titles := make([]string, 0, len(chats))
	for _, c := range chats {
		titles = append(titles, titleOr(c.Title, c.ID))
	}
	return tgui.JoinH("\n", tgui.B("Your chats"), tgui.Bullets(titles...)).String()
}

func schedulesText(p tgui.Page[storage.Schedule]) string {
	if len(p.Items) == 0 {
		return textNoSchedules
	}
	text := "<b>Your schedules</b>"
	if p.Pages > 1 {
		text += "\n" + tgui.PageLabel(p.Index, p.Pages)
	}
	return text
}

func (b *Bot) schedulesKeyboard(p tgui.Page[storage.Schedule]) keyboard {
	loc := b.cfg.Location()
	kb := tgui.NewInline()
	for _, sc := range p.Items {
		label := fmt.Sprintf("#%d · %s · %d chat(s)", sc.ID, sc.ScheduledAt.In(loc).Format("15:04"), len(sc.Chats))
		kb.Row(action.Button(label, action.WithID(action.ScheduleDetails, sc.ID)))
	}
	kb.Row(pager(p.HasPrev, p.HasNext, action.SchedulesPrev, action.SchedulesNext)...)
	kb.Row(action.Button("« Back", action.New(action.Back)))
	return kb
}

func (b *Bot) detailsText(sc storage.Schedule, titles map[int64]string) string {
	var sb strings.Builder
	sb.WriteString(tgui.B(fmt.Sprintf("Schedule #%d", sc.ID)).String() + "\n")
	fmt.Fprintf(&sb, "Time: %s daily\n", sc.ScheduledAt.In(b.cfg.Location()).Format("15:04"))
	fmt.Fprintf(&sb, "Message: #%d\n", sc.Message)
	sb.WriteString("Chats:")
	names := make([]string, 0, len(sc.Chats))
	for _, id := range sc.Chats {
		names = append(names, titleOr(titles[id], id))
	}
	if len(names) > 0 {
		sb.WriteString("\n")
		sb.WriteString(tgui.Bullets(names...).String())
	}
	return sb.String()
}

func detailsKeyboard(id int64) keyboard {
	return tgui.NewInline().
		Row(action.Button("Edit time", action.WithID(action.EditTime, id)),
			action.Button("Edit message", action.WithID(action.EditMessage, id))).
		Row(action.Button("Edit chats", action.WithID(action.EditChats, id)),
			action.Button("Delete", action.WithID(action.DeleteSchedule, id))).
		Row(action.Button("« Back", action.New(action.ShowSchedules)))
}

func dialogText(o dialog.Outcome, st dialog.State) string {
	switch o {
	case dialog.OutcomeAskTimes:
		return textAskTimes
	case dialog.OutcomeBadTimes:
		if st.Kind == dialog.KindEditTime {
			return textBadTime
		}
		return textBadTimes
	case dialog.OutcomeAskTime:
		return textAskTime
	case dialog.OutcomeAskMessage:
		return textAskMessage
	case dialog.OutcomeEmptyMessage:
		return textEmptyMessage
	case dialog.OutcomeEmptySelection:
		return textSelectAtLeastOne
	case dialog.OutcomeTimeSaved:
		return textTimeSaved
	case dialog.OutcomeMessageSaved:
		return textMessageSaved
	case dialog.OutcomeChatsSaved:
		return textChatsSaved
	case dialog.OutcomeNotFound:
		return textNotFound
	case dialog.OutcomeUnexpected:
		return textUseButtons
	}
	return textFailed
}

func createdText(created []storage.Schedule, loc *time.Location) string {
	times := make([]string, 0, len(created))
	for _, sc := range created {
		times = append(times, sc.ScheduledAt.In(loc).Format("15:04"))
	}
	return "Schedule created: " + strings.Join(times, ", ") + "."
}

func titleOr(title string, id int64) string {
	if strings.TrimSpace(title) != "" {
		return title
	}
	return strconv.FormatInt(id, 10)
}
