// Package action is the typed form of inline button callbacks. Callback data
// is decoded once at the transport boundary; handlers switch on Kind.
package action

import (
	"errors"
	"fmt"
	"strconv"

	"relaybot/pkg/tgui"
)

var ErrUnknown = errors.New("unknown action")

type Kind int

const (
	Authorize Kind = iota + 1
	Instructions
	CreateSchedule
	ShowChats
	ShowSchedules
	SchedulesPrev
	SchedulesNext
	ScheduleDetails
	EditTime
	EditMessage
	EditChats
	DeleteSchedule
	SelectChat
	ChatsPrev
	ChatsNext
	DoneSelecting
	Back
	Logout
	ConfirmLogout
)

const prefix = "r"

type kindInfo struct {
	tag   string
	hasID bool
}

var kinds = map[Kind]kindInfo{
	Authorize:       {tag: "auth"},
	Instructions:    {tag: "help"},
	CreateSchedule:  {tag: "new"},
	ShowChats:       {tag: "chats"},
	ShowSchedules:   {tag: "list"},
	SchedulesPrev:   {tag: "lprev"},
	SchedulesNext:   {tag: "lnext"},
	ScheduleDetails: {tag: "show", hasID: true},
	EditTime:        {tag: "etime", hasID: true},
	EditMessage:     {tag: "emsg", hasID: true},
	EditChats:       {tag: "echats", hasID: true},
	DeleteSchedule:  {tag: "del", hasID: true},
	SelectChat:      {tag: "pick", hasID: true},
	ChatsPrev:       {tag: "cprev"},
	ChatsNext:       {tag: "cnext"},
	DoneSelecting:   {tag: "done"},
	Back:            {tag: "back"},
	Logout:          {tag: "logout"},
	ConfirmLogout:   {tag: "logout!"},
}

var byTag = func() map[string]Kind {
	m := make(map[string]Kind, len(kinds))
	for k, info := range kinds {
		m[info.tag] = k
	}
	return m
}()

// Action is one decoded button press. ID is a schedule id or chat id for
// kinds that carry one.
type Action struct {
	Kind Kind
	ID   int64
}

func New(k Kind) Action { return Action{Kind: k} }

func WithID(k Kind, id int64) Action { return Action{Kind: k, ID: id} }

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.tag
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Encode renders callback data, "r:<tag>" or "r:<tag>:<id>".
func (a Action) Encode() (string, error) {
	info, ok := kinds[a.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknown, a.Kind)
	}
	if info.hasID {
		return tgui.Data(prefix, info.tag, strconv.FormatInt(a.ID, 10))
	}
	return tgui.Data(prefix, info.tag)
}

// Decode parses callback data produced by Encode.
func Decode(data string) (Action, error) {
	parts := tgui.SplitData(data)
	if len(parts) < 2 || parts[0] != prefix {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknown, data)
	}
	k, ok := byTag[parts[1]]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknown, data)
	}
	info := kinds[k]
	switch {
	case info.hasID && len(parts) == 3:
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Action{}, fmt.Errorf("%w: bad id in %q", ErrUnknown, data)
		}
		return Action{Kind: k, ID: id}, nil
	case !info.hasID && len(parts) == 2:
		return Action{Kind: k}, nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrUnknown, data)
}

// Button builds an inline button for a. Encoding cannot fail for a known
// kind, so an unknown one is a programming error.
func Button(text string, a Action) tgui.Button {
	data, err := a.Encode()
	if err != nil {
		panic(err)
	}
	return tgui.Btn(text, data)
}
