package mtproto

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"relaybot/internal/gateway"
)

const (
	dialogsLimit = 100
	historyLimit = 10

	// maxDialogPages bounds ListChats at 5000 dialogs.
	maxDialogPages = 50

	// Bot API style ids: channels are -(1e12 + id), basic groups -id.
	channelOffset = 1_000_000_000_000
)

type getDialogsFunc func(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)

// ListChats returns all of the account's dialogs in server order and
// refreshes the peer cache used by Forward.
func (c *conn) ListChats(ctx context.Context) ([]gateway.Chat, error) {
	return c.listDialogs(ctx, c.api().MessagesGetDialogs)
}

// listDialogs pages through dialogs with offset paging until the server
// returns a short or final page.
func (c *conn) listDialogs(ctx context.Context, get getDialogsFunc) ([]gateway.Chat, error) {
	req := &tg.MessagesGetDialogsRequest{OffsetPeer: &tg.InputPeerEmpty{}, Limit: dialogsLimit}
	titles := map[int64]string{}
	seen := map[int64]bool{}
	var out []gateway.Chat

	for page := 0; page < maxDialogPages; page++ {
		res, err := get(ctx, req)
		if err != nil {
			return nil, mapErr("get dialogs", err)
		}

		var (
			dialogs []tg.DialogClass
			msgs    []tg.MessageClass
			final   bool
		)
		switch d := res.(type) {
		case *tg.MessagesDialogs:
			dialogs, msgs, final = d.Dialogs, d.Messages, true
			c.cachePeers(titles, d.Chats, d.Users)
		case *tg.MessagesDialogsSlice:
			dialogs, msgs = d.Dialogs, d.Messages
			final = len(dialogs) < req.Limit || len(seen)+len(dialogs) >= d.Count
			c.cachePeers(titles, d.Chats, d.Users)
		case *tg.MessagesDialogsNotModified:
			return out, nil
		default:
			return nil, fmt.Errorf("get dialogs: unexpected response %T", res)
		}

		var tail *tg.Dialog
		for _, dc := range dialogs {
			d, ok := dc.(*tg.Dialog)
			if !ok {
				continue
			}
			tail = d
			id, ok := markedID(d.Peer)
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, gateway.Chat{ID: id, Title: titles[id]})
		}
		if final || tail == nil {
			return out, nil
		}
		next, ok := c.nextDialogsPage(req, tail, msgs)
		if !ok {
			return out, nil
		}
		req = next
	}
	return out, nil
}

// nextDialogsPage builds the request for the page after tail. It reports
// false when the offset cannot move forward.
func (c *conn) nextDialogsPage(req *tg.MessagesGetDialogsRequest, tail *tg.Dialog, msgs []tg.MessageClass) (*tg.MessagesGetDialogsRequest, bool) {
	id, ok := markedID(tail.Peer)
	if !ok {
		return nil, false
	}
	peer, ok := c.peers[id]
	if !ok {
		return nil, false
	}
	date := 0
	for _, m := range msgs {
		var mid, mdate int
		var mpeer tg.PeerClass
		switch v := m.(type) {
		case *tg.Message:
			mid, mdate, mpeer = v.ID, v.Date, v.PeerID
		case *tg.MessageService:
			mid, mdate, mpeer = v.ID, v.Date, v.PeerID
		default:
			continue
		}
		if pid, ok := markedID(mpeer); ok && pid == id && mid == tail.TopMessage {
			date = mdate
			break
		}
	}
	if tail.TopMessage == req.OffsetID && date == req.OffsetDate {
		return nil, false
	}
	return &tg.MessagesGetDialogsRequest{
		OffsetDate: date,
		OffsetID:   tail.TopMessage,
		OffsetPeer: peer,
		Limit:      req.Limit,
	}, true
}

// cachePeers records titles and input peers of the entities in one page.
func (c *conn) cachePeers(titles map[int64]string, chats []tg.ChatClass, users []tg.UserClass) {
	for _, ch := range chats {
		switch v := ch.(type) {
		case *tg.Chat:
			id := -v.ID
			titles[id] = v.Title
			c.peers[id] = &tg.InputPeerChat{ChatID: v.ID}
		case *tg.Channel:
			id := -(channelOffset + v.ID)
			titles[id] = v.Title
			c.peers[id] = &tg.InputPeerChannel{ChannelID: v.ID, AccessHash: v.AccessHash}
		}
	}
	for _, u := range users {
		v, ok := u.(*tg.User)
		if !ok {
			continue
		}
		titles[v.ID] = userTitle(v)
		c.peers[v.ID] = &tg.InputPeerUser{UserID: v.ID, AccessHash: v.AccessHash}
	}
}

func (c *conn) LatestSelfMessageID(ctx context.Context, botID int64) (int64, error) {
	peer, err := c.peer(ctx, botID)
	if err != nil {
		return 0, err
	}
	res, err := c.api().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{Peer: peer, Limit: historyLimit})
	if err != nil {
		return 0, mapErr("get history", err)
	}
	var msgs []tg.MessageClass
	switch h := res.(type) {
	case *tg.MessagesMessages:
		msgs = h.Messages
	case *tg.MessagesMessagesSlice:
		msgs = h.Messages
	case *tg.MessagesChannelMessages:
		msgs = h.Messages
	}
	// History is newest first.
	for _, m := range msgs {
		if msg, ok := m.(*tg.Message); ok && msg.Out {
			return int64(msg.ID), nil
		}
	}
	return 0, gateway.ErrNoMessage
}

func (c *conn) Forward(ctx context.Context, botID, msgID, to int64) error {
	from, err := c.peer(ctx, botID)
	if err != nil {
		return err
	}
	dst, err := c.peer(ctx, to)
	if err != nil {
		return err
	}
	_, err = c.api().MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer:   from,
		ToPeer:     dst,
		ID:         []int{int(msgID)},
		RandomID:   []int64{randomID()},
		DropAuthor: true,
	})
	if err != nil {
		return mapErr(fmt.Sprintf("forward to %d", to), err)
	}
	return nil
}

// peer resolves id from the cache, loading dialogs once on a miss.
func (c *conn) peer(ctx context.Context, id int64) (tg.InputPeerClass, error) {
	if p, ok := c.peers[id]; ok {
		return p, nil
	}
	if _, err := c.ListChats(ctx); err != nil {
		return nil, err
	}
	if p, ok := c.peers[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %d", gateway.ErrPeerUnknown, id)
}

func markedID(p tg.PeerClass) (int64, bool) {
	switch v := p.(type) {
	case *tg.PeerUser:
		return v.UserID, true
	case *tg.PeerChat:
		return -v.ChatID, true
	case *tg.PeerChannel:
		return -(channelOffset + v.ChannelID), true
	}
	return 0, false
}

func userTitle(u *tg.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf("%d", u.ID)
}
