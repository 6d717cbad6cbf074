package mtproto

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
)

func TestMarkedID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		peer tg.PeerClass
		want int64
	}{
		{name: "user", peer: &tg.PeerUser{UserID: 42}, want: 42},
		{name: "chat", peer: &tg.PeerChat{ChatID: 7}, want: -7},
		{name: "channel", peer: &tg.PeerChannel{ChannelID: 123}, want: -1000000000123},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := markedID(tt.peer)
			if !ok || got != tt.want {
				t.Fatalf("markedID = %d, %v, want %d", got, ok, tt.want)
			}
		})
	}
}

// dialogPage builds a slice of n channel dialogs starting at channel first.
func dialogPage(first, n, count int) *tg.MessagesDialogsSlice {
	page := &tg.MessagesDialogsSlice{Count: count}
	for i := 0; i < n; i++ {
		id := int64(first + i)
		page.Dialogs = append(page.Dialogs, &tg.Dialog{Peer: &tg.PeerChannel{ChannelID: id}, TopMessage: 1000 + first + i})
		page.Chats = append(page.Chats, &tg.Channel{ID: id, AccessHash: id * 10, Title: fmt.Sprintf("chan %d", id)})
		page.Messages = append(page.Messages, &tg.Message{ID: 1000 + first + i, Date: 5000 - first - i, PeerID: &tg.PeerChannel{ChannelID: id}})
	}
	return page
}

func TestListDialogsPages(t *testing.T) {
	t.Parallel()
	c := &conn{peers: map[int64]tg.InputPeerClass{}}
	var reqs []tg.MessagesGetDialogsRequest
	get := func(_ context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error) {
		reqs = append(reqs, *req)
		if len(reqs) == 1 {
			return dialogPage(1, dialogsLimit, 130), nil
		}
		return dialogPage(1+dialogsLimit, 30, 130), nil
	}

	chats, err := c.listDialogs(context.Background(), get)
	if err != nil {
		t.Fatalf("listDialogs error: %v", err)
	}
	if len(chats) != 130 {
		t.Fatalf("listDialogs returned %d chats, want 130", len(chats))
	}
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	second := reqs[1]
	if second.OffsetID != 1000+dialogsLimit || second.OffsetDate != 5000-dialogsLimit {
		t.Fatalf("second request offset = id %d date %d, want id %d date %d",
			second.OffsetID, second.OffsetDate, 1000+dialogsLimit, 5000-dialogsLimit)
	}
	peer, ok := second.OffsetPeer.(*tg.InputPeerChannel)
	if !ok || peer.ChannelID != dialogsLimit {
		t.Fatalf("second request offset peer = %v, want channel %d", second.OffsetPeer, dialogsLimit)
	}
	last := chats[len(chats)-1]
	if last.ID != -(channelOffset+130) || last.Title != "chan 130" {
		t.Fatalf("last chat = %+v, want chan 130", last)
	}
	if _, ok := c.peers[-(channelOffset + 130)]; !ok {
		t.Fatal("peer of the last page not cached")
	}
}

func TestListDialogsStopsOnStuckOffset(t *testing.T) {
	t.Parallel()
	c := &conn{peers: map[int64]tg.InputPeerClass{}}
	calls := 0
	get := func(_ context.Context, _ *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error) {
		calls++
		return dialogPage(1, dialogsLimit, 1000), nil
	}
	chats, err := c.listDialogs(context.Background(), get)
	if err != nil {
		t.Fatalf("listDialogs error: %v", err)
	}
	if len(chats) != dialogsLimit || calls != 2 {
		t.Fatalf("listDialogs = %d chats in %d calls, want %d in 2", len(chats), calls, dialogsLimit)
	}
}

func TestUserTitle(t *testing.T) {
	t.Parallel()
	if got := userTitle(&tg.User{ID: 1, FirstName: "Ann", LastName: "Lee"}); got != "Ann Lee" {
		t.Fatalf("userTitle = %q, want Ann Lee", got)
	}
	if got := userTitle(&tg.User{ID: 1, Username: "relay"}); got != "@relay" {
		t.Fatalf("userTitle = %q, want @relay", got)
	}
	if got := userTitle(&tg.User{ID: 9}); got != "9" {
		t.Fatalf("userTitle = %q, want 9", got)
	}
}

func TestMemorySession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := &memorySession{}
	if _, err := s.LoadSession(ctx); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("LoadSession on empty = %v, want session.ErrNotFound", err)
	}
	if err := s.StoreSession(ctx, []byte("blob")); err != nil {
		t.Fatalf("StoreSession error: %v", err)
	}
	b, err := s.LoadSession(ctx)
	if err != nil || string(b) != "blob" {
		t.Fatalf("LoadSession = %q, %v", b, err)
	}
}
