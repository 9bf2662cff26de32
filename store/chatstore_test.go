package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mock_store "github.com/mqy/minichat/store/mock"
	"github.com/mqy/minichat/types"
)

var testUser = &types.User{ID: "u1", Email: "u1@example.com", Name: "User One"}

func newTestStore(t *testing.T) (*ChatStore, *mock_store.MockIRestAPI, *mock_store.MockIChannel, *mock_store.MockIIdentity) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	rest := mock_store.NewMockIRestAPI(ctrl)
	channel := mock_store.NewMockIChannel(ctrl)
	identity := mock_store.NewMockIIdentity(ctrl)
	return NewChatStore(rest, channel, identity), rest, channel, identity
}

func serverMsg(id, chatID, sender, content string, at time.Time) *types.Message {
	return &types.Message{
		ID:        id,
		ChatID:    chatID,
		SenderID:  sender,
		Content:   content,
		CreatedAt: at,
	}
}

func TestAddMessageDedup(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	at := time.Now()
	msg := serverMsg("m1", "c1", "u1", "hi", at)
	s.AddMessage(msg)
	s.AddMessage(serverMsg("m1", "c1", "u1", "hi", at))
	s.AddMessage(serverMsg("m1", "c1", "u2", "different content, same id", at))

	got := s.Messages("c1")
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
}

func TestAddMessageNoSharedIDs(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	at := time.Now()
	ids := []string{"m1", "m2", "m1", "m3", "m2", "m3", "m1"}
	for i, id := range ids {
		s.AddMessage(serverMsg(id, "c1", "u1", "msg", at.Add(time.Duration(i)*time.Minute)))
	}

	seen := map[string]bool{}
	for _, m := range s.Messages("c1") {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
	assert.Len(t, s.Messages("c1"), 3)
}

func TestReconcileTempWithinWindow(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	at := time.Now()
	temp := &types.Message{
		ID:        types.NewTempID("u1", at),
		ChatID:    "c1",
		SenderID:  "u1",
		Content:   "hello",
		CreatedAt: at,
		Status:    types.StatusSending,
	}
	s.AddMessage(temp)
	require.Len(t, s.Messages("c1"), 1)

	// Server echo 5 seconds later collapses the placeholder.
	s.AddMessage(serverMsg("m1", "c1", "u1", "hello", at.Add(5*time.Second)))

	got := s.Messages("c1")
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.False(t, got[0].IsTemp())
}

func TestReconcileBoundaryKeepsBoth(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	at := time.Now()
	temp := &types.Message{
		ID:        types.NewTempID("u1", at),
		ChatID:    "c1",
		SenderID:  "u1",
		Content:   "hello",
		CreatedAt: at,
	}
	s.AddMessage(temp)

	// 31s is outside the correlation window: both copies stay. Intentional.
	s.AddMessage(serverMsg("m1", "c1", "u1", "hello", at.Add(31*time.Second)))

	got := s.Messages("c1")
	require.Len(t, got, 2)
	assert.True(t, got[0].IsTemp())
	assert.Equal(t, "m1", got[1].ID)
}

func TestReconcileIgnoresOtherSenders(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	at := time.Now()
	s.AddMessage(&types.Message{
		ID: types.NewTempID("u1", at), ChatID: "c1", SenderID: "u1",
		Content: "hello", CreatedAt: at,
	})
	s.AddMessage(serverMsg("m1", "c1", "u2", "hello", at.Add(time.Second)))

	assert.Len(t, s.Messages("c1"), 2)
}

func chatAt(id string, at time.Time) *types.Chat {
	return &types.Chat{ID: id, Type: types.ChatPrivate, UpdatedAt: at, CreatedAt: at}
}

func assertSorted(t *testing.T, chats []*types.Chat) {
	t.Helper()
	for i := 1; i < len(chats); i++ {
		assert.False(t, chats[i].UpdatedAt.After(chats[i-1].UpdatedAt),
			"chats out of order at %d: %s before %s", i, chats[i-1].ID, chats[i].ID)
	}
}

func TestChatOrdering(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	base := time.Now()
	s.AddChat(chatAt("c1", base))
	s.AddChat(chatAt("c2", base.Add(-time.Hour)))
	s.AddChat(chatAt("c3", base.Add(time.Hour)))
	assertSorted(t, s.Chats())
	assert.Equal(t, "c3", s.Chats()[0].ID)

	// Touching the oldest chat moves it to the head.
	s.UpdateChat(&types.ChatUpdate{
		ChatID:      "c2",
		LastMessage: &types.LastMessage{Content: "newest", SenderID: "u2", CreatedAt: base.Add(2 * time.Hour)},
		UpdatedAt:   base.Add(2 * time.Hour),
	})
	got := s.Chats()
	assertSorted(t, got)
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, "newest", got[0].LastMessage.Content)
}

func TestAddChatUpsert(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	base := time.Now()
	s.AddChat(chatAt("c1", base))
	updated := chatAt("c1", base.Add(time.Minute))
	updated.Name = "renamed"
	s.AddChat(updated)

	got := s.Chats()
	require.Len(t, got, 1)
	assert.Equal(t, "renamed", got[0].Name)
	assert.Equal(t, base.Add(time.Minute), got[0].UpdatedAt)
}

func TestChatUpdatedAfterFetch(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	t1 := time.Now()
	t2 := t1.Add(time.Minute)
	s.SetChats([]*types.Chat{chatAt("c1", t1)})
	s.UpdateChat(&types.ChatUpdate{ChatID: "c1", UpdatedAt: t2})

	got := s.Chats()
	require.Len(t, got, 1)
	assert.Equal(t, t2, got[0].UpdatedAt)
}

func TestUpdateChatUnknownIsNoop(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	s.SetChats([]*types.Chat{chatAt("c1", time.Now())})
	s.UpdateChat(&types.ChatUpdate{ChatID: "nope", UpdatedAt: time.Now()})
	assert.Len(t, s.Chats(), 1)
	assert.Equal(t, "c1", s.Chats()[0].ID)
}

func TestSetActiveChatLeaveThenJoin(t *testing.T) {
	s, _, channel, _ := newTestStore(t)

	s.SetMessages("a", nil)
	s.SetMessages("b", nil)

	channel.EXPECT().JoinChat("a").Return(nil)
	s.SetActiveChat("a")
	assert.Equal(t, "a", s.ActiveChatID())

	gomock.InOrder(
		channel.EXPECT().LeaveChat("a").Return(nil),
		channel.EXPECT().JoinChat("b").Return(nil),
	)
	s.SetActiveChat("b")
	assert.Equal(t, "b", s.ActiveChatID())
}

func TestSetActiveChatFetchesHistoryOnce(t *testing.T) {
	s, rest, channel, _ := newTestStore(t)

	history := []*types.Message{serverMsg("m1", "a", "u2", "hey", time.Now())}
	channel.EXPECT().JoinChat("a").Return(nil).Times(2)
	channel.EXPECT().LeaveChat("a").Return(nil)
	rest.EXPECT().GetMessages(gomock.Any(), "a").Return(history, nil)

	s.SetActiveChat("a")
	require.Len(t, s.Messages("a"), 1)

	// Already loaded: no second fetch.
	s.SetActiveChat("")
	s.SetActiveChat("a")
}

func TestSetActiveChatNone(t *testing.T) {
	s, _, channel, _ := newTestStore(t)

	s.SetMessages("a", nil)
	channel.EXPECT().JoinChat("a").Return(nil)
	s.SetActiveChat("a")

	channel.EXPECT().LeaveChat("a").Return(nil)
	s.SetActiveChat("")
	assert.Equal(t, "", s.ActiveChatID())
}

func TestSendMessageOptimistic(t *testing.T) {
	s, _, channel, identity := newTestStore(t)

	identity.EXPECT().CurrentUser().Return(testUser)
	channel.EXPECT().Connected().Return(true)
	channel.EXPECT().SendMessage("c1", "hi there").Return(nil)

	require.NoError(t, s.SendMessage("c1", "  hi there \n"))

	got := s.Messages("c1")
	require.Len(t, got, 1)
	assert.True(t, got[0].IsTemp())
	assert.Equal(t, types.StatusSending, got[0].Status)
	assert.Equal(t, "hi there", got[0].Content)
	assert.Equal(t, testUser.ID, got[0].SenderID)

	// Server echo replaces the placeholder.
	s.AddMessage(serverMsg("m1", "c1", testUser.ID, "hi there", got[0].CreatedAt.Add(time.Second)))
	got = s.Messages("c1")
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestSendMessageDisconnected(t *testing.T) {
	s, _, channel, identity := newTestStore(t)

	identity.EXPECT().CurrentUser().Return(testUser)
	channel.EXPECT().Connected().Return(false)
	// No SendMessage expectation: no intent may go out.

	err := s.SendMessage("c1", "hi")
	require.Error(t, err)
	assert.Empty(t, s.Messages("c1"))
	assert.NotEmpty(t, s.Err())
}

func TestSendMessageValidation(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	assert.Error(t, s.SendMessage("c1", "   "))
	assert.Error(t, s.SendMessage("c1", strings.Repeat("x", types.MaxMessageLength+1)))
	assert.Empty(t, s.Messages("c1"))
}

func TestSendMessageAnonymous(t *testing.T) {
	s, _, _, identity := newTestStore(t)

	identity.EXPECT().CurrentUser().Return(nil)
	assert.Error(t, s.SendMessage("c1", "hi"))
	assert.Empty(t, s.Messages("c1"))
}

func TestUpdateMessageStatus(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	s.AddMessage(serverMsg("m1", "c1", "u1", "hi", time.Now()))
	s.UpdateMessageStatus("m1", types.StatusRead)
	assert.Equal(t, types.StatusRead, s.Messages("c1")[0].Status)

	// Unknown id: silently ignored.
	s.UpdateMessageStatus("nope", types.StatusRead)
}

func TestResetClearsEverything(t *testing.T) {
	s, _, channel, _ := newTestStore(t)

	s.SetChats([]*types.Chat{chatAt("c1", time.Now())})
	s.SetMessages("c1", []*types.Message{serverMsg("m1", "c1", "u1", "hi", time.Now())})
	channel.EXPECT().JoinChat("c1").Return(nil)
	s.SetActiveChat("c1")

	s.Reset()
	assert.Empty(t, s.Chats())
	assert.Empty(t, s.Messages("c1"))
	assert.Equal(t, "", s.ActiveChatID())
	assert.Equal(t, "", s.Err())
	assert.False(t, s.Connected())
}

func TestOnConnectedRequestsChatList(t *testing.T) {
	s, _, channel, _ := newTestStore(t)

	channel.EXPECT().RequestChatList().Return(nil)
	s.OnConnected()
	assert.True(t, s.Connected())

	s.OnDisconnected(context.Canceled)
	assert.False(t, s.Connected())
	assert.NotEmpty(t, s.Err())
}

func TestLoadChats(t *testing.T) {
	s, rest, _, _ := newTestStore(t)

	base := time.Now()
	// Deliberately unsorted: the store must not assume source order.
	rest.EXPECT().GetChats(gomock.Any()).Return([]*types.Chat{
		chatAt("old", base.Add(-time.Hour)),
		chatAt("new", base),
	}, nil)

	require.NoError(t, s.LoadChats(context.Background()))
	got := s.Chats()
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.False(t, s.Loading())
}

func TestUpdateChatLeavesSnapshotsIntact(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	base := time.Now()
	s.SetChats([]*types.Chat{chatAt("c1", base)})
	snap := s.Chats()

	lm := &types.LastMessage{Content: "hi", SenderID: "u2", CreatedAt: base.Add(time.Minute)}
	s.UpdateChat(&types.ChatUpdate{ChatID: "c1", LastMessage: lm, UpdatedAt: base.Add(time.Minute)})

	// The snapshot taken before the update keeps the old entry; updates
	// replace list entries instead of writing into them.
	assert.Nil(t, snap[0].LastMessage)
	assert.True(t, snap[0].UpdatedAt.Equal(base))

	got := s.Chat("c1")
	require.NotNil(t, got)
	assert.Equal(t, lm, got.LastMessage)
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Minute)))
}

func TestUpdateMessageStatusLeavesSnapshotsIntact(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	msg := serverMsg("m1", "c1", "u1", "hi", time.Now())
	msg.Status = types.StatusSending
	s.SetMessages("c1", []*types.Message{msg})
	snap := s.Messages("c1")

	s.UpdateMessageStatus("m1", types.StatusFailed)

	assert.Equal(t, types.StatusSending, snap[0].Status)
	assert.Equal(t, types.StatusFailed, s.Messages("c1")[0].Status)
}

func TestSnapshotsDuringConcurrentUpdates(t *testing.T) {
	s, _, _, _ := newTestStore(t)

	base := time.Now()
	s.SetChats([]*types.Chat{chatAt("c1", base)})
	s.SetMessages("c1", []*types.Message{serverMsg("m1", "c1", "u1", "hi", base)})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			s.UpdateChat(&types.ChatUpdate{
				ChatID:      "c1",
				LastMessage: &types.LastMessage{Content: "hi", SenderID: "u1", CreatedAt: base},
				UpdatedAt:   base.Add(time.Duration(i) * time.Millisecond),
			})
			s.UpdateMessageStatus("m1", types.StatusDelivered)
		}
	}()

	// Readers walk snapshots the way the console does, with no store lock.
	for i := 0; i < 500; i++ {
		for _, c := range s.Chats() {
			_ = c.UpdatedAt
			if c.LastMessage != nil {
				_ = c.LastMessage.Content
			}
		}
		for _, m := range s.Messages("c1") {
			_ = m.Status
		}
	}
	<-done
}
