// Package store owns the client-side view of chats and messages. Every
// mutation, whether it comes from a history fetch, a push event or a local
// optimistic send, goes through the single apply() path so the view stays
// consistent.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mqy/minichat/types"
)

// reconcileWindow is the max distance between a local placeholder's creation
// time and the server echo's for the two to be considered the same send.
// Strictly less than: an echo 30s late keeps both copies.
const reconcileWindow = 30 * time.Second

type state struct {
	chats        []*types.Chat
	messages     map[string][]*types.Message
	activeChatID string
	loading      bool
	err          string
	connected    bool
}

func newState() *state {
	return &state{messages: make(map[string][]*types.Message)}
}

type action interface{}

type setLoading struct{ v bool }
type setError struct{ msg string }
type setConnected struct{ v bool }
type setChatsAction struct{ chats []*types.Chat }
type addChatAction struct{ chat *types.Chat }
type updateChatAction struct{ update *types.ChatUpdate }
type setActiveChatAction struct{ chatID string }
type setMessagesAction struct {
	chatID   string
	messages []*types.Message
}
type addMessageAction struct{ msg *types.Message }
type updateStatusAction struct{ messageID, status string }
type clearStateAction struct{}

// ChatStore is the synchronization store. Commands run on any goroutine;
// the mutex in Store serializes them into one update path.
type ChatStore struct {
	Store

	rest     IRestAPI
	channel  IChannel
	identity IIdentity
}

// Store carries the guarded state plus the change notification. Split out so
// the reducer tests can poke at it directly.
type Store struct {
	mu      sync.Mutex
	state   *state
	changed chan struct{}
}

func NewChatStore(rest IRestAPI, channel IChannel, identity IIdentity) *ChatStore {
	return &ChatStore{
		Store: Store{
			state:   newState(),
			changed: make(chan struct{}, 1),
		},
		rest:     rest,
		channel:  channel,
		identity: identity,
	}
}

// Changes delivers a coalesced signal whenever store state mutates.
func (s *Store) Changes() <-chan struct{} {
	return s.changed
}

func (s *Store) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// apply is the single serialized update path.
func (s *Store) apply(a action) {
	s.mu.Lock()
	s.reduce(a)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) reduce(a action) {
	st := s.state
	switch v := a.(type) {
	case setLoading:
		st.loading = v.v
	case setError:
		st.err = v.msg
		st.loading = false
	case setConnected:
		st.connected = v.v
	case setChatsAction:
		// New baseline from a bulk source; do not assume it is ordered.
		st.chats = v.chats
		sortChats(st.chats)
		st.loading = false
	case addChatAction:
		s.reduceAddChat(v.chat)
	case updateChatAction:
		s.reduceUpdateChat(v.update)
	case setActiveChatAction:
		st.activeChatID = v.chatID
	case setMessagesAction:
		st.messages[v.chatID] = v.messages
	case addMessageAction:
		s.reduceAddMessage(v.msg)
	case updateStatusAction:
		s.reduceUpdateStatus(v.messageID, v.status)
	case clearStateAction:
		s.state = newState()
	default:
		glog.Errorf("store: unknown action: %T", a)
	}
}

// reduceAddChat upserts: a push for an already known chat id replaces the
// entry instead of duplicating it. Ties on updatedAt keep the newest
// insertion first.
func (s *Store) reduceAddChat(chat *types.Chat) {
	st := s.state
	for i, c := range st.chats {
		if c.ID == chat.ID {
			st.chats[i] = chat
			sortChats(st.chats)
			return
		}
	}
	st.chats = append([]*types.Chat{chat}, st.chats...)
	sortChats(st.chats)
}

func (s *Store) reduceUpdateChat(update *types.ChatUpdate) {
	st := s.state
	for i, c := range st.chats {
		if c.ID == update.ChatID {
			// Replace, never mutate: snapshot holders read the old entry
			// without the store lock.
			cp := *c
			cp.LastMessage = update.LastMessage
			cp.UpdatedAt = update.UpdatedAt
			st.chats[i] = &cp
			sortChats(st.chats)
			return
		}
	}
	// Recoverable inconsistency: an update raced ahead of the chat itself.
	glog.Errorf("store: chatUpdated for unknown chat %s, ignored", update.ChatID)
}

// reduceAddMessage is the reconciliation path for every message insertion.
//
//  1. Exact duplicate ids are discarded; the channel redelivers and fetches
//     overlap pushes.
//  2. An authoritative (server-issued) message removes any local placeholder
//     with the same sender and content created within reconcileWindow of it,
//     then appends.
//  3. A placeholder simply appends.
func (s *Store) reduceAddMessage(msg *types.Message) {
	st := s.state
	list := st.messages[msg.ChatID]

	for _, m := range list {
		if m.ID == msg.ID {
			return
		}
	}

	if !msg.IsTemp() {
		out := make([]*types.Message, 0, len(list)+1)
		for _, m := range list {
			if m.IsTemp() && m.SenderID == msg.SenderID && m.Content == msg.Content &&
				absDuration(m.CreatedAt.Sub(msg.CreatedAt)) < reconcileWindow {
				continue
			}
			out = append(out, m)
		}
		st.messages[msg.ChatID] = append(out, msg)
		return
	}

	st.messages[msg.ChatID] = append(list, msg)
}

func (s *Store) reduceUpdateStatus(messageID, status string) {
	for _, list := range s.state.messages {
		for i, m := range list {
			if m.ID == messageID {
				// Replace, never mutate; see reduceUpdateChat.
				cp := *m
				cp.Status = status
				list[i] = &cp
				return
			}
		}
	}
	glog.V(5).Infof("store: status update for unknown message %s, ignored", messageID)
}

func sortChats(chats []*types.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ----- snapshot accessors -----

// Chats returns the display-ordered chat list. The slice is a copy and the
// entries are immutable once inserted (reducers replace, never write in
// place), so snapshots stay stable without the store lock. Callers must not
// mutate entries either.
func (s *Store) Chats() []*types.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Chat, len(s.state.chats))
	copy(out, s.state.chats)
	return out
}

func (s *Store) Chat(chatID string) *types.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.chats {
		if c.ID == chatID {
			return c
		}
	}
	return nil
}

// Messages returns the append-ordered messages of a chat.
func (s *Store) Messages(chatID string) []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.state.messages[chatID]
	out := make([]*types.Message, len(list))
	copy(out, list)
	return out
}

func (s *Store) ActiveChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.activeChatID
}

func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.err
}

func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.connected
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.loading
}

// ----- commands -----

// SetChats replaces the chat collection with a new baseline.
func (s *ChatStore) SetChats(chats []*types.Chat) {
	s.apply(setChatsAction{chats: chats})
}

// AddChat inserts or replaces a chat and re-sorts by recency.
func (s *ChatStore) AddChat(chat *types.Chat) {
	s.apply(addChatAction{chat: chat})
}

// UpdateChat refreshes a chat's summary and recency stamp.
func (s *ChatStore) UpdateChat(update *types.ChatUpdate) {
	s.apply(updateChatAction{update: update})
}

// SetMessages replaces the message history of a chat, order as given.
func (s *ChatStore) SetMessages(chatID string, messages []*types.Message) {
	s.apply(setMessagesAction{chatID: chatID, messages: messages})
}

// AddMessage inserts one message through the reconciliation path.
func (s *ChatStore) AddMessage(msg *types.Message) {
	s.apply(addMessageAction{msg: msg})
}

// UpdateMessageStatus sets the client-local delivery status of a message,
// wherever it lives. Unknown ids are ignored.
func (s *ChatStore) UpdateMessageStatus(messageID, status string) {
	s.apply(updateStatusAction{messageID: messageID, status: status})
}

func (s *ChatStore) ClearError() {
	s.apply(setError{msg: ""})
}

// Reset tears down all chat state; used on logout or auth loss.
func (s *ChatStore) Reset() {
	s.apply(clearStateAction{})
}

// SetActiveChat switches the focused chat: leave the old room, join the new
// one, and fetch the new chat's history if it is not loaded yet. Empty id
// leaves no chat joined.
func (s *ChatStore) SetActiveChat(chatID string) {
	s.mu.Lock()
	prev := s.state.activeChatID
	s.state.activeChatID = chatID
	_, loaded := s.state.messages[chatID]
	s.mu.Unlock()
	s.notify()

	if prev != "" {
		if err := s.channel.LeaveChat(prev); err != nil {
			glog.Errorf("store: leave chat %s: %v", prev, err)
		}
	}
	if chatID == "" {
		return
	}
	if err := s.channel.JoinChat(chatID); err != nil {
		glog.Errorf("store: join chat %s: %v", chatID, err)
	}
	if !loaded {
		s.LoadMessages(chatID)
	}
}

// SendMessage does the optimistic send: validate, show a placeholder through
// the reconciliation path, then emit the intent. Fire and forget; a failure
// after the intent is accepted only shows up as a later error event.
func (s *ChatStore) SendMessage(chatID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return s.fail("message is empty")
	}
	if len(content) > types.MaxMessageLength {
		return s.fail(fmt.Sprintf("message exceeds %d bytes", types.MaxMessageLength))
	}

	user := s.identity.CurrentUser()
	if user == nil {
		return s.fail("not authenticated")
	}
	if !s.channel.Connected() {
		return s.fail("not connected to chat server")
	}

	now := time.Now()
	temp := &types.Message{
		ID:          types.NewTempID(user.ID, now),
		ChatID:      chatID,
		SenderID:    user.ID,
		SenderEmail: user.Email,
		Content:     content,
		CreatedAt:   now,
		Status:      types.StatusSending,
	}
	s.apply(addMessageAction{msg: temp})

	if err := s.channel.SendMessage(chatID, content); err != nil {
		s.apply(updateStatusAction{messageID: temp.ID, status: types.StatusFailed})
		return s.fail(err.Error())
	}
	return nil
}

// LoadChats hydrates the chat list over the request transport.
func (s *ChatStore) LoadChats(ctx context.Context) error {
	s.apply(setLoading{v: true})
	chats, err := s.rest.GetChats(ctx)
	if err != nil {
		s.fail(err.Error())
		return err
	}
	s.apply(setChatsAction{chats: chats})
	return nil
}

// LoadMessages hydrates one chat's history. A late response for a chat that
// is no longer active is still applied; state is chat-indexed.
func (s *ChatStore) LoadMessages(chatID string) error {
	messages, err := s.rest.GetMessages(context.Background(), chatID)
	if err != nil {
		s.fail(err.Error())
		return err
	}
	s.apply(setMessagesAction{chatID: chatID, messages: messages})
	return nil
}

// CreateChat creates a chat over the request transport. The new chat shows
// up via the chatCreated push, not from the response.
func (s *ChatStore) CreateChat(ctx context.Context, participants []string, chatType, name string) error {
	s.apply(setLoading{v: true})
	if _, err := s.rest.CreateChat(ctx, participants, chatType, name); err != nil {
		s.fail(err.Error())
		return err
	}
	s.apply(setLoading{v: false})
	return nil
}

// StartChatByEmail prefers the channel intent when connected so the
// chatStarted/chatCreated events drive the update, and falls back to the
// request transport otherwise.
func (s *ChatStore) StartChatByEmail(ctx context.Context, recipientEmail, initialMessage string) error {
	if s.channel.Connected() {
		if err := s.channel.StartChatByEmail(recipientEmail, initialMessage); err != nil {
			s.fail(err.Error())
			return err
		}
		return nil
	}
	chat, err := s.rest.StartChatByEmail(ctx, recipientEmail, initialMessage)
	if err != nil {
		s.fail(err.Error())
		return err
	}
	if chat != nil {
		s.apply(addChatAction{chat: chat})
	}
	return nil
}

func (s *ChatStore) fail(msg string) error {
	glog.Error("store: " + msg)
	s.apply(setError{msg: msg})
	return fmt.Errorf("%s", msg)
}

// ----- ws.Sink -----

// OnConnected marks the channel up and asks for the initial chat list.
func (s *ChatStore) OnConnected() {
	s.apply(setConnected{v: true})
	if err := s.channel.RequestChatList(); err != nil {
		glog.Errorf("store: request chat list: %v", err)
	}
}

// OnDisconnected degrades to disconnected state; callers never see a throw.
func (s *ChatStore) OnDisconnected(err error) {
	s.apply(setConnected{v: false})
	if err != nil {
		s.apply(setError{msg: "connection to chat server lost"})
	}
}

func (s *ChatStore) OnChatList(chats []*types.Chat) {
	s.apply(setChatsAction{chats: chats})
}

func (s *ChatStore) OnMessage(msg *types.Message) {
	s.apply(addMessageAction{msg: msg})
}

func (s *ChatStore) OnChatUpdated(update *types.ChatUpdate) {
	s.apply(updateChatAction{update: update})
}

func (s *ChatStore) OnChatCreated(chat *types.Chat) {
	s.apply(addChatAction{chat: chat})
}

func (s *ChatStore) OnChatStarted(started *types.ChatStarted) {
	if started.Chat != nil {
		glog.V(5).Infof("store: chat started: %s", started.Chat.ID)
	}
}

func (s *ChatStore) OnChannelError(message string) {
	s.apply(setError{msg: message})
}
