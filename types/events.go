package types

import (
	"encoding/json"
	"time"
)

// Event names on the channel. Must match the server side.
const (
	// client -> server
	EvGetChatList      = "getChatList"
	EvJoinChat         = "joinChat"
	EvLeaveChat        = "leaveChat"
	EvSendMessage      = "sendMessage"
	EvStartChatByEmail = "startChatByEmail"

	// server -> client
	EvChatListInitial = "chatListInitial"
	EvChatJoined      = "chatJoined"
	EvChatLeft        = "chatLeft"
	EvMessage         = "message"
	EvChatUpdated     = "chatUpdated"
	EvChatCreated     = "chatCreated"
	EvChatStarted     = "chatStarted"
	EvError           = "error"
)

// Envelope frames every channel event, both directions.
// Data is decoded lazily by event name.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: raw}, nil
}

type SendMessageIntent struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type JoinChatIntent struct {
	ChatID string `json:"chatId"`
}

type LeaveChatIntent struct {
	ChatID string `json:"chatId"`
}

type StartChatIntent struct {
	RecipientEmail string `json:"recipientEmail"`
	InitialMessage string `json:"initialMessage,omitempty"`
}

// ChatUpdate is the chatUpdated push payload: new summary + recency stamp.
type ChatUpdate struct {
	ChatID      string       `json:"chatId"`
	LastMessage *LastMessage `json:"lastMessage"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type ChatAck struct {
	ChatID string `json:"chatId"`
}

type ChatStarted struct {
	Success bool  `json:"success"`
	Chat    *Chat `json:"chat,omitempty"`
}

type ChannelError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
