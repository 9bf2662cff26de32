package store

import (
	"context"

	"github.com/mqy/minichat/types"
)

// IRestAPI is the request/response transport the store pulls bulk data from.
type IRestAPI interface {
	// GetChats fetches the full chat list.
	GetChats(ctx context.Context) ([]*types.Chat, error)

	// GetMessages fetches the message history of one chat.
	GetMessages(ctx context.Context, chatID string) ([]*types.Message, error)

	// CreateChat creates a chat; the created chat also arrives as a
	// chatCreated push.
	CreateChat(ctx context.Context, participants []string, chatType, name string) (*types.Chat, error)

	// StartChatByEmail starts (or reuses) a private chat with the recipient.
	StartChatByEmail(ctx context.Context, recipientEmail, initialMessage string) (*types.Chat, error)
}

// IChannel is the event channel the store emits intents to. Inbound events
// come back through the ws.Sink methods on the store.
type IChannel interface {
	Connected() bool
	RequestChatList() error
	JoinChat(chatID string) error
	LeaveChat(chatID string) error
	SendMessage(chatID, content string) error
	StartChatByEmail(recipientEmail, initialMessage string) error
}

// IIdentity exposes the authenticated user, nil when anonymous.
type IIdentity interface {
	CurrentUser() *types.User
}
