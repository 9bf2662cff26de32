package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	ChatPrivate = "PRIVATE"
	ChatGroup   = "GROUP"
)

// Client-local delivery status of a message. Never sent to the server.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// MaxMessageLength bounds message content, in bytes, after trimming.
const MaxMessageLength = 1000

// TempIDPrefix marks locally generated message ids that await a server echo.
const TempIDPrefix = "temp-"

type User struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// LastMessage is the denormalized preview a chat carries for list rendering.
type LastMessage struct {
	Content     string    `json:"content"`
	SenderID    string    `json:"senderId"`
	SenderEmail string    `json:"senderEmail,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	SeenBy      []string  `json:"seenBy,omitempty"`
}

type Chat struct {
	ID           string       `json:"_id"`
	Type         string       `json:"type"`
	Name         string       `json:"name,omitempty"`
	Participants []User       `json:"participants"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// DisplayName resolves the name shown for a chat from the viewer's side:
// group chats use their name, private chats use the other participant.
func (c *Chat) DisplayName(selfID string) string {
	if c.Name != "" {
		return c.Name
	}
	for i := range c.Participants {
		if c.Participants[i].ID != selfID {
			if c.Participants[i].Name != "" {
				return c.Participants[i].Name
			}
			return c.Participants[i].Email
		}
	}
	return c.ID
}

type Message struct {
	ID          string    `json:"_id"`
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	SenderEmail string    `json:"senderEmail,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	SeenBy      []string  `json:"seenBy,omitempty"`
	Status      string    `json:"status,omitempty"`
}

// IsTemp reports whether the message id is a local placeholder.
func (m *Message) IsTemp() bool {
	return IsTempID(m.ID)
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// NewTempID builds a placeholder id unique within a session: the sender id
// plus a millisecond timestamp.
func NewTempID(senderID string, at time.Time) string {
	return fmt.Sprintf("%s%s-%d", TempIDPrefix, senderID, at.UnixMilli())
}
