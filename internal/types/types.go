package types

import (
	"time"

	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/samber/lo"
)

type User struct {
	Id       int    `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
}

type Chat struct {
	Id          int      `json:"id"`
	Users       []User   `json:"users"`
	LastMessage *Message `json:"last_message"`
	Unread      int      `json:"unread"`
}

// Message is the wire representation of a stored message. Attachment and
// audio travel as text and are stored as the bytes of that text.
type Message struct {
	Id         int       `json:"id"`
	Hash       string    `json:"hash"`
	Chat       int       `json:"chat"`
	Sender     User      `json:"sender"`
	Text       *string   `json:"text"`
	Attachment *string   `json:"attachment"`
	Audio      *string   `json:"audio"`
	Seen       bool      `json:"seen"`
	Created    time.Time `json:"created"`
}

func NewUser(u database.User) User {
	return User{
		Id:       u.Id,
		UUID:     u.UUID,
		Username: u.Username,
	}
}

func bytesToText(b []byte) *string {
	if b == nil {
		return nil
	}
	return lo.ToPtr(string(b))
}

func NewMessage(m database.Message) Message {
	return Message{
		Id:         m.Id,
		Hash:       m.Hash,
		Chat:       m.ChatId,
		Sender:     NewUser(m.Sender),
		Text:       m.Text,
		Attachment: bytesToText(m.Attachment),
		Audio:      bytesToText(m.Audio),
		Seen:       m.Seen,
		Created:    m.CreatedAt,
	}
}

func NewMessages(msgs []database.Message) []Message {
	return lo.Map(msgs, func(m database.Message, _ int) Message {
		return NewMessage(m)
	})
}

func NewChat(c database.ChatSummary) Chat {
	chat := Chat{
		Id: c.Id,
		Users: lo.Map(c.Members, func(u database.User, _ int) User {
			return NewUser(u)
		}),
		Unread: c.Unread,
	}

	if c.LastMessage != nil {
		chat.LastMessage = lo.ToPtr(NewMessage(*c.LastMessage))
	}

	return chat
}
