package database

import "time"

type User struct {
	Id        int
	UUID      string
	Username  string
	CreatedAt time.Time
}

type Chat struct {
	Id        int
	Members   []User
	CreatedAt time.Time
}

type ChatSummary struct {
	Chat
	LastMessage *Message
	Unread      int
}

type Message struct {
	Id         int
	Hash       string
	ChatId     int
	Sender     User
	Text       *string
	Attachment []byte
	Audio      []byte
	Seen       bool
	CreatedAt  time.Time
}

type CreateUserParams struct {
	UUID     string
	Username string
}

type CreateMessageParams struct {
	Hash       string
	ChatId     int
	SenderUUID string
	Text       *string
	Attachment []byte
	Audio      []byte
}
