package database

import (
	"context"
	"errors"
	"time"
)

const DefaultMessageLimit = 20

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrTimeout  = errors.New("store timeout")
)

// Repository is the persistence gateway for users, chats and messages.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	UserExists(ctx context.Context, username string) (bool, error)
	GetUserByUUID(ctx context.Context, uuid string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	// DeleteUser removes the user with the given uuid. It is not an error
	// for the user to be absent.
	DeleteUser(ctx context.Context, uuid string) error
	DeleteAllUsers(ctx context.Context) (int, error)

	CreateChat(ctx context.Context, userA, userB int) (Chat, error)
	GetChat(ctx context.Context, id int) (Chat, error)
	DeleteChatsForUser(ctx context.Context, userId int) (int, error)
	ListChatsForUser(ctx context.Context, uuid string) ([]ChatSummary, error)

	// CreateMessage stores a message unless one with the same hash was already
	// sent by the same sender in the same chat, in which case the stored
	// message is returned and created is false.
	CreateMessage(ctx context.Context, params CreateMessageParams) (msg Message, created bool, err error)
	MarkSeen(ctx context.Context, chatId int, excludeUUID string) (int, error)
	// GetMessages returns up to limit messages of the chat created strictly
	// before the given time, newest first. A zero time means no upper bound.
	GetMessages(ctx context.Context, chatId int, before time.Time, limit int) ([]Message, error)
}
