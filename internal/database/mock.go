package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UserExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) GetUserByUUID(ctx context.Context, uuid string) (User, error) {
	args := m.Called(ctx, uuid)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) ListUsers(ctx context.Context) ([]User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) DeleteUser(ctx context.Context, uuid string) error {
	args := m.Called(ctx, uuid)
	return args.Error(0)
}
func (m *MockRepository) DeleteAllUsers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) CreateChat(ctx context.Context, userA, userB int) (Chat, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) GetChat(ctx context.Context, id int) (Chat, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockRepository) DeleteChatsForUser(ctx context.Context, userId int) (int, error) {
	args := m.Called(ctx, userId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) ListChatsForUser(ctx context.Context, uuid string) ([]ChatSummary, error) {
	args := m.Called(ctx, uuid)
	return args.Get(0).([]ChatSummary), args.Error(1)
}
func (m *MockRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, bool, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Bool(1), args.Error(2)
}
func (m *MockRepository) MarkSeen(ctx context.Context, chatId int, excludeUUID string) (int, error) {
	args := m.Called(ctx, chatId, excludeUUID)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) GetMessages(ctx context.Context, chatId int, before time.Time, limit int) ([]Message, error) {
	args := m.Called(ctx, chatId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
