package presence

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockHashClient struct {
	mock.Mock
}

func (m *mockHashClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(key, values)
	return args.Get(0).(*redis.IntCmd)
}
func (m *mockHashClient) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	args := m.Called(key, fields)
	return args.Get(0).(*redis.IntCmd)
}
func (m *mockHashClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	args := m.Called(key)
	return args.Get(0).(*redis.MapStringStringCmd)
}
func (m *mockHashClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(keys)
	return args.Get(0).(*redis.IntCmd)
}
func (m *mockHashClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestRedisMirror(t *testing.T) {
	ctx := context.Background()
	client := &mockHashClient{}
	m := &RedisMirror{client: client, key: DefaultKey}

	client.On("HSet", DefaultKey, []interface{}{"uuid-1", "alice"}).Return(redis.NewIntResult(1, nil)).Once()
	client.On("HDel", DefaultKey, []string{"uuid-1"}).Return(redis.NewIntResult(1, nil)).Once()
	client.On("HGetAll", DefaultKey).Return(redis.NewMapStringStringResult(map[string]string{"uuid-2": "bob"}, nil)).Once()
	client.On("Del", []string{DefaultKey}).Return(redis.NewIntResult(1, nil)).Once()
	client.On("Close").Return(nil).Once()

	assert.NoError(t, m.SetOnline(ctx, "uuid-1", "alice"))
	assert.NoError(t, m.SetOffline(ctx, "uuid-1"))

	online, err := m.Online(ctx)
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"uuid-2": "bob"}, online)

	assert.NoError(t, m.Reset(ctx))
	assert.NoError(t, m.Close())
	client.AssertExpectations(t)
}

func TestRedisMirror_error(t *testing.T) {
	client := &mockHashClient{}
	m := &RedisMirror{client: client, key: DefaultKey}
	boom := errors.New("connection refused")

	client.On("HSet", DefaultKey, mock.Anything).Return(redis.NewIntResult(0, boom))

	assert.ErrorIs(t, m.SetOnline(context.Background(), "uuid-1", "alice"), boom)
}

func TestNopMirror(t *testing.T) {
	var m Mirror = NopMirror{}
	assert.NoError(t, m.SetOnline(context.Background(), "uuid-1", "alice"))
	assert.NoError(t, m.SetOffline(context.Background(), "uuid-1"))
	assert.NoError(t, m.Reset(context.Background()))
	assert.NoError(t, m.Close())
}
