// Package presence mirrors the set of present users into Redis so that
// processes other than the chat server can see who is online.
package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "go-dm:presence"

type Mirror interface {
	SetOnline(ctx context.Context, uuid, username string) error
	SetOffline(ctx context.Context, uuid string) error
	Reset(ctx context.Context) error
	Close() error
}

type hashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisMirror keeps a hash of uuid -> username.
type RedisMirror struct {
	client hashClient
	key    string
}

func NewRedisMirror(ctx context.Context, addr string) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisMirror{client: client, key: DefaultKey}, nil
}

func (m *RedisMirror) SetOnline(ctx context.Context, uuid, username string) error {
	return m.client.HSet(ctx, m.key, uuid, username).Err()
}

func (m *RedisMirror) SetOffline(ctx context.Context, uuid string) error {
	return m.client.HDel(ctx, m.key, uuid).Err()
}

// Online returns the mirrored users keyed by uuid.
func (m *RedisMirror) Online(ctx context.Context) (map[string]string, error) {
	return m.client.HGetAll(ctx, m.key).Result()
}

func (m *RedisMirror) Reset(ctx context.Context) error {
	return m.client.Del(ctx, m.key).Err()
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}

type NopMirror struct{}

func (NopMirror) SetOnline(context.Context, string, string) error { return nil }
func (NopMirror) SetOffline(context.Context, string) error        { return nil }
func (NopMirror) Reset(context.Context) error                     { return nil }
func (NopMirror) Close() error                                    { return nil }
