package database

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryRepository keeps everything in process memory. It follows the same
// cascade and uniqueness rules as the postgres schema.
type MemoryRepository struct {
	mu       sync.Mutex
	users    map[int]User
	chats    map[int]Chat
	messages map[int]Message
	lastId   int
	lastTime time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[int]User),
		chats:    make(map[int]Chat),
		messages: make(map[int]Message),
	}
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return checkContext(ctx)
}

func (m *MemoryRepository) Close() error {
	return nil
}

// checkContext reports an expired or cancelled context the way the
// postgres driver does.
func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil
}

func (m *MemoryRepository) nextId() int {
	m.lastId++
	return m.lastId
}

// now is strictly increasing so that created_at ordering is total.
func (m *MemoryRepository) now() time.Time {
	t := time.Now().UTC()
	if !t.After(m.lastTime) {
		t = m.lastTime.Add(time.Microsecond)
	}
	m.lastTime = t
	return t
}

func (m *MemoryRepository) userByUUID(uuid string) (User, bool) {
	for _, u := range m.users {
		if u.UUID == uuid {
			return u, true
		}
	}
	return User{}, false
}

func (m *MemoryRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if err := checkContext(ctx); err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.UUID == params.UUID || u.Username == params.Username {
			return User{}, fmt.Errorf("create user %q: %w", params.Username, ErrConflict)
		}
	}

	u := User{
		Id:        m.nextId(),
		UUID:      params.UUID,
		Username:  params.Username,
		CreatedAt: m.now(),
	}
	m.users[u.Id] = u

	return u, nil
}

func (m *MemoryRepository) UserExists(ctx context.Context, username string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepository) GetUserByUUID(ctx context.Context, uuid string) (User, error) {
	if err := checkContext(ctx); err != nil {
		return User{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.userByUUID(uuid)
	if !ok {
		return User{}, fmt.Errorf("get user %q: %w", uuid, ErrNotFound)
	}
	return u, nil
}

func (m *MemoryRepository) ListUsers(ctx context.Context) ([]User, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b User) int { return a.Id - b.Id })

	return users, nil
}

func (m *MemoryRepository) DeleteUser(ctx context.Context, uuid string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.userByUUID(uuid)
	if !ok {
		return nil
	}

	m.deleteChatsFor(u.Id)
	for id, msg := range m.messages {
		if msg.Sender.Id == u.Id {
			delete(m.messages, id)
		}
	}
	delete(m.users, u.Id)

	return nil
}

func (m *MemoryRepository) DeleteAllUsers(ctx context.Context) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.users)
	clear(m.users)
	clear(m.chats)
	clear(m.messages)

	return n, nil
}

func (m *MemoryRepository) CreateChat(ctx context.Context, userA, userB int) (Chat, error) {
	if err := checkContext(ctx); err != nil {
		return Chat{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, okA := m.users[userA]
	b, okB := m.users[userB]
	if !okA || !okB {
		return Chat{}, fmt.Errorf("create chat: member: %w", ErrNotFound)
	}

	members := []User{a, b}
	slices.SortFunc(members, func(x, y User) int { return x.Id - y.Id })

	chat := Chat{
		Id:        m.nextId(),
		Members:   members,
		CreatedAt: m.now(),
	}
	m.chats[chat.Id] = chat

	return chat, nil
}

func (m *MemoryRepository) GetChat(ctx context.Context, id int) (Chat, error) {
	if err := checkContext(ctx); err != nil {
		return Chat{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.chats[id]
	if !ok {
		return Chat{}, fmt.Errorf("get chat %d: %w", id, ErrNotFound)
	}
	return chat, nil
}

func isMember(chat Chat, userId int) bool {
	return slices.ContainsFunc(chat.Members, func(u User) bool { return u.Id == userId })
}

func (m *MemoryRepository) deleteChatsFor(userId int) int {
	var n int
	for id, chat := range m.chats {
		if !isMember(chat, userId) {
			continue
		}

		for msgId, msg := range m.messages {
			if msg.ChatId == id {
				delete(m.messages, msgId)
			}
		}
		delete(m.chats, id)
		n++
	}
	return n
}

func (m *MemoryRepository) DeleteChatsForUser(ctx context.Context, userId int) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteChatsFor(userId), nil
}

func (m *MemoryRepository) ListChatsForUser(ctx context.Context, uuid string) ([]ChatSummary, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.userByUUID(uuid)
	if !ok {
		return []ChatSummary{}, nil
	}

	chats := make([]ChatSummary, 0)
	for _, chat := range m.chats {
		if !isMember(chat, u.Id) {
			continue
		}

		summary := ChatSummary{Chat: chat}
		for _, msg := range m.messages {
			if msg.ChatId != chat.Id {
				continue
			}
			if !msg.Seen && msg.Sender.UUID != uuid {
				summary.Unread++
			}
			if summary.LastMessage == nil || msg.CreatedAt.After(summary.LastMessage.CreatedAt) {
				last := msg
				summary.LastMessage = &last
			}
		}
		chats = append(chats, summary)
	}
	slices.SortFunc(chats, func(a, b ChatSummary) int { return a.Id - b.Id })

	return chats, nil
}

func (m *MemoryRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, bool, error) {
	if err := checkContext(ctx); err != nil {
		return Message{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chats[params.ChatId]; !ok {
		return Message{}, false, fmt.Errorf("create message: chat %d: %w", params.ChatId, ErrNotFound)
	}

	sender, ok := m.userByUUID(params.SenderUUID)
	if !ok {
		return Message{}, false, fmt.Errorf("create message: sender %q: %w", params.SenderUUID, ErrNotFound)
	}

	for _, msg := range m.messages {
		if msg.ChatId == params.ChatId && msg.Sender.Id == sender.Id && msg.Hash == params.Hash {
			return msg, false, nil
		}
	}

	msg := Message{
		Id:         m.nextId(),
		Hash:       params.Hash,
		ChatId:     params.ChatId,
		Sender:     sender,
		Text:       params.Text,
		Attachment: params.Attachment,
		Audio:      params.Audio,
		CreatedAt:  m.now(),
	}
	m.messages[msg.Id] = msg

	return msg, true, nil
}

func (m *MemoryRepository) MarkSeen(ctx context.Context, chatId int, excludeUUID string) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for id, msg := range m.messages {
		if msg.ChatId != chatId || msg.Seen || msg.Sender.UUID == excludeUUID {
			continue
		}
		msg.Seen = true
		m.messages[id] = msg
		n++
	}

	return n, nil
}

func (m *MemoryRepository) GetMessages(ctx context.Context, chatId int, before time.Time, limit int) ([]Message, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	messages := make([]Message, 0)
	for _, msg := range m.messages {
		if msg.ChatId != chatId {
			continue
		}
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		messages = append(messages, msg)
	}

	slices.SortFunc(messages, func(a, b Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if len(messages) > limit {
		messages = messages[:limit]
	}

	return messages, nil
}
