package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	userColumns    = "id, uuid, username, created_at"
	messageColumns = "m.id, m.hash, m.chat_id, m.text, m.attachment, m.audio, m.seen, m.created_at, " +
		"u.id, u.uuid, u.username, u.created_at"
	messageFrom = " FROM messages AS m JOIN users AS u ON u.id = m.sender_id "

	deleteChatsForUserQuery = "DELETE FROM chats WHERE id IN " +
		"(SELECT chat_id FROM chat_members WHERE user_id = $1)"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.Id, &u.UUID, &u.Username, &u.CreatedAt)
	return u, err
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg  Message
		text sql.NullString
	)

	err := row.Scan(
		&msg.Id,
		&msg.Hash,
		&msg.ChatId,
		&text,
		&msg.Attachment,
		&msg.Audio,
		&msg.Seen,
		&msg.CreatedAt,
		&msg.Sender.Id,
		&msg.Sender.UUID,
		&msg.Sender.Username,
		&msg.Sender.CreatedAt,
	)
	if text.Valid {
		msg.Text = &text.String
	}

	return msg, err
}

// nullBytes makes sure a nil slice is stored as NULL rather than an empty bytea.
func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func (db *PgRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (uuid, username, created_at) VALUES ($1, $2, $3) "+
			"RETURNING "+userColumns,
		params.UUID,
		params.Username,
		time.Now().UTC(),
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", mapError(err))
	}

	return u, nil
}

func (db *PgRepository) UserExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)",
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", mapError(err))
	}

	return exists, nil
}

func (db *PgRepository) GetUserByUUID(ctx context.Context, uuid string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE uuid = $1 LIMIT 1",
		uuid,
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", mapError(err))
	}

	return u, nil
}

func (db *PgRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", mapError(err))
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", mapError(err))
	}

	return users, nil
}

func (db *PgRepository) DeleteUser(ctx context.Context, uuid string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", mapError(err))
	}
	defer tx.Rollback()

	// chats must not outlive either member
	_, err = tx.ExecContext(ctx,
		"DELETE FROM chats WHERE id IN (SELECT cm.chat_id FROM chat_members AS cm "+
			"JOIN users AS u ON u.id = cm.user_id WHERE u.uuid = $1)",
		uuid,
	)
	if err != nil {
		return fmt.Errorf("delete chats: %w", mapError(err))
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM users WHERE uuid = $1", uuid); err != nil {
		return fmt.Errorf("delete user: %w", mapError(err))
	}

	return mapError(tx.Commit())
}

func (db *PgRepository) DeleteAllUsers(ctx context.Context) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", mapError(err))
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, "DELETE FROM chats"); err != nil {
		return 0, fmt.Errorf("delete chats: %w", mapError(err))
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM users")
	if err != nil {
		return 0, fmt.Errorf("delete users: %w", mapError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(n), mapError(tx.Commit())
}

func (db *PgRepository) CreateChat(ctx context.Context, userA, userB int) (Chat, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Chat{}, fmt.Errorf("begin: %w", mapError(err))
	}
	defer tx.Rollback()

	var chat Chat
	err = tx.QueryRowContext(ctx,
		"INSERT INTO chats (created_at) VALUES ($1) RETURNING id, created_at",
		time.Now().UTC(),
	).Scan(&chat.Id, &chat.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat: %w", mapError(err))
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2), ($1, $3)",
		chat.Id,
		userA,
		userB,
	)
	if err != nil {
		return Chat{}, fmt.Errorf("insert chat members: %w", mapError(err))
	}

	chat.Members, err = chatMembers(ctx, tx, chat.Id)
	if err != nil {
		return Chat{}, err
	}

	if err = tx.Commit(); err != nil {
		return Chat{}, mapError(err)
	}

	return chat, nil
}

func chatMembers(ctx context.Context, q queryer, chatId int) ([]User, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT u.id, u.uuid, u.username, u.created_at FROM chat_members AS cm "+
			"JOIN users AS u ON u.id = cm.user_id WHERE cm.chat_id = $1 ORDER BY u.id",
		chatId,
	)
	if err != nil {
		return nil, fmt.Errorf("chat members: %w", mapError(err))
	}
	defer rows.Close()

	var members []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, u)
	}

	return members, mapError(rows.Err())
}

func (db *PgRepository) GetChat(ctx context.Context, id int) (Chat, error) {
	var chat Chat
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, created_at FROM chats WHERE id = $1",
		id,
	).Scan(&chat.Id, &chat.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("get chat: %w", mapError(err))
	}

	chat.Members, err = chatMembers(ctx, db.conn, chat.Id)
	if err != nil {
		return Chat{}, err
	}

	return chat, nil
}

func (db *PgRepository) DeleteChatsForUser(ctx context.Context, userId int) (int, error) {
	res, err := db.conn.ExecContext(ctx, deleteChatsForUserQuery, userId)
	if err != nil {
		return 0, fmt.Errorf("delete chats for user: %w", mapError(err))
	}

	n, err := res.RowsAffected()
	return int(n), err
}

func (db *PgRepository) ListChatsForUser(ctx context.Context, uuid string) ([]ChatSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT c.id, c.created_at FROM chats AS c "+
			"JOIN chat_members AS cm ON cm.chat_id = c.id "+
			"JOIN users AS u ON u.id = cm.user_id "+
			"WHERE u.uuid = $1 ORDER BY c.id",
		uuid,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", mapError(err))
	}

	chats := make([]ChatSummary, 0)
	for rows.Next() {
		var c ChatSummary
		if err := rows.Scan(&c.Id, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", mapError(err))
	}

	for i := range chats {
		c := &chats[i]
		if c.Members, err = chatMembers(ctx, db.conn, c.Id); err != nil {
			return nil, err
		}

		if c.LastMessage, err = db.lastMessage(ctx, c.Id); err != nil {
			return nil, err
		}

		err = db.conn.QueryRowContext(ctx,
			"SELECT COUNT(*)"+messageFrom+"WHERE m.chat_id = $1 AND NOT m.seen AND u.uuid <> $2",
			c.Id,
			uuid,
		).Scan(&c.Unread)
		if err != nil {
			return nil, fmt.Errorf("unread count: %w", mapError(err))
		}
	}

	return chats, nil
}

func (db *PgRepository) lastMessage(ctx context.Context, chatId int) (*Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+messageFrom+"WHERE m.chat_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT 1",
		chatId,
	)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", mapError(err))
	}

	return &msg, nil
}

func (db *PgRepository) getMessage(ctx context.Context, where string, args ...any) (Message, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+messageColumns+messageFrom+where, args...)
	return scanMessage(row)
}

func (db *PgRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, bool, error) {
	var id int
	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (hash, chat_id, sender_id, text, attachment, audio, seen, created_at) "+
			"SELECT $1::varchar, $2::int, u.id, $4::text, $5::bytea, $6::bytea, false, $7::timestamptz "+
			"FROM users AS u WHERE u.uuid = $3 "+
			"ON CONFLICT (chat_id, sender_id, hash) DO NOTHING RETURNING id",
		params.Hash,
		params.ChatId,
		params.SenderUUID,
		params.Text,
		nullBytes(params.Attachment),
		nullBytes(params.Audio),
		time.Now().UTC(),
	).Scan(&id)

	switch {
	case err == nil:
		msg, err := db.getMessage(ctx, "WHERE m.id = $1", id)
		if err != nil {
			return Message{}, false, fmt.Errorf("fetch message: %w", mapError(err))
		}
		return msg, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// either a duplicate hash or an unknown sender
		msg, err := db.getMessage(ctx,
			"WHERE m.chat_id = $1 AND u.uuid = $2 AND m.hash = $3",
			params.ChatId,
			params.SenderUUID,
			params.Hash,
		)
		if err != nil {
			return Message{}, false, fmt.Errorf("sender %q: %w", params.SenderUUID, mapError(err))
		}
		return msg, false, nil
	default:
		return Message{}, false, fmt.Errorf("create message: %w", mapError(err))
	}
}

func (db *PgRepository) MarkSeen(ctx context.Context, chatId int, excludeUUID string) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages AS m SET seen = true FROM users AS u "+
			"WHERE u.id = m.sender_id AND m.chat_id = $1 AND u.uuid <> $2 AND NOT m.seen",
		chatId,
		excludeUUID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", mapError(err))
	}

	n, err := res.RowsAffected()
	return int(n), err
}

func (db *PgRepository) GetMessages(ctx context.Context, chatId int, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	upper := sql.NullTime{Time: before, Valid: !before.IsZero()}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+messageFrom+
			"WHERE m.chat_id = $1 AND ($2::timestamptz IS NULL OR m.created_at < $2) "+
			"ORDER BY m.created_at DESC, m.id DESC LIMIT $3",
		chatId,
		upper,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", mapError(err))
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, mapError(rows.Err())
}
