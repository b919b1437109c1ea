package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/stats"
	"github.com/npezzotti/go-directmessages/internal/types"
)

var validate = validator.New()

func decodePayload[T any](raw json.RawMessage, dst *T) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func textToBytes(s *string) []byte {
	if s == nil {
		return nil
	}
	return []byte(*s)
}

// chatHandler serves one connection on a chat route. The chat id is not
// checked on connect; a bad id only fails the operations that use it.
type chatHandler struct {
	cs     *ChatServer
	chatId int
	room   string
}

func newChatHandler(cs *ChatServer, chatId int) *chatHandler {
	return &chatHandler{cs: cs, chatId: chatId, room: strconv.Itoa(chatId)}
}

func (h *chatHandler) onConnect(c *Client) {
	h.cs.rooms.Join(h.room, c)
	h.cs.stats.Incr(stats.ChatSessions)
}

func (h *chatHandler) onDisconnect(c *Client) {
	h.cs.rooms.Leave(h.room, c)
	h.cs.stats.Decr(stats.ChatSessions)
}

func (h *chatHandler) onMessage(c *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reject(c, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}

	switch msg.Type {
	case EventRead:
		h.handleRead(c, msg.Payload)
	case EventMessage:
		h.handleMessage(c, msg.Payload)
	case EventRtc:
		h.cs.stats.Incr(stats.RtcRelayed)
		h.cs.rooms.Publish(h.room, RtcEvent(msg.Payload))
	default:
		h.reject(c, fmt.Errorf("%w: unknown message type %q", ErrValidation, msg.Type))
	}
}

func (h *chatHandler) checkChat(id ChatID) error {
	if int(id) != h.chatId {
		return fmt.Errorf("%w: chat %d does not match room %d", ErrValidation, id, h.chatId)
	}
	return nil
}

func (h *chatHandler) reject(c *Client, err error) {
	h.cs.log.Printf("client %s: chat %d: %v", c.id, h.chatId, err)
	c.queueMessage(ErrorEvent(invalidMessageMsg))
}

// fail reports a store error to the originating connection only.
func (h *chatHandler) fail(c *Client, err error, msg string) {
	h.cs.log.Printf("client %s: chat %d: %v", c.id, h.chatId, err)
	if errors.Is(err, ErrPersistenceTimeout) {
		msg = persistenceTimeoutMsg
	}
	c.queueMessage(ErrorEvent(msg))
}

func (h *chatHandler) handleRead(c *Client, raw json.RawMessage) {
	var p ReadPayload
	if err := decodePayload(raw, &p); err != nil {
		h.reject(c, err)
		return
	}
	if err := h.checkChat(p.ChatId); err != nil {
		h.reject(c, err)
		return
	}

	var n int
	err := h.cs.store.do(context.Background(), "mark seen", func(ctx context.Context) error {
		var err error
		n, err = h.cs.db.MarkSeen(ctx, h.chatId, p.UUID)
		return err
	})
	if err != nil {
		h.fail(c, err, readFailedMsg)
		return
	}

	h.cs.stats.Incr(stats.ReadReceipts)
	h.cs.log.Printf("client %s: marked %d message(s) seen in chat %d", c.id, n, h.chatId)
	h.cs.rooms.Publish(h.room, ReadEvent(p.UUID))
}

func (h *chatHandler) handleMessage(c *Client, raw json.RawMessage) {
	var p MessagePayload
	if err := decodePayload(raw, &p); err != nil {
		h.reject(c, err)
		return
	}
	if err := h.checkChat(p.ChatId); err != nil {
		h.reject(c, err)
		return
	}

	params := database.CreateMessageParams{
		Hash:       p.Hash,
		ChatId:     h.chatId,
		SenderUUID: p.Sender.UUID,
		Text:       p.Text,
		Attachment: textToBytes(p.Attachment),
		Audio:      textToBytes(p.Audio),
	}

	var (
		stored   database.Message
		created  bool
		attempts int
	)
	err := h.cs.store.do(context.Background(), "create message", func(ctx context.Context) error {
		attempts++
		var err error
		stored, created, err = h.cs.db.CreateMessage(ctx, params)
		return err
	})
	if err != nil {
		h.fail(c, err, messageFailedMsg)
		return
	}

	out := types.NewMessage(stored)

	// A retry after a timed out attempt may find the row that attempt wrote.
	if !created && attempts == 1 {
		c.queueMessage(MessageEvent(out))
		return
	}

	h.cs.stats.Incr(stats.MessagesPersisted)
	h.cs.rooms.Publish(h.room, MessageEvent(out))

	if err := h.cs.feed.PublishMessage(context.Background(), out); err != nil {
		h.cs.log.Printf("chat %d: feed: %v", h.chatId, err)
	}
}
