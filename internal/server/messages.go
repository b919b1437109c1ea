package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/npezzotti/go-directmessages/internal/types"
)

const (
	EventCreate    = "create"
	EventDelete    = "delete"
	EventException = "exception"
	EventRead      = "read"
	EventMessage   = "message"
	EventRtc       = "rtc"
	EventError     = "error"
)

const (
	usernameTakenMsg      = "username already taken"
	persistenceTimeoutMsg = "the server is busy, try again"
	invalidMessageMsg     = "invalid message format"
	messageFailedMsg      = "message could not be saved"
	readFailedMsg         = "read receipt could not be saved"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrPersistenceTimeout = errors.New("persistence timeout")
)

// ServerMessage is the outbound envelope, one JSON text frame per event.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ChatID accepts a JSON number or a numeric string.
type ChatID int

func (id *ChatID) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ChatID(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("chat id: %w", err)
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("chat id %q: %w", s, err)
	}
	*id = ChatID(n)

	return nil
}

type Sender struct {
	UUID string `json:"uuid" validate:"required,max=500"`
}

type ReadPayload struct {
	ChatId ChatID `json:"chatId" validate:"gt=0"`
	UUID   string `json:"uuid" validate:"required,max=500"`
}

type MessagePayload struct {
	Sender     Sender  `json:"sender"`
	Hash       string  `json:"hash" validate:"required,max=500"`
	ChatId     ChatID  `json:"chatId" validate:"gt=0"`
	Text       *string `json:"text"`
	Attachment *string `json:"attachment"`
	Audio      *string `json:"audio"`
}

type ExceptionPayload struct {
	Message string `json:"message"`
	UUID    string `json:"uuid"`
}

type ReadReceipt struct {
	Sender Sender `json:"sender"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func CreateEvent(u types.User) *ServerMessage {
	return &ServerMessage{Type: EventCreate, Payload: u}
}

func DeleteEvent(u types.User) *ServerMessage {
	return &ServerMessage{Type: EventDelete, Payload: u}
}

func ExceptionEvent(message, uuid string) *ServerMessage {
	return &ServerMessage{
		Type:    EventException,
		Payload: ExceptionPayload{Message: message, UUID: uuid},
	}
}

func ReadEvent(uuid string) *ServerMessage {
	return &ServerMessage{
		Type:    EventRead,
		Payload: ReadReceipt{Sender: Sender{UUID: uuid}},
	}
}

func MessageEvent(m types.Message) *ServerMessage {
	return &ServerMessage{Type: EventMessage, Payload: m}
}

// RtcEvent relays a signaling payload untouched.
func RtcEvent(payload json.RawMessage) *ServerMessage {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return &ServerMessage{Type: EventRtc, Payload: payload}
}

func ErrorEvent(message string) *ServerMessage {
	return &ServerMessage{
		Type:    EventError,
		Payload: ErrorPayload{Message: message},
	}
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}
