package server

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/stats"
	"github.com/npezzotti/go-directmessages/internal/types"
)

type presenceState int32

const (
	stateConnecting presenceState = iota
	stateJoined
	stateAccepted
	stateRejected
	stateDisconnected
)

func (s presenceState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateJoined:
		return "joined"
	case stateAccepted:
		return "accepted"
	case stateRejected:
		return "rejected"
	case stateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// lobbyHandler tracks one connection on the lobby route. claimed is set
// once the identity may be stored on behalf of this connection, and only
// then does its disconnect delete it.
type lobbyHandler struct {
	cs       *ChatServer
	uuid     string
	username string
	state    atomic.Int32
	claimed  atomic.Bool
}

func newLobbyHandler(cs *ChatServer, uuid, username string) *lobbyHandler {
	return &lobbyHandler{cs: cs, uuid: uuid, username: username}
}

func (h *lobbyHandler) State() presenceState {
	return presenceState(h.state.Load())
}

func (h *lobbyHandler) setState(s presenceState) {
	h.state.Store(int32(s))
}

// onConnect joins the lobby before touching the store so a rejection
// notice reaches the connection that caused it.
func (h *lobbyHandler) onConnect(c *Client) {
	h.cs.rooms.Join(LobbyRoom, c)
	h.setState(stateJoined)

	user, err := h.cs.lifecycle.CreateIdentity(context.Background(), h.username, h.uuid)
	if err == nil || errors.Is(err, errCreateUnsettled) {
		h.claimed.Store(true)
	}

	switch {
	case err == nil:
		h.setState(stateAccepted)
		h.cs.stats.Incr(stats.PresentUsers)
		h.cs.log.Printf("client %s: %q joined the lobby", c.id, h.username)
		h.cs.rooms.Publish(LobbyRoom, CreateEvent(types.NewUser(user)))
	case errors.Is(err, database.ErrConflict):
		h.setState(stateRejected)
		h.cs.stats.Incr(stats.RejectedUsers)
		h.cs.log.Printf("client %s: rejected %q: %v", c.id, h.username, err)
		h.cs.rooms.Publish(LobbyRoom, ExceptionEvent(usernameTakenMsg, h.uuid))
	case errors.Is(err, ErrPersistenceTimeout):
		h.cs.log.Printf("client %s: create identity %q: %v", c.id, h.username, err)
		c.queueMessage(ErrorEvent(persistenceTimeoutMsg))
	default:
		h.cs.log.Printf("client %s: create identity %q: %v", c.id, h.username, err)
		c.queueMessage(ErrorEvent("could not join the lobby"))
	}
}

func (h *lobbyHandler) onMessage(c *Client, raw []byte) {
	h.cs.log.Printf("client %s: ignoring %d byte frame on the lobby", c.id, len(raw))
}

func (h *lobbyHandler) onDisconnect(c *Client) {
	prev := presenceState(h.state.Swap(int32(stateDisconnected)))

	if h.claimed.Load() {
		if err := h.cs.lifecycle.DeleteIdentity(context.Background(), h.uuid, h.username); err != nil {
			h.cs.log.Printf("client %s: delete identity %q: %v", c.id, h.uuid, err)
		}
	}
	if prev == stateAccepted {
		h.cs.stats.Decr(stats.PresentUsers)
	}

	h.cs.rooms.Leave(LobbyRoom, c)
}
