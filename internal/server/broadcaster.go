package server

import (
	"log"
	"sync"

	"github.com/npezzotti/go-directmessages/internal/stats"
)

const LobbyRoom = "main"

// Broadcaster is a set of named groups of clients. An event published to
// a group is queued on every client in the group at the time of the call.
type Broadcaster struct {
	log   *log.Logger
	stats stats.StatsProvider
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewBroadcaster(logger *log.Logger, su stats.StatsProvider) *Broadcaster {
	return &Broadcaster{
		log:   logger,
		stats: su,
		rooms: make(map[string]map[*Client]struct{}),
	}
}

func (b *Broadcaster) Join(room string, c *Client) {
	b.mu.Lock()
	members, ok := b.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		b.rooms[room] = members
	}
	members[c] = struct{}{}
	b.mu.Unlock()

	c.addRoom(room)
}

func (b *Broadcaster) Leave(room string, c *Client) {
	b.mu.Lock()
	if members, ok := b.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
	b.mu.Unlock()

	c.delRoom(room)
}

func (b *Broadcaster) LeaveAll(c *Client) {
	for _, room := range c.roomIds() {
		b.Leave(room, c)
	}
}

// Publish returns the number of clients the event was queued on. A client
// with a full queue is skipped.
func (b *Broadcaster) Publish(room string, msg *ServerMessage) int {
	b.mu.RLock()
	members := make([]*Client, 0, len(b.rooms[room]))
	for c := range b.rooms[room] {
		members = append(members, c)
	}
	b.mu.RUnlock()

	var delivered int
	for _, c := range members {
		if !c.queueMessage(msg) {
			b.log.Printf("failed to deliver %q event to client %s in room %q", msg.Type, c.id, room)
			b.stats.Incr(stats.PublishFailures)
			continue
		}
		delivered++
	}

	return delivered
}

func (b *Broadcaster) Size(room string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.rooms[room])
}
