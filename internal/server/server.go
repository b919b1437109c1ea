package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/feed"
	"github.com/npezzotti/go-directmessages/internal/presence"
	"github.com/npezzotti/go-directmessages/internal/stats"
)

type Options struct {
	StoreTimeout time.Duration
	StoreRetries int
	Mirror       presence.Mirror
	Feed         feed.Publisher

	// CleanupInterval is the first wait before retrying a failed identity
	// removal. It doubles on every attempt.
	CleanupInterval time.Duration
	CleanupAttempts int
}

type ChatServer struct {
	log         *log.Logger
	db          database.Repository
	stats       stats.StatsProvider
	rooms       *Broadcaster
	lifecycle   *Lifecycle
	store       *retrier
	feed        feed.Publisher
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	closing     bool
	wg          sync.WaitGroup
}

func NewChatServer(logger *log.Logger, db database.Repository, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	if db == nil {
		return nil, errors.New("chat server: nil repository")
	}
	if opts.Feed == nil {
		opts.Feed = feed.NopPublisher{}
	}

	store := newRetrier(logger, opts.StoreTimeout, opts.StoreRetries)
	rooms := NewBroadcaster(logger, su)
	lifecycle := NewLifecycle(logger, db, store, rooms, opts.Mirror)
	if opts.CleanupInterval > 0 {
		lifecycle.cleanupInterval = opts.CleanupInterval
	}
	if opts.CleanupAttempts > 0 {
		lifecycle.cleanupAttempts = opts.CleanupAttempts
	}

	cs := &ChatServer{
		log:       logger,
		db:        db,
		stats:     su,
		rooms:     rooms,
		lifecycle: lifecycle,
		store:     store,
		feed:      opts.Feed,
		clients:   make(map[*Client]struct{}),
	}

	for _, metric := range []string{
		stats.ActiveConnections,
		stats.PresentUsers,
		stats.RejectedUsers,
		stats.ChatSessions,
		stats.MessagesPersisted,
		stats.ReadReceipts,
		stats.RtcRelayed,
		stats.PublishFailures,
	} {
		su.RegisterMetric(metric)
	}

	return cs, nil
}

// ServeLobby runs a lobby connection for the given identity.
func (cs *ChatServer) ServeLobby(conn *websocket.Conn, uuid, username string) {
	cs.serve(conn, newLobbyHandler(cs, uuid, username))
}

// ServeChat runs a connection on the room of the given chat.
func (cs *ChatServer) ServeChat(conn *websocket.Conn, chatId int) {
	cs.serve(conn, newChatHandler(cs, chatId))
}

func (cs *ChatServer) serve(conn *websocket.Conn, h connHandler) {
	c := NewClient(conn, cs, h, cs.log)
	if !cs.addClient(c) {
		conn.Close()
		return
	}

	go c.Write()
	go c.Read()
}

func (cs *ChatServer) Rooms() *Broadcaster {
	return cs.rooms
}

func (cs *ChatServer) RoomSize(room string) int {
	return cs.rooms.Size(room)
}

func (cs *ChatServer) PurgeStale(ctx context.Context) (int, error) {
	return cs.lifecycle.PurgeStale(ctx)
}

func (cs *ChatServer) addClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if cs.closing {
		return false
	}

	cs.clients[c] = struct{}{}
	cs.wg.Add(1)
	cs.stats.Incr(stats.ActiveConnections)
	cs.log.Printf("adding connection %s", c.id)

	return true
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.wg.Done()
	cs.stats.Decr(stats.ActiveConnections)
	cs.log.Printf("removing connection %s", c.id)
}

// Shutdown stops every client and waits until all of them went through
// their disconnect path, then stops pending identity cleanups.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	cs.closing = true
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		cs.lifecycle.Close()
		close(done)
	}()

	select {
	case <-done:
		if err := cs.feed.Close(); err != nil {
			cs.log.Printf("closing feed: %v", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
