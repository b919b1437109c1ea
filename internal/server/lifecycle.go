package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/presence"
	"github.com/npezzotti/go-directmessages/internal/types"
)

const (
	DefaultCleanupInterval = time.Second
	DefaultCleanupAttempts = 5
)

// errCreateUnsettled marks a create that timed out after the insert was
// sent, so the row may or may not exist.
var errCreateUnsettled = errors.New("identity may have been stored")

// Lifecycle creates and destroys identities together with their chats.
// Every identity change in the process goes through it, one at a time.
type Lifecycle struct {
	mu     sync.Mutex
	log    *log.Logger
	db     database.Repository
	store  *retrier
	rooms  *Broadcaster
	mirror presence.Mirror

	cleanupInterval time.Duration
	cleanupAttempts int
	pending         sync.WaitGroup
	done            chan struct{}
	closeOnce       sync.Once
}

func NewLifecycle(logger *log.Logger, db database.Repository, store *retrier, rooms *Broadcaster, mirror presence.Mirror) *Lifecycle {
	if mirror == nil {
		mirror = presence.NopMirror{}
	}

	return &Lifecycle{
		log:             logger,
		db:              db,
		store:           store,
		rooms:           rooms,
		mirror:          mirror,
		cleanupInterval: DefaultCleanupInterval,
		cleanupAttempts: DefaultCleanupAttempts,
		done:            make(chan struct{}),
	}
}

// CreateIdentity stores a new user and pairs it with every existing user.
// A taken username or uuid yields database.ErrConflict.
func (l *Lifecycle) CreateIdentity(ctx context.Context, username, uuid string) (database.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var exists bool
	err := l.store.do(ctx, "user exists", func(ctx context.Context) error {
		var err error
		exists, err = l.db.UserExists(ctx, username)
		return err
	})
	if err != nil {
		return database.User{}, err
	}
	if exists {
		return database.User{}, fmt.Errorf("create identity %q: %w", username, database.ErrConflict)
	}

	user, err := l.insertUser(ctx, username, uuid)
	if err != nil {
		return database.User{}, err
	}

	var others []database.User
	err = l.store.do(ctx, "list users", func(ctx context.Context) error {
		var err error
		others, err = l.db.ListUsers(ctx)
		return err
	})
	if err != nil {
		l.log.Printf("create identity %q: could not pair chats: %v", username, err)
		others = nil
	}

	for _, other := range others {
		if other.Id == user.Id {
			continue
		}

		err := l.store.do(ctx, "create chat", func(ctx context.Context) error {
			_, err := l.db.CreateChat(ctx, user.Id, other.Id)
			return err
		})
		if err != nil {
			l.log.Printf("create chat %q/%q: %v", user.Username, other.Username, err)
		}
	}

	if err := l.mirror.SetOnline(ctx, user.UUID, user.Username); err != nil {
		l.log.Printf("presence mirror: set online %q: %v", user.UUID, err)
	}

	return user, nil
}

// insertUser runs the insert through the retrier. A conflict on a retry
// can be the row an earlier timed out attempt committed; it counts as
// created when uuid and username both match.
func (l *Lifecycle) insertUser(ctx context.Context, username, uuid string) (database.User, error) {
	var (
		user     database.User
		attempts int
	)
	err := l.store.do(ctx, "create user", func(ctx context.Context) error {
		attempts++
		var err error
		user, err = l.db.CreateUser(ctx, database.CreateUserParams{UUID: uuid, Username: username})
		return err
	})
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, database.ErrConflict) && attempts > 1:
	case errors.Is(err, ErrPersistenceTimeout), attempts > 1:
		return database.User{}, fmt.Errorf("%w: %w", errCreateUnsettled, err)
	default:
		return database.User{}, err
	}

	err = l.store.do(ctx, "get user", func(ctx context.Context) error {
		var err error
		user, err = l.db.GetUserByUUID(ctx, uuid)
		return err
	})
	if errors.Is(err, ErrPersistenceTimeout) {
		return database.User{}, fmt.Errorf("%w: %w", errCreateUnsettled, err)
	}
	if err != nil {
		return database.User{}, fmt.Errorf("create identity %q: %w", username, database.ErrConflict)
	}
	if user.Username != username {
		return database.User{}, fmt.Errorf("create identity %q: uuid %q: %w", username, uuid, database.ErrConflict)
	}

	l.log.Printf("create identity %q: recovered row from a timed out attempt", username)
	return user, nil
}

// DeleteIdentity tells the lobby the user is gone, removes every chat the
// user belongs to and then the user. Nothing happens unless the stored
// identity has both the uuid and the username. If the removal fails it is
// retried in the background.
func (l *Lifecycle) DeleteIdentity(ctx context.Context, uuid, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var user database.User
	err := l.store.do(ctx, "get user", func(ctx context.Context) error {
		var err error
		user, err = l.db.GetUserByUUID(ctx, uuid)
		return err
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.Username != username {
		l.log.Printf("delete identity %q: stored as %q, leaving it", username, user.Username)
		return nil
	}

	l.rooms.Publish(LobbyRoom, DeleteEvent(types.NewUser(user)))

	removed, err := l.removeUser(ctx, user)
	if err != nil {
		l.scheduleCleanup(user)
		return err
	}

	l.log.Printf("deleted identity %q and %d chat(s)", user.Username, removed)
	return nil
}

func (l *Lifecycle) removeUser(ctx context.Context, user database.User) (int, error) {
	var removed int
	err := l.store.do(ctx, "delete chats", func(ctx context.Context) error {
		var err error
		removed, err = l.db.DeleteChatsForUser(ctx, user.Id)
		return err
	})
	if err != nil {
		return 0, err
	}

	err = l.store.do(ctx, "delete user", func(ctx context.Context) error {
		return l.db.DeleteUser(ctx, user.UUID)
	})
	if err != nil {
		return removed, err
	}

	if err := l.mirror.SetOffline(ctx, user.UUID); err != nil {
		l.log.Printf("presence mirror: set offline %q: %v", user.UUID, err)
	}

	return removed, nil
}

// scheduleCleanup keeps trying to remove an identity the lobby was already
// told is gone. It stops once the row is gone or belongs to someone else.
func (l *Lifecycle) scheduleCleanup(user database.User) {
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()

		wait := l.cleanupInterval
		for attempt := 1; attempt <= l.cleanupAttempts; attempt++ {
			select {
			case <-l.done:
				return
			case <-time.After(wait):
			}
			wait *= 2

			if l.cleanup(user, attempt) {
				return
			}
		}

		l.log.Printf("cleanup %q: giving up after %d attempt(s); removed on next start", user.Username, l.cleanupAttempts)
	}()
}

func (l *Lifecycle) cleanup(user database.User, attempt int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx := context.Background()

	var current database.User
	err := l.store.do(ctx, "get user", func(ctx context.Context) error {
		var err error
		current, err = l.db.GetUserByUUID(ctx, user.UUID)
		return err
	})
	if errors.Is(err, database.ErrNotFound) {
		return true
	}
	if err != nil {
		l.log.Printf("cleanup %q: attempt %d: %v", user.Username, attempt, err)
		return false
	}
	if current.Id != user.Id {
		return true
	}

	removed, err := l.removeUser(ctx, user)
	if err != nil {
		l.log.Printf("cleanup %q: attempt %d: %v", user.Username, attempt, err)
		return false
	}

	l.log.Printf("cleanup %q: deleted identity and %d chat(s)", user.Username, removed)
	return true
}

// Close stops background cleanups and waits for the running ones.
func (l *Lifecycle) Close() {
	l.closeOnce.Do(func() { close(l.done) })
	l.pending.Wait()
}

// PurgeStale removes identities left over from a previous run. No
// connection can claim them once the process restarts.
func (l *Lifecycle) PurgeStale(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	err := l.store.do(ctx, "purge users", func(ctx context.Context) error {
		var err error
		n, err = l.db.DeleteAllUsers(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	if err := l.mirror.Reset(ctx); err != nil {
		l.log.Printf("presence mirror: reset: %v", err)
	}

	return n, nil
}
