package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/npezzotti/go-directmessages/internal/config"
	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/server"
	"github.com/npezzotti/go-directmessages/internal/stats"
	"github.com/npezzotti/go-directmessages/internal/testutil"
	"github.com/npezzotti/go-directmessages/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, db database.Repository) *GoChatApp {
	t.Helper()

	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, db, stats.NewMockStatsUpdater(), server.Options{StoreTimeout: time.Second})
	require.NoError(t, err)

	return NewGoChatApp(http.NewServeMux(), logger, cs, db, &config.Config{ServerAddr: "localhost:0"})
}

func doRequest(t *testing.T, app *GoChatApp, target string) *httptest.ResponseRecorder {
	t.Helper()

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

// seedChat stores alice and bob, their chat and the given texts sent by
// alice, returning the chat.
func seedChat(t *testing.T, db *database.MemoryRepository, texts ...string) database.Chat {
	t.Helper()

	ctx := context.Background()
	alice, err := db.CreateUser(ctx, database.CreateUserParams{UUID: "uuid-1", Username: "alice"})
	require.NoError(t, err)
	bob, err := db.CreateUser(ctx, database.CreateUserParams{UUID: "uuid-2", Username: "bob"})
	require.NoError(t, err)
	chat, err := db.CreateChat(ctx, alice.Id, bob.Id)
	require.NoError(t, err)

	for i, text := range texts {
		_, _, err := db.CreateMessage(ctx, database.CreateMessageParams{
			Hash:       fmt.Sprintf("h%d", i),
			ChatId:     chat.Id,
			SenderUUID: "uuid-1",
			Text:       testutil.Ptr(text),
		})
		require.NoError(t, err)
	}

	return chat
}

func TestGetChats(t *testing.T) {
	db := database.NewMemoryRepository()
	app := newTestApp(t, db)
	chat := seedChat(t, db, "first", "second")

	t.Run("chats of a member", func(t *testing.T) {
		rr := doRequest(t, app, "/api/chats?uuid=uuid-2")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))

		var chats []types.Chat
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&chats))
		require.Len(t, chats, 1)
		assert.Equal(t, chat.Id, chats[0].Id)
		assert.Len(t, chats[0].Users, 2)
		assert.Equal(t, 2, chats[0].Unread)
		require.NotNil(t, chats[0].LastMessage)
		assert.Equal(t, "second", *chats[0].LastMessage.Text)
	})

	t.Run("sender has nothing unread", func(t *testing.T) {
		rr := doRequest(t, app, "/api/chats?uuid=uuid-1")
		require.Equal(t, http.StatusOK, rr.Code)

		var chats []types.Chat
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&chats))
		require.Len(t, chats, 1)
		assert.Equal(t, 0, chats[0].Unread)
	})

	t.Run("unknown uuid", func(t *testing.T) {
		rr := doRequest(t, app, "/api/chats?uuid=nobody")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("invalid uuid", func(t *testing.T) {
		for _, target := range []string{"/api/chats", "/api/chats?uuid=UPPER", "/api/chats?uuid=a%20b"} {
			rr := doRequest(t, app, target)
			assert.Equal(t, http.StatusBadRequest, rr.Code, target)
		}
	})
}

func TestGetChats_storeErrors(t *testing.T) {
	tcases := []struct {
		name       string
		err        error
		statusCode int
	}{
		{name: "timeout", err: fmt.Errorf("list chats: %w", database.ErrTimeout), statusCode: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("connection reset"), statusCode: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockRepository{}
			defer db.AssertExpectations(t)
			db.On("ListChatsForUser", mock.Anything, "uuid-1").Return([]database.ChatSummary(nil), tc.err).Once()

			rr := doRequest(t, newTestApp(t, db), "/api/chats?uuid=uuid-1")
			assert.Equal(t, tc.statusCode, rr.Code)

			var errResp ApiError
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
			assert.Equal(t, tc.statusCode, errResp.StatusCode)
		})
	}
}

func TestGetMessages(t *testing.T) {
	db := database.NewMemoryRepository()
	app := newTestApp(t, db)

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("message %d", i)
	}
	chat := seedChat(t, db, texts...)

	rr := doRequest(t, app, fmt.Sprintf("/api/chats/%d/messages", chat.Id))
	require.Equal(t, http.StatusOK, rr.Code)

	var page []types.Message
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&page))
	require.Len(t, page, database.DefaultMessageLimit)
	assert.Equal(t, "message 5", *page[0].Text, "expected the newest page oldest-first")
	assert.Equal(t, "message 24", *page[len(page)-1].Text)

	lastDate := url.QueryEscape(page[0].Created.Format(time.RFC3339Nano))
	rr = doRequest(t, app, fmt.Sprintf("/api/chats/%d/messages?lastDate=%s", chat.Id, lastDate))
	require.Equal(t, http.StatusOK, rr.Code)

	var older []types.Message
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&older))
	require.Len(t, older, 5)
	assert.Equal(t, "message 0", *older[0].Text)
	assert.Equal(t, "message 4", *older[4].Text)
}

func TestGetMessages_errors(t *testing.T) {
	db := database.NewMemoryRepository()
	app := newTestApp(t, db)
	chat := seedChat(t, db)

	tcases := []struct {
		name       string
		target     string
		statusCode int
	}{
		{name: "non numeric id", target: "/api/chats/abc/messages", statusCode: http.StatusNotFound},
		{name: "zero id", target: "/api/chats/0/messages", statusCode: http.StatusNotFound},
		{name: "unknown chat", target: "/api/chats/999/messages", statusCode: http.StatusNotFound},
		{name: "bad lastDate", target: fmt.Sprintf("/api/chats/%d/messages?lastDate=yesterday", chat.Id), statusCode: http.StatusBadRequest},
		{name: "empty chat", target: fmt.Sprintf("/api/chats/%d/messages", chat.Id), statusCode: http.StatusOK},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, app, tc.target)
			assert.Equal(t, tc.statusCode, rr.Code)
		})
	}
}

func Test_parseChatId(t *testing.T) {
	tcases := []struct {
		in   string
		id   int
		want bool
	}{
		{in: "12", id: 12, want: true},
		{in: "0", want: false},
		{in: "-1", want: false},
		{in: "+1", want: false},
		{in: "1a", want: false},
		{in: "", want: false},
	}

	for _, tc := range tcases {
		t.Run(tc.in, func(t *testing.T) {
			id, ok := parseChatId(tc.in)
			assert.Equal(t, tc.want, ok)
			assert.Equal(t, tc.id, id)
		})
	}
}

func Test_routePatterns(t *testing.T) {
	assert.True(t, uuidPattern.MatchString("3f0c2a1e-88b1-4c4f-9d1a-0f1e2d3c4b5a"))
	assert.False(t, uuidPattern.MatchString("ABC"))
	assert.True(t, usernamePattern.MatchString("alice smith"))
	assert.True(t, usernamePattern.MatchString("José_2"))
	assert.False(t, usernamePattern.MatchString("alice!"))
	assert.False(t, usernamePattern.MatchString(""))
}
