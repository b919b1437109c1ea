package api

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/types"
	"github.com/samber/lo"
)

const queryTimeout = 5 * time.Second

var (
	uuidPattern     = regexp.MustCompile(`^[a-z0-9-]+$`)
	usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_\s]+$`)
	chatIdPattern   = regexp.MustCompile(`^[0-9]+$`)
)

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *GoChatApp) storeError(w http.ResponseWriter, err error) {
	errResp := NewStoreError(err)
	if errResp.Err != nil {
		s.log.Printf("store: %v", err)
	}
	s.writeError(w, errResp)
}

func (s *GoChatApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func parseChatId(s string) (int, bool) {
	if !chatIdPattern.MatchString(s) {
		return 0, false
	}

	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *GoChatApp) serveLobby(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	username := r.PathValue("username")
	if !uuidPattern.MatchString(uuid) || !usernamePattern.MatchString(username) {
		s.writeError(w, NewNotFoundError())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.ServeLobby(conn, uuid, username)
}

func (s *GoChatApp) serveChat(w http.ResponseWriter, r *http.Request) {
	id, ok := parseChatId(r.PathValue("id"))
	if !ok {
		s.writeError(w, NewNotFoundError())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.ServeChat(conn, id)
}

func (s *GoChatApp) getChats(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("uuid")
	if !uuidPattern.MatchString(uuid) {
		s.writeError(w, NewBadRequestError())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	chats, err := s.db.ListChatsForUser(ctx, uuid)
	if err != nil {
		s.storeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, lo.Map(chats, func(c database.ChatSummary, _ int) types.Chat {
		return types.NewChat(c)
	}))
}

// getMessages returns up to a page of messages older than lastDate,
// oldest first.
func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseChatId(r.PathValue("id"))
	if !ok {
		s.writeError(w, NewNotFoundError())
		return
	}

	var before time.Time
	if lastDate := r.URL.Query().Get("lastDate"); lastDate != "" {
		var err error
		before, err = time.Parse(time.RFC3339Nano, lastDate)
		if err != nil {
			s.writeError(w, NewBadRequestError())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if _, err := s.db.GetChat(ctx, id); err != nil {
		s.storeError(w, err)
		return
	}

	messages, err := s.db.GetMessages(ctx, id, before, database.DefaultMessageLimit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	slices.Reverse(messages)

	s.writeJson(w, http.StatusOK, types.NewMessages(messages))
}
