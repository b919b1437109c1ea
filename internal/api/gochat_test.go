package api

import (
	"net/http"
	"testing"

	"github.com/npezzotti/go-directmessages/internal/config"
	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/server"
	"github.com/npezzotti/go-directmessages/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewGoChatApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	cs := &server.ChatServer{}
	db := &database.MockRepository{}
	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	app := NewGoChatApp(mux, logger, cs, db, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected mux to be initialized")
	assert.Equal(t, app.log, logger, "expected logger to be set")
	assert.Equal(t, app.db, db, "expected db to be set")
	assert.Equal(t, app.cs, cs, "expected chat server to be set")
	assert.Equal(t, cfg.AllowedOrigins, app.allowedOrigins, "expected allowed origins to be set")
	assert.Equal(t, app.mux.Addr, cfg.ServerAddr, "expected server address to match config")
	assert.NotNil(t, app.Handler())
}

func TestGoChatApp_checkOrigin(t *testing.T) {
	app := &GoChatApp{allowedOrigins: []string{"http://localhost:3000"}}

	tcases := []struct {
		name   string
		origin string
		want   bool
	}{
		{name: "no origin", origin: "", want: true},
		{name: "allowed origin", origin: "http://localhost:3000", want: true},
		{name: "other origin", origin: "http://evil.example", want: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/websocket/chat/1", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.want, app.checkOrigin(req))
		})
	}
}
