package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-directmessages/internal/database"
	"github.com/npezzotti/go-directmessages/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &GoChatApp{
		log: testutil.TestLogger(t),
	}

	app.log.SetOutput(buf)

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic serving GET /: test panic")

	var errResp ApiError
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, "internal server error", errResp.Message)
}

func TestErrorHandler_PanicValue(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &GoChatApp{log: log.New(buf, "", 0)}

	handler := app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("plain string")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, buf.String(), "panic serving GET /: plain string")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &GoChatApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func Test_noCache(t *testing.T) {
	app := &GoChatApp{}

	rr := httptest.NewRecorder()
	app.noCache(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
}

func TestApiError(t *testing.T) {
	inner := errors.New("boom")
	err := NewInternalServerError(inner)

	assert.Equal(t, "internal server error: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "not found", NewNotFoundError().Error())
	assert.Equal(t, http.StatusBadRequest, NewBadRequestError().StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, NewServiceUnavailableError(inner).StatusCode)
}

func TestNewStoreError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", fmt.Errorf("get chat 3: %w", database.ErrNotFound), http.StatusNotFound},
		{"store timeout", fmt.Errorf("list chats: %w", database.ErrTimeout), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"other", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errResp := NewStoreError(tt.err)
			assert.Equal(t, tt.wantStatus, errResp.StatusCode)
		})
	}
}
