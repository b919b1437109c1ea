package api

import (
	"fmt"
	"net/http"
)

// errorHandler turns a panicking handler into a 500. Websocket routes have
// hijacked the connection by the time their pumps run, so this only guards
// the upgrade and the listing routes.
func (s *GoChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}

			err, ok := v.(error)
			if !ok {
				err = fmt.Errorf("%v", v)
			}
			s.log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, err)

			w.Header().Set("Connection", "close")
			s.writeError(w, NewInternalServerError(err))
		}()

		next.ServeHTTP(w, r)
	})
}

// noCache keeps chat lists and message pages out of shared caches; both
// change with every message.
func (s *GoChatApp) noCache(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r)
	}
}
