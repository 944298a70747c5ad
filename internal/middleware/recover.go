package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"chat_gateway/internal/logging"
	"chat_gateway/internal/utils"
)

// PanicMessage is the error body sent when a handler panics.
const PanicMessage = "Failed to process chat request"

// Recover turns a handler panic into a 500 JSON answer. If the handler had
// already started a streamed response there is nothing left to send, so the
// connection is simply closed.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}

			logging.Errorf("panic serving %s %s (request %s): %v\n%s",
				r.Method, r.URL.Path, GetRequestID(r.Context()), v, debug.Stack())

			if rec.wroteHeader {
				panic(http.ErrAbortHandler)
			}
			utils.RespondWithErrorDetails(w, http.StatusInternalServerError, PanicMessage, fmt.Sprint(v))
		}()
		next.ServeHTTP(rec, r)
	})
}
