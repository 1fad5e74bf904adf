package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/core"
)

// Recoverer turns a handler panic into a NUFFI_INTERNAL response.
// http.ErrAbortHandler is re-raised so the server can drop the connection.
func Recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				log.Error("panic recovered",
					zap.Any("panic", rvr),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("stack", string(debug.Stack())),
					zap.String("request_id", GetRequestID(r)),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(core.NewAppError(core.ErrInternal, "internal server error"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
