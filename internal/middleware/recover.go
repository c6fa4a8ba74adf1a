// Package middleware holds HTTP middlewares shared by the router.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	"weather-cache/internal/handlers"
	"weather-cache/internal/logging"
)

// Recoverer turns a panic in a handler into the generic 500 response and logs
// it at CRITICAL. http.ErrAbortHandler is re-raised so net/http can drop the
// connection as it intends.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logging.Critical(r.Context(), logger, "unhandled panic",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", chimw.GetReqID(r.Context()),
					"stack", string(debug.Stack()),
				)
				handlers.WriteError(w, http.StatusInternalServerError, handlers.MsgServiceUnavailable)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
