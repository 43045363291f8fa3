package httpmiddleware

import (
	"net/http"

	"go.uber.org/zap"
)

// Recovery turns a panic in a handler into a logged 500 with a JSON error
// body. http.ErrAbortHandler is re-raised so net/http can abort the
// connection.
//
// Recovery usually runs ahead of InjectLogger, so panics are logged to lg.
// The request id is taken from the response header set by RequestID.
func Recovery(lg *zap.Logger) Middleware {
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
				fields := []zap.Field{
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				}
				if id := w.Header().Get(requestIDHeader); id != "" {
					fields = append(fields, zap.String("request_id", id))
				}
				lg.Error("Panic recovered", fields...)
				w.Header().Set("Connection", "close")
				writeError(w, http.StatusInternalServerError, "Server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
