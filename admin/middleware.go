package admin

import (
	"net/http"

	"go.uber.org/zap"
)

// Recoverer absorbs panics raised while handling a request. The admin
// surface is read-only reporting; a panic here must never take down the
// progress-tracking daemon, so it is logged and answered with a 500.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("admin handler panicked",
						zap.String("path", r.URL.Path),
						zap.Any("err", err))
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
