package middleware

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// APIKey rejects requests whose header does not carry exactly key. An empty
// configured key rejects everything.
func APIKey(header, key string, logr *zap.Logger) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				logr.Warn("api key rejected",
					zap.String("path", r.URL.Path),
					zap.Bool("present", got != ""),
				)
				writeDetail(w, http.StatusForbidden, "Could not validate credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
