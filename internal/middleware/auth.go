package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"dailypost/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// BearerAuth rejects requests whose Authorization header does not carry the
// configured token. An empty token disables the check. Paths in open are
// served without a token.
func BearerAuth(token string, logger *logrus.Logger, open ...string) mux.MiddlewareFunc {
	public := make(map[string]bool, len(open))
	for _, p := range open {
		public[p] = true
	}

	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			scheme, presented, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") ||
				subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(token)) != 1 {
				logger.WithFields(logrus.Fields{
					LogFieldRequestID: tracing.GetRequestID(r.Context()),
					LogFieldRoute:     routeTemplate(r),
				}).Warn("Rejected request with missing or invalid API token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="dailypost"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
