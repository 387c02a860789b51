package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/angelmondragon/partnerledger-backend/pkg/logger"
)

const (
	requestIDHeader     = "X-Request-Id"
	correlationIDHeader = "X-Correlation-Id"
	maxRequestIDLen     = 128
)

// RequestID keeps a usable caller id from X-Request-Id or X-Correlation-Id
// and otherwise mints a time-ordered one. The id is echoed on the response,
// bound to the logger and stored where chi's GetReqID finds it.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := callerRequestID(r)
			if id == "" {
				id = mintRequestID()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerRequestID(r *http.Request) string {
	for _, h := range []string{requestIDHeader, correlationIDHeader} {
		if id := r.Header.Get(h); printableASCII(id, maxRequestIDLen) {
			return id
		}
	}
	return ""
}

func mintRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// printableASCII rejects empty, oversized and non-printable values so they
// cannot break log lines.
func printableASCII(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for _, c := range []byte(s) {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}
