package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type correlationKey struct{}

// HeaderCorrelationID is echoed on every response.
const HeaderCorrelationID = "X-Correlation-ID"

// correlationSources are checked in order. Kick reuses the message id when it
// redelivers an event, so redeliveries share one id in the logs.
var correlationSources = []string{
	HeaderCorrelationID,
	"Kick-Event-Message-Id",
}

// CorrelationID tags the request with the first non-empty correlation source
// header, or a fresh UUID, and echoes it back.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestCorrelationID(r)
		w.Header().Set(HeaderCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func requestCorrelationID(r *http.Request) string {
	for _, h := range correlationSources {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// GetCorrelationID returns the id stored by CorrelationID, or "".
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey{}).(string)
	return v
}
