package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const requestIDKey ctxKey = 1

// maxRequestIDLen bounds client-supplied ids; longer or unsafe ones are replaced.
const maxRequestIDLen = 64

// validRequestID accepts ids made of letters, digits, '-', '_' and '.'.
func validRequestID(rid string) bool {
	if rid == "" || len(rid) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(rid); i++ {
		c := rid[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// RequestID tags every request with an id, echoed in X-Request-ID, and
// attaches a logger carrying it to the request context. Handlers log
// through RequestLogger so their lines join the access log by rid.
func RequestID(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		reqLog := log.With().Str("rid", rid).Logger()
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		ctx = reqLog.WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequestLogger returns the logger RequestID attached to ctx, or a disabled
// logger outside the middleware.
func RequestLogger(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
