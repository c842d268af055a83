package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/model"
)

// CodeInvalidHeader is returned for a malformed Storefront-Session header.
const CodeInvalidHeader = "invalid_session_header"

type contextKey string

const sessionContextKey contextKey = "storefront.session"

// Middleware decodes the Storefront-Session header into the request context.
// A request without the header is anonymous: browsing works, cart operations
// are refused downstream. A malformed header or a client newer than
// serverVersion is rejected with 400.
func Middleware(serverVersion string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderName)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			h, err := ParseHeader(raw)
			if err != nil {
				logger.Warn("invalid session header", slog.String("error", err.Error()))
				writeSessionError(w, CodeInvalidHeader, "Invalid Storefront-Session header: "+err.Error())
				return
			}

			if err := CheckVersion(serverVersion, h.Version); err != nil {
				var verErr *VersionError
				if errors.As(err, &verErr) {
					writeSessionError(w, verErr.Code, verErr.Message)
					return
				}
				writeSessionError(w, CodeVersionUnsupported, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), h.Session)))
		})
	}
}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext returns the session stored by Middleware, or an anonymous one.
func FromContext(ctx context.Context) model.Session {
	s, _ := ctx.Value(sessionContextKey).(model.Session)
	return s
}

func writeSessionError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
