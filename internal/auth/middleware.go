package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"
)

// CookieName is the cookie holding the signed session token.
const CookieName = "bookshelf_session"

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the session id.
type contextKey string

const sessionIDKey contextKey = "sessionID"

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	// Secure marks the cookie HTTPS-only. Leave it off for plain-HTTP local
	// development or the browser will drop the cookie.
	Secure bool
}

// Session is a middleware that guarantees every request carries a session id.
//
// It reads the JWT from the session cookie and, if it is valid, stores the
// session id it names in the request context. If the cookie is missing,
// expired or forged, a new id is minted and a fresh cookie is set on the
// response. Handlers never see a request without an id, and they must treat
// an id whose state is not in the store as a new session.
//
// The cookie is HttpOnly, so page scripts cannot read it, and SameSite=Lax,
// so cross-site form posts do not carry it.
func Session(tokens *TokenService, opts CookieOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := extractSessionID(r, tokens)
			if err != nil {
				sessionID = xid.New().String()

				token, err := tokens.Generate(sessionID)
				if err != nil {
					logger.Error("issuing session token", slog.String("error", err.Error()))
					http.Error(w, `{"error":"internal_error","message":"an unexpected error occurred"}`, http.StatusInternalServerError)
					return
				}

				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(tokens.TTL().Seconds()),
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithSessionID(r.Context(), sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithSessionID returns a copy of ctx carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext retrieves the session id set by Session.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok && id != ""
}

func extractSessionID(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		// http.ErrNoCookie: first visit, or the cookie was cleared.
		return "", err
	}
	return tokens.Validate(cookie.Value)
}
