// Package identity turns request credentials into a user id. Token issuance
// belongs to the account service; this package only verifies.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Verifier resolves a bearer token to the id of the user it was issued to.
// Implementations return an apperr Authentication error for any token that
// must not be admitted.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// CookieName is the cookie carrying a session token.
const CookieName = "token"

// TokenFromRequest extracts a token from, in order, the "token" query
// parameter, an "Authorization: Bearer" header and the token cookie. It
// returns "" if none is present.
func TokenFromRequest(r *http.Request) string {
	if t := HandshakeToken(r); t != "" {
		return t
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// HandshakeToken extracts a token from the "token" query parameter or an
// "Authorization: Bearer" header. Cookies are ignored: a browser attaches them
// to cross-site websocket handshakes too.
func HandshakeToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		if t := strings.TrimSpace(h[7:]); t != "" {
			return t
		}
	}
	return ""
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying the authenticated user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the authenticated user id stored by WithUser.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
