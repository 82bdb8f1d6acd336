// Package api serves the authenticated HTTP surface: match negotiation,
// chat history and presence. Every route under /api requires a session token
// and answers errors with the {"error","msg"} body of package apperr.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/artxchange/skillswap/internal/apperr"
	"github.com/artxchange/skillswap/internal/chat"
	"github.com/artxchange/skillswap/internal/identity"
	"github.com/artxchange/skillswap/internal/match"
	"github.com/artxchange/skillswap/internal/ratelimit"
)

// PresenceChecker answers whether a user holds an open socket on any node.
// presence.Store implements it.
type PresenceChecker interface {
	Online(ctx context.Context, userID string) (bool, error)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Matches  *match.Service
	Chat     *chat.Service
	Presence PresenceChecker // nil answers every presence query with offline
	Verifier identity.Verifier
	Limiter  ratelimit.Checker // nil disables request limits
}

type handler struct {
	matches  *match.Service
	chat     *chat.Service
	presence PresenceChecker
	verifier identity.Verifier
	limiter  ratelimit.Checker
}

// Register mounts the /api routes on r.
func Register(r *mux.Router, d Deps) {
	h := &handler{
		matches:  d.Matches,
		chat:     d.Chat,
		presence: d.Presence,
		verifier: d.Verifier,
		limiter:  d.Limiter,
	}
	if h.limiter == nil {
		h.limiter = ratelimit.AllowAll{}
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.authenticate)

	registerMatchRoutes(api, h)
	registerChatRoutes(api, h)
}

// authenticate resolves the session token to a user id and stores it in the
// request context.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := identity.TokenFromRequest(r)
		if token == "" {
			writeError(w, r, apperr.Authentication("No token provided"))
			return
		}
		userID, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), userID)))
	})
}

// caller returns the authenticated user. The middleware guarantees it is set.
func caller(r *http.Request) string {
	id, _ := identity.UserFrom(r.Context())
	return id
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

// writeError maps err to its status and body. Internal failures are logged
// with their cause and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, apperr.Body(err))
}
