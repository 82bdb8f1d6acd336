package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/artxchange/skillswap/internal/apperr"
	"github.com/artxchange/skillswap/internal/chat"
	"github.com/artxchange/skillswap/internal/metrics"
)

// DefaultHistoryLimit is the page size when the request names none. The
// engine itself returns the whole conversation; this route pages by default
// and a client asks for everything with limit=0.
const DefaultHistoryLimit = 30

func registerChatRoutes(api *mux.Router, h *handler) {
	r := api.PathPrefix("/chat").Subrouter()

	r.Handle("/{partnerId}", metrics.Instrument("chat.history", http.HandlerFunc(h.chatHistory))).Methods(http.MethodGet)
	r.Handle("/{partnerId}/presence", metrics.Instrument("chat.presence", http.HandlerFunc(h.partnerPresence))).Methods(http.MethodGet)
}

// chatHistory returns the conversation with partnerId, oldest first. Without
// a limit it returns only the newest DefaultHistoryLimit messages, unlike
// chat.Service.History with a zero Page. skip counts back from the newest
// message; limit=0 returns everything.
func (h *handler) chatHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := chat.Page{Limit: DefaultHistoryLimit}

	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, apperr.Validation("skip must be an integer"))
			return
		}
		page.Skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, apperr.Validation("limit must be an integer"))
			return
		}
		page.Limit = n
	}

	msgs, err := h.chat.History(r.Context(), caller(r), mux.Vars(r)["partnerId"], page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *handler) partnerPresence(w http.ResponseWriter, r *http.Request) {
	online := false
	if h.presence != nil {
		var err error
		online, err = h.presence.Online(r.Context(), mux.Vars(r)["partnerId"])
		if err != nil {
			writeError(w, r, apperr.Internal(err, "Failed to load presence"))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"online": online})
}
