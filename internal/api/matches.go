package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/artxchange/skillswap/internal/apperr"
	"github.com/artxchange/skillswap/internal/metrics"
	"github.com/artxchange/skillswap/internal/ratelimit"
)

func registerMatchRoutes(api *mux.Router, h *handler) {
	r := api.PathPrefix("/matches").Subrouter()

	r.Handle("", metrics.Instrument("matches.list", http.HandlerFunc(h.listMatches))).Methods(http.MethodGet)
	r.Handle("", metrics.Instrument("matches.request", http.HandlerFunc(h.requestMatch))).Methods(http.MethodPost)
	r.Handle("/suggest", metrics.Instrument("matches.suggest", http.HandlerFunc(h.suggestMatches))).Methods(http.MethodGet)
	r.Handle("/with/{id}", metrics.Instrument("matches.with", http.HandlerFunc(h.matchWithUser))).Methods(http.MethodGet)
	r.Handle("/{id}/respond", metrics.Instrument("matches.respond", http.HandlerFunc(h.respondMatch))).Methods(http.MethodPatch)
	r.Handle("/{id}/schedule", metrics.Instrument("matches.schedule", http.HandlerFunc(h.scheduleMatch))).Methods(http.MethodPatch)
	r.Handle("/{id}", metrics.Instrument("matches.delete", http.HandlerFunc(h.deleteMatch))).Methods(http.MethodDelete)
}

func (h *handler) suggestMatches(w http.ResponseWriter, r *http.Request) {
	s, err := h.matches.Suggest(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handler) listMatches(w http.ResponseWriter, r *http.Request) {
	list, err := h.matches.List(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type requestBody struct {
	TargetID string `json:"targetId"`
	Skill    string `json:"skill"`
}

func (h *handler) requestMatch(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	ok, _ := h.limiter.Allow(r.Context(), me, ratelimit.RuleMatchRequest)
	ratelimit.WriteHeaders(r.Context(), w.Header(), h.limiter, me, ratelimit.RuleMatchRequest, ok)
	if !ok {
		metrics.RateLimited.WithLabelValues("match_request").Inc()
		writeError(w, r, apperr.RateLimited("Too many match requests"))
		return
	}

	var body requestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := h.matches.Request(r.Context(), me, body.TargetID, body.Skill)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handler) matchWithUser(w http.ResponseWriter, r *http.Request) {
	m, ok, err := h.matches.WithUser(r.Context(), caller(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "none"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": m.Status, "match": m})
}

type respondBody struct {
	Action string `json:"action"`
}

func (h *handler) respondMatch(w http.ResponseWriter, r *http.Request) {
	var body respondBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.matches.Respond(r.Context(), caller(r), mux.Vars(r)["id"], body.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type scheduleBody struct {
	WhenISO     string `json:"whenISO"`
	DurationMin int    `json:"durationMin"`
}

func (h *handler) scheduleMatch(w http.ResponseWriter, r *http.Request) {
	var body scheduleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.matches.Schedule(r.Context(), caller(r), mux.Vars(r)["id"], body.WhenISO, body.DurationMin)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) deleteMatch(w http.ResponseWriter, r *http.Request) {
	if err := h.matches.Delete(r.Context(), caller(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Match deleted"})
}
