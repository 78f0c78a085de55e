package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/salescope/salescope/internal/model"
)

// handleStreamPost starts a streaming analysis with the query in the request
// body.
func (s *Server) handleStreamPost(w http.ResponseWriter, r *http.Request) {
	var q model.AnalysisQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.streamAnalysis(w, r, q)
}

// handleStreamGet starts a streaming analysis with the query JSON-encoded in
// the params query parameter. EventSource clients cannot send a body, so
// this is their only way in; their credentials arrive via the token query
// parameter handled by requireAuth.
func (s *Server) handleStreamGet(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("params")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "params query parameter is required")
		return
	}
	var q model.AnalysisQuery
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid params encoding")
		return
	}
	s.streamAnalysis(w, r, q)
}

// streamAnalysis is the shared SSE binding. Each relay event becomes one
// frame, flushed immediately; the response ends when the relay returns.
func (s *Server) streamAnalysis(w http.ResponseWriter, r *http.Request, q model.AnalysisQuery) {
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(ev any) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to encode stream frame")
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	s.relay.Run(r.Context(), callerUserID(r), q, emit)
}
