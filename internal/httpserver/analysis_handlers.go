package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/salescope/salescope/internal/analysis"
	"github.com/salescope/salescope/internal/model"
	"github.com/salescope/salescope/internal/reportstore"
)

func callerUserID(r *http.Request) string {
	return strconv.FormatInt(callerClaims(r).UserID, 10)
}

func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var q model.AnalysisQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.analysis.Create(r.Context(), callerUserID(r), q)
	if err != nil {
		s.log.Error().Err(err).Msg("analysis create failed")
		writeError(w, http.StatusInternalServerError, "failed to create analysis task")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"reportId": report.ReportID,
		"status":   string(report.Status),
	})
}

func (s *Server) handleAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.analysis.History(r.Context(), callerUserID(r))
	if err != nil {
		s.log.Error().Err(err).Msg("history lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if history == nil {
		history = []model.AnalysisReport{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	report, err := s.analysis.Get(r.Context(), chi.URLParam(r, "reportID"), callerUserID(r), claims.Role)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	err := s.analysis.Delete(r.Context(), chi.URLParam(r, "reportID"), callerUserID(r), claims.Role)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "analysis deleted successfully"})
}

func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reportstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "analysis report not found")
	case errors.Is(err, analysis.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	default:
		s.log.Error().Err(err).Msg("analysis request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
