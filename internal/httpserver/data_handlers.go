package httpserver

import "net/http"

// metricDescriptor describes one selectable analysis metric for the SPA's
// query builder.
type metricDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var availableMetrics = []metricDescriptor{
	{ID: "sales", Name: "Sales", Description: "Total sales amount"},
	{ID: "orders", Name: "Orders", Description: "Total number of orders"},
	{ID: "aov", Name: "Average order value", Description: "Average amount per order"},
	{ID: "units", Name: "Units sold", Description: "Total items sold"},
	{ID: "discount", Name: "Discount", Description: "Total discount amount"},
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.data.Categories(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("category lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load categories")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.data.Channels(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("channel lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load channels")
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, availableMetrics)
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.data.Campaigns(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("campaign lookup failed")
		writeError(w, http.StatusInternalServerError, "failed to load campaigns")
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.data.Dashboard(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("dashboard query failed")
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}
