package http

import "net/http"

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := s.achievements.List(r.Context(), callerID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, achievements)
}

func (s *Server) handleCheckAchievements(w http.ResponseWriter, r *http.Request) {
	result, err := s.achievements.Check(r.Context(), callerID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
