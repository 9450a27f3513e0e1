package http

import (
	"net/http"

	"hearth/internal/core"
)

type createRewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
	IsRecurring bool   `json:"is_recurring"`
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req createRewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	reward, err := s.rewards.CreateReward(r.Context(), callerID(r.Context()), core.Reward{
		Title:       req.Title,
		Description: req.Description,
		Cost:        req.Cost,
		IsRecurring: req.IsRecurring,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.rewards.ListRewards(r.Context(), callerID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	redemption, err := s.rewards.Claim(r.Context(), callerID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, redemption)
}

func (s *Server) handlePendingRedemptions(w http.ResponseWriter, r *http.Request) {
	pending, err := s.rewards.PendingRedemptions(r.Context(), callerID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleResolveRedemption(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	redemption, err := s.rewards.Resolve(r.Context(), callerID(r.Context()), r.PathValue("id"), req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}
